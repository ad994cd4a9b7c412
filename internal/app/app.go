// Package app composes the orchestrator's core components -- the
// persistence Store, Agent Registry, Health Checker, Task Router, Task
// Executor, Workflow Engine/Checkpointer, and Pending Clarification
// Store -- behind the HTTP API, and owns the process's startup/shutdown
// lifecycle. Mirrors the teacher's App.New/Run composition-root shape.
package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/api"
	"github.com/itom-platform/orchestrator/internal/clarification"
	"github.com/itom-platform/orchestrator/internal/config"
	"github.com/itom-platform/orchestrator/internal/dispatch"
	"github.com/itom-platform/orchestrator/internal/health"
	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/router"
	"github.com/itom-platform/orchestrator/internal/store"
	"github.com/itom-platform/orchestrator/internal/task"
	"github.com/itom-platform/orchestrator/internal/workflow"
)

// App wires the composed orchestrator and runs its HTTP server.
type App struct {
	config  *config.Config
	logger  *logrus.Logger
	logFile *os.File

	store          *store.Store
	registry       *registry.Registry
	health         *health.Checker
	router         *router.Router
	executor       *task.Executor
	workflows      *workflow.Engine
	checkpointer   *workflow.Checkpointer
	clarifications *clarification.Store

	server *api.Server
}

// New composes every core component from cfg. It is fatal (via the
// returned error) only for failures that leave the orchestrator unable to
// persist or serve at all; component-level degradations (e.g. a missing
// optional agents.json) are logged and skipped.
func New(cfg *config.Config) (*App, error) {
	logger := logrus.New()
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithError(err).Warn("invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.JSONFormatter{})

	logFile, err := openLogFile(cfg.LogDir)
	if err != nil {
		logger.WithError(err).Warn("failed to open log file, logging to stderr only")
	} else {
		logger.SetOutput(logFile)
	}
	log := logger.WithField("component", "app")

	stateDir := filepath.Join(cfg.DataDir, "state")
	st, err := store.New(stateDir, log.WithField("subsystem", "store"))
	if err != nil {
		return nil, fmt.Errorf("initialize store: %w", err)
	}

	reg := registry.New(st, true, log.WithField("subsystem", "registry"))
	if err := reg.Initialize(); err != nil {
		return nil, fmt.Errorf("initialize registry: %w", err)
	}

	if cf, err := registry.LoadConfigFile(filepath.Join(stateDir, "agents.json")); err != nil {
		log.WithError(err).Warn("failed to load agents.json, skipping")
	} else if cf != nil {
		if err := reg.ApplyConfigDiff(cf); err != nil {
			log.WithError(err).Warn("failed to apply agents.json diff")
		}
	}

	healthCfg := health.Config{
		CheckTimeoutSeconds: cfg.CheckTimeoutSeconds,
		CacheTTLSeconds:     cfg.CacheTTLSeconds,
		MaxHistoryPerAgent:  cfg.MaxHistoryPerAgent,
		MaxTotalHistory:     cfg.MaxTotalHistory,
	}
	healthChecker := health.New(reg, st, healthCfg, log.WithField("subsystem", "health"))

	var rules []router.Rule
	if doc, err := router.LoadRulesDocument(filepath.Join(stateDir, "routing-rules.json")); err != nil {
		log.WithError(err).Warn("failed to load routing-rules.json, using built-in defaults")
	} else if doc != nil {
		rules = doc.ToRules()
	}
	taskRouter := router.New(reg, rules, router.DefaultConfig(), log.WithField("subsystem", "router"))

	executorCfg := task.Config{
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		Backoff: task.BackoffConfig{
			Base:   time.Duration(cfg.RetryBaseDelaySeconds * float64(time.Second)),
			Factor: cfg.RetryBackoffFactor,
			Cap:    time.Duration(cfg.RetryMaxDelaySeconds * float64(time.Second)),
		},
		MaxHistoryRecords: cfg.MaxHistoryRecords,
	}
	executor := task.New(st, executorCfg, log.WithField("subsystem", "executor"))

	if cfg.CMDBAgentURL != "" {
		executor.RegisterDispatchHandler("cmdb-agent", dispatch.NewHTTPHandler(cfg.CMDBAgentURL))
		log.WithField("url", cfg.CMDBAgentURL).Info("registered CMDB dispatch handler")
	} else {
		log.Info("no CMDB agent URL configured, routed CMDB tasks resolve to the default acknowledgment")
	}

	workflowEngine := workflow.New(executor, reg, log.WithField("subsystem", "workflow"))
	checkpointer, err := workflow.NewCheckpointer(cfg.DataDir, log.WithField("subsystem", "checkpoint"))
	if err != nil {
		return nil, fmt.Errorf("initialize workflow checkpointer: %w", err)
	}

	clarifications := clarification.New()

	serverCfg := &api.ServerConfig{
		Host:         cfg.HTTPHost,
		Port:         cfg.HTTPPort,
		CORSOrigins:  cfg.CORSOrigins,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		MaxBodySize:  10 * 1024 * 1024,
		Debug:        level == logrus.DebugLevel,
	}
	server := api.NewServer(serverCfg, api.Deps{
		Registry:       reg,
		Health:         healthChecker,
		Router:         taskRouter,
		Executor:       executor,
		Workflows:      workflowEngine,
		Clarifications: clarifications,
	}, log.WithField("subsystem", "http"))

	return &App{
		config:         cfg,
		logger:         logger,
		logFile:        logFile,
		store:          st,
		registry:       reg,
		health:         healthChecker,
		router:         taskRouter,
		executor:       executor,
		workflows:      workflowEngine,
		checkpointer:   checkpointer,
		clarifications: clarifications,
		server:         server,
	}, nil
}

func openLogFile(logDir string) (*os.File, error) {
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(logDir, "orchestrator.log")
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Run starts the HTTP server and blocks until SIGINT/SIGTERM, then shuts
// down gracefully.
func (a *App) Run() error {
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-quit:
		a.logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.WithError(err).Error("server forced to shutdown")
		return err
	}

	if a.logFile != nil {
		_ = a.logFile.Close()
	}

	a.logger.Info("orchestrator exited")
	return nil
}
