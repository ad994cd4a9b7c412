package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/clarification"
	"github.com/itom-platform/orchestrator/internal/health"
	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/router"
	"github.com/itom-platform/orchestrator/internal/task"
	"github.com/itom-platform/orchestrator/internal/workflow"
)

// Server is the orchestrator's HTTP API: a thin gin layer over the
// composed core components (registry, health checker, router, executor,
// workflow engine, clarification store), implementing the 6-route
// surface of SPEC_FULL.md §6.2.
type Server struct {
	router *gin.Engine
	server *http.Server
	config *ServerConfig
	log    *logrus.Entry

	registry       *registry.Registry
	health         *health.Checker
	routerEngine   *router.Router
	executor       *task.Executor
	workflows      *workflow.Engine
	clarifications *clarification.Store

	startedAt time.Time
}

// ServerConfig holds the HTTP-layer-specific settings the rest of the
// Config struct doesn't directly express as gin/http.Server options.
type ServerConfig struct {
	Host         string
	Port         int
	CORSOrigins  []string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxBodySize  int64
	Debug        bool
}

// DefaultServerConfig returns the HTTP server defaults used when no
// override is supplied.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		Host:         "0.0.0.0",
		Port:         8000,
		CORSOrigins:  []string{"*"},
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		MaxBodySize:  10 * 1024 * 1024,
	}
}

// Deps bundles every core component the HTTP layer dispatches into.
type Deps struct {
	Registry       *registry.Registry
	Health         *health.Checker
	Router         *router.Router
	Executor       *task.Executor
	Workflows      *workflow.Engine
	Clarifications *clarification.Store
}

// NewServer wires deps into a ready-to-start HTTP server.
func NewServer(config *ServerConfig, deps Deps, log *logrus.Entry) *Server {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if config.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	s := &Server{
		router:         engine,
		config:         config,
		log:            log,
		registry:       deps.Registry,
		health:         deps.Health,
		routerEngine:   deps.Router,
		executor:       deps.Executor,
		workflows:      deps.Workflows,
		clarifications: deps.Clarifications,
		startedAt:      time.Now().UTC(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      engine,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(RecoveryMiddleware())
	s.router.Use(RequestIDMiddleware())
	s.router.Use(LoggingMiddleware())
	s.router.Use(SecurityHeadersMiddleware())
	s.router.Use(CORSMiddleware(s.config.CORSOrigins))
	s.router.Use(ValidateContentTypeMiddleware())
	s.router.Use(RequestSizeLimitMiddleware(s.config.MaxBodySize))
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.getOrchestratorHealth)

		api.GET("/agents/status", s.getAgentsStatus)
		api.GET("/agents/:id", s.getAgent)
		api.GET("/agents/:id/health", s.getAgentHealth)

		api.POST("/chat", s.processChatMessage)
		api.POST("/chat/clarify", s.processClarifiedMessage)
	}
}

// Handler exposes the underlying gin engine for tests that want to drive
// requests directly without going through Start/Stop.
func (s *Server) Handler() http.Handler { return s.router }

// Start runs the HTTP server until it is stopped or fails. Mirrors the
// blocking ListenAndServe + goroutine pattern the rest of the corpus uses.
func (s *Server) Start() error {
	s.log.WithField("addr", s.server.Addr).Info("starting HTTP API server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the HTTP server down within ctx's deadline.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("stopping HTTP API server")
	return s.server.Shutdown(ctx)
}

// getOrchestratorHealth implements GET /api/health.
func (s *Server) getOrchestratorHealth(c *gin.Context) {
	summary, err := s.registry.GetSummary()
	if err != nil {
		CodedErrorResponse(c, http.StatusInternalServerError, err)
		return
	}

	SuccessResponse(c, gin.H{
		"status":        "healthy",
		"version":       "v1",
		"uptime":        time.Since(s.startedAt).String(),
		"total_agents":  summary.TotalAgents,
		"agents_online": summary.AgentsByStatus[registry.StatusOnline],
		"timestamp":     time.Now().UTC(),
	})
}

// getAgentsStatus implements GET /api/agents/status.
func (s *Server) getAgentsStatus(c *gin.Context) {
	agents, err := s.registry.ListAll()
	if err != nil {
		CodedErrorResponse(c, http.StatusInternalServerError, err)
		return
	}
	summary, err := s.registry.GetSummary()
	if err != nil {
		CodedErrorResponse(c, http.StatusInternalServerError, err)
		return
	}

	SuccessResponse(c, gin.H{
		"agents":  agents,
		"summary": summary,
	})
}

// getAgent implements GET /api/agents/{id}.
func (s *Server) getAgent(c *gin.Context) {
	agent, err := s.registry.Get(c.Param("id"))
	if err != nil {
		CodedErrorResponse(c, http.StatusNotFound, err)
		return
	}
	SuccessResponse(c, agent)
}

// getAgentHealth implements GET /api/agents/{id}/health.
func (s *Server) getAgentHealth(c *gin.Context) {
	agentHealth, err := s.health.GetAgentHealth(c.Param("id"))
	if err != nil {
		CodedErrorResponse(c, http.StatusNotFound, err)
		return
	}
	SuccessResponse(c, agentHealth)
}
