// Package config loads the orchestrator's configuration from a YAML
// file, environment variables, and built-in defaults, using the same
// viper+godotenv layering the rest of the corpus uses.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the orchestrator's full, closed set of configuration keys.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogDir   string `mapstructure:"log_dir"`

	HTTPHost    string   `mapstructure:"http_host"`
	HTTPPort    int      `mapstructure:"http_port"`
	CORSOrigins []string `mapstructure:"cors_origins"`

	CMDBAgentURL string `mapstructure:"cmdb_agent_url"`

	DefaultTimeoutSeconds  float64 `mapstructure:"default_timeout_seconds"`
	RetryBaseDelaySeconds  float64 `mapstructure:"retry_base_delay_seconds"`
	RetryMaxDelaySeconds   float64 `mapstructure:"retry_max_delay_seconds"`
	RetryBackoffFactor     float64 `mapstructure:"retry_backoff_factor"`
	MaxHistoryRecords      int     `mapstructure:"max_history_records"`

	CheckTimeoutSeconds float64 `mapstructure:"check_timeout_seconds"`
	CacheTTLSeconds     float64 `mapstructure:"cache_ttl_seconds"`
	MaxHistoryPerAgent  int     `mapstructure:"max_history_per_agent"`
	MaxTotalHistory     int     `mapstructure:"max_total_history"`
}

// Default returns the configuration's built-in defaults.
func Default() Config {
	return Config{
		DataDir:  "./data",
		LogLevel: "info",
		LogDir:   "./logs",

		HTTPHost:    "0.0.0.0",
		HTTPPort:    8000,
		CORSOrigins: []string{"*"},

		CMDBAgentURL: "",

		DefaultTimeoutSeconds: 300.0,
		RetryBaseDelaySeconds: 1.0,
		RetryMaxDelaySeconds:  60.0,
		RetryBackoffFactor:    2.0,
		MaxHistoryRecords:     500,

		CheckTimeoutSeconds: 10.0,
		CacheTTLSeconds:     60.0,
		MaxHistoryPerAgent:  100,
		MaxTotalHistory:     1000,
	}
}

// Load reads configuration from configPath (if given), a config.yaml in
// the working directory or ./configs or /etc/itom-orchestrator, and
// ORCH_-prefixed environment variables, layered on top of Default().
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if configPath != "" {
		if filepath.IsAbs(configPath) {
			v.SetConfigFile(configPath)
		} else {
			v.AddConfigPath(filepath.Dir(configPath))
			base := filepath.Base(configPath)
			v.SetConfigName(strings.TrimSuffix(base, filepath.Ext(base)))
		}
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/itom-orchestrator")

	v.SetEnvPrefix("ORCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// Unmarshal only sees keys viper already knows, so bind every config
	// key to its ORCH_-prefixed environment variable explicitly.
	for _, key := range []string{
		"data_dir", "log_level", "log_dir", "http_host", "http_port", "cors_origins",
		"cmdb_agent_url", "default_timeout_seconds", "retry_base_delay_seconds",
		"retry_max_delay_seconds", "retry_backoff_factor", "max_history_records",
		"check_timeout_seconds", "cache_ttl_seconds", "max_history_per_agent", "max_total_history",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate enforces the config invariants implied by SPEC_FULL.md's
// knob descriptions: positive port and default timeout, backoff factor
// above 1.0, positive history caps.
func (c Config) Validate() error {
	if c.HTTPPort <= 0 {
		return fmt.Errorf("http_port must be positive, got %d", c.HTTPPort)
	}
	if c.DefaultTimeoutSeconds <= 0 {
		return fmt.Errorf("default_timeout_seconds must be positive")
	}
	if c.RetryBackoffFactor <= 1.0 {
		return fmt.Errorf("retry_backoff_factor must be greater than 1.0")
	}
	if c.MaxHistoryRecords <= 0 {
		return fmt.Errorf("max_history_records must be positive")
	}
	if c.MaxHistoryPerAgent <= 0 || c.MaxTotalHistory <= 0 {
		return fmt.Errorf("history caps must be positive")
	}
	return nil
}
