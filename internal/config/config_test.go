package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv("ORCH_HTTP_PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().HTTPPort, cfg.HTTPPort)
	assert.Equal(t, Default().MaxHistoryPerAgent, cfg.MaxHistoryPerAgent)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ORCH_LOG_LEVEL", "debug")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejectsNonPositivePort(t *testing.T) {
	cfg := Default()
	cfg.HTTPPort = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsLowBackoffFactor(t *testing.T) {
	cfg := Default()
	cfg.RetryBackoffFactor = 1.0
	assert.Error(t, cfg.Validate())
}
