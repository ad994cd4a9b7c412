package health

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/store"
)

func newHarness(t *testing.T) (*registry.Registry, *Checker) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	reg := registry.New(s, true, nil)
	require.NoError(t, reg.Initialize())
	checker := New(reg, s, DefaultConfig(), nil)
	return reg, checker
}

func TestCheckAgentEndpointDeclaringAgentIsDegraded(t *testing.T) {
	_, checker := newHarness(t)
	rec, err := checker.CheckAgent("cmdb-agent", false)
	require.NoError(t, err)
	assert.Equal(t, ResultDegraded, rec.Result)
}

func TestCheckAgentWithCapabilitiesIsHealthy(t *testing.T) {
	_, checker := newHarness(t)
	rec, err := checker.CheckAgent("discovery-agent", false)
	require.NoError(t, err)
	assert.Equal(t, ResultHealthy, rec.Result)
}

func TestCheckAgentPushesStatusToRegistry(t *testing.T) {
	reg, checker := newHarness(t)
	_, err := checker.CheckAgent("discovery-agent", false)
	require.NoError(t, err)

	agent, err := reg.Get("discovery-agent")
	require.NoError(t, err)
	assert.Equal(t, registry.StatusOnline, agent.Status)
}

func TestCheckAgentUsesCacheUnlessForced(t *testing.T) {
	_, checker := newHarness(t)
	first, err := checker.CheckAgent("discovery-agent", false)
	require.NoError(t, err)

	second, err := checker.CheckAgent("discovery-agent", false)
	require.NoError(t, err)
	assert.Equal(t, first.Timestamp, second.Timestamp)

	third, err := checker.CheckAgent("discovery-agent", true)
	require.NoError(t, err)
	assert.Equal(t, ResultHealthy, third.Result)
}

func TestCheckAgentNotFound(t *testing.T) {
	_, checker := newHarness(t)
	_, err := checker.CheckAgent("nope", false)
	require.Error(t, err)
}

func TestHistoryPerAgentCap(t *testing.T) {
	_, checker := newHarness(t)
	checker.config.MaxHistoryPerAgent = 3
	for i := 0; i < 5; i++ {
		_, err := checker.CheckAgent("discovery-agent", true)
		require.NoError(t, err)
	}
	history := checker.GetHistory("discovery-agent", 100)
	assert.Len(t, history, 3)
}

func TestGetAllHealth(t *testing.T) {
	_, checker := newHarness(t)
	_, err := checker.CheckAll(false)
	require.NoError(t, err)

	all, err := checker.GetAllHealth()
	require.NoError(t, err)
	assert.Equal(t, 6, all.TotalAgents)
}

func TestClearCache(t *testing.T) {
	_, checker := newHarness(t)
	_, err := checker.CheckAgent("discovery-agent", false)
	require.NoError(t, err)
	checker.ClearCache("discovery-agent")
	assert.False(t, checker.isCacheValid("discovery-agent"))
}
