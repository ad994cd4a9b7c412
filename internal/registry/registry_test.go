package registry

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itom-platform/orchestrator/internal/store"
)

func newTestRegistry(t *testing.T, loadDefaults bool) *Registry {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	r := New(s, loadDefaults, nil)
	require.NoError(t, r.Initialize())
	return r
}

func TestInitializeWithDefaults(t *testing.T) {
	r := newTestRegistry(t, true)
	all, err := r.ListAll()
	require.NoError(t, err)
	assert.Len(t, all, 6)
	assert.Equal(t, []string{"asset-agent", "cmdb-agent", "csa-agent", "discovery-agent", "itom-auditor", "itom-documentator"},
		idsOf(all))
}

func TestInitializeEmptyWithoutDefaults(t *testing.T) {
	r := newTestRegistry(t, false)
	all, err := r.ListAll()
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = r.Get("cmdb-agent")
	require.Error(t, err)
	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "ORCH_1001", regErr.ErrorCode())
}

func TestRegisterAlreadyRegistered(t *testing.T) {
	r := newTestRegistry(t, true)
	_, err := r.Register(buildDefaultAgents()[0])
	require.Error(t, err)
	var regErr *Error
	require.ErrorAs(t, err, &regErr)
	assert.Equal(t, "ORCH_1002", regErr.ErrorCode())
}

func TestUnregisterNotFound(t *testing.T) {
	r := newTestRegistry(t, true)
	_, err := r.Unregister("nonexistent")
	require.Error(t, err)
}

func TestUpdateStatusCopyOnWrite(t *testing.T) {
	r := newTestRegistry(t, true)
	updated, err := r.UpdateStatus("discovery-agent", StatusOnline, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, updated.Status)
	require.NotNil(t, updated.LastHealthCheck)

	fetched, err := r.Get("discovery-agent")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, fetched.Status)
}

func TestUpdateMetadataMergeAndReplace(t *testing.T) {
	r := newTestRegistry(t, true)

	merged, err := r.UpdateMetadata("cmdb-agent", map[string]any{"owner": "team-a"}, true)
	require.NoError(t, err)
	assert.Equal(t, "team-a", merged.Metadata["owner"])
	assert.Equal(t, "snow-cmdb-agent", merged.Metadata["project"])

	replaced, err := r.UpdateMetadata("cmdb-agent", map[string]any{"only": "this"}, false)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"only": "this"}, replaced.Metadata)
}

func TestSearchByDomainSortedAndCopies(t *testing.T) {
	r := newTestRegistry(t, true)
	results, err := r.SearchByDomain(DomainCMDB)
	require.NoError(t, err)
	require.Len(t, results, 1)

	results[0].Name = "mutated locally"
	fetched, err := r.Get("cmdb-agent")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated locally", fetched.Name)
}

func TestGetCapabilitiesForDomainNoDedup(t *testing.T) {
	r := newTestRegistry(t, true)
	caps, err := r.GetCapabilitiesForDomain(DomainCMDB)
	require.NoError(t, err)
	assert.Len(t, caps, 6)
}

func TestSummary(t *testing.T) {
	r := newTestRegistry(t, true)
	summary, err := r.GetSummary()
	require.NoError(t, err)
	assert.Equal(t, 6, summary.TotalAgents)
	assert.Equal(t, 1, summary.AgentsByStatus[StatusOnline])
	assert.Equal(t, 5, summary.AgentsByStatus[StatusOffline])
}

func TestPersistenceRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	s, err := store.New(dir, nil)
	require.NoError(t, err)

	r1 := New(s, true, nil)
	require.NoError(t, r1.Initialize())
	_, err = r1.UpdateStatus("asset-agent", StatusOnline, nil)
	require.NoError(t, err)

	r2 := New(s, true, nil)
	require.NoError(t, r2.Initialize())
	agent, err := r2.Get("asset-agent")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, agent.Status)
	assert.Equal(t, 6, r2.AgentCount())
}

func idsOf(agents []Registration) []string {
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.AgentID
	}
	return ids
}
