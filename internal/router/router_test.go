package router

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/store"
	"github.com/itom-platform/orchestrator/internal/task"
)

func newHarness(t *testing.T) (*registry.Registry, *Router) {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	reg := registry.New(s, true, nil)
	require.NoError(t, reg.Initialize())
	for _, a := range mustList(t, reg) {
		_, err := reg.UpdateStatus(a.AgentID, registry.StatusOnline, nil)
		require.NoError(t, err)
	}
	return reg, New(reg, nil, DefaultConfig(), nil)
}

func mustList(t *testing.T, reg *registry.Registry) []registry.Registration {
	t.Helper()
	all, err := reg.ListAll()
	require.NoError(t, err)
	return all
}

func makeTask(id, text string) task.Task {
	t := task.NewTask(id, text, text)
	return t
}

func TestRouteExplicitTarget(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t1", "anything")
	tk.TargetAgent = "cmdb-agent"

	d, err := r.Route(tk)
	require.NoError(t, err)
	assert.Equal(t, "explicit", d.Method)
	assert.Equal(t, "cmdb-agent", d.Agent.AgentID)
}

func TestRouteExplicitTargetNotFound(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t2", "anything")
	tk.TargetAgent = "nonexistent"

	_, err := r.Route(tk)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "ORCH_2001", rerr.ErrorCode())
}

func TestRouteByRuleKeyword(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t3", "schedule a discovery scan for 10.0.0.0/24")

	d, err := r.Route(tk)
	require.NoError(t, err)
	assert.Equal(t, "discovery-agent", d.Agent.AgentID)
}

func TestRouteByDomain(t *testing.T) {
	reg, _ := newHarness(t)
	// No rules: a rule whose domain equals the task's domain would
	// otherwise claim the task in the rule sweep, before domain routing.
	r := New(reg, []Rule{}, DefaultConfig(), nil)
	tk := makeTask("t4", "irrelevant text")
	tk.Domain = "asset"

	d, err := r.Route(tk)
	require.NoError(t, err)
	assert.Equal(t, "asset-agent", d.Agent.AgentID)
	assert.Equal(t, "domain", d.Method)
}

func TestRouteByCapability(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t5", "an opaque message")
	tk.Parameters["required_capability"] = "run_discovery_scan"

	d, err := r.Route(tk)
	require.NoError(t, err)
	assert.Equal(t, "capability", d.Method)
}

func TestRouteByCapabilityRejectsParametersFailingInputSchema(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t5b", "an opaque message")
	tk.Parameters["required_capability"] = "cmdb_read"
	// cmdb_read's input_schema requires ci_type; omit it.

	_, err := r.Route(tk)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "ORCH_2001", rerr.ErrorCode())
}

func TestRouteByCapabilityAcceptsParametersSatisfyingInputSchema(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t5c", "an opaque message")
	tk.Parameters["required_capability"] = "cmdb_read"
	tk.Parameters["ci_type"] = "server"

	d, err := r.Route(tk)
	require.NoError(t, err)
	assert.Equal(t, "capability", d.Method)
	assert.Equal(t, "cmdb-agent", d.Agent.AgentID)
}

func TestRouteSessionContinuity(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t6", "ok thanks")
	tk.Parameters["context"] = map[string]any{"last_agent_id": "csa-agent"}

	d, err := r.Route(tk)
	require.NoError(t, err)
	assert.Equal(t, "session", d.Method)
	assert.Equal(t, "csa-agent", d.Agent.AgentID)
}

func TestRouteNoMatchReturnsNoRouteFound(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t7", "zzz qqq unrelated gibberish")

	_, err := r.Route(tk)
	require.Error(t, err)
	var rerr *Error
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "ORCH_2001", rerr.ErrorCode())
}

func TestDetectAmbiguityNoneForExplicitTarget(t *testing.T) {
	_, r := newHarness(t)
	tk := makeTask("t8", "show me all servers")
	tk.TargetAgent = "cmdb-agent"
	assert.Nil(t, r.DetectAmbiguity(tk))
}

func TestDetectAmbiguityTiedRules(t *testing.T) {
	reg, _ := newHarness(t)
	tied := []Rule{
		{Name: "cmdb-rule", Priority: 10, Domain: registry.DomainCMDB, Keywords: []string{"overlap-keyword"}},
		{Name: "csa-rule", Priority: 10, Domain: registry.DomainCSA, Keywords: []string{"overlap-keyword"}},
	}
	r := New(reg, tied, DefaultConfig(), nil)
	tk := makeTask("t9", "overlap-keyword")

	ctx := r.DetectAmbiguity(tk)
	require.NotNil(t, ctx)
	assert.Contains(t, ctx.CompetingDomains, "cmdb")
	assert.Contains(t, ctx.CompetingDomains, "csa")
	assert.NotEmpty(t, ctx.Question)
	assert.GreaterOrEqual(t, len(ctx.Options), 2)
}

func TestDetectAmbiguityDifferentPrioritiesNotAmbiguous(t *testing.T) {
	reg, _ := newHarness(t)
	rules := []Rule{
		{Name: "cmdb-rule", Priority: 5, Domain: registry.DomainCMDB, Keywords: []string{"overlap-keyword"}},
		{Name: "csa-rule", Priority: 15, Domain: registry.DomainCSA, Keywords: []string{"overlap-keyword"}},
	}
	r := New(reg, rules, DefaultConfig(), nil)
	tk := makeTask("t10", "overlap-keyword")
	assert.Nil(t, r.DetectAmbiguity(tk))
}

func TestAddAndRemoveRule(t *testing.T) {
	_, r := newHarness(t)
	before := r.RuleCount()
	r.AddRule(Rule{Name: "custom", Priority: 1, Domain: registry.DomainCMDB})
	assert.Equal(t, before+1, r.RuleCount())

	removed := r.RemoveRule("custom")
	assert.True(t, removed)
	assert.Equal(t, before, r.RuleCount())
}

func TestRoutingHistoryNewestFirst(t *testing.T) {
	_, r := newHarness(t)
	_, err := r.Route(makeTask("h1", "discovery scan"))
	require.NoError(t, err)
	_, err = r.Route(makeTask("h2", "audit report"))
	require.NoError(t, err)

	hist := r.RoutingHistory(0)
	require.Len(t, hist, 2)
	assert.Equal(t, "h2", hist[0].TaskID)
}

func TestValidateRulesDocumentDetectsDuplicatesAndAllDisabled(t *testing.T) {
	doc := RulesDocument{
		Version: "1.0.0",
		Rules: []RuleConfig{
			{RuleID: "r1", Name: "a", Domain: registry.DomainCMDB, Enabled: false},
			{RuleID: "r1", Name: "b", Domain: registry.DomainCSA, Enabled: false},
		},
	}
	errs := ValidateRulesDocument(doc)
	assert.NotEmpty(t, errs)
}
