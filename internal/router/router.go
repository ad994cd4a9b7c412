package router

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/errcode"
	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/task"
)

// Config tunes a Router's behavior.
type Config struct {
	RequireAvailable bool
}

// DefaultConfig matches the original implementation's defaults.
func DefaultConfig() Config {
	return Config{RequireAvailable: true}
}

// Router routes tasks to the appropriate ITOM agent by evaluating, in
// order: explicit targeting, configurable rules, domain matching,
// capability matching, and session continuity. The rule set and the
// append-only routing history are the Router's only mutable state; both
// serialize through mu, matching SPEC_FULL.md §5's one-lock-per-component
// rule.
type Router struct {
	mu sync.RWMutex

	registry *registry.Registry
	rules    []Rule
	config   Config
	log      *logrus.Entry

	history []HistoryRecord
}

// New constructs a Router. A nil rules slice installs the default rule
// set sorted by priority.
func New(reg *registry.Registry, rules []Rule, cfg Config, log *logrus.Entry) *Router {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if rules == nil {
		rules = buildDefaultRules()
	}
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })

	return &Router{
		registry: reg,
		rules:    sorted,
		config:   cfg,
		log:      log,
	}
}

// DetectAmbiguity evaluates all routing rules against t and returns a
// ClarificationContext when two or more domains tie at the same minimum
// priority. Returns nil when the task carries an explicit target agent,
// or when no ambiguity exists.
func (r *Router) DetectAmbiguity(t task.Task) *ClarificationContext {
	if t.TargetAgent != "" {
		return nil
	}

	type matched struct {
		priority int
		domain   string
	}
	var hits []matched
	for _, rule := range r.rulesSnapshot() {
		if rule.Matches(t) && rule.Domain != "" {
			hits = append(hits, matched{rule.Priority, string(rule.Domain)})
		}
	}
	if len(hits) < 2 {
		return nil
	}

	minPriority := hits[0].priority
	for _, h := range hits[1:] {
		if h.priority < minPriority {
			minPriority = h.priority
		}
	}

	seen := map[string]bool{}
	var topDomains []string
	for _, h := range hits {
		if h.priority == minPriority && !seen[h.domain] {
			seen[h.domain] = true
			topDomains = append(topDomains, h.domain)
		}
	}
	if len(topDomains) < 2 {
		return nil
	}

	template, ok := clarificationTemplates[pairKey(topDomains[0], topDomains[1])]
	if !ok {
		template = clarificationFallback
	}

	r.log.WithField("task_id", t.TaskID).WithField("competing_domains", topDomains).
		Info("ambiguous routing detected")

	return &ClarificationContext{
		CompetingDomains: topDomains,
		Question:         template.Question,
		Options:          template.Options,
	}
}

// Route selects the agent that should handle t.
func (r *Router) Route(t task.Task) (Decision, error) {
	r.log.WithField("task_id", t.TaskID).WithField("domain", t.Domain).
		WithField("target_agent", t.TargetAgent).Info("routing task")

	if t.TargetAgent != "" {
		d, err := r.routeExplicit(t)
		if err != nil {
			return Decision{}, err
		}
		r.recordRouting(t, d)
		return d, nil
	}

	if d, ok := r.routeByRules(t); ok {
		r.recordRouting(t, d)
		return d, nil
	}

	if t.Domain != "" {
		if d, ok := r.routeByDomain(t); ok {
			r.recordRouting(t, d)
			return d, nil
		}
	}

	if rawCap, ok := t.Parameters["required_capability"]; ok {
		if capName, ok := rawCap.(string); ok && capName != "" {
			if d, ok := r.routeByCapability(t, capName); ok {
				r.recordRouting(t, d)
				return d, nil
			}
		}
	}

	if lastAgentID, ok := r.lastAgentFromContext(t); ok {
		if agent, err := r.registry.Get(lastAgentID); err == nil {
			if !r.config.RequireAvailable || availableStatuses[agent.Status] {
				d := Decision{
					Agent:               agent,
					Reason:              fmt.Sprintf("Session continuity: re-routing to last agent '%s' from session context.", lastAgentID),
					Method:              "session",
					CandidatesEvaluated: 1,
					Timestamp:           time.Now().UTC(),
				}
				r.recordRouting(t, d)
				return d, nil
			}
		}
	}

	return Decision{}, &Error{
		Code:   errcode.NoRouteFound,
		TaskID: t.TaskID,
		Message: fmt.Sprintf(
			"No matching agent for domain=%q, target_agent=%q: keywords in title/description did not match any routing rule.",
			t.Domain, t.TargetAgent,
		),
	}
}

func (r *Router) lastAgentFromContext(t task.Task) (string, bool) {
	rawCtx, ok := t.Parameters["context"]
	if !ok {
		return "", false
	}
	ctx, ok := rawCtx.(map[string]any)
	if !ok {
		return "", false
	}
	raw, ok := ctx["last_agent_id"]
	if !ok {
		return "", false
	}
	id, ok := raw.(string)
	return id, ok && id != ""
}

func (r *Router) routeExplicit(t task.Task) (Decision, error) {
	agent, err := r.registry.Get(t.TargetAgent)
	if err != nil {
		return Decision{}, &Error{
			Code:    errcode.NoRouteFound,
			TaskID:  t.TaskID,
			Message: fmt.Sprintf("Explicitly targeted agent '%s' not found in registry.", t.TargetAgent),
		}
	}
	if r.config.RequireAvailable && !availableStatuses[agent.Status] {
		return Decision{}, &Error{
			Code:    errcode.AgentUnavailable,
			TaskID:  t.TaskID,
			Message: fmt.Sprintf("Agent '%s' is unavailable (status: %s).", t.TargetAgent, agent.Status),
		}
	}
	return Decision{
		Agent:               agent,
		Reason:              fmt.Sprintf("Explicitly targeted agent '%s'.", t.TargetAgent),
		Method:              "explicit",
		CandidatesEvaluated: 1,
		Timestamp:           time.Now().UTC(),
	}, nil
}

func (r *Router) routeByRules(t task.Task) (Decision, bool) {
	for _, rule := range r.rulesSnapshot() {
		if !rule.Matches(t) {
			continue
		}

		if rule.TargetAgent != "" {
			agent, err := r.registry.Get(rule.TargetAgent)
			if err != nil {
				continue
			}
			if r.config.RequireAvailable && !availableStatuses[agent.Status] {
				continue
			}
			return Decision{
				Agent:               agent,
				Reason:              fmt.Sprintf("Routing rule '%s' matched -> agent '%s'.", rule.Name, rule.TargetAgent),
				Method:              "rule",
				CandidatesEvaluated: 1,
				Timestamp:           time.Now().UTC(),
			}, true
		}

		if rule.Domain != "" {
			candidates, _ := r.registry.SearchByDomain(rule.Domain)
			available := r.filterAvailable(candidates)
			if len(available) >= 1 {
				chosen := available[0]
				reason := fmt.Sprintf("Routing rule '%s' matched domain '%s' -> agent '%s'.", rule.Name, rule.Domain, chosen.AgentID)
				if len(available) > 1 {
					reason = fmt.Sprintf("Routing rule '%s' matched domain '%s'. Selected '%s' from %d candidates (first by agent_id).",
						rule.Name, rule.Domain, chosen.AgentID, len(available))
				}
				return Decision{
					Agent:               chosen,
					Reason:              reason,
					Method:              "rule",
					CandidatesEvaluated: len(candidates),
					Timestamp:           time.Now().UTC(),
				}, true
			}
		}

		if rule.Capability != "" {
			candidates, _ := r.registry.SearchByCapability(rule.Capability)
			available := r.filterAvailable(candidates)
			if len(available) > 0 {
				return Decision{
					Agent:               available[0],
					Reason:              fmt.Sprintf("Routing rule '%s' matched capability '%s' -> agent '%s'.", rule.Name, rule.Capability, available[0].AgentID),
					Method:              "rule",
					CandidatesEvaluated: len(candidates),
					Timestamp:           time.Now().UTC(),
				}, true
			}
		}
	}
	return Decision{}, false
}

func (r *Router) routeByDomain(t task.Task) (Decision, bool) {
	candidates, _ := r.registry.SearchByDomain(registry.Domain(t.Domain))
	if len(candidates) == 0 {
		return Decision{}, false
	}
	available := r.filterAvailable(candidates)
	if len(available) == 0 {
		return Decision{}, false
	}
	chosen := available[0]
	reason := fmt.Sprintf("Domain routing: task domain '%s' matched agent '%s'.", t.Domain, chosen.AgentID)
	if len(available) > 1 {
		reason = fmt.Sprintf("Domain routing: task domain '%s' matched %d agents. Selected '%s' (first by agent_id).",
			t.Domain, len(available), chosen.AgentID)
	}
	return Decision{
		Agent:               chosen,
		Reason:              reason,
		Method:              "domain",
		CandidatesEvaluated: len(candidates),
		Timestamp:           time.Now().UTC(),
	}, true
}

func (r *Router) routeByCapability(t task.Task, capability string) (Decision, bool) {
	candidates, _ := r.registry.SearchByCapability(capability)
	if len(candidates) == 0 {
		return Decision{}, false
	}
	available := r.filterAvailable(candidates)
	if len(available) == 0 {
		return Decision{}, false
	}

	chosen := available[0]
	if err := r.validateCapabilityInput(chosen, capability, t.Parameters); err != nil {
		r.log.WithField("task_id", t.TaskID).WithField("agent_id", chosen.AgentID).
			WithError(err).Warn("task parameters failed capability input_schema validation")
		return Decision{}, false
	}

	return Decision{
		Agent:               chosen,
		Reason:              fmt.Sprintf("Capability routing: required capability '%s' matched agent '%s'.", capability, chosen.AgentID),
		Method:              "capability",
		CandidatesEvaluated: len(candidates),
		Timestamp:           time.Now().UTC(),
	}, true
}

// validateCapabilityInput checks t's parameters against the InputSchema
// declared on agent's named capability, if one is present.
func (r *Router) validateCapabilityInput(agent registry.Registration, capability string, params map[string]any) error {
	for _, c := range agent.Capabilities {
		if c.Name == capability {
			return c.ValidateInput(params)
		}
	}
	return nil
}

func (r *Router) filterAvailable(agents []registry.Registration) []registry.Registration {
	if !r.config.RequireAvailable {
		return agents
	}
	out := make([]registry.Registration, 0, len(agents))
	for _, a := range agents {
		if availableStatuses[a.Status] {
			out = append(out, a)
		}
	}
	return out
}

// rulesSnapshot returns a copy of the current rule set, safe to range
// over without holding mu for the duration of a routing pass.
func (r *Router) rulesSnapshot() []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

func (r *Router) recordRouting(t task.Task, d Decision) {
	rec := HistoryRecord{
		TaskID:    t.TaskID,
		AgentID:   d.Agent.AgentID,
		Method:    d.Method,
		Reason:    d.Reason,
		Timestamp: d.Timestamp,
	}
	r.mu.Lock()
	r.history = append(r.history, rec)
	r.mu.Unlock()
	r.log.WithField("task_id", rec.TaskID).WithField("agent_id", rec.AgentID).
		WithField("method", rec.Method).Info("task routed")
}

// AddRule appends a rule and re-sorts the rule set by priority.
func (r *Router) AddRule(rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules = append(r.rules, rule)
	sort.SliceStable(r.rules, func(i, j int) bool { return r.rules[i].Priority < r.rules[j].Priority })
}

// RemoveRule removes a rule by name, reporting whether it was found.
func (r *Router) RemoveRule(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	before := len(r.rules)
	out := r.rules[:0]
	for _, rule := range r.rules {
		if rule.Name != name {
			out = append(out, rule)
		}
	}
	r.rules = out
	return len(r.rules) < before
}

// Rules returns the current rule set sorted by priority.
func (r *Router) Rules() []Rule {
	return r.rulesSnapshot()
}

// RuleCount returns the number of configured rules.
func (r *Router) RuleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rules)
}

// RoutingHistory returns up to limit most-recent routing decisions,
// newest first.
func (r *Router) RoutingHistory(limit int) []HistoryRecord {
	r.mu.RLock()
	recent := r.history
	if limit > 0 && limit < len(recent) {
		recent = recent[len(recent)-limit:]
	}
	out := make([]HistoryRecord, len(recent))
	for i, rec := range recent {
		out[len(recent)-1-i] = rec
	}
	r.mu.RUnlock()
	return out
}
