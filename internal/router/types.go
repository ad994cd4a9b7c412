// Package router implements the Task Router: domain-based routing,
// configurable keyword rules, capability matching, explicit agent
// targeting, session-continuity fallback, and ambiguity detection.
package router

import (
	"fmt"
	"strings"
	"time"

	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/task"
)

// availableStatuses are the agent statuses eligible to receive work.
var availableStatuses = map[registry.Status]bool{
	registry.StatusOnline:   true,
	registry.StatusDegraded: true,
}

// Rule is a configurable routing rule mapping keywords/domain/capability
// to an agent. Rules are evaluated in ascending priority order; the first
// one that matches AND resolves to an available agent wins.
type Rule struct {
	Name         string
	Priority     int
	Domain       registry.Domain
	Keywords     []string
	TargetAgent  string
	Capability   string
}

// Matches reports whether the rule's domain or keyword criteria match t.
// Capability criteria are evaluated separately during routing, not here,
// mirroring the original implementation.
func (r Rule) Matches(t task.Task) bool {
	if r.Domain != "" && t.Domain != "" && t.Domain == string(r.Domain) {
		return true
	}
	if len(r.Keywords) > 0 {
		text := strings.ToLower(t.Title + " " + t.Description)
		for _, kw := range r.Keywords {
			if strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

// Decision is the result of routing a task to an agent.
type Decision struct {
	Agent               registry.Registration
	Reason              string
	Method              string
	CandidatesEvaluated int
	Timestamp           time.Time
}

// ClarificationContext describes an ambiguous routing situation requiring
// the user to disambiguate between two or more competing domains.
type ClarificationContext struct {
	CompetingDomains []string
	Question         string
	Options          []string
}

// Error is the router's typed error, carrying a stable ORCH_2xxx code.
type Error struct {
	Code    string
	TaskID  string
	Message string
}

func (e *Error) Error() string     { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }
func (e *Error) ErrorCode() string { return e.Code }

// HistoryRecord is one append-only routing-decision audit entry.
type HistoryRecord struct {
	TaskID    string    `json:"task_id"`
	AgentID   string    `json:"agent_id"`
	Method    string    `json:"method"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
