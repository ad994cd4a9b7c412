// Package registry implements the Agent Registry: the canonical,
// persisted map of agent_id -> AgentRegistration that the Task Router
// and Health Checker consult.
package registry

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Domain is the closed enumeration of routing domains.
type Domain string

const (
	DomainCMDB          Domain = "cmdb"
	DomainDiscovery     Domain = "discovery"
	DomainAsset         Domain = "asset"
	DomainCSA           Domain = "csa"
	DomainAudit         Domain = "audit"
	DomainDocumentation Domain = "documentation"
	DomainOrchestration Domain = "orchestration"
)

func (d Domain) Valid() bool {
	switch d {
	case DomainCMDB, DomainDiscovery, DomainAsset, DomainCSA, DomainAudit, DomainDocumentation, DomainOrchestration:
		return true
	}
	return false
}

// Status is the closed enumeration of agent availability states.
type Status string

const (
	StatusOnline      Status = "online"
	StatusOffline     Status = "offline"
	StatusDegraded    Status = "degraded"
	StatusMaintenance Status = "maintenance"
)

// Available reports whether an agent in this status may receive work.
func (s Status) Available() bool {
	return s == StatusOnline || s == StatusDegraded
}

// Capability is a single named operation an agent exposes.
type Capability struct {
	Name         string          `json:"name"`
	Domain       Domain          `json:"domain"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema,omitempty"`
	OutputSchema json.RawMessage `json:"output_schema,omitempty"`
}

func (c Capability) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if len(c.InputSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(c.InputSchema)); err != nil {
			return fmt.Errorf("capability %q input_schema is not a valid JSON schema: %w", c.Name, err)
		}
	}
	if len(c.OutputSchema) > 0 {
		if _, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(c.OutputSchema)); err != nil {
			return fmt.Errorf("capability %q output_schema is not a valid JSON schema: %w", c.Name, err)
		}
	}
	return nil
}

// ValidateInput checks params against c's InputSchema, if one is set. A
// capability with no InputSchema accepts any parameters.
func (c Capability) ValidateInput(params map[string]any) error {
	if len(c.InputSchema) == 0 {
		return nil
	}
	paramBytes, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("marshal parameters: %w", err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(c.InputSchema), gojsonschema.NewBytesLoader(paramBytes))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	if !result.Valid() {
		msg := fmt.Sprintf("parameters for capability %q do not satisfy input_schema:", c.Name)
		for _, desc := range result.Errors() {
			msg += fmt.Sprintf("\n  - %s", desc)
		}
		return fmt.Errorf(msg)
	}
	return nil
}

var agentIDPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)

// Registration is the authoritative description of one downstream agent.
// Every field except Status, LastHealthCheck and Metadata is immutable
// after registration; Status is mutated only by the Health Checker or an
// explicit operator action, and Metadata only through UpdateMetadata.
type Registration struct {
	AgentID         string            `json:"agent_id"`
	Name            string            `json:"name"`
	Description     string            `json:"description"`
	Domain          Domain            `json:"domain"`
	Capabilities    []Capability      `json:"capabilities"`
	Endpoint        string            `json:"endpoint,omitempty"`
	Status          Status            `json:"status"`
	RegisteredAt    time.Time         `json:"registered_at"`
	LastHealthCheck *time.Time        `json:"last_health_check,omitempty"`
	Metadata        map[string]any    `json:"metadata"`
}

// Validate checks the invariants documented in SPEC_FULL.md §3.
func (r Registration) Validate() error {
	if !agentIDPattern.MatchString(r.AgentID) {
		return fmt.Errorf("agent_id %q must match %s", r.AgentID, agentIDPattern.String())
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("description must not be empty")
	}
	if !r.Domain.Valid() {
		return fmt.Errorf("invalid domain %q", r.Domain)
	}
	for _, c := range r.Capabilities {
		if err := c.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// clone returns a deep copy so callers can never alias registry-internal
// state (§4.2: list_all/search operations return copies, never aliases).
func (r Registration) clone() Registration {
	caps := make([]Capability, len(r.Capabilities))
	copy(caps, r.Capabilities)

	meta := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		meta[k] = v
	}

	var lastCheck *time.Time
	if r.LastHealthCheck != nil {
		t := *r.LastHealthCheck
		lastCheck = &t
	}

	out := r
	out.Capabilities = caps
	out.Metadata = meta
	out.LastHealthCheck = lastCheck
	return out
}

// Summary aggregates registry-wide counts for the health/info surface.
type Summary struct {
	TotalAgents        int            `json:"total_agents"`
	AgentsByDomain      map[Domain]int `json:"agents_by_domain"`
	AgentsByStatus      map[Status]int `json:"agents_by_status"`
	TotalCapabilities   int            `json:"total_capabilities"`
	AgentIDs            []string       `json:"agent_ids"`
}

func sortedIDs(agents map[string]Registration) []string {
	ids := make([]string, 0, len(agents))
	for id := range agents {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
