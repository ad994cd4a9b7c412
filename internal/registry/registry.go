package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/errcode"
	"github.com/itom-platform/orchestrator/internal/store"
)

// StateKey is the persistence key the registry mirrors itself under.
const StateKey = "agent-registry"

// Error is the registry's typed error, carrying a stable ORCH_1xxx code.
type Error struct {
	Code    string
	AgentID string
	Message string
}

func (e *Error) Error() string {
	if e.AgentID != "" {
		return fmt.Sprintf("registry: %s: %s", e.AgentID, e.Message)
	}
	return fmt.Sprintf("registry: %s", e.Message)
}

func (e *Error) ErrorCode() string { return e.Code }

func errNotFound(id string) *Error {
	return &Error{Code: errcode.AgentNotFound, AgentID: id, Message: "agent not found"}
}

func errAlreadyRegistered(id string) *Error {
	return &Error{Code: errcode.AgentAlreadyRegistered, AgentID: id, Message: "agent already registered"}
}

type persistedState struct {
	Agents      []Registration `json:"agents"`
	AgentCount  int            `json:"agent_count"`
	LastUpdated time.Time      `json:"last_updated"`
}

// Registry is the in-memory, persisted map of agent_id -> Registration.
// Usable only after Initialize is called. All mutating operations
// serialize through a single mutex and persist before returning.
type Registry struct {
	mu          sync.RWMutex
	agents      map[string]Registration
	initialized bool

	store        *store.Store
	loadDefaults bool
	log          *logrus.Entry
}

// New constructs a Registry. Call Initialize before using it.
func New(s *store.Store, loadDefaults bool, log *logrus.Entry) *Registry {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		agents:       make(map[string]Registration),
		store:        s,
		loadDefaults: loadDefaults,
		log:          log,
	}
}

// Initialize loads persisted state if present; otherwise, if loadDefaults
// is set, populates the baked-in six-agent set and persists it; otherwise
// starts empty. Must be called exactly once before any other method.
func (r *Registry) Initialize() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var persisted persistedState
	found, err := store.LoadInto(r.store, StateKey, &persisted)
	if err != nil {
		return &Error{Code: errcode.RegistryLoadFailed, Message: err.Error()}
	}

	if found {
		for _, a := range persisted.Agents {
			r.agents[a.AgentID] = a
		}
		r.log.WithField("agent_count", len(r.agents)).Info("registry loaded from persistence")
	} else if r.loadDefaults {
		for _, a := range buildDefaultAgents() {
			r.agents[a.AgentID] = a
		}
		if err := r.saveLocked(); err != nil {
			return err
		}
		r.log.WithField("agent_count", len(r.agents)).Info("registry initialized with defaults")
	} else {
		r.log.Info("registry initialized empty")
	}

	r.initialized = true
	return nil
}

func (r *Registry) requireInitialized() error {
	if !r.initialized {
		return &Error{Code: errcode.RegistryLoadFailed, Message: "registry not initialized"}
	}
	return nil
}

func (r *Registry) saveLocked() error {
	agents := make([]Registration, 0, len(r.agents))
	for _, id := range sortedIDs(r.agents) {
		agents = append(agents, r.agents[id])
	}
	data := persistedState{
		Agents:      agents,
		AgentCount:  len(agents),
		LastUpdated: time.Now().UTC(),
	}
	if err := r.store.Save(StateKey, data); err != nil {
		return &Error{Code: errcode.RegistrySaveFailed, Message: err.Error()}
	}
	return nil
}

// Register adds a new agent. Fails with AlreadyRegistered if the id exists.
func (r *Registry) Register(agent Registration) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireInitialized(); err != nil {
		return Registration{}, err
	}
	if err := agent.Validate(); err != nil {
		return Registration{}, &Error{Code: errcode.RegistrationInvalid, AgentID: agent.AgentID, Message: err.Error()}
	}
	if _, exists := r.agents[agent.AgentID]; exists {
		return Registration{}, errAlreadyRegistered(agent.AgentID)
	}

	if agent.RegisteredAt.IsZero() {
		agent.RegisteredAt = time.Now().UTC()
	}
	r.agents[agent.AgentID] = agent
	if err := r.saveLocked(); err != nil {
		return Registration{}, err
	}
	return agent.clone(), nil
}

// Unregister removes an agent. Fails with NotFound if absent.
func (r *Registry) Unregister(agentID string) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireInitialized(); err != nil {
		return Registration{}, err
	}
	agent, ok := r.agents[agentID]
	if !ok {
		return Registration{}, errNotFound(agentID)
	}
	delete(r.agents, agentID)
	if err := r.saveLocked(); err != nil {
		return Registration{}, err
	}
	return agent.clone(), nil
}

// Get returns a copy of the registration for agentID. Fails with NotFound.
func (r *Registry) Get(agentID string) (Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireInitialized(); err != nil {
		return Registration{}, err
	}
	agent, ok := r.agents[agentID]
	if !ok {
		return Registration{}, errNotFound(agentID)
	}
	return agent.clone(), nil
}

// ListAll returns copies of every registration, sorted by agent id.
func (r *Registry) ListAll() ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireInitialized(); err != nil {
		return nil, err
	}
	out := make([]Registration, 0, len(r.agents))
	for _, id := range sortedIDs(r.agents) {
		out = append(out, r.agents[id].clone())
	}
	return out, nil
}

// SearchByDomain returns every registration in domain, sorted by agent id.
func (r *Registry) SearchByDomain(domain Domain) ([]Registration, error) {
	return r.search(func(a Registration) bool { return a.Domain == domain })
}

// SearchByCapability returns every registration declaring capabilityName.
func (r *Registry) SearchByCapability(capabilityName string) ([]Registration, error) {
	return r.search(func(a Registration) bool {
		for _, c := range a.Capabilities {
			if c.Name == capabilityName {
				return true
			}
		}
		return false
	})
}

// SearchByStatus returns every registration in the given status.
func (r *Registry) SearchByStatus(status Status) ([]Registration, error) {
	return r.search(func(a Registration) bool { return a.Status == status })
}

func (r *Registry) search(predicate func(Registration) bool) ([]Registration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireInitialized(); err != nil {
		return nil, err
	}
	out := make([]Registration, 0)
	for _, id := range sortedIDs(r.agents) {
		a := r.agents[id]
		if predicate(a) {
			out = append(out, a.clone())
		}
	}
	return out, nil
}

// UpdateStatus copy-on-write updates an agent's status (and, optionally,
// its last-health-check timestamp, defaulting to now).
func (r *Registry) UpdateStatus(agentID string, status Status, lastHealthCheck *time.Time) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireInitialized(); err != nil {
		return Registration{}, err
	}
	agent, ok := r.agents[agentID]
	if !ok {
		return Registration{}, errNotFound(agentID)
	}

	updated := agent.clone()
	updated.Status = status
	if lastHealthCheck != nil {
		t := *lastHealthCheck
		updated.LastHealthCheck = &t
	} else {
		now := time.Now().UTC()
		updated.LastHealthCheck = &now
	}

	r.agents[agentID] = updated
	if err := r.saveLocked(); err != nil {
		return Registration{}, err
	}
	return updated.clone(), nil
}

// UpdateMetadata copy-on-write updates an agent's metadata; merge=true
// shallow-merges into the existing map, else replaces it entirely.
func (r *Registry) UpdateMetadata(agentID string, metadata map[string]any, merge bool) (Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.requireInitialized(); err != nil {
		return Registration{}, err
	}
	agent, ok := r.agents[agentID]
	if !ok {
		return Registration{}, errNotFound(agentID)
	}

	updated := agent.clone()
	if merge {
		merged := make(map[string]any, len(updated.Metadata)+len(metadata))
		for k, v := range updated.Metadata {
			merged[k] = v
		}
		for k, v := range metadata {
			merged[k] = v
		}
		updated.Metadata = merged
	} else {
		newMeta := make(map[string]any, len(metadata))
		for k, v := range metadata {
			newMeta[k] = v
		}
		updated.Metadata = newMeta
	}

	r.agents[agentID] = updated
	if err := r.saveLocked(); err != nil {
		return Registration{}, err
	}
	return updated.clone(), nil
}

// GetCapabilitiesForDomain returns the flat, non-deduplicated list of
// every capability declared by any agent in domain.
func (r *Registry) GetCapabilitiesForDomain(domain Domain) ([]Capability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireInitialized(); err != nil {
		return nil, err
	}
	out := make([]Capability, 0)
	for _, id := range sortedIDs(r.agents) {
		a := r.agents[id]
		if a.Domain != domain {
			continue
		}
		out = append(out, a.Capabilities...)
	}
	return out, nil
}

// GetSummary returns aggregate counts across the registry.
func (r *Registry) GetSummary() (Summary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := r.requireInitialized(); err != nil {
		return Summary{}, err
	}

	byDomain := make(map[Domain]int)
	byStatus := make(map[Status]int)
	totalCaps := 0
	for _, a := range r.agents {
		byDomain[a.Domain]++
		byStatus[a.Status]++
		totalCaps += len(a.Capabilities)
	}

	return Summary{
		TotalAgents:       len(r.agents),
		AgentsByDomain:    byDomain,
		AgentsByStatus:    byStatus,
		TotalCapabilities: totalCaps,
		AgentIDs:          sortedIDs(r.agents),
	}, nil
}

// AgentCount returns the number of registered agents.
func (r *Registry) AgentCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}

// IsInitialized reports whether Initialize has completed.
func (r *Registry) IsInitialized() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.initialized
}
