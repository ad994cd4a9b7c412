// Package health implements the Health Checker: on-demand agent probes
// with TTL-cached results and a bounded, per-agent-plus-global rolling
// history, pushed back into the Agent Registry as status updates.
package health

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/store"
)

// HistoryKey is the persistence key health history is mirrored under.
const HistoryKey = "health-history"

// Result is the closed enumeration of health-probe outcomes.
type Result string

const (
	ResultHealthy     Result = "healthy"
	ResultDegraded    Result = "degraded"
	ResultUnhealthy   Result = "unhealthy"
	ResultUnreachable Result = "unreachable"
	ResultSkipped     Result = "skipped"
)

var resultToStatus = map[Result]registry.Status{
	ResultHealthy:     registry.StatusOnline,
	ResultDegraded:    registry.StatusDegraded,
	ResultUnhealthy:   registry.StatusOffline,
	ResultUnreachable: registry.StatusOffline,
	ResultSkipped:     registry.StatusMaintenance,
}

// Record is one health check execution.
type Record struct {
	AgentID         string    `json:"agent_id"`
	Result          Result    `json:"result"`
	ResponseTimeMs  float64   `json:"response_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
	Details         string    `json:"details"`
}

// Config tunes the checker's timeout, cache TTL, and history bounds.
type Config struct {
	CheckTimeoutSeconds float64
	CacheTTLSeconds     float64
	MaxHistoryPerAgent  int
	MaxTotalHistory     int
}

// DefaultConfig matches the original implementation's defaults.
func DefaultConfig() Config {
	return Config{
		CheckTimeoutSeconds: 10.0,
		CacheTTLSeconds:     60.0,
		MaxHistoryPerAgent:  100,
		MaxTotalHistory:     1000,
	}
}

type cachedResult struct {
	record   Record
	cachedAt time.Time
}

// Error is the health checker's typed error.
type Error struct {
	AgentID string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("health: %s: %s", e.AgentID, e.Message) }

// Checker monitors agent health via on-demand probes, TTL-caching
// results and maintaining bounded history.
type Checker struct {
	mu sync.Mutex

	registry *registry.Registry
	store    *store.Store
	config   Config
	log      *logrus.Entry

	cache   map[string]cachedResult
	history map[string][]Record
}

type persistedHistory struct {
	Agents      map[string][]Record `json:"agents"`
	LastUpdated time.Time           `json:"last_updated"`
}

// New constructs a Checker and loads any persisted history.
func New(reg *registry.Registry, s *store.Store, cfg Config, log *logrus.Entry) *Checker {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	c := &Checker{
		registry: reg,
		store:    s,
		config:   cfg,
		log:      log,
		cache:    make(map[string]cachedResult),
		history:  make(map[string][]Record),
	}
	c.loadHistory()
	return c
}

func (c *Checker) loadHistory() {
	var persisted persistedHistory
	found, err := store.LoadInto(c.store, HistoryKey, &persisted)
	if err != nil || !found {
		if err != nil {
			c.log.WithError(err).Warn("failed to parse health history, starting fresh")
		}
		return
	}
	c.history = persisted.Agents
	if c.history == nil {
		c.history = make(map[string][]Record)
	}
}

func (c *Checker) saveHistory() {
	data := persistedHistory{Agents: c.history, LastUpdated: time.Now().UTC()}
	if err := c.store.Save(HistoryKey, data); err != nil {
		c.log.WithError(err).Error("failed to save health history")
	}
}

func (c *Checker) appendHistory(r Record) {
	recs := append(c.history[r.AgentID], r)
	if len(recs) > c.config.MaxHistoryPerAgent {
		recs = recs[len(recs)-c.config.MaxHistoryPerAgent:]
	}
	c.history[r.AgentID] = recs

	total := 0
	for _, recs := range c.history {
		total += len(recs)
	}
	for total > c.config.MaxTotalHistory {
		oldestAgent := ""
		var oldestTime time.Time
		first := true
		for aid, recs := range c.history {
			if len(recs) == 0 {
				continue
			}
			if first || recs[0].Timestamp.Before(oldestTime) {
				oldestTime = recs[0].Timestamp
				oldestAgent = aid
				first = false
			}
		}
		if oldestAgent == "" {
			break
		}
		c.history[oldestAgent] = c.history[oldestAgent][1:]
		if len(c.history[oldestAgent]) == 0 {
			delete(c.history, oldestAgent)
		}
		total--
	}
}

func (c *Checker) isCacheValid(agentID string) bool {
	cached, ok := c.cache[agentID]
	if !ok {
		return false
	}
	return time.Since(cached.cachedAt).Seconds() < c.config.CacheTTLSeconds
}

// performCheck runs the registration-based probe documented in §4.3:
// declares an endpoint -> degraded; else has capabilities -> healthy;
// else -> unhealthy.
func performCheck(agent registry.Registration) Record {
	start := time.Now()
	now := time.Now().UTC()

	if agent.Endpoint != "" {
		return Record{
			AgentID:        agent.AgentID,
			Result:         ResultDegraded,
			ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
			Timestamp:      now,
			Details: fmt.Sprintf(
				"Agent declares endpoint at %s. Network connectivity check not yet implemented. "+
					"Marking as degraded until remote verification is available.", agent.Endpoint),
		}
	}

	if len(agent.Capabilities) == 0 {
		return Record{
			AgentID:        agent.AgentID,
			Result:         ResultUnhealthy,
			ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
			Timestamp:      now,
			Details:        "Agent has no capabilities declared.",
		}
	}

	return Record{
		AgentID:        agent.AgentID,
		Result:         ResultHealthy,
		ResponseTimeMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Timestamp:      now,
		Details:        fmt.Sprintf("Registration check passed. %d capabilities declared.", len(agent.Capabilities)),
	}
}

// CheckAgent probes a single agent, using the cache unless force is set.
func (c *Checker) CheckAgent(agentID string, force bool) (Record, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !force && c.isCacheValid(agentID) {
		return c.cache[agentID].record, nil
	}

	agent, err := c.registry.Get(agentID)
	if err != nil {
		return Record{}, err
	}

	record := performCheck(agent)
	c.cache[agentID] = cachedResult{record: record, cachedAt: time.Now()}

	newStatus, ok := resultToStatus[record.Result]
	if !ok {
		newStatus = registry.StatusOffline
	}
	ts := record.Timestamp
	if _, err := c.registry.UpdateStatus(agentID, newStatus, &ts); err != nil {
		return Record{}, err
	}

	c.appendHistory(record)
	c.saveHistory()

	c.log.WithField("agent_id", agentID).WithField("result", record.Result).
		WithField("new_status", newStatus).Info("health check completed")

	return record, nil
}

// CheckAll probes every registered agent.
func (c *Checker) CheckAll(force bool) ([]Record, error) {
	agents, err := c.registry.ListAll()
	if err != nil {
		return nil, err
	}
	results := make([]Record, 0, len(agents))
	for _, a := range agents {
		r, err := c.CheckAgent(a.AgentID, force)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Stats holds health statistics computed from an agent's history.
type Stats struct {
	TotalChecks        int            `json:"total_checks"`
	UptimePercentage   float64        `json:"uptime_percentage"`
	AvgResponseTimeMs  float64        `json:"avg_response_time_ms"`
	ResultDistribution map[Result]int `json:"result_distribution"`
}

func (c *Checker) computeStats(agentID string) Stats {
	records := c.history[agentID]
	if len(records) == 0 {
		return Stats{ResultDistribution: map[Result]int{}}
	}

	total := len(records)
	healthy := 0
	var sumResponse float64
	dist := make(map[Result]int)
	for _, r := range records {
		if r.Result == ResultHealthy {
			healthy++
		}
		sumResponse += r.ResponseTimeMs
		dist[r.Result]++
	}

	return Stats{
		TotalChecks:       total,
		UptimePercentage:  round2(float64(healthy) / float64(total) * 100),
		AvgResponseTimeMs: round2(sumResponse / float64(total)),
		ResultDistribution: dist,
	}
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// AgentHealth is the comprehensive per-agent health document.
type AgentHealth struct {
	AgentID         string     `json:"agent_id"`
	Name            string     `json:"name"`
	CurrentStatus   registry.Status `json:"current_status"`
	LastHealthCheck *time.Time `json:"last_health_check,omitempty"`
	LatestCheck     *Record    `json:"latest_check,omitempty"`
	Stats           Stats      `json:"health_stats"`
	HistoryCount    int        `json:"history_count"`
	Timestamp       time.Time  `json:"timestamp"`
}

// GetAgentHealth returns the comprehensive health document for one agent.
func (c *Checker) GetAgentHealth(agentID string) (AgentHealth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agent, err := c.registry.Get(agentID)
	if err != nil {
		return AgentHealth{}, err
	}

	history := c.history[agentID]
	var latest *Record
	if cached, ok := c.cache[agentID]; ok {
		r := cached.record
		latest = &r
	} else if len(history) > 0 {
		r := history[len(history)-1]
		latest = &r
	}

	return AgentHealth{
		AgentID:         agent.AgentID,
		Name:            agent.Name,
		CurrentStatus:   agent.Status,
		LastHealthCheck: agent.LastHealthCheck,
		LatestCheck:     latest,
		Stats:           c.computeStats(agentID),
		HistoryCount:    len(history),
		Timestamp:       time.Now().UTC(),
	}, nil
}

// AllHealthAgentSummary is one entry in the all-agents health summary.
type AllHealthAgentSummary struct {
	AgentID         string          `json:"agent_id"`
	Name            string          `json:"name"`
	Status          registry.Status `json:"status"`
	LastCheck       *Record         `json:"last_check,omitempty"`
	ChecksInHistory int             `json:"checks_in_history"`
}

// AllHealth is the summary document for every registered agent.
type AllHealth struct {
	Agents        []AllHealthAgentSummary `json:"agents"`
	TotalAgents   int                     `json:"total_agents"`
	StatusSummary map[registry.Status]int `json:"status_summary"`
	Timestamp     time.Time               `json:"timestamp"`
}

// GetAllHealth returns the health summary across every registered agent.
func (c *Checker) GetAllHealth() (AllHealth, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	agents, err := c.registry.ListAll()
	if err != nil {
		return AllHealth{}, err
	}

	summaries := make([]AllHealthAgentSummary, 0, len(agents))
	statusCounts := make(map[registry.Status]int)
	for _, a := range agents {
		history := c.history[a.AgentID]
		var latest *Record
		if cached, ok := c.cache[a.AgentID]; ok {
			r := cached.record
			latest = &r
		} else if len(history) > 0 {
			r := history[len(history)-1]
			latest = &r
		}
		summaries = append(summaries, AllHealthAgentSummary{
			AgentID:         a.AgentID,
			Name:            a.Name,
			Status:          a.Status,
			LastCheck:       latest,
			ChecksInHistory: len(history),
		})
		statusCounts[a.Status]++
	}

	return AllHealth{
		Agents:        summaries,
		TotalAgents:   len(agents),
		StatusSummary: statusCounts,
		Timestamp:     time.Now().UTC(),
	}, nil
}

// GetHistory returns up to limit of an agent's history records, newest first.
func (c *Checker) GetHistory(agentID string, limit int) []Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	records := c.history[agentID]
	start := 0
	if limit > 0 && limit < len(records) {
		start = len(records) - limit
	}
	recent := records[start:]

	out := make([]Record, len(recent))
	for i, r := range recent {
		out[len(recent)-1-i] = r
	}
	return out
}

// ClearCache clears the cached result for one agent, or for every agent
// when agentID is empty.
func (c *Checker) ClearCache(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if agentID != "" {
		delete(c.cache, agentID)
		return
	}
	c.cache = make(map[string]cachedResult)
}

// Config returns the checker's active configuration.
func (c *Checker) Config() Config { return c.config }
