package task

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/errcode"
	"github.com/itom-platform/orchestrator/internal/store"
)

// HistoryKey is the persistence key the executor's history is mirrored under.
const HistoryKey = "execution-history"

// ErrTimeout is returned by a DispatchHandler to signal the attempt timed
// out; the executor distinguishes it from every other dispatch error.
var ErrTimeout = errors.New("dispatch timed out")

// Error is the executor's typed error, carrying a stable ORCH_7xxx code.
type Error struct {
	Code    string
	TaskID  string
	Message string
}

func (e *Error) Error() string { return fmt.Sprintf("task %s: %s", e.TaskID, e.Message) }
func (e *Error) ErrorCode() string { return e.Code }

// DispatchHandler actually performs a routed task against a specific
// agent. It must enforce timeout itself and return ErrTimeout (or wrap it)
// if the deadline is exceeded; any other error is treated as a failed
// attempt eligible for retry.
type DispatchHandler func(ctx context.Context, t Task, agentID string, timeout time.Duration) (map[string]any, error)

// BackoffConfig tunes the executor's exponential backoff between attempts.
type BackoffConfig struct {
	Base   time.Duration
	Factor float64
	Cap    time.Duration
}

// DefaultBackoffConfig matches the original implementation's defaults.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{Base: time.Second, Factor: 2.0, Cap: 60 * time.Second}
}

func (b BackoffConfig) delay(attempt int) time.Duration {
	d := float64(b.Base) * math.Pow(b.Factor, float64(attempt-1))
	if cap := float64(b.Cap); d > cap {
		d = cap
	}
	return time.Duration(d)
}

// Config tunes executor-wide defaults.
type Config struct {
	DefaultTimeoutSeconds float64
	Backoff               BackoffConfig
	MaxHistoryRecords     int
}

// DefaultConfig matches SPEC_FULL.md §6.4's executor knobs.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutSeconds: 300.0,
		Backoff:               DefaultBackoffConfig(),
		MaxHistoryRecords:     500,
	}
}

// Executor dispatches routed tasks to a pluggable handler per agent id,
// enforcing timeout and exponential-backoff retries, and maintaining a
// bounded, persisted execution history plus a snapshot of active tasks.
type Executor struct {
	mu sync.Mutex

	handlers map[string]DispatchHandler
	history  []Record
	active   map[string]Task

	config Config
	store  *store.Store
	log    *logrus.Entry
}

type persistedHistory struct {
	Records     []Record  `json:"records"`
	LastUpdated time.Time `json:"last_updated"`
}

// New constructs an Executor and rehydrates history from persistence.
// Parse failures reset history to empty with a warning rather than
// aborting startup.
func New(s *store.Store, cfg Config, log *logrus.Entry) *Executor {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	e := &Executor{
		handlers: make(map[string]DispatchHandler),
		active:   make(map[string]Task),
		config:   cfg,
		store:    s,
		log:      log,
	}
	e.loadHistory()
	return e
}

func (e *Executor) loadHistory() {
	var persisted persistedHistory
	found, err := store.LoadInto(e.store, HistoryKey, &persisted)
	if err != nil {
		e.log.WithError(err).Warn("failed to parse execution history, starting fresh")
		e.history = nil
		return
	}
	if found {
		e.history = persisted.Records
	}
}

func (e *Executor) saveHistory() {
	data := persistedHistory{Records: e.history, LastUpdated: time.Now().UTC()}
	if err := e.store.Save(HistoryKey, data); err != nil {
		e.log.WithError(err).Error("failed to save execution history")
	}
}

func (e *Executor) appendRecord(r Record) {
	e.history = append(e.history, r)
	if len(e.history) > e.config.MaxHistoryRecords {
		excess := len(e.history) - e.config.MaxHistoryRecords
		e.history = e.history[excess:]
	}
	e.saveHistory()
}

// RegisterDispatchHandler wires a handler for agentID. Handlers should be
// registered before the first Execute call targeting that agent.
func (e *Executor) RegisterDispatchHandler(agentID string, handler DispatchHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[agentID] = handler
}

// ClearDispatchHandlers removes every registered handler (test teardown).
func (e *Executor) ClearDispatchHandlers() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = make(map[string]DispatchHandler)
}

func defaultAcknowledge(t Task, agentID string) map[string]any {
	return map[string]any{
		"dispatched_to":     agentID,
		"task_id":           t.TaskID,
		"task_title":        t.Title,
		"domain":            t.Domain,
		"acknowledged":      true,
		"dispatch_timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func (e *Executor) dispatch(ctx context.Context, t Task, agentID string, timeout time.Duration) (map[string]any, error) {
	e.mu.Lock()
	handler, ok := e.handlers[agentID]
	e.mu.Unlock()

	if !ok {
		return defaultAcknowledge(t, agentID), nil
	}
	return handler(ctx, t, agentID, timeout)
}

// Execute runs the full retry/backoff/timeout state machine for one task
// against the agent named by agentID (typically the result of routing).
// Every attempt, terminal or not, appends a Record and persists history.
func (e *Executor) Execute(ctx context.Context, t Task, agentID string) (Result, error) {
	if err := t.Validate(); err != nil {
		return Result{}, &Error{Code: errcode.TaskInvalid, TaskID: t.TaskID, Message: err.Error()}
	}

	e.mu.Lock()
	e.active[t.TaskID] = t
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, t.TaskID)
		e.mu.Unlock()
	}()

	timeout := time.Duration(t.TimeoutSeconds * float64(time.Second))
	if t.TimeoutSeconds <= 0 {
		timeout = time.Duration(e.config.DefaultTimeoutSeconds * float64(time.Second))
	}
	maxAttempts := t.MaxRetries + 1

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		startedAt := time.Now().UTC()
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		resultData, err := e.dispatch(attemptCtx, t, agentID, timeout)
		cancel()
		completedAt := time.Now().UTC()
		duration := completedAt.Sub(startedAt).Seconds()

		if err == nil {
			result := Result{
				TaskID:          t.TaskID,
				AgentID:         agentID,
				Status:          StatusCompleted,
				ResultData:      resultData,
				StartedAt:       startedAt,
				CompletedAt:     completedAt,
				DurationSeconds: duration,
			}
			e.mu.Lock()
			e.appendRecord(Record{
				TaskID: t.TaskID, AgentID: agentID, Attempt: attempt, Status: StatusCompleted,
				StartedAt: startedAt, CompletedAt: completedAt, DurationSeconds: duration,
				ResultSummary: resultData,
			})
			e.mu.Unlock()
			return result, nil
		}

		timedOut := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout)
		status := StatusFailed
		if timedOut {
			status = StatusTimedOut
		}
		lastErr = err

		e.mu.Lock()
		e.appendRecord(Record{
			TaskID: t.TaskID, AgentID: agentID, Attempt: attempt, Status: status,
			StartedAt: startedAt, CompletedAt: completedAt, DurationSeconds: duration,
			ErrorMessage: err.Error(),
		})
		e.mu.Unlock()

		if attempt == maxAttempts {
			if timedOut {
				return Result{}, &Error{Code: errcode.TaskTimeout, TaskID: t.TaskID, Message: err.Error()}
			}
			return Result{}, &Error{Code: errcode.TaskRetryExhausted, TaskID: t.TaskID, Message: err.Error()}
		}

		select {
		case <-ctx.Done():
			return Result{}, &Error{Code: errcode.TaskExecutionFailed, TaskID: t.TaskID, Message: ctx.Err().Error()}
		case <-time.After(e.config.Backoff.delay(attempt)):
		}
	}

	return Result{}, &Error{Code: errcode.TaskExecutionFailed, TaskID: t.TaskID, Message: lastErr.Error()}
}

// GetActiveTasks returns a snapshot of tasks currently inside Execute.
func (e *Executor) GetActiveTasks() map[string]Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]Task, len(e.active))
	for k, v := range e.active {
		out[k] = v
	}
	return out
}

// GetExecutionHistory returns up to limit records, optionally filtered to
// one task, newest first.
func (e *Executor) GetExecutionHistory(taskID string, limit int) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()

	var filtered []Record
	if taskID == "" {
		filtered = e.history
	} else {
		for _, r := range e.history {
			if r.TaskID == taskID {
				filtered = append(filtered, r)
			}
		}
	}

	start := 0
	if limit > 0 && limit < len(filtered) {
		start = len(filtered) - limit
	}
	recent := filtered[start:]
	out := make([]Record, len(recent))
	for i, r := range recent {
		out[len(recent)-1-i] = r
	}
	return out
}

// GetExecutionStats computes aggregate statistics from history.
func (e *Executor) GetExecutionStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	dist := make(map[Status]int)
	var totalDuration float64
	success := 0
	for _, r := range e.history {
		dist[r.Status]++
		totalDuration += r.DurationSeconds
		if r.Status == StatusCompleted {
			success++
		}
	}

	total := len(e.history)
	stats := Stats{
		Total:              total,
		StatusDistribution: dist,
		ActiveTasks:        len(e.active),
	}
	if total > 0 {
		stats.SuccessRate = float64(success) / float64(total) * 100
		stats.AvgDurationSeconds = totalDuration / float64(total)
	}
	return stats
}
