// Package task implements the Task Executor: a retry/backoff/timeout
// state machine driving a pluggable dispatch callback, with bounded,
// persisted execution history and active-task tracking.
package task

import (
	"fmt"
	"time"
)

// Priority is the closed enumeration of task priorities.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Status is the closed enumeration of task lifecycle states.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRouted    Status = "routed"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
	StatusTimedOut  Status = "timed_out"
)

// IsTerminal reports whether status is one of the three result statuses a
// TaskResult may carry.
func IsTerminal(s Status) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusTimedOut
}

// Task is one unit of work submitted to the orchestrator.
type Task struct {
	TaskID         string         `json:"task_id"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Domain         string         `json:"domain,omitempty"`
	TargetAgent    string         `json:"target_agent,omitempty"`
	Priority       Priority       `json:"priority"`
	Status         Status         `json:"status"`
	Parameters     map[string]any `json:"parameters"`
	CreatedAt      time.Time      `json:"created_at"`
	TimeoutSeconds float64        `json:"timeout_seconds"`
	RetryCount     int            `json:"retry_count"`
	MaxRetries     int            `json:"max_retries"`
	Metadata       map[string]any `json:"metadata"`
}

// Validate enforces the Task invariants from SPEC_FULL.md §3:
// task_id non-empty, timeout_seconds > 0, retry_count <= max_retries.
func (t Task) Validate() error {
	if t.TaskID == "" {
		return fmt.Errorf("task_id must not be empty")
	}
	if t.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive")
	}
	if t.RetryCount > t.MaxRetries {
		return fmt.Errorf("retry_count (%d) must not exceed max_retries (%d)", t.RetryCount, t.MaxRetries)
	}
	return nil
}

// NewTask constructs a Task with the defaults timeout_seconds=300,
// max_retries=3, priority=medium.
func NewTask(taskID, title, description string) Task {
	return Task{
		TaskID:         taskID,
		Title:          title,
		Description:    description,
		Priority:       PriorityMedium,
		Status:         StatusPending,
		Parameters:     make(map[string]any),
		CreatedAt:      time.Now().UTC(),
		TimeoutSeconds: 300.0,
		MaxRetries:     3,
		Metadata:       make(map[string]any),
	}
}

// Result is the terminal outcome of one execute() call.
type Result struct {
	TaskID          string         `json:"task_id"`
	AgentID         string         `json:"agent_id"`
	Status          Status         `json:"status"`
	ResultData      map[string]any `json:"result_data,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	DurationSeconds float64        `json:"duration_seconds"`
}

// Validate enforces the TaskResult invariants: terminal status,
// completed_at >= started_at, duration_seconds >= 0.
func (r Result) Validate() error {
	if !IsTerminal(r.Status) {
		return fmt.Errorf("result status %q is not terminal", r.Status)
	}
	if r.CompletedAt.Before(r.StartedAt) {
		return fmt.Errorf("completed_at must not precede started_at")
	}
	if r.DurationSeconds < 0 {
		return fmt.Errorf("duration_seconds must not be negative")
	}
	return nil
}

// Record is one append-only execution history entry.
type Record struct {
	TaskID          string         `json:"task_id"`
	AgentID         string         `json:"agent_id"`
	Attempt         int            `json:"attempt"`
	Status          Status         `json:"status"`
	StartedAt       time.Time      `json:"started_at"`
	CompletedAt     time.Time      `json:"completed_at"`
	DurationSeconds float64        `json:"duration_seconds"`
	RoutingMethod   string         `json:"routing_method,omitempty"`
	ErrorMessage    string         `json:"error_message,omitempty"`
	ResultSummary   map[string]any `json:"result_summary,omitempty"`
}

// Stats is the executor's derived statistics document.
type Stats struct {
	Total             int            `json:"total"`
	SuccessRate       float64        `json:"success_rate"`
	AvgDurationSeconds float64       `json:"avg_duration_seconds"`
	StatusDistribution map[Status]int `json:"status_distribution"`
	ActiveTasks       int            `json:"active_tasks"`
}
