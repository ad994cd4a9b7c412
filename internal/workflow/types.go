// Package workflow implements the Workflow Engine: multi-step,
// multi-agent DAG execution with dependency ordering, per-step failure
// policy, and checkpointed execution state.
package workflow

import (
	"fmt"
	"time"

	"github.com/itom-platform/orchestrator/internal/orchestration"
	"github.com/itom-platform/orchestrator/internal/task"
)

// StepType determines how the engine executes a step.
type StepType string

const (
	StepTypeTask        StepType = "task"
	StepTypeConditional StepType = "conditional"
	StepTypeParallel    StepType = "parallel"
)

// Status is the closed enumeration of workflow execution lifecycle states.
type Status string

const (
	StatusPending       Status = "pending"
	StatusRunning       Status = "running"
	StatusStepExecuting Status = "step_executing"
	StatusStepCompleted Status = "step_completed"
	StatusPaused        Status = "paused"
	StatusFailed        Status = "failed"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// OnFailure is a step's failure-handling policy.
type OnFailure string

const (
	OnFailureStop  OnFailure = "stop"
	OnFailureSkip  OnFailure = "skip"
	OnFailureRetry OnFailure = "retry"
)

// Step is a single node in a WorkflowDefinition's step DAG.
type Step struct {
	StepID         string         `json:"step_id"`
	Name           string         `json:"name"`
	StepType       StepType       `json:"step_type"`
	AgentDomain    string         `json:"agent_domain,omitempty"`
	TargetAgent    string         `json:"target_agent,omitempty"`
	Parameters     map[string]any `json:"parameters"`
	DependsOn      []string       `json:"depends_on"`
	TimeoutSeconds float64        `json:"timeout_seconds"`
	OnFailure      OnFailure      `json:"on_failure"`
	MaxRetries     int            `json:"max_retries"`
}

// Validate enforces the WorkflowStep invariants: non-empty step_id,
// on_failure in {stop, skip, retry}, timeout_seconds > 0.
func (s Step) Validate() error {
	if s.StepID == "" {
		return fmt.Errorf("step_id must not be empty")
	}
	switch s.OnFailure {
	case OnFailureStop, OnFailureSkip, OnFailureRetry:
	default:
		return fmt.Errorf("on_failure must be one of stop/skip/retry, got %q", s.OnFailure)
	}
	if s.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %v", s.TimeoutSeconds)
	}
	return nil
}

// Definition is a reusable workflow template: an ordered, validated set
// of steps with unique IDs and acyclic depends_on references.
type Definition struct {
	WorkflowID  string         `json:"workflow_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Version     string         `json:"version"`
	Steps       []Step         `json:"steps"`
	CreatedAt   time.Time      `json:"created_at"`
	Metadata    map[string]any `json:"metadata"`
}

// Validate enforces WorkflowDefinition invariants: non-empty workflow_id,
// at least one step, unique step IDs, depends_on references resolve to
// valid (and distinct) step IDs within the workflow, and the resulting
// dependency graph is acyclic.
func (d Definition) Validate() error {
	if d.WorkflowID == "" {
		return fmt.Errorf("workflow_id must not be empty")
	}
	if len(d.Steps) == 0 {
		return fmt.Errorf("workflow must have at least one step")
	}

	ids := make(map[string]bool, len(d.Steps))
	for _, step := range d.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("step %q: %w", step.StepID, err)
		}
		if ids[step.StepID] {
			return fmt.Errorf("duplicate step_id: %q", step.StepID)
		}
		ids[step.StepID] = true
	}

	graph, err := d.buildGraph(ids)
	if err != nil {
		return err
	}
	if err := graph.ValidateAcyclic(); err != nil {
		return fmt.Errorf("workflow %q: %w", d.WorkflowID, err)
	}

	return nil
}

// buildGraph builds the step dependency graph, validating that every
// DependsOn entry names a real, non-self step ID. ids maps each step's
// StepID to true and is assumed already populated by the caller.
func (d Definition) buildGraph(ids map[string]bool) (*orchestration.DependencyGraph, error) {
	graph := orchestration.NewDependencyGraph()
	for _, step := range d.Steps {
		graph.AddNode(step.StepID)
	}
	for _, step := range d.Steps {
		for _, dep := range step.DependsOn {
			if dep == step.StepID {
				return nil, fmt.Errorf("step %q depends on itself (circular dependency)", step.StepID)
			}
			if !ids[dep] {
				return nil, fmt.Errorf("step %q depends on %q, which is not a valid step ID in this workflow", step.StepID, dep)
			}
			if err := graph.AddEdge(dep, step.StepID); err != nil {
				return nil, err
			}
		}
	}
	return graph, nil
}

// Execution is a running (or finished) instance of a Definition.
type Execution struct {
	ExecutionID    string                 `json:"execution_id"`
	WorkflowID     string                 `json:"workflow_id"`
	Status         Status                 `json:"status"`
	CurrentStepID  string                 `json:"current_step_id,omitempty"`
	StepsCompleted []string               `json:"steps_completed"`
	StepsRemaining []string               `json:"steps_remaining"`
	StepResults    map[string]task.Result `json:"step_results"`
	Context        map[string]any         `json:"context"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]any         `json:"metadata"`
}

// Error is the workflow engine's typed error, carrying a stable
// ORCH_3xxx code.
type Error struct {
	Code        string
	ExecutionID string
	Message     string
}

func (e *Error) Error() string     { return fmt.Sprintf("[%s] %s", e.Code, e.Message) }
func (e *Error) ErrorCode() string { return e.Code }
