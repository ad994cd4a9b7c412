package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/itom-platform/orchestrator/internal/errcode"
	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/router"
	"github.com/itom-platform/orchestrator/internal/task"
)

// Engine executes WorkflowDefinitions step by step: it builds a
// dependency-ordered ready set each time Advance is called, dispatches
// each ready step (routed over the injected Registry and run by the
// injected Executor, or a default acknowledgment unless both are
// configured), and applies each step's on_failure policy.
type Engine struct {
	mu sync.Mutex

	executor *task.Executor
	registry *registry.Registry
	log      *logrus.Entry

	executions  map[string]*Execution
	definitions map[string]Definition
}

// New constructs an Engine. executor and reg may both be nil, in which
// case steps resolve to a default acknowledgment result instead of being
// dispatched to a real agent.
func New(executor *task.Executor, reg *registry.Registry, log *logrus.Entry) *Engine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Engine{
		executor:    executor,
		registry:    reg,
		log:         log,
		executions:  make(map[string]*Execution),
		definitions: make(map[string]Definition),
	}
}

// StartWorkflow validates def and creates a new Execution in the Running
// state with every step marked remaining.
func (e *Engine) StartWorkflow(def Definition, ctx map[string]any) (Execution, error) {
	if err := def.Validate(); err != nil {
		return Execution{}, &Error{Code: errcode.WorkflowDefinitionInvalid, Message: err.Error()}
	}

	stepIDs := make([]string, len(def.Steps))
	for i, s := range def.Steps {
		stepIDs[i] = s.StepID
	}
	if ctx == nil {
		ctx = make(map[string]any)
	}
	startedAt := time.Now().UTC()

	execution := &Execution{
		ExecutionID:    uuid.NewString(),
		WorkflowID:     def.WorkflowID,
		Status:         StatusRunning,
		StepsRemaining: stepIDs,
		StepResults:    make(map[string]task.Result),
		Context:        ctx,
		StartedAt:      &startedAt,
		Metadata:       make(map[string]any),
	}

	e.mu.Lock()
	e.executions[execution.ExecutionID] = execution
	e.definitions[execution.ExecutionID] = def
	e.mu.Unlock()

	e.log.WithField("execution_id", execution.ExecutionID).
		WithField("workflow_id", def.WorkflowID).
		WithField("step_count", len(stepIDs)).
		Info("workflow started")

	return *execution, nil
}

// GetReadySteps returns the step IDs whose dependencies are all in
// StepsCompleted, delegating readiness to the same DependencyGraph
// Definition.Validate uses for cycle detection.
func (e *Engine) GetReadySteps(execution Execution) []string {
	e.mu.Lock()
	def, ok := e.definitions[execution.ExecutionID]
	e.mu.Unlock()
	if !ok {
		return nil
	}

	ids := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		ids[s.StepID] = true
	}
	graph, err := def.buildGraph(ids)
	if err != nil {
		e.log.WithField("execution_id", execution.ExecutionID).WithError(err).
			Error("workflow definition failed dependency graph construction during advance")
		return nil
	}

	completed := make(map[string]bool, len(execution.StepsCompleted))
	for _, id := range execution.StepsCompleted {
		completed[id] = true
	}
	return graph.GetReadyNodes(completed)
}

// AdvanceWorkflow executes every currently ready step of execution and
// returns the updated state. Returns execution unchanged if it is not in
// a state from which advancement is valid (Running or StepCompleted).
func (e *Engine) AdvanceWorkflow(ctx context.Context, execution Execution) (Execution, error) {
	if execution.Status != StatusRunning && execution.Status != StatusStepCompleted {
		e.log.WithField("execution_id", execution.ExecutionID).
			WithField("status", execution.Status).
			Warn("cannot advance workflow in current state")
		return execution, nil
	}

	e.mu.Lock()
	def, ok := e.definitions[execution.ExecutionID]
	e.mu.Unlock()
	if !ok {
		execution.Status = StatusFailed
		execution.ErrorMessage = "workflow definition not found for execution"
		completedAt := time.Now().UTC()
		execution.CompletedAt = &completedAt
		return execution, nil
	}

	readyStepIDs := e.GetReadySteps(execution)
	if len(readyStepIDs) == 0 {
		if len(execution.StepsRemaining) == 0 {
			execution.Status = StatusCompleted
			completedAt := time.Now().UTC()
			execution.CompletedAt = &completedAt
			e.log.WithField("execution_id", execution.ExecutionID).Info("workflow completed")
		}
		e.persist(&execution)
		return execution, nil
	}

	stepMap := make(map[string]Step, len(def.Steps))
	for _, s := range def.Steps {
		stepMap[s.StepID] = s
	}

	for _, stepID := range readyStepIDs {
		step, ok := stepMap[stepID]
		if !ok {
			continue
		}

		execution.CurrentStepID = stepID
		execution.Status = StatusStepExecuting

		result, err := e.executeStep(ctx, step, execution)
		if err == nil {
			execution.StepResults[stepID] = result
			execution.StepsCompleted = append(execution.StepsCompleted, stepID)
			execution.StepsRemaining = removeString(execution.StepsRemaining, stepID)
			execution.CurrentStepID = ""
			execution.Status = StatusStepCompleted
			if result.ResultData != nil {
				execution.Context[stepID] = result.ResultData
			}
			e.log.WithField("execution_id", execution.ExecutionID).
				WithField("step_id", stepID).
				WithField("remaining", len(execution.StepsRemaining)).
				Info("workflow step completed")
			continue
		}

		e.log.WithField("execution_id", execution.ExecutionID).
			WithField("step_id", stepID).
			WithField("on_failure", step.OnFailure).
			WithError(err).Error("workflow step failed")

		switch step.OnFailure {
		case OnFailureSkip:
			now := time.Now().UTC()
			execution.StepResults[stepID] = task.Result{
				TaskID:          stepID,
				AgentID:         "workflow-engine",
				Status:          task.StatusFailed,
				ErrorMessage:    err.Error(),
				StartedAt:       now,
				CompletedAt:     now,
				DurationSeconds: 0,
			}
			execution.StepsCompleted = append(execution.StepsCompleted, stepID)
			execution.StepsRemaining = removeString(execution.StepsRemaining, stepID)
			execution.CurrentStepID = ""
			execution.Status = StatusStepCompleted
		case OnFailureRetry:
			// Leave the step in StepsRemaining and Status at StepExecuting.
			// The guard above only accepts Running/StepCompleted, so a later
			// AdvanceWorkflow call does not re-attempt it unless a later
			// step in this same sweep completes and sets Status back to
			// StepCompleted, or some other caller resets Status. This
			// matches original_source's own retry branch, which never
			// re-drives the step either -- the gap is carried over
			// unchanged, not fixed here.
		default:
			execution.Status = StatusFailed
			execution.ErrorMessage = fmt.Sprintf("step '%s' failed: %s", stepID, err.Error())
			completedAt := time.Now().UTC()
			execution.CompletedAt = &completedAt
			execution.CurrentStepID = ""
			e.persist(&execution)
			return execution, &Error{Code: errcode.StepFailed, ExecutionID: execution.ExecutionID, Message: execution.ErrorMessage}
		}
	}

	if len(execution.StepsRemaining) == 0 {
		execution.Status = StatusCompleted
		completedAt := time.Now().UTC()
		execution.CompletedAt = &completedAt
		e.log.WithField("execution_id", execution.ExecutionID).Info("workflow completed")
	}

	e.persist(&execution)
	return execution, nil
}

func (e *Engine) persist(execution *Execution) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executions[execution.ExecutionID] = execution
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, item := range items {
		if item != target {
			out = append(out, item)
		}
	}
	return out
}

// executeStep dispatches one step, either through a Router over the
// configured Registry plus the configured Executor or, unless both are
// wired, as a default
// acknowledgment -- matching the original engine's behavior before MCP
// transport is connected.
func (e *Engine) executeStep(ctx context.Context, step Step, execution Execution) (task.Result, error) {
	startedAt := time.Now().UTC()

	if e.executor != nil && e.registry != nil {
		params := make(map[string]any, len(step.Parameters)+len(execution.Context))
		for k, v := range step.Parameters {
			params[k] = v
		}
		for k, v := range execution.Context {
			params[k] = v
		}

		t := task.NewTask(
			fmt.Sprintf("%s-%s", execution.ExecutionID, step.StepID),
			step.Name,
			fmt.Sprintf("Workflow step: %s", step.Name),
		)
		t.Domain = step.AgentDomain
		t.TargetAgent = step.TargetAgent
		t.Parameters = params
		t.CreatedAt = startedAt
		t.TimeoutSeconds = step.TimeoutSeconds
		t.MaxRetries = step.MaxRetries

		r := router.New(e.registry, nil, router.Config{RequireAvailable: false}, e.log)
		decision, err := r.Route(t)
		if err != nil {
			return task.Result{}, err
		}
		return e.executor.Execute(ctx, t, decision.Agent.AgentID)
	}

	completedAt := time.Now().UTC()
	agentID := step.TargetAgent
	if agentID == "" {
		agentID = "workflow-engine"
	}
	return task.Result{
		TaskID:  step.StepID,
		AgentID: agentID,
		Status:  task.StatusCompleted,
		ResultData: map[string]any{
			"step_id":      step.StepID,
			"step_name":    step.Name,
			"agent_domain": step.AgentDomain,
			"parameters":   step.Parameters,
			"acknowledged": true,
		},
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		DurationSeconds: completedAt.Sub(startedAt).Seconds(),
	}, nil
}

// CancelWorkflow cancels a tracked execution.
func (e *Engine) CancelWorkflow(executionID string) (Execution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	execution, ok := e.executions[executionID]
	if !ok {
		return Execution{}, &Error{Code: errcode.WorkflowNotFound, ExecutionID: executionID, Message: fmt.Sprintf("execution %q not found", executionID)}
	}

	execution.Status = StatusCancelled
	completedAt := time.Now().UTC()
	execution.CompletedAt = &completedAt
	execution.CurrentStepID = ""

	e.log.WithField("execution_id", executionID).WithField("workflow_id", execution.WorkflowID).Info("workflow cancelled")
	return *execution, nil
}

// GetExecution looks up a tracked execution by ID.
func (e *Engine) GetExecution(executionID string) (Execution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	execution, ok := e.executions[executionID]
	if !ok {
		return Execution{}, false
	}
	return *execution, true
}

// ListExecutions returns every tracked execution, optionally filtered to
// one status.
func (e *Engine) ListExecutions(status Status) []Execution {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Execution, 0, len(e.executions))
	for _, execution := range e.executions {
		if status != "" && execution.Status != status {
			continue
		}
		out = append(out, *execution)
	}
	return out
}
