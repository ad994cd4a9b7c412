package workflow

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDefinition() Definition {
	return Definition{
		WorkflowID:  "wf-1",
		Name:        "sample",
		Description: "sample workflow",
		Version:     "1.0.0",
		CreatedAt:   time.Now().UTC(),
		Metadata:    map[string]any{},
		Steps: []Step{
			{StepID: "a", Name: "step a", StepType: StepTypeTask, OnFailure: OnFailureStop, TimeoutSeconds: 30, Parameters: map[string]any{}},
			{StepID: "b", Name: "step b", StepType: StepTypeTask, OnFailure: OnFailureStop, TimeoutSeconds: 30, DependsOn: []string{"a"}, Parameters: map[string]any{}},
			{StepID: "c", Name: "step c", StepType: StepTypeTask, OnFailure: OnFailureStop, TimeoutSeconds: 30, DependsOn: []string{"a"}, Parameters: map[string]any{}},
		},
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	def := sampleDefinition()
	def.Steps[0].DependsOn = []string{"b"}
	err := def.Validate()
	require.Error(t, err)
}

func TestValidateDetectsUnknownDependency(t *testing.T) {
	def := sampleDefinition()
	def.Steps[1].DependsOn = []string{"ghost"}
	err := def.Validate()
	require.Error(t, err)
}

func TestValidateDetectsDuplicateStepID(t *testing.T) {
	def := sampleDefinition()
	def.Steps = append(def.Steps, Step{StepID: "a", Name: "dup", OnFailure: OnFailureStop, TimeoutSeconds: 1})
	err := def.Validate()
	require.Error(t, err)
}

func TestStartWorkflowWithoutExecutorAcknowledges(t *testing.T) {
	e := New(nil, nil, nil)
	def := sampleDefinition()

	execution, err := e.StartWorkflow(def, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, execution.Status)
	assert.Len(t, execution.StepsRemaining, 3)

	ctx := context.Background()
	for execution.Status != StatusCompleted {
		execution, err = e.AdvanceWorkflow(ctx, execution)
		require.NoError(t, err)
	}

	assert.Len(t, execution.StepsCompleted, 3)
	assert.Empty(t, execution.StepsRemaining)
	for _, id := range []string{"a", "b", "c"} {
		result, ok := execution.StepResults[id]
		require.True(t, ok)
		assert.Equal(t, true, result.ResultData["acknowledged"])
	}
}

func TestAdvanceRespectsDependencyOrder(t *testing.T) {
	e := New(nil, nil, nil)
	def := sampleDefinition()
	execution, err := e.StartWorkflow(def, nil)
	require.NoError(t, err)

	ready := e.GetReadySteps(execution)
	assert.Equal(t, []string{"a"}, ready)

	execution, err = e.AdvanceWorkflow(context.Background(), execution)
	require.NoError(t, err)
	assert.Contains(t, execution.StepsCompleted, "a")

	ready = e.GetReadySteps(execution)
	assert.ElementsMatch(t, []string{"b", "c"}, ready)
}

func TestCancelWorkflow(t *testing.T) {
	e := New(nil, nil, nil)
	def := sampleDefinition()
	execution, err := e.StartWorkflow(def, nil)
	require.NoError(t, err)

	cancelled, err := e.CancelWorkflow(execution.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelWorkflowNotFound(t *testing.T) {
	e := New(nil, nil, nil)
	_, err := e.CancelWorkflow("nonexistent")
	require.Error(t, err)
}

func TestCheckpointSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewCheckpointer(dir, nil)
	require.NoError(t, err)

	e := New(nil, nil, nil)
	def := sampleDefinition()
	execution, err := e.StartWorkflow(def, nil)
	require.NoError(t, err)

	_, err = cp.Save(execution)
	require.NoError(t, err)

	loaded, ok := cp.Load(execution.ExecutionID)
	require.True(t, ok)
	assert.Equal(t, execution.ExecutionID, loaded.ExecutionID)
	assert.Equal(t, execution.WorkflowID, loaded.WorkflowID)
}

func TestCheckpointLoadMissingReturnsFalse(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewCheckpointer(dir, nil)
	require.NoError(t, err)

	_, ok := cp.Load("nope")
	assert.False(t, ok)
}

func TestCheckpointListAndDelete(t *testing.T) {
	dir := t.TempDir()
	cp, err := NewCheckpointer(dir, nil)
	require.NoError(t, err)

	e := New(nil, nil, nil)
	execution, err := e.StartWorkflow(sampleDefinition(), nil)
	require.NoError(t, err)
	_, err = cp.Save(execution)
	require.NoError(t, err)

	ids, err := cp.ListCheckpoints()
	require.NoError(t, err)
	assert.Contains(t, ids, execution.ExecutionID)

	assert.True(t, cp.Delete(execution.ExecutionID))
	assert.False(t, cp.Delete(execution.ExecutionID))
}

func TestCheckpointDirIsolated(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCheckpointer(dir, nil)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dir, "workflows"))
}
