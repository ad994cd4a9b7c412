package task

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itom-platform/orchestrator/internal/store"
)

func newTestExecutor(t *testing.T, cfg Config) *Executor {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "state"), nil)
	require.NoError(t, err)
	return New(s, cfg, nil)
}

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.Backoff = BackoffConfig{Base: time.Millisecond, Factor: 1, Cap: time.Millisecond}
	return cfg
}

func TestExecuteSuccessOnFirstAttempt(t *testing.T) {
	e := newTestExecutor(t, fastConfig())
	tsk := NewTask("t1", "title", "desc")
	tsk.MaxRetries = 2

	e.RegisterDispatchHandler("agent-a", func(ctx context.Context, tk Task, agentID string, timeout time.Duration) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	result, err := e.Execute(context.Background(), tsk, "agent-a")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Len(t, e.GetExecutionHistory("", 0), 1)
}

func TestExecuteNoHandlerSelfAcknowledges(t *testing.T) {
	e := newTestExecutor(t, fastConfig())
	tsk := NewTask("t2", "title", "desc")

	result, err := e.Execute(context.Background(), tsk, "unregistered-agent")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, result.Status)
	assert.Equal(t, true, result.ResultData["acknowledged"])
}

func TestExecuteRetryExhaustion(t *testing.T) {
	e := newTestExecutor(t, fastConfig())
	tsk := NewTask("t3", "title", "desc")
	tsk.MaxRetries = 2

	calls := 0
	e.RegisterDispatchHandler("agent-b", func(ctx context.Context, tk Task, agentID string, timeout time.Duration) (map[string]any, error) {
		calls++
		return nil, errors.New("boom")
	})

	_, err := e.Execute(context.Background(), tsk, "agent-b")
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "ORCH_7004", execErr.ErrorCode())

	history := e.GetExecutionHistory(tsk.TaskID, 0)
	require.Len(t, history, 3)
	for _, r := range history {
		assert.Equal(t, StatusFailed, r.Status)
	}
}

func TestExecuteTimeout(t *testing.T) {
	e := newTestExecutor(t, fastConfig())
	tsk := NewTask("t4", "title", "desc")
	tsk.MaxRetries = 0

	e.RegisterDispatchHandler("agent-c", func(ctx context.Context, tk Task, agentID string, timeout time.Duration) (map[string]any, error) {
		return nil, ErrTimeout
	})

	_, err := e.Execute(context.Background(), tsk, "agent-c")
	require.Error(t, err)
	var execErr *Error
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "ORCH_7002", execErr.ErrorCode())
}

func TestActiveTasksClearedOnExit(t *testing.T) {
	e := newTestExecutor(t, fastConfig())
	tsk := NewTask("t5", "title", "desc")
	e.RegisterDispatchHandler("agent-d", func(ctx context.Context, tk Task, agentID string, timeout time.Duration) (map[string]any, error) {
		assert.Len(t, e.GetActiveTasks(), 1)
		return map[string]any{}, nil
	})

	_, err := e.Execute(context.Background(), tsk, "agent-d")
	require.NoError(t, err)
	assert.Empty(t, e.GetActiveTasks())
}

func TestHistoryCapEvictsOldest(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxHistoryRecords = 2
	e := newTestExecutor(t, cfg)
	e.RegisterDispatchHandler("agent-e", func(ctx context.Context, tk Task, agentID string, timeout time.Duration) (map[string]any, error) {
		return map[string]any{}, nil
	})

	for i := 0; i < 5; i++ {
		tsk := NewTask(string(rune('a'+i)), "title", "desc")
		_, err := e.Execute(context.Background(), tsk, "agent-e")
		require.NoError(t, err)
	}
	assert.Len(t, e.GetExecutionHistory("", 0), 2)
}

func TestGetExecutionStats(t *testing.T) {
	e := newTestExecutor(t, fastConfig())
	e.RegisterDispatchHandler("agent-f", func(ctx context.Context, tk Task, agentID string, timeout time.Duration) (map[string]any, error) {
		return map[string]any{}, nil
	})
	tsk := NewTask("stat-1", "title", "desc")
	_, err := e.Execute(context.Background(), tsk, "agent-f")
	require.NoError(t, err)

	stats := e.GetExecutionStats()
	assert.Equal(t, 1, stats.Total)
	assert.Equal(t, 100.0, stats.SuccessRate)
}
