// Package dispatch builds task.DispatchHandlers that forward routed tasks
// to real downstream ITOM agents over HTTP, grounded on
// original_source/agent_dispatch.py's register_all_handlers /
// _make_cmdb_handler: one handler per configured agent endpoint, posting
// the task payload and returning its parsed JSON result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/itom-platform/orchestrator/internal/task"
)

type requestBody struct {
	TaskID      string         `json:"task_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// NewHTTPHandler builds a DispatchHandler that POSTs the task to
// baseURL + "/dispatch" as JSON and decodes the agent's JSON response body
// into the result map the TaskExecutor persists as ResultData. It honors
// the timeout the executor passes in, mirroring agent_dispatch.py's
// per-call timeout on the MCP client.
func NewHTTPHandler(baseURL string) task.DispatchHandler {
	return func(ctx context.Context, t task.Task, agentID string, timeout time.Duration) (map[string]any, error) {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		payload, err := json.Marshal(requestBody{
			TaskID:      t.TaskID,
			Title:       t.Title,
			Description: t.Description,
			Parameters:  t.Parameters,
		})
		if err != nil {
			return nil, fmt.Errorf("marshal dispatch payload: %w", err)
		}

		url := baseURL + "/dispatch"
		req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build dispatch request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			if reqCtx.Err() != nil {
				return nil, task.ErrTimeout
			}
			return nil, fmt.Errorf("dispatch to %s: %w", agentID, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read dispatch response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("agent %s returned status %d: %s", agentID, resp.StatusCode, string(body))
		}

		var result map[string]any
		if len(body) > 0 {
			if err := json.Unmarshal(body, &result); err != nil {
				return nil, fmt.Errorf("decode dispatch response: %w", err)
			}
		}
		return result, nil
	}
}
