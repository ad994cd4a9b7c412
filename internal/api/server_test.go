package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itom-platform/orchestrator/internal/clarification"
	"github.com/itom-platform/orchestrator/internal/health"
	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/router"
	"github.com/itom-platform/orchestrator/internal/store"
	"github.com/itom-platform/orchestrator/internal/task"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	st, err := store.New(t.TempDir(), nil)
	require.NoError(t, err)

	reg := registry.New(st, true, nil)
	require.NoError(t, reg.Initialize())

	healthChecker := health.New(reg, st, health.DefaultConfig(), nil)
	taskRouter := router.New(reg, nil, router.DefaultConfig(), nil)
	executor := task.New(st, task.DefaultConfig(), nil)

	cfg := DefaultServerConfig()
	cfg.Port = 0
	return NewServer(cfg, Deps{
		Registry:       reg,
		Health:         healthChecker,
		Router:         taskRouter,
		Executor:       executor,
		Clarifications: clarification.New(),
	}, nil)
}

func doRequest(s *Server, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestGetOrchestratorHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAgentsStatus(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/agents/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAgentNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/agents/nonexistent", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAgentFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/agents/cmdb-agent", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetAgentHealth(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodGet, "/api/agents/cmdb-agent/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatEmptyMessageRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/chat", ChatRequest{Message: "   "})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestChatInvalidDomainRejected(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/chat", ChatRequest{Message: "hello", Domain: "not-a-domain"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatExplicitTargetRoutesAndExecutes(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/chat", ChatRequest{
		Message:     "show me server health",
		TargetAgent: "cmdb-agent",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cmdb-agent", resp.AgentID)
	assert.Equal(t, "success", resp.Status)
}

func TestChatAmbiguousReturnsClarification(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/chat", ChatRequest{
		Message: "run a discovery scan for server health dashboard",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ClarificationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "clarification", resp.ResponseType)
	assert.NotEmpty(t, resp.PendingMessageToken)
}

func TestChatClarifyResolvesPending(t *testing.T) {
	s := newTestServer(t)
	s.clarifications.Put("tok-123", "search for stuff", "session-1")

	rec := doRequest(s, http.MethodPost, "/api/chat/clarify", map[string]any{
		"pending_message_token": "tok-123",
		"domain":                "cmdb",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, "session-1", resp.SessionID)
}

func TestChatClarifyUnknownTokenNotFound(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(s, http.MethodPost, "/api/chat/clarify", map[string]any{
		"pending_message_token": "ghost",
		"domain":                "cmdb",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
