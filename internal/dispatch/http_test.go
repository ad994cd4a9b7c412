package dispatch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itom-platform/orchestrator/internal/task"
)

func TestNewHTTPHandlerPostsAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/dispatch", r.URL.Path)
		var body requestBody
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "t-1", body.TaskID)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"agent_response": "ok"})
	}))
	defer srv.Close()

	handler := NewHTTPHandler(srv.URL)
	tk := task.NewTask("t-1", "title", "desc")

	result, err := handler(context.Background(), tk, "cmdb-agent", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "ok", result["agent_response"])
}

func TestNewHTTPHandlerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	handler := NewHTTPHandler(srv.URL)
	tk := task.NewTask("t-2", "title", "desc")

	_, err := handler(context.Background(), tk, "cmdb-agent", 5*time.Second)
	require.Error(t, err)
}
