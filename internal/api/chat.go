package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/itom-platform/orchestrator/internal/registry"
	"github.com/itom-platform/orchestrator/internal/router"
	"github.com/itom-platform/orchestrator/internal/task"
)

// ChatRequest is the incoming chat message from the ITOM chat UI.
type ChatRequest struct {
	Message     string         `json:"message"`
	TargetAgent string         `json:"target_agent,omitempty"`
	Domain      string         `json:"domain,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
	SessionID   string         `json:"session_id,omitempty"`
}

// ChatResponse is returned once a chat message has been routed and executed.
type ChatResponse struct {
	MessageID     string         `json:"message_id"`
	Status        string         `json:"status"`
	AgentID       string         `json:"agent_id"`
	AgentName     string         `json:"agent_name"`
	Domain        string         `json:"domain"`
	Response      map[string]any `json:"response"`
	RoutingMethod string         `json:"routing_method"`
	Timestamp     string         `json:"timestamp"`
	SessionID     string         `json:"session_id,omitempty"`
}

// ClarificationResponse is returned instead of a ChatResponse when the
// router cannot disambiguate which domain should handle the message.
type ClarificationResponse struct {
	MessageID           string   `json:"message_id"`
	ResponseType        string   `json:"response_type"`
	Question            string   `json:"question"`
	Options             []string `json:"options"`
	PendingMessageToken string   `json:"pending_message_token"`
	SessionID           string   `json:"session_id,omitempty"`
	Timestamp           string   `json:"timestamp"`
}

// chatMessageTask builds the Task a chat message is routed and executed
// as, grounded on original_source/api/chat.py's process_chat_message:
// a shortened title, a 30s timeout, a single retry, and parameters
// carrying the session/context/full message for agent-side use.
func chatMessageTask(taskID, message, domain, targetAgent, sessionID string, ctx map[string]any) task.Task {
	title := message
	if len(title) > 100 {
		title = title[:100]
	}
	if ctx == nil {
		ctx = map[string]any{}
	}

	t := task.NewTask(taskID, title, message)
	t.Domain = domain
	t.TargetAgent = targetAgent
	t.TimeoutSeconds = 30.0
	t.MaxRetries = 1
	t.Parameters = map[string]any{
		"source":       "chat-ui",
		"session_id":   sessionID,
		"context":      ctx,
		"full_message": message,
	}
	return t
}

// processChatMessage handles POST /api/chat: build a Task from the chat
// request, pre-check for routing ambiguity, and either return a
// clarification prompt or route+execute and return the agent's response.
func (s *Server) processChatMessage(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body", err.Error())
		return
	}

	message := strings.TrimSpace(req.Message)
	if message == "" {
		ValidationError(c, "chat message must not be empty", nil)
		return
	}

	if req.Domain != "" && !registry.Domain(req.Domain).Valid() {
		BadRequestError(c, fmt.Sprintf("invalid domain %q", req.Domain), nil)
		return
	}

	taskID := fmt.Sprintf("chat-%s", uuid.New().String()[:12])
	t := chatMessageTask(taskID, message, req.Domain, req.TargetAgent, req.SessionID, req.Context)

	s.log.WithField("task_id", taskID).
		WithField("domain", req.Domain).
		WithField("target_agent", req.TargetAgent).
		WithField("message_length", len(message)).
		Info("processing chat message")

	if clar := s.routerEngine.DetectAmbiguity(t); clar != nil {
		token := uuid.New().String()
		s.clarifications.Put(token, message, req.SessionID)

		s.log.WithField("task_id", taskID).
			WithField("competing_domains", clar.CompetingDomains).
			WithField("pending_token", token).
			Info("returning clarification request")

		c.JSON(http.StatusOK, ClarificationResponse{
			MessageID:           taskID,
			ResponseType:        "clarification",
			Question:            clar.Question,
			Options:             clar.Options,
			PendingMessageToken: token,
			SessionID:           req.SessionID,
			Timestamp:           time.Now().UTC().Format(time.RFC3339),
		})
		return
	}

	s.routeAndExecute(c, t, req.SessionID)
}

// processClarifiedMessage handles POST /api/chat/clarify. It has no
// original_source counterpart -- chat.py stores pending clarifications but
// never defines a resolver -- so this is authored from the data already
// required by the Pending Clarification Store: it resolves the token back
// to the original message, re-applies the user's chosen domain/agent, and
// routes the message again with ambiguity bypassed.
func (s *Server) processClarifiedMessage(c *gin.Context) {
	var req struct {
		PendingMessageToken string `json:"pending_message_token"`
		TargetAgent         string `json:"target_agent,omitempty"`
		Domain              string `json:"domain,omitempty"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestError(c, "invalid request body", err.Error())
		return
	}
	if strings.TrimSpace(req.PendingMessageToken) == "" {
		BadRequestError(c, "pending_message_token must not be empty", nil)
		return
	}
	if req.TargetAgent == "" && req.Domain == "" {
		BadRequestError(c, "one of target_agent or domain must be provided to resolve a clarification", nil)
		return
	}
	if req.Domain != "" && !registry.Domain(req.Domain).Valid() {
		BadRequestError(c, fmt.Sprintf("invalid domain %q", req.Domain), nil)
		return
	}

	pending, ok := s.clarifications.Resolve(req.PendingMessageToken)
	if !ok {
		NotFoundError(c, "pending clarification not found or already resolved")
		return
	}

	taskID := fmt.Sprintf("chat-%s", uuid.New().String()[:12])
	t := chatMessageTask(taskID, pending.OriginalMessage, req.Domain, req.TargetAgent, pending.SessionID, nil)

	s.log.WithField("task_id", taskID).
		WithField("pending_token", req.PendingMessageToken).
		WithField("resolved_domain", req.Domain).
		WithField("resolved_target_agent", req.TargetAgent).
		Info("resolving clarified chat message")

	s.routeAndExecute(c, t, pending.SessionID)
}

// routeAndExecute routes t (ambiguity already resolved or bypassed),
// executes it, and writes the ChatResponse, or a 502 on NoRoute /
// AgentUnavailable per SPEC_FULL.md §6.2.
func (s *Server) routeAndExecute(c *gin.Context, t task.Task, sessionID string) {
	decision, err := s.routerEngine.Route(t)
	if err != nil {
		s.log.WithError(err).WithField("task_id", t.TaskID).Warn("chat message routing failed")
		BadGatewayError(c, err)
		return
	}

	result, err := s.executor.Execute(c.Request.Context(), t, decision.Agent.AgentID)
	if err != nil {
		s.log.WithError(err).WithField("task_id", t.TaskID).Error("chat message execution failed")
		CodedErrorResponse(c, http.StatusInternalServerError, err)
		return
	}

	resp := ChatResponse{
		MessageID: t.TaskID,
		Status:    "success",
		AgentID:   decision.Agent.AgentID,
		AgentName: decision.Agent.Name,
		Domain:    string(decision.Agent.Domain),
		Response: map[string]any{
			"task_id": t.TaskID,
			"result":  result.ResultData,
			"routing": map[string]any{
				"method": decision.Method,
				"reason": decision.Reason,
			},
		},
		RoutingMethod: decision.Method,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		SessionID:     sessionID,
	}

	s.log.WithField("task_id", t.TaskID).
		WithField("agent_id", decision.Agent.AgentID).
		WithField("routing_method", decision.Method).
		Info("chat message processed")

	c.JSON(http.StatusOK, resp)
}
