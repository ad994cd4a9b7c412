package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response represents the standard API response format
type Response struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    *ErrorInfo  `json:"error,omitempty"`
	Metadata *Metadata   `json:"metadata"`
}

// ErrorInfo represents error information in API responses
type ErrorInfo struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id"`
}

// Metadata represents response metadata
type Metadata struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id"`
	Version   string    `json:"version"`
}

// Common error codes
const (
	ErrorCodeBadRequest         = "BAD_REQUEST"
	ErrorCodeNotFound           = "NOT_FOUND"
	ErrorCodeValidation         = "VALIDATION_ERROR"
	ErrorCodeInternalError      = "INTERNAL_ERROR"
	ErrorCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrorCodeBadGateway         = "BAD_GATEWAY"
)

// SuccessResponse creates a successful API response
func SuccessResponse(c *gin.Context, data interface{}) {
	response := Response{
		Success: true,
		Data:    data,
		Metadata: &Metadata{
			Timestamp: time.Now(),
			RequestID: getRequestID(c),
			Version:   "v1",
		},
	}
	c.JSON(200, response)
}

// ErrorResponse creates an error API response whose body is
// {"detail": message}; errorCode and details are not written to the body.
func ErrorResponse(c *gin.Context, statusCode int, errorCode, message string, details interface{}) {
	c.JSON(statusCode, gin.H{"detail": message})
}

// BadRequestError creates a 400 Bad Request error response
func BadRequestError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 400, ErrorCodeBadRequest, message, details)
}

// NotFoundError creates a 404 Not Found error response
func NotFoundError(c *gin.Context, message string) {
	ErrorResponse(c, 404, ErrorCodeNotFound, message, nil)
}

// ValidationError creates a 422 Validation Error response
func ValidationError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 422, ErrorCodeValidation, message, details)
}

// InternalError creates a 500 Internal Server Error response
func InternalError(c *gin.Context, message string, details interface{}) {
	ErrorResponse(c, 500, ErrorCodeInternalError, message, details)
}

// BadGatewayError creates a 502 Bad Gateway response, used when routing or
// dispatch to a downstream agent fails (SPEC_FULL.md §6.2: NoRoute /
// AgentUnavailable map to 502 on the chat endpoint).
func BadGatewayError(c *gin.Context, err error) {
	CodedErrorResponse(c, 502, err)
}

// coded is implemented by every package-level error type in the
// orchestrator (registry.Error, router.Error, workflow.Error, ...).
type coded interface {
	error
	ErrorCode() string
}

// CodedErrorResponse maps a package error carrying a stable ORCH_XXXX code
// onto the HTTP response shape described in SPEC_FULL.md §7: the body's
// message is prefixed with "[CODE]" so HTTP and RPC surfaces stay
// traceable to the same taxonomy.
func CodedErrorResponse(c *gin.Context, statusCode int, err error) {
	message := err.Error()
	code := "ORCH_0000"
	if ce, ok := err.(coded); ok {
		code = ce.ErrorCode()
	}
	ErrorResponse(c, statusCode, code, fmt.Sprintf("[%s] %s", code, message), nil)
}

// getRequestID extracts or generates a request ID for tracing
func getRequestID(c *gin.Context) string {
	if requestID := c.GetHeader("X-Request-ID"); requestID != "" {
		return requestID
	}
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return uuid.New().String()
}

// HealthStatus represents system health information
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Services  map[string]string `json:"services"`
	Uptime    string            `json:"uptime"`
}
