// Package api wires the HTTP surface of the gateway: session credentials,
// diagnostic log collection, transcript access and the UI WebSocket upgrade.
package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/jonathanpv/chatgpt-voice-ui/internal/auth"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/logsink"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/realtime"
	"github.com/jonathanpv/chatgpt-voice-ui/internal/websocket"
	"github.com/jonathanpv/chatgpt-voice-ui/usecase"
)

// Deps carries everything the routes need.
type Deps struct {
	Hub         *websocket.Hub
	App         *usecase.AppService
	Credentials realtime.CredentialSource
	Issuer      *auth.TokenIssuer
	Sink        *logsink.Sink
	Logger      *zap.Logger
}

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, deps Deps) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "voice-ui-gateway",
		})
	})

	e.GET("/api/session", func(c echo.Context) error {
		return getSession(c, deps)
	})

	e.POST("/api/logs", func(c echo.Context) error {
		return postLog(c, deps)
	})
	e.GET("/api/logs", func(c echo.Context) error {
		return getLogs(c, deps)
	})

	e.GET("/api/transcript", func(c echo.Context) error {
		return getTranscript(c, deps)
	})
	e.GET("/api/todos", func(c echo.Context) error {
		return getTodos(c, deps)
	})

	// WebSocket endpoint with token validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(c, deps)
	})
}

// getSession mints an upstream ephemeral key plus a UI session token. Missing
// upstream credentials are a hard failure; the UI treats it as disconnected
// and retries.
func getSession(c echo.Context, deps Deps) error {
	key, err := deps.Credentials.EphemeralKey(c.Request().Context())
	if err != nil {
		deps.Logger.Error("Failed to mint ephemeral key", zap.Error(err))
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error:   "credential_fetch_failed",
			Message: "Could not obtain an upstream session credential",
		})
	}

	token, err := deps.Issuer.Issue(uuid.New().String())
	if err != nil {
		deps.Logger.Error("Failed to issue UI token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	return c.JSON(http.StatusOK, SessionResponse{
		ClientSecret: ClientSecret{Value: key},
		Token:        token,
	})
}

// postLog accepts one diagnostic entry. Failures are reported but the client
// treats the endpoint as fire-and-forget.
func postLog(c echo.Context, deps Deps) error {
	var req LogRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.Type == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Log type is required",
		})
	}

	err := deps.Sink.Append(&logsink.Entry{
		Type:      req.Type,
		Entry:     req.Entry,
		Payload:   req.Payload,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		deps.Logger.Error("Failed to store diagnostic entry", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "log_write_failed",
			Message: "Failed to store log entry",
		})
	}
	return c.NoContent(http.StatusAccepted)
}

func getLogs(c echo.Context, deps Deps) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	entries, err := logsink.ReadLast(deps.Sink.Path(), limit)
	if err != nil {
		deps.Logger.Error("Failed to read diagnostic entries", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "log_read_failed",
			Message: "Failed to read log entries",
		})
	}
	return c.JSON(http.StatusOK, entries)
}

func getTranscript(c echo.Context, deps Deps) error {
	limit := 0
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	items, err := deps.App.Transcript(c.Request().Context(), limit)
	if err != nil {
		deps.Logger.Error("Failed to list transcript", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "transcript_read_failed",
			Message: "Failed to read the transcript",
		})
	}
	return c.JSON(http.StatusOK, items)
}

func getTodos(c echo.Context, deps Deps) error {
	items, err := deps.App.Todos()
	if err != nil {
		deps.Logger.Error("Failed to list todos", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "todo_read_failed",
			Message: "Failed to read the todo list",
		})
	}
	return c.JSON(http.StatusOK, items)
}

// websocketWithAuth validates the UI token from the query string before
// upgrading.
func websocketWithAuth(c echo.Context, deps Deps) error {
	token := c.QueryParam("token")
	if token == "" {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "A session token is required",
		})
	}

	claims, err := deps.Issuer.Validate(token)
	if err != nil {
		deps.Logger.Warn("WebSocket auth failed", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Session token is invalid or expired",
		})
	}

	return websocket.HandleWebSocket(deps.Hub, c, claims.ClientID, deps.Logger)
}
