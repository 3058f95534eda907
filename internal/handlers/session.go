package handlers

import (
	"net/http"

	"triageapp/internal/middleware"
	"triageapp/internal/observability"
	contextutils "triageapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// SessionHandler turns an authenticated API key request into a cookie session for the embedded widget
type SessionHandler struct {
	logger *observability.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(logger *observability.Logger) *SessionHandler {
	return &SessionHandler{logger: logger}
}

// CreateSession stores the caller's user id in the session cookie
func (h *SessionHandler) CreateSession(c *gin.Context) {
	ctx, span := observability.TraceHandlerFunction(c.Request.Context(), "create_session")
	defer observability.FinishSpan(span, nil)

	actor, ok := requireActor(c)
	if !ok {
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.UserIDKey, actor.UserID)
	if err := session.Save(); err != nil {
		h.logger.Error(ctx, "Failed to save session", err, map[string]interface{}{"user_id": actor.UserID})
		HandleAppError(c, contextutils.WrapError(contextutils.ErrInternalError, "failed to save session"))
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteSession clears the session cookie
func (h *SessionHandler) DeleteSession(c *gin.Context) {
	_, span := observability.TraceHandlerFunction(c.Request.Context(), "delete_session")
	defer observability.FinishSpan(span, nil)

	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	_ = session.Save()
	c.Status(http.StatusNoContent)
}

// GetUserIDFromSession retrieves the current user ID from the session.
// Returns (0, false) if not authenticated or if the stored value is invalid.
func GetUserIDFromSession(c *gin.Context) (int, bool) {
	session := sessions.Default(c)
	userID := session.Get(middleware.UserIDKey)
	if userID == nil {
		return 0, false
	}
	id, ok := userID.(int)
	if !ok {
		return 0, false
	}
	return id, true
}
