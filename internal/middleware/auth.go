// Package middleware provides authentication, authorization, rate limiting and
// panic recovery middleware for the Gin web framework.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// Session and context keys for storing user information
const (
	// UserIDKey is the key used to store user ID in session
	UserIDKey = "user_id"
	// UsernameKey is the key used to store username in session
	UsernameKey = "username"
	// ActorKey holds the resolved models.Actor in the gin context
	ActorKey = "actor"
	// AuthMethodKey records whether the request used a session or an API key
	AuthMethodKey = "auth_method"
	// APIKeyIDKey holds the id of the API key used, if any
	APIKeyIDKey = "api_key_id"
)

// Authentication methods
const (
	AuthMethodSession = "session"
	AuthMethodAPIKey  = "api_key"
)

// UserLookup resolves the authenticated user
type UserLookup interface {
	GetUserByID(ctx context.Context, id int) (*models.User, error)
}

// APIKeyValidator resolves bearer keys
type APIKeyValidator interface {
	ValidateAPIKey(ctx context.Context, rawKey string) (*models.AuthAPIKey, error)
	UpdateLastUsed(ctx context.Context, keyID int) error
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, contextutils.ErrUnauthorized.ToJSON())
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}

// sessionUserID reads the user id from the session, accepting the float64 form JSON stores produce
func sessionUserID(c *gin.Context) (int, bool) {
	session := sessions.Default(c)
	raw := session.Get(UserIDKey)
	switch v := raw.(type) {
	case int:
		return v, v > 0
	case float64:
		return int(v), v > 0
	default:
		return 0, false
	}
}

// RequireAuth returns a middleware that requires a session or a bearer API key.
// Readonly keys may only be used for GET and HEAD requests. keys may be nil to
// accept sessions only.
func RequireAuth(users UserLookup, keys APIKeyValidator) gin.HandlerFunc {
	if users == nil {
		panic("RequireAuth: user lookup is required")
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		method := AuthMethodSession
		var userID int
		var apiKey *models.AuthAPIKey

		if raw := bearerToken(c); raw != "" && keys != nil {
			key, err := keys.ValidateAPIKey(ctx, raw)
			if err != nil {
				abortUnauthorized(c)
				return
			}
			if !key.CanPerformMethod(c.Request.Method) {
				c.AbortWithStatusJSON(http.StatusForbidden, contextutils.NewAppError(
					contextutils.ErrorCodeForbidden,
					contextutils.SeverityWarn,
					"Read-only API key",
					"This API key cannot modify data",
				).ToJSON())
				return
			}
			apiKey = key
			userID = key.UserID
			method = AuthMethodAPIKey
		} else {
			id, ok := sessionUserID(c)
			if !ok {
				abortUnauthorized(c)
				return
			}
			userID = id
		}

		user, err := users.GetUserByID(ctx, userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, contextutils.NewAppError(
				contextutils.ErrorCodeInternalError,
				contextutils.SeverityError,
				"Failed to load user",
				"",
			).ToJSON())
			return
		}
		if user == nil {
			abortUnauthorized(c)
			return
		}

		ctx = contextutils.WithUserID(ctx, user.ID)
		if apiKey != nil {
			ctx = contextutils.WithAPIKeyID(ctx, apiKey.ID)
			c.Set(APIKeyIDKey, apiKey.ID)
			_ = keys.UpdateLastUsed(ctx, apiKey.ID)
		}
		c.Request = c.Request.WithContext(ctx)

		// Store user info in context for handlers to use
		c.Set(UserIDKey, user.ID)
		c.Set(UsernameKey, user.Username)
		c.Set(ActorKey, user.Actor())
		c.Set(AuthMethodKey, method)

		c.Next()
	}
}

// RequireAdmin returns a middleware that requires an admin actor. It must run after RequireAuth.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		if !actor.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, contextutils.NewAppError(
				contextutils.ErrorCodeForbidden,
				contextutils.SeverityWarn,
				"Admin access required",
				"",
			).ToJSON())
			return
		}
		c.Next()
	}
}

// CurrentActor returns the actor stored by RequireAuth
func CurrentActor(c *gin.Context) (models.Actor, bool) {
	raw, exists := c.Get(ActorKey)
	if !exists {
		return models.Actor{}, false
	}
	actor, ok := raw.(models.Actor)
	return actor, ok && actor.UserID != 0
}
