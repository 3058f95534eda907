package handlers

import (
	"triageapp/internal/middleware"
	"triageapp/internal/models"
	contextutils "triageapp/internal/utils"

	"github.com/gin-gonic/gin"
)

// requireActor returns the authenticated actor or writes a 401 and returns false.
// Routes are mounted behind RequireAuth, so a miss here means the router is misconfigured.
func requireActor(c *gin.Context) (models.Actor, bool) {
	actor, ok := middleware.CurrentActor(c)
	if !ok {
		HandleAppError(c, contextutils.ErrUnauthorized)
		return models.Actor{}, false
	}
	return actor, true
}

// reportIDParam returns the :id path parameter or writes a 400 and returns false
func reportIDParam(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if id == "" {
		HandleValidationError(c, "id", id, "report id is required")
		return "", false
	}
	return id, true
}
