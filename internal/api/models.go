package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ListModels reports the models the configured provider can serve.
func (h *Handler) ListModels(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	models, err := h.models.ListModels(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if models == nil {
		models = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "models": models, "count": len(models)})
}
