package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

// Health runs every registered dependency check concurrently.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	results := make([]string, len(h.checks))
	var g errgroup.Group
	for i, hc := range h.checks {
		g.Go(func() error {
			if err := hc.check(ctx); err != nil {
				results[i] = err.Error()
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	checks := make(map[string]string, len(h.checks))
	for i, hc := range h.checks {
		checks[hc.name] = results[i]
	}

	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "checks": checks})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "checks": checks})
}
