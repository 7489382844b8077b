package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipescan/internal/extract"
	"recipescan/internal/recipe"
)

// statusFor maps an error onto the HTTP status returned to the client.
func statusFor(err error) int {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, extract.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, extract.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, extract.ErrUpstreamUnavailable), errors.Is(err, extract.ErrMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, recipe.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, recipe.ErrDuplicate):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func errorCode(err error) string {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return "too_large"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, recipe.ErrNotFound):
		return "not_found"
	case errors.Is(err, recipe.ErrDuplicate):
		return "duplicate"
	}
	return extract.KindOf(err)
}

var errorTitles = map[int]string{
	http.StatusRequestTimeout:        "Request timed out",
	http.StatusBadRequest:            "Invalid input",
	http.StatusTooManyRequests:       "API quota exceeded. Please try again later.",
	http.StatusBadGateway:            "Failed to extract recipe",
	http.StatusNotFound:              "Recipe not found",
	http.StatusConflict:              "Recipe already saved",
	http.StatusRequestEntityTooLarge: "Request body too large",
	http.StatusInternalServerError:   "Internal server error",
}

func errorBody(title, message, code string) gin.H {
	return gin.H{"error": title, "message": message, "code": code}
}

// respondError writes the JSON error body for err and aborts the chain.
// Internal error details are logged but not returned.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		message = "an unexpected error occurred"
	} else {
		h.log.Warn("request rejected", zap.String("path", c.FullPath()), zap.Int("status", status), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, errorBody(errorTitles[status], message, errorCode(err)))
}
