package api

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipescan/internal/platform/metrics"
)

// RouterConfig holds the cross-cutting pieces of the HTTP stack.
type RouterConfig struct {
	AllowedOrigins []string
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler
}

// NewRouter wires the handler's endpoints and middleware into a gin engine.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(requestid.New())
	r.Use(Recovery(log))
	r.Use(RequestLogger(log))
	r.Use(cfg.Metrics.Middleware())
	r.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	r.GET("/health", h.Health)
	if cfg.MetricsHandler != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}
	r.Static("/uploads/"+previewDir, filepath.Join(h.uploadDir, previewDir))

	uploadLimit := BodySizeLimit(h.maxUploadBytes+multipartOverhead, log)
	jsonLimit := BodySizeLimit(maxJSONBytes, log)

	api := r.Group("/api", RequireUser())
	api.POST("/uploads", uploadLimit, h.Upload)
	api.POST("/scan", jsonLimit, h.Scan)
	api.POST("/scan/file", uploadLimit, h.ScanFile)
	api.GET("/recipes", h.ListRecipes)
	api.POST("/recipes", jsonLimit, h.CreateRecipe)
	api.GET("/recipes/:id", h.GetRecipe)
	api.PUT("/recipes/:id", jsonLimit, h.UpdateRecipe)
	api.DELETE("/recipes/:id", h.DeleteRecipe)
	api.GET("/models", h.ListModels)

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", userIDHeader, "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
