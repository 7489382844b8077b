package api

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"recipescan/internal/platform/events"
	"recipescan/internal/platform/metrics"
	"recipescan/internal/recipe"
)

const (
	defaultScanTimeout    = 45 * time.Second
	defaultMaxUploadBytes = 20 << 20
	defaultUploadDir      = "./uploads"
	storeTimeout          = 5 * time.Second
	publishTimeout        = 2 * time.Second

	// maxJSONBytes bounds recipe and scan request bodies.
	maxJSONBytes = 1 << 20

	// multipartOverhead leaves room for boundaries, headers and form fields.
	multipartOverhead = 64 << 10
)

// Extractor turns a document into a normalized recipe.
type Extractor interface {
	ExtractRecipe(ctx context.Context, data []byte, mimeType string) (*recipe.Recipe, error)
}

// ModelLister lists the models available to the configured provider.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// RecipeStore defines the interface for recipe data operations.
type RecipeStore interface {
	FindByUserAndFingerprint(ctx context.Context, userID, fingerprint string) (*recipe.StoredRecipe, error)
	Create(ctx context.Context, r *recipe.StoredRecipe) error
	Get(ctx context.Context, userID, id string) (*recipe.StoredRecipe, error)
	List(ctx context.Context, userID string) ([]*recipe.StoredRecipe, error)
	Update(ctx context.Context, r *recipe.StoredRecipe) error
	Delete(ctx context.Context, userID, id string) error
}

// RecipeCache finds previously saved recipes by file fingerprint.
type RecipeCache interface {
	Lookup(ctx context.Context, fingerprint string) (*recipe.StoredRecipe, error)
	Invalidate(ctx context.Context, fingerprint string) error
}

type healthCheck struct {
	name  string
	check func(context.Context) error
}

// Handler handles HTTP requests.
type Handler struct {
	extractor Extractor
	models    ModelLister
	store     RecipeStore
	cache     RecipeCache

	events  events.Publisher
	log     *zap.Logger
	metrics *metrics.Metrics
	checks  []healthCheck

	uploadDir      string
	scanTimeout    time.Duration
	maxUploadBytes int64

	now   func() time.Time
	newID func() string
}

// Option configures a Handler.
type Option func(*Handler)

func WithLogger(log *zap.Logger) Option {
	return func(h *Handler) {
		if log != nil {
			h.log = log
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) { h.metrics = m }
}

func WithEvents(p events.Publisher) Option {
	return func(h *Handler) {
		if p != nil {
			h.events = p
		}
	}
}

// WithUploadDir sets where uploaded files and their previews are kept.
func WithUploadDir(dir string) Option {
	return func(h *Handler) {
		if dir != "" {
			h.uploadDir = dir
		}
	}
}

func WithScanTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.scanTimeout = d
		}
	}
}

func WithMaxUploadBytes(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// WithHealthCheck adds a dependency check reported by /health.
func WithHealthCheck(name string, check func(context.Context) error) Option {
	return func(h *Handler) {
		h.checks = append(h.checks, healthCheck{name: name, check: check})
	}
}

// NewHandler creates a new Handler.
func NewHandler(extractor Extractor, models ModelLister, store RecipeStore, cache RecipeCache, opts ...Option) *Handler {
	h := &Handler{
		extractor:      extractor,
		models:         models,
		store:          store,
		cache:          cache,
		events:         events.NopPublisher{},
		log:            zap.NewNop(),
		uploadDir:      defaultUploadDir,
		scanTimeout:    defaultScanTimeout,
		maxUploadBytes: defaultMaxUploadBytes,
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// publish emits a lifecycle event. Failures are logged and counted only.
func (h *Handler) publish(ctx context.Context, e events.Event) {
	e.OccurredAt = h.now().UTC()
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	status := "ok"
	if err := h.events.Publish(ctx, e); err != nil {
		status = "error"
		h.log.Warn("failed to publish event",
			zap.String("type", string(e.Type)),
			zap.String("recipe_id", e.RecipeID),
			zap.Error(err),
		)
	}
	h.metrics.ObserveEvent(string(e.Type), status)
}
