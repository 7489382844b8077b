package extract

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"

	"recipescan/internal/platform/logging"
	"recipescan/internal/platform/metrics"
	"recipescan/internal/recipe"
)

// DefaultServings is assumed when a recipe states no usable serving count.
const DefaultServings = 4

const (
	estimationTemperature = 0.3
	estimationMaxTokens   = 2000
)

// Estimator asks the model for the nutrition fields a recipe is missing.
type Estimator struct {
	model   Model
	log     *zap.Logger
	metrics *metrics.Metrics
}

// NewEstimator creates an Estimator.
func NewEstimator(model Model, log *zap.Logger, m *metrics.Metrics) *Estimator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Estimator{model: model, log: log, metrics: m}
}

// Estimate requests per-serving values for the missing fields only. It never
// fails: any upstream or parse failure yields all-null values together with
// the serving count that would have been used.
func (e *Estimator) Estimate(ctx context.Context, ingredients []recipe.Ingredient, servings *int, missing Fields) Estimate {
	est := Estimate{ServingsUsed: DefaultServings}
	if servings != nil && *servings > 0 {
		est.ServingsUsed = *servings
	}
	if len(missing) == 0 {
		return est
	}

	start := time.Now()
	raw, err := e.model.Generate(ctx, GenerateRequest{
		Prompt:          estimationPrompt(ingredients, servings, est.ServingsUsed, missing),
		Temperature:     estimationTemperature,
		MaxOutputTokens: estimationMaxTokens,
		JSONResponse:    true,
	})
	e.metrics.ObserveModelCall("estimation", time.Since(start))
	if err != nil {
		if errors.Is(err, ErrRateLimited) {
			e.log.Warn("nutrition estimation rate limited, skipping", zap.Error(err))
			e.metrics.ObserveEstimation("rate_limited")
		} else {
			e.log.Warn("nutrition estimation failed", zap.Error(err))
			e.metrics.ObserveEstimation("upstream_error")
		}
		return est
	}

	values, outcome := e.parseEstimate(raw, missing)
	for f, v := range values {
		rounded := math.Floor(v + 0.5)
		est.Nutrition.Set(f, &rounded)
	}
	e.metrics.ObserveEstimation(outcome)

	if len(values) < len(missing) {
		e.log.Warn("model did not return every requested nutrition field",
			zap.Strings("requested", missing.Names()),
			zap.Int("returned", len(values)),
			zap.String("outcome", outcome),
		)
	}
	return est
}

// parseEstimate keeps only requested fields holding numbers. When the text
// cannot be repaired it falls back to scraping each field independently.
func (e *Estimator) parseEstimate(raw string, missing Fields) (map[recipe.NutritionField]float64, string) {
	values := make(map[recipe.NutritionField]float64, len(missing))

	obj, err := ParseResponse(raw)
	if err == nil {
		for _, f := range missing {
			if v, ok := asNumber(obj[string(f)]); ok {
				values[f] = v
			}
		}
		return values, "ok"
	}

	e.log.Warn("failed to parse nutrition estimate, scraping fields",
		zap.Error(err),
		zap.String("raw", logging.Snippet(raw, 500)),
	)
	scraped := ScrapeNumericFields(raw, missing.Names())
	for _, f := range missing {
		if v, ok := scraped[string(f)]; ok {
			values[f] = v
		}
	}
	if len(values) == 0 {
		return values, "parse_failed"
	}
	return values, "scraped"
}
