package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"recipescan/internal/platform/logging"
	"recipescan/internal/platform/metrics"
	"recipescan/internal/recipe"
)

const (
	extractionTemperature = 0.1
	extractionMaxTokens   = 8000
)

var supportedMIMETypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"application/pdf": true,
}

// SupportedMIMEType reports whether documents of this type can be extracted.
func SupportedMIMEType(mimeType string) bool {
	return supportedMIMETypes[mimeType]
}

// Extractor turns a recipe document into a normalized recipe.
type Extractor struct {
	model     Model
	estimator *Estimator
	log       *zap.Logger
	metrics   *metrics.Metrics
}

// NewExtractor creates an Extractor. Nutrition estimation uses the same model.
func NewExtractor(model Model, log *zap.Logger, m *metrics.Metrics) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{
		model:     model,
		estimator: NewEstimator(model, log, m),
		log:       log,
		metrics:   m,
	}
}

// ExtractRecipe runs the extraction pipeline on a document. Cache lookups are
// the caller's job. Primary extraction failures are returned; estimation
// failures only leave nutrition gaps unfilled.
func (x *Extractor) ExtractRecipe(ctx context.Context, data []byte, mimeType string) (*recipe.Recipe, error) {
	r, err := x.extract(ctx, data, mimeType)
	x.metrics.ObserveExtraction(KindOf(err))
	return r, err
}

func (x *Extractor) extract(ctx context.Context, data []byte, mimeType string) (*recipe.Recipe, error) {
	if len(data) == 0 {
		return nil, NewError(ErrInvalidInput, "file is empty", nil)
	}
	if !SupportedMIMEType(mimeType) {
		return nil, NewError(ErrInvalidInput, fmt.Sprintf("unsupported mime type %q", mimeType), nil)
	}

	start := time.Now()
	raw, err := x.model.Generate(ctx, GenerateRequest{
		Prompt:          extractionPrompt(mimeType),
		Document:        data,
		MIMEType:        mimeType,
		Temperature:     extractionTemperature,
		MaxOutputTokens: extractionMaxTokens,
		JSONResponse:    true,
	})
	x.metrics.ObserveModelCall("extraction", time.Since(start))
	if err != nil {
		return nil, classify(err)
	}

	parsed, err := ParseResponse(raw)
	if err != nil {
		x.log.Error("failed to parse extraction response",
			zap.Error(err),
			zap.Int("length", len(raw)),
			zap.String("head", logging.Snippet(raw, 1000)),
			zap.String("tail", logging.Tail(raw, 500)),
		)
		return nil, err
	}

	r := Normalize(parsed)
	if len(r.Instructions) == 0 {
		x.log.Warn("no instructions found in extracted recipe", zap.String("recipe_name", r.RecipeName))
	}

	// The raw value is used so that ranges like "4-6" still drive estimation.
	servings := ResolveServings(parsed["servings"])

	missing := MissingNutrition(r.Nutrition)
	if len(missing) == 0 {
		return &r, nil
	}

	x.log.Info("nutrition fields missing, estimating", zap.Strings("fields", missing.Names()))
	est := x.estimator.Estimate(ctx, r.Ingredients, servings, missing)
	merged := MergeNutrition(r.Nutrition, est)
	r.Nutrition = &merged.Nutrition
	r.NutritionAIEstimated = merged.AIEstimated
	r.NutritionServingsUsed = merged.ServingsUsed

	if merged.AIEstimated {
		x.log.Info("nutrition estimated",
			zap.Intp("servings_used", merged.ServingsUsed),
			zap.Strings("fields", missing.Names()),
		)
	}
	return &r, nil
}
