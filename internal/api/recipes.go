package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"recipescan/internal/extract"
	"recipescan/internal/platform/events"
	"recipescan/internal/recipe"
)

// nutritionPayload is the nutrition object as clients send it, with the
// estimation flags stored next to the values.
type nutritionPayload struct {
	recipe.NutritionFacts
	AIEstimated  *bool `json:"_ai_estimated"`
	ServingsUsed *int  `json:"_servings_used"`
}

type createRecipeRequest struct {
	recipe.Recipe
	Nutrition *nutritionPayload `json:"nutrition"`
	FileHash  *string           `json:"file_hash"`
	Image     *string           `json:"image"`
}

// ListRecipes returns the caller's recipes, newest first.
func (h *Handler) ListRecipes(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	recipes, err := h.store.List(ctx, userID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "recipes": recipes, "count": len(recipes)})
}

// CreateRecipe saves a recipe for the caller.
func (h *Handler) CreateRecipe(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, "failed to read request body", err))
		return
	}
	if err := validateBody(createRecipeSchema, body); err != nil {
		h.respondError(c, err)
		return
	}

	var req createRecipeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, "invalid recipe", err))
		return
	}

	user := userID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	if req.FileHash != nil {
		existing, err := h.store.FindByUserAndFingerprint(ctx, user, *req.FileHash)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if existing != nil {
			h.respondError(c, fmt.Errorf("recipe %s: %w", existing.ID, recipe.ErrDuplicate))
			return
		}
	}

	now := h.now().UTC()
	stored := &recipe.StoredRecipe{
		ID:        h.newID(),
		UserID:    user,
		Recipe:    req.Recipe,
		FileHash:  req.FileHash,
		Image:     req.Image,
		CreatedAt: now,
		UpdatedAt: now,
	}
	stored.RecipeName = strings.TrimSpace(stored.RecipeName)
	stored.Instructions = recipe.NormalizeSteps(stored.Instructions)
	if stored.Ingredients == nil {
		stored.Ingredients = []recipe.Ingredient{}
	}
	if req.Nutrition != nil {
		applyNutrition(&stored.Recipe, req.Nutrition)
	}
	clearOrphanFlags(&stored.Recipe)

	if err := h.store.Create(ctx, stored); err != nil {
		h.respondError(c, err)
		return
	}

	h.log.Info("recipe saved", zap.String("recipe_id", stored.ID), zap.String("user_id", user))
	h.publish(c.Request.Context(), events.Event{
		Type: events.RecipeSaved, RecipeID: stored.ID, UserID: user, FileHash: deref(stored.FileHash),
	})
	c.JSON(http.StatusCreated, stored)
}

// GetRecipe returns one of the caller's recipes.
func (h *Handler) GetRecipe(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	r, err := h.store.Get(ctx, userID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if r == nil {
		h.respondError(c, recipe.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, r)
}

// UpdateRecipe applies a partial update to one of the caller's recipes.
func (h *Handler) UpdateRecipe(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, "failed to read request body", err))
		return
	}
	if err := validateBody(updateRecipeSchema, body); err != nil {
		h.respondError(c, err)
		return
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		h.respondError(c, extract.NewError(extract.ErrInvalidInput, "invalid recipe", err))
		return
	}

	user := userID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	r, err := h.store.Get(ctx, user, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if r == nil {
		h.respondError(c, recipe.ErrNotFound)
		return
	}

	if err := applyPatch(r, fields); err != nil {
		h.respondError(c, err)
		return
	}
	r.UpdatedAt = h.now().UTC()

	if err := h.store.Update(ctx, r); err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidate(ctx, r.FileHash)

	h.publish(c.Request.Context(), events.Event{
		Type: events.RecipeUpdated, RecipeID: r.ID, UserID: user, FileHash: deref(r.FileHash),
	})
	c.JSON(http.StatusOK, r)
}

// DeleteRecipe removes one of the caller's recipes.
func (h *Handler) DeleteRecipe(c *gin.Context) {
	user := userID(c)
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), storeTimeout)
	defer cancel()

	r, err := h.store.Get(ctx, user, id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if r == nil {
		h.respondError(c, recipe.ErrNotFound)
		return
	}

	if err := h.store.Delete(ctx, user, id); err != nil {
		h.respondError(c, err)
		return
	}
	h.invalidate(ctx, r.FileHash)

	h.publish(c.Request.Context(), events.Event{
		Type: events.RecipeDeleted, RecipeID: id, UserID: user, FileHash: deref(r.FileHash),
	})
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) invalidate(ctx context.Context, fileHash *string) {
	if fileHash == nil {
		return
	}
	if err := h.cache.Invalidate(ctx, *fileHash); err != nil {
		h.log.Warn("failed to invalidate cached recipe", zap.String("file_hash", *fileHash), zap.Error(err))
	}
}

// applyPatch merges the present keys of fields into r. Absent keys are left
// alone, explicit nulls clear optional fields, and an empty recipe name or
// an empty ingredient or instruction list is ignored.
func applyPatch(r *recipe.StoredRecipe, fields map[string]json.RawMessage) error {
	for key, raw := range fields {
		null := isNull(raw)
		var err error
		switch key {
		case "recipe_name":
			var name string
			if !null {
				err = json.Unmarshal(raw, &name)
			}
			if name = strings.TrimSpace(name); name != "" {
				r.RecipeName = name
			}
		case "author":
			err = patchString(raw, &r.Author)
		case "description":
			err = patchString(raw, &r.Description)
		case "link":
			err = patchString(raw, &r.Link)
		case "image":
			err = patchString(raw, &r.Image)
		case "servings":
			err = patchInt(raw, &r.Servings)
		case "prep_time_minutes":
			err = patchInt(raw, &r.PrepTimeMinutes)
		case "cook_time_minutes":
			err = patchInt(raw, &r.CookTimeMinutes)
		case "ingredients":
			var ingredients []recipe.Ingredient
			if !null {
				err = json.Unmarshal(raw, &ingredients)
			}
			if len(ingredients) > 0 {
				r.Ingredients = ingredients
			}
		case "instructions":
			var steps []recipe.InstructionStep
			if !null {
				err = json.Unmarshal(raw, &steps)
			}
			if steps = recipe.NormalizeSteps(steps); len(steps) > 0 {
				r.Instructions = steps
			}
		case "nutrition_ai_estimated":
			if _, ok := fields["nutrition"]; !ok && !null {
				err = json.Unmarshal(raw, &r.NutritionAIEstimated)
			}
		case "nutrition_servings_used":
			if _, ok := fields["nutrition"]; !ok {
				err = patchInt(raw, &r.NutritionServingsUsed)
			}
		case "nutrition":
			if null {
				continue
			}
			var p nutritionPayload
			if err = json.Unmarshal(raw, &p); err == nil {
				r.NutritionAIEstimated = false
				r.NutritionServingsUsed = nil
				applyNutrition(&r.Recipe, &p)
			}
		}
		if err != nil {
			return extract.NewError(extract.ErrInvalidInput, "invalid "+key, err)
		}
	}
	clearOrphanFlags(&r.Recipe)
	return nil
}

// clearOrphanFlags drops provenance flags the nutrition column cannot hold,
// so responses match what a later read returns.
func clearOrphanFlags(r *recipe.Recipe) {
	if r.Nutrition == nil {
		r.NutritionAIEstimated = false
	}
	if !r.NutritionAIEstimated {
		r.NutritionServingsUsed = nil
	}
}

// applyNutrition replaces r's nutrition. Flags inside the object take
// precedence over the top-level ones.
func applyNutrition(r *recipe.Recipe, p *nutritionPayload) {
	facts := p.NutritionFacts
	r.Nutrition = &facts
	if p.AIEstimated != nil {
		r.NutritionAIEstimated = *p.AIEstimated
	}
	if p.ServingsUsed != nil {
		r.NutritionServingsUsed = p.ServingsUsed
	}
}

func patchString(raw json.RawMessage, dst **string) error {
	if isNull(raw) {
		*dst = nil
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return err
	}
	if s = strings.TrimSpace(s); s == "" {
		*dst = nil
		return nil
	}
	*dst = &s
	return nil
}

func patchInt(raw json.RawMessage, dst **int) error {
	if isNull(raw) {
		*dst = nil
		return nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return err
	}
	*dst = &n
	return nil
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
