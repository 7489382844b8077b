package recipe

import (
	"strings"
	"time"
)

// Ingredient is one line of a recipe's ingredient list.
type Ingredient struct {
	Quantity string `json:"quantity"`
	Unit     string `json:"unit"`
	Item     string `json:"item"`
	Notes    string `json:"notes"`
}

// InstructionStep is a single numbered cooking step.
type InstructionStep struct {
	StepNumber int    `json:"step_number"`
	Text       string `json:"text"`
}

// NutritionField names one of the tracked per-serving nutrition values.
type NutritionField string

const (
	Calories NutritionField = "calories"
	Protein  NutritionField = "protein_g"
	Fat      NutritionField = "fat_g"
	Carbs    NutritionField = "carbs_g"
)

// NutritionFields lists every tracked field in canonical order.
var NutritionFields = []NutritionField{Calories, Protein, Fat, Carbs}

// NutritionFacts holds per-serving values. A nil field is unknown.
type NutritionFacts struct {
	Calories *float64 `json:"calories"`
	ProteinG *float64 `json:"protein_g"`
	FatG     *float64 `json:"fat_g"`
	CarbsG   *float64 `json:"carbs_g"`
}

// Value returns the value of field f. It is safe to call on a nil receiver.
func (n *NutritionFacts) Value(f NutritionField) *float64 {
	if n == nil {
		return nil
	}
	switch f {
	case Calories:
		return n.Calories
	case Protein:
		return n.ProteinG
	case Fat:
		return n.FatG
	case Carbs:
		return n.CarbsG
	}
	return nil
}

// Set stores a copy of v into field f.
func (n *NutritionFacts) Set(f NutritionField, v *float64) {
	if v != nil {
		c := *v
		v = &c
	}
	switch f {
	case Calories:
		n.Calories = v
	case Protein:
		n.ProteinG = v
	case Fat:
		n.FatG = v
	case Carbs:
		n.CarbsG = v
	}
}

// Recipe is the canonical recipe shape produced by extraction.
type Recipe struct {
	RecipeName            string            `json:"recipe_name"`
	Author                *string           `json:"author"`
	Description           *string           `json:"description"`
	Link                  *string           `json:"link"`
	Servings              *int              `json:"servings"`
	PrepTimeMinutes       *int              `json:"prep_time_minutes"`
	CookTimeMinutes       *int              `json:"cook_time_minutes"`
	Ingredients           []Ingredient      `json:"ingredients"`
	Instructions          []InstructionStep `json:"instructions"`
	Nutrition             *NutritionFacts   `json:"nutrition"`
	NutritionAIEstimated  bool              `json:"nutrition_ai_estimated"`
	NutritionServingsUsed *int              `json:"nutrition_servings_used"`
}

// StoredRecipe is a Recipe persisted for a user.
type StoredRecipe struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Recipe
	FileHash  *string   `json:"file_hash"`
	Image     *string   `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeSteps drops steps with blank text and numbers the rest 1..n in order.
func NormalizeSteps(steps []InstructionStep) []InstructionStep {
	out := make([]InstructionStep, 0, len(steps))
	for _, s := range steps {
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		out = append(out, InstructionStep{StepNumber: len(out) + 1, Text: text})
	}
	return out
}
