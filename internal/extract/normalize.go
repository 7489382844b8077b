package extract

import (
	"math"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"recipescan/internal/recipe"
)

// UntitledRecipe is used when the model returns no usable name.
const UntitledRecipe = "Untitled Recipe"

// Normalize coerces an untrusted parsed object into the canonical recipe
// shape. Every field has a default, so it never fails.
func Normalize(data map[string]any) recipe.Recipe {
	r := recipe.Recipe{
		RecipeName:      UntitledRecipe,
		Description:     optionalString(data["description"]),
		Link:            optionalString(data["link"]),
		Servings:        wholeNumber(data["servings"]),
		PrepTimeMinutes: wholeNumber(data["prep_time_minutes"]),
		CookTimeMinutes: wholeNumber(data["cook_time_minutes"]),
		Ingredients:     normalizeIngredients(data["ingredients"]),
		Instructions:    normalizeInstructions(data["instructions"]),
		Nutrition:       normalizeNutrition(data["nutrition"]),
	}
	if name := optionalString(data["recipe_name"]); name != nil {
		r.RecipeName = TitleCase(*name)
	}
	if author := optionalString(data["author"]); author != nil {
		a := TitleCase(*author)
		r.Author = &a
	}
	return r
}

// TitleCase rewrites s in title case when more than half of its ASCII
// letters are uppercase. Other strings are returned unchanged so deliberate
// casing such as "McDonald's BBQ" survives.
func TitleCase(s string) string {
	letters, upper := 0, 0
	for _, r := range s {
		if r >= utf8.RuneSelf || !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 || upper*2 <= letters {
		return s
	}

	runes := []rune(strings.ToLower(s))
	start := true
	for i, r := range runes {
		if unicode.IsSpace(r) {
			start = true
			continue
		}
		if start {
			runes[i] = unicode.ToUpper(r)
			start = false
		}
	}
	return string(runes)
}

func normalizeIngredients(v any) []recipe.Ingredient {
	items, _ := v.([]any)
	out := make([]recipe.Ingredient, 0, len(items))
	for _, item := range items {
		switch ing := item.(type) {
		case map[string]any:
			out = append(out, recipe.Ingredient{
				Quantity: coerceString(ing["quantity"]),
				Unit:     coerceString(ing["unit"]),
				Item:     coerceString(ing["item"]),
				Notes:    coerceString(ing["notes"]),
			})
		case string:
			out = append(out, recipe.Ingredient{Item: strings.TrimSpace(ing)})
		default:
			out = append(out, recipe.Ingredient{})
		}
	}
	return out
}

func normalizeInstructions(v any) []recipe.InstructionStep {
	items, _ := v.([]any)
	steps := make([]recipe.InstructionStep, 0, len(items))
	for _, item := range items {
		var step recipe.InstructionStep
		switch inst := item.(type) {
		case string:
			step.Text = inst
		case map[string]any:
			step.Text, _ = inst["text"].(string)
		}
		steps = append(steps, step)
	}
	// Numbering follows array order and stays contiguous once blanks are dropped.
	return recipe.NormalizeSteps(steps)
}

func normalizeNutrition(v any) *recipe.NutritionFacts {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	n := &recipe.NutritionFacts{}
	for _, f := range recipe.NutritionFields {
		if x, ok := asNumber(m[string(f)]); ok {
			n.Set(f, &x)
		}
	}
	return n
}

func optionalString(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func coerceString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// wholeNumber keeps JSON numbers only, rounding any fraction. Values that
// do not fit a 32-bit integer are dropped.
func wholeNumber(v any) *int {
	x, ok := asNumber(v)
	if !ok {
		return nil
	}
	x = math.Round(x)
	if !fitsColumn(x) {
		return nil
	}
	n := int(x)
	return &n
}
