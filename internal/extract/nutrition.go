package extract

import (
	"recipescan/internal/recipe"
)

// Fields is an ordered set of nutrition fields.
type Fields []recipe.NutritionField

// Has reports whether f is in the set.
func (fs Fields) Has(f recipe.NutritionField) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}

// Names returns the field names as plain strings.
func (fs Fields) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = string(f)
	}
	return names
}

// MissingNutrition returns the tracked fields that have no value. A nil
// block is missing every field.
func MissingNutrition(n *recipe.NutritionFacts) Fields {
	missing := Fields{}
	for _, f := range recipe.NutritionFields {
		if n.Value(f) == nil {
			missing = append(missing, f)
		}
	}
	return missing
}

// Estimate is the result of a nutrition estimation call.
type Estimate struct {
	Nutrition    recipe.NutritionFacts
	ServingsUsed int
}

// MergeResult is the merged nutrition block with its provenance.
type MergeResult struct {
	Nutrition    recipe.NutritionFacts
	AIEstimated  bool
	ServingsUsed *int
}

// MergeNutrition fills each field from original when present and from est
// otherwise. AIEstimated is set only if an estimated value was actually used.
func MergeNutrition(original *recipe.NutritionFacts, est Estimate) MergeResult {
	var res MergeResult
	for _, f := range recipe.NutritionFields {
		if v := original.Value(f); v != nil {
			res.Nutrition.Set(f, v)
			continue
		}
		if v := est.Nutrition.Value(f); v != nil {
			res.Nutrition.Set(f, v)
			res.AIEstimated = true
		}
	}
	if res.AIEstimated {
		servings := est.ServingsUsed
		res.ServingsUsed = &servings
	}
	return res
}
