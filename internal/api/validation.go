package api

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"recipescan/internal/extract"
)

func nullable(t string) map[string]any {
	return map[string]any{"type": []any{t, "null"}}
}

func recipeProperties() map[string]any {
	optionalInt := func(min int) map[string]any {
		p := nullable("integer")
		p["minimum"] = min
		return p
	}
	return map[string]any{
		"recipe_name":       map[string]any{"type": "string"},
		"author":            nullable("string"),
		"description":       nullable("string"),
		"link":              nullable("string"),
		"servings":          optionalInt(1),
		"prep_time_minutes": optionalInt(0),
		"cook_time_minutes": optionalInt(0),
		"ingredients": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"quantity": map[string]any{"type": "string"},
					"unit":     map[string]any{"type": "string"},
					"item":     map[string]any{"type": "string"},
					"notes":    map[string]any{"type": "string"},
				},
			},
		},
		"instructions": map[string]any{
			"type": []any{"array", "null"},
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"step_number": map[string]any{"type": "integer"},
					"text":        map[string]any{"type": "string"},
				},
			},
		},
		"nutrition": map[string]any{
			"type": []any{"object", "null"},
			"properties": map[string]any{
				"calories":       nullable("number"),
				"protein_g":      nullable("number"),
				"fat_g":          nullable("number"),
				"carbs_g":        nullable("number"),
				"_ai_estimated":  map[string]any{"type": "boolean"},
				"_servings_used": optionalInt(1),
			},
		},
		"nutrition_ai_estimated":  map[string]any{"type": "boolean"},
		"nutrition_servings_used": optionalInt(1),
		"file_hash": map[string]any{
			"type":    []any{"string", "null"},
			"pattern": "^[0-9a-f]{64}$",
		},
		"image": nullable("string"),
	}
}

var (
	createRecipeSchema = mustCompileSchema("create-recipe.json", map[string]any{
		"type":     "object",
		"required": []any{"recipe_name"},
		"properties": func() map[string]any {
			props := recipeProperties()
			props["recipe_name"] = map[string]any{"type": "string", "pattern": `\S`}
			return props
		}(),
	})
	updateRecipeSchema = mustCompileSchema("update-recipe.json", map[string]any{
		"type":       "object",
		"properties": recipeProperties(),
	})
)

func mustCompileSchema(name string, schemaMap map[string]any) *jsonschema.Schema {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		panic(fmt.Sprintf("marshal schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// validateBody checks a JSON request body against schema.
func validateBody(schema *jsonschema.Schema, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return extract.NewError(extract.ErrInvalidInput, "request body is not valid JSON", err)
	}
	if err := schema.Validate(v); err != nil {
		return extract.NewError(extract.ErrInvalidInput, "request body does not match schema", err)
	}
	return nil
}
