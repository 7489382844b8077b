package extract

import (
	"fmt"
	"strings"

	"recipescan/internal/recipe"
)

const recipeSchemaPrompt = `Extract the recipe details from this %s. Follow this JSON schema exactly. If a field is missing or cannot be determined, return null for that field.

Required JSON Schema:
{
  "recipe_name": "string",
  "author": "string" or null,
  "description": "string" or null,
  "link": "string" or null,
  "servings": integer or null,
  "prep_time_minutes": integer or null,
  "cook_time_minutes": integer or null,
  "ingredients": [
    {"quantity": "string", "unit": "string", "item": "string", "notes": "string"}
  ],
  "instructions": [
    {"step_number": integer, "text": "string"}
  ],
  "nutrition": {
    "calories": integer or null,
    "protein_g": integer or null,
    "fat_g": integer or null,
    "carbs_g": integer or null
  } or null
}

Rules:
- Extract every ingredient with its quantity, unit and item. Each ingredient needs at least "item".
- Extract every instruction, direction or method step in order as {"step_number", "text"}. If none are found return [].
- Extract the author ("By ...", "Recipe by ..."), a short description and the source link when present.
- Only fill nutrition when it is printed in the document. Otherwise set nutrition to null.
- Use null, not "" or 0, for anything you cannot determine.
- Return only the JSON object. No markdown, no code fences, no text before or after it.`

func extractionPrompt(mimeType string) string {
	kind := "image"
	if strings.Contains(mimeType, "pdf") {
		kind = "PDF document"
	}
	return fmt.Sprintf(recipeSchemaPrompt, kind)
}

var fieldDescriptions = map[recipe.NutritionField]string{
	recipe.Calories: "calories PER SERVING",
	recipe.Protein:  "protein in grams PER SERVING",
	recipe.Fat:      "fat in grams PER SERVING",
	recipe.Carbs:    "carbohydrates in grams PER SERVING",
}

func estimationPrompt(ingredients []recipe.Ingredient, servings *int, servingsUsed int, missing Fields) string {
	lines := make([]string, 0, len(ingredients))
	for _, ing := range ingredients {
		parts := make([]string, 0, 4)
		for _, p := range []string{ing.Quantity, ing.Unit, ing.Item} {
			if p != "" {
				parts = append(parts, p)
			}
		}
		if ing.Notes != "" {
			parts = append(parts, "("+ing.Notes+")")
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, " "))
		}
	}

	servingNote := fmt.Sprintf("Assume this recipe serves %d people for calculation purposes.", servingsUsed)
	if servings != nil && *servings > 0 {
		servingNote = fmt.Sprintf("This recipe serves %d people.", servingsUsed)
	}

	structure := make([]string, len(missing))
	for i, f := range missing {
		structure[i] = fmt.Sprintf("  %q: number (%s)", string(f), fieldDescriptions[f])
	}
	jsonShape := "{\n" + strings.Join(structure, ",\n") + "\n}"

	var b strings.Builder
	b.WriteString("Estimate the nutritional information PER SERVING for this recipe from its ingredients, using typical values from standard nutrition databases.\n\n")
	b.WriteString("Ingredients:\n")
	b.WriteString(strings.Join(lines, "\n"))
	b.WriteString("\n\n")
	b.WriteString(servingNote)
	b.WriteString("\n\nReturn ONLY a JSON object with exactly this structure:\n")
	b.WriteString(jsonShape)
	fmt.Fprintf(&b, "\n\nInclude all %d field(s): %s. Values are per serving, rounded to whole numbers. No markdown, no code fences, no explanations.",
		len(missing), strings.Join(missing.Names(), ", "))
	return b.String()
}
