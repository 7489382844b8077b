package recipe

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// recipeRow mirrors the recipes table. Sub-objects are stored as JSON text.
type recipeRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	RecipeName      string         `db:"recipe_name"`
	Author          sql.NullString `db:"author"`
	Description     sql.NullString `db:"description"`
	Link            sql.NullString `db:"link"`
	Servings        sql.NullInt64  `db:"servings"`
	PrepTimeMinutes sql.NullInt64  `db:"prep_time_minutes"`
	CookTimeMinutes sql.NullInt64  `db:"cook_time_minutes"`
	Ingredients     string         `db:"ingredients"`
	Instructions    string         `db:"instructions"`
	Nutrition       sql.NullString `db:"nutrition"`
	FileHash        sql.NullString `db:"file_hash"`
	Image           sql.NullString `db:"image"`
	CreatedAt       time.Time      `db:"created_at"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// nutritionBlob is the serialized nutrition column. The underscore keys keep
// the provenance flags apart from the four public nutrition keys.
type nutritionBlob struct {
	Calories     *float64 `json:"calories"`
	ProteinG     *float64 `json:"protein_g"`
	FatG         *float64 `json:"fat_g"`
	CarbsG       *float64 `json:"carbs_g"`
	AIEstimated  bool     `json:"_ai_estimated"`
	ServingsUsed *int     `json:"_servings_used"`
}

func toRow(r *StoredRecipe) (recipeRow, error) {
	ingredients := r.Ingredients
	if ingredients == nil {
		ingredients = []Ingredient{}
	}
	ingredientsJSON, err := json.Marshal(ingredients)
	if err != nil {
		return recipeRow{}, fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	instructions := r.Instructions
	if instructions == nil {
		instructions = []InstructionStep{}
	}
	instructionsJSON, err := json.Marshal(instructions)
	if err != nil {
		return recipeRow{}, fmt.Errorf("failed to marshal instructions: %w", err)
	}
	nutrition, err := encodeNutrition(r.Nutrition, r.NutritionAIEstimated, r.NutritionServingsUsed)
	if err != nil {
		return recipeRow{}, err
	}

	return recipeRow{
		ID:              r.ID,
		UserID:          r.UserID,
		RecipeName:      r.RecipeName,
		Author:          nullString(r.Author),
		Description:     nullString(r.Description),
		Link:            nullString(r.Link),
		Servings:        nullInt(r.Servings),
		PrepTimeMinutes: nullInt(r.PrepTimeMinutes),
		CookTimeMinutes: nullInt(r.CookTimeMinutes),
		Ingredients:     string(ingredientsJSON),
		Instructions:    string(instructionsJSON),
		Nutrition:       nutrition,
		FileHash:        nullString(r.FileHash),
		Image:           nullString(r.Image),
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}, nil
}

func fromRow(row recipeRow) (*StoredRecipe, error) {
	r := &StoredRecipe{
		ID:        row.ID,
		UserID:    row.UserID,
		FileHash:  stringPtr(row.FileHash),
		Image:     stringPtr(row.Image),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	r.RecipeName = row.RecipeName
	r.Author = stringPtr(row.Author)
	r.Description = stringPtr(row.Description)
	r.Link = stringPtr(row.Link)
	r.Servings = intPtr(row.Servings)
	r.PrepTimeMinutes = intPtr(row.PrepTimeMinutes)
	r.CookTimeMinutes = intPtr(row.CookTimeMinutes)

	r.Ingredients = []Ingredient{}
	if row.Ingredients != "" {
		if err := json.Unmarshal([]byte(row.Ingredients), &r.Ingredients); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ingredients: %w", err)
		}
	}
	r.Instructions = []InstructionStep{}
	if row.Instructions != "" {
		if err := json.Unmarshal([]byte(row.Instructions), &r.Instructions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal instructions: %w", err)
		}
	}

	nutrition, aiEstimated, servingsUsed, err := decodeNutrition(row.Nutrition)
	if err != nil {
		return nil, err
	}
	r.Nutrition = nutrition
	r.NutritionAIEstimated = aiEstimated
	r.NutritionServingsUsed = servingsUsed
	return r, nil
}

func encodeNutrition(n *NutritionFacts, aiEstimated bool, servingsUsed *int) (sql.NullString, error) {
	if n == nil {
		return sql.NullString{}, nil
	}
	blob := nutritionBlob{
		Calories:    n.Calories,
		ProteinG:    n.ProteinG,
		FatG:        n.FatG,
		CarbsG:      n.CarbsG,
		AIEstimated: aiEstimated,
	}
	if aiEstimated {
		blob.ServingsUsed = servingsUsed
	}
	data, err := json.Marshal(blob)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal nutrition: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeNutrition(s sql.NullString) (*NutritionFacts, bool, *int, error) {
	if !s.Valid || s.String == "" || s.String == "null" {
		return nil, false, nil, nil
	}
	var blob nutritionBlob
	if err := json.Unmarshal([]byte(s.String), &blob); err != nil {
		return nil, false, nil, fmt.Errorf("failed to unmarshal nutrition: %w", err)
	}
	n := &NutritionFacts{
		Calories: blob.Calories,
		ProteinG: blob.ProteinG,
		FatG:     blob.FatG,
		CarbsG:   blob.CarbsG,
	}
	servingsUsed := blob.ServingsUsed
	if servingsUsed != nil && *servingsUsed == 0 {
		servingsUsed = nil
	}
	return n, blob.AIEstimated, servingsUsed, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullInt(i *int) sql.NullInt64 {
	if i == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*i), Valid: true}
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func intPtr(i sql.NullInt64) *int {
	if !i.Valid {
		return nil
	}
	v := int(i.Int64)
	return &v
}
