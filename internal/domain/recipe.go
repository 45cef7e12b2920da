package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownValue is what the parser emits for fields it cannot determine.
const UnknownValue = "unknown"

// ParsedIngredient is an ingredient as returned by the structured parser.
type ParsedIngredient struct {
	Name          string   `json:"name"`
	QuantityValue *float64 `json:"quantity_value"`
	Unit          *string  `json:"unit"`
	Notes         *string  `json:"notes"`
}

// ParsedNutrition is the optional per-serving nutrition block.
type ParsedNutrition struct {
	CaloriesPerServing *float64 `json:"calories_per_serving"`
	ProteinG           *float64 `json:"protein_g"`
	CarbsG             *float64 `json:"carbs_g"`
	FatG               *float64 `json:"fat_g"`
	SugarG             *float64 `json:"sugar_g"`
	FiberG             *float64 `json:"fiber_g"`
	SodiumMg           *float64 `json:"sodium_mg"`
}

// Value implements the driver.Valuer interface so nutrition can live in a JSON column.
func (n *ParsedNutrition) Value() (driver.Value, error) {
	if n == nil {
		return nil, nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface.
func (n *ParsedNutrition) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan ParsedNutrition")
	}
	return json.Unmarshal(bytes, n)
}

// ParsedRecipe is the structured form of a recipe document before it is persisted.
// Total time is always derived from prep and cook time.
type ParsedRecipe struct {
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	Cuisine          string             `json:"cuisine"`
	Category         string             `json:"category"`
	Difficulty       int                `json:"difficulty"`
	PrepTimeMinutes  int                `json:"prep_time_minutes"`
	CookTimeMinutes  int                `json:"cook_time_minutes"`
	Servings         int                `json:"servings"`
	Ingredients      []ParsedIngredient `json:"ingredients"`
	Instructions     []string           `json:"instructions"`
	Tags             []string           `json:"tags"`
	Nutrition        *ParsedNutrition   `json:"nutrition"`
	DetectedLanguage *string            `json:"detected_language"`
	WasTranslated    bool               `json:"was_translated"`
	ConfidenceScores map[string]float64 `json:"confidence_scores"`
}

// TotalTimeMinutes returns prep plus cook time.
func (r *ParsedRecipe) TotalTimeMinutes() int {
	return r.PrepTimeMinutes + r.CookTimeMinutes
}

// Normalize trims and title-cases the text fields, trims instructions and
// ingredient names, and lowercases and de-duplicates tags. It is idempotent.
func (r *ParsedRecipe) Normalize() {
	title := cases.Title(language.English)
	r.Title = title.String(strings.TrimSpace(r.Title))
	r.Description = title.String(strings.TrimSpace(r.Description))
	r.Cuisine = title.String(strings.TrimSpace(r.Cuisine))
	r.Category = title.String(strings.TrimSpace(r.Category))

	for i := range r.Instructions {
		r.Instructions[i] = strings.TrimSpace(r.Instructions[i])
	}
	for i := range r.Ingredients {
		r.Ingredients[i].Name = strings.TrimSpace(r.Ingredients[i].Name)
	}

	seen := make(map[string]struct{}, len(r.Tags))
	tags := make([]string, 0, len(r.Tags))
	for _, tag := range r.Tags {
		clean := strings.ToLower(strings.TrimSpace(tag))
		if clean == "" {
			continue
		}
		if _, ok := seen[clean]; ok {
			continue
		}
		seen[clean] = struct{}{}
		tags = append(tags, clean)
	}
	r.Tags = tags

	if r.ConfidenceScores == nil {
		r.ConfidenceScores = map[string]float64{}
	}
}

// OverallConfidence returns the model's self-reported overall confidence,
// defaulting to 0.8 when absent.
func (r *ParsedRecipe) OverallConfidence() float64 {
	if v, ok := r.ConfidenceScores["overall"]; ok {
		return v
	}
	return 0.8
}

// IsUnknown reports whether a parser string field carries the "unknown" marker.
func IsUnknown(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || strings.EqualFold(s, UnknownValue)
}

// Recipe is a persisted recipe.
type Recipe struct {
	ID               string             `gorm:"type:text;primaryKey" json:"id"`
	Title            string             `gorm:"type:text;not null" json:"title"`
	Description      string             `gorm:"type:text" json:"description"`
	Cuisine          string             `gorm:"type:text;index" json:"cuisine"`
	CategoryID       *string            `gorm:"type:text" json:"category_id,omitempty"`
	DifficultyLevel  int                `json:"difficulty_level"`
	PrepTimeMinutes  int                `json:"prep_time_minutes"`
	CookTimeMinutes  int                `json:"cook_time_minutes"`
	Servings         int                `json:"servings"`
	Instructions     string             `gorm:"type:text" json:"instructions"`
	Tags             StringArray        `gorm:"type:text" json:"tags"`
	Nutrition        *ParsedNutrition   `gorm:"type:text" json:"nutrition,omitempty"`
	DetectedLanguage *string            `gorm:"type:text" json:"detected_language,omitempty"`
	WasTranslated    bool               `json:"was_translated"`
	SourceJobID      string             `gorm:"type:text;index" json:"source_job_id"`
	Ingredients      []RecipeIngredient `gorm:"foreignKey:RecipeID" json:"ingredients,omitempty"`
	CreatedAt        time.Time          `json:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

// TableName returns the database table name for Recipe.
func (Recipe) TableName() string {
	return "recipes"
}

// TotalTimeMinutes returns prep plus cook time.
func (r *Recipe) TotalTimeMinutes() int {
	return r.PrepTimeMinutes + r.CookTimeMinutes
}

// RecipeIngredient is one normalized ingredient row of a recipe.
type RecipeIngredient struct {
	ID               string   `gorm:"type:text;primaryKey" json:"id"`
	RecipeID         string   `gorm:"type:text;not null;index" json:"recipe_id"`
	DisplayName      string   `gorm:"type:text;not null" json:"display_name"`
	Amount           *float64 `json:"amount,omitempty"`
	UnitID           *string  `gorm:"type:text" json:"unit_id,omitempty"`
	PreparationNotes *string  `gorm:"type:text" json:"preparation_notes,omitempty"`
	BaseIngredientID *string  `gorm:"type:text;index" json:"base_ingredient_id,omitempty"`
	SortOrder        int      `json:"sort_order"`
}

// TableName returns the database table name for RecipeIngredient.
func (RecipeIngredient) TableName() string {
	return "recipe_ingredients"
}
