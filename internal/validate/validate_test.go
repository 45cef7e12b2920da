package validate

import (
	"strings"
	"testing"

	"github.com/timmy/recipe-ingest/internal/domain"
)

func f(v float64) *float64 { return &v }

func goodRecipe() *domain.ParsedRecipe {
	return &domain.ParsedRecipe{
		Title:       "Tomato Pasta",
		Description: "A rich and flavorful pasta tossed in a fresh tomato sauce with basil.",
		Cuisine:     "Italian",
		Category:    "Main Course",
		Difficulty:  2,
		PrepTimeMinutes: 10,
		CookTimeMinutes: 20,
		Servings:    4,
		Ingredients: []domain.ParsedIngredient{
			{Name: "spaghetti", QuantityValue: f(400)},
			{Name: "tomatoes", QuantityValue: f(6)},
			{Name: "basil", QuantityValue: f(10)},
		},
		Instructions: []string{
			"Boil the spaghetti in salted water until al dente.",
			"Heat the oil and cook the tomatoes for ten minutes.",
			"Add the pasta and stir in the torn basil leaves.",
		},
		Tags:             []string{"vegetarian"},
		ConfidenceScores: map[string]float64{"overall": 0.9},
	}
}

func TestValidateGoodRecipe(t *testing.T) {
	res := New(0, 0).Validate(goodRecipe())
	if !res.Valid {
		t.Fatalf("Validate() invalid, issues = %v", res.Issues)
	}
	if len(res.Issues) != 0 {
		t.Errorf("Issues = %v, want none", res.Issues)
	}
	if res.Confidence < 0.89 || res.Confidence > 0.91 {
		t.Errorf("Confidence = %v, want 0.9", res.Confidence)
	}
}

func TestValidateCriticalIssuesZeroConfidence(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *domain.ParsedRecipe)
		issue  string
	}{
		{"short title", func(r *domain.ParsedRecipe) { r.Title = "Pa" }, "Title is missing"},
		{"no ingredients", func(r *domain.ParsedRecipe) { r.Ingredients = nil }, "No ingredients"},
		{"blank ingredient", func(r *domain.ParsedRecipe) { r.Ingredients[1].Name = " x " }, "Ingredient 2 has invalid name"},
		{"no instructions", func(r *domain.ParsedRecipe) { r.Instructions = nil }, "No instructions"},
		{"short instruction", func(r *domain.ParsedRecipe) { r.Instructions[0] = "Boil." }, "Instruction 1 is too short"},
		{"difficulty", func(r *domain.ParsedRecipe) { r.Difficulty = 6 }, "Difficulty"},
		{"servings", func(r *domain.ParsedRecipe) { r.Servings = 0 }, "Servings"},
		{"negative time", func(r *domain.ParsedRecipe) { r.CookTimeMinutes = -5 }, "negative"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := goodRecipe()
			tt.mutate(r)
			res := New(0, 0).Validate(r)
			if res.Valid || !res.Critical {
				t.Errorf("Validate() = %+v, want critical invalid", res)
			}
			if res.Confidence != 0 {
				t.Errorf("Confidence = %v, want exactly 0", res.Confidence)
			}
			found := false
			for _, issue := range res.Issues {
				if strings.Contains(issue, tt.issue) {
					found = true
				}
			}
			if !found {
				t.Errorf("Issues = %v, want one containing %q", res.Issues, tt.issue)
			}
		})
	}
}

func TestValidateLowModelConfidenceNeedsReview(t *testing.T) {
	r := goodRecipe()
	r.ConfidenceScores["overall"] = 0.6

	res := New(0, 0).Validate(r)
	if res.Valid {
		t.Errorf("Validate() valid with confidence %v, want needs review", res.Confidence)
	}
	if res.Critical {
		t.Errorf("low confidence must not be critical")
	}
	if res.Confidence < 0.59 || res.Confidence > 0.61 {
		t.Errorf("Confidence = %v, want 0.6", res.Confidence)
	}
}

func TestValidateTooManyIssues(t *testing.T) {
	r := goodRecipe()
	r.Description = "ok"
	r.Cuisine = "Martian"
	r.Category = "Experiment"
	r.Tags = []string{"weird"}
	r.ConfidenceScores["overall"] = 1.0

	res := New(0.1, 3).Validate(r)
	if len(res.Issues) <= 3 {
		t.Fatalf("Issues = %v, want more than 3", res.Issues)
	}
	if res.Valid {
		t.Errorf("Validate() valid with %d issues", len(res.Issues))
	}
}

func TestValidateConfidenceIsCapped(t *testing.T) {
	r := goodRecipe()
	r.ConfidenceScores["overall"] = 5
	if res := New(0, 0).Validate(r); res.Confidence != 1 {
		t.Errorf("Confidence = %v, want capped at 1", res.Confidence)
	}
}

func TestScoreNutrition(t *testing.T) {
	tests := []struct {
		name string
		n    domain.ParsedNutrition
		want float64
	}{
		{"consistent", domain.ParsedNutrition{CaloriesPerServing: f(500), ProteinG: f(20), CarbsG: f(60), FatG: f(20)}, 1.0},
		{"inconsistent macros", domain.ParsedNutrition{CaloriesPerServing: f(500), ProteinG: f(5), CarbsG: f(5), FatG: f(5)}, 0.8},
		{"calories out of range", domain.ParsedNutrition{CaloriesPerServing: f(5000)}, 0.5},
		{"empty", domain.ParsedNutrition{}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scoreNutrition(&tt.n); got < tt.want-1e-9 || got > tt.want+1e-9 {
				t.Errorf("scoreNutrition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreTimes(t *testing.T) {
	tests := []struct {
		prep, cook int
		want       float64
	}{
		{0, 3, 0.5},
		{5, 2, 0.7},
		{15, 30, 1},
		{60, 200, 0.7},
		{200, 300, 0.5},
	}
	for _, tt := range tests {
		if got := scoreTimes(tt.prep, tt.cook); got != tt.want {
			t.Errorf("scoreTimes(%d, %d) = %v, want %v", tt.prep, tt.cook, got, tt.want)
		}
	}
}
