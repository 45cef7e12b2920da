// Package validate checks parsed recipes for critical problems and scores
// their quality.
package validate

import (
	"fmt"
	"math"
	"strings"

	"github.com/timmy/recipe-ingest/internal/domain"
)

const (
	// ReviewThreshold is the confidence below which a recipe needs review.
	ReviewThreshold = 0.75

	// MaxQualityIssues is the issue count above which a recipe needs review.
	MaxQualityIssues = 3
)

var (
	dietaryTags = set(
		"vegetarian", "vegan", "gluten-free", "dairy-free", "nut-free",
		"egg-free", "soy-free", "halal", "kosher", "keto", "paleo",
		"low-carb", "low-fat", "low-sodium", "sugar-free",
	)
	commonCuisines = []string{
		"italian", "mexican", "chinese", "indian", "french", "thai",
		"japanese", "mediterranean", "american", "greek", "spanish",
		"korean", "vietnamese", "middle eastern", "british", "german",
	}
	commonCategories = []string{
		"appetizer", "main course", "dessert", "side dish", "soup",
		"salad", "breakfast", "lunch", "dinner", "snack", "beverage",
		"sauce", "marinade", "bread", "pasta",
	}
	appetizingWords = []string{"delicious", "flavorful", "tender", "crispy", "fresh", "savory", "rich"}
	actionWords     = []string{"heat", "cook", "add", "mix", "stir", "bake", "fry", "boil", "simmer"}
)

func set(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, s := range items {
		m[s] = struct{}{}
	}
	return m
}

// Result is the outcome of validating one recipe.
type Result struct {
	Valid      bool     `json:"is_valid"`
	Issues     []string `json:"issues"`
	Confidence float64  `json:"confidence"`
	Critical   bool     `json:"critical"`
}

// Validator scores recipes against configurable review limits.
type Validator struct {
	reviewThreshold float64
	maxIssues       int
}

// New returns a Validator. Non-positive arguments fall back to the defaults.
func New(reviewThreshold float64, maxIssues int) *Validator {
	if reviewThreshold <= 0 {
		reviewThreshold = ReviewThreshold
	}
	if maxIssues <= 0 {
		maxIssues = MaxQualityIssues
	}
	return &Validator{reviewThreshold: reviewThreshold, maxIssues: maxIssues}
}

// Validate returns critical issues with confidence 0 when any exist;
// otherwise the quality issues and the model confidence scaled by the mean
// quality score, capped at 1.
func (v *Validator) Validate(r *domain.ParsedRecipe) Result {
	if critical := CriticalIssues(r); len(critical) > 0 {
		return Result{Valid: false, Issues: critical, Confidence: 0, Critical: true}
	}

	issues, quality := qualityIssues(r)
	confidence := clamp01(r.OverallConfidence() * quality)

	needsReview := confidence < v.reviewThreshold || len(issues) > v.maxIssues
	return Result{Valid: !needsReview, Issues: issues, Confidence: confidence}
}

// CriticalIssues lists the problems that make a recipe unusable.
func CriticalIssues(r *domain.ParsedRecipe) []string {
	var issues []string

	if len(strings.TrimSpace(r.Title)) < 3 {
		issues = append(issues, "Title is missing or too short")
	}

	if len(r.Ingredients) == 0 {
		issues = append(issues, "No ingredients found")
	}
	for i, ing := range r.Ingredients {
		if len(strings.TrimSpace(ing.Name)) < 2 {
			issues = append(issues, fmt.Sprintf("Ingredient %d has invalid name", i+1))
		}
	}

	if len(r.Instructions) == 0 {
		issues = append(issues, "No instructions found")
	}
	for i, step := range r.Instructions {
		if len(strings.TrimSpace(step)) < 10 {
			issues = append(issues, fmt.Sprintf("Instruction %d is too short or empty", i+1))
		}
	}

	if r.Difficulty < 1 || r.Difficulty > 5 {
		issues = append(issues, "Difficulty must be between 1 and 5")
	}
	if r.Servings < 1 {
		issues = append(issues, "Servings must be at least 1")
	}
	if r.PrepTimeMinutes < 0 || r.CookTimeMinutes < 0 {
		issues = append(issues, "Time values cannot be negative")
	}
	return issues
}

func qualityIssues(r *domain.ParsedRecipe) ([]string, float64) {
	var issues []string
	var scores []float64

	check := func(score, min float64, issue string) {
		scores = append(scores, score)
		if score < min {
			issues = append(issues, issue)
		}
	}

	check(scoreDescription(r.Description), 0.7, "Description quality could be improved")
	check(scoreIngredients(r.Ingredients), 0.7, "Some ingredients may need clarification")
	check(scoreInstructions(r.Instructions), 0.7, "Instructions could be more detailed")
	check(scoreVocabulary(r.Cuisine, commonCuisines), 0.8, "Unusual cuisine type: "+r.Cuisine)
	check(scoreVocabulary(r.Category, commonCategories), 0.8, "Unusual category: "+r.Category)
	check(scoreTags(r.Tags), 0.8, "Some tags may not be recognized")
	check(scoreTimes(r.PrepTimeMinutes, r.CookTimeMinutes), 0.7, "Cooking times seem unusual")
	if r.Nutrition != nil {
		check(scoreNutrition(r.Nutrition), 0.7, "Nutrition information seems inconsistent")
	}

	if len(scores) == 0 {
		return issues, 0.5
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return issues, sum / float64(len(scores))
}

func scoreDescription(desc string) float64 {
	if desc == "" {
		return 0
	}
	score := 0.5
	if n := len(desc); n >= 50 && n <= 500 {
		score += 0.2
	}
	if containsAny(strings.ToLower(desc), appetizingWords) {
		score += 0.2
	}
	if strings.Contains(desc, ".") {
		score += 0.1
	}
	return math.Min(score, 1)
}

func scoreIngredients(ings []domain.ParsedIngredient) float64 {
	if len(ings) == 0 {
		return 0
	}
	score := 0.5
	var withQty, reasonable int
	for _, ing := range ings {
		if ing.QuantityValue != nil {
			withQty++
		}
		if n := len(ing.Name); n > 2 && n < 50 {
			reasonable++
		}
	}
	total := float64(len(ings))
	if float64(withQty)/total > 0.7 {
		score += 0.3
	}
	if float64(reasonable)/total > 0.9 {
		score += 0.2
	}
	return math.Min(score, 1)
}

func scoreInstructions(steps []string) float64 {
	if len(steps) == 0 {
		return 0
	}
	score := 0.5
	var totalLen, withAction int
	for _, s := range steps {
		totalLen += len(s)
		if containsAny(strings.ToLower(s), actionWords) {
			withAction++
		}
	}
	n := float64(len(steps))
	if avg := float64(totalLen) / n; avg >= 20 && avg <= 200 {
		score += 0.3
	}
	if float64(withAction)/n > 0.5 {
		score += 0.2
	}
	return math.Min(score, 1)
}

// scoreVocabulary rates a cuisine or category against a known list:
// exact 1.0, substring either way 0.8, unknown 0.6, empty 0.5.
func scoreVocabulary(value string, known []string) float64 {
	if value == "" {
		return 0.5
	}
	v := strings.ToLower(value)
	for _, k := range known {
		if v == k {
			return 1
		}
	}
	for _, k := range known {
		if strings.Contains(v, k) || strings.Contains(k, v) {
			return 0.8
		}
	}
	return 0.6
}

func scoreTags(tags []string) float64 {
	if len(tags) == 0 {
		return 0.8
	}
	var recognized int
	for _, t := range tags {
		if _, ok := dietaryTags[strings.ToLower(t)]; ok {
			recognized++
		}
	}
	return 0.6 + float64(recognized)/float64(len(tags))*0.4
}

func scoreTimes(prep, cook int) float64 {
	total := prep + cook
	switch {
	case total < 5 || total > 480:
		return 0.5
	case total >= 10 && total <= 180:
		return 1
	default:
		return 0.7
	}
}

// scoreNutrition checks the calorie range and that macros agree with the
// stated calories within 30%.
func scoreNutrition(n *domain.ParsedNutrition) float64 {
	score := 0.5
	cal := n.CaloriesPerServing
	if cal != nil && *cal >= 50 && *cal <= 2000 {
		score += 0.3
	}
	if cal != nil && *cal > 0 && positive(n.ProteinG) && positive(n.CarbsG) && positive(n.FatG) {
		computed := *n.ProteinG*4 + *n.CarbsG*4 + *n.FatG*9
		if math.Abs(computed-*cal)/(*cal) < 0.3 {
			score += 0.2
		}
	}
	return math.Min(score, 1)
}

func positive(v *float64) bool {
	return v != nil && *v > 0
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
