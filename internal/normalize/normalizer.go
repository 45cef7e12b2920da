// Package normalize maps free-text ingredients, units and categories onto the
// canonical catalog.
package normalize

import (
	"context"
	"regexp"
	"strings"

	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
)

// prepWords are stripped from names before matching and surface in the
// preparation notes instead.
var prepWords = []string{
	"chopped", "diced", "minced", "sliced", "grated", "ground",
	"fresh", "dried", "whole", "large", "small", "medium",
	"finely", "roughly", "coarsely",
}

var notePhrases = append(append([]string(nil), prepWords...), "to taste", "optional")

// nameNormalizations run in order over the cleaned name.
var nameNormalizations = []struct{ from, to string }{
	{"garlic cloves", "garlic"},
	{"cloves garlic", "garlic"},
	{"clove garlic", "garlic"},
	{"onions", "onion"},
	{"tomatoes", "tomato"},
	{"carrots", "carrot"},
	{"potatoes", "potato"},
	{"eggs", "egg"},
	{"black pepper", "black pepper"},
	{"parmesan cheese", "parmesan"},
	{"mozzarella cheese", "mozzarella"},
	{"cheddar cheese", "cheddar"},
	{"chicken thighs", "chicken thigh"},
	{"chicken breasts", "chicken breast"},
	{"salt and pepper", "salt"},
}

var (
	nameQty     = regexp.MustCompile(`^\d+([.,]\d+)?\s*(g|kg|ml|l|cup|cups|tbsp|tsp|oz|lb|piece|pieces|pc|pcs|clove|cloves)?\s+`)
	namePunct   = regexp.MustCompile(`[,()]`)
	prepPattern = wordPatterns(prepWords)
	notePattern = wordPatterns(notePhrases)
)

func wordPatterns(words []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(words))
	for i, w := range words {
		out[i] = regexp.MustCompile(`\b` + w + `\b`)
	}
	return out
}

// Normalizer turns parsed ingredients into recipe ingredient rows. Matching
// is best effort: an ingredient that matches nothing is kept display-only.
type Normalizer struct {
	catalog *Catalog
}

func NewNormalizer(catalog *Catalog) *Normalizer {
	return &Normalizer{catalog: catalog}
}

// Catalog returns the catalog backing the normalizer.
func (n *Normalizer) Catalog() *Catalog {
	return n.catalog
}

// CategoryID maps a recipe category onto the current catalog snapshot.
func (n *Normalizer) CategoryID(category string) *string {
	return n.catalog.Snapshot().CategoryID(category)
}

// ProcessIngredients maps each ingredient onto the catalog snapshot current at
// the time of the call. The output depends only on the input and the snapshot.
// Rows carry no ID or RecipeID; the repository assigns them.
func (n *Normalizer) ProcessIngredients(ctx context.Context, ingredients []domain.ParsedIngredient) []domain.RecipeIngredient {
	snap := n.catalog.Snapshot()
	rows := make([]domain.RecipeIngredient, 0, len(ingredients))
	matched := 0
	for i, ing := range ingredients {
		row := n.processOne(snap, ing)
		row.SortOrder = i + 1
		if row.BaseIngredientID != nil {
			matched++
		}
		rows = append(rows, row)
	}
	logger.With(logger.Fields{
		logger.FieldCount: len(rows),
		"matched":         matched,
	}).Debug(ctx, "Ingredients normalized")
	return rows
}

func (n *Normalizer) processOne(snap *Snapshot, ing domain.ParsedIngredient) domain.RecipeIngredient {
	if ing.QuantityValue == nil && HasLeadingQuantity(ing.Name) {
		ing = mergeParsed(ing, ParseLine(ing.Name))
	}

	row := domain.RecipeIngredient{
		DisplayName: strings.TrimSpace(ing.Name),
		Amount:      copyFloat(ing.QuantityValue),
	}

	if base, _ := snap.MatchIngredient(CleanName(ing.Name)); base != nil {
		id := base.ID
		row.BaseIngredientID = &id
	}

	if ing.Unit != nil {
		if unit := unitFor(snap, *ing.Unit); unit != nil {
			id := unit.ID
			row.UnitID = &id
		}
	}

	if notes := preparationNotes(ing); notes != "" {
		row.PreparationNotes = &notes
	}
	return row
}

// CleanName lowercases a name and strips quantities, preparation words and
// punctuation so it can be matched against the catalog.
func CleanName(name string) string {
	clean := strings.ToLower(strings.TrimSpace(name))
	clean = nameQty.ReplaceAllString(clean, "")
	for _, re := range prepPattern {
		clean = re.ReplaceAllString(clean, "")
	}
	clean = namePunct.ReplaceAllString(clean, "")
	clean = strings.Join(strings.Fields(clean), " ")
	for _, norm := range nameNormalizations {
		if strings.Contains(clean, norm.from) {
			clean = strings.ReplaceAll(clean, norm.from, norm.to)
		}
	}
	return strings.TrimSpace(clean)
}

func unitFor(snap *Snapshot, raw string) *domain.Unit {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if unitless[lower] {
		return nil
	}
	canonical, ok := CanonicalUnit(lower)
	if !ok {
		canonical = lower
	}
	if u, ok := snap.Unit(canonical); ok {
		return u
	}
	return nil
}

func preparationNotes(ing domain.ParsedIngredient) string {
	var notes []string
	if ing.Notes != nil && strings.TrimSpace(*ing.Notes) != "" {
		notes = append(notes, strings.TrimSpace(*ing.Notes))
	}
	if ing.Unit != nil {
		if u := strings.ToLower(strings.TrimSpace(*ing.Unit)); descriptiveUnits[u] && !containsNote(notes, u) {
			notes = append(notes, u)
		}
	}
	name := strings.ToLower(ing.Name)
	for i, phrase := range notePhrases {
		if notePattern[i].MatchString(name) && !containsNote(notes, phrase) {
			notes = append(notes, phrase)
		}
	}
	return strings.Join(notes, ", ")
}

func containsNote(notes []string, phrase string) bool {
	for _, n := range notes {
		if strings.Contains(n, phrase) {
			return true
		}
	}
	return false
}

// mergeParsed fills in what the parser recovered from a name that still
// carries its quantity. Explicit fields on orig win.
func mergeParsed(orig, parsed domain.ParsedIngredient) domain.ParsedIngredient {
	out := orig
	if parsed.Name != "" {
		out.Name = parsed.Name
	}
	out.QuantityValue = parsed.QuantityValue
	if out.Unit == nil {
		out.Unit = parsed.Unit
	}
	switch {
	case out.Notes == nil:
		out.Notes = parsed.Notes
	case parsed.Notes != nil:
		joined := *out.Notes + ", " + *parsed.Notes
		out.Notes = &joined
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
