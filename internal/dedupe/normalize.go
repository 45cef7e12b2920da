package dedupe

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strconv"
	"strings"

	"github.com/timmy/recipe-ingest/internal/domain"
)

var (
	stopWords = regexp.MustCompile(`\b(recipe|easy|quick|simple|best|perfect|homemade)\b`)
	nonWord   = regexp.MustCompile(`[^\p{L}\p{N}_\s]`)
)

// NormalizeText lowercases s, drops filler words that do not make a recipe
// distinct, strips punctuation and collapses whitespace.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToLower(s)
	s = stopWords.ReplaceAllString(s, "")
	s = nonWord.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// Fingerprint returns the fingerprint record for a recipe that is about to be,
// or has been, persisted under recipeID.
func Fingerprint(recipeID string, r *domain.ParsedRecipe) domain.RecipeFingerprint {
	title := NormalizeText(r.Title)
	cuisine := NormalizeText(r.Cuisine)
	total := r.TotalTimeMinutes()
	return domain.RecipeFingerprint{
		RecipeID:          recipeID,
		TitleNormalized:   title,
		CuisineNormalized: cuisine,
		TotalTimeMinutes:  total,
		FingerprintHash:   FingerprintHash(title, cuisine, total),
	}
}

// FingerprintHash is the sha1 hex digest of "title|cuisine|total" over
// already-normalized values.
func FingerprintHash(titleNorm, cuisineNorm string, totalMinutes int) string {
	sum := sha1.Sum([]byte(titleNorm + "|" + cuisineNorm + "|" + strconv.Itoa(totalMinutes)))
	return hex.EncodeToString(sum[:])
}
