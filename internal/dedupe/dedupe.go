// Package dedupe detects exact and near-duplicate recipes by fingerprint.
package dedupe

import (
	"context"
	"fmt"
	"math"

	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
)

const (
	DefaultTimeTolerance       = 10
	DefaultSimilarityThreshold = 0.85
	candidateLimit             = 50
)

// FingerprintStore is the persistence the deduplicator needs.
// FindByHash returns nil with no error when no fingerprint matches.
type FingerprintStore interface {
	FindByHash(ctx context.Context, hash string) (*domain.RecipeFingerprint, error)
	FindCandidates(ctx context.Context, cuisineNorm string, minTotal, maxTotal, limit int) ([]domain.RecipeFingerprint, error)
	Upsert(ctx context.Context, fp *domain.RecipeFingerprint) error
}

// CandidateIndex is an optional vector index over normalized titles that
// widens candidate retrieval beyond the relational range lookup.
type CandidateIndex interface {
	UpsertFingerprint(ctx context.Context, fp domain.RecipeFingerprint, vector []float32) error
	SearchCandidates(ctx context.Context, cuisineNorm string, minTotal, maxTotal int, vector []float32, limit int) ([]domain.RecipeFingerprint, error)
}

// Check is the outcome of a duplicate check.
type Check struct {
	IsDuplicate      bool
	ExactDuplicateID *string
	SimilarIDs       []string
}

// Options tunes a Deduplicator.
type Options struct {
	TimeToleranceMinutes int
	SimilarityThreshold  float64
	SketchDimensions     int
}

type Deduplicator struct {
	store     FingerprintStore
	index     CandidateIndex
	tolerance int
	threshold float64
	dims      int
}

// New creates a Deduplicator. index may be nil.
func New(store FingerprintStore, index CandidateIndex, opts Options) *Deduplicator {
	if opts.TimeToleranceMinutes <= 0 {
		opts.TimeToleranceMinutes = DefaultTimeTolerance
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if opts.SketchDimensions <= 0 {
		opts.SketchDimensions = 256
	}
	return &Deduplicator{
		store:     store,
		index:     index,
		tolerance: opts.TimeToleranceMinutes,
		threshold: opts.SimilarityThreshold,
		dims:      opts.SketchDimensions,
	}
}

// CheckDuplicates looks for an exact fingerprint match first. Without one it
// screens candidates of the same cuisine within the time tolerance and
// returns those whose normalized title is similar enough.
func (d *Deduplicator) CheckDuplicates(ctx context.Context, r *domain.ParsedRecipe) (Check, error) {
	fp := Fingerprint("", r)

	exact, err := d.store.FindByHash(ctx, fp.FingerprintHash)
	if err != nil {
		return Check{}, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if exact != nil {
		id := exact.RecipeID
		return Check{IsDuplicate: true, ExactDuplicateID: &id}, nil
	}

	minT, maxT := fp.TotalTimeMinutes-d.tolerance, fp.TotalTimeMinutes+d.tolerance
	candidates, err := d.store.FindCandidates(ctx, fp.CuisineNormalized, minT, maxT, candidateLimit)
	if err != nil {
		return Check{}, fmt.Errorf("load candidates: %w", err)
	}

	if d.index != nil {
		vec := TitleSketch(fp.TitleNormalized, d.dims)
		extra, err := d.index.SearchCandidates(ctx, fp.CuisineNormalized, minT, maxT, vec, candidateLimit)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warn("Title index search failed, using relational candidates only")
		} else {
			candidates = append(candidates, extra...)
		}
	}

	seen := make(map[string]struct{}, len(candidates))
	var similar []string
	for _, c := range candidates {
		if _, ok := seen[c.RecipeID]; ok {
			continue
		}
		seen[c.RecipeID] = struct{}{}
		if PartialRatio(fp.TitleNormalized, c.TitleNormalized) >= d.threshold {
			similar = append(similar, c.RecipeID)
		}
	}
	return Check{SimilarIDs: similar}, nil
}

// CreateFingerprint records the fingerprint of a persisted recipe. The title
// index, when configured, is best effort.
func (d *Deduplicator) CreateFingerprint(ctx context.Context, recipeID string, r *domain.ParsedRecipe) error {
	fp := Fingerprint(recipeID, r)
	if err := d.store.Upsert(ctx, &fp); err != nil {
		return fmt.Errorf("store fingerprint: %w", err)
	}
	if d.index != nil {
		if err := d.index.UpsertFingerprint(ctx, fp, TitleSketch(fp.TitleNormalized, d.dims)); err != nil {
			logger.FromContext(ctx).WithError(err).WithField(logger.FieldRecipeID, recipeID).
				Warn("Failed to index recipe title")
		}
	}
	return nil
}

// Comparable is the subset of recipe attributes used for weighted comparison.
type Comparable struct {
	Title            string
	Cuisine          string
	TotalTimeMinutes int
	Servings         int
	Difficulty       int
}

func FromParsed(r *domain.ParsedRecipe) Comparable {
	return Comparable{
		Title:            r.Title,
		Cuisine:          r.Cuisine,
		TotalTimeMinutes: r.TotalTimeMinutes(),
		Servings:         r.Servings,
		Difficulty:       r.Difficulty,
	}
}

func FromRecipe(r *domain.Recipe) Comparable {
	return Comparable{
		Title:            r.Title,
		Cuisine:          r.Cuisine,
		TotalTimeMinutes: r.TotalTimeMinutes(),
		Servings:         r.Servings,
		Difficulty:       r.DifficultyLevel,
	}
}

// CalculateSimilarityScore weighs title similarity 0.4, exact cuisine 0.2,
// time closeness 0.2, servings 0.1 and difficulty 0.1.
func CalculateSimilarityScore(a, b Comparable) float64 {
	title := Ratio(NormalizeText(a.Title), NormalizeText(b.Title))

	cuisine := 0.0
	if ca, cb := NormalizeText(a.Cuisine), NormalizeText(b.Cuisine); ca != "" && ca == cb {
		cuisine = 1
	}

	timeSim := 0.5
	if a.TotalTimeMinutes > 0 && b.TotalTimeMinutes > 0 {
		diff := math.Abs(float64(a.TotalTimeMinutes - b.TotalTimeMinutes))
		timeSim = math.Max(0, 1-diff/math.Max(float64(a.TotalTimeMinutes), float64(b.TotalTimeMinutes)))
	}

	servings := 0.5
	if abs(a.Servings-b.Servings) <= 2 {
		servings = 1
	}
	difficulty := 0.5
	if abs(a.Difficulty-b.Difficulty) <= 1 {
		difficulty = 1
	}

	return title*0.4 + cuisine*0.2 + timeSim*0.2 + servings*0.1 + difficulty*0.1
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
