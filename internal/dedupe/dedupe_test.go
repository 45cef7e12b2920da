package dedupe

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/timmy/recipe-ingest/internal/domain"
)

type memStore struct {
	byHash map[string]domain.RecipeFingerprint
	err    error
}

func newMemStore() *memStore {
	return &memStore{byHash: map[string]domain.RecipeFingerprint{}}
}

func (m *memStore) FindByHash(_ context.Context, hash string) (*domain.RecipeFingerprint, error) {
	if m.err != nil {
		return nil, m.err
	}
	fp, ok := m.byHash[hash]
	if !ok {
		return nil, nil
	}
	return &fp, nil
}

func (m *memStore) FindCandidates(_ context.Context, cuisine string, minT, maxT, limit int) ([]domain.RecipeFingerprint, error) {
	var out []domain.RecipeFingerprint
	for _, fp := range m.byHash {
		if fp.CuisineNormalized == cuisine && fp.TotalTimeMinutes >= minT && fp.TotalTimeMinutes <= maxT {
			out = append(out, fp)
		}
	}
	return out, nil
}

func (m *memStore) Upsert(_ context.Context, fp *domain.RecipeFingerprint) error {
	m.byHash[fp.FingerprintHash] = *fp
	return nil
}

type stubIndex struct {
	upserts int
	hits    []domain.RecipeFingerprint
	err     error
}

func (s *stubIndex) UpsertFingerprint(context.Context, domain.RecipeFingerprint, []float32) error {
	s.upserts++
	return s.err
}

func (s *stubIndex) SearchCandidates(context.Context, string, int, int, []float32, int) ([]domain.RecipeFingerprint, error) {
	return s.hits, s.err
}

func recipe(title, cuisine string, prep, cook int) *domain.ParsedRecipe {
	return &domain.ParsedRecipe{Title: title, Cuisine: cuisine, PrepTimeMinutes: prep, CookTimeMinutes: cook, Servings: 4, Difficulty: 2}
}

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Easy Tomato Pasta", "tomato pasta"},
		{"Tomato Pasta Easy Recipe", "tomato pasta"},
		{"The BEST   homemade Pie!!", "the pie"},
		{"Crème Brûlée", "crème brûlée"},
		{"Quickly Seared Tuna", "quickly seared tuna"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeText(tt.in); got != tt.want {
			t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFingerprintIgnoresFillerWords(t *testing.T) {
	a := Fingerprint("", recipe("Easy Tomato Pasta", "Italian", 10, 20))
	b := Fingerprint("", recipe("Tomato Pasta Easy Recipe", "italian", 15, 15))
	if a.FingerprintHash != b.FingerprintHash {
		t.Errorf("hashes differ: %s vs %s", a.FingerprintHash, b.FingerprintHash)
	}
	c := Fingerprint("", recipe("Tomato Pasta", "Italian", 10, 25))
	if a.FingerprintHash == c.FingerprintHash {
		t.Error("different total time must change the hash")
	}
	if len(a.FingerprintHash) != 40 {
		t.Errorf("hash length = %d, want 40 hex chars", len(a.FingerprintHash))
	}
}

func TestCheckDuplicatesExact(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	d := New(store, nil, Options{})

	if err := d.CreateFingerprint(ctx, "recipe-1", recipe("Easy Tomato Pasta", "Italian", 10, 20)); err != nil {
		t.Fatalf("CreateFingerprint() error = %v", err)
	}

	got, err := d.CheckDuplicates(ctx, recipe("Tomato Pasta Easy Recipe", "Italian", 10, 20))
	if err != nil {
		t.Fatalf("CheckDuplicates() error = %v", err)
	}
	if !got.IsDuplicate || got.ExactDuplicateID == nil || *got.ExactDuplicateID != "recipe-1" {
		t.Errorf("CheckDuplicates() = %+v, want exact duplicate of recipe-1", got)
	}
	if len(got.SimilarIDs) != 0 {
		t.Errorf("SimilarIDs = %v, want none on exact match", got.SimilarIDs)
	}
}

func TestCheckDuplicatesSimilar(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	d := New(store, nil, Options{})

	_ = d.CreateFingerprint(ctx, "near", recipe("Tomato Pasta", "Italian", 10, 20))
	_ = d.CreateFingerprint(ctx, "far-time", recipe("Tomato Pasta", "Italian", 30, 30))
	_ = d.CreateFingerprint(ctx, "other-cuisine", recipe("Tomato Pasta", "Mexican", 10, 20))
	_ = d.CreateFingerprint(ctx, "unrelated", recipe("Beef Stew", "Italian", 10, 25))

	got, err := d.CheckDuplicates(ctx, recipe("Tomato Pasta Bake", "Italian", 10, 28))
	if err != nil {
		t.Fatalf("CheckDuplicates() error = %v", err)
	}
	if got.IsDuplicate {
		t.Fatalf("CheckDuplicates() reported exact duplicate: %+v", got)
	}
	if len(got.SimilarIDs) != 1 || got.SimilarIDs[0] != "near" {
		t.Errorf("SimilarIDs = %v, want [near]", got.SimilarIDs)
	}
}

func TestCheckDuplicatesMergesIndexCandidates(t *testing.T) {
	ctx := context.Background()
	index := &stubIndex{hits: []domain.RecipeFingerprint{
		{RecipeID: "from-index", TitleNormalized: "garlic bread"},
		{RecipeID: "noise", TitleNormalized: "lemon tart"},
	}}
	d := New(newMemStore(), index, Options{})

	got, err := d.CheckDuplicates(ctx, recipe("Garlic Bread", "French", 5, 10))
	if err != nil {
		t.Fatalf("CheckDuplicates() error = %v", err)
	}
	if len(got.SimilarIDs) != 1 || got.SimilarIDs[0] != "from-index" {
		t.Errorf("SimilarIDs = %v, want [from-index]", got.SimilarIDs)
	}

	if err := d.CreateFingerprint(ctx, "r", recipe("Garlic Bread", "French", 5, 10)); err != nil {
		t.Fatalf("CreateFingerprint() error = %v", err)
	}
	if index.upserts != 1 {
		t.Errorf("index upserts = %d, want 1", index.upserts)
	}
}

func TestCheckDuplicatesStoreError(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("db down")
	if _, err := New(store, nil, Options{}).CheckDuplicates(context.Background(), recipe("Soup", "French", 5, 5)); err == nil {
		t.Fatal("CheckDuplicates() should surface store errors")
	}
}

func TestRatios(t *testing.T) {
	tests := []struct {
		name    string
		a, b    string
		ratio   float64
		partial float64
	}{
		{"identical", "tomato pasta", "tomato pasta", 1, 1},
		{"contained", "tomato pasta", "tomato pasta bake", 24.0 / 29.0, 1},
		{"both empty", "", "", 1, 1},
		{"one empty", "soup", "", 0, 0},
		{"disjoint", "abc", "xyz", 0, 0},
		{"accents count as runes", "crème", "creme", 0.8, 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ratio(tt.a, tt.b); math.Abs(got-tt.ratio) > 1e-9 {
				t.Errorf("Ratio() = %v, want %v", got, tt.ratio)
			}
			if got := PartialRatio(tt.a, tt.b); math.Abs(got-tt.partial) > 1e-9 {
				t.Errorf("PartialRatio() = %v, want %v", got, tt.partial)
			}
		})
	}
}

func TestCalculateSimilarityScore(t *testing.T) {
	a := Comparable{Title: "Tomato Pasta", Cuisine: "Italian", TotalTimeMinutes: 30, Servings: 4, Difficulty: 2}

	if got := CalculateSimilarityScore(a, a); math.Abs(got-1) > 1e-9 {
		t.Errorf("identical score = %v, want 1", got)
	}

	b := Comparable{Title: "Beef Stew", Cuisine: "Irish", TotalTimeMinutes: 120, Servings: 10, Difficulty: 5}
	if got := CalculateSimilarityScore(a, b); got > 0.4 {
		t.Errorf("unrelated score = %v, want low", got)
	}

	unknownTime := a
	unknownTime.TotalTimeMinutes = 0
	want := 0.4 + 0.2 + 0.5*0.2 + 0.1 + 0.1
	if got := CalculateSimilarityScore(a, unknownTime); math.Abs(got-want) > 1e-9 {
		t.Errorf("unknown time score = %v, want %v", got, want)
	}
}

func TestTitleSketch(t *testing.T) {
	v := TitleSketch("tomato pasta", 64)
	if len(v) != 64 {
		t.Fatalf("len = %d, want 64", len(v))
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if math.Abs(norm-1) > 1e-5 {
		t.Errorf("squared norm = %v, want 1", norm)
	}

	cos := func(a, b []float32) float64 {
		var s float64
		for i := range a {
			s += float64(a[i]) * float64(b[i])
		}
		return s
	}
	near := cos(v, TitleSketch("tomato pasta bake", 64))
	far := cos(v, TitleSketch("lemon tart", 64))
	if near <= far {
		t.Errorf("cosine(near) = %v should exceed cosine(far) = %v", near, far)
	}
}
