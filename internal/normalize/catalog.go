package normalize

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
)

// OtherCategory is the catalog category unmapped recipe categories fall into.
const OtherCategory = "Other"

// Source loads the full catalog.
type Source interface {
	LoadCatalog(ctx context.Context) (domain.CatalogData, error)
}

// Snapshot is an immutable, indexed view of the catalog. It is safe for
// concurrent use.
type Snapshot struct {
	ingredients []domain.BaseIngredient // longest name first
	byName      map[string]*domain.BaseIngredient
	byAlias     map[string]*domain.BaseIngredient
	units       map[string]*domain.Unit
	categories  map[string]string
	otherID     *string
	counts      CatalogCounts
}

type CatalogCounts struct {
	BaseIngredients int `json:"base_ingredients"`
	Units           int `json:"units"`
	Categories      int `json:"categories"`
}

// NewSnapshot indexes data. The input slices are copied.
func NewSnapshot(data domain.CatalogData) *Snapshot {
	s := &Snapshot{
		ingredients: append([]domain.BaseIngredient(nil), data.BaseIngredients...),
		byName:      make(map[string]*domain.BaseIngredient, len(data.BaseIngredients)),
		byAlias:     make(map[string]*domain.BaseIngredient),
		units:       make(map[string]*domain.Unit, 2*len(data.Units)),
		categories:  make(map[string]string),
		counts: CatalogCounts{
			BaseIngredients: len(data.BaseIngredients),
			Units:           len(data.Units),
			Categories:      len(data.Categories),
		},
	}

	sort.SliceStable(s.ingredients, func(i, j int) bool {
		return len(s.ingredients[i].NameEn) > len(s.ingredients[j].NameEn)
	})
	for i := range s.ingredients {
		ing := &s.ingredients[i]
		s.byName[strings.ToLower(ing.NameEn)] = ing
		for _, alias := range ing.Aliases {
			key := strings.ToLower(strings.TrimSpace(alias))
			if _, taken := s.byAlias[key]; !taken && key != "" {
				s.byAlias[key] = ing
			}
		}
	}

	units := append([]domain.Unit(nil), data.Units...)
	for i := range units {
		u := &units[i]
		s.units[strings.ToLower(u.AbbreviationEn)] = u
		if _, taken := s.units[strings.ToLower(u.NameEn)]; !taken {
			s.units[strings.ToLower(u.NameEn)] = u
		}
	}

	for _, c := range data.Categories {
		id := c.ID
		s.categories[strings.ToLower(c.Name)] = id
		for _, alias := range c.Aliases {
			s.categories[strings.ToLower(strings.TrimSpace(alias))] = id
		}
		if strings.EqualFold(c.Name, OtherCategory) {
			s.otherID = &id
		}
	}
	return s
}

func (s *Snapshot) Counts() CatalogCounts { return s.counts }

// Unit returns the unit whose abbreviation or name is canonical.
func (s *Snapshot) Unit(canonical string) (*domain.Unit, bool) {
	u, ok := s.units[strings.ToLower(canonical)]
	return u, ok
}

// CategoryID maps free-text category names to a catalog category. Unknown or
// empty text maps to nil; text that names no category maps to Other.
func (s *Snapshot) CategoryID(category string) *string {
	if domain.IsUnknown(category) {
		return nil
	}
	if id, ok := s.categories[strings.ToLower(strings.TrimSpace(category))]; ok {
		return &id
	}
	if s.otherID == nil {
		return nil
	}
	id := *s.otherID
	return &id
}

// MatchIngredient finds a base ingredient for a cleaned name by exact name,
// then alias, then substring in either direction, then single words.
func (s *Snapshot) MatchIngredient(clean string) (*domain.BaseIngredient, string) {
	if clean == "" {
		return nil, ""
	}
	if ing, ok := s.byName[clean]; ok {
		return ing, "exact"
	}
	if ing, ok := s.byAlias[clean]; ok {
		return ing, "alias"
	}
	for i := range s.ingredients {
		name := strings.ToLower(s.ingredients[i].NameEn)
		if strings.Contains(clean, name) {
			return &s.ingredients[i], "partial"
		}
	}
	for i := len(s.ingredients) - 1; i >= 0 && len(clean) > 2; i-- {
		if strings.Contains(strings.ToLower(s.ingredients[i].NameEn), clean) {
			return &s.ingredients[i], "partial"
		}
	}
	for _, word := range strings.Fields(clean) {
		if len(word) <= 2 {
			continue
		}
		if ing, ok := s.byAlias[word]; ok {
			return ing, "word"
		}
		for i := range s.ingredients {
			for _, part := range strings.Fields(strings.ToLower(s.ingredients[i].NameEn)) {
				if part == word {
					return &s.ingredients[i], "word"
				}
			}
		}
	}
	return nil, ""
}

// Catalog holds the current Snapshot. It changes only through Reload.
type Catalog struct {
	source Source
	snap   atomic.Pointer[Snapshot]
}

// NewCatalog returns a catalog with an empty snapshot; call Reload to load it.
func NewCatalog(source Source) *Catalog {
	c := &Catalog{source: source}
	c.snap.Store(NewSnapshot(domain.CatalogData{}))
	return c
}

// NewStaticCatalog returns a catalog fixed to data.
func NewStaticCatalog(data domain.CatalogData) *Catalog {
	c := &Catalog{}
	c.snap.Store(NewSnapshot(data))
	return c
}

func (c *Catalog) Snapshot() *Snapshot {
	return c.snap.Load()
}

// Reload replaces the snapshot with fresh data from the source. On error the
// previous snapshot stays in place.
func (c *Catalog) Reload(ctx context.Context) (CatalogCounts, error) {
	if c.source == nil {
		return CatalogCounts{}, errors.New("catalog has no source")
	}
	data, err := c.source.LoadCatalog(ctx)
	if err != nil {
		return CatalogCounts{}, fmt.Errorf("load catalog: %w", err)
	}
	snap := NewSnapshot(data)
	c.snap.Store(snap)

	counts := snap.Counts()
	logger.CtxInfo(ctx, "Catalog loaded: base_ingredients=%d, units=%d, categories=%d",
		counts.BaseIngredients, counts.Units, counts.Categories)
	return counts, nil
}
