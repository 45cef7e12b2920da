package repository

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/timmy/recipe-ingest/internal/domain"
	"github.com/timmy/recipe-ingest/internal/logger"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

//go:embed catalog_seed.yaml
var catalogSeed []byte

// DefaultCatalog returns the catalog shipped with the binary.
func DefaultCatalog() (domain.CatalogData, error) {
	var data domain.CatalogData
	if err := yaml.Unmarshal(catalogSeed, &data); err != nil {
		return domain.CatalogData{}, fmt.Errorf("parse catalog seed: %w", err)
	}
	return data, nil
}

// CatalogRepository reads the base ingredient, unit and category tables.
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) *CatalogRepository {
	return &CatalogRepository{db: db}
}

// LoadCatalog reads all three catalog tables.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - domain.CatalogData: every catalog row.
//   - error: non-nil if any table cannot be read.
func (r *CatalogRepository) LoadCatalog(ctx context.Context) (domain.CatalogData, error) {
	var data domain.CatalogData
	db := r.db.WithContext(ctx)
	if err := db.Order("name_en").Find(&data.BaseIngredients).Error; err != nil {
		return data, fmt.Errorf("load base ingredients: %w", err)
	}
	if err := db.Order("name_en").Find(&data.Units).Error; err != nil {
		return data, fmt.Errorf("load units: %w", err)
	}
	if err := db.Order("name").Find(&data.Categories).Error; err != nil {
		return data, fmt.Errorf("load categories: %w", err)
	}
	return data, nil
}

// Seed inserts data into each catalog table that is still empty. Tables that
// already hold rows are left alone, so seeding on every start is safe.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - data: rows to seed.
// Returns:
//   - error: non-nil if a count or insert fails.
func (r *CatalogRepository) Seed(ctx context.Context, data domain.CatalogData) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := seedTable(ctx, tx, &domain.BaseIngredient{}, data.BaseIngredients); err != nil {
			return fmt.Errorf("seed base ingredients: %w", err)
		}
		if err := seedTable(ctx, tx, &domain.Unit{}, data.Units); err != nil {
			return fmt.Errorf("seed units: %w", err)
		}
		if err := seedTable(ctx, tx, &domain.Category{}, data.Categories); err != nil {
			return fmt.Errorf("seed categories: %w", err)
		}
		return nil
	})
}

func seedTable[T any](ctx context.Context, tx *gorm.DB, model interface{}, rows []T) error {
	if len(rows) == 0 {
		return nil
	}
	var count int64
	if err := tx.Model(model).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, 100).Error; err != nil {
		return err
	}
	logger.With(logger.Fields{logger.FieldCount: len(rows)}).Info(ctx, "Seeded catalog table %T", model)
	return nil
}
