package repository

import (
	"context"

	"github.com/timmy/recipe-ingest/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FingerprintRepository stores recipe fingerprints for duplicate detection.
type FingerprintRepository struct {
	db *gorm.DB
}

func NewFingerprintRepository(db *gorm.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db}
}

// FindByHash returns the fingerprint with the given hash, or nil if none exists.
func (r *FingerprintRepository) FindByHash(ctx context.Context, hash string) (*domain.RecipeFingerprint, error) {
	var fps []domain.RecipeFingerprint
	if err := r.db.WithContext(ctx).Where("fingerprint_hash = ?", hash).Limit(1).Find(&fps).Error; err != nil {
		return nil, err
	}
	if len(fps) == 0 {
		return nil, nil
	}
	return &fps[0], nil
}

// FindCandidates returns fingerprints of the same normalized cuisine whose
// total time lies in [minTotal, maxTotal].
func (r *FingerprintRepository) FindCandidates(ctx context.Context, cuisineNorm string, minTotal, maxTotal, limit int) ([]domain.RecipeFingerprint, error) {
	var fps []domain.RecipeFingerprint
	query := r.db.WithContext(ctx).
		Where("cuisine_normalized = ? AND total_time_minutes BETWEEN ? AND ?", cuisineNorm, minTotal, maxTotal).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&fps).Error; err != nil {
		return nil, err
	}
	return fps, nil
}

// Upsert inserts fp; on a hash collision the existing row is repointed at fp's recipe.
func (r *FingerprintRepository) Upsert(ctx context.Context, fp *domain.RecipeFingerprint) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"recipe_id", "title_normalized", "cuisine_normalized", "total_time_minutes"}),
	}).Create(fp).Error
}
