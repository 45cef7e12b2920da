package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/timmy/recipe-ingest/internal/domain"
	"gorm.io/gorm"
)

// ReviewRepository records reviewer decisions.
type ReviewRepository struct {
	db *gorm.DB
}

func NewReviewRepository(db *gorm.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review, generating its ID when empty.
func (r *ReviewRepository) Create(ctx context.Context, review *domain.IngestionReview) error {
	if review.ID == "" {
		review.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Create(review).Error
}

// ListByJob returns a job's reviews oldest first.
func (r *ReviewRepository) ListByJob(ctx context.Context, jobID string) ([]domain.IngestionReview, error) {
	var reviews []domain.IngestionReview
	err := r.db.WithContext(ctx).Where("job_id = ?", jobID).Order("created_at ASC").Find(&reviews).Error
	return reviews, err
}
