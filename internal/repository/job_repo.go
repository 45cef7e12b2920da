package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/timmy/recipe-ingest/internal/domain"
	"gorm.io/gorm"
)

// JobRepository handles ingestion job persistence.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new JobRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *JobRepository: repository instance bound to db.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// JobFilter narrows List.
type JobFilter struct {
	Status *domain.JobStatus
	Limit  int
	Offset int
}

// Create inserts a new job.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job to persist.
// Returns:
//   - error: non-nil if the insert fails.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestionJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

// Save writes every field of job and bumps updated_at.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - job: job with updated fields.
// Returns:
//   - error: non-nil if the update fails.
func (r *JobRepository) Save(ctx context.Context, job *domain.IngestionJob) error {
	return r.db.WithContext(ctx).Save(job).Error
}

// UpdateStatusIf moves job id to status to, but only while its stored status
// is one of from. It is the claim step for operations that must not run twice
// on the same job.
// Returns:
//   - error: domain.ErrInvalidTransition if the job is missing or in another status.
func (r *JobRepository) UpdateStatusIf(ctx context.Context, id string, from []domain.JobStatus, to domain.JobStatus) error {
	res := r.db.WithContext(ctx).Model(&domain.IngestionJob{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return fmt.Errorf("update status of job %s: %w", id, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: job %s is no longer in %v", domain.ErrInvalidTransition, id, from)
	}
	return nil
}

// GetByID retrieves a job by ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: job ID.
// Returns:
//   - *domain.IngestionJob: job if found.
//   - error: domain.ErrNotFound if no job has this ID.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestionJob, error) {
	var job domain.IngestionJob
	if err := r.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// FindActiveByPath returns the newest non-terminal job whose file is at path,
// or nil when there is none.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: source or current path of the file.
// Returns:
//   - *domain.IngestionJob: active job, or nil.
//   - error: non-nil if the query fails.
func (r *JobRepository) FindActiveByPath(ctx context.Context, path string) (*domain.IngestionJob, error) {
	var jobs []domain.IngestionJob
	err := r.db.WithContext(ctx).
		Where("(source_path = ? OR current_path = ?) AND status IN ?", path, path, []domain.JobStatus{
			domain.JobStatusPending,
			domain.JobStatusProcessing,
			domain.JobStatusNeedsReview,
		}).
		Order("created_at DESC").
		Limit(1).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	return &jobs[0], nil
}

// List returns jobs newest first together with the total matching count.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - filter: optional status and pagination.
// Returns:
//   - []domain.IngestionJob: page of jobs.
//   - int64: total number of matching jobs.
//   - error: non-nil if the query fails.
func (r *JobRepository) List(ctx context.Context, filter JobFilter) ([]domain.IngestionJob, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.IngestionJob{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var jobs []domain.IngestionJob
	if err := query.Order("created_at DESC").Limit(limit).Offset(filter.Offset).Find(&jobs).Error; err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, total, nil
}

// ListStale returns PROCESSING jobs not updated since before.
func (r *JobRepository) ListStale(ctx context.Context, before time.Time) ([]domain.IngestionJob, error) {
	var jobs []domain.IngestionJob
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", domain.JobStatusProcessing, before).
		Order("updated_at ASC").
		Find(&jobs).Error
	return jobs, err
}

// CountByStatus returns the number of jobs in each status.
func (r *JobRepository) CountByStatus(ctx context.Context) (map[domain.JobStatus]int64, error) {
	var rows []struct {
		Status domain.JobStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&domain.IngestionJob{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[domain.JobStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// AvgProcessingSeconds averages processed_at - created_at over completed jobs.
// It returns nil when no job has completed.
func (r *JobRepository) AvgProcessingSeconds(ctx context.Context) (*float64, error) {
	var rows []struct {
		CreatedAt   time.Time
		ProcessedAt *time.Time
	}
	err := r.db.WithContext(ctx).Model(&domain.IngestionJob{}).
		Select("created_at, processed_at").
		Where("status = ? AND processed_at IS NOT NULL", domain.JobStatusCompleted).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	var sum float64
	var n int
	for _, row := range rows {
		if row.ProcessedAt == nil {
			continue
		}
		sum += row.ProcessedAt.Sub(row.CreatedAt).Seconds()
		n++
	}
	if n == 0 {
		return nil, nil
	}
	avg := sum / float64(n)
	return &avg, nil
}
