package domain

import "time"

// ReviewDecision is a reviewer's verdict on a NEEDS_REVIEW job.
type ReviewDecision string

const (
	ReviewApproved      ReviewDecision = "APPROVED"
	ReviewRejected      ReviewDecision = "REJECTED"
	ReviewNeedsRevision ReviewDecision = "NEEDS_REVISION"
)

// Valid reports whether d is a known decision.
func (d ReviewDecision) Valid() bool {
	switch d {
	case ReviewApproved, ReviewRejected, ReviewNeedsRevision:
		return true
	}
	return false
}

// ProcessingResult is the outcome of processing a single file.
type ProcessingResult struct {
	Success             bool      `json:"success"`
	JobID               string    `json:"job_id,omitempty"`
	Status              JobStatus `json:"status,omitempty"`
	RecipeID            *string   `json:"recipe_id,omitempty"`
	ErrorMessage        *string   `json:"error_message,omitempty"`
	ConfidenceScore     *float64  `json:"confidence_score,omitempty"`
	NeedsReview         bool      `json:"needs_review"`
	IsDuplicate         bool      `json:"is_duplicate"`
	DuplicateOfRecipeID *string   `json:"duplicate_of_recipe_id,omitempty"`
	Skipped             bool      `json:"skipped,omitempty"`

	// RetryAfter is set when the job went back to PENDING; the file should not
	// be picked up again before this delay has elapsed.
	RetryAfter time.Duration `json:"-"`
}

// ParseMetadata describes how a job's text was extracted and parsed.
type ParseMetadata struct {
	ExtractionMethod      string         `json:"extraction_method"`
	DetectedLanguage      *string        `json:"detected_language,omitempty"`
	LanguageConfidence    float64        `json:"language_confidence"`
	NeedsTranslation      bool           `json:"needs_translation"`
	Model                 string         `json:"model,omitempty"`
	TokenUsage            map[string]int `json:"token_usage,omitempty"`
	ProcessingTimeSeconds float64        `json:"processing_time_seconds"`
	Attempts              int            `json:"attempts,omitempty"`
}

// IngestionStats summarizes the job table.
type IngestionStats struct {
	TotalJobs                    int64    `json:"total_jobs"`
	PendingJobs                  int64    `json:"pending_jobs"`
	ProcessingJobs               int64    `json:"processing_jobs"`
	NeedsReviewJobs              int64    `json:"needs_review_jobs"`
	CompletedJobs                int64    `json:"completed_jobs"`
	FailedJobs                   int64    `json:"failed_jobs"`
	DLQJobs                      int64    `json:"dlq_jobs"`
	DuplicateJobs                int64    `json:"duplicate_jobs"`
	AverageProcessingTimeSeconds *float64 `json:"average_processing_time_seconds,omitempty"`
	SuccessRate                  float64  `json:"success_rate"`
	ReviewRate                   float64  `json:"review_rate"`
}

// NewIngestionStats builds stats from per-status counts.
func NewIngestionStats(counts map[JobStatus]int64, avgSeconds *float64) IngestionStats {
	s := IngestionStats{
		PendingJobs:                  counts[JobStatusPending],
		ProcessingJobs:               counts[JobStatusProcessing],
		NeedsReviewJobs:              counts[JobStatusNeedsReview],
		CompletedJobs:                counts[JobStatusCompleted],
		FailedJobs:                   counts[JobStatusFailed],
		DLQJobs:                      counts[JobStatusDLQ],
		DuplicateJobs:                counts[JobStatusCompletedDuplicate],
		AverageProcessingTimeSeconds: avgSeconds,
	}
	for _, n := range counts {
		s.TotalJobs += n
	}
	if s.TotalJobs > 0 {
		total := float64(s.TotalJobs)
		s.SuccessRate = float64(s.CompletedJobs+s.DuplicateJobs) / total
		s.ReviewRate = float64(s.NeedsReviewJobs) / total
	}
	return s
}
