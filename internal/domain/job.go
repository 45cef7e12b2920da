package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// JobStatus represents the status of an ingestion job.
type JobStatus string

const (
	JobStatusPending            JobStatus = "PENDING"
	JobStatusProcessing         JobStatus = "PROCESSING"
	JobStatusNeedsReview        JobStatus = "NEEDS_REVIEW"
	JobStatusCompleted          JobStatus = "COMPLETED"
	JobStatusCompletedDuplicate JobStatus = "COMPLETED_DUPLICATE"
	JobStatusFailed             JobStatus = "FAILED"
	JobStatusDLQ                JobStatus = "DLQ"
)

// AllJobStatuses lists every status in lifecycle order.
var AllJobStatuses = []JobStatus{
	JobStatusPending,
	JobStatusProcessing,
	JobStatusNeedsReview,
	JobStatusCompleted,
	JobStatusCompletedDuplicate,
	JobStatusFailed,
	JobStatusDLQ,
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	for _, known := range AllJobStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further automatic processing happens in this status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusCompletedDuplicate, JobStatusFailed, JobStatusDLQ:
		return true
	}
	return false
}

// JobMeta is the structured blob stored with a job. It carries what a reviewer
// needs to approve a job without re-parsing the source file.
type JobMeta struct {
	Issues           []string        `json:"issues,omitempty"`
	SimilarRecipeIDs []string        `json:"similar_recipe_ids,omitempty"`
	ParsedRecipe     *ParsedRecipe   `json:"parsed_recipe,omitempty"`
	Extraction       *ParseMetadata  `json:"extraction,omitempty"`
	FailedStage      string          `json:"failed_stage,omitempty"`
	History          []JobTransition `json:"history,omitempty"`
}

// JobTransition records one status change of a job.
type JobTransition struct {
	From JobStatus `json:"from"`
	To   JobStatus `json:"to"`
	At   time.Time `json:"at"`
	Note string    `json:"note,omitempty"`
}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the meta blob.
//   - error: non-nil if marshaling fails.
func (m JobMeta) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (m *JobMeta) Scan(value interface{}) error {
	if value == nil {
		*m = JobMeta{}
		return nil
	}
	bytes, err := scanBytes(value)
	if err != nil {
		return errors.New("failed to scan JobMeta")
	}
	if len(bytes) == 0 {
		*m = JobMeta{}
		return nil
	}
	return json.Unmarshal(bytes, m)
}

// IngestionJob is one attempt at turning a source file into a recipe.
// SourcePath is where the file was first seen; CurrentPath follows the file
// when it is moved between directory areas.
type IngestionJob struct {
	ID                  string     `gorm:"type:text;primaryKey" json:"id"`
	SourcePath          string     `gorm:"type:text;not null;index" json:"source_path"`
	CurrentPath         string     `gorm:"type:text" json:"current_path"`
	OriginalFilename    string     `gorm:"type:text" json:"original_filename"`
	FileSizeBytes       int64      `json:"file_size_bytes"`
	MimeType            string     `gorm:"type:text" json:"mime_type"`
	Status              JobStatus  `gorm:"type:text;not null;index;default:PENDING" json:"status"`
	Retries             int        `gorm:"default:0" json:"retries"`
	ErrorMessage        *string    `gorm:"type:text" json:"error_message,omitempty"`
	ConfidenceScore     *float64   `json:"confidence_score,omitempty"`
	RecipeID            *string    `gorm:"type:text" json:"recipe_id,omitempty"`
	DuplicateOfRecipeID *string    `gorm:"type:text" json:"duplicate_of_recipe_id,omitempty"`
	Meta                JobMeta    `gorm:"type:text" json:"meta"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `gorm:"index" json:"updated_at"`
	ProcessedAt         *time.Time `json:"processed_at,omitempty"`
	ReviewedAt          *time.Time `json:"reviewed_at,omitempty"`
	ReviewerNotes       *string    `gorm:"type:text" json:"reviewer_notes,omitempty"`
}

// TableName returns the database table name for IngestionJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (IngestionJob) TableName() string {
	return "ingestion_jobs"
}

// Transition moves the job to a new status and records it in the meta history.
// Outcome references are cleared unless the new status is the one that owns them,
// so recipe_id and duplicate_of_recipe_id never coexist.
func (j *IngestionJob) Transition(to JobStatus, note string) {
	j.Meta.History = append(j.Meta.History, JobTransition{
		From: j.Status,
		To:   to,
		At:   time.Now().UTC(),
		Note: note,
	})
	j.Status = to
	if to != JobStatusCompleted {
		j.RecipeID = nil
	}
	if to != JobStatusCompletedDuplicate {
		j.DuplicateOfRecipeID = nil
	}
}

// SetError records an error message, or clears it when msg is empty.
func (j *IngestionJob) SetError(msg string) {
	if msg == "" {
		j.ErrorMessage = nil
		return
	}
	j.ErrorMessage = &msg
}

// IngestionReview records one reviewer decision on a job.
type IngestionReview struct {
	ID        string         `gorm:"type:text;primaryKey" json:"id"`
	JobID     string         `gorm:"type:text;not null;index" json:"job_id"`
	Decision  ReviewDecision `gorm:"type:text;not null" json:"decision"`
	Notes     string         `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// TableName returns the database table name for IngestionReview.
func (IngestionReview) TableName() string {
	return "ingestion_reviews"
}
