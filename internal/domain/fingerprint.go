package domain

import "time"

// RecipeFingerprint holds the normalized attributes of a persisted recipe used
// for exact-duplicate lookup and range-scoped fuzzy candidate retrieval.
type RecipeFingerprint struct {
	RecipeID          string    `gorm:"type:text;primaryKey" json:"recipe_id"`
	TitleNormalized   string    `gorm:"type:text;not null" json:"title_normalized"`
	CuisineNormalized string    `gorm:"type:text;index:idx_fingerprint_candidates" json:"cuisine_normalized"`
	TotalTimeMinutes  int       `gorm:"index:idx_fingerprint_candidates" json:"total_time_minutes"`
	FingerprintHash   string    `gorm:"type:text;not null;uniqueIndex" json:"fingerprint_hash"`
	CreatedAt         time.Time `json:"created_at"`
}

// TableName returns the database table name for RecipeFingerprint.
func (RecipeFingerprint) TableName() string {
	return "recipe_fingerprints"
}
