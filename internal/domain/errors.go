package domain

import "errors"

var (
	// ErrNotFound is returned by repositories when a record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a job is asked to move to a state
	// its current status does not allow.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrMissingSnapshot is returned when a review approval has no parsed recipe to persist.
	ErrMissingSnapshot = errors.New("job has no parsed recipe snapshot")

	// ErrSourceMissing is returned when a job's file no longer exists on disk.
	ErrSourceMissing = errors.New("source file no longer exists")
)
