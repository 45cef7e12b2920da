package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/timmy/recipe-ingest/internal/extract"
	"github.com/timmy/recipe-ingest/internal/logger"
)

// Pipeline stage names, also used as the log "stage" field.
const (
	StageExtract  = "extract"
	StageLanguage = "language"
	StageParse    = "parse"
	StageValidate = "validate"
	StageDedupe   = "dedupe"
	StagePersist  = "persist"
)

// FailureKind says what the orchestrator does with a failed stage.
type FailureKind int

const (
	// Retryable failures put the job back to PENDING until retries run out.
	Retryable FailureKind = iota
	// Fatal failures go straight to the dead-letter queue.
	Fatal
)

func (k FailureKind) String() string {
	if k == Fatal {
		return "fatal"
	}
	return "retryable"
}

// StageFailure is the error side of a StageResult.
type StageFailure struct {
	Stage string
	Kind  FailureKind
	Err   error
}

func (f *StageFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.Stage, f.Err)
}

func (f *StageFailure) Unwrap() error {
	return f.Err
}

// StageResult carries either a stage's value or its classified failure.
type StageResult[T any] struct {
	Value   T
	Failure *StageFailure
}

// OK reports whether the stage succeeded.
func (r StageResult[T]) OK() bool {
	return r.Failure == nil
}

// Classify decides whether err is worth retrying. A missing or unsupported
// file will not change between attempts, so it is Fatal: the job skips the
// retry budget and goes to the DLQ with retries still at 0. Every other error,
// including other extraction failures, is Retryable.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, extract.ErrUnsupportedType), errors.Is(err, extract.ErrNotFound):
		return Fatal
	default:
		return Retryable
	}
}

// runStage runs fn as the named stage, logging its outcome and duration.
func runStage[T any](ctx context.Context, stage string, fn func(ctx context.Context) (T, error)) StageResult[T] {
	ctx, done := logger.StartStage(ctx, stage)
	v, err := fn(ctx)
	done(err)
	if err != nil {
		return StageResult[T]{Failure: &StageFailure{Stage: stage, Kind: Classify(err), Err: err}}
	}
	return StageResult[T]{Value: v}
}
