package logger

import (
	"context"
	"time"
)

// StartStage tags ctx with a pipeline stage and returns a function that logs
// the stage outcome with its duration. Call the returned function exactly once.
//
//	ctx, done := logger.StartStage(ctx, "extract")
//	text, err := extractor.ExtractText(ctx, path)
//	done(err)
func StartStage(ctx context.Context, stage string) (context.Context, func(err error)) {
	ctx = SetStage(ctx, stage)
	start := time.Now()
	return ctx, func(err error) {
		entry := With(nil).Since(start)
		if err != nil {
			entry.WithStatus("failed").Warn(ctx, "Stage %s failed: %v", stage, err)
			return
		}
		entry.WithStatus("ok").Debug(ctx, "Stage %s completed", stage)
	}
}
