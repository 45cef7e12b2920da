package logger

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Entry carries metric fields (duration_ms, size, status...) for a single
// log call, on top of whatever fields the context logger already has.
//
//	logger.With(logger.Fields{logger.FieldCount: n}).Info(ctx, "Recovered %d jobs", n)
type Entry struct {
	fields Fields
}

// With creates a new Entry with the given metric fields.
func With(fields Fields) *Entry {
	return &Entry{fields: fields}
}

// With returns a copy of e with fields merged in.
func (e *Entry) With(fields Fields) *Entry {
	merged := make(Fields, len(e.fields)+len(fields))
	for k, v := range e.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &Entry{fields: merged}
}

func (e *Entry) WithField(key string, value interface{}) *Entry {
	return e.With(Fields{key: value})
}

// WithSize adds a size in bytes.
func (e *Entry) WithSize(size int) *Entry {
	return e.WithField(FieldSize, size)
}

// WithStatus adds an outcome such as "ok" or "failed".
func (e *Entry) WithStatus(status string) *Entry {
	return e.WithField(FieldStatus, status)
}

// Since adds the milliseconds elapsed since start.
func (e *Entry) Since(start time.Time) *Entry {
	return e.WithField(FieldDurationMs, time.Since(start).Milliseconds())
}

func (e *Entry) Debug(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.DebugLevel, format, args)
}

func (e *Entry) Info(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.InfoLevel, format, args)
}

func (e *Entry) Warn(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.WarnLevel, format, args)
}

func (e *Entry) Error(ctx context.Context, format string, args ...interface{}) {
	e.log(ctx, logrus.ErrorLevel, format, args)
}

func (e *Entry) log(ctx context.Context, level logrus.Level, format string, args []interface{}) {
	FromContext(ctx).Entry.WithFields(logrus.Fields(e.fields)).Logf(level, format, args...)
}
