package logger

import (
	"context"
	"fmt"
	"sync/atomic"
)

type contextKey struct{}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(New(nil))
}

// GetDefault returns the logger used when a context carries none.
func GetDefault() *Logger {
	return defaultLogger.Load()
}

// SetDefaultLogger replaces the default logger. nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		defaultLogger.Store(l)
	}
}

// WithContext returns a new context with the logger attached.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the logger attached to ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(contextKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// WithFields returns a context whose logger carries fields on every line.
func WithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

func withField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// SetRequestID tags the context logger with an HTTP request ID.
func SetRequestID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldRequestID, id)
}

// SetJobID tags the context logger with an ingestion job ID.
func SetJobID(ctx context.Context, id string) context.Context {
	return withField(ctx, FieldJobID, id)
}

// SetFilePath tags the context logger with the file being ingested.
func SetFilePath(ctx context.Context, path string) context.Context {
	return withField(ctx, FieldFilePath, path)
}

func SetStage(ctx context.Context, stage string) context.Context {
	return withField(ctx, FieldStage, stage)
}

func SetComponent(ctx context.Context, name string) context.Context {
	return withField(ctx, FieldComponent, name)
}

func SetWorker(ctx context.Context, name string) context.Context {
	return withField(ctx, FieldWorker, name)
}

// Field returns a field of the context logger formatted as a string, or ""
// when unset.
func Field(ctx context.Context, key string) string {
	v, ok := FromContext(ctx).Data[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
