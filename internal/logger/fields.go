package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Context fields, set once and carried down the call chain.
const (
	FieldRequestID = "request_id"
	FieldJobID     = "job_id"
	FieldComponent = "component"
	FieldFilePath  = "file_path"
	FieldStage     = "stage" // extract, language, parse, validate, dedupe, persist
	FieldWorker    = "worker"
	FieldRecipeID  = "recipe_id"
)

// Metric fields, attached per call through Entry.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size" // bytes
	FieldStatus     = "status"
	FieldAttempt    = "attempt"
	FieldConfidence = "confidence"
)
