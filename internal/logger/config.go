package logger

import (
	"os"
	"strconv"
)

// ConfigFromEnv reads the logger configuration from the environment:
//
//	LOG_LEVEL, LOG_FORMAT, SERVICE_NAME, APP_ENV,
//	LOG_FILE, LOG_FILE_ONLY, LOG_MAX_SIZE, LOG_MAX_BACKUPS, LOG_MAX_AGE, LOG_COMPRESS
//
// Outside APP_ENV=local the log file is rotated by lumberjack.
func ConfigFromEnv() *Config {
	return &Config{
		Level:       envString("LOG_LEVEL", "info"),
		Format:      envString("LOG_FORMAT", "json"),
		ServiceName: envString("SERVICE_NAME", "recipe-ingest"),
		Environment: envString("APP_ENV", "local"),
		File: FileConfig{
			Path:       envString("LOG_FILE", "/var/log/recipe-ingest/app.log"),
			Only:       envParsed("LOG_FILE_ONLY", false, strconv.ParseBool),
			MaxSizeMB:  envParsed("LOG_MAX_SIZE", 100, strconv.Atoi),
			MaxBackups: envParsed("LOG_MAX_BACKUPS", 7, strconv.Atoi),
			MaxAgeDays: envParsed("LOG_MAX_AGE", 30, strconv.Atoi),
			Compress:   envParsed("LOG_COMPRESS", true, strconv.ParseBool),
		},
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envParsed returns def when key is unset or does not parse.
func envParsed[T any](key string, def T, parse func(string) (T, error)) T {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	out, err := parse(v)
	if err != nil {
		return def
	}
	return out
}
