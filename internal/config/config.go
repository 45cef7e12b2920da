package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	AI         AIConfig         `mapstructure:"ai"`
	Ingestion  IngestionConfig  `mapstructure:"ingestion"`
	Dedupe     DedupeConfig     `mapstructure:"dedupe"`
	Validation ValidationConfig `mapstructure:"validation"`
	Language   LanguageConfig   `mapstructure:"language"`
	Extract    ExtractConfig    `mapstructure:"extract"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	TitleIndex TitleIndexConfig `mapstructure:"title_index"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`

	// MaxUploadBytes bounds multipart uploads to the ingestion endpoint.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // sqlite or postgres

	// SQLite
	Path string `mapstructure:"path"`

	// PostgreSQL: URL wins over the discrete fields when set.
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"` // silent, error, warn, info
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver != "postgres" {
		return c.Path
	}
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	if c.SSLMode != "" {
		u.RawQuery = "sslmode=" + c.SSLMode
	}
	return u.String()
}

// IngestionConfig controls the file-driven pipeline.
type IngestionConfig struct {
	BaseDir        string        `mapstructure:"base_dir"` // holds inbox, processed, failed, dlq
	Workers        int           `mapstructure:"workers"`
	QueueSize      int           `mapstructure:"queue_size"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryDelays    []int         `mapstructure:"retry_delays"` // seconds, indexed by retry count
	SettleDelay    time.Duration `mapstructure:"settle_delay"`
	StaleAfter     time.Duration `mapstructure:"stale_after"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
	ProcessTimeout time.Duration `mapstructure:"process_timeout"`
	CleanupDays    int           `mapstructure:"cleanup_days"`
	DrainOnStart   bool          `mapstructure:"drain_on_start"`
}

// RetryDelayDurations converts RetryDelays to durations.
func (c *IngestionConfig) RetryDelayDurations() []time.Duration {
	out := make([]time.Duration, 0, len(c.RetryDelays))
	for _, s := range c.RetryDelays {
		out = append(out, time.Duration(s)*time.Second)
	}
	return out
}

// Dir returns the path of a directory area under BaseDir.
func (c *IngestionConfig) Dir(area string) string {
	return filepath.Join(c.BaseDir, area)
}

type DedupeConfig struct {
	TimeToleranceMinutes int     `mapstructure:"time_tolerance_minutes"`
	SimilarityThreshold  float64 `mapstructure:"similarity_threshold"`
}

type ValidationConfig struct {
	ReviewThreshold  float64 `mapstructure:"review_threshold"`
	MaxQualityIssues int     `mapstructure:"max_quality_issues"`
}

type LanguageConfig struct {
	Target    string  `mapstructure:"target"`
	Threshold float64 `mapstructure:"threshold"`
}

// ExtractConfig points at the optional command-line extractors.
type ExtractConfig struct {
	PdfToTextPath string `mapstructure:"pdftotext_path"`
	AntiwordPath  string `mapstructure:"antiword_path"`
}

type CatalogConfig struct {
	SeedOnStart bool `mapstructure:"seed_on_start"`
}

// TitleIndexConfig configures the optional Qdrant near-duplicate index.
type TitleIndexConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Collection string `mapstructure:"collection"`
	APIKey     string `mapstructure:"api_key"`
	UseTLS     bool   `mapstructure:"use_tls"`
	Dimensions int    `mapstructure:"dimensions"`
}

// ArchiveConfig configures the optional S3-compatible archive of source files.
type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"` // r2, s3, s3compatible (auto-detected when empty)
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("server.max_upload_bytes", 20<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/recipes.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("ai.model", "gpt-4o-mini")
	v.SetDefault("ai.base_url", "https://api.openai.com/v1")
	v.SetDefault("ai.api_key_env", "OPENAI_API_KEY")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.max_retries", 2)
	v.SetDefault("ai.retry_base_delay", time.Second)
	v.SetDefault("ai.max_concurrency", 4)
	v.SetDefault("ai.max_tokens", 2000)
	v.SetDefault("ai.temperature", 0.1)

	v.SetDefault("ingestion.base_dir", "./data/ingestion")
	v.SetDefault("ingestion.workers", 2)
	v.SetDefault("ingestion.queue_size", 100)
	v.SetDefault("ingestion.max_retries", 3)
	v.SetDefault("ingestion.retry_delays", []int{1, 2, 4})
	v.SetDefault("ingestion.settle_delay", time.Second)
	v.SetDefault("ingestion.stale_after", 15*time.Minute)
	v.SetDefault("ingestion.sweep_interval", time.Minute)
	v.SetDefault("ingestion.process_timeout", 5*time.Minute)
	v.SetDefault("ingestion.cleanup_days", 30)
	v.SetDefault("ingestion.drain_on_start", true)

	v.SetDefault("dedupe.time_tolerance_minutes", 10)
	v.SetDefault("dedupe.similarity_threshold", 0.85)

	v.SetDefault("validation.review_threshold", 0.75)
	v.SetDefault("validation.max_quality_issues", 3)

	v.SetDefault("language.target", "en")
	v.SetDefault("language.threshold", 0.7)

	v.SetDefault("extract.pdftotext_path", "pdftotext")
	v.SetDefault("extract.antiword_path", "antiword")

	v.SetDefault("catalog.seed_on_start", true)

	v.SetDefault("title_index.enabled", false)
	v.SetDefault("title_index.host", "localhost")
	v.SetDefault("title_index.port", 6334)
	v.SetDefault("title_index.collection", "recipe_titles")
	v.SetDefault("title_index.dimensions", 256)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.use_ssl", true)
	v.SetDefault("archive.bucket", "recipe-sources")
	v.SetDefault("archive.prefix", "ingestion")
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("ai.base_url", "OPENAI_BASE_URL")
	v.BindEnv("ai.model", "AI_MODEL")
	v.BindEnv("ingestion.base_dir", "INGESTION_BASE_DIR")
	v.BindEnv("title_index.api_key", "QDRANT_API_KEY")
	v.BindEnv("title_index.host", "QDRANT_HOST")
	v.BindEnv("title_index.port", "QDRANT_PORT")
	v.BindEnv("archive.endpoint", "ARCHIVE_ENDPOINT")
	v.BindEnv("archive.access_key", "ARCHIVE_ACCESS_KEY")
	v.BindEnv("archive.secret_key", "ARCHIVE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.AI.ResolveEnvVars()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if err := c.AI.Validate(); err != nil {
		return err
	}
	if c.Ingestion.Workers <= 0 {
		return fmt.Errorf("ingestion: workers must be positive")
	}
	if c.Ingestion.MaxRetries < 0 {
		return fmt.Errorf("ingestion: max_retries cannot be negative")
	}
	if c.Ingestion.BaseDir == "" {
		return fmt.Errorf("ingestion: base_dir is required")
	}
	if c.Dedupe.SimilarityThreshold <= 0 || c.Dedupe.SimilarityThreshold > 1 {
		return fmt.Errorf("dedupe: similarity_threshold must be in (0, 1]")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database: unknown driver %q", c.Database.Driver)
	}
	return nil
}
