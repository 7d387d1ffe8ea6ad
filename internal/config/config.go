// Package config loads notekeep configuration from an optional YAML file and
// environment variables, validates it, and reports every problem at once.
//
// NOTEKEEP_CONFIG names the YAML file. Environment variables override values
// from the file.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kuitang/notekeep/internal/autosave"
)

// Backend selects the persistent store.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendFile   Backend = "file"
	BackendSQLite Backend = "sqlite"
	BackendS3     Backend = "s3"
	BackendRedis  Backend = "redis"
)

// Config holds all notekeep configuration.
type Config struct {
	Backend Backend `yaml:"backend" validate:"oneof=memory file sqlite s3 redis"`
	// DataDir holds the file backend's key files or the SQLite database.
	DataDir string `yaml:"data_dir"`
	// MasterKey is 64 hex characters; store keys are derived from it.
	MasterKey string `yaml:"master_key" validate:"omitempty,hexadecimal,len=64"`

	AutosaveInterval time.Duration `yaml:"autosave_interval" validate:"gte=50ms,lte=5m"`
	// QuotaBytes caps the stored notes collection. Zero means unlimited.
	QuotaBytes int64 `yaml:"quota_bytes" validate:"gte=0"`
	// PurgeAfter permanently deletes notes archived longer than this when a
	// notebook is opened. Zero keeps archived notes forever.
	PurgeAfter time.Duration `yaml:"purge_after" validate:"gte=0"`
	LogLevel   string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	// SortBy is the initial note order: dates newest first, title A to Z.
	SortBy string `yaml:"sort_by" validate:"omitempty,oneof=updated_at created_at title"`

	S3    S3Config    `yaml:"s3"`
	Redis RedisConfig `yaml:"redis"`
}

// S3Config configures the object storage backend.
type S3Config struct {
	Endpoint          string  `yaml:"endpoint" validate:"omitempty,url"`
	Region            string  `yaml:"region"`
	AccessKeyID       string  `yaml:"access_key_id"`
	SecretAccessKey   string  `yaml:"secret_access_key"`
	Bucket            string  `yaml:"bucket"`
	Prefix            string  `yaml:"prefix"`
	UsePathStyle      bool    `yaml:"use_path_style"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
}

// RedisConfig configures the Redis backend.
type RedisConfig struct {
	URL    string `yaml:"url" validate:"omitempty,url"`
	Prefix string `yaml:"prefix"`
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Default returns the configuration used when nothing is set: an in-memory
// store with the default auto-save interval.
func Default() Config {
	return Config{
		Backend:          BackendMemory,
		DataDir:          "./notekeep-data",
		AutosaveInterval: autosave.DefaultInterval,
		LogLevel:         "info",
		S3: S3Config{
			Region: "auto",
			Prefix: "notekeep",
		},
		Redis: RedisConfig{Prefix: "notekeep:"},
	}
}

// Load reads configuration from the process environment.
func Load() (*Config, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom reads configuration using getenv to look up variables. Defaults
// are overlaid by the YAML file named by NOTEKEEP_CONFIG, then by individual
// variables.
func LoadFrom(getenv func(string) string) (*Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(getenv("NOTEKEEP_CONFIG")); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	env := envReader{getenv: getenv}
	env.setString("NOTEKEEP_BACKEND", (*string)(&cfg.Backend))
	env.setString("NOTEKEEP_DATA_DIR", &cfg.DataDir)
	env.setString("NOTEKEEP_MASTER_KEY", &cfg.MasterKey)
	env.setDuration("NOTEKEEP_AUTOSAVE_INTERVAL", &cfg.AutosaveInterval)
	env.setInt64("NOTEKEEP_QUOTA_BYTES", &cfg.QuotaBytes)
	env.setDuration("NOTEKEEP_PURGE_AFTER", &cfg.PurgeAfter)
	env.setString("NOTEKEEP_LOG_LEVEL", &cfg.LogLevel)
	env.setString("NOTEKEEP_SORT_BY", &cfg.SortBy)

	env.setString("AWS_ENDPOINT_URL_S3", &cfg.S3.Endpoint)
	env.setString("AWS_REGION", &cfg.S3.Region)
	env.setString("AWS_ACCESS_KEY_ID", &cfg.S3.AccessKeyID)
	env.setString("AWS_SECRET_ACCESS_KEY", &cfg.S3.SecretAccessKey)
	env.setString("BUCKET_NAME", &cfg.S3.Bucket)
	env.setString("NOTEKEEP_S3_BUCKET", &cfg.S3.Bucket)
	env.setString("NOTEKEEP_S3_PREFIX", &cfg.S3.Prefix)
	env.setBool("NOTEKEEP_S3_PATH_STYLE", &cfg.S3.UsePathStyle)
	env.setFloat("NOTEKEEP_S3_RPS", &cfg.S3.RequestsPerSecond)
	env.setInt("NOTEKEEP_S3_BURST", &cfg.S3.Burst)

	env.setString("NOTEKEEP_REDIS_URL", &cfg.Redis.URL)
	env.setString("NOTEKEEP_REDIS_PREFIX", &cfg.Redis.Prefix)

	cfg.Backend = Backend(strings.ToLower(string(cfg.Backend)))
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.SortBy = strings.ToLower(cfg.SortBy)

	issues := env.issues
	if err := cfg.Validate(); err != nil {
		var verr *ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		issues = append(issues, verr.Errors...)
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Errors: issues}
	}
	return &cfg, nil
}

// Validate checks field formats and that the selected backend has what it
// needs.
func (c *Config) Validate() error {
	var issues []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			issues = append(issues, fieldIssue(fe))
		}
	}

	switch c.Backend {
	case BackendFile:
		if strings.TrimSpace(c.DataDir) == "" {
			issues = append(issues, "NOTEKEEP_DATA_DIR is required for the file backend")
		}
	case BackendSQLite:
		if strings.TrimSpace(c.DataDir) == "" {
			issues = append(issues, "NOTEKEEP_DATA_DIR is required for the sqlite backend")
		}
		if c.MasterKey == "" {
			issues = append(issues, "NOTEKEEP_MASTER_KEY is required for the sqlite backend (generate with: openssl rand -hex 32)")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			issues = append(issues, "NOTEKEEP_S3_BUCKET (or BUCKET_NAME) is required for the s3 backend")
		}
		if (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
			issues = append(issues, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			issues = append(issues, "NOTEKEEP_REDIS_URL is required for the redis backend")
		}
	}

	if len(issues) > 0 {
		return &ValidationError{Errors: issues}
	}
	return nil
}

// LogValue keeps secrets out of logs.
func (c Config) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("backend", string(c.Backend)),
		slog.Duration("autosave_interval", c.AutosaveInterval),
		slog.Int64("quota_bytes", c.QuotaBytes),
		slog.Bool("encryption_configured", c.MasterKey != ""),
	}
	switch c.Backend {
	case BackendFile, BackendSQLite:
		attrs = append(attrs, slog.String("data_dir", c.DataDir))
	case BackendS3:
		attrs = append(attrs,
			slog.String("s3_endpoint", c.S3.Endpoint),
			slog.String("s3_bucket", c.S3.Bucket),
			slog.String("s3_prefix", c.S3.Prefix))
	case BackendRedis:
		attrs = append(attrs, slog.String("redis_prefix", c.Redis.Prefix))
	}
	return slog.GroupValue(attrs...)
}

// fieldIssue phrases a validator failure in terms of the env var a user
// would set.
func fieldIssue(fe validator.FieldError) string {
	name := envNames[fe.StructNamespace()]
	if name == "" {
		name = fe.StructNamespace()
	}
	switch fe.Tag() {
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", name, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", name, fe.Param())
	case "hexadecimal":
		return name + " must be hexadecimal"
	case "url":
		return name + " must be a URL"
	case "gte":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid (%s)", name, fe.Tag())
	}
}

var envNames = map[string]string{
	"Config.Backend":              "NOTEKEEP_BACKEND",
	"Config.MasterKey":            "NOTEKEEP_MASTER_KEY",
	"Config.AutosaveInterval":     "NOTEKEEP_AUTOSAVE_INTERVAL",
	"Config.QuotaBytes":           "NOTEKEEP_QUOTA_BYTES",
	"Config.PurgeAfter":           "NOTEKEEP_PURGE_AFTER",
	"Config.LogLevel":             "NOTEKEEP_LOG_LEVEL",
	"Config.SortBy":               "NOTEKEEP_SORT_BY",
	"Config.S3.Endpoint":          "AWS_ENDPOINT_URL_S3",
	"Config.S3.RequestsPerSecond": "NOTEKEEP_S3_RPS",
	"Config.S3.Burst":             "NOTEKEEP_S3_BURST",
	"Config.Redis.URL":            "NOTEKEEP_REDIS_URL",
}

// envReader applies set variables and collects malformed ones.
type envReader struct {
	getenv func(string) string
	issues []string
}

func (e *envReader) lookup(key string) (string, bool) {
	v := strings.TrimSpace(e.getenv(key))
	return v, v != ""
}

func (e *envReader) setString(key string, dst *string) {
	if v, ok := e.lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) setDuration(key string, dst *time.Duration) {
	if v, ok := e.lookup(key); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			e.issues = append(e.issues, fmt.Sprintf("%s must be a duration such as 2s (got %q)", key, v))
			return
		}
		*dst = d
	}
}

func (e *envReader) setInt64(key string, dst *int64) {
	if v, ok := e.lookup(key); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			e.issues = append(e.issues, fmt.Sprintf("%s must be an integer (got %q)", key, v))
			return
		}
		*dst = n
	}
}

func (e *envReader) setInt(key string, dst *int) {
	var n int64
	before := len(e.issues)
	e.setInt64(key, &n)
	if _, ok := e.lookup(key); ok && len(e.issues) == before {
		*dst = int(n)
	}
}

func (e *envReader) setFloat(key string, dst *float64) {
	if v, ok := e.lookup(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.issues = append(e.issues, fmt.Sprintf("%s must be a number (got %q)", key, v))
			return
		}
		*dst = f
	}
}

func (e *envReader) setBool(key string, dst *bool) {
	if v, ok := e.lookup(key); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			e.issues = append(e.issues, fmt.Sprintf("%s must be true or false (got %q)", key, v))
			return
		}
		*dst = b
	}
}
