package config

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func validationIssues(t testing.TB, err error) []string {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
	return verr.Errors
}

func TestLoad_DefaultsAreValid(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFrom(envMap(nil))
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.Backend != BackendMemory {
		t.Fatalf("default backend = %q", cfg.Backend)
	}
	if cfg.AutosaveInterval != 2*time.Second {
		t.Fatalf("default autosave interval = %v", cfg.AutosaveInterval)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFrom(envMap(map[string]string{
		"NOTEKEEP_BACKEND":           " SQLite ",
		"NOTEKEEP_DATA_DIR":          "/var/lib/notekeep",
		"NOTEKEEP_MASTER_KEY":        strings.Repeat("ab", 32),
		"NOTEKEEP_AUTOSAVE_INTERVAL": "750ms",
		"NOTEKEEP_QUOTA_BYTES":       "4096",
		"NOTEKEEP_PURGE_AFTER":       "720h",
		"NOTEKEEP_LOG_LEVEL":         "DEBUG",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Backend != BackendSQLite || cfg.DataDir != "/var/lib/notekeep" {
		t.Fatalf("backend/data dir not applied: %+v", cfg)
	}
	if cfg.AutosaveInterval != 750*time.Millisecond || cfg.QuotaBytes != 4096 || cfg.PurgeAfter != 720*time.Hour {
		t.Fatalf("numeric overrides not applied: %+v", cfg)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestLoad_YAMLFileThenEnv(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "notekeep.yaml")
	yml := `backend: s3
autosave_interval: 5s
quota_bytes: 1024
s3:
  bucket: from-file
  endpoint: http://localhost:9000
  use_path_style: true
`
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(envMap(map[string]string{
		"NOTEKEEP_CONFIG":    path,
		"NOTEKEEP_S3_BUCKET": "from-env",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Backend != BackendS3 || cfg.AutosaveInterval != 5*time.Second || cfg.QuotaBytes != 1024 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.S3.Bucket != "from-env" {
		t.Fatalf("env should override file, bucket = %q", cfg.S3.Bucket)
	}
	if !cfg.S3.UsePathStyle || cfg.S3.Region != "auto" {
		t.Fatalf("nested values/defaults wrong: %+v", cfg.S3)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Parallel()
	_, err := LoadFrom(envMap(map[string]string{
		"NOTEKEEP_CONFIG": filepath.Join(t.TempDir(), "absent.yaml"),
	}))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_ReportsEveryProblem(t *testing.T) {
	t.Parallel()
	_, err := LoadFrom(envMap(map[string]string{
		"NOTEKEEP_BACKEND":           "sqlite",
		"NOTEKEEP_MASTER_KEY":        "zz",
		"NOTEKEEP_AUTOSAVE_INTERVAL": "soon",
		"NOTEKEEP_QUOTA_BYTES":       "-1",
		"NOTEKEEP_LOG_LEVEL":         "chatty",
		"NOTEKEEP_SORT_BY":           "size",
	}))
	if err == nil {
		t.Fatal("expected validation error")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "configuration validation failed:") {
		t.Fatalf("unexpected message: %s", msg)
	}
	issues := validationIssues(t, err)
	for _, token := range []string{
		"NOTEKEEP_AUTOSAVE_INTERVAL",
		"NOTEKEEP_MASTER_KEY",
		"NOTEKEEP_QUOTA_BYTES",
		"NOTEKEEP_LOG_LEVEL",
		"NOTEKEEP_SORT_BY",
	} {
		if !strings.Contains(msg, token) {
			t.Fatalf("expected %q in %d issues: %s", token, len(issues), msg)
		}
	}
}

func TestValidate_BackendRequirements(t *testing.T) {
	t.Parallel()
	cases := map[Backend]string{
		BackendSQLite: "NOTEKEEP_MASTER_KEY",
		BackendS3:     "NOTEKEEP_S3_BUCKET",
		BackendRedis:  "NOTEKEEP_REDIS_URL",
	}
	for backend, token := range cases {
		cfg := Default()
		cfg.Backend = backend
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", backend)
		}
		if !strings.Contains(err.Error(), token) {
			t.Fatalf("%s: expected %q in %v", backend, token, err)
		}
	}

	cfg := Default()
	cfg.Backend = BackendFile
	cfg.DataDir = " "
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "NOTEKEEP_DATA_DIR") {
		t.Fatalf("file backend without dir: %v", err)
	}
}

func TestValidate_S3CredentialsPaired(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Backend = BackendS3
	cfg.S3.Bucket = "b"
	cfg.S3.AccessKeyID = "id"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "AWS_SECRET_ACCESS_KEY") {
		t.Fatalf("expected pairing error, got %v", err)
	}
	cfg.S3.SecretAccessKey = "secret"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("paired credentials should pass: %v", err)
	}
}

func testValidate_RejectsBadMasterKeyLengths(t *rapid.T) {
	cfg := Default()
	n := rapid.IntRange(1, 128).Filter(func(n int) bool { return n != 64 }).Draw(t, "key_len")
	cfg.MasterKey = strings.Repeat("a", n)

	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error for %d-char master key", n)
	}
	if !strings.Contains(err.Error(), "NOTEKEEP_MASTER_KEY") {
		t.Fatalf("expected key-length error mentioning NOTEKEEP_MASTER_KEY, got: %v", err)
	}
}

func TestValidate_RejectsBadMasterKeyLengths(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_RejectsBadMasterKeyLengths)
}

func testValidate_AutosaveIntervalRange(t *rapid.T) {
	cfg := Default()
	cfg.AutosaveInterval = time.Duration(rapid.Int64Range(0, int64(10*time.Minute)).Draw(t, "interval"))
	err := cfg.Validate()
	inRange := cfg.AutosaveInterval >= 50*time.Millisecond && cfg.AutosaveInterval <= 5*time.Minute
	if inRange && err != nil {
		t.Fatalf("interval %v should be accepted: %v", cfg.AutosaveInterval, err)
	}
	if !inRange && err == nil {
		t.Fatalf("interval %v should be rejected", cfg.AutosaveInterval)
	}
}

func TestValidate_AutosaveIntervalRange(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_AutosaveIntervalRange)
}

func TestEnvReader_TrimsWhitespace(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFrom(envMap(map[string]string{
		"NOTEKEEP_BACKEND":  "   file   ",
		"NOTEKEEP_DATA_DIR": "  /tmp/notes  ",
	}))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Backend != BackendFile || cfg.DataDir != "/tmp/notes" {
		t.Fatalf("whitespace not trimmed: %+v", cfg)
	}
}

func TestLogValue_RedactsSecrets(t *testing.T) {
	t.Parallel()
	cfg := Default()
	cfg.Backend = BackendS3
	cfg.MasterKey = strings.Repeat("f", 64)
	cfg.S3.Bucket = "notes"
	cfg.S3.SecretAccessKey = "very-secret"

	var buf bytes.Buffer
	slog.New(slog.NewJSONHandler(&buf, nil)).Info("opening", "config", cfg)
	out := buf.String()
	if strings.Contains(out, "very-secret") || strings.Contains(out, cfg.MasterKey) {
		t.Fatalf("secrets leaked into log: %s", out)
	}
	if !strings.Contains(out, `"encryption_configured":true`) || !strings.Contains(out, `"s3_bucket":"notes"`) {
		t.Fatalf("expected summary fields: %s", out)
	}
}
