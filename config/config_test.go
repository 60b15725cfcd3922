package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleConfig = `
database:
  path: ./data/test.db
http:
  port: 9090
  timeout: 15s
log:
  level: debug
ml:
  model_type: decision_tree
  model_path: ./models/tree.json
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Http.Port)
	}
	if cfg.Http.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", cfg.Http.Timeout)
	}
	if cfg.ML.ModelType != "decision_tree" || cfg.ML.ModelPath != "./models/tree.json" {
		t.Errorf("unexpected ml config: %+v", cfg.ML)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
	// Keys absent from the file keep their defaults.
	if cfg.ML.CacheSize != 4 || !cfg.ML.WatchModel {
		t.Errorf("expected defaults for cache_size and watch_model, got %+v", cfg.ML)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CROPYIELD_HTTP_PORT", "7070")
	t.Setenv("CROPYIELD_MODEL_PATH", "/srv/models/forest.json")
	t.Setenv("CROPYIELD_HTTP_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load(writeConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Http.Port != 7070 {
		t.Errorf("expected env port 7070, got %d", cfg.Http.Port)
	}
	if cfg.ML.ModelPath != "/srv/models/forest.json" {
		t.Errorf("expected env model path, got %q", cfg.ML.ModelPath)
	}
	if len(cfg.Http.AllowedOrigins) != 2 {
		t.Errorf("expected 2 origins, got %v", cfg.Http.AllowedOrigins)
	}
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := Load(writeConfig(t, "ml:\n  model_type: svm\nhttp:\n  port: 0\n"))
	if err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
