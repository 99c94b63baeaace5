package internal

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	pkgconfig "github.com/starford/demotape/pkg/config"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	err := cfg.Validate()
	if err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestDefaultConfig_Valid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestStorageConfig_Drivers(t *testing.T) {
	cfg := StorageConfig{Driver: StorageDriverRedis}
	if err := cfg.Validate(); err == nil {
		t.Error("redis driver without url should fail")
	}
	cfg.RedisURL = "redis://localhost:6379/0"
	if err := cfg.Validate(); err != nil {
		t.Errorf("redis driver with url should pass: %v", err)
	}

	cfg = StorageConfig{Driver: StorageDriverFS}
	if err := cfg.Validate(); err == nil {
		t.Error("fs driver without path should fail")
	}

	cfg = StorageConfig{Driver: "s3", Path: "x"}
	if err := cfg.Validate(); err == nil {
		t.Error("unknown driver should fail")
	}
}

func TestEditorConfig_Bounds(t *testing.T) {
	cfg := EditorConfig{HistoryLimit: 0, SnapshotDebounce: time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("zero history limit should fail")
	}
	cfg = EditorConfig{HistoryLimit: 10}
	if err := cfg.Validate(); err == nil {
		t.Error("zero debounce should fail")
	}
}

func TestAIConfig_RequiresModelsWhenEnabled(t *testing.T) {
	cfg := AIConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled ai should pass: %v", err)
	}
	if cfg.Enabled() {
		t.Error("ai without key should be disabled")
	}

	cfg.APIKey = "sk-test"
	if err := cfg.Validate(); err == nil {
		t.Error("enabled ai without base url and models should fail")
	}
}

func TestInboxConfig_PathWhenEnabled(t *testing.T) {
	cfg := InboxConfig{Enabled: true}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled inbox without path should fail")
	}
}

func TestConfig_LoadYAML(t *testing.T) {
	t.Setenv("DEMOTAPE_TEST_KEY", "sk-from-env")
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
app:
  log_level: debug
  http:
    port: 9090
editor:
  history_limit: 20
  snapshot_debounce: 800ms
ai:
  api_key: ${DEMOTAPE_TEST_KEY}
  timeout: 30s
inbox:
  enabled: true
  path: /tmp/memos
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.LogLevel != slog.LevelDebug {
		t.Errorf("log level = %v", cfg.App.LogLevel)
	}
	if cfg.App.HTTP.Address() != ":9090" {
		t.Errorf("address = %s", cfg.App.HTTP.Address())
	}
	if cfg.Editor.HistoryLimit != 20 || cfg.Editor.SnapshotDebounce != 800*time.Millisecond {
		t.Errorf("editor = %+v", cfg.Editor)
	}
	if cfg.AI.APIKey != "sk-from-env" || cfg.AI.Timeout != 30*time.Second {
		t.Errorf("ai = %+v", cfg.AI)
	}
	if cfg.AI.TranscriptionModel != "whisper-1" {
		t.Errorf("defaults should survive partial file, got model %q", cfg.AI.TranscriptionModel)
	}
	if !cfg.Inbox.Enabled || cfg.Inbox.Path != "/tmp/memos" {
		t.Errorf("inbox = %+v", cfg.Inbox)
	}
}
