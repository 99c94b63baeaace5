package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Storage drivers.
const (
	StorageDriverFS    = "fs"
	StorageDriverRedis = "redis"
)

// Config represents the application configuration.
type Config struct {
	App       ApplicationConfig `yaml:"app"`
	Storage   StorageConfig     `yaml:"storage"`
	SQLite    SQLiteConfig      `yaml:"sqlite"`
	Auth      AuthConfig        `yaml:"auth"`
	Editor    EditorConfig      `yaml:"editor"`
	Recording RecordingConfig   `yaml:"recording"`
	AI        AIConfig          `yaml:"ai"`
	Inbox     InboxConfig       `yaml:"inbox"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Storage, &c.SQLite, &c.Auth, &c.Editor, &c.Recording, &c.AI, &c.Inbox,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StorageConfig selects where notes and projects are persisted.
//
// Driver "fs" writes one JSON file per key under Path. Driver "redis" stores
// the same keys on the server at RedisURL, prefixed with KeyPrefix.
type StorageConfig struct {
	Driver    string `yaml:"driver"`
	Path      string `yaml:"path"`
	RedisURL  string `yaml:"redis_url"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.Required, validation.In(StorageDriverFS, StorageDriverRedis)),
		validation.Field(&c.Path, validation.When(c.Driver == StorageDriverFS, validation.Required)),
		validation.Field(&c.RedisURL, validation.When(c.Driver == StorageDriverRedis, validation.Required)),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// EditorConfig tunes undo history and snapshot debouncing.
type EditorConfig struct {
	HistoryLimit     int           `yaml:"history_limit"`
	SnapshotDebounce time.Duration `yaml:"snapshot_debounce"`
}

// Validate validates the editor configuration.
func (c *EditorConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HistoryLimit, validation.Required, validation.Min(1)),
		validation.Field(&c.SnapshotDebounce, validation.Required, validation.Min(time.Millisecond)),
	)
}

// RecordingConfig holds recording session settings.
type RecordingConfig struct {
	MinCaptureBytes int    `yaml:"min_capture_bytes"`
	AllowMicrophone bool   `yaml:"allow_microphone"`
	FFProbePath     string `yaml:"ffprobe_path"`
}

// Validate validates the recording configuration.
func (c *RecordingConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MinCaptureBytes, validation.Min(0)),
	)
}

// AIConfig points at an OpenAI-compatible transcription and chat API.
// An empty APIKey disables whole-note transcription.
type AIConfig struct {
	BaseURL            string        `yaml:"base_url"`
	APIKey             string        `yaml:"api_key"`
	TranscriptionModel string        `yaml:"transcription_model"`
	StructuringModel   string        `yaml:"structuring_model"`
	Timeout            time.Duration `yaml:"timeout"`
}

// Validate validates the AI configuration.
func (c *AIConfig) Validate() error {
	enabled := c.APIKey != ""
	return validation.ValidateStruct(c,
		validation.Field(&c.BaseURL, validation.When(enabled, validation.Required)),
		validation.Field(&c.TranscriptionModel, validation.When(enabled, validation.Required)),
		validation.Field(&c.StructuringModel, validation.When(enabled, validation.Required)),
		validation.Field(&c.Timeout, validation.Min(time.Duration(0))),
	)
}

// Enabled reports whether an API key is configured.
func (c *AIConfig) Enabled() bool {
	return c.APIKey != ""
}

// InboxConfig controls the voice memo drop folder. Patterns, when set,
// restrict imports to matching file names.
type InboxConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Path     string        `yaml:"path"`
	Settle   time.Duration `yaml:"settle"`
	Patterns []string      `yaml:"patterns"`
}

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.When(c.Enabled, validation.Required)),
		validation.Field(&c.Settle, validation.Min(time.Duration(0))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Storage: StorageConfig{
			Driver:    StorageDriverFS,
			Path:      "./data",
			KeyPrefix: "demotape:",
		},
		SQLite: SQLiteConfig{
			Path: "./demotape.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Editor: EditorConfig{
			HistoryLimit:     50,
			SnapshotDebounce: time.Second,
		},
		Recording: RecordingConfig{
			MinCaptureBytes: 1000,
			AllowMicrophone: true,
			FFProbePath:     "ffprobe",
		},
		AI: AIConfig{
			BaseURL:            "https://api.openai.com/v1",
			TranscriptionModel: "whisper-1",
			StructuringModel:   "gpt-4o-mini",
			Timeout:            60 * time.Second,
		},
		Inbox: InboxConfig{
			Path:   "./inbox",
			Settle: 500 * time.Millisecond,
		},
	}
}
