package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains data and log directory configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
}

// API contains the daemon HTTP surface settings.
type API struct {
	Bind           string   `toml:"bind"`
	Token          string   `toml:"token"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Gateway contains submission limits.
type Gateway struct {
	MaxImageBytes        int64    `toml:"max_image_bytes"`
	MaxMediaBytes        int64    `toml:"max_media_bytes"`
	LectureContentTypes  []string `toml:"lecture_content_types"`
	ImageContentTypes    []string `toml:"image_content_types"`
	StorageRetryAttempts int      `toml:"storage_retry_attempts"`
}

// Workflow contains orchestrator timing, concurrency, and retry bounds.
type Workflow struct {
	PollInterval      int `toml:"poll_interval"`
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	StageMaxAttempts  int `toml:"stage_max_attempts"`
	RetryBaseDelayMS  int `toml:"retry_base_delay_ms"`
	RetryMaxDelayMS   int `toml:"retry_max_delay_ms"`
	StageTimeout      int `toml:"stage_timeout"`
}

// LLM contains chat completion settings for the summarize, concepts, and quiz stages.
type LLM struct {
	APIKey         string  `toml:"api_key"`
	BaseURL        string  `toml:"base_url"`
	Model          string  `toml:"model"`
	Temperature    float64 `toml:"temperature"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
	Language       string  `toml:"language"`
	QuizQuestions  int     `toml:"quiz_questions"`
	MaxConcepts    int     `toml:"max_concepts"`
}

// Transcription contains speech-to-text endpoint settings.
type Transcription struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// OCR contains tesseract settings.
type OCR struct {
	Binary      string `toml:"binary"`
	Language    string `toml:"language"`
	TessdataDir string `toml:"tessdata_dir"`
	PSM         int    `toml:"psm"`
}

// Whiteboard bounds the image enhancement pass.
type Whiteboard struct {
	MaxPixels int `toml:"max_pixels"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	StageEvents    bool   `toml:"stage_events"`
}

// Redis contains the optional job event publisher settings.
type Redis struct {
	URL         string `toml:"url"`
	Channel     string `toml:"channel"`
	HistoryKey  string `toml:"history_key"`
	HistorySize int    `toml:"history_size"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for studyhub.
//
// Configuration sections by subsystem:
//   - Paths: data directory (ledger, blobs, lock) and log directory
//   - API: daemon bind address, bearer token, CORS origins
//   - Gateway: upload size limits and content type allow-lists
//   - Workflow: orchestrator polling, concurrency, and retry bounds
//   - LLM: summary/concepts/quiz generation
//   - Transcription: lecture speech-to-text
//   - OCR: whiteboard text extraction
//   - Whiteboard: decode budget for uploaded photos
//   - Notifications: ntfy push notifications
//   - Redis: job event publishing
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	Gateway       Gateway       `toml:"gateway"`
	Workflow      Workflow      `toml:"workflow"`
	LLM           LLM           `toml:"llm"`
	Transcription Transcription `toml:"transcription"`
	OCR           OCR           `toml:"ocr"`
	Whiteboard    Whiteboard    `toml:"whiteboard"`
	Notifications Notifications `toml:"notifications"`
	Redis         Redis         `toml:"redis"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the expanded per-user config file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load reads the config file at path, or searches the user config dir and
// then ./studyhub.toml when path is empty. It returns the normalized config,
// the file it resolved to and whether that file existed. A missing file is
// not an error: defaults plus environment overrides are used.
func Load(path string) (*Config, string, bool, error) {
	resolved, exists, err := locate(strings.TrimSpace(path))
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		raw, err := os.ReadFile(resolved)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config %s: %w", resolved, err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
	}
	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func locate(explicit string) (string, bool, error) {
	if explicit != "" {
		target, err := expandPath(explicit)
		if err != nil {
			return "", false, err
		}
		found, err := isFile(target)
		return target, found, err
	}

	userPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	candidates := []string{userPath, "studyhub.toml"}
	for _, candidate := range candidates {
		target, err := expandPath(candidate)
		if err != nil {
			return "", false, err
		}
		if found, _ := isFile(target); found {
			return target, true, nil
		}
	}
	return userPath, false, nil
}

func isFile(path string) (bool, error) {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("stat config: %w", err)
	}
	return !info.IsDir(), nil
}

// EnsureDirectories creates the data, blob and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.BlobDir(), c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) LedgerPath() string { return filepath.Join(c.Paths.DataDir, "studyhub.db") }

func (c *Config) BlobDir() string { return filepath.Join(c.Paths.DataDir, "blobs") }

// LockPath is the single-instance lock held by a running daemon.
func (c *Config) LockPath() string { return filepath.Join(c.Paths.DataDir, "studyhubd.lock") }

// APIBaseURL is the URL local clients use to reach the daemon. Wildcard
// bind hosts are rewritten to loopback.
func (c *Config) APIBaseURL() string {
	host, port, err := net.SplitHostPort(c.API.Bind)
	if err != nil {
		return "http://" + c.API.Bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// ExpandPath applies the same ~ and absolute-path rules used for config
// values.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

func expandPath(value string) (string, error) {
	if value == "" {
		return "", nil
	}
	if value == "~" || strings.HasPrefix(value, "~/") || strings.HasPrefix(value, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		value = filepath.Join(home, value[1:])
	}
	absolute, err := filepath.Abs(value)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", value, err)
	}
	return absolute, nil
}

// CreateSample writes the commented sample config to path, creating parent
// directories as needed.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
