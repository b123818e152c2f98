package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"studyhub/internal/config"
)

func TestLoadDefaultConfigExpandsPaths(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("OPENAI_API_KEY", "env-openai")
	t.Setenv("STUDYHUB_LLM_API_KEY", "")
	t.Setenv("STUDYHUB_TRANSCRIBE_API_KEY", "")
	t.Chdir(t.TempDir())

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "studyhub")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.LedgerPath() != filepath.Join(wantData, "studyhub.db") {
		t.Fatalf("unexpected ledger path %q", cfg.LedgerPath())
	}
	if cfg.API.Bind != "127.0.0.1:7600" {
		t.Fatalf("unexpected api bind: %q", cfg.API.Bind)
	}
	if cfg.Gateway.MaxImageBytes != 10<<20 || cfg.Gateway.MaxMediaBytes != 2<<30 {
		t.Fatalf("unexpected size limits %d/%d", cfg.Gateway.MaxImageBytes, cfg.Gateway.MaxMediaBytes)
	}
	if cfg.Workflow.StageMaxAttempts != 3 {
		t.Fatalf("unexpected stage attempts %d", cfg.Workflow.StageMaxAttempts)
	}
	if cfg.LLM.APIKey != "env-openai" || cfg.Transcription.APIKey != "env-openai" {
		t.Fatalf("expected OPENAI_API_KEY fallback, got %q/%q", cfg.LLM.APIKey, cfg.Transcription.APIKey)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.BlobDir(), cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "studyhub.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
		} `toml:"paths"`
		Gateway struct {
			MaxImageBytes     int64    `toml:"max_image_bytes"`
			ImageContentTypes []string `toml:"image_content_types"`
		} `toml:"gateway"`
		Workflow struct {
			StageMaxAttempts int `toml:"stage_max_attempts"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Gateway.MaxImageBytes = 1024
	custom.Gateway.ImageContentTypes = []string{" IMAGE/PNG ", "image/png"}
	custom.Workflow.StageMaxAttempts = 5
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists || resolved != configPath {
		t.Fatalf("unexpected resolution: %q exists=%v", resolved, exists)
	}
	if cfg.Paths.DataDir != filepath.Join(tempDir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Paths.DataDir)
	}
	if cfg.Gateway.MaxImageBytes != 1024 {
		t.Fatalf("expected image limit override, got %d", cfg.Gateway.MaxImageBytes)
	}
	if len(cfg.Gateway.ImageContentTypes) != 1 || cfg.Gateway.ImageContentTypes[0] != "image/png" {
		t.Fatalf("expected normalized content types, got %v", cfg.Gateway.ImageContentTypes)
	}
	if len(cfg.Gateway.LectureContentTypes) == 0 {
		t.Fatal("expected lecture content types to keep defaults")
	}
	if cfg.Workflow.StageMaxAttempts != 5 {
		t.Fatalf("expected stage attempts 5, got %d", cfg.Workflow.StageMaxAttempts)
	}
}

func TestEnvVarsFillMissingSecrets(t *testing.T) {
	t.Setenv("STUDYHUB_LLM_API_KEY", "env-llm")
	t.Setenv("STUDYHUB_TRANSCRIBE_API_KEY", "env-stt")
	t.Setenv("STUDYHUB_API_TOKEN", "env-token")
	t.Setenv("REDIS_URL", "redis://localhost:6379/1")

	cfg, _, _, err := config.Load(filepath.Join(t.TempDir(), "missing.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Errorf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
	if cfg.Transcription.APIKey != "env-stt" {
		t.Errorf("expected transcription key from env, got %q", cfg.Transcription.APIKey)
	}
	if cfg.API.Token != "env-token" {
		t.Errorf("expected API token from env, got %q", cfg.API.Token)
	}
	if cfg.Redis.URL != "redis://localhost:6379/1" {
		t.Errorf("expected redis url from env, got %q", cfg.Redis.URL)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_llm_api_key_here") {
		t.Fatalf("sample config missing placeholder LLM key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if cfg.Gateway.MaxImageBytes != 10485760 {
		t.Fatalf("unexpected sample image limit %d", cfg.Gateway.MaxImageBytes)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{name: "image limit", mutate: func(c *config.Config) { c.Gateway.MaxImageBytes = 0 }},
		{name: "poll interval", mutate: func(c *config.Config) { c.Workflow.PollInterval = 0 }},
		{name: "attempts", mutate: func(c *config.Config) { c.Workflow.StageMaxAttempts = 0 }},
		{name: "backoff order", mutate: func(c *config.Config) { c.Workflow.RetryMaxDelayMS = c.Workflow.RetryBaseDelayMS - 1 }},
		{name: "quiz size", mutate: func(c *config.Config) { c.LLM.QuizQuestions = 0 }},
		{name: "whiteboard pixels", mutate: func(c *config.Config) { c.Whiteboard.MaxPixels = 0 }},
		{name: "log format", mutate: func(c *config.Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}

	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate, got %v", err)
	}
}

func TestAPIBaseURL(t *testing.T) {
	cfg := config.Default()
	cfg.API.Bind = "0.0.0.0:9000"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:9000" {
		t.Fatalf("unexpected base url %q", got)
	}
	cfg.API.Bind = ":9001"
	if got := cfg.APIBaseURL(); got != "http://127.0.0.1:9001" {
		t.Fatalf("unexpected base url %q", got)
	}
}
