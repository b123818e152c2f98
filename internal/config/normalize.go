package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeGateway()
	c.normalizeLLM()
	c.normalizeTranscription()
	c.normalizeRedis()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Bind == "" {
		c.API.Bind = defaultAPIBind
	}
	if c.API.Token == "" {
		if value, ok := os.LookupEnv("STUDYHUB_API_TOKEN"); ok {
			c.API.Token = strings.TrimSpace(value)
		}
	}
	c.API.AllowedOrigins = trimList(c.API.AllowedOrigins, false)
}

func (c *Config) normalizeGateway() {
	c.Gateway.LectureContentTypes = trimList(c.Gateway.LectureContentTypes, true)
	if len(c.Gateway.LectureContentTypes) == 0 {
		c.Gateway.LectureContentTypes = DefaultLectureContentTypes()
	}
	c.Gateway.ImageContentTypes = trimList(c.Gateway.ImageContentTypes, true)
	if len(c.Gateway.ImageContentTypes) == 0 {
		c.Gateway.ImageContentTypes = DefaultImageContentTypes()
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstEnv("STUDYHUB_LLM_API_KEY", "OPENAI_API_KEY")
	}
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Language = strings.ToLower(strings.TrimSpace(c.LLM.Language))
	if c.LLM.Language == "" {
		c.LLM.Language = defaultLLMLanguage
	}
}

func (c *Config) normalizeTranscription() {
	if c.Transcription.APIKey == "" {
		c.Transcription.APIKey = firstEnv("STUDYHUB_TRANSCRIBE_API_KEY", "OPENAI_API_KEY")
	}
	c.Transcription.BaseURL = strings.TrimSpace(c.Transcription.BaseURL)
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionURL
	}
	c.Transcription.Model = strings.TrimSpace(c.Transcription.Model)
	if c.Transcription.Model == "" {
		c.Transcription.Model = defaultTranscriptionModel
	}
}

func (c *Config) normalizeRedis() {
	if c.Redis.URL == "" {
		if value, ok := os.LookupEnv("REDIS_URL"); ok {
			c.Redis.URL = strings.TrimSpace(value)
		}
	}
	if strings.TrimSpace(c.Redis.Channel) == "" {
		c.Redis.Channel = defaultRedisChannel
	}
	if strings.TrimSpace(c.Redis.HistoryKey) == "" {
		c.Redis.HistoryKey = defaultRedisHistoryKey
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func firstEnv(keys ...string) string {
	for _, key := range keys {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func trimList(values []string, lower bool) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if lower {
			v = strings.ToLower(v)
		}
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
