package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateLLM(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateGateway() error {
	if c.Gateway.MaxImageBytes <= 0 {
		return errors.New("gateway.max_image_bytes must be positive")
	}
	if c.Gateway.MaxMediaBytes <= 0 {
		return errors.New("gateway.max_media_bytes must be positive")
	}
	if c.Gateway.StorageRetryAttempts < 1 {
		return errors.New("gateway.storage_retry_attempts must be at least 1")
	}
	if c.Whiteboard.MaxPixels <= 0 {
		return errors.New("whiteboard.max_pixels must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.PollInterval <= 0 {
		return errors.New("workflow.poll_interval must be positive")
	}
	if c.Workflow.MaxConcurrentJobs <= 0 {
		return errors.New("workflow.max_concurrent_jobs must be positive")
	}
	if c.Workflow.StageMaxAttempts < 1 {
		return errors.New("workflow.stage_max_attempts must be at least 1")
	}
	if c.Workflow.RetryBaseDelayMS < 0 {
		return errors.New("workflow.retry_base_delay_ms must not be negative")
	}
	if c.Workflow.RetryMaxDelayMS < c.Workflow.RetryBaseDelayMS {
		return errors.New("workflow.retry_max_delay_ms must be >= retry_base_delay_ms")
	}
	if c.Workflow.StageTimeout <= 0 {
		return errors.New("workflow.stage_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLLM() error {
	if c.LLM.QuizQuestions < 1 || c.LLM.QuizQuestions > 50 {
		return errors.New("llm.quiz_questions must be between 1 and 50")
	}
	if c.LLM.MaxConcepts < 1 || c.LLM.MaxConcepts > 50 {
		return errors.New("llm.max_concepts must be between 1 and 50")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return errors.New("llm.temperature must be between 0 and 2")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.URL == "" {
		return nil
	}
	if _, err := url.Parse(c.Redis.URL); err != nil {
		return fmt.Errorf("redis.url: %w", err)
	}
	if c.Redis.HistorySize < 0 {
		return errors.New("redis.history_size must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
