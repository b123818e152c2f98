package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyhub/internal/services"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/chat/completions"
	defaultTimeout  = 2 * time.Minute
	snippetLimit    = 160
	maxResponseSize = 8 << 20
)

// Config captures the chat completion endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    float64
	TimeoutSeconds int
}

// Client talks to an OpenAI-compatible chat completions endpoint. It makes
// exactly one request per call.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a chat client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{cfg: cfg, httpClient: &http.Client{Timeout: timeout}}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c != nil && c.cfg.APIKey != ""
}

// Complete sends a system and user prompt and returns the reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, "complete", systemPrompt, userPrompt, false)
}

// CompleteJSON is Complete with the provider's JSON object mode enabled.
// The reply is returned as the model produced it; use DecodeLLMJSON to
// tolerate code fences and leading prose.
func (c *Client) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return c.complete(ctx, "complete_json", systemPrompt, userPrompt, true)
}

type chatRequest struct {
	Model          string            `json:"model,omitempty"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type replyMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

type chatResponse struct {
	Choices []struct {
		Message replyMessage `json:"message"`
		// Some compatible servers answer with the streaming shape.
		Delta        replyMessage `json:"delta"`
		Text         string       `json:"text"`
		FinishReason string       `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// reply picks the first non-blank content across the choice shapes.
func (r chatResponse) reply() (content, finishReason, refusal string) {
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		if refusal == "" {
			refusal = firstNonBlank(choice.Message.Refusal, choice.Delta.Refusal)
		}
		if text := firstNonBlank(choice.Message.Content, choice.Delta.Content, choice.Text); text != "" {
			return text, finishReason, refusal
		}
	}
	return "", finishReason, refusal
}

func (c *Client) complete(ctx context.Context, op, systemPrompt, userPrompt string, jsonMode bool) (string, error) {
	systemPrompt = strings.TrimSpace(systemPrompt)
	userPrompt = strings.TrimSpace(userPrompt)
	switch {
	case systemPrompt == "" || userPrompt == "":
		return "", services.Wrap(services.ErrAdapterRejected, "llm", op, "system and user prompts are required", nil)
	case !c.Configured():
		return "", services.Wrap(services.ErrAdapterUnavailable, "llm", op, "api key not configured", nil)
	}

	req := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: c.cfg.Temperature,
	}
	if jsonMode {
		req.ResponseFormat = map[string]string{"type": "json_object"}
	}

	resp, raw, err := c.post(ctx, req)
	if err != nil {
		return "", classify(op, err)
	}
	content, finishReason, refusal := resp.reply()
	if content == "" {
		msg := fmt.Sprintf("empty content (finish_reason=%q, refusal=%q, response_snippet=%s)",
			finishReason, refusal, snippet(string(raw)))
		return "", services.Wrap(services.ErrAdapterRejected, "llm", op, msg, nil)
	}
	return content, nil
}

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.code, e.body)
}

func (c *Client) post(ctx context.Context, payload chatRequest) (chatResponse, []byte, error) {
	var out chatResponse
	encoded, err := json.Marshal(payload)
	if err != nil {
		return out, nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return out, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return out, nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return out, raw, &statusError{code: resp.StatusCode, body: snippet(string(raw))}
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, raw, &statusError{code: http.StatusBadGateway, body: "undecodable response: " + snippet(string(raw))}
	}
	if out.Error != nil {
		return out, raw, &statusError{code: http.StatusBadGateway, body: out.Error.Message}
	}
	return out, raw, nil
}

// classify maps a request failure onto the services markers. Throttling,
// server errors and transport failures are transient; everything else,
// refused credentials included, is a permanent rejection.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var se *statusError
	if !errors.As(err, &se) {
		return services.Wrap(services.ErrAdapterUnavailable, "llm", op, "request failed", err)
	}
	switch {
	case se.code == http.StatusRequestTimeout, se.code == http.StatusTooManyRequests, se.code >= http.StatusInternalServerError:
		return services.Wrap(services.ErrAdapterUnavailable, "llm", op, "", err)
	case se.code == http.StatusUnauthorized, se.code == http.StatusForbidden:
		return services.Wrap(services.ErrAdapterRejected, "llm", op, "llm.api_key was refused", err)
	default:
		return services.Wrap(services.ErrAdapterRejected, "llm", op, "", err)
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	if runes := []rune(clean); len(runes) > snippetLimit {
		return string(runes[:snippetLimit]) + "..."
	}
	return clean
}
