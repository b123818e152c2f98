package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"studyhub/internal/services"
)

const (
	defaultEndpoint = "https://api.openai.com/v1/audio/transcriptions"
	defaultModel    = "whisper-1"
	defaultTimeout  = 15 * time.Minute
)

// Config captures the transcription endpoint settings.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client uploads media to an OpenAI-compatible transcription endpoint.
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

// NewClient constructs a transcription client.
func NewClient(cfg Config, opts ...Option) *Client {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
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

// Request describes one media upload.
type Request struct {
	Media       io.Reader
	Filename    string
	ContentType string
	Language    string
	Prompt      string
}

// Transcribe uploads the media and returns the recognized text.
func (c *Client) Transcribe(ctx context.Context, req Request) (string, error) {
	if c.cfg.APIKey == "" {
		return "", services.Wrap(services.ErrAdapterUnavailable, "transcribe", "configure", "api key not configured", nil)
	}
	if req.Media == nil {
		return "", services.Wrap(services.ErrAdapterRejected, "transcribe", "upload", "no media supplied", nil)
	}

	body, contentType := streamMultipart(req, c.cfg.Model)
	defer body.Close()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, body)
	if err != nil {
		return "", fmt.Errorf("transcribe: new request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", ctx.Err()
		}
		return "", services.Wrap(services.ErrAdapterUnavailable, "transcribe", "upload", "request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return "", decodeAPIError(resp)
	}

	var payload struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrAdapterUnavailable, "transcribe", "decode response", "", err)
	}
	text := strings.TrimSpace(payload.Text)
	if text == "" {
		return "", services.Wrap(services.ErrAdapterRejected, "transcribe", "decode response", "no speech recognized", nil)
	}
	return text, nil
}

// streamMultipart encodes the upload form on the fly. The media is copied
// straight from req.Media into the request body through a pipe.
func streamMultipart(req Request, model string) (io.ReadCloser, string) {
	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(writer, req, model))
	}()
	return pr, writer.FormDataContentType()
}

func writeForm(writer *multipart.Writer, req Request, model string) error {
	filename := strings.TrimSpace(req.Filename)
	if filename == "" {
		filename = "media"
	}
	contentType := req.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(filename)))
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, req.Media); err != nil {
		return fmt.Errorf("copy media: %w", err)
	}
	for _, field := range [][2]string{
		{"model", model},
		{"language", strings.TrimSpace(req.Language)},
		{"prompt", strings.TrimSpace(req.Prompt)},
	} {
		if field[1] == "" {
			continue
		}
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return fmt.Errorf("write %s field: %w", field[0], err)
		}
	}
	return writer.Close()
}

func escapeQuotes(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}

func decodeAPIError(resp *http.Response) error {
	var apiErr struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(raw))
	if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.Error.Message != "" {
		detail = fmt.Sprintf("type %s message %s", apiErr.Error.Type, apiErr.Error.Message)
	}
	msg := fmt.Sprintf("status %d: %s", resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return services.Wrap(services.ErrAdapterUnavailable, "transcribe", "upload", msg, nil)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return services.Wrap(services.ErrAdapterRejected, "transcribe", "upload",
			"transcription.api_key was refused: "+msg, nil)
	default:
		return services.Wrap(services.ErrAdapterRejected, "transcribe", "upload", msg, nil)
	}
}
