package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"studyhub/internal/api"
	"studyhub/internal/services"
)

// ErrAPIUnavailable reports that the daemon could not be reached.
var ErrAPIUnavailable = errors.New("studyhub API unavailable")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Status)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Status, e.Message)
}

// Unwrap maps the error code to the services sentinel it came from.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case api.CodeInvalidInput:
		return services.ErrInvalidInput
	case api.CodeNotFound:
		return services.ErrNotFound
	case api.CodeStorageUnavailable:
		return services.ErrStorageUnavailable
	default:
		return nil
	}
}

// Client talks to the daemon HTTP API.
type Client struct {
	base  *url.URL
	token string
	http  *http.Client
}

// New builds a client for baseURL ("host:port" or a full URL).
func New(baseURL, token string) (*Client, error) {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil, errors.New("api address is required")
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	base.Path = strings.TrimSuffix(base.Path, "/")
	base.RawQuery = ""
	base.Fragment = ""
	// Uploads and downloads can be large; callers bound requests via ctx.
	return &Client{base: base, token: strings.TrimSpace(token), http: &http.Client{}}, nil
}

// Upload describes a file submission.
type Upload struct {
	Kind        string
	Path        string
	ContentType string
	Title       string
	Summary     bool
	Concepts    bool
	Quiz        bool
	// OCR is sent only when set.
	OCR *bool
}

// Submit streams the file at up.Path to POST /jobs and returns the job id.
func (c *Client) Submit(ctx context.Context, up Upload) (string, error) {
	file, err := os.Open(up.Path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", up.Path, err)
	}
	defer file.Close()

	pr, pw := io.Pipe()
	writer := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeUpload(writer, file, up))
	}()

	req, err := c.newRequest(ctx, http.MethodPost, "/jobs", nil, pr)
	if err != nil {
		_ = pr.Close()
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp api.SubmitResponse
	if err := c.do(req, &resp); err != nil {
		return "", err
	}
	return resp.JobID, nil
}

func writeUpload(writer *multipart.Writer, file *os.File, up Upload) error {
	fields := map[string]string{"kind": up.Kind}
	if title := strings.TrimSpace(up.Title); title != "" {
		fields["title"] = title
	}
	fields["summary"] = strconv.FormatBool(up.Summary)
	fields["concepts"] = strconv.FormatBool(up.Concepts)
	fields["quiz"] = strconv.FormatBool(up.Quiz)
	if up.OCR != nil {
		fields["ocr"] = strconv.FormatBool(*up.OCR)
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return err
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(up.Path)))
	contentType := up.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, file); err != nil {
		return err
	}
	return writer.Close()
}

// GetJob fetches a job snapshot.
func (c *Client) GetJob(ctx context.Context, id string) (api.Job, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return api.Job{}, err
	}
	var job api.Job
	err = c.do(req, &job)
	return job, err
}

// ListQuery filters the Study Hub listing.
type ListQuery struct {
	Kind     string
	Statuses []string
	Search   string
	Limit    int
}

// ListJobs returns jobs newest first.
func (c *Client) ListJobs(ctx context.Context, q ListQuery) ([]api.Job, error) {
	values := url.Values{}
	if strings.TrimSpace(q.Kind) != "" {
		values.Set("kind", q.Kind)
	}
	for _, status := range q.Statuses {
		if strings.TrimSpace(status) != "" {
			values.Add("status", status)
		}
	}
	if strings.TrimSpace(q.Search) != "" {
		values.Set("q", q.Search)
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	req, err := c.newRequest(ctx, http.MethodGet, "/jobs", values, nil)
	if err != nil {
		return nil, err
	}
	var resp api.JobListResponse
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Jobs, nil
}

// Cancel requests cancellation and returns the updated snapshot.
func (c *Client) Cancel(ctx context.Context, id string) (api.Job, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/jobs/"+url.PathEscape(id)+"/cancel", nil, nil)
	if err != nil {
		return api.Job{}, err
	}
	var job api.Job
	err = c.do(req, &job)
	return job, err
}

// Delete removes a finished job from the ledger.
func (c *Client) Delete(ctx context.Context, id string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, "/jobs/"+url.PathEscape(id), nil, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

// Health fetches the daemon health summary.
func (c *Client) Health(ctx context.Context) (api.Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/healthz", nil, nil)
	if err != nil {
		return api.Health{}, err
	}
	var health api.Health
	err = c.do(req, &health)
	return health, err
}

// FetchBlob copies a blob into w and returns its content type and length.
func (c *Client) FetchBlob(ctx context.Context, ref string, w io.Writer) (string, int64, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/blobs/"+url.PathEscape(ref), nil, nil)
	if err != nil {
		return "", 0, err
	}
	resp, err := c.send(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", 0, decodeError(resp)
	}
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return "", n, fmt.Errorf("download blob: %w", err)
	}
	return resp.Header.Get("Content-Type"), n, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	endpoint := *c.base
	endpoint.Path = c.base.Path + path
	if query != nil {
		endpoint.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) send(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if IsAPIUnavailable(err) {
			return nil, fmt.Errorf("%w at %s: %v", ErrAPIUnavailable, c.base.Host, err)
		}
		return nil, err
	}
	return resp, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.send(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	var body api.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Error
	}
	return apiErr
}

// IsAPIUnavailable reports whether err means the daemon is not reachable.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAPIUnavailable) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
