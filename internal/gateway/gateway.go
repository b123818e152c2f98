package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"studyhub/internal/blobstore"
	"studyhub/internal/config"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/services"
	"studyhub/internal/stage"
)

const sniffLen = 512

// Submission is one upload handed to the gateway.
type Submission struct {
	Kind        ledger.Kind
	Filename    string
	ContentType string
	// Size is the declared length; zero or negative means unknown.
	Size    int64
	Body    io.Reader
	Options stage.Options
	Title   string
	// Stages, when set, replaces the option-derived stage list.
	Stages []ledger.Stage
}

// BlobWriter stores upload payloads.
type BlobWriter interface {
	Put(ctx context.Context, r io.Reader, contentType string) (*blobstore.Blob, error)
}

// JobCreator records new jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, in ledger.NewJob) (*ledger.Job, error)
}

// Enqueuer is notified when a job is ready for processing.
type Enqueuer interface {
	Enqueue(jobID string)
}

// Gateway accepts submissions.
type Gateway struct {
	cfg      config.Gateway
	blobs    BlobWriter
	jobs     JobCreator
	enqueuer Enqueuer
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithEnqueuer registers the component woken after each accepted job.
func WithEnqueuer(e Enqueuer) Option {
	return func(g *Gateway) {
		g.enqueuer = e
	}
}

// WithSleeper overrides the wait between storage retries.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(g *Gateway) {
		if sleep != nil {
			g.sleep = sleep
		}
	}
}

// New constructs a gateway over the given stores.
func New(cfg config.Gateway, blobs BlobWriter, jobs JobCreator, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		blobs:  blobs,
		jobs:   jobs,
		logger: logging.NewComponentLogger(logger, "gateway"),
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit validates the upload, stores it, and creates a pending job,
// returning the new job id.
func (g *Gateway) Submit(ctx context.Context, sub Submission) (string, error) {
	kind, ok := ledger.ParseKind(string(sub.Kind))
	if !ok {
		return "", invalid("unknown kind %q", sub.Kind)
	}
	if sub.Body == nil {
		return "", invalid("file is required")
	}
	filename := filepath.Base(strings.TrimSpace(sub.Filename))
	if filename == "." || filename == string(filepath.Separator) {
		filename = ""
	}

	limit := g.limitFor(kind)
	if sub.Size > limit {
		return "", invalid("file is %d bytes; %s uploads are limited to %d bytes", sub.Size, kind, limit)
	}

	stages, err := g.requestedStages(kind, sub)
	if err != nil {
		return "", err
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(sub.Body, head)
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
	case err != nil:
		return "", fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return "", invalid("file is empty")
	}
	if int64(n) > limit {
		return "", invalid("%s uploads are limited to %d bytes", kind, limit)
	}

	contentType, err := g.resolveContentType(kind, sub.ContentType, head)
	if err != nil {
		return "", err
	}

	blob, err := g.storeBlob(ctx, sub.Body, head, limit, contentType)
	if err != nil {
		return "", err
	}

	job, err := g.jobs.CreateJob(ctx, ledger.NewJob{
		Kind:            kind,
		Title:           strings.TrimSpace(sub.Title),
		SourceFilename:  filename,
		SourceBlobRef:   blob.Ref,
		RequestedStages: stages,
	})
	if err != nil {
		return "", services.Wrap(services.ErrStorageUnavailable, "gateway", "create job", "", err)
	}

	g.logger.Info("job submitted",
		logging.String(logging.FieldEventType, "job_submitted"),
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldKind, string(kind)),
		logging.String("content_type", contentType),
		logging.Int64("size", blob.Size),
		logging.Any("stages", stages),
	)
	if g.enqueuer != nil {
		g.enqueuer.Enqueue(job.ID)
	}
	return job.ID, nil
}

func (g *Gateway) limitFor(kind ledger.Kind) int64 {
	if kind == ledger.KindWhiteboard {
		return g.cfg.MaxImageBytes
	}
	return g.cfg.MaxMediaBytes
}

func (g *Gateway) allowedTypes(kind ledger.Kind) []string {
	if kind == ledger.KindWhiteboard {
		return g.cfg.ImageContentTypes
	}
	return g.cfg.LectureContentTypes
}

func (g *Gateway) requestedStages(kind ledger.Kind, sub Submission) ([]ledger.Stage, error) {
	if len(sub.Stages) > 0 {
		if err := stage.ValidateStages(kind, sub.Stages); err != nil {
			return nil, err
		}
		return stage.Order(kind, sub.Stages), nil
	}
	stages, err := stage.StagesFromOptions(kind, sub.Options)
	if err != nil {
		if errors.Is(err, stage.ErrNoSections) {
			return nil, invalid("select at least one of summary, concepts, or quiz")
		}
		return nil, err
	}
	return stages, nil
}

// resolveContentType normalizes the declared type, sniffing the payload when
// the client did not say, and checks it against the kind's allow-list.
func (g *Gateway) resolveContentType(kind ledger.Kind, declared string, head []byte) (string, error) {
	contentType := normalizeContentType(declared)
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = normalizeContentType(http.DetectContentType(head))
	}
	if !slices.Contains(g.allowedTypes(kind), contentType) {
		return "", invalid("content type %q is not accepted for %s uploads", contentType, kind)
	}
	return contentType, nil
}

// storeBlob writes the payload, retrying storage failures when the body can
// be rewound.
func (g *Gateway) storeBlob(ctx context.Context, body io.Reader, head []byte, limit int64, contentType string) (*blobstore.Blob, error) {
	attempts := g.cfg.StorageRetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	seeker, rewindable := body.(io.Seeker)

	reader := io.MultiReader(bytes.NewReader(head), body)
	for attempt := 1; ; attempt++ {
		blob, err := g.blobs.Put(ctx, &limitReader{r: reader, remaining: limit}, contentType)
		if err == nil {
			return blob, nil
		}
		if !errors.Is(err, services.ErrStorageUnavailable) || !rewindable || attempt >= attempts {
			return nil, err
		}
		logging.WarnWithContext(g.logger, "blob write failed; retrying", "blob_write_retry",
			logging.Error(err),
			logging.Int("attempt", attempt),
			logging.String(logging.FieldErrorHint, "check free space and permissions on the data directory"),
		)
		if err := g.sleep(ctx, time.Duration(attempt)*100*time.Millisecond); err != nil {
			return nil, err
		}
		if _, err := seeker.Seek(0, io.SeekStart); err != nil {
			return nil, fmt.Errorf("rewind upload: %w", err)
		}
		reader = body
	}
}

func normalizeContentType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(parsed)
	}
	if idx := strings.IndexByte(value, ';'); idx >= 0 {
		value = value[:idx]
	}
	return strings.ToLower(strings.TrimSpace(value))
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", services.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
