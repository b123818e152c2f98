package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"studyhub/internal/api"
	"studyhub/internal/gateway"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/services"
	"studyhub/internal/stage"
)

const maxListLimit = 500

func (s *apiServer) handleHealth(c *gin.Context) {
	status := s.daemon.Status(c.Request.Context())
	state := "ok"
	if !status.Running {
		state = "stopped"
	}
	c.JSON(http.StatusOK, api.Health{
		Status:       state,
		PID:          status.PID,
		LedgerPath:   status.LedgerPath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Stages:       api.StageHealthSlice(status.Stages),
		Dependencies: api.DependencySlice(status.Dependencies),
	})
}

func (s *apiServer) handleSubmit(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(c, fmt.Errorf("%w: request body exceeds %d bytes", services.ErrInvalidInput, tooLarge.Limit))
			return
		}
		s.respondError(c, fmt.Errorf("%w: missing file field", services.ErrInvalidInput))
		return
	}

	opts, err := parseOptions(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	stages, err := parseStages(c.PostForm("stages"))
	if err != nil {
		s.respondError(c, err)
		return
	}

	upload, err := fileHeader.Open()
	if err != nil {
		s.respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer upload.Close()

	jobID, err := s.daemon.gateway.Submit(c.Request.Context(), gateway.Submission{
		Kind:        ledger.Kind(strings.ToLower(strings.TrimSpace(c.PostForm("kind")))),
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Size:        fileHeader.Size,
		Body:        upload,
		Options:     opts,
		Title:       c.PostForm("title"),
		Stages:      stages,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, api.SubmitResponse{JobID: jobID})
}

// parseOptions reads either the JSON "options" field or the individual
// boolean fields.
func parseOptions(c *gin.Context) (stage.Options, error) {
	var opts stage.Options
	if raw := strings.TrimSpace(c.PostForm("options")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts); err != nil {
			return stage.Options{}, fmt.Errorf("%w: options: %v", services.ErrInvalidInput, err)
		}
		return opts, nil
	}
	var err error
	if opts.Summary, err = formBool(c, "summary"); err != nil {
		return stage.Options{}, err
	}
	if opts.Concepts, err = formBool(c, "concepts"); err != nil {
		return stage.Options{}, err
	}
	if opts.Quiz, err = formBool(c, "quiz"); err != nil {
		return stage.Options{}, err
	}
	if _, present := c.GetPostForm("ocr"); present {
		ocr, err := formBool(c, "ocr")
		if err != nil {
			return stage.Options{}, err
		}
		opts.OCR = &ocr
	}
	return opts, nil
}

func formBool(c *gin.Context, field string) (bool, error) {
	raw := strings.TrimSpace(c.PostForm(field))
	if raw == "" {
		return false, nil
	}
	if raw == "on" {
		return true, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", services.ErrInvalidInput, field)
	}
	return value, nil
}

func parseStages(raw string) ([]ledger.Stage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var stages []ledger.Stage
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			stages = append(stages, ledger.Stage(strings.ToLower(part)))
		}
	}
	return stages, nil
}

func (s *apiServer) handleGetJob(c *gin.Context) {
	job, err := s.daemon.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.FromJob(job))
}

func (s *apiServer) handleListJobs(c *gin.Context) {
	filter := ledger.ListFilter{Search: strings.TrimSpace(c.Query("q"))}
	if raw := strings.TrimSpace(c.Query("kind")); raw != "" {
		kind, ok := ledger.ParseKind(strings.ToLower(raw))
		if !ok {
			s.respondError(c, fmt.Errorf("%w: unknown kind %q", services.ErrInvalidInput, raw))
			return
		}
		filter.Kind = kind
	}
	for _, value := range c.QueryArray("status") {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			status, ok := ledger.ParseStatus(strings.ToLower(part))
			if !ok {
				s.respondError(c, fmt.Errorf("%w: unknown status %q", services.ErrInvalidInput, part))
				return
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			s.respondError(c, fmt.Errorf("%w: limit must be a positive integer", services.ErrInvalidInput))
			return
		}
		filter.Limit = min(limit, maxListLimit)
	}

	jobs, err := s.daemon.store.ListJobs(c.Request.Context(), filter)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, api.JobListResponse{Jobs: api.FromJobs(jobs)})
}

func (s *apiServer) handleCancelJob(c *gin.Context) {
	id := c.Param("id")
	job, err := s.daemon.store.RequestCancellation(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	logging.WithContext(c.Request.Context(), s.logger).Info("cancellation requested",
		logging.String(logging.FieldEventType, "job_cancel_requested"),
		logging.String(logging.FieldJobID, id),
		logging.String("status", string(job.Status)),
	)
	c.JSON(http.StatusAccepted, api.FromJob(job))
}

// handleDeleteJob drops a finished job from the ledger. Its blobs stay in
// the blob store.
func (s *apiServer) handleDeleteJob(c *gin.Context) {
	id := c.Param("id")
	if err := s.daemon.store.DeleteJob(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	logging.WithContext(c.Request.Context(), s.logger).Info("job deleted",
		logging.String(logging.FieldEventType, "job_deleted"),
		logging.String(logging.FieldJobID, id),
	)
	c.Status(http.StatusNoContent)
}

func (s *apiServer) handleGetBlob(c *gin.Context) {
	ref := c.Param("ref")
	etag := `"` + ref + `"`
	blob, err := s.daemon.blobs.Stat(c.Request.Context(), ref)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if match := c.GetHeader("If-None-Match"); match == etag || match == ref {
		c.Header("ETag", etag)
		c.Status(http.StatusNotModified)
		return
	}
	reader, blob, err := s.daemon.blobs.Reader(c.Request.Context(), blob.Ref)
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer reader.Close()
	c.DataFromReader(http.StatusOK, blob.Size, blob.ContentType, reader, map[string]string{
		"ETag":          etag,
		"Cache-Control": "private, max-age=31536000, immutable",
	})
}

func (s *apiServer) respondError(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request.Context(), s.logger).Error("request failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "http_error"),
			logging.String("path", c.FullPath()),
		)
	}
	c.AbortWithStatusJSON(status, api.ErrorResponse{Error: err.Error(), Code: code})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, api.CodeInvalidInput
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, api.CodeNotFound
	case errors.Is(err, ledger.ErrTerminal), errors.Is(err, ledger.ErrActive):
		return http.StatusConflict, api.CodeConflict
	case errors.Is(err, services.ErrStorageUnavailable):
		return http.StatusServiceUnavailable, api.CodeStorageUnavailable
	default:
		return http.StatusInternalServerError, api.CodeInternal
	}
}
