package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	ErrAdapterRejected    = errors.New("adapter rejected input")
	ErrNotFound           = errors.New("not found")
	ErrConfiguration      = errors.New("configuration error")
)

// Error kinds persisted alongside failed stage results.
const (
	KindAdapterUnavailable = "adapter_unavailable"
	KindAdapterRejected    = "adapter_rejected"
	KindInternal           = "internal"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrAdapterUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// IsTransient reports whether a stage failure is worth retrying. Deadline
// expiry of a single invocation counts as transient; cancellation of the
// parent context does not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAdapterRejected) {
		return false
	}
	return errors.Is(err, ErrAdapterUnavailable) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorKind classifies a stage failure for persistence.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAdapterRejected):
		return KindAdapterRejected
	case IsTransient(err):
		return KindAdapterUnavailable
	default:
		return KindInternal
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
