package notifications

import (
	"context"
	"errors"
	"io"
	"strings"

	"studyhub/internal/config"
)

// Service publishes job events.
type Service interface {
	Publish(ctx context.Context, event Event) error
}

// NewService builds the configured notifiers. When nothing is configured a
// noop implementation is returned.
func NewService(cfg *config.Config) (Service, error) {
	var notifiers Multi
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		notifiers = append(notifiers, NewNtfy(cfg.Notifications))
	}
	if url := strings.TrimSpace(cfg.Redis.URL); url != "" {
		publisher, err := NewRedisPublisher(cfg.Redis)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, publisher)
	}
	switch len(notifiers) {
	case 0:
		return Noop{}, nil
	case 1:
		return notifiers[0], nil
	default:
		return notifiers, nil
	}
}

// Multi fans an event out to every notifier, joining their errors.
type Multi []Service

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases notifiers holding connections.
func (m Multi) Close() error {
	var errs []error
	for _, svc := range m {
		if closer, ok := svc.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
