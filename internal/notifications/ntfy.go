package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studyhub/internal/config"
)

const userAgent = "studyhub/0.1.0"

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// Ntfy posts events to an ntfy topic URL.
type Ntfy struct {
	endpoint    string
	client      *http.Client
	stageEvents bool
}

// NewNtfy builds an ntfy notifier from the notifications config section.
func NewNtfy(cfg config.Notifications) *Ntfy {
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Ntfy{
		endpoint:    strings.TrimSpace(cfg.NtfyTopic),
		client:      &http.Client{Timeout: timeout},
		stageEvents: cfg.StageEvents,
	}
}

func (n *Ntfy) Publish(ctx context.Context, event Event) error {
	data, ok := n.format(event)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *Ntfy) format(event Event) (payload, bool) {
	title := strings.TrimSpace(event.Title)
	if title == "" {
		title = event.JobID
	}
	switch event.Type {
	case EventJobStarted:
		return payload{
			title:   "studyhub - Processing",
			message: fmt.Sprintf("Processing %s: %s", event.Kind, title),
			tags:    []string{"studyhub", event.Kind, "started"},
		}, true
	case EventStageFinished:
		if !n.stageEvents {
			return payload{}, false
		}
		message := fmt.Sprintf("%s %s: %s", event.Stage, event.Outcome, title)
		if event.Error != "" {
			message += "\n" + event.Error
		}
		return payload{
			title:    "studyhub - Stage " + event.Outcome,
			message:  message,
			tags:     []string{"studyhub", event.Stage, event.Outcome},
			priority: "low",
		}, true
	case EventJobFinished:
		return formatFinished(event, title), true
	case EventTest:
		return payload{
			title:    "studyhub - Test",
			message:  "Notification system test",
			tags:     []string{"studyhub", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func formatFinished(event Event, title string) payload {
	switch event.Status {
	case "completed":
		return payload{
			title:    "studyhub - Ready",
			message:  fmt.Sprintf("Study material ready: %s", title),
			tags:     []string{"studyhub", event.Kind, "completed"},
			priority: "high",
		}
	case "partially_failed":
		return payload{
			title:    "studyhub - Ready (incomplete)",
			message:  fmt.Sprintf("Study material ready: %s\nMissing: %s", title, strings.Join(event.MissingSections, ", ")),
			tags:     []string{"studyhub", event.Kind, "partial"},
			priority: "high",
		}
	case "cancelled":
		return payload{
			title:   "studyhub - Cancelled",
			message: fmt.Sprintf("Cancelled: %s", title),
			tags:    []string{"studyhub", event.Kind, "cancelled"},
		}
	default:
		message := fmt.Sprintf("Processing failed: %s", title)
		if event.Error != "" {
			message += "\n" + event.Error
		}
		return payload{
			title:    "studyhub - Error",
			message:  message,
			tags:     []string{"studyhub", "error", "alert"},
			priority: "high",
		}
	}
}

func (n *Ntfy) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil || n.endpoint == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if tags := compactTags(data.tags); len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func compactTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	return out
}
