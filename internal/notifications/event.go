package notifications

import (
	"time"
)

// EventType enumerates job lifecycle milestones.
type EventType string

const (
	EventJobStarted    EventType = "job.started"
	EventStageFinished EventType = "stage.finished"
	EventJobFinished   EventType = "job.finished"
	EventTest          EventType = "test"
)

// Event describes one lifecycle milestone of a job.
type Event struct {
	Type             EventType `json:"type"`
	JobID            string    `json:"jobId,omitempty"`
	Kind             string    `json:"kind,omitempty"`
	Title            string    `json:"title,omitempty"`
	Stage            string    `json:"stage,omitempty"`
	Outcome          string    `json:"outcome,omitempty"`
	Attempts         int       `json:"attempts,omitempty"`
	Status           string    `json:"status,omitempty"`
	Error            string    `json:"error,omitempty"`
	FinalArtifactRef string    `json:"finalArtifactRef,omitempty"`
	MissingSections  []string  `json:"missingSections,omitempty"`
	Time             time.Time `json:"time"`
}
