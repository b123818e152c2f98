package ledger

import (
	"slices"
	"time"
)

// Kind identifies the workflow a job runs through.
type Kind string

const (
	KindLecture    Kind = "lecture"
	KindWhiteboard Kind = "whiteboard"
)

// ParseKind normalizes a kind string, reporting whether it is known.
func ParseKind(value string) (Kind, bool) {
	switch Kind(value) {
	case KindLecture, KindWhiteboard:
		return Kind(value), true
	default:
		return "", false
	}
}

// Stage names a single transformation step within a job.
type Stage string

const (
	StageTranscribe Stage = "transcribe"
	StageSummarize  Stage = "summarize"
	StageConcepts   Stage = "concepts"
	StageQuiz       Stage = "quiz"
	StageRenderPDF  Stage = "render_pdf"
	StageEnhance    Stage = "enhance"
	StageOCR        Stage = "ocr"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending               Status = "pending"
	StatusRunning               Status = "running"
	StatusCompleted             Status = "completed"
	StatusFailed                Status = "failed"
	StatusPartiallyFailed       Status = "partially_failed"
	StatusCancellationRequested Status = "cancellation_requested"
	StatusCancelled             Status = "cancelled"
)

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusCompleted,
	StatusFailed,
	StatusPartiallyFailed,
	StatusCancellationRequested,
	StatusCancelled,
}

var terminalStatuses = []Status{
	StatusCompleted,
	StatusFailed,
	StatusPartiallyFailed,
	StatusCancelled,
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return slices.Clone(allStatuses)
}

// ParseStatus normalizes a status string, reporting whether it is known.
func ParseStatus(value string) (Status, bool) {
	status := Status(value)
	return status, slices.Contains(allStatuses, status)
}

// IsTerminal reports whether the status never transitions again.
func (s Status) IsTerminal() bool {
	return slices.Contains(terminalStatuses, s)
}

// HasArtifact reports whether jobs in this status must carry a final artifact.
func (s Status) HasArtifact() bool {
	return s == StatusCompleted || s == StatusPartiallyFailed
}

// Outcome is the terminal result of a single stage.
type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeSkipped   Outcome = "skipped"
)

// StageResult records the outcome of one requested stage.
type StageResult struct {
	Outcome   Outcome   `json:"outcome"`
	ResultRef string    `json:"resultRef,omitempty"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
	Attempts  int       `json:"attempts"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Job is a persisted processing request.
type Job struct {
	ID               string                `json:"id"`
	Kind             Kind                  `json:"kind"`
	Title            string                `json:"title"`
	SourceFilename   string                `json:"sourceFilename,omitempty"`
	SourceBlobRef    string                `json:"sourceBlobRef"`
	RequestedStages  []Stage               `json:"requestedStages"`
	Status           Status                `json:"status"`
	StageResults     map[Stage]StageResult `json:"stageResults"`
	MissingSections  []string              `json:"missingSections"`
	FinalArtifactRef string                `json:"finalArtifactRef,omitempty"`
	LastError        string                `json:"lastError,omitempty"`
	CreatedAt        time.Time             `json:"createdAt"`
	UpdatedAt        time.Time             `json:"updatedAt"`
}

// Requested reports whether the job asked for stage.
func (j *Job) Requested(stage Stage) bool {
	return slices.Contains(j.RequestedStages, stage)
}

// Result returns the recorded result for stage, if any.
func (j *Job) Result(stage Stage) (StageResult, bool) {
	res, ok := j.StageResults[stage]
	return res, ok
}

// NewJob describes a job to be created.
type NewJob struct {
	Kind            Kind
	Title           string
	SourceFilename  string
	SourceBlobRef   string
	RequestedStages []Stage
}

// Finish describes the terminal state a job is moving into.
type Finish struct {
	Status           Status
	FinalArtifactRef string
	MissingSections  []string
	Error            string
}

// ListFilter narrows ListJobs results.
type ListFilter struct {
	Kind     Kind
	Statuses []Status
	Search   string
	Limit    int
}
