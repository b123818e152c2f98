package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Error codes returned alongside HTTP errors.
const (
	CodeInvalidInput       = "invalid_input"
	CodeNotFound           = "not_found"
	CodeStorageUnavailable = "storage_unavailable"
	CodeConflict           = "conflict"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal"
)

// StageResult is the recorded outcome of one stage.
type StageResult struct {
	Outcome   string `json:"outcome"`
	ResultRef string `json:"resultRef,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"errorKind,omitempty"`
	Attempts  int    `json:"attempts"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// Job is the status snapshot returned by GET /jobs/{id}.
type Job struct {
	ID               string                 `json:"id"`
	Kind             string                 `json:"kind"`
	Title            string                 `json:"title"`
	SourceFilename   string                 `json:"sourceFilename,omitempty"`
	SourceBlobRef    string                 `json:"sourceBlobRef,omitempty"`
	Status           string                 `json:"status"`
	RequestedStages  []string               `json:"requestedStages"`
	StageResults     map[string]StageResult `json:"stageResults"`
	MissingSections  []string               `json:"missingSections"`
	FinalArtifactRef string                 `json:"finalArtifactRef,omitempty"`
	LastError        string                 `json:"lastError,omitempty"`
	CreatedAt        string                 `json:"createdAt,omitempty"`
	UpdatedAt        string                 `json:"updatedAt,omitempty"`
}

// SubmitResponse acknowledges an accepted upload.
type SubmitResponse struct {
	JobID string `json:"jobId"`
}

// JobListResponse wraps the Study Hub listing.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// WorkflowStatus summarizes orchestrator execution state.
type WorkflowStatus struct {
	Running           bool           `json:"running"`
	InFlight          int            `json:"inFlight"`
	MaxConcurrentJobs int            `json:"maxConcurrentJobs"`
	LastError         string         `json:"lastError,omitempty"`
	LastJobID         string         `json:"lastJobId,omitempty"`
	JobCounts         map[string]int `json:"jobCounts"`
}

// StageHealth reports whether a stage has an adapter bound.
type StageHealth struct {
	Stage  string `json:"stage"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Dependency reports whether an external binary is installed.
type Dependency struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description,omitempty"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// Health is the GET /healthz payload.
type Health struct {
	Status       string         `json:"status"`
	PID          int            `json:"pid"`
	LedgerPath   string         `json:"ledgerPath"`
	LockFilePath string         `json:"lockFilePath"`
	Workflow     WorkflowStatus `json:"workflow"`
	Stages       []StageHealth  `json:"stages"`
	Dependencies []Dependency   `json:"dependencies"`
}
