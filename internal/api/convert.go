package api

import (
	"time"

	"studyhub/internal/deps"
	"studyhub/internal/ledger"
	"studyhub/internal/stage"
	"studyhub/internal/workflow"
)

// FromJob converts a ledger job to its API representation.
func FromJob(job *ledger.Job) Job {
	if job == nil {
		return Job{}
	}
	dto := Job{
		ID:               job.ID,
		Kind:             string(job.Kind),
		Title:            job.Title,
		SourceFilename:   job.SourceFilename,
		SourceBlobRef:    job.SourceBlobRef,
		Status:           string(job.Status),
		RequestedStages:  make([]string, 0, len(job.RequestedStages)),
		StageResults:     make(map[string]StageResult, len(job.StageResults)),
		MissingSections:  append([]string{}, job.MissingSections...),
		FinalArtifactRef: job.FinalArtifactRef,
		LastError:        job.LastError,
		CreatedAt:        formatTime(job.CreatedAt),
		UpdatedAt:        formatTime(job.UpdatedAt),
	}
	for _, st := range job.RequestedStages {
		dto.RequestedStages = append(dto.RequestedStages, string(st))
	}
	for st, result := range job.StageResults {
		dto.StageResults[string(st)] = StageResult{
			Outcome:   string(result.Outcome),
			ResultRef: result.ResultRef,
			Error:     result.Error,
			ErrorKind: result.ErrorKind,
			Attempts:  result.Attempts,
			UpdatedAt: formatTime(result.UpdatedAt),
		}
	}
	return dto
}

// FromJobs converts a listing.
func FromJobs(jobs []*ledger.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatusSummary converts orchestrator status for transport.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	counts := make(map[string]int, len(summary.JobCounts))
	for status, n := range summary.JobCounts {
		counts[string(status)] = n
	}
	lastError := summary.LastError
	if lastError == "" {
		lastError = summary.StatsError
	}
	return WorkflowStatus{
		Running:           summary.Running,
		InFlight:          summary.InFlight,
		MaxConcurrentJobs: summary.MaxJobs,
		LastError:         lastError,
		LastJobID:         summary.LastJobID,
		JobCounts:         counts,
	}
}

// StageHealthSlice converts adapter readiness in reporting order.
func StageHealthSlice(health []stage.Health) []StageHealth {
	out := make([]StageHealth, 0, len(health))
	for _, h := range health {
		out = append(out, StageHealth{Stage: string(h.Stage), Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// DependencySlice converts binary availability checks.
func DependencySlice(statuses []deps.Status) []Dependency {
	out := make([]Dependency, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, Dependency{
			Name:        st.Name,
			Command:     st.Command,
			Description: st.Description,
			Optional:    st.Optional,
			Available:   st.Available,
			Detail:      st.Detail,
		})
	}
	return out
}

// ParseTime reads a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
