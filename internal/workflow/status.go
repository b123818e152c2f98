package workflow

import (
	"context"

	"studyhub/internal/ledger"
)

// StatusSummary exposes orchestrator state for health reporting.
type StatusSummary struct {
	Running    bool                  `json:"running"`
	InFlight   int                   `json:"inFlight"`
	MaxJobs    int                   `json:"maxConcurrentJobs"`
	LastError  string                `json:"lastError,omitempty"`
	LastJobID  string                `json:"lastJobId,omitempty"`
	JobCounts  map[ledger.Status]int `json:"jobCounts,omitempty"`
	StatsError string                `json:"statsError,omitempty"`
}

// Status returns a snapshot of orchestrator state and ledger counts.
func (o *Orchestrator) Status(ctx context.Context) StatusSummary {
	o.mu.RLock()
	summary := StatusSummary{
		Running:   o.running,
		InFlight:  len(o.inflight),
		MaxJobs:   o.maxJobs,
		LastJobID: o.lastJob,
	}
	if o.lastErr != nil {
		summary.LastError = o.lastErr.Error()
	}
	o.mu.RUnlock()

	counts, err := o.store.Stats(ctx)
	if err != nil {
		summary.StatsError = err.Error()
		return summary
	}
	summary.JobCounts = counts
	return summary
}
