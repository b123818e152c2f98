package stage

import (
	"errors"

	"studyhub/internal/ledger"
)

// Health summarizes whether a stage can run right now.
type Health struct {
	Stage  ledger.Stage `json:"stage"`
	Ready  bool         `json:"ready"`
	Detail string       `json:"detail,omitempty"`
}

// ReadinessChecker is implemented by adapters that depend on configuration
// or local tools. A non-nil error marks the stage not ready.
type ReadinessChecker interface {
	Readiness() error
}

type configuredClient interface {
	Configured() bool
}

type availableEngine interface {
	Available() error
}

// Health reports every stage of every kind, consulting adapter readiness
// checks where present.
func (r *Registry) Health() []Health {
	seen := make(map[ledger.Stage]bool)
	var out []Health
	for _, kind := range []ledger.Kind{ledger.KindLecture, ledger.KindWhiteboard} {
		for _, st := range LegalStages(kind) {
			if seen[st] {
				continue
			}
			seen[st] = true
			out = append(out, r.stageHealth(st))
		}
	}
	return out
}

func (r *Registry) stageHealth(st ledger.Stage) Health {
	adapter, err := r.Lookup(st)
	if err != nil {
		return Health{Stage: st, Detail: "no adapter registered"}
	}
	if checker, ok := adapter.(ReadinessChecker); ok {
		if err := checker.Readiness(); err != nil {
			return Health{Stage: st, Detail: err.Error()}
		}
	}
	return Health{Stage: st, Ready: true}
}

func clientReadiness(client any, key string) error {
	if c, ok := client.(configuredClient); ok && !c.Configured() {
		return errors.New(key + " not configured")
	}
	return nil
}

func (t *Transcribe) Readiness() error { return clientReadiness(t.client, "transcription.api_key") }
func (s *Summarize) Readiness() error  { return clientReadiness(s.client, "llm.api_key") }
func (c *Concepts) Readiness() error   { return clientReadiness(c.client, "llm.api_key") }
func (q *QuizStage) Readiness() error  { return clientReadiness(q.client, "llm.api_key") }

func (o *OCR) Readiness() error {
	if engine, ok := o.engine.(availableEngine); ok {
		return engine.Available()
	}
	return nil
}
