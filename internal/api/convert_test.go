package api

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"studyhub/internal/deps"
	"studyhub/internal/ledger"
	"studyhub/internal/workflow"
)

func TestFromJob(t *testing.T) {
	created := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	job := &ledger.Job{
		ID:              "job-1",
		Kind:            ledger.KindLecture,
		Title:           "Thermo",
		Status:          ledger.StatusPartiallyFailed,
		RequestedStages: []ledger.Stage{ledger.StageTranscribe, ledger.StageQuiz, ledger.StageRenderPDF},
		StageResults: map[ledger.Stage]ledger.StageResult{
			ledger.StageQuiz: {Outcome: ledger.OutcomeFailed, Error: "bad answer", ErrorKind: "adapter_rejected", Attempts: 1, UpdatedAt: created},
		},
		MissingSections:  []string{"quiz"},
		FinalArtifactRef: strings.Repeat("a", 64),
		CreatedAt:        created,
		UpdatedAt:        created.Add(time.Minute),
	}

	dto := FromJob(job)

	if dto.Status != "partially_failed" || dto.Kind != "lecture" {
		t.Fatalf("unexpected dto %+v", dto)
	}
	if dto.CreatedAt != "2026-03-02T09:30:00.000Z" {
		t.Fatalf("createdAt = %q", dto.CreatedAt)
	}
	quiz := dto.StageResults["quiz"]
	if quiz.Outcome != "failed" || quiz.ErrorKind != "adapter_rejected" || quiz.Attempts != 1 {
		t.Fatalf("quiz = %+v", quiz)
	}
	if parsed, ok := ParseTime(dto.UpdatedAt); !ok || !parsed.Equal(job.UpdatedAt) {
		t.Fatalf("updatedAt round trip failed: %q", dto.UpdatedAt)
	}
}

func TestFromJobEncodesEmptyCollections(t *testing.T) {
	data, err := json.Marshal(FromJob(&ledger.Job{ID: "x", Status: ledger.StatusPending}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(data)
	for _, want := range []string{`"stageResults":{}`, `"missingSections":[]`, `"requestedStages":[]`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in %s", want, body)
		}
	}
	if strings.Contains(body, "finalArtifactRef") {
		t.Fatalf("pending job should omit artifact: %s", body)
	}
}

func TestFromStatusSummary(t *testing.T) {
	summary := workflow.StatusSummary{
		Running:   true,
		InFlight:  2,
		MaxJobs:   4,
		JobCounts: map[ledger.Status]int{ledger.StatusPending: 3},
	}
	got := FromStatusSummary(summary)
	if !got.Running || got.InFlight != 2 || got.MaxConcurrentJobs != 4 || got.JobCounts["pending"] != 3 {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestDependencySlice(t *testing.T) {
	got := DependencySlice([]deps.Status{
		{Name: "Tesseract", Command: "tesseract", Optional: true, Detail: `binary "tesseract" not found`},
	})
	if len(got) != 1 {
		t.Fatalf("expected one dependency, got %d", len(got))
	}
	if got[0].Available || !got[0].Optional || got[0].Detail == "" {
		t.Fatalf("dependency = %+v", got[0])
	}
	if empty := DependencySlice(nil); empty == nil || len(empty) != 0 {
		t.Fatalf("nil input should give empty slice, got %#v", empty)
	}
}
