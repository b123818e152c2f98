package workflow_test

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"

	"studyhub/internal/blobstore"
	"studyhub/internal/config"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/notifications"
	"studyhub/internal/services"
	"studyhub/internal/services/pdf"
	"studyhub/internal/stage"
	"studyhub/internal/testsupport"
	"studyhub/internal/workflow"
)

const (
	conceptsJSON = `{"concepts":[{"term":"Entropy","explanation":"Disorder of a system"}]}`
	quizJSON     = `{"questions":[{"question":"What rises?","choices":["Entropy","Order"],"answer":"Entropy"}]}`
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notifications.Event
}

func (r *recordingNotifier) Publish(_ context.Context, event notifications.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) types() []notifications.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notifications.EventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func (r *recordingNotifier) last() notifications.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[len(r.events)-1]
}

type harness struct {
	cfg      *config.Config
	store    *ledger.Store
	blobs    *blobstore.Store
	notifier *recordingNotifier
	delays   []time.Duration
	orch     *workflow.Orchestrator
}

func newHarness(t *testing.T, adapters []stage.Adapter, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	h := &harness{
		cfg:      cfg,
		store:    testsupport.MustOpenLedger(t, cfg),
		blobs:    testsupport.MustOpenBlobStore(t, cfg),
		notifier: &recordingNotifier{},
	}
	var mu sync.Mutex
	sleeper := func(_ context.Context, d time.Duration) error {
		mu.Lock()
		h.delays = append(h.delays, d)
		mu.Unlock()
		return nil
	}
	h.orch = workflow.NewOrchestrator(cfg, h.store, h.blobs, stage.NewRegistry(adapters...), h.notifier, logging.NewNop(), workflow.WithSleeper(sleeper))
	return h
}

func (h *harness) lectureJob(t *testing.T, stages ...ledger.Stage) *ledger.Job {
	t.Helper()
	if len(stages) == 0 {
		stages = []ledger.Stage{ledger.StageTranscribe, ledger.StageSummarize, ledger.StageConcepts, ledger.StageQuiz, ledger.StageRenderPDF}
	}
	return testsupport.NewJob(t, h.store, h.blobs, ledger.KindLecture, "thermo_week3.mp3", testsupport.Payload(2048), "audio/mpeg", stages...)
}

func (h *harness) process(t *testing.T, id string) *ledger.Job {
	t.Helper()
	if err := h.orch.Process(context.Background(), id); err != nil {
		t.Fatalf("Process: %v", err)
	}
	return testsupport.MustGetJob(t, h.store, id)
}

type lectureFakes struct {
	transcribe, summarize, concepts, quiz *testsupport.FakeAdapter
}

func (f lectureFakes) adapters() []stage.Adapter {
	return []stage.Adapter{f.transcribe, f.summarize, f.concepts, f.quiz, stage.NewRenderPDF()}
}

func newLectureFakes() lectureFakes {
	return lectureFakes{
		transcribe: testsupport.TextAdapter(ledger.StageTranscribe, "today we discuss the second law"),
		summarize:  testsupport.TextAdapter(ledger.StageSummarize, "Entropy never decreases in an isolated system."),
		concepts:   testsupport.NewFakeAdapter(ledger.StageConcepts, testsupport.Step{Output: stage.Output{Data: []byte(conceptsJSON), ContentType: "application/json"}}),
		quiz:       testsupport.NewFakeAdapter(ledger.StageQuiz, testsupport.Step{Output: stage.Output{Data: []byte(quizJSON), ContentType: "application/json"}}),
	}
}

func TestProcessLectureCompletes(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)

	got := h.process(t, job.ID)

	if got.Status != ledger.StatusCompleted {
		t.Fatalf("status = %s, want completed (last error %q)", got.Status, got.LastError)
	}
	if len(got.MissingSections) != 0 {
		t.Fatalf("missing sections = %v", got.MissingSections)
	}
	blob, data, err := h.blobs.Read(context.Background(), got.FinalArtifactRef)
	if err != nil {
		t.Fatalf("read artifact: %v", err)
	}
	if blob.ContentType != "application/pdf" || len(data) < 5 || string(data[:5]) != "%PDF-" {
		t.Fatalf("artifact is not a pdf: %s", blob.ContentType)
	}
	for _, st := range got.RequestedStages {
		result, ok := got.Result(st)
		if !ok || result.Outcome != ledger.OutcomeSucceeded || result.Attempts != 1 {
			t.Fatalf("stage %s result = %+v", st, result)
		}
	}
	in, _ := fakes.summarize.LastInput()
	if in.Text != "today we discuss the second law" {
		t.Fatalf("summarize input text = %q", in.Text)
	}
	types := h.notifier.types()
	if types[0] != notifications.EventJobStarted || types[len(types)-1] != notifications.EventJobFinished {
		t.Fatalf("unexpected event order: %v", types)
	}
}

func TestProcessLectureQuizFailureIsPartial(t *testing.T) {
	fakes := newLectureFakes()
	fakes.quiz = testsupport.ErrAdapter(ledger.StageQuiz, services.Wrap(services.ErrAdapterRejected, "quiz", "validate", "answer not among choices", nil))
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)

	got := h.process(t, job.ID)

	if got.Status != ledger.StatusPartiallyFailed {
		t.Fatalf("status = %s, want partially_failed", got.Status)
	}
	if len(got.MissingSections) != 1 || got.MissingSections[0] != "quiz" {
		t.Fatalf("missing sections = %v, want [quiz]", got.MissingSections)
	}
	if got.FinalArtifactRef == "" {
		t.Fatal("expected a final artifact")
	}
	quiz, _ := got.Result(ledger.StageQuiz)
	if quiz.Outcome != ledger.OutcomeFailed || quiz.ErrorKind != services.KindAdapterRejected || quiz.Attempts != 1 {
		t.Fatalf("quiz result = %+v", quiz)
	}
	if fakes.quiz.Calls() != 1 {
		t.Fatalf("rejected stage retried: %d calls", fakes.quiz.Calls())
	}
	if last := h.notifier.last(); last.Status != string(ledger.StatusPartiallyFailed) || len(last.MissingSections) != 1 {
		t.Fatalf("final event = %+v", last)
	}
}

// capturingRenderer renders like render_pdf and keeps the document it got.
type capturingRenderer struct {
	stage.RenderPDF
	mu  sync.Mutex
	doc *pdf.Document
}

func (c *capturingRenderer) Invoke(ctx context.Context, in stage.Input, cfg stage.Config) (stage.Output, error) {
	c.mu.Lock()
	c.doc = in.Document
	c.mu.Unlock()
	return c.RenderPDF.Invoke(ctx, in, cfg)
}

func TestProcessSummaryQuizWithRejectedQuizRendersSummaryOnly(t *testing.T) {
	fakes := newLectureFakes()
	fakes.quiz = testsupport.ErrAdapter(ledger.StageQuiz, services.Wrap(services.ErrAdapterRejected, "quiz", "validate", "answer not among choices", nil))
	renderer := &capturingRenderer{}
	h := newHarness(t, []stage.Adapter{fakes.transcribe, fakes.summarize, fakes.concepts, fakes.quiz, renderer})
	job := h.lectureJob(t, ledger.StageTranscribe, ledger.StageSummarize, ledger.StageQuiz, ledger.StageRenderPDF)

	got := h.process(t, job.ID)

	if got.Status != ledger.StatusPartiallyFailed {
		t.Fatalf("status = %s, want partially_failed", got.Status)
	}
	if got.FinalArtifactRef == "" {
		t.Fatal("expected a final artifact")
	}
	if !slices.Equal(got.MissingSections, []string{"quiz"}) {
		t.Fatalf("missing sections = %v, want [quiz]", got.MissingSections)
	}
	if renderer.doc == nil {
		t.Fatal("render_pdf was not invoked")
	}
	if keys := renderer.doc.SectionKeys(); !slices.Equal(keys, []string{"summary"}) {
		t.Fatalf("document sections = %v, want [summary]", keys)
	}
	if fakes.concepts.Calls() != 0 {
		t.Fatalf("unrequested concepts stage ran %d times", fakes.concepts.Calls())
	}
}

func TestProcessStreamsSourceToPrerequisite(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)

	h.process(t, job.ID)

	in, ok := fakes.transcribe.LastInput()
	if !ok || in.Open == nil {
		t.Fatal("transcribe did not receive a source stream")
	}
	if len(in.Data) != 0 {
		t.Fatalf("source was buffered in memory: %d bytes", len(in.Data))
	}
	rc, err := in.Open()
	if err != nil {
		t.Fatalf("open source: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read source: %v", err)
	}
	if len(data) != 2048 || in.Blob == nil || in.Blob.Size != 2048 {
		t.Fatalf("source stream = %d bytes, blob %+v", len(data), in.Blob)
	}
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	fakes := newLectureFakes()
	fakes.transcribe = testsupport.NewFakeAdapter(ledger.StageTranscribe,
		testsupport.Step{Err: context.DeadlineExceeded},
		testsupport.Step{Err: context.DeadlineExceeded},
		testsupport.Step{Output: stage.Output{Text: "third time lucky"}},
	)
	h := newHarness(t, fakes.adapters(), testsupport.WithMutator(func(c *config.Config) {
		c.Workflow.StageMaxAttempts = 3
		c.Workflow.RetryBaseDelayMS = 100
		c.Workflow.RetryMaxDelayMS = 1000
	}))
	job := h.lectureJob(t)

	got := h.process(t, job.ID)

	if fakes.transcribe.Calls() != 3 {
		t.Fatalf("transcribe calls = %d, want 3", fakes.transcribe.Calls())
	}
	result, _ := got.Result(ledger.StageTranscribe)
	if result.Outcome != ledger.OutcomeSucceeded || result.Attempts != 3 {
		t.Fatalf("transcribe result = %+v", result)
	}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}
	if len(h.delays) != len(want) || h.delays[0] != want[0] || h.delays[1] != want[1] {
		t.Fatalf("backoff delays = %v, want %v", h.delays, want)
	}
	if got.Status != ledger.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestProcessGivesUpAfterMaxAttempts(t *testing.T) {
	fakes := newLectureFakes()
	fakes.summarize = testsupport.ErrAdapter(ledger.StageSummarize, services.Wrap(services.ErrAdapterUnavailable, "summarize", "complete", "503", nil))
	h := newHarness(t, fakes.adapters(), testsupport.WithStageMaxAttempts(3))
	job := h.lectureJob(t)

	got := h.process(t, job.ID)

	if fakes.summarize.Calls() != 3 {
		t.Fatalf("summarize calls = %d, want 3", fakes.summarize.Calls())
	}
	result, _ := got.Result(ledger.StageSummarize)
	if result.Outcome != ledger.OutcomeFailed || result.ErrorKind != services.KindAdapterUnavailable || result.Attempts != 3 {
		t.Fatalf("summarize result = %+v", result)
	}
	if got.Status != ledger.StatusPartiallyFailed || got.MissingSections[0] != "summary" {
		t.Fatalf("status = %s missing = %v", got.Status, got.MissingSections)
	}
}

func TestProcessPrerequisiteFailureSkipsDependents(t *testing.T) {
	fakes := newLectureFakes()
	fakes.transcribe = testsupport.ErrAdapter(ledger.StageTranscribe, services.Wrap(services.ErrAdapterRejected, "transcribe", "decode", "unsupported codec", nil))
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)

	got := h.process(t, job.ID)

	if got.Status != ledger.StatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.FinalArtifactRef != "" {
		t.Fatalf("failed job carries artifact %q", got.FinalArtifactRef)
	}
	if got.LastError == "" {
		t.Fatal("expected last error")
	}
	for _, st := range []ledger.Stage{ledger.StageSummarize, ledger.StageConcepts, ledger.StageQuiz, ledger.StageRenderPDF} {
		result, ok := got.Result(st)
		if !ok || result.Outcome != ledger.OutcomeSkipped {
			t.Fatalf("stage %s result = %+v", st, result)
		}
	}
	if fakes.summarize.Calls()+fakes.concepts.Calls()+fakes.quiz.Calls() != 0 {
		t.Fatal("dependents were invoked after prerequisite failure")
	}
}

func TestProcessHonorsCancellationBetweenStages(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, nil)
	var jobID string
	fakes.transcribe = testsupport.NewFakeAdapter(ledger.StageTranscribe, testsupport.Step{
		Output: stage.Output{Text: "cancelled soon"},
		Hook: func(ctx context.Context, _ stage.Input) {
			if _, err := h.store.RequestCancellation(context.Background(), jobID); err != nil {
				t.Errorf("RequestCancellation: %v", err)
			}
		},
	})
	h.orch = workflow.NewOrchestrator(h.cfg, h.store, h.blobs, stage.NewRegistry(fakes.adapters()...), h.notifier, logging.NewNop())
	job := h.lectureJob(t)
	jobID = job.ID

	got := h.process(t, job.ID)

	if got.Status != ledger.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if result, _ := got.Result(ledger.StageTranscribe); result.Outcome != ledger.OutcomeSucceeded {
		t.Fatalf("transcribe result = %+v", result)
	}
	if fakes.summarize.Calls()+fakes.concepts.Calls()+fakes.quiz.Calls() != 0 {
		t.Fatal("stages ran after cancellation was requested")
	}
	if got.FinalArtifactRef != "" {
		t.Fatal("cancelled job carries an artifact")
	}
}

func TestProcessTerminalJobIsNoop(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)
	first := h.process(t, job.ID)

	second := h.process(t, job.ID)

	if fakes.transcribe.Calls() != 1 || fakes.summarize.Calls() != 1 {
		t.Fatalf("adapters re-invoked: transcribe=%d summarize=%d", fakes.transcribe.Calls(), fakes.summarize.Calls())
	}
	if !second.UpdatedAt.Equal(first.UpdatedAt) {
		t.Fatalf("terminal job was written: %s -> %s", first.UpdatedAt, second.UpdatedAt)
	}
}

func TestProcessResumesFromRecordedStages(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)
	ctx := context.Background()

	transcript, err := h.blobs.PutBytes(ctx, []byte("recorded before restart"), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("PutBytes: %v", err)
	}
	if err := h.store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if _, err := h.store.UpdateStage(ctx, job.ID, ledger.StageTranscribe, ledger.StageResult{Outcome: ledger.OutcomeSucceeded, ResultRef: transcript.Ref, Attempts: 1}); err != nil {
		t.Fatalf("UpdateStage: %v", err)
	}

	got := h.process(t, job.ID)

	if fakes.transcribe.Calls() != 0 {
		t.Fatalf("transcribe re-invoked %d times", fakes.transcribe.Calls())
	}
	in, _ := fakes.quiz.LastInput()
	if in.Text != "recorded before restart" {
		t.Fatalf("quiz input = %q", in.Text)
	}
	if got.Status != ledger.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestProcessRecoversAdapterPanic(t *testing.T) {
	fakes := newLectureFakes()
	fakes.concepts = testsupport.NewFakeAdapter(ledger.StageConcepts, testsupport.Step{
		Hook: func(context.Context, stage.Input) { panic("boom") },
	})
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)

	got := h.process(t, job.ID)

	result, _ := got.Result(ledger.StageConcepts)
	if result.Outcome != ledger.OutcomeFailed || result.ErrorKind != services.KindInternal {
		t.Fatalf("concepts result = %+v", result)
	}
	if got.Status != ledger.StatusPartiallyFailed || got.MissingSections[0] != "concepts" {
		t.Fatalf("status = %s missing = %v", got.Status, got.MissingSections)
	}
}

func TestProcessWhiteboard(t *testing.T) {
	cases := []struct {
		name        string
		ocr         *testsupport.FakeAdapter
		wantStatus  ledger.Status
		wantMissing []string
	}{
		{
			name:       "ocr succeeds",
			ocr:        testsupport.TextAdapter(ledger.StageOCR, "F = ma"),
			wantStatus: ledger.StatusCompleted,
		},
		{
			name:        "ocr rejected",
			ocr:         testsupport.ErrAdapter(ledger.StageOCR, services.Wrap(services.ErrAdapterRejected, "ocr", "recognize", "no text found", nil)),
			wantStatus:  ledger.StatusPartiallyFailed,
			wantMissing: []string{"text"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			enhanced := testsupport.PNG(t, 32, 16)
			enhance := testsupport.NewFakeAdapter(ledger.StageEnhance, testsupport.Step{Output: stage.Output{Data: enhanced, ContentType: "image/png"}})
			h := newHarness(t, []stage.Adapter{enhance, tc.ocr})
			job := testsupport.NewJob(t, h.store, h.blobs, ledger.KindWhiteboard, "board.png", testsupport.PNG(t, 40, 20), "image/png", ledger.StageEnhance, ledger.StageOCR)

			got := h.process(t, job.ID)

			if got.Status != tc.wantStatus {
				t.Fatalf("status = %s, want %s (last error %q)", got.Status, tc.wantStatus, got.LastError)
			}
			if len(got.MissingSections) != len(tc.wantMissing) {
				t.Fatalf("missing = %v, want %v", got.MissingSections, tc.wantMissing)
			}
			in, _ := tc.ocr.LastInput()
			if string(in.Data) != string(enhanced) {
				t.Fatal("ocr did not receive the enhanced image")
			}
			blob, _, err := h.blobs.Read(context.Background(), got.FinalArtifactRef)
			if err != nil || blob.ContentType != "application/pdf" {
				t.Fatalf("artifact = %+v err = %v", blob, err)
			}
		})
	}
}

func TestProcessUnknownJob(t *testing.T) {
	h := newHarness(t, nil)
	err := h.orch.Process(context.Background(), "missing")
	if !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestOrchestratorPicksUpEnqueuedJobs(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, fakes.adapters())
	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.orch.Stop()
	if err := h.orch.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail")
	}

	job := h.lectureJob(t)
	h.orch.Enqueue(job.ID)

	testsupport.WaitFor(t, 5*time.Second, func() bool {
		current, err := h.store.GetJob(context.Background(), job.ID)
		return err == nil && current.Status.IsTerminal()
	})
	if got := testsupport.MustGetJob(t, h.store, job.ID); got.Status != ledger.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	status := h.orch.Status(context.Background())
	if !status.Running || status.JobCounts[ledger.StatusCompleted] != 1 {
		t.Fatalf("status summary = %+v", status)
	}
}

func TestOrchestratorResumesRunningJobsOnStart(t *testing.T) {
	fakes := newLectureFakes()
	h := newHarness(t, fakes.adapters())
	job := h.lectureJob(t)
	if err := h.store.MarkRunning(context.Background(), job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}

	if err := h.orch.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.orch.Stop()

	testsupport.WaitFor(t, 5*time.Second, func() bool {
		current, err := h.store.GetJob(context.Background(), job.ID)
		return err == nil && current.Status == ledger.StatusCompleted
	})
}
