package testsupport

import (
	"context"
	"sync"
	"testing"
	"time"

	"studyhub/internal/ledger"
	"studyhub/internal/stage"
)

// Step is one scripted adapter response.
type Step struct {
	Output stage.Output
	Err    error
	// Block waits for the invocation context to end and returns its error.
	Block bool
	// Hook runs before the response is returned.
	Hook func(ctx context.Context, in stage.Input)
}

// FakeAdapter replays scripted responses and counts invocations. Once the
// script is exhausted the last step repeats.
type FakeAdapter struct {
	stage ledger.Stage

	mu     sync.Mutex
	steps  []Step
	calls  int
	inputs []stage.Input
}

// NewFakeAdapter builds a fake for st with the given script.
func NewFakeAdapter(st ledger.Stage, steps ...Step) *FakeAdapter {
	return &FakeAdapter{stage: st, steps: steps}
}

// TextAdapter is a fake that always returns text.
func TextAdapter(st ledger.Stage, text string) *FakeAdapter {
	return NewFakeAdapter(st, Step{Output: stage.Output{Text: text}})
}

// ErrAdapter is a fake that always fails with err.
func ErrAdapter(st ledger.Stage, err error) *FakeAdapter {
	return NewFakeAdapter(st, Step{Err: err})
}

func (f *FakeAdapter) Stage() ledger.Stage { return f.stage }

func (f *FakeAdapter) Invoke(ctx context.Context, in stage.Input, _ stage.Config) (stage.Output, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.inputs = append(f.inputs, in)
	var step Step
	if len(f.steps) > 0 {
		if idx >= len(f.steps) {
			idx = len(f.steps) - 1
		}
		step = f.steps[idx]
	}
	f.mu.Unlock()

	if step.Hook != nil {
		step.Hook(ctx, in)
	}
	if step.Block {
		<-ctx.Done()
		return stage.Output{}, ctx.Err()
	}
	return step.Output, step.Err
}

// Calls reports how many times Invoke ran.
func (f *FakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// LastInput returns the most recent invocation input.
func (f *FakeAdapter) LastInput() (stage.Input, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inputs) == 0 {
		return stage.Input{}, false
	}
	return f.inputs[len(f.inputs)-1], true
}

// WaitFor polls cond until it holds or the timeout elapses.
func WaitFor(t testing.TB, timeout time.Duration, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
