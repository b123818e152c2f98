package stage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"

	"studyhub/internal/blobstore"
	"studyhub/internal/ledger"
	"studyhub/internal/services"
	"studyhub/internal/services/pdf"
)

// Input carries the payload handed to an adapter. Blob-based stages read
// Data, or stream Open when the source blob is not held in memory;
// text-based stages read Text; render_pdf reads Document.
type Input struct {
	JobID    string
	Title    string
	Filename string
	Blob     *blobstore.Blob
	Data     []byte
	Open     func() (io.ReadCloser, error)
	Text     string
	Document *pdf.Document
}

// Output is an adapter result. Data with ContentType is stored as a blob;
// Text is stored as a UTF-8 blob when Data is empty.
type Output struct {
	Data        []byte
	ContentType string
	Text        string
}

// Payload returns the bytes and content type to persist for this output.
func (o Output) Payload() ([]byte, string) {
	if len(o.Data) > 0 {
		contentType := o.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		return o.Data, contentType
	}
	contentType := o.ContentType
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	return []byte(o.Text), contentType
}

// Config holds per-invocation options.
type Config struct {
	Language string
	Model    string
	MaxItems int
}

// Adapter is the uniform contract over an external capability.
type Adapter interface {
	Stage() ledger.Stage
	Invoke(ctx context.Context, in Input, cfg Config) (Output, error)
}

// Registry maps stages to adapters and their default invocation options.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ledger.Stage]Adapter
	configs  map[ledger.Stage]Config
}

// NewRegistry builds a registry from the supplied adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		adapters: make(map[ledger.Stage]Adapter),
		configs:  make(map[ledger.Stage]Config),
	}
	for _, adapter := range adapters {
		r.Register(adapter)
	}
	return r
}

// Register adds or replaces the adapter for its stage.
func (r *Registry) Register(adapter Adapter) {
	if adapter == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Stage()] = adapter
}

// Configure sets the default invocation options for a stage.
func (r *Registry) Configure(stage ledger.Stage, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[stage] = cfg
}

// Lookup returns the adapter registered for stage.
func (r *Registry) Lookup(stage ledger.Stage) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[stage]
	if !ok {
		return nil, services.Wrap(services.ErrAdapterUnavailable, string(stage), "lookup", "no adapter registered", nil)
	}
	return adapter, nil
}

// Config returns the default invocation options for stage.
func (r *Registry) Config(stage ledger.Stage) Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.configs[stage]
}

// Stages lists registered stages in name order.
func (r *Registry) Stages() []ledger.Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stages := make([]ledger.Stage, 0, len(r.adapters))
	for stage := range r.adapters {
		stages = append(stages, stage)
	}
	sort.Slice(stages, func(i, j int) bool { return stages[i] < stages[j] })
	return stages
}

func requireData(stage ledger.Stage, in Input) error {
	if len(in.Data) == 0 {
		return services.Wrap(services.ErrAdapterRejected, string(stage), "prepare", "input payload is empty", nil)
	}
	return nil
}

// openData returns a stream over the input payload, preferring Open.
func openData(stage ledger.Stage, in Input) (io.ReadCloser, error) {
	if in.Open == nil || len(in.Data) > 0 {
		if err := requireData(stage, in); err != nil {
			return nil, err
		}
		return io.NopCloser(bytes.NewReader(in.Data)), nil
	}
	if in.Blob != nil && in.Blob.Size == 0 {
		return nil, services.Wrap(services.ErrAdapterRejected, string(stage), "prepare", "input payload is empty", nil)
	}
	rc, err := in.Open()
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, string(stage), "prepare", "open input", err)
	}
	return rc, nil
}

// readData is openData for adapters that need the whole payload.
func readData(stage ledger.Stage, in Input) ([]byte, error) {
	if len(in.Data) > 0 {
		return in.Data, nil
	}
	rc, err := openData(stage, in)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, string(stage), "prepare", "read input", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrAdapterRejected, string(stage), "prepare", "input payload is empty", nil)
	}
	return data, nil
}

func requireText(stage ledger.Stage, in Input) error {
	if len(in.Text) == 0 {
		return services.Wrap(services.ErrAdapterRejected, string(stage), "prepare", "input text is empty", nil)
	}
	return nil
}

func itemLimit(cfg Config, fallback int) int {
	if cfg.MaxItems > 0 {
		return cfg.MaxItems
	}
	return fallback
}
