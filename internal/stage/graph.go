package stage

import (
	"errors"
	"fmt"
	"slices"

	"studyhub/internal/ledger"
	"studyhub/internal/services"
)

// Node describes one stage in a kind's pipeline.
type Node struct {
	Stage    ledger.Stage
	Requires []ledger.Stage
	// Optional stages may fail without failing the job; their section is
	// listed as missing instead.
	Optional bool
	// Section is the study guide section key the stage contributes.
	Section string
	Heading string
}

var pipelines = map[ledger.Kind][]Node{
	ledger.KindLecture: {
		{Stage: ledger.StageTranscribe},
		{Stage: ledger.StageSummarize, Requires: []ledger.Stage{ledger.StageTranscribe}, Optional: true, Section: "summary", Heading: "Summary"},
		{Stage: ledger.StageConcepts, Requires: []ledger.Stage{ledger.StageTranscribe}, Optional: true, Section: "concepts", Heading: "Key Concepts"},
		{Stage: ledger.StageQuiz, Requires: []ledger.Stage{ledger.StageTranscribe}, Optional: true, Section: "quiz", Heading: "Quiz"},
		{Stage: ledger.StageRenderPDF, Requires: []ledger.Stage{ledger.StageTranscribe}},
	},
	ledger.KindWhiteboard: {
		{Stage: ledger.StageEnhance},
		{Stage: ledger.StageOCR, Requires: []ledger.Stage{ledger.StageEnhance}, Optional: true, Section: "text", Heading: "Extracted Text"},
	},
}

// Pipeline returns the ordered stage graph for kind.
func Pipeline(kind ledger.Kind) []Node {
	return slices.Clone(pipelines[kind])
}

// LegalStages returns the stages a job of kind may request, in execution order.
func LegalStages(kind ledger.Kind) []ledger.Stage {
	nodes := pipelines[kind]
	stages := make([]ledger.Stage, 0, len(nodes))
	for _, node := range nodes {
		stages = append(stages, node.Stage)
	}
	return stages
}

// LookupNode returns the graph node for stage within kind.
func LookupNode(kind ledger.Kind, stage ledger.Stage) (Node, bool) {
	for _, node := range pipelines[kind] {
		if node.Stage == stage {
			return node, true
		}
	}
	return Node{}, false
}

// Order sorts stages into pipeline order for kind, dropping unknown ones.
func Order(kind ledger.Kind, stages []ledger.Stage) []ledger.Stage {
	ordered := make([]ledger.Stage, 0, len(stages))
	for _, legal := range LegalStages(kind) {
		if slices.Contains(stages, legal) {
			ordered = append(ordered, legal)
		}
	}
	return ordered
}

// ValidateStages checks an explicit stage list: non-empty, each legal for
// kind, no duplicates, every prerequisite present, and for lectures at least
// one optional section plus the final render.
func ValidateStages(kind ledger.Kind, stages []ledger.Stage) error {
	if _, ok := pipelines[kind]; !ok {
		return fmt.Errorf("unknown kind %q: %w", kind, services.ErrInvalidInput)
	}
	if len(stages) == 0 {
		return fmt.Errorf("no stages requested: %w", services.ErrInvalidInput)
	}
	seen := make(map[ledger.Stage]struct{}, len(stages))
	optional := 0
	for _, stage := range stages {
		node, ok := LookupNode(kind, stage)
		if !ok {
			return fmt.Errorf("stage %q is not valid for %s jobs: %w", stage, kind, services.ErrInvalidInput)
		}
		if _, dup := seen[stage]; dup {
			return fmt.Errorf("stage %q requested twice: %w", stage, services.ErrInvalidInput)
		}
		seen[stage] = struct{}{}
		if node.Optional {
			optional++
		}
	}
	for _, stage := range stages {
		node, _ := LookupNode(kind, stage)
		for _, req := range node.Requires {
			if _, ok := seen[req]; !ok {
				return fmt.Errorf("stage %q requires %q: %w", stage, req, services.ErrInvalidInput)
			}
		}
	}
	if kind == ledger.KindLecture {
		if optional == 0 {
			return fmt.Errorf("select at least one of summary, concepts, or quiz: %w", services.ErrInvalidInput)
		}
		if _, ok := seen[ledger.StageRenderPDF]; !ok {
			return fmt.Errorf("lecture jobs must include %s: %w", ledger.StageRenderPDF, services.ErrInvalidInput)
		}
	}
	return nil
}

// Options are the user-facing toggles a submission carries.
type Options struct {
	Summary  bool `json:"summary"`
	Concepts bool `json:"concepts"`
	Quiz     bool `json:"quiz"`
	// OCR defaults to enabled for whiteboard jobs when unset.
	OCR *bool `json:"ocr,omitempty"`
}

// ErrNoSections is returned when a lecture selects no optional section.
var ErrNoSections = errors.New("select at least one option")

// StagesFromOptions derives the requested stages for kind from user options.
func StagesFromOptions(kind ledger.Kind, opts Options) ([]ledger.Stage, error) {
	var stages []ledger.Stage
	switch kind {
	case ledger.KindLecture:
		stages = append(stages, ledger.StageTranscribe)
		if opts.Summary {
			stages = append(stages, ledger.StageSummarize)
		}
		if opts.Concepts {
			stages = append(stages, ledger.StageConcepts)
		}
		if opts.Quiz {
			stages = append(stages, ledger.StageQuiz)
		}
		if len(stages) == 1 {
			return nil, fmt.Errorf("%w: summary, concepts, or quiz: %w", ErrNoSections, services.ErrInvalidInput)
		}
		stages = append(stages, ledger.StageRenderPDF)
	case ledger.KindWhiteboard:
		stages = append(stages, ledger.StageEnhance)
		if opts.OCR == nil || *opts.OCR {
			stages = append(stages, ledger.StageOCR)
		}
	default:
		return nil, fmt.Errorf("unknown kind %q: %w", kind, services.ErrInvalidInput)
	}
	if err := ValidateStages(kind, stages); err != nil {
		return nil, err
	}
	return stages, nil
}

// SectionFor returns the section key and heading contributed by stage.
func SectionFor(kind ledger.Kind, stage ledger.Stage) (string, string) {
	node, ok := LookupNode(kind, stage)
	if !ok {
		return "", ""
	}
	return node.Section, node.Heading
}
