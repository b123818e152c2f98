package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"studyhub/internal/ledger"
	"studyhub/internal/services"
	"studyhub/internal/services/llm"
	"studyhub/internal/services/whisper"
)

const (
	contentTypeText     = "text/plain; charset=utf-8"
	contentTypeMarkdown = "text/markdown; charset=utf-8"
	contentTypeJSON     = "application/json"
	contentTypePNG      = "image/png"
	contentTypePDF      = "application/pdf"

	defaultMaxConcepts   = 8
	defaultQuizQuestions = 5
)

// Transcriber converts lecture media into text.
type Transcriber interface {
	Transcribe(ctx context.Context, req whisper.Request) (string, error)
}

// Completer issues chat completions.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Transcribe turns the uploaded recording into a transcript.
type Transcribe struct {
	client Transcriber
}

// NewTranscribe wraps a transcription client.
func NewTranscribe(client Transcriber) *Transcribe {
	return &Transcribe{client: client}
}

func (t *Transcribe) Stage() ledger.Stage { return ledger.StageTranscribe }

func (t *Transcribe) Invoke(ctx context.Context, in Input, cfg Config) (Output, error) {
	media, err := openData(ledger.StageTranscribe, in)
	if err != nil {
		return Output{}, err
	}
	defer media.Close()
	req := whisper.Request{
		Media:    media,
		Filename: mediaFilename(in),
		Language: cfg.Language,
	}
	if in.Blob != nil {
		req.ContentType = in.Blob.ContentType
	}
	text, err := t.client.Transcribe(ctx, req)
	if err != nil {
		return Output{}, err
	}
	return Output{Text: strings.TrimSpace(text), ContentType: contentTypeText}, nil
}

func mediaFilename(in Input) string {
	name := filepath.Base(strings.TrimSpace(in.Filename))
	if name != "" && name != "." && name != string(filepath.Separator) {
		return name
	}
	ext := ".mp3"
	if in.Blob != nil {
		switch strings.ToLower(in.Blob.ContentType) {
		case "audio/wav", "audio/x-wav", "audio/wave":
			ext = ".wav"
		case "audio/mp4", "audio/x-m4a":
			ext = ".m4a"
		case "audio/webm", "video/webm":
			ext = ".webm"
		case "audio/ogg":
			ext = ".ogg"
		case "video/mp4":
			ext = ".mp4"
		case "video/quicktime":
			ext = ".mov"
		}
	}
	return "lecture" + ext
}

// Summarize writes a Markdown summary of the transcript.
type Summarize struct {
	client Completer
}

// NewSummarize wraps a chat completion client.
func NewSummarize(client Completer) *Summarize {
	return &Summarize{client: client}
}

func (s *Summarize) Stage() ledger.Stage { return ledger.StageSummarize }

func (s *Summarize) Invoke(ctx context.Context, in Input, cfg Config) (Output, error) {
	if err := requireText(ledger.StageSummarize, in); err != nil {
		return Output{}, err
	}
	content, err := s.client.Complete(ctx, summarySystemPrompt, lecturePrompt(in.Title, in.Text, cfg.Language, ""))
	if err != nil {
		return Output{}, err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return Output{}, services.Wrap(services.ErrAdapterRejected, string(ledger.StageSummarize), "generate", "empty summary", nil)
	}
	return Output{Text: content, ContentType: contentTypeMarkdown}, nil
}

// Concept is one extracted key term.
type Concept struct {
	Term        string `json:"term"`
	Explanation string `json:"explanation"`
}

// ConceptList is the stored concepts document.
type ConceptList struct {
	Concepts []Concept `json:"concepts"`
}

// Concepts extracts key terms and explanations as JSON.
type Concepts struct {
	client Completer
}

// NewConcepts wraps a chat completion client.
func NewConcepts(client Completer) *Concepts {
	return &Concepts{client: client}
}

func (c *Concepts) Stage() ledger.Stage { return ledger.StageConcepts }

func (c *Concepts) Invoke(ctx context.Context, in Input, cfg Config) (Output, error) {
	if err := requireText(ledger.StageConcepts, in); err != nil {
		return Output{}, err
	}
	limit := itemLimit(cfg, defaultMaxConcepts)
	extra := fmt.Sprintf("Return at most %d concepts.", limit)
	content, err := c.client.CompleteJSON(ctx, conceptsSystemPrompt, lecturePrompt(in.Title, in.Text, cfg.Language, extra))
	if err != nil {
		return Output{}, err
	}
	var doc ConceptList
	if err := decodeValidated(ledger.StageConcepts, "concepts.json", content, &doc); err != nil {
		return Output{}, err
	}
	if len(doc.Concepts) > limit {
		doc.Concepts = doc.Concepts[:limit]
	}
	return jsonOutput(ledger.StageConcepts, doc)
}

// QuizQuestion is one multiple choice question.
type QuizQuestion struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	Answer      string   `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// Quiz is the stored quiz document.
type Quiz struct {
	Questions []QuizQuestion `json:"questions"`
}

// QuizStage writes a multiple choice quiz as JSON.
type QuizStage struct {
	client Completer
}

// NewQuiz wraps a chat completion client.
func NewQuiz(client Completer) *QuizStage {
	return &QuizStage{client: client}
}

func (q *QuizStage) Stage() ledger.Stage { return ledger.StageQuiz }

func (q *QuizStage) Invoke(ctx context.Context, in Input, cfg Config) (Output, error) {
	if err := requireText(ledger.StageQuiz, in); err != nil {
		return Output{}, err
	}
	limit := itemLimit(cfg, defaultQuizQuestions)
	extra := fmt.Sprintf("Write exactly %d questions.", limit)
	content, err := q.client.CompleteJSON(ctx, quizSystemPrompt, lecturePrompt(in.Title, in.Text, cfg.Language, extra))
	if err != nil {
		return Output{}, err
	}
	var doc Quiz
	if err := decodeValidated(ledger.StageQuiz, "quiz.json", content, &doc); err != nil {
		return Output{}, err
	}
	for i, question := range doc.Questions {
		if !containsTrimmed(question.Choices, question.Answer) {
			return Output{}, services.Wrap(services.ErrAdapterRejected, string(ledger.StageQuiz), "validate",
				fmt.Sprintf("question %d answer is not one of its choices", i+1), nil)
		}
	}
	if len(doc.Questions) > limit {
		doc.Questions = doc.Questions[:limit]
	}
	return jsonOutput(ledger.StageQuiz, doc)
}

func decodeValidated(stage ledger.Stage, schema, content string, target any) error {
	payload := llm.SanitizeJSON(content)
	if payload == "" {
		payload = strings.TrimSpace(content)
	}
	if err := validateDocument(schema, []byte(payload)); err != nil {
		return services.Wrap(services.ErrAdapterRejected, string(stage), "validate", "model output failed schema validation", err)
	}
	if err := llm.DecodeLLMJSON(payload, target); err != nil {
		return services.Wrap(services.ErrAdapterRejected, string(stage), "decode", "model output is not valid JSON", err)
	}
	return nil
}

func jsonOutput(stage ledger.Stage, doc any) (Output, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Output{}, services.Wrap(services.ErrAdapterRejected, string(stage), "encode", "", err)
	}
	return Output{Data: data, ContentType: contentTypeJSON}, nil
}

func containsTrimmed(values []string, target string) bool {
	target = strings.TrimSpace(target)
	for _, value := range values {
		if strings.TrimSpace(value) == target {
			return true
		}
	}
	return false
}
