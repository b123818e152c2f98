package stage

import (
	"log/slog"

	"studyhub/internal/config"
	"studyhub/internal/language"
	"studyhub/internal/ledger"
	"studyhub/internal/logging"
	"studyhub/internal/services/imaging"
	"studyhub/internal/services/llm"
	"studyhub/internal/services/tesseract"
	"studyhub/internal/services/whisper"
)

// NewRegistryFromConfig registers every adapter with clients built from cfg.
// Adapters whose credentials are missing are still registered; Health
// reports them not ready and they fail with services.ErrAdapterUnavailable
// when invoked.
func NewRegistryFromConfig(cfg *config.Config, logger *slog.Logger) *Registry {
	logger = logging.NewComponentLogger(logger, "stage")

	transcriber := whisper.NewClient(whisper.Config{
		APIKey:         cfg.Transcription.APIKey,
		BaseURL:        cfg.Transcription.BaseURL,
		Model:          cfg.Transcription.Model,
		TimeoutSeconds: cfg.Transcription.TimeoutSeconds,
	})
	completer := llm.NewClient(llm.Config{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		Temperature:    cfg.LLM.Temperature,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
	})
	engine := tesseract.New(tesseract.Config{
		Binary:      cfg.OCR.Binary,
		Language:    language.ToTesseract(cfg.OCR.Language),
		TessdataDir: cfg.OCR.TessdataDir,
		PSM:         cfg.OCR.PSM,
	}, tesseract.ExecRunner{Logger: logger})

	enhanceOpts := imaging.DefaultOptions()
	enhanceOpts.MaxPixels = cfg.Whiteboard.MaxPixels

	registry := NewRegistry(
		NewTranscribe(transcriber),
		NewSummarize(completer),
		NewConcepts(completer),
		NewQuiz(completer),
		NewRenderPDF(),
		NewEnhance(enhanceOpts),
		NewOCR(engine),
	)
	registry.Configure(ledger.StageTranscribe, Config{Language: language.ToISO2(cfg.Transcription.Language), Model: cfg.Transcription.Model})
	registry.Configure(ledger.StageSummarize, Config{Language: cfg.LLM.Language, Model: cfg.LLM.Model})
	registry.Configure(ledger.StageConcepts, Config{Language: cfg.LLM.Language, Model: cfg.LLM.Model, MaxItems: cfg.LLM.MaxConcepts})
	registry.Configure(ledger.StageQuiz, Config{Language: cfg.LLM.Language, Model: cfg.LLM.Model, MaxItems: cfg.LLM.QuizQuestions})
	registry.Configure(ledger.StageOCR, Config{Language: language.ToTesseract(cfg.OCR.Language)})

	return registry
}
