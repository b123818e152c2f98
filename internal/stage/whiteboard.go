package stage

import (
	"context"
	"strings"

	"studyhub/internal/ledger"
	"studyhub/internal/services"
	"studyhub/internal/services/imaging"
)

// Recognizer extracts text from an encoded image.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, ext, language string) (string, error)
}

// Enhance cleans up a whiteboard photo for reading and OCR.
type Enhance struct {
	opts imaging.Options
}

// NewEnhance builds the enhancement adapter.
func NewEnhance(opts imaging.Options) *Enhance {
	return &Enhance{opts: opts}
}

func (e *Enhance) Stage() ledger.Stage { return ledger.StageEnhance }

func (e *Enhance) Invoke(ctx context.Context, in Input, _ Config) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	src, err := readData(ledger.StageEnhance, in)
	if err != nil {
		return Output{}, err
	}
	data, err := imaging.Enhance(src, e.opts)
	if err != nil {
		return Output{}, err
	}
	return Output{Data: data, ContentType: contentTypePNG}, nil
}

// OCR extracts text from the enhanced whiteboard image.
type OCR struct {
	engine Recognizer
}

// NewOCR wraps a text recognizer.
func NewOCR(engine Recognizer) *OCR {
	return &OCR{engine: engine}
}

func (o *OCR) Stage() ledger.Stage { return ledger.StageOCR }

func (o *OCR) Invoke(ctx context.Context, in Input, cfg Config) (Output, error) {
	if err := requireData(ledger.StageOCR, in); err != nil {
		return Output{}, err
	}
	text, err := o.engine.Recognize(ctx, in.Data, imageExt(in), cfg.Language)
	if err != nil {
		return Output{}, err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Output{}, services.Wrap(services.ErrAdapterRejected, string(ledger.StageOCR), "recognize", "no text found", nil)
	}
	return Output{Text: text, ContentType: contentTypeText}, nil
}

func imageExt(in Input) string {
	if in.Blob != nil && strings.EqualFold(in.Blob.ContentType, "image/jpeg") {
		return ".jpg"
	}
	return ".png"
}
