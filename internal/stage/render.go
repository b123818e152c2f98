package stage

import (
	"context"

	"studyhub/internal/ledger"
	"studyhub/internal/services"
	"studyhub/internal/services/pdf"
)

// RenderPDF lays out the study guide document.
type RenderPDF struct{}

// NewRenderPDF builds the renderer adapter.
func NewRenderPDF() *RenderPDF {
	return &RenderPDF{}
}

func (r *RenderPDF) Stage() ledger.Stage { return ledger.StageRenderPDF }

func (r *RenderPDF) Invoke(ctx context.Context, in Input, _ Config) (Output, error) {
	if in.Document == nil {
		return Output{}, services.Wrap(services.ErrAdapterRejected, string(ledger.StageRenderPDF), "prepare", "no document supplied", nil)
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	data, err := pdf.Render(*in.Document)
	if err != nil {
		return Output{}, err
	}
	return Output{Data: data, ContentType: contentTypePDF}, nil
}
