package stage_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"studyhub/internal/blobstore"
	"studyhub/internal/ledger"
	"studyhub/internal/services"
	"studyhub/internal/services/imaging"
	"studyhub/internal/services/pdf"
	"studyhub/internal/stage"
)

func samplePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(100 + x), G: uint8(100 + y), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

type fakeRecognizer struct {
	text    string
	err     error
	gotExt  string
	gotLang string
}

func (f *fakeRecognizer) Recognize(_ context.Context, _ []byte, ext, language string) (string, error) {
	f.gotExt, f.gotLang = ext, language
	return f.text, f.err
}

func TestEnhanceProducesPNG(t *testing.T) {
	out, err := stage.NewEnhance(imaging.DefaultOptions()).Invoke(context.Background(), stage.Input{Data: samplePNG(t)}, stage.Config{})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if out.ContentType != "image/png" {
		t.Fatalf("unexpected content type %q", out.ContentType)
	}
	if _, err := png.Decode(bytes.NewReader(out.Data)); err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
}

func TestEnhanceRejectsGarbage(t *testing.T) {
	_, err := stage.NewEnhance(imaging.DefaultOptions()).Invoke(context.Background(), stage.Input{Data: []byte("not an image")}, stage.Config{})
	if !errors.Is(err, services.ErrAdapterRejected) {
		t.Fatalf("expected ErrAdapterRejected, got %v", err)
	}
}

func TestOCRPassesExtensionAndLanguage(t *testing.T) {
	engine := &fakeRecognizer{text: " E = mc^2 \n"}
	out, err := stage.NewOCR(engine).Invoke(context.Background(), stage.Input{
		Data: []byte("png"),
		Blob: &blobstore.Blob{ContentType: "image/png"},
	}, stage.Config{Language: "eng"})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if out.Text != "E = mc^2" || engine.gotExt != ".png" || engine.gotLang != "eng" {
		t.Fatalf("unexpected OCR call: out=%+v ext=%s lang=%s", out, engine.gotExt, engine.gotLang)
	}
}

func TestOCRRejectsBlankText(t *testing.T) {
	_, err := stage.NewOCR(&fakeRecognizer{text: "   "}).Invoke(context.Background(), stage.Input{Data: []byte("png")}, stage.Config{})
	if !errors.Is(err, services.ErrAdapterRejected) {
		t.Fatalf("expected ErrAdapterRejected, got %v", err)
	}
}

func TestRenderPDF(t *testing.T) {
	adapter := stage.NewRenderPDF()
	if _, err := adapter.Invoke(context.Background(), stage.Input{}, stage.Config{}); !errors.Is(err, services.ErrAdapterRejected) {
		t.Fatalf("expected ErrAdapterRejected without document, got %v", err)
	}
	out, err := adapter.Invoke(context.Background(), stage.Input{Document: &pdf.Document{
		Title:    "Physics",
		Sections: []pdf.Section{{Key: "summary", Heading: "Summary", Paragraphs: []string{"Forces."}}},
	}}, stage.Config{})
	if err != nil {
		t.Fatalf("Invoke returned error: %v", err)
	}
	if out.ContentType != "application/pdf" || !bytes.HasPrefix(out.Data, []byte("%PDF")) {
		t.Fatalf("unexpected pdf output %q", out.ContentType)
	}
}

func TestRegistryLookup(t *testing.T) {
	registry := stage.NewRegistry(stage.NewRenderPDF())
	registry.Configure(ledger.StageRenderPDF, stage.Config{Language: "en"})

	if _, err := registry.Lookup(ledger.StageRenderPDF); err != nil {
		t.Fatalf("Lookup returned error: %v", err)
	}
	if registry.Config(ledger.StageRenderPDF).Language != "en" {
		t.Fatal("expected configured language")
	}
	if _, err := registry.Lookup(ledger.StageOCR); !errors.Is(err, services.ErrAdapterUnavailable) {
		t.Fatalf("expected ErrAdapterUnavailable for missing adapter, got %v", err)
	}
}

func TestOutputPayloadDefaults(t *testing.T) {
	data, contentType := stage.Output{Text: "hi"}.Payload()
	if string(data) != "hi" || contentType != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected text payload %q %q", data, contentType)
	}
	data, contentType = stage.Output{Data: []byte{1}}.Payload()
	if len(data) != 1 || contentType != "application/octet-stream" {
		t.Fatalf("unexpected binary payload %v %q", data, contentType)
	}
}
