package whisper

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"studyhub/internal/services"
)

func TestTranscribeUploadsMultipart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("unexpected auth header %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("unexpected model %q", got)
		}
		if got := r.FormValue("language"); got != "en" {
			t.Errorf("unexpected language %q", got)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if string(data) != "audio-bytes" || header.Filename != "lecture.mp3" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		if got := header.Header.Get("Content-Type"); got != "audio/mpeg" {
			t.Errorf("unexpected part content type %q", got)
		}
		_, _ = w.Write([]byte(`{"text":"  hello class  "}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	text, err := client.Transcribe(context.Background(), Request{
		Media:       strings.NewReader("audio-bytes"),
		Filename:    "lecture.mp3",
		ContentType: "audio/mpeg",
		Language:    "en",
	})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "hello class" {
		t.Fatalf("unexpected transcript %q", text)
	}
}

func TestTranscribeClassifiesFailures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		marker error
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, body: `{"error":{"message":"slow down"}}`, marker: services.ErrAdapterUnavailable},
		{name: "server error", status: http.StatusInternalServerError, body: "oops", marker: services.ErrAdapterUnavailable},
		{name: "unsupported", status: http.StatusBadRequest, body: `{"error":{"message":"Invalid file format","type":"invalid_request_error"}}`, marker: services.ErrAdapterRejected},
		{name: "auth", status: http.StatusUnauthorized, body: "{}", marker: services.ErrAdapterRejected},
		{name: "silence", status: http.StatusOK, body: `{"text":"   "}`, marker: services.ErrAdapterRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
			_, err := client.Transcribe(context.Background(), Request{Media: strings.NewReader("x"), Filename: "a.wav"})
			if !errors.Is(err, tt.marker) {
				t.Fatalf("expected %v, got %v", tt.marker, err)
			}
		})
	}
}

func TestTranscribeWithoutKey(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Transcribe(context.Background(), Request{Media: strings.NewReader("x")})
	if !errors.Is(err, services.ErrAdapterUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestTranscribeAuthFailureNamesCredential(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	_, err := client.Transcribe(context.Background(), Request{Media: strings.NewReader("x")})
	if !errors.Is(err, services.ErrAdapterRejected) || errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected rejected, got %v", err)
	}
	if !strings.Contains(err.Error(), "transcription.api_key") {
		t.Fatalf("expected credential name in %v", err)
	}
}

// chunkReader produces remaining bytes of filler in small reads.
type chunkReader struct {
	remaining int
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if c.remaining == 0 {
		return 0, io.EOF
	}
	n := min(len(p), c.remaining, 32<<10)
	for i := range n {
		p[i] = 'a'
	}
	c.remaining -= n
	return n, nil
}

func TestTranscribeStreamsMedia(t *testing.T) {
	const size = 8 << 20
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength != -1 {
			t.Errorf("expected a streamed body of unknown length, got %d", r.ContentLength)
		}
		reader, err := r.MultipartReader()
		if err != nil {
			t.Errorf("multipart reader: %v", err)
			return
		}
		part, err := reader.NextPart()
		if err != nil {
			t.Errorf("next part: %v", err)
			return
		}
		n, _ := io.Copy(io.Discard, part)
		if n != size {
			t.Errorf("received %d media bytes, want %d", n, size)
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "key", BaseURL: server.URL})
	text, err := client.Transcribe(context.Background(), Request{Media: &chunkReader{remaining: size}, Filename: "big.wav"})
	if err != nil {
		t.Fatalf("Transcribe returned error: %v", err)
	}
	if text != "ok" {
		t.Fatalf("unexpected transcript %q", text)
	}
}
