package gateway

import (
	"io"

	"studyhub/internal/services"
)

// limitReader fails once more than remaining bytes have been read, so an
// understated upload is rejected instead of truncated.
type limitReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}

var errTooLarge = services.Wrap(services.ErrInvalidInput, "gateway", "upload", "file exceeds the size limit", nil)
