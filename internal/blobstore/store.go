package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"studyhub/internal/services"
)

const defaultContentType = "application/octet-stream"

// Blob describes a stored payload.
type Blob struct {
	Ref         string    `json:"ref"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store writes and reads blobs beneath a root directory.
type Store struct {
	root string
	now  func() time.Time
}

// Open prepares the blob directory rooted at dir.
func Open(dir string) (*Store, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("blob directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, "tmp"), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "open", "create blob directory", err)
	}
	return &Store{root: dir, now: time.Now}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string {
	return s.root
}

// ValidRef reports whether ref looks like a SHA-256 hex digest.
func ValidRef(ref string) bool {
	if len(ref) != sha256.Size*2 {
		return false
	}
	for _, r := range ref {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Put streams r into the store. Errors returned by r are passed through
// unwrapped by the storage marker so callers can distinguish bad input from
// storage failures.
func (s *Store) Put(ctx context.Context, r io.Reader, contentType string) (*Blob, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "blob-*")
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "create temp file", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	hasher := sha256.New()
	size, copyErr := io.Copy(io.MultiWriter(tmp, hasher), contextReader{ctx: ctx, r: r})
	if copyErr != nil {
		_ = tmp.Close()
		var pathErr *fs.PathError
		if errors.As(copyErr, &pathErr) && pathErr.Path == tmpPath {
			return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "write temp file", copyErr)
		}
		return nil, fmt.Errorf("read blob payload: %w", copyErr)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "close temp file", err)
	}

	ref := hex.EncodeToString(hasher.Sum(nil))
	if existing, err := s.Stat(ctx, ref); err == nil {
		return existing, nil
	}

	blob := &Blob{
		Ref:         ref,
		ContentType: normalizeContentType(contentType),
		Size:        size,
		CreatedAt:   s.now().UTC(),
	}
	dest := s.dataPath(ref)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "create shard directory", err)
	}
	if err := s.writeMetadata(blob); err != nil {
		return nil, err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "commit blob", err)
	}
	committed = true
	return blob, nil
}

// PutBytes stores an in-memory payload.
func (s *Store) PutBytes(ctx context.Context, data []byte, contentType string) (*Blob, error) {
	return s.Put(ctx, bytes.NewReader(data), contentType)
}

// Stat returns blob metadata without reading the payload.
func (s *Store) Stat(ctx context.Context, ref string) (*Blob, error) {
	if !ValidRef(ref) {
		return nil, fmt.Errorf("blob %q: %w", ref, services.ErrNotFound)
	}
	info, err := os.Stat(s.dataPath(ref))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("blob %s: %w", ref, services.ErrNotFound)
	}
	if err != nil {
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "stat", "stat blob", err)
	}

	blob := &Blob{Ref: ref, ContentType: defaultContentType, Size: info.Size(), CreatedAt: info.ModTime().UTC()}
	data, err := os.ReadFile(s.metaPath(ref))
	switch {
	case err == nil:
		var meta Blob
		if jsonErr := json.Unmarshal(data, &meta); jsonErr == nil {
			blob.ContentType = normalizeContentType(meta.ContentType)
			if !meta.CreatedAt.IsZero() {
				blob.CreatedAt = meta.CreatedAt
			}
		}
	case errors.Is(err, fs.ErrNotExist):
		// payload without sidecar: fall back to file attributes
	default:
		return nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "stat", "read metadata", err)
	}
	return blob, nil
}

// Reader opens the payload for streaming. Callers must close the reader.
func (s *Store) Reader(ctx context.Context, ref string) (io.ReadCloser, *Blob, error) {
	blob, err := s.Stat(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	file, err := os.Open(s.dataPath(ref))
	if err != nil {
		return nil, nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "open", "open blob", err)
	}
	return file, blob, nil
}

// Read loads the payload into memory.
func (s *Store) Read(ctx context.Context, ref string) (*Blob, []byte, error) {
	rc, blob, err := s.Reader(ctx, ref)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrStorageUnavailable, "blobstore", "read", "read blob", err)
	}
	return blob, data, nil
}

// Exists reports whether a payload is stored under ref.
func (s *Store) Exists(ctx context.Context, ref string) bool {
	_, err := s.Stat(ctx, ref)
	return err == nil
}

// Count walks the store and returns the number of committed payloads.
func (s *Store) Count() (int, error) {
	count := 0
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "tmp" {
				return filepath.SkipDir
			}
			return nil
		}
		if ValidRef(d.Name()) {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk blob directory: %w", err)
	}
	return count, nil
}

func (s *Store) writeMetadata(blob *Blob) error {
	data, err := json.MarshalIndent(blob, "", "  ")
	if err != nil {
		return fmt.Errorf("encode blob metadata: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Join(s.root, "tmp"), "meta-*")
	if err != nil {
		return services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "create metadata temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "write metadata", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "close metadata", err)
	}
	if err := os.Rename(tmpPath, s.metaPath(blob.Ref)); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrStorageUnavailable, "blobstore", "put", "commit metadata", err)
	}
	return nil
}

func (s *Store) dataPath(ref string) string {
	return filepath.Join(s.root, ref[:2], ref)
}

func (s *Store) metaPath(ref string) string {
	return s.dataPath(ref) + ".json"
}

func normalizeContentType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return defaultContentType
	}
	return value
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
