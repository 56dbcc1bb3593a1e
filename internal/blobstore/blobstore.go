// Package blobstore implements the Content Store: content-addressed
// storage for ingested evidence bytes. Every blob is written once under a
// path derived entirely from its SHA-256 digest; re-ingesting
// byte-identical content reuses the existing blob rather than writing a
// duplicate (spec.md §4.1, §6.2).
package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store is a filesystem-backed Content Store rooted at one directory.
type Store struct {
	root string
}

// New creates a Store rooted at root, creating the directory if absent.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: failed to create root %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Meta is the sidecar metadata written next to every blob.
type Meta struct {
	OriginalFilename string    `json:"original_filename"`
	DeclaredType     string    `json:"declared_type"`
	Size             int64     `json:"size"`
	IngestedAt       time.Time `json:"ingested_at"`
}

// Path returns <root>/<xx>/<yy>/<digest> for a given digest, per spec.md
// §6.2's path shape.
func (s *Store) Path(digest string) string {
	return filepath.Join(s.root, digest[0:2], digest[2:4], digest)
}

func (s *Store) metaPath(digest string) string {
	return s.Path(digest) + ".meta.json"
}

// Exists reports whether a blob with the given digest is already stored.
func (s *Store) Exists(digest string) bool {
	_, err := os.Stat(s.Path(digest))
	return err == nil
}

// Put streams r to a temporary file while incrementally hashing it, then
// promotes the temp file into its content-addressed path. If a blob with
// the resulting digest already exists, the temp file is discarded and the
// existing path is reused — content-addressed dedup, never written twice.
func (s *Store) Put(ctx context.Context, r io.Reader, originalFilename, declaredType string, maxBytes int64) (digest string, size int64, err error) {
	tmp, err := os.CreateTemp(s.root, "ingest-*.tmp")
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	hasher := sha256.New()
	written, err := io.Copy(tmp, io.TeeReader(io.LimitReader(r, maxBytes+1), hasher))
	closeErr := tmp.Close()
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: failed to stream upload: %w", err)
	}
	if closeErr != nil {
		return "", 0, fmt.Errorf("blobstore: failed to finalize temp file: %w", closeErr)
	}
	if written > maxBytes {
		return "", 0, ErrTooLarge
	}
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	digest = hex.EncodeToString(hasher.Sum(nil))
	finalPath := s.Path(digest)

	if s.Exists(digest) {
		return digest, written, nil
	}

	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return "", 0, fmt.Errorf("blobstore: failed to create blob directory: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", 0, fmt.Errorf("blobstore: failed to promote blob: %w", err)
	}

	meta := Meta{
		OriginalFilename: originalFilename,
		DeclaredType:     declaredType,
		Size:             written,
		IngestedAt:       time.Now().UTC(),
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return "", 0, fmt.Errorf("blobstore: failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(digest), metaBytes, 0o644); err != nil {
		return "", 0, fmt.Errorf("blobstore: failed to write metadata: %w", err)
	}

	return digest, written, nil
}

// ErrTooLarge is returned by Put when the stream exceeds maxBytes.
var ErrTooLarge = fmt.Errorf("blobstore: content exceeds maximum allowed size")

// Open returns a reader over the blob for digest.
func (s *Store) Open(digest string) (*os.File, error) {
	return os.Open(s.Path(digest))
}

// GetMeta reads the sidecar metadata for a blob.
func (s *Store) GetMeta(digest string) (*Meta, error) {
	data, err := os.ReadFile(s.metaPath(digest))
	if err != nil {
		return nil, fmt.Errorf("blobstore: failed to read metadata for %s: %w", digest, err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("blobstore: failed to unmarshal metadata for %s: %w", digest, err)
	}
	return &meta, nil
}
