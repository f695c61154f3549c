package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Filesystem stores blobs under root/<aa>/<digest>, where aa is the first
// two hex characters of the sha256 digest. Writes land in a temp file and
// are renamed into place, so a key either exists fully or not at all.
type Filesystem struct {
	root string
}

// NewFilesystem opens (creating if needed) a filesystem store rooted at dir.
func NewFilesystem(dir string) (*Filesystem, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("objectstore: empty directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("objectstore: create root: %w", err)
	}
	return &Filesystem{root: dir}, nil
}

// Root returns the store's base directory.
func (s *Filesystem) Root() string { return s.root }

func (s *Filesystem) pathFor(key string) (string, error) {
	if len(key) < 3 || strings.Contains(key, "/") || strings.Contains(key, "..") {
		return "", fmt.Errorf("objectstore: malformed key %q", key)
	}
	return filepath.Join(s.root, key[:2], key), nil
}

// Put streams the reader into a temp file while hashing, then renames the
// result to its content address.
func (s *Filesystem) Put(ctx context.Context, r io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-"+uuid.NewString())
	if err != nil {
		return "", 0, fmt.Errorf("objectstore: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", 0, fmt.Errorf("objectstore: write blob: %w", err)
	}

	key := hex.EncodeToString(hasher.Sum(nil))
	dest, err := s.pathFor(key)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", 0, fmt.Errorf("objectstore: create shard: %w", err)
	}
	if _, statErr := os.Stat(dest); statErr == nil {
		// Identical content already stored.
		return key, size, nil
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return "", 0, fmt.Errorf("objectstore: finalize blob: %w", err)
	}
	return key, size, nil
}

// Get opens the blob for reading.
func (s *Filesystem) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("objectstore: open blob: %w", err)
	}
	return f, nil
}

// Stat returns the blob size.
func (s *Filesystem) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return 0, fmt.Errorf("objectstore: stat blob: %w", err)
	}
	return info.Size(), nil
}

// Delete removes the blob if present.
func (s *Filesystem) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.pathFor(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("objectstore: delete blob: %w", err)
	}
	return nil
}
