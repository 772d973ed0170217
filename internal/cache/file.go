package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/simplixity/smiirl-feed/internal/atomicfile"
)

const fileSuffix = "-data.json"

// File is a filesystem cache: every key is stored as a JSON document in its
// own file under a single directory. The time an entry was written is the
// modification time of its file.
//
// Writes replace the file atomically, so concurrent readers see either the
// old or the new document and never a partial one. Expired files are left in
// place until they are overwritten.
type File[T any] struct {
	dir string
	now func() time.Time
}

// NewFile creates a file cache rooted at dir. The directory is created on the
// first write if it does not exist.
func NewFile[T any](dir string) (*File[T], error) {
	if dir == "" {
		return nil, errors.New("cache directory must be specified")
	}

	return &File[T]{
		dir: dir,
		now: time.Now,
	}, nil
}

// Dir returns the directory holding the cache files.
func (f *File[T]) Dir() string {
	return f.dir
}

// Get retrieves a value from the cache. Missing, expired and undecodable
// files are all reported as a miss; only read failures other than a missing
// file are returned as errors.
func (f *File[T]) Get(ctx context.Context, key string, lifetime time.Duration) (Entry[T], bool, error) {
	var zero Entry[T]

	path, err := f.path(key)
	if err != nil {
		return zero, false, err
	}

	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to stat cache file: %w", err)
	}

	entry := Entry[T]{WrittenAt: info.ModTime()}
	if !entry.Valid(f.now(), lifetime) {
		return zero, false, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		// removed between stat and read
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read cache file: %w", err)
	}

	if err := json.Unmarshal(data, &entry.Value); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cache: ignoring undecodable entry")
		return zero, false, nil
	}

	return entry, true, nil
}

// Set stores a value in the cache, creating the cache directory if necessary.
func (f *File[T]) Set(ctx context.Context, key string, value T) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}

	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}

	return nil
}

// Invalidate removes a value from the cache. Removing a missing entry is not
// an error.
func (f *File[T]) Invalidate(ctx context.Context, key string) error {
	path, err := f.path(key)
	if err != nil {
		return err
	}

	err = os.Remove(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}

	return nil
}

// Clear removes every cache file from the directory and returns the number
// of entries removed. Other files in the directory are left untouched.
func (f *File[T]) Clear() (int, error) {
	matches, err := filepath.Glob(filepath.Join(f.dir, "*"+fileSuffix))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, fmt.Errorf("failed to remove cache file: %w", err)
		}
		removed++
	}

	return removed, nil
}

// Close is a no-op for the file cache.
func (f *File[T]) Close() error {
	return nil
}

func (f *File[T]) path(key string) (string, error) {
	if key == "" || key == "." || key == ".." ||
		strings.ContainsAny(key, `/\`) || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}

	return filepath.Join(f.dir, key+fileSuffix), nil
}
