package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// LocalReader serves artefacts from a directory on the local filesystem. Keys
// are slash-separated paths relative to the base directory.
type LocalReader struct {
	baseDir string
}

// NewLocalReader creates a LocalReader rooted at baseDir. The directory must
// already exist.
func NewLocalReader(baseDir string) (*LocalReader, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, &InitError{Backend: "local", Bucket: baseDir, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, &InitError{Backend: "local", Bucket: baseDir, Err: err}
	}
	if !info.IsDir() {
		return nil, &InitError{Backend: "local", Bucket: baseDir, Err: fmt.Errorf("%q is not a directory", abs)}
	}
	return &LocalReader{baseDir: abs}, nil
}

// Exists stats the file behind key.
func (r *LocalReader) Exists(_ context.Context, key string) (bool, error) {
	path, err := r.resolve(key)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: failed to stat %q: %w", path, err)
	}
	return !info.IsDir(), nil
}

// Open opens the file behind key for reading.
func (r *LocalReader) Open(_ context.Context, key string) (*Object, error) {
	path, err := r.resolve(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("storage: failed to stat %q: %w", path, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}
	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
	}, nil
}

// resolve maps key onto the filesystem and refuses anything that escapes the
// base directory.
func (r *LocalReader) resolve(key string) (string, error) {
	dest := filepath.Join(r.baseDir, filepath.FromSlash(key))
	rel, err := filepath.Rel(r.baseDir, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("storage: key %q escapes base directory", key)
	}
	return dest, nil
}
