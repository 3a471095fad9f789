package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	// ErrPublishNotConfigured is returned when Upload is attempted without a
	// publish directory.
	ErrPublishNotConfigured = errors.New("publish storage is not configured")
	// ErrInvalidKey is returned for object keys that would escape the publish root.
	ErrInvalidKey = errors.New("invalid object key")
)

// LocalStorage implements the Storage interface using local disk.
// Temporary files live in tempDir; Upload copies into publishDir and
// returns a URL under baseURL.
type LocalStorage struct {
	tempDir    string
	publishDir string
	baseURL    string
}

// LocalOption configures a LocalStorage.
type LocalOption func(*LocalStorage)

// WithPublishDir enables Upload into dir. Published files are addressed as
// baseURL/key, or as file URLs when baseURL is empty.
func WithPublishDir(dir, baseURL string) LocalOption {
	return func(s *LocalStorage) {
		s.publishDir = dir
		s.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// NewLocalStorage creates a new LocalStorage instance.
// The tempDir parameter specifies where temporary files are stored.
// If tempDir is empty, os.TempDir() is used.
// Directories are created if they don't exist.
func NewLocalStorage(tempDir string, opts ...LocalOption) (*LocalStorage, error) {
	if tempDir == "" {
		tempDir = filepath.Join(os.TempDir(), "marathon-media")
	}

	if err := os.MkdirAll(tempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	s := &LocalStorage{tempDir: tempDir}
	for _, opt := range opts {
		opt(s)
	}

	if s.publishDir != "" {
		if err := os.MkdirAll(s.publishDir, 0750); err != nil {
			return nil, fmt.Errorf("create publish directory: %w", err)
		}
	}

	return s, nil
}

// TempDir returns the temporary directory path.
func (s *LocalStorage) TempDir() string {
	return s.tempDir
}

// SaveTemp saves data to a temporary file and returns the file path.
// The name is used as a base for the filename with a unique suffix.
func (s *LocalStorage) SaveTemp(ctx context.Context, name string, data io.Reader) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.CreateTemp(s.tempDir, safeName(name)+"_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	fileName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(fileName)
		return "", fmt.Errorf("write temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(fileName)
		return "", fmt.Errorf("close temp file: %w", err)
	}

	return fileName, nil
}

// ReserveTemp creates an empty temporary file ending in .ext.
func (s *LocalStorage) ReserveTemp(ctx context.Context, name, ext string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	pattern := safeName(name) + "_*"
	if ext != "" {
		pattern += "." + strings.TrimPrefix(ext, ".")
	}

	f, err := os.CreateTemp(s.tempDir, pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

// LoadTemp reads a temporary file and returns a reader.
// The caller is responsible for closing the returned ReadCloser.
func (s *LocalStorage) LoadTemp(ctx context.Context, path string) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	f, err := os.Open(path) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return nil, fmt.Errorf("open temp file: %w", err)
	}

	return f, nil
}

// CleanupTemp removes the specified temporary files.
// It continues cleanup even if some files fail to delete,
// returning the first error encountered.
func (s *LocalStorage) CleanupTemp(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove temp file %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Upload copies data into the publish directory under key.
// Returns ErrPublishNotConfigured if no publish directory was set.
func (s *LocalStorage) Upload(ctx context.Context, key, _ string, data io.Reader) (string, error) {
	if s.publishDir == "" {
		return "", ErrPublishNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}

	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}

	dst := filepath.Join(s.publishDir, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create publish directory: %w", err)
	}

	f, err := os.Create(dst) // #nosec G304 - key is cleaned and rooted at publishDir
	if err != nil {
		return "", fmt.Errorf("create published file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", fmt.Errorf("write published file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("close published file: %w", err)
	}

	if s.baseURL == "" {
		abs, err := filepath.Abs(dst)
		if err != nil {
			abs = dst
		}
		return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
	}
	return s.baseURL + "/" + clean, nil
}

// cleanKey normalizes an object key and rejects keys that leave the root.
func cleanKey(key string) (string, error) {
	key = strings.ReplaceAll(key, `\`, "/")
	for _, part := range strings.Split(key, "/") {
		if part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	clean := strings.TrimPrefix(path.Clean("/"+key), "/")
	if clean == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return clean, nil
}

// safeName strips directory parts and characters that do not belong in a
// temp file prefix.
func safeName(name string) string {
	name = filepath.Base(name)
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSuffix(name, filepath.Ext(name)))
	if name == "" || strings.Trim(name, "_") == "" {
		return "upload"
	}
	return name
}
