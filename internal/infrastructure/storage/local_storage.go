package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/janhq/photo-bot/internal/config"
	"github.com/janhq/photo-bot/internal/domain/upload"
	"github.com/janhq/photo-bot/internal/infrastructure/metrics"
)

// UploadsRoute is the HTTP prefix local files are served under.
const UploadsRoute = "/uploads"

var (
	// ErrInvalidName is returned for file names that could escape the storage directory.
	ErrInvalidName = errors.New("invalid file name")
	// ErrFileNotFound is returned when a served file does not exist.
	ErrFileNotFound = errors.New("file not found")
)

// LocalStorage keeps uploads as flat files in a directory.
type LocalStorage struct {
	basePath string
	baseURL  string
	log      zerolog.Logger
}

// NewLocalStorage creates a new local filesystem storage backend.
func NewLocalStorage(cfg *config.Config, log zerolog.Logger) (*LocalStorage, error) {
	logger := log.With().Str("component", "local-storage").Logger()

	basePath, err := filepath.Abs(cfg.LocalStoragePath)
	if err != nil {
		return nil, fmt.Errorf("resolve local storage path: %w", err)
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory: %w", err)
	}

	storage := &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(cfg.LocalStorageBaseURL, "/"),
		log:      logger,
	}

	logger.Info().
		Str("path", basePath).
		Str("base_url", storage.baseURL).
		Msg("local storage initialized")
	return storage, nil
}

func (l *LocalStorage) Name() string { return config.StorageLocal }

func (l *LocalStorage) ManagesBytes() bool { return true }

// Upload writes data to <basePath>/<key>. The file appears atomically.
func (l *LocalStorage) Upload(ctx context.Context, key string, data []byte, contentType string) (upload.Stored, error) {
	if err := ValidateName(key); err != nil {
		return upload.Stored{}, err
	}
	if err := ctx.Err(); err != nil {
		return upload.Stored{}, err
	}

	start := time.Now()
	err := l.write(key, data)
	metrics.RecordStorageOperation(l.Name(), "put", err, time.Since(start).Seconds())
	if err != nil {
		return upload.Stored{}, err
	}

	l.log.Debug().Str("key", key).Int("bytes", len(data)).Msg("file written to local storage")
	return upload.Stored{Location: l.location(key), Key: key}, nil
}

func (l *LocalStorage) write(key string, data []byte) error {
	tmp, err := os.CreateTemp(l.basePath, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to chmod file: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(l.basePath, key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move file into place: %w", err)
	}
	return nil
}

// Delete removes the stored file. A missing file counts as removed.
func (l *LocalStorage) Delete(ctx context.Context, stored upload.Stored) error {
	if err := ValidateName(stored.Key); err != nil {
		return err
	}
	start := time.Now()
	err := os.Remove(filepath.Join(l.basePath, stored.Key))
	if errors.Is(err, os.ErrNotExist) {
		err = nil
	}
	metrics.RecordStorageOperation(l.Name(), "delete", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Open returns the file stored under name for serving.
func (l *LocalStorage) Open(name string) (*os.File, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	file, err := os.Open(filepath.Join(l.basePath, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	info, err := file.Stat()
	if err != nil || info.IsDir() {
		file.Close()
		return nil, ErrFileNotFound
	}
	return file, nil
}

// Health checks if the storage directory is writable.
func (l *LocalStorage) Health(ctx context.Context) error {
	testFile := filepath.Join(l.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	_ = os.Remove(testFile)
	return nil
}

func (l *LocalStorage) location(key string) string {
	if l.baseURL != "" {
		return l.baseURL + UploadsRoute + "/" + key
	}
	return "file://" + filepath.ToSlash(filepath.Join(l.basePath, key))
}

// ValidateName accepts only a single plain path element.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return ErrInvalidName
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."), strings.ContainsRune(name, 0):
		return ErrInvalidName
	case strings.HasPrefix(name, "."):
		return ErrInvalidName
	}
	return nil
}
