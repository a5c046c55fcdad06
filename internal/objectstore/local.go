package objectstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/soundvault/wavegen/internal/errors"
	"github.com/soundvault/wavegen/internal/logging"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644
)

// LocalStore writes artifacts to a directory tree on the local filesystem.
type LocalStore struct {
	basePath string
	logger   *slog.Logger
}

// NewLocalStore creates a filesystem store rooted at basePath, creating
// the root directory if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if basePath == "" {
		return nil, errors.Newf("local storage path is not configured").
			Component("objectstore").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(basePath, dirPermissions); err != nil {
		return nil, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_storage_root").
			Context("path", basePath).
			Build()
	}
	return &LocalStore{
		basePath: basePath,
		logger:   logging.ForService("objectstore"),
	}, nil
}

// Name implements Store.
func (s *LocalStore) Name() string { return "local" }

// Upload writes data to a temporary file and renames it into place, so a
// crash mid-write never exposes a truncated object.
func (s *LocalStore) Upload(ctx context.Context, key string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	targetPath, err := s.resolve(key)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), dirPermissions); err != nil {
		return "", errors.New(err).
			Component("objectstore").
			Category(errors.CategoryFileIO).
			Context("operation", "create_object_directory").
			Context("key", key).
			Build()
	}

	if err := atomicWriteFile(targetPath, data); err != nil {
		return "", errors.New(err).
			Component("objectstore").
			Category(errors.CategoryObjectStorage).
			Context("operation", "upload").
			Context("key", key).
			Build()
	}

	s.logger.Debug("object stored", "backend", "local", "key", key, "bytes", len(data))
	return "file://" + targetPath, nil
}

// Exists implements Store.
func (s *LocalStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	targetPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(targetPath)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.New(err).
			Component("objectstore").
			Category(errors.CategoryObjectStorage).
			Context("operation", "exists").
			Context("key", key).
			Build()
	}
}

// resolve maps a storage key onto the base path, rejecting keys that would
// escape it.
func (s *LocalStore) resolve(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if cleaned == "." || cleaned == ".." || filepath.IsAbs(cleaned) ||
		cleaned == ".."+string(filepath.Separator) ||
		len(cleaned) >= 3 && cleaned[:3] == ".."+string(filepath.Separator) {
		return "", errors.Newf("invalid storage key: %s", key).
			Component("objectstore").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.basePath, cleaned), nil
}

// atomicWriteFile writes data to a temporary file in the target directory
// and renames it to the target path.
func atomicWriteFile(targetPath string, data []byte) error {
	dir := filepath.Dir(targetPath)
	tempFile, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	tempPath := tempFile.Name()

	success := false
	defer func() {
		if !success {
			tempFile.Close()
			os.Remove(tempPath)
		}
	}()

	if err := tempFile.Chmod(filePermissions); err != nil {
		return err
	}
	if _, err := tempFile.Write(data); err != nil {
		return err
	}
	if err := tempFile.Sync(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}
	if err := os.Rename(tempPath, targetPath); err != nil {
		return err
	}

	success = true
	return nil
}
