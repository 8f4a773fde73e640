package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"go.uber.org/zap"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

const maxNameCollisions = 1000

// LocalFileStorage keeps received documents on the local filesystem
type LocalFileStorage struct {
	baseDir string
	logger  *zap.Logger
	now     func() time.Time
}

// NewLocalFileStorage creates a new LocalFileStorage rooted at baseDir
func NewLocalFileStorage(baseDir string, logger *zap.Logger) *LocalFileStorage {
	return &LocalFileStorage{
		baseDir: baseDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Save writes content to the specified relative path
func (s *LocalFileStorage) Save(ctx context.Context, path string, content []byte) error {
	fullPath := s.resolve(path)
	if err := s.validatePath(fullPath); err != nil {
		return err
	}

	parentDir := filepath.Dir(fullPath)
	if err := os.MkdirAll(parentDir, 0755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", parentDir),
			zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write file",
			zap.String("path", fullPath),
			zap.Error(err))
		return fmt.Errorf("failed to write file: %w", err)
	}

	s.logger.Debug("File saved",
		zap.String("path", fullPath),
		zap.Int("size", len(content)))
	return nil
}

// Exists checks if a file exists at the specified relative path
func (s *LocalFileStorage) Exists(ctx context.Context, path string) bool {
	fullPath := s.resolve(path)
	if s.validatePath(fullPath) != nil {
		return false
	}
	_, err := os.Stat(fullPath)
	return err == nil
}

func (s *LocalFileStorage) resolve(relativePath string) string {
	return filepath.Join(s.baseDir, relativePath)
}

// StoreOriginal archives a received file as <yyyy>/<mm>/<dd>/<batch>/<name>.
// The name is reduced to a safe character set first. A name already taken in
// the batch gets a _2, _3, ... suffix before its extension.
func (s *LocalFileStorage) StoreOriginal(ctx context.Context, batchID, fileName string, content []byte) (string, error) {
	day := s.now()
	dir := filepath.Join(day.Format("2006"), day.Format("01"), day.Format("02"), safeName(batchID))
	name := safeName(filepath.Base(fileName))

	rel := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	for n := 2; s.Exists(ctx, rel); n++ {
		if n > maxNameCollisions {
			return "", fmt.Errorf("too many files named %q in batch %s", name, batchID)
		}
		rel = filepath.Join(dir, fmt.Sprintf("%s_%d%s", strings.TrimSuffix(name, ext), n, ext))
	}

	if err := s.Save(ctx, rel, content); err != nil {
		return "", err
	}
	return rel, nil
}

// safeName maps anything outside [A-Za-z0-9._-] to '_' and refuses the
// names "." and "..".
func safeName(name string) string {
	cleaned := strings.Trim(unsafeNameChars.ReplaceAllString(name, "_"), "_")
	if cleaned == "" || strings.Trim(cleaned, ".") == "" {
		return "unnamed"
	}
	return cleaned
}

// validatePath checks that the path is safe and within baseDir
func (s *LocalFileStorage) validatePath(fullPath string) error {
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return fmt.Errorf("failed to resolve base path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) && absPath != absBase {
		return fmt.Errorf("path escapes base directory: %s", fullPath)
	}
	return nil
}

var _ port.OriginalStore = (*LocalFileStorage)(nil)
