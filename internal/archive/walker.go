package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/garyjia/nfe-ingest/internal/tabular"
	"go.uber.org/zap"
)

var ErrCorruptArchive = errors.New("corrupt archive")

// Entry is one file taken out of a bundle.
type Entry struct {
	Name string
	Data []byte
}

// Rejection is an entry that never reached the handler.
type Rejection struct {
	Name   string
	Reason string
}

// Summary aggregates the outcome of one bundle. Rejected entries count as
// failures.
type Summary struct {
	Processed int
	Failed    int
	Rejected  []Rejection
	Errors    map[string]error
}

// Handler processes one supported entry.
type Handler func(ctx context.Context, entry Entry) error

// Walker expands ZIP bundles and feeds their entries to a handler in
// dependency order: header sheets first, item sheets last.
type Walker struct {
	maxEntrySize int64
	supported    map[string]bool
	logger       *zap.Logger
}

// NewWalker creates a walker accepting entries with the given extensions
// (lowercase, with dot) up to maxEntrySize uncompressed bytes each.
func NewWalker(maxEntrySize int64, extensions []string, logger *zap.Logger) *Walker {
	supported := make(map[string]bool, len(extensions))
	for _, ext := range extensions {
		supported[strings.ToLower(ext)] = true
	}
	return &Walker{maxEntrySize: maxEntrySize, supported: supported, logger: logger}
}

// Walk opens data as a ZIP archive and hands each supported entry to handle.
// An unreadable archive is a single error; everything else is reported per
// entry in the Summary.
func (w *Walker) Walk(ctx context.Context, data []byte, handle Handler) (*Summary, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	files = Order(files, func(f *zip.File) string { return f.Name })

	sum := &Summary{Errors: make(map[string]error)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		name := f.Name
		ext := strings.ToLower(path.Ext(name))
		if !w.supported[ext] {
			w.reject(sum, name, fmt.Sprintf("unsupported entry type %q", ext))
			continue
		}
		if int64(f.UncompressedSize64) > w.maxEntrySize {
			w.reject(sum, name, fmt.Sprintf("entry exceeds %d bytes", w.maxEntrySize))
			continue
		}

		content, err := w.read(f)
		if err != nil {
			w.reject(sum, name, err.Error())
			continue
		}

		if err := handle(ctx, Entry{Name: name, Data: content}); err != nil {
			sum.Failed++
			sum.Errors[name] = err
			w.logger.Warn("archive entry failed", zap.String("entry", name), zap.Error(err))
			continue
		}
		sum.Processed++
	}

	w.logger.Info("archive processed",
		zap.Int("entries", len(files)),
		zap.Int("processed", sum.Processed),
		zap.Int("failed", sum.Failed))
	return sum, nil
}

// read inflates one entry, refusing to go past the size limit even when the
// declared size lies.
func (w *Walker) read(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open entry: %w", err)
	}
	defer rc.Close()

	content, err := io.ReadAll(io.LimitReader(rc, w.maxEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("read entry: %w", err)
	}
	if int64(len(content)) > w.maxEntrySize {
		return nil, fmt.Errorf("entry exceeds %d bytes", w.maxEntrySize)
	}
	return content, nil
}

func (w *Walker) reject(sum *Summary, name, reason string) {
	sum.Failed++
	sum.Rejected = append(sum.Rejected, Rejection{Name: name, Reason: reason})
	w.logger.Warn("archive entry rejected", zap.String("entry", name), zap.String("reason", reason))
}

// Order returns items sorted for processing: header sheets, then everything
// else, then item sheets. Relative order within each group is preserved.
func Order[T any](items []T, name func(T) string) []T {
	out := make([]T, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return Rank(name(out[i])) < Rank(name(out[j]))
	})
	return out
}

// Rank places a file in its processing group by the same rule the tabular
// extractor uses to pick a sheet role.
func Rank(name string) int {
	switch tabular.DetectRole(name) {
	case tabular.RoleHeader:
		return 0
	case tabular.RoleItems:
		return 2
	default:
		return 1
	}
}
