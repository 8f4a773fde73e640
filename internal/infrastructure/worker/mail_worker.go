package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/garyjia/nfe-ingest/internal/mailintake"
	"go.uber.org/zap"
)

const (
	processedDir = "processed"
	failedDir    = "failed"
)

// MailWorkerConfig holds configuration for the mail inbox worker
type MailWorkerConfig struct {
	InboxDir     string
	PollInterval time.Duration
	BatchSize    int
}

// DefaultMailWorkerConfig returns default configuration
func DefaultMailWorkerConfig() MailWorkerConfig {
	return MailWorkerConfig{
		InboxDir:     "./data/inbox",
		PollInterval: time.Minute,
		BatchSize:    50,
	}
}

// BatchProcessor is the mail intake as seen by the worker
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, messages []mailintake.RawMessage) (*mailintake.BatchResult, error)
}

// MailWorker polls a drop directory for .eml files and feeds them to the
// mail intake one batch per tick. Handled files move to processed/, files
// that cannot be parsed move to failed/.
type MailWorker struct {
	config    MailWorkerConfig
	processor BatchProcessor
	logger    *zap.Logger

	// Runtime state
	mu             sync.RWMutex
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	lastPoll       time.Time
	processedCount int
	failedCount    int
	lastError      error
}

// NewMailWorker creates a new mail worker
func NewMailWorker(config MailWorkerConfig, processor BatchProcessor, logger *zap.Logger) *MailWorker {
	return &MailWorker{
		config:    config,
		processor: processor,
		logger:    logger,
	}
}

// Start begins the polling loop
func (w *MailWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("mail worker already running")
	}
	if err := w.ensureDirs(); err != nil {
		w.mu.Unlock()
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("MailWorker started",
		zap.String("inbox_dir", w.config.InboxDir),
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop(loopCtx)
	return nil
}

// Stop cancels the loop and waits for the current poll to finish
func (w *MailWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}
	w.isRunning = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	w.mu.RLock()
	defer w.mu.RUnlock()
	w.logger.Info("MailWorker stopped",
		zap.Int("processed_count", w.processedCount),
		zap.Int("failed_count", w.failedCount))
	return nil
}

// Name returns the worker name for identification
func (w *MailWorker) Name() string {
	return "MailWorker"
}

// Status reports counters for the health endpoint
func (w *MailWorker) Status() Status {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := Status{
		Name:      w.Name(),
		Running:   w.isRunning,
		Processed: w.processedCount,
		Failed:    w.failedCount,
		LastRun:   w.lastPoll,
	}
	if w.lastError != nil {
		s.LastError = w.lastError.Error()
	}
	return s
}

func (w *MailWorker) pollLoop(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Poll loop context cancelled")
			return

		case <-ticker.C:
			err := w.PollOnce(ctx)
			w.mu.Lock()
			w.lastPoll = time.Now()
			w.lastError = err
			w.mu.Unlock()
			if err != nil {
				w.logger.Error("Failed to process mail inbox", zap.Error(err))
			}
		}
	}
}

// PollOnce processes up to BatchSize messages from the inbox
func (w *MailWorker) PollOnce(ctx context.Context) error {
	if err := w.ensureDirs(); err != nil {
		return err
	}

	names, err := w.pending()
	if err != nil {
		return fmt.Errorf("list inbox: %w", err)
	}
	if len(names) == 0 {
		return nil
	}

	messages := make([]mailintake.RawMessage, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(w.config.InboxDir, name))
		if err != nil {
			w.logger.Warn("Failed to read message file", zap.String("file", name), zap.Error(err))
			w.move(name, failedDir)
			continue
		}
		messages = append(messages, mailintake.RawMessage{ID: name, Body: bytes.NewReader(data)})
	}

	res, err := w.processor.ProcessBatch(ctx, messages)
	if err != nil {
		return fmt.Errorf("process mail batch: %w", err)
	}
	if res.RateLimited {
		w.logger.Info("Mail batch deferred by rate limiter", zap.Int("messages", len(messages)))
		return nil
	}

	for _, name := range res.Accepted {
		w.move(name, processedDir)
	}
	for _, name := range res.Ignored {
		w.move(name, processedDir)
	}
	for name := range res.Unreadable {
		w.move(name, failedDir)
	}

	w.mu.Lock()
	w.processedCount += len(res.Accepted) + len(res.Ignored)
	w.failedCount += len(res.Unreadable)
	w.mu.Unlock()

	if res.Report != nil {
		w.logger.Info("Mail batch imported",
			zap.String("batch_id", res.Report.BatchID.String()),
			zap.Int("processed", res.Report.Processed),
			zap.Int("failed", res.Report.Failed),
			zap.Int("duplicates", res.Report.Duplicates))
	}
	return nil
}

// pending lists .eml files in name order, capped at BatchSize
func (w *MailWorker) pending() ([]string, error) {
	entries, err := os.ReadDir(w.config.InboxDir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".eml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	if w.config.BatchSize > 0 && len(names) > w.config.BatchSize {
		names = names[:w.config.BatchSize]
	}
	return names, nil
}

func (w *MailWorker) move(name, dir string) {
	from := filepath.Join(w.config.InboxDir, name)
	to := filepath.Join(w.config.InboxDir, dir, name)
	if err := os.Rename(from, to); err != nil {
		w.logger.Error("Failed to move message file",
			zap.String("file", name),
			zap.String("target", dir),
			zap.Error(err))
	}
}

func (w *MailWorker) ensureDirs() error {
	for _, dir := range []string{w.config.InboxDir, filepath.Join(w.config.InboxDir, processedDir), filepath.Join(w.config.InboxDir, failedDir)} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create inbox directory %s: %w", dir, err)
		}
	}
	return nil
}
