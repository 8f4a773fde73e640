package mailintake

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"go.uber.org/zap"
)

// RateLimitKey is the limiter identifier shared by every mail batch.
const RateLimitKey = "email_processing"

// DefaultKeywords are the subject fragments that mark a fiscal message.
var DefaultKeywords = []string{"danfe", "nf-e", "nfc-e", "nf", "nfe", "xml", "nota fiscal"}

// Importer is the pipeline entry point attachments are handed to.
type Importer interface {
	ImportFiles(ctx context.Context, files []entity.SourceFile, origin entity.Origin) (*entity.ImportReport, error)
}

// Config controls filtering and throttling.
type Config struct {
	Keywords     []string
	MaxXMLSize   int64
	MaxPDFSize   int64
	MaxPerWindow int
	Window       time.Duration
}

// DefaultConfig returns the production settings.
func DefaultConfig() Config {
	return Config{
		Keywords:     DefaultKeywords,
		MaxXMLSize:   10 * 1024 * 1024,
		MaxPDFSize:   50 * 1024 * 1024,
		MaxPerWindow: 10,
		Window:       60 * time.Minute,
	}
}

// RawMessage is one undelivered message, identified for the caller.
type RawMessage struct {
	ID   string
	Body io.Reader
}

// BatchResult reports one ProcessBatch call. Report is nil when nothing was
// imported.
type BatchResult struct {
	RateLimited bool
	Accepted    []string
	Ignored     []string
	Unreadable  map[string]error
	Report      *entity.ImportReport
}

// Intake turns fiscal e-mails into import requests.
type Intake struct {
	importer Importer
	limiter  port.RateLimiter
	audit    port.AuditRecorder
	cfg      Config
	logger   *zap.Logger
}

// NewIntake creates a mail intake.
func NewIntake(importer Importer, limiter port.RateLimiter, audit port.AuditRecorder, cfg Config, logger *zap.Logger) *Intake {
	keywords := make([]string, 0, len(cfg.Keywords))
	for _, k := range cfg.Keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keywords = append(keywords, k)
		}
	}
	cfg.Keywords = keywords

	return &Intake{
		importer: importer,
		limiter:  limiter,
		audit:    audit,
		cfg:      cfg,
		logger:   logger,
	}
}

// ProcessMessage imports the attachments of a single message. It returns a
// nil report when the message is not fiscal or carries no usable files.
func (in *Intake) ProcessMessage(ctx context.Context, r io.Reader) (*entity.ImportReport, error) {
	files, err := in.extract(ctx, "message", r)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, nil
	}
	return in.importer.ImportFiles(ctx, files, entity.OriginEmail)
}

// ProcessBatch imports every message of one poll as a single import batch.
// A batch denied by the rate limiter is a no-op.
func (in *Intake) ProcessBatch(ctx context.Context, messages []RawMessage) (*BatchResult, error) {
	res := &BatchResult{Unreadable: make(map[string]error)}
	if len(messages) == 0 {
		return res, nil
	}

	if !in.limiter.Allow(RateLimitKey, in.cfg.MaxPerWindow, in.cfg.Window) {
		in.logger.Warn("mail batch skipped by rate limiter",
			zap.Int("messages", len(messages)),
			zap.Int("max_per_window", in.cfg.MaxPerWindow),
			zap.Duration("window", in.cfg.Window))
		res.RateLimited = true
		return res, nil
	}

	var files []entity.SourceFile
	for _, m := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		got, err := in.extract(ctx, m.ID, m.Body)
		if err != nil {
			res.Unreadable[m.ID] = err
			continue
		}
		if len(got) == 0 {
			res.Ignored = append(res.Ignored, m.ID)
			continue
		}
		res.Accepted = append(res.Accepted, m.ID)
		files = append(files, got...)
	}

	in.logger.Info("mail batch parsed",
		zap.Int("accepted", len(res.Accepted)),
		zap.Int("ignored", len(res.Ignored)),
		zap.Int("unreadable", len(res.Unreadable)),
		zap.Int("attachments", len(files)))

	if len(files) == 0 {
		return res, nil
	}
	report, err := in.importer.ImportFiles(ctx, files, entity.OriginEmail)
	res.Report = report
	return res, err
}

// extract parses one message and returns the attachments worth importing.
func (in *Intake) extract(ctx context.Context, id string, r io.Reader) ([]entity.SourceFile, error) {
	msg, err := parseMessage(r, in.limitFor)
	if err != nil {
		in.logger.Warn("unreadable mail message", zap.String("message", id), zap.Error(err))
		return nil, err
	}

	if !in.matchesKeyword(msg.Subject) {
		in.logger.Info("mail message ignored",
			zap.String("message", id),
			zap.String("subject", msg.Subject))
		in.audit.Record(ctx, entity.EventMailMessageIgnored, map[string]any{
			"message": id,
			"subject": msg.Subject,
			"reason":  "no fiscal keyword in subject",
		}, entity.SeverityInfo)
		return nil, nil
	}

	files := make([]entity.SourceFile, 0, len(msg.Attachments))
	for _, a := range msg.Attachments {
		if a.Oversize {
			in.logger.Warn("mail attachment too large",
				zap.String("message", id),
				zap.String("file", a.FileName),
				zap.Int64("limit", in.limitFor(a.FileName)))
			in.audit.Record(ctx, entity.EventFileTooLarge, map[string]any{
				"message": id,
				"file":    a.FileName,
				"limit":   in.limitFor(a.FileName),
			}, entity.SeverityWarning)
			continue
		}
		files = append(files, entity.SourceFile{Name: a.FileName, Data: a.Data})
	}
	return files, nil
}

func (in *Intake) matchesKeyword(subject string) bool {
	lower := strings.ToLower(subject)
	for _, k := range in.cfg.Keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// limitFor returns the size limit for an attachment, 0 for types the
// pipeline does not take from mail
func (in *Intake) limitFor(fileName string) int64 {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xml":
		return in.cfg.MaxXMLSize
	case ".pdf":
		return in.cfg.MaxPDFSize
	default:
		return 0
	}
}
