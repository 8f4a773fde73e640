package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/garyjia/nfe-ingest/internal/application/port"
	"github.com/garyjia/nfe-ingest/internal/archive"
	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/internal/invoice"
	"github.com/garyjia/nfe-ingest/internal/tabular"
)

// ImportService is the pipeline entry point used by the HTTP handler, the
// mail intake and the CLI
type ImportService interface {
	ImportFile(ctx context.Context, name string, data []byte, origin entity.Origin) (*entity.ImportReport, error)
	ImportFiles(ctx context.Context, files []entity.SourceFile, origin entity.Origin) (*entity.ImportReport, error)
}

// ImportDependencies groups everything the import service talks to.
// Originals is optional.
type ImportDependencies struct {
	XML         invoice.Extractor
	PDF         invoice.Extractor
	Tabular     *tabular.Extractor
	Walker      *archive.Walker
	Validator   *invoice.Validator
	Invoices    port.InvoiceRepository
	Items       port.ItemRepository
	Logs        port.ProcessingLogRepository
	TxManager   port.TransactionManager
	Audit       port.AuditRecorder
	Originals   port.OriginalStore
	MaxFileSize int64
}

type importServiceImpl struct {
	ImportDependencies
	logger Logger
}

// NewImportService creates a new ImportService
func NewImportService(deps ImportDependencies, logger Logger) ImportService {
	return &importServiceImpl{ImportDependencies: deps, logger: logger}
}

// batch carries the per-request state shared by every file of one import
type batch struct {
	report *entity.ImportReport
	id     string
}

// ImportFile imports a single named file
func (s *importServiceImpl) ImportFile(ctx context.Context, name string, data []byte, origin entity.Origin) (*entity.ImportReport, error) {
	return s.ImportFiles(ctx, []entity.SourceFile{{Name: name, Data: data}}, origin)
}

// ImportFiles imports files in dependency order: header sheets first, item
// sheets last. Per-file failures are reported, never returned; the error is
// only set when ctx is cancelled mid-batch.
func (s *importServiceImpl) ImportFiles(ctx context.Context, files []entity.SourceFile, origin entity.Origin) (*entity.ImportReport, error) {
	b := &batch{report: entity.NewImportReport(origin)}
	b.id = b.report.BatchID.String()

	ordered := archive.Order(files, func(f entity.SourceFile) string { return f.Name })

	s.logger.Info("Import batch started", "batch_id", b.id, "origin", string(origin), "files", len(files))

	for _, f := range ordered {
		if err := ctx.Err(); err != nil {
			return b.report, err
		}
		s.storeOriginal(ctx, b, f)
		if err := s.importTopLevel(ctx, b, f); err != nil {
			s.logger.Warn("Import batch interrupted", "batch_id", b.id, "file", f.Name, "error", err)
			return b.report, err
		}
	}

	s.logger.Info("Import batch completed",
		"batch_id", b.id,
		"processed", b.report.Processed,
		"failed", b.report.Failed,
		"duplicates", b.report.Duplicates)
	return b.report, nil
}

// importTopLevel imports one uploaded file. The returned error is only set
// when a bundle walk was cut short by ctx.
func (s *importServiceImpl) importTopLevel(ctx context.Context, b *batch, f entity.SourceFile) error {
	before := *b.report
	ext := strings.ToLower(filepath.Ext(f.Name))

	var err error
	if ext == ".zip" {
		err = s.importArchive(ctx, b, f)
	} else {
		_ = s.importDocument(ctx, b, f.Name, f.Data)
	}

	s.Audit.Record(ctx, entity.EventFileProcessed, map[string]any{
		"file":       f.Name,
		"batch_id":   b.id,
		"processed":  b.report.Processed - before.Processed,
		"failed":     b.report.Failed - before.Failed,
		"duplicates": b.report.Duplicates - before.Duplicates,
	}, entity.SeverityInfo)
	return err
}

// importDocument handles one non-archive file, at the top level or inside a
// bundle. The returned error is set when the whole file failed.
func (s *importServiceImpl) importDocument(ctx context.Context, b *batch, name string, data []byte) error {
	ext := strings.ToLower(filepath.Ext(name))

	switch ext {
	case ".xml":
		return s.importSingle(ctx, b, name, data, s.XML, entity.OperationImportXML)
	case ".pdf":
		return s.importSingle(ctx, b, name, data, s.PDF, entity.OperationImportPDF)
	case ".csv", ".xlsx":
		return s.importTabular(ctx, b, name, data, ext)
	default:
		err := fmt.Errorf("unsupported file type %q", ext)
		s.fail(ctx, b, name, entity.FileUnsupported, entity.OperationImportOther, err)
		s.Audit.Record(ctx, entity.EventInvalidFileType, map[string]any{
			"file":      name,
			"extension": ext,
		}, entity.SeverityWarning)
		return err
	}
}

func (s *importServiceImpl) importSingle(ctx context.Context, b *batch, name string, data []byte, ex invoice.Extractor, operation string) error {
	inv, err := ex.Extract(data, name)
	if err != nil {
		s.fail(ctx, b, name, entity.FileFailed, operation, err)
		s.auditExtractionFailure(ctx, name, len(data), operation, err)
		return err
	}
	return s.persist(ctx, b, name, operation, inv)
}

func (s *importServiceImpl) importTabular(ctx context.Context, b *batch, name string, data []byte, ext string) error {
	operation := entity.OperationImportCSV
	if ext == ".xlsx" {
		operation = entity.OperationImportXLSX
	}

	if s.MaxFileSize > 0 && int64(len(data)) > s.MaxFileSize {
		err := fmt.Errorf("%w: %d bytes exceeds %d", invoice.ErrTooLarge, len(data), s.MaxFileSize)
		s.fail(ctx, b, name, entity.FileRejected, operation, err)
		s.Audit.Record(ctx, entity.EventFileTooLarge, map[string]any{
			"file": name,
			"size": len(data),
		}, entity.SeverityWarning)
		return err
	}

	var (
		res *tabular.Result
		err error
	)
	if ext == ".xlsx" {
		res, err = s.Tabular.ExtractXLSX(ctx, name, data)
	} else {
		res, err = s.Tabular.ExtractCSV(ctx, name, data)
	}
	if err != nil {
		s.fail(ctx, b, name, entity.FileFailed, operation, err)
		if errors.Is(err, tabular.ErrNoPersistedInvoices) {
			s.Audit.Record(ctx, entity.EventItemsFileRejected, map[string]any{
				"file":   name,
				"reason": err.Error(),
			}, entity.SeverityWarning)
		} else {
			s.auditExtractionFailure(ctx, name, len(data), operation, err)
		}
		return err
	}

	for _, rowErr := range res.RowErrors {
		b.report.Failed++
		b.report.Add(name, entity.FileRejected, fmt.Sprintf("row %d skipped: %s", rowErr.Row, rowErr.Reason))
	}

	if res.Role == tabular.RoleItems {
		msg := fmt.Sprintf("%d items attached, %d rows skipped", res.ItemsPersisted, len(res.RowErrors))
		b.report.Processed++
		b.report.Add(name, entity.FileProcessed, msg)
		s.writeLog(ctx, b, name, operation, entity.LogStatusSuccess, msg)
		return nil
	}

	for _, inv := range res.Invoices {
		_ = s.persist(ctx, b, name, operation, inv)
	}
	return nil
}

func (s *importServiceImpl) importArchive(ctx context.Context, b *batch, f entity.SourceFile) error {
	sum, err := s.Walker.Walk(ctx, f.Data, func(ctx context.Context, entry archive.Entry) error {
		return s.importDocument(ctx, b, entry.Name, entry.Data)
	})
	if err != nil && sum == nil {
		s.fail(ctx, b, f.Name, entity.FileFailed, entity.OperationImportArchive, err)
		s.Audit.Record(ctx, entity.EventArchiveCorrupt, map[string]any{
			"file":   f.Name,
			"reason": err.Error(),
		}, entity.SeverityError)
		return nil
	}

	for _, rej := range sum.Rejected {
		status := entity.FileRejected
		event := entity.EventFileTooLarge
		if !supportedEntry(rej.Name) {
			status = entity.FileUnsupported
			event = entity.EventInvalidFileType
		}
		b.report.Failed++
		b.report.Add(rej.Name, status, rej.Reason)
		s.writeLog(ctx, b, rej.Name, entity.OperationImportArchive, entity.LogStatusError, rej.Reason)
		s.Audit.Record(ctx, event, map[string]any{
			"file":    rej.Name,
			"archive": f.Name,
			"reason":  rej.Reason,
		}, entity.SeverityWarning)
	}

	if err != nil {
		s.writeLog(ctx, b, f.Name, entity.OperationImportArchive, entity.LogStatusError,
			fmt.Sprintf("interrupted after %d entries processed, %d failed: %v", sum.Processed, sum.Failed, err))
		return err
	}

	s.writeLog(ctx, b, f.Name, entity.OperationImportArchive, entity.LogStatusSuccess,
		fmt.Sprintf("%d entries processed, %d failed", sum.Processed, sum.Failed))
	return nil
}

// persist validates an extracted invoice and stores it with its items in
// one transaction. Duplicates are skipped, not failed.
func (s *importServiceImpl) persist(ctx context.Context, b *batch, name, operation string, inv *entity.Invoice) error {
	inv.Origin = b.report.Origin

	if err := s.Validator.Validate(inv); err != nil {
		b.report.Failed++
		b.report.Add(name, entity.FileRejected, fmt.Sprintf("invoice %s rejected: %v", inv.Number, err))
		s.writeLog(ctx, b, name, operation, entity.LogStatusError, err.Error())

		details := map[string]any{
			"file":   name,
			"number": inv.Number,
			"reason": err.Error(),
		}
		var verr *invoice.ValidationError
		if errors.As(err, &verr) {
			details["rule"] = verr.Rule
			details["field"] = verr.Field
		}
		s.Audit.Record(ctx, entity.EventInvoiceRejected, details, entity.SeverityWarning)
		return err
	}

	if inv.AccessKey != "" {
		exists, err := s.Invoices.ExistsByAccessKey(ctx, inv.AccessKey)
		if err != nil {
			return s.persistenceFailed(ctx, b, name, operation, inv, err)
		}
		if exists {
			s.duplicate(ctx, b, name, operation, inv)
			return nil
		}
	}

	err := s.TxManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, err := s.Invoices.Create(txCtx, inv)
		if err != nil {
			return err
		}
		for i := range inv.Items {
			inv.Items[i].InvoiceID = id
			if err := s.Items.Create(txCtx, id, &inv.Items[i]); err != nil {
				return fmt.Errorf("create item %d: %w", i+1, err)
			}
		}
		return nil
	})
	if errors.Is(err, port.ErrDuplicateAccessKey) {
		s.duplicate(ctx, b, name, operation, inv)
		return nil
	}
	if err != nil {
		return s.persistenceFailed(ctx, b, name, operation, inv, err)
	}

	msg := fmt.Sprintf("invoice %s stored with %d items", inv.Number, len(inv.Items))
	b.report.Processed++
	b.report.Add(name, entity.FileProcessed, msg)
	s.writeLog(ctx, b, name, operation, entity.LogStatusSuccess, msg)
	s.Audit.Record(ctx, entity.EventInvoiceAccepted, map[string]any{
		"file":       name,
		"invoice_id": inv.ID,
		"number":     inv.Number,
		"access_key": inv.AccessKey,
		"total":      inv.Total.StringFixed(2),
		"origin":     string(inv.Origin),
	}, entity.SeverityInfo)
	return nil
}

func (s *importServiceImpl) duplicate(ctx context.Context, b *batch, name, operation string, inv *entity.Invoice) {
	msg := fmt.Sprintf("invoice %s already imported", inv.Number)
	b.report.Duplicates++
	b.report.Add(name, entity.FileDuplicate, msg)
	s.writeLog(ctx, b, name, operation, entity.LogStatusDuplicate, msg)
	s.logger.Warn("Duplicate invoice skipped", "file", name, "access_key", inv.AccessKey)
	s.Audit.Record(ctx, entity.EventDuplicateInvoice, map[string]any{
		"file":       name,
		"number":     inv.Number,
		"access_key": inv.AccessKey,
	}, entity.SeverityWarning)
}

func (s *importServiceImpl) persistenceFailed(ctx context.Context, b *batch, name, operation string, inv *entity.Invoice, err error) error {
	b.report.Failed++
	b.report.Add(name, entity.FileFailed, fmt.Sprintf("invoice %s not stored: %v", inv.Number, err))
	s.writeLog(ctx, b, name, operation, entity.LogStatusError, err.Error())
	s.logger.Error("Failed to persist invoice", "file", name, "number", inv.Number, "error", err)
	s.Audit.Record(ctx, entity.EventPersistenceFailed, map[string]any{
		"file":   name,
		"number": inv.Number,
		"reason": err.Error(),
	}, entity.SeverityError)
	return err
}

func (s *importServiceImpl) fail(ctx context.Context, b *batch, name string, status entity.FileStatus, operation string, err error) {
	b.report.Failed++
	b.report.Add(name, status, err.Error())
	s.writeLog(ctx, b, name, operation, entity.LogStatusError, err.Error())
	s.logger.Warn("File not imported", "file", name, "reason", err.Error())
}

func (s *importServiceImpl) auditExtractionFailure(ctx context.Context, name string, size int, operation string, err error) {
	event := entity.EventExtractionFailed
	if errors.Is(err, invoice.ErrTooLarge) {
		event = entity.EventFileTooLarge
		if operation == entity.OperationImportXML {
			event = entity.EventXMLSizeExceeded
		}
	}
	s.Audit.Record(ctx, event, map[string]any{
		"file":   name,
		"size":   size,
		"reason": err.Error(),
	}, entity.SeverityWarning)
}

// writeLog appends to the processing trail. Failures are logged only.
func (s *importServiceImpl) writeLog(ctx context.Context, b *batch, name, operation, status, message string) {
	if s.Logs == nil {
		return
	}
	entry := &entity.ProcessingLog{
		BatchID:   b.id,
		Operation: operation,
		FileName:  name,
		Status:    status,
		Message:   message,
		CreatedAt: time.Now(),
	}
	if err := s.Logs.Create(ctx, entry); err != nil {
		s.logger.Error("Failed to write processing log", "file", name, "error", err)
	}
}

func (s *importServiceImpl) storeOriginal(ctx context.Context, b *batch, f entity.SourceFile) {
	if s.Originals == nil {
		return
	}
	if _, err := s.Originals.StoreOriginal(ctx, b.id, f.Name, f.Data); err != nil {
		s.logger.Error("Failed to store original", "file", f.Name, "batch_id", b.id, "error", err)
	}
}

var entryExtensions = []string{".xml", ".pdf", ".csv", ".xlsx"}

// ArchiveEntryExtensions lists what a bundle may contain
func ArchiveEntryExtensions() []string {
	out := make([]string, len(entryExtensions))
	copy(out, entryExtensions)
	return out
}

func supportedEntry(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range entryExtensions {
		if e == ext {
			return true
		}
	}
	return false
}
