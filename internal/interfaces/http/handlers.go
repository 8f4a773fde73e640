package http

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/nfe-ingest/internal/domain/entity"
	"github.com/garyjia/nfe-ingest/pkg/utils"
)

const (
	uploadField       = "files"
	defaultEventLimit = 50
	maxEventLimit     = 500
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	config ServerConfig
	deps   Dependencies
	logger Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(config ServerConfig, deps Dependencies, logger Logger) *Handlers {
	return &Handlers{
		config: config,
		deps:   deps,
		logger: logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Version    string      `json:"version"`
	Components interface{} `json:"components,omitempty"`
}

// CountResponse carries the number of stored invoices
type CountResponse struct {
	Count int `json:"count"`
}

// ListEventsRequest represents query parameters for listing audit events
type ListEventsRequest struct {
	Limit int `form:"limit"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   "1.0.0",
	}

	if h.deps.Health != nil {
		healthy, components := h.deps.Health()
		response.Components = components
		if !healthy {
			response.Status = "degraded"
			c.JSON(http.StatusServiceUnavailable, Response{
				Success: false,
				Data:    response,
			})
			return
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    response,
	})
}

// ImportFiles handles POST /api/v1/imports
func (h *Handlers) ImportFiles(c *gin.Context) {
	key := "upload:" + c.ClientIP()
	if h.deps.Limiter != nil && !h.deps.Limiter.Allow(key, h.config.UploadsPerWindow, h.config.UploadWindow) {
		c.JSON(http.StatusTooManyRequests, Response{
			Success: false,
			Error:   "too many uploads, try again later",
		})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		h.logger.Error("Invalid multipart upload", "error", err)
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "expected a multipart form",
		})
		return
	}

	headers := form.File[uploadField]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "no files uploaded",
		})
		return
	}
	if h.config.MaxFilesPerRequest > 0 && len(headers) > h.config.MaxFilesPerRequest {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   fmt.Sprintf("at most %d files per request", h.config.MaxFilesPerRequest),
		})
		return
	}

	files := make([]entity.SourceFile, 0, len(headers))
	for _, fh := range headers {
		data, err := h.readUpload(fh)
		if err != nil {
			h.logger.Error("Failed to read upload", "file", fh.Filename, "error", err)
			c.JSON(http.StatusRequestEntityTooLarge, Response{
				Success: false,
				Error:   err.Error(),
			})
			return
		}
		files = append(files, entity.SourceFile{Name: fh.Filename, Data: data})
	}

	report, err := h.deps.Import.ImportFiles(c.Request.Context(), files, entity.OriginUpload)
	if err != nil {
		h.logger.Error("Import aborted", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Data:    report,
			Error:   "import aborted",
		})
		return
	}

	h.logger.Info("Import finished",
		"batch_id", report.BatchID.String(),
		"processed", report.Processed,
		"failed", report.Failed,
		"duplicates", report.Duplicates,
	)

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    report,
	})
}

// readUpload reads one multipart file, refusing anything over the size limit
func (h *Handlers) readUpload(fh *multipart.FileHeader) ([]byte, error) {
	limit := h.config.MaxFileSize
	if limit > 0 && fh.Size > limit {
		return nil, fmt.Errorf("%s exceeds the %d byte limit", fh.Filename, limit)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", fh.Filename, err)
	}
	defer f.Close()

	var r io.Reader = f
	if limit > 0 {
		r = io.LimitReader(f, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", fh.Filename, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, fmt.Errorf("%s exceeds the %d byte limit", fh.Filename, limit)
	}
	return data, nil
}

// CountInvoices handles GET /api/v1/invoices/count
func (h *Handlers) CountInvoices(c *gin.Context) {
	count, err := h.deps.Invoices.Count(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to count invoices", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to count invoices",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    CountResponse{Count: count},
	})
}

// GetInvoice handles GET /api/v1/invoices/:access_key
func (h *Handlers) GetInvoice(c *gin.Context) {
	key, ok := utils.SanitizeAccessKey(c.Param("access_key"))
	if !ok {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "access key must have 44 digits",
		})
		return
	}

	ctx := c.Request.Context()
	inv, err := h.deps.Invoices.GetByAccessKey(ctx, key)
	if err != nil {
		h.logger.Error("Failed to load invoice", "access_key", key, "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve invoice",
		})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "invoice not found",
		})
		return
	}

	if h.deps.Items != nil {
		items, err := h.deps.Items.GetByInvoiceID(ctx, inv.ID)
		if err != nil {
			h.logger.Error("Failed to load items", "invoice_id", inv.ID, "error", err)
			c.JSON(http.StatusInternalServerError, Response{
				Success: false,
				Error:   "failed to retrieve invoice items",
			})
			return
		}
		inv.Items = make([]entity.LineItem, 0, len(items))
		for _, item := range items {
			inv.Items = append(inv.Items, *item)
		}
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    inv,
	})
}

// ListAuditEvents handles GET /api/v1/audit/events
func (h *Handlers) ListAuditEvents(c *gin.Context) {
	var req ListEventsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = defaultEventLimit
	}
	if req.Limit > maxEventLimit {
		req.Limit = maxEventLimit
	}

	events, err := h.deps.Audit.Recent(c.Request.Context(), req.Limit)
	if err != nil {
		h.logger.Error("Failed to list audit events", "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve audit events",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    events,
	})
}

// ListBatchLogs handles GET /api/v1/imports/:batch_id/logs
func (h *Handlers) ListBatchLogs(c *gin.Context) {
	batchID, err := uuid.Parse(c.Param("batch_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, Response{
			Success: false,
			Error:   "batch id must be a UUID",
		})
		return
	}

	logs, err := h.deps.Logs.ListByBatch(c.Request.Context(), batchID.String())
	if err != nil {
		h.logger.Error("Failed to list processing logs", "batch_id", batchID.String(), "error", err)
		c.JSON(http.StatusInternalServerError, Response{
			Success: false,
			Error:   "failed to retrieve processing logs",
		})
		return
	}
	if len(logs) == 0 {
		c.JSON(http.StatusNotFound, Response{
			Success: false,
			Error:   "batch not found",
		})
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    logs,
	})
}
