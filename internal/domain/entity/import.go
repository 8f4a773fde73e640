package entity

import "github.com/google/uuid"

// SourceFile is a named blob handed to the pipeline by a collaborator.
type SourceFile struct {
	Name string
	Data []byte
}

// FileStatus summarizes what happened to one file or archive entry.
type FileStatus string

const (
	FileProcessed   FileStatus = "processed"
	FileFailed      FileStatus = "failed"
	FileDuplicate   FileStatus = "duplicate"
	FileUnsupported FileStatus = "unsupported"
	FileRejected    FileStatus = "rejected"
)

// FileDetail is a per-file message reported back to the caller.
type FileDetail struct {
	File    string     `json:"file"`
	Status  FileStatus `json:"status"`
	Message string     `json:"message"`
}

// ImportReport aggregates the outcome of one import request.
type ImportReport struct {
	BatchID    uuid.UUID    `json:"batch_id"`
	Origin     Origin       `json:"origin"`
	Processed  int          `json:"processed"`
	Failed     int          `json:"failed"`
	Duplicates int          `json:"duplicates"`
	Details    []FileDetail `json:"details"`
}

// NewImportReport starts an empty report for a fresh batch.
func NewImportReport(origin Origin) *ImportReport {
	return &ImportReport{
		BatchID: uuid.New(),
		Origin:  origin,
		Details: make([]FileDetail, 0),
	}
}

// Add records a detail line without touching the counters.
func (r *ImportReport) Add(file string, status FileStatus, message string) {
	r.Details = append(r.Details, FileDetail{File: file, Status: status, Message: message})
}

// Merge folds counters and details of other into r.
func (r *ImportReport) Merge(other *ImportReport) {
	if other == nil {
		return
	}
	r.Processed += other.Processed
	r.Failed += other.Failed
	r.Duplicates += other.Duplicates
	r.Details = append(r.Details, other.Details...)
}

// HasFailures reports whether any file failed.
func (r *ImportReport) HasFailures() bool {
	return r.Failed > 0
}
