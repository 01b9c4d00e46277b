package http

import (
	"context"
	"mime/multipart"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/entities"
)

// This file consolidates the interfaces HTTP controllers depend on. Each
// is satisfied by a concrete type wired in the entrypoint.

// ImportRunStore persists import runs (database/imports.Repository).
type ImportRunStore interface {
	Start(run *entities.ImportRun) error
	MarkRunning(id uint) error
	Complete(id uint, result *bulkloader.Result) error
	Fail(id uint, err error) error
	SetTaskID(id uint, taskID string) error
	GetByID(id uint) (*entities.ImportRun, error)
	GetByTaskID(taskID string) (*entities.ImportRun, error)
	Recent(class string, limit, offset int) ([]entities.ImportRun, int64, error)
}

// Auditor records imports, exports and sample downloads (audit.Service).
type Auditor interface {
	LogImport(origin entities.ImportOrigin, class string, runID *uint, result *bulkloader.Result, err error)
	LogExport(origin entities.ImportOrigin, class, fileName string, rows int, err error)
	LogSample(origin entities.ImportOrigin, class, format string)
}

// AuditReader lists audit events (audit.Service).
type AuditReader interface {
	Events(filter entities.AuditFilter, limit, offset int) ([]entities.AuditEvent, int64, error)
}

// UploadStore keeps uploaded files for queued imports (uploads.Storage).
type UploadStore interface {
	SaveMultipart(fh *multipart.FileHeader) (string, error)
	Remove(path string) error
}

// TaskQueue enqueues background tasks (tasks.Client).
type TaskQueue interface {
	Enqueue(task backlite.Task) (string, error)
	Status(ctx context.Context, taskID string) (backlite.TaskStatus, error)
}
