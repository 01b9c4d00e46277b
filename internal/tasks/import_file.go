package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/mikestefanello/backlite"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/loaders"
)

// ImportRunTracker records the progress of an import run.
type ImportRunTracker interface {
	MarkRunning(id uint) error
	Complete(id uint, result *bulkloader.Result) error
	Fail(id uint, err error) error
}

// ImportAuditor records finished imports.
type ImportAuditor interface {
	LogImport(origin entities.ImportOrigin, class string, runID *uint, result *bulkloader.Result, err error)
}

// UploadRemover deletes a stored upload once it is no longer needed.
type UploadRemover interface {
	Remove(path string) error
}

// ImportFileTask loads an uploaded spreadsheet in the background.
type ImportFileTask struct {
	RunID            uint   `json:"run_id"`
	Class            string `json:"class"`
	Path             string `json:"path"`
	FileName         string `json:"file_name"`
	Preview          bool   `json:"preview"`
	DeleteExisting   bool   `json:"delete_existing"`
	UseTransaction   bool   `json:"use_transaction"`
	CheckPermissions bool   `json:"check_permissions"`
	MakeRelations    bool   `json:"make_relations"`
	HasHeaderRow     bool   `json:"has_header_row"`
	Delimiter        string `json:"delimiter"`
	Enclosure        string `json:"enclosure"`
	FileType         string `json:"file_type,omitempty"`
}

// Config returns the queue configuration for import tasks.
func (t ImportFileTask) Config() backlite.QueueConfig {
	return backlite.QueueConfig{
		Name:        "import_file",
		MaxAttempts: 3,
		Backoff:     time.Minute,
		Timeout:     30 * time.Minute,
		Retention: &backlite.Retention{
			Duration:   24 * time.Hour,
			OnlyFailed: false,
			Data:       &backlite.RetainData{OnlyFailed: true},
		},
	}
}

// Options returns the loader options the task was queued with.
func (t ImportFileTask) Options() bulkloader.Options {
	opts := bulkloader.DefaultOptions(t.Class)
	opts.DeleteExistingRecords = t.DeleteExisting
	opts.UseTransaction = t.UseTransaction
	opts.CheckPermissions = t.CheckPermissions
	opts.MakeRelations = t.MakeRelations
	opts.HasHeaderRow = t.HasHeaderRow
	if t.Delimiter != "" {
		opts.Delimiter = t.Delimiter
	}
	if t.Enclosure != "" {
		opts.Enclosure = t.Enclosure
	}
	if t.FileType != "" {
		opts.FileType = t.FileType
	}
	return opts
}

// rollsBack reports whether a failed run leaves the database untouched.
func (t ImportFileTask) rollsBack() bool {
	return t.Preview || t.UseTransaction
}

// ImportFileDeps are the collaborators of the import processor.
type ImportFileDeps struct {
	Store   bulkloader.Store
	Runs    ImportRunTracker
	Audit   ImportAuditor
	Uploads UploadRemover
}

// ImportFileProcessor creates a processor function for ImportFileTask.
// Failures caused by the file or the options are recorded on the run and
// not retried. Internal errors go back to the queue only when nothing was
// committed, that is for previews and transactional loads.
func ImportFileProcessor(deps ImportFileDeps) backlite.QueueProcessor[ImportFileTask] {
	return func(ctx context.Context, task ImportFileTask) error {
		if deps.Store == nil || deps.Runs == nil {
			return fmt.Errorf("import processor not configured")
		}

		if err := deps.Runs.MarkRunning(task.RunID); err != nil {
			return fmt.Errorf("mark import run %d running: %w", task.RunID, err)
		}

		l := loaders.For(deps.Store, task.Options())
		src := bulkloader.UploadSource(task.Path, task.FileName)

		var (
			result *bulkloader.Result
			err    error
		)
		if task.Preview {
			result, err = l.Preview(ctx, src)
		} else {
			result, err = l.Load(ctx, src)
		}

		runID := task.RunID
		if err != nil {
			retry := bulkloader.KindOf(err) == bulkloader.KindInternal && task.rollsBack()
			if !retry {
				if ferr := deps.Runs.Fail(task.RunID, err); ferr != nil {
					log.Printf("[TASK ERROR] Failed to record import run %d: %v", task.RunID, ferr)
				}
				removeUpload(deps.Uploads, task.Path)
			}
			if deps.Audit != nil {
				deps.Audit.LogImport(entities.ImportOriginTask, task.Class, &runID, nil, err)
			}
			log.Printf("[TASK ERROR] Import run %d of %s failed: %v", task.RunID, task.Class, err)
			if retry {
				return fmt.Errorf("import run %d: %w", task.RunID, err)
			}
			return nil
		}

		if err := deps.Runs.Complete(task.RunID, result); err != nil {
			return fmt.Errorf("complete import run %d: %w", task.RunID, err)
		}
		removeUpload(deps.Uploads, task.Path)
		if deps.Audit != nil {
			deps.Audit.LogImport(entities.ImportOriginTask, task.Class, &runID, result, nil)
		}

		log.Printf("[TASK] Import run %d of %s: %s", task.RunID, task.Class, result.Message())
		return nil
	}
}

func removeUpload(uploads UploadRemover, path string) {
	if uploads == nil || path == "" {
		return
	}
	if err := uploads.Remove(path); err != nil {
		log.Printf("[TASK ERROR] Failed to remove upload %s: %v", path, err)
	}
}

// NewImportFileQueue creates a backlite queue for import tasks.
func NewImportFileQueue(deps ImportFileDeps) backlite.Queue {
	return backlite.NewQueue(ImportFileProcessor(deps))
}
