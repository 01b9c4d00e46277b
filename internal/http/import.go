package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/loaders"
	"github.com/mrlokans/sheetloader/internal/tasks"
)

// ImportResponse is returned by synchronous imports and previews.
type ImportResponse struct {
	RunID   uint                    `json:"run_id,omitempty"`
	Class   string                  `json:"class"`
	Preview bool                    `json:"preview"`
	Message string                  `json:"message"`
	Created int                     `json:"created"`
	Updated int                     `json:"updated"`
	Deleted int                     `json:"deleted"`
	Entries []bulkloader.ResultEntry `json:"entries"`
}

func newImportResponse(runID uint, class string, result *bulkloader.Result) ImportResponse {
	return ImportResponse{
		RunID:   runID,
		Class:   class,
		Preview: result.Preview(),
		Message: result.Message(),
		Created: result.CreatedCount(),
		Updated: result.UpdatedCount(),
		Deleted: result.DeletedCount(),
		Entries: result.Entries(),
	}
}

// ImportController handles spreadsheet uploads.
type ImportController struct {
	store    bulkloader.Store
	runs     ImportRunStore
	auditor  Auditor
	uploads  UploadStore
	queue    TaskQueue
	defaults config.Import
}

func NewImportController(store bulkloader.Store, runs ImportRunStore, auditor Auditor, uploads UploadStore, queue TaskQueue, defaults config.Import) *ImportController {
	return &ImportController{
		store:    store,
		runs:     runs,
		auditor:  auditor,
		uploads:  uploads,
		queue:    queue,
		defaults: defaults,
	}
}

// Import handles POST /api/import/:class
func (ic *ImportController) Import(c *gin.Context) {
	ic.handle(c, false)
}

// Preview handles POST /api/import/:class/preview
func (ic *ImportController) Preview(c *gin.Context) {
	ic.handle(c, true)
}

func (ic *ImportController) handle(c *gin.Context, preview bool) {
	class := c.Param("class")
	if _, err := ic.store.Schema(class); err != nil {
		respondNotFound(c, "class "+class)
		return
	}

	if maxMB := ic.defaults.MaxUploadMB; maxMB > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxMB<<20)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(c, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		respondBadRequest(c, "file is required")
		return
	}

	opts := ic.options(c, class)
	run := &entities.ImportRun{
		Class:    class,
		FileName: filepath.Base(fh.Filename),
		Origin:   entities.ImportOriginHTTP,
		Preview:  preview,
	}

	if formBool(c, "async", false) {
		ic.enqueue(c, run, fh.Filename, opts)
		return
	}

	body, err := fh.Open()
	if err != nil {
		respondInternalError(c, err, "open upload")
		return
	}
	defer body.Close()

	if err := ic.runs.Start(run); err != nil {
		respondInternalError(c, err, "start import run")
		return
	}
	_ = ic.runs.MarkRunning(run.ID)

	l := loaders.For(ic.store, opts)
	l.SetLogger(slog.Default())
	src := bulkloader.ReaderSource(body, fh.Filename)

	var result *bulkloader.Result
	if preview {
		result, err = l.Preview(c.Request.Context(), src)
	} else {
		result, err = l.Load(c.Request.Context(), src)
	}

	runID := run.ID
	if ic.auditor != nil {
		ic.auditor.LogImport(entities.ImportOriginHTTP, class, &runID, result, err)
	}
	if err != nil {
		if ferr := ic.runs.Fail(run.ID, err); ferr != nil {
			slog.Error("failed to record import run", "run_id", run.ID, "error", ferr)
		}
		respondLoaderError(c, err)
		return
	}
	if err := ic.runs.Complete(run.ID, result); err != nil {
		slog.Error("failed to record import run", "run_id", run.ID, "error", err)
	}

	c.JSON(http.StatusOK, newImportResponse(run.ID, class, result))
}

// enqueue stores the upload and queues an ImportFileTask for it.
func (ic *ImportController) enqueue(c *gin.Context, run *entities.ImportRun, name string, opts bulkloader.Options) {
	if ic.queue == nil || ic.uploads == nil {
		respondError(c, http.StatusServiceUnavailable, "background imports are not enabled")
		return
	}

	fh, _ := c.FormFile("file")
	path, err := ic.uploads.SaveMultipart(fh)
	if err != nil {
		respondInternalError(c, err, "store upload")
		return
	}
	run.StoredPath = path
	run.Origin = entities.ImportOriginTask

	if err := ic.runs.Start(run); err != nil {
		_ = ic.uploads.Remove(path)
		respondInternalError(c, err, "start import run")
		return
	}

	taskID, err := ic.queue.Enqueue(tasks.ImportFileTask{
		RunID:            run.ID,
		Class:            opts.Class,
		Path:             path,
		FileName:         name,
		Preview:          run.Preview,
		DeleteExisting:   opts.DeleteExistingRecords,
		UseTransaction:   opts.UseTransaction,
		CheckPermissions: opts.CheckPermissions,
		MakeRelations:    opts.MakeRelations,
		HasHeaderRow:     opts.HasHeaderRow,
		Delimiter:        opts.Delimiter,
		Enclosure:        opts.Enclosure,
		FileType:         opts.FileType,
	})
	if err != nil {
		_ = ic.runs.Fail(run.ID, err)
		_ = ic.uploads.Remove(path)
		respondInternalError(c, err, "enqueue import")
		return
	}
	if err := ic.runs.SetTaskID(run.ID, taskID); err != nil {
		slog.Error("failed to link import run to task", "run_id", run.ID, "task_id", taskID, "error", err)
	}

	respondAccepted(c, "import queued", gin.H{
		"run_id":  run.ID,
		"task_id": taskID,
	})
}

// options builds loader options from the configured defaults and the
// request's form flags.
func (ic *ImportController) options(c *gin.Context, class string) bulkloader.Options {
	d := ic.defaults
	opts := bulkloader.DefaultOptions(class)
	if d.Delimiter != "" {
		opts.Delimiter = d.Delimiter
	}
	if d.Enclosure != "" {
		opts.Enclosure = d.Enclosure
	}
	if d.FileType != "" {
		opts.FileType = d.FileType
	}
	if v := c.PostForm("delimiter"); v != "" {
		opts.Delimiter = v
	}
	opts.HasHeaderRow = formBool(c, "has_header_row", d.HasHeaderRow)
	opts.UseTransaction = formBool(c, "use_transaction", d.UseTransaction)
	opts.CheckPermissions = formBool(c, "check_permissions", d.CheckPermissions)
	opts.MakeRelations = formBool(c, "make_relations", d.MakeRelations)
	opts.DeleteExistingRecords = formBool(c, "delete_existing", false)
	return opts
}

// ListImports handles GET /api/imports
func (ic *ImportController) ListImports(c *gin.Context) {
	limit, offset := parsePagination(c, 25, 100)
	runs, total, err := ic.runs.Recent(c.Query("class"), limit, offset)
	if err != nil {
		respondInternalError(c, err, "list imports")
		return
	}
	c.JSON(http.StatusOK, newPaginatedResponse(runs, total, limit, offset))
}

// GetImport handles GET /api/imports/:id
func (ic *ImportController) GetImport(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}
	run, err := ic.runs.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		respondNotFound(c, fmt.Sprintf("import run %d", id))
		return
	}
	if err != nil {
		respondInternalError(c, err, "get import")
		return
	}
	c.JSON(http.StatusOK, run)
}
