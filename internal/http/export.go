package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/config"
	"github.com/mrlokans/sheetloader/internal/entities"
	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

// filterPrefix marks export query parameters that filter on a field,
// e.g. f.Locale=en_US.
const filterPrefix = "f."

// ExportController serves spreadsheet downloads.
type ExportController struct {
	store    bulkloader.Store
	auditor  Auditor
	defaults config.Export
	now      func() time.Time
}

func NewExportController(store bulkloader.Store, auditor Auditor, defaults config.Export) *ExportController {
	return &ExportController{
		store:    store,
		auditor:  auditor,
		defaults: defaults,
		now:      time.Now,
	}
}

// Export handles GET /api/export/:class
func (ec *ExportController) Export(c *gin.Context) {
	class := c.Param("class")
	if _, err := ec.store.Schema(class); err != nil {
		respondNotFound(c, "class "+class)
		return
	}

	format, ok := ec.format(c)
	if !ok {
		return
	}

	opts, err := ec.options(c, class, format)
	if err != nil {
		respondBadRequest(c, err.Error())
		return
	}

	x := bulkloader.NewExporter(ec.store, opts)
	fileName := x.FileName(ec.now())

	out := &download{c: c, fileName: fileName, format: format}
	rows, err := x.Write(c.Request.Context(), out, x.Entities(c.Request.Context()))
	if ec.auditor != nil {
		ec.auditor.LogExport(entities.ImportOriginHTTP, class, fileName, rows, err)
	}
	if err != nil {
		out.fail(err)
		return
	}
	out.done()
}

// Sample handles GET /api/sample/:class
func (ec *ExportController) Sample(c *gin.Context) {
	class := c.Param("class")
	if _, err := ec.store.Schema(class); err != nil {
		respondNotFound(c, "class "+class)
		return
	}

	format, ok := ec.format(c)
	if !ok {
		return
	}

	out := &download{c: c, fileName: fmt.Sprintf("sample-%s.%s", class, format), format: format}
	if err := bulkloader.SampleFile(c.Request.Context(), ec.store, class, format, out); err != nil {
		out.fail(err)
		return
	}
	out.done()
	if ec.auditor != nil {
		ec.auditor.LogSample(entities.ImportOriginHTTP, class, string(format))
	}
}

func (ec *ExportController) format(c *gin.Context) (spreadsheet.Format, bool) {
	ext := c.Query("format")
	if ext == "" {
		ext = ec.defaults.DefaultExtension
	}
	if ext == "" {
		ext = string(spreadsheet.FormatXLSX)
	}
	format, err := spreadsheet.FormatForExtension(ext)
	if err != nil || !format.Writable() {
		respondError(c, http.StatusUnsupportedMediaType, fmt.Sprintf("cannot export to %q", ext))
		return "", false
	}
	return format, true
}

// options reads sort, limit, all, columns and f.<Field> filters.
func (ec *ExportController) options(c *gin.Context, class string, format spreadsheet.Format) (bulkloader.ExportOptions, error) {
	opts := bulkloader.DefaultExportOptions(class)
	opts.Format = format
	opts.Order = c.Query("sort")
	opts.Creator = ec.defaults.Creator
	if ec.defaults.Limit > 0 {
		opts.Limit = ec.defaults.Limit
	}
	if ec.defaults.SanitizeChars != "" {
		opts.SanitizeChars = ec.defaults.SanitizeChars
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return opts, fmt.Errorf("invalid limit %q", raw)
		}
		opts.Limit = limit
	}
	opts.IsLimited = !formBool(c, "all", false)

	if raw := c.Query("columns"); raw != "" {
		var fields []string
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				fields = append(fields, f)
			}
		}
		opts.Columns = bulkloader.Columns(fields...)
	}

	for key, values := range c.Request.URL.Query() {
		field, ok := strings.CutPrefix(key, filterPrefix)
		if !ok || field == "" || len(values) == 0 {
			continue
		}
		if opts.Filters == nil {
			opts.Filters = bulkloader.Filter{}
		}
		opts.Filters[field] = values[0]
	}

	// Callers only see, filter and sort on exportable fields.
	var requested []string
	for _, col := range opts.Columns {
		requested = append(requested, col.Source)
	}
	for field := range opts.Filters {
		requested = append(requested, field)
	}
	if field := sortField(opts.Order); field != "" {
		requested = append(requested, field)
	}
	if err := bulkloader.CheckReadable(ec.store, class, requested...); err != nil {
		return opts, err
	}
	return opts, nil
}

// sortField strips the direction from "-Name" or "Name desc".
func sortField(order string) string {
	order = strings.TrimPrefix(strings.TrimSpace(order), "-")
	field, _, _ := strings.Cut(order, " ")
	return field
}

// download writes an attachment straight to the response. Headers go out
// with the first byte, so an export that fails before producing output
// still answers with an error status.
type download struct {
	c        *gin.Context
	fileName string
	format   spreadsheet.Format
	started  bool
}

func (d *download) Write(p []byte) (int, error) {
	if !d.started {
		d.started = true
		d.c.Header("Content-Type", spreadsheet.ContentType(string(d.format)))
		d.c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, d.fileName))
		d.c.Header("Cache-Control", "no-store")
		d.c.Status(http.StatusOK)
	}
	return d.c.Writer.Write(p)
}

// done sends the headers of an empty file.
func (d *download) done() {
	if !d.started {
		_, _ = d.Write(nil)
	}
}

// fail reports err as JSON when nothing was sent yet, else cuts the
// response short.
func (d *download) fail(err error) {
	if !d.started {
		respondLoaderError(d.c, err)
		return
	}
	slog.ErrorContext(d.c.Request.Context(), "download aborted mid-stream",
		"file", d.fileName, "error", err)
	d.c.Abort()
}
