package bulkloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

const (
	// IDColumn is never assigned on entities that already exist.
	IDColumn = "ID"
	// ClassNameColumn selects a subclass of the loader class per row.
	ClassNameColumn = "ClassName"
)

// State is the phase of the current load, for logging and status output.
type State string

const (
	StateIdle        State = "idle"
	StateReading     State = "reading"
	StateProcessing  State = "processing"
	StateAggregating State = "aggregating"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// FieldHandler receives a column routed through a "->name" ColumnMap target.
type FieldHandler func(ctx context.Context, store Store, e Entity, value any, rec *Record) error

// BeforeRecordHook may rewrite a row before it is matched.
type BeforeRecordHook func(ctx context.Context, rec *Record) error

// AfterRecordHook runs once a row has been persisted. It is not called
// during a preview.
type AfterRecordHook func(ctx context.Context, store Store, e Entity, rec *Record) error

// RelationCallback resolves the related entity for a column during the
// relation pass. A nil or unsaved result makes the loader create a new
// entity of the relation's class.
type RelationCallback struct {
	Relation string
	Resolve  func(ctx context.Context, store Store, owner Entity, value any, rec *Record) (Entity, error)
}

// Options configures a Loader.
type Options struct {
	// Class is the registered entity class rows are loaded into.
	Class string
	// Delimiter is a single character or "auto" (CSV only).
	Delimiter string
	// Enclosure is the CSV quote character.
	Enclosure string
	// HasHeaderRow makes the first row the column names. Without it the
	// ColumnMap columns are used positionally.
	HasHeaderRow bool
	ColumnMap    ColumnMap
	// DuplicateChecks are tried in order. Nil means match on ID; an empty
	// slice disables matching.
	DuplicateChecks       []DuplicateCheck
	DeleteExistingRecords bool
	CheckPermissions      bool
	UseTransaction        bool
	// MakeRelations enables the relation pass for dot-notation columns and
	// RelationCallbacks.
	MakeRelations     bool
	RelationCallbacks map[string]RelationCallback
	// FileType is used when neither the upload name nor the path has an
	// extension.
	FileType string
	// Sheet selects an XLSX worksheet; empty means the active one.
	Sheet string
}

// DefaultOptions returns the standard settings for a class.
func DefaultOptions(class string) Options {
	return Options{
		Class:           class,
		Delimiter:       spreadsheet.AutoDelimiter,
		Enclosure:       `"`,
		HasHeaderRow:    true,
		DuplicateChecks: []DuplicateCheck{ByColumn(IDColumn)},
		FileType:        string(spreadsheet.FormatXLSX),
	}
}

// Source points at the file to load. OriginalName carries the client
// file name for uploads stored under a temporary path. When Reader is set
// rows are read from it and Path is ignored.
type Source struct {
	Path         string
	OriginalName string
	Reader       io.Reader
}

// FileSource loads a file from disk.
func FileSource(path string) Source {
	return Source{Path: path}
}

// UploadSource loads an uploaded file kept at tmpPath.
func UploadSource(tmpPath, name string) Source {
	return Source{Path: tmpPath, OriginalName: name}
}

// ReaderSource loads an upload straight from its body.
func ReaderSource(r io.Reader, name string) Source {
	return Source{Reader: r, OriginalName: name}
}

// Loader imports spreadsheet rows into a Store. A Loader runs one load at
// a time; create one per request.
type Loader struct {
	store     Store
	opts      Options
	handlers  map[string]FieldHandler
	callbacks map[string]DuplicateCallback
	before    []BeforeRecordHook
	after     []AfterRecordHook
	logger    *slog.Logger
	state     State
}

// New creates a loader over store.
func New(store Store, opts Options) *Loader {
	if opts.Delimiter == "" {
		opts.Delimiter = spreadsheet.AutoDelimiter
	}
	if opts.FileType == "" {
		opts.FileType = string(spreadsheet.FormatXLSX)
	}
	if opts.DuplicateChecks == nil {
		opts.DuplicateChecks = []DuplicateCheck{ByColumn(IDColumn)}
	}
	return &Loader{
		store:     store,
		opts:      opts,
		handlers:  make(map[string]FieldHandler),
		callbacks: make(map[string]DuplicateCallback),
		logger:    slog.Default(),
		state:     StateIdle,
	}
}

// Options returns the effective options.
func (l *Loader) Options() Options {
	return l.opts
}

// State returns the phase of the current or last load.
func (l *Loader) State() State {
	return l.state
}

// SetLogger replaces the default slog logger.
func (l *Loader) SetLogger(logger *slog.Logger) {
	if logger != nil {
		l.logger = logger
	}
}

// RegisterHandler makes a handler available to "->name" ColumnMap targets.
func (l *Loader) RegisterHandler(name string, h FieldHandler) {
	l.handlers[name] = h
}

// RegisterDuplicateCallback makes a callback available to duplicate checks.
func (l *Loader) RegisterDuplicateCallback(name string, cb DuplicateCallback) {
	l.callbacks[name] = cb
}

// OnBeforeRecord adds a hook run on every row before matching.
func (l *Loader) OnBeforeRecord(h BeforeRecordHook) {
	l.before = append(l.before, h)
}

// OnAfterRecord adds a hook run after every persisted row.
func (l *Loader) OnAfterRecord(h AfterRecordHook) {
	l.after = append(l.after, h)
}

// Load imports a file.
func (l *Loader) Load(ctx context.Context, src Source) (*Result, error) {
	return l.loadFile(ctx, src, false)
}

// Preview runs a load without persisting anything. Counts reflect what a
// real load would create and update.
func (l *Loader) Preview(ctx context.Context, src Source) (*Result, error) {
	return l.loadFile(ctx, src, true)
}

// ProcessData imports records that are already in memory.
func (l *Loader) ProcessData(ctx context.Context, records []*Record) (*Result, error) {
	if err := l.validate(false); err != nil {
		return nil, err
	}
	return l.execute(ctx, fromSlice(records), false)
}

// PreviewData is the dry-run counterpart of ProcessData.
func (l *Loader) PreviewData(ctx context.Context, records []*Record) (*Result, error) {
	if err := l.validate(false); err != nil {
		return nil, err
	}
	return l.execute(ctx, fromSlice(records), true)
}

func (l *Loader) loadFile(ctx context.Context, src Source, preview bool) (*Result, error) {
	if err := l.validate(true); err != nil {
		return nil, err
	}
	format, err := l.resolveFormat(src)
	if err != nil {
		return nil, err
	}
	if src.Reader == nil {
		if _, err := os.Stat(src.Path); err != nil {
			return nil, newError(KindUnreadableFile, err, "cannot read %s", src.Path)
		}
	}

	l.logger.Info("loading spreadsheet",
		"class", l.opts.Class,
		"path", src.Path,
		"name", src.OriginalName,
		"format", format,
		"preview", preview)

	l.state = StateReading
	ro := spreadsheet.ReadOptions{
		Delimiter: l.opts.Delimiter,
		Enclosure: l.opts.Enclosure,
		Sheet:     l.opts.Sheet,
	}
	var rows iter.Seq2[[]any, error]
	if src.Reader != nil {
		rows = spreadsheet.ReadFrom(src.Reader, format, ro)
	} else {
		rows = spreadsheet.Rows(src.Path, format, ro)
	}
	return l.execute(ctx, l.records(rows), preview)
}

// validate checks the configuration before any row is read.
func (l *Loader) validate(fromFile bool) error {
	if l.opts.Class == "" {
		return configError("loader class is not set")
	}
	if _, err := l.store.Schema(l.opts.Class); err != nil {
		return newError(KindConfiguration, err, "unknown class %s", l.opts.Class)
	}
	for _, check := range l.opts.DuplicateChecks {
		if err := check.validate(); err != nil {
			return err
		}
	}
	if l.opts.Enclosure != `"` && l.opts.Enclosure != "" {
		return configError("unsupported enclosure %q", l.opts.Enclosure)
	}
	if d := l.opts.Delimiter; d != spreadsheet.AutoDelimiter && d != `\t` && utf8.RuneCountInString(d) != 1 {
		return configError("delimiter must be a single character or %q, got %q", spreadsheet.AutoDelimiter, d)
	}
	if fromFile && !l.opts.HasHeaderRow && len(l.opts.ColumnMap) == 0 {
		return configError("a column map is required when the file has no header row")
	}
	return nil
}

func (l *Loader) resolveFormat(src Source) (spreadsheet.Format, error) {
	ext := spreadsheet.Extension(src.OriginalName)
	if ext == "" {
		ext = spreadsheet.Extension(src.Path)
	}
	if ext == "" {
		ext = l.opts.FileType
	}
	format, err := spreadsheet.FormatForExtension(ext)
	if err != nil {
		return "", newError(KindUnsupportedFileType, err, "unsupported file type %q", ext)
	}
	if !format.Readable() {
		return "", newError(KindUnsupportedFileType, nil, "no reader available for %s files", ext)
	}
	return format, nil
}

// records turns raw rows into records, consuming the header row when
// present.
func (l *Loader) records(rows iter.Seq2[[]any, error]) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		var headers []Header
		if !l.opts.HasHeaderRow {
			headers = PositionalHeaders(l.opts.ColumnMap.Columns())
		}
		for row, err := range rows {
			if err != nil {
				yield(nil, classifyReadError(err))
				return
			}
			if headers == nil {
				headers = ParseHeaders(row)
				if len(headers) == 0 {
					yield(nil, newError(KindUnreadableFile, nil, "header row is empty"))
					return
				}
				continue
			}
			if !yield(MergeRowWithHeaders(row, headers), nil) {
				return
			}
		}
	}
}

func classifyReadError(err error) error {
	switch {
	case errors.Is(err, spreadsheet.ErrUnsupportedFormat):
		return newError(KindUnsupportedFileType, err, "unsupported file")
	case errors.Is(err, spreadsheet.ErrUnreadable):
		return newError(KindUnreadableFile, err, "cannot read file")
	default:
		return newError(KindUnreadableFile, err, "failed to parse file")
	}
}

func (l *Loader) execute(ctx context.Context, records iter.Seq2[*Record, error], preview bool) (*Result, error) {
	start := time.Now()
	result := &Result{preview: preview}

	run := func(store Store) error {
		if l.opts.DeleteExistingRecords && !preview {
			if err := l.deleteExisting(ctx, store, result); err != nil {
				return err
			}
		}

		l.state = StateProcessing
		row := 0
		for rec, err := range records {
			if err != nil {
				return err
			}
			row++
			if err := l.processRecord(ctx, store, rec, result, preview); err != nil {
				return fmt.Errorf("row %d: %w", row, err)
			}
		}
		return nil
	}

	var err error
	if l.opts.UseTransaction && !preview {
		err = l.store.Transaction(ctx, run)
	} else {
		err = run(l.store)
	}
	if err != nil {
		l.state = StateFailed
		l.logger.Error("load failed",
			"class", l.opts.Class,
			"preview", preview,
			"transaction", l.opts.UseTransaction,
			"error", err)
		return nil, err
	}

	l.state = StateAggregating
	l.logger.Info("load finished",
		"class", l.opts.Class,
		"preview", preview,
		"created", result.CreatedCount(),
		"updated", result.UpdatedCount(),
		"deleted", result.DeletedCount(),
		"duration", time.Since(start).Round(time.Millisecond))
	l.state = StateDone
	return result, nil
}

// deleteExisting clears the class before import. With permission checks
// on, every entity must be deletable or nothing is removed.
func (l *Loader) deleteExisting(ctx context.Context, store Store, result *Result) error {
	if l.opts.CheckPermissions {
		for e, err := range store.List(ctx, l.opts.Class, ListQuery{}) {
			if err != nil {
				return fmt.Errorf("failed to list existing records: %w", err)
			}
			d, ok := e.(Deletable)
			allowed := !ok || d.CanDelete(ctx)
			class := store.ClassOf(e)
			store.Release(e)
			if !allowed {
				return permissionError("delete", class)
			}
		}
	}

	n, err := store.DeleteAll(ctx, l.opts.Class)
	if err != nil {
		return fmt.Errorf("failed to delete existing records: %w", err)
	}
	result.deleted = n
	l.logger.Info("deleted existing records", "class", l.opts.Class, "count", n)
	return nil
}

func (l *Loader) processRecord(ctx context.Context, store Store, rec *Record, result *Result, preview bool) error {
	for _, h := range l.before {
		if err := h(ctx, rec); err != nil {
			return err
		}
	}

	class := l.opts.Class
	if name := rec.String(ClassNameColumn); name != "" {
		if !store.IsSubclass(name, l.opts.Class) {
			return configError("class %s is not a subclass of %s", name, l.opts.Class)
		}
		class = name
	}

	existing, err := l.FindExisting(ctx, store, rec)
	if err != nil {
		return err
	}

	checkPermissions := l.opts.CheckPermissions && !preview
	if existing != nil && checkPermissions {
		if ed, ok := existing.(Editable); ok && !ed.CanEdit(ctx) {
			return permissionError("edit", store.ClassOf(existing))
		}
	}

	entity := existing
	if entity == nil {
		entity, err = store.New(class)
		if err != nil {
			return newError(KindConfiguration, err, "cannot create %s", class)
		}
		if checkPermissions {
			if cr, ok := entity.(Creatable); ok && !cr.CanCreate(ctx) {
				return permissionError("create", class)
			}
		}
	}
	defer store.Release(entity)

	if l.opts.MakeRelations {
		if err := l.applyRelations(ctx, store, entity, rec, preview); err != nil {
			return err
		}
	}

	if !preview {
		if err := l.applyFields(ctx, store, entity, rec); err != nil {
			return err
		}
		if existing != nil {
			err = store.Update(ctx, entity)
		} else {
			err = store.Create(ctx, entity)
		}
		if err != nil {
			return err
		}
		for _, h := range l.after {
			if err := h(ctx, store, entity, rec); err != nil {
				return err
			}
		}
	}

	if existing != nil {
		result.addUpdated(entity.EntityID(), store.ClassOf(entity), "")
	} else {
		result.addCreated(entity.EntityID(), store.ClassOf(entity), "")
	}
	return nil
}

// save creates or updates a related entity depending on whether it has
// been stored before.
func save(ctx context.Context, store Store, e Entity) error {
	if e.EntityID() == 0 {
		return store.Create(ctx, e)
	}
	return store.Update(ctx, e)
}

func fromSlice(records []*Record) iter.Seq2[*Record, error] {
	return func(yield func(*Record, error) bool) {
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	}
}
