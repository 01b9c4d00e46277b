package bulkloader

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/mrlokans/sheetloader/internal/spreadsheet"
	"github.com/mrlokans/sheetloader/internal/utils"
)

// DefaultExportLimit caps exports unless ExportOptions.IsLimited is false.
const DefaultExportLimit = 1000

// DefaultSanitizeChars are the leading characters that get a tab prefix in
// CSV exports so spreadsheet apps do not evaluate them as formulas.
const DefaultSanitizeChars = "="

// ExportColumn describes one exported column.
//
// Source is a field name, a "Relation.Field" path or a "Method(arg)" call
// resolved through the entity's MethodProvider. When Compute is set the
// column is a callback column: Source names an export method or a has-one
// relation and Compute receives its value.
type ExportColumn struct {
	Source  string
	Title   string
	Compute func(ctx context.Context, related any) (any, error)
	// Format post-processes the raw value of a plain field.
	Format func(value any) any
}

// Header returns the title, falling back to the source.
func (c ExportColumn) Header() string {
	if c.Title != "" {
		return c.Title
	}
	return c.Source
}

// Columns builds plain field columns titled by their field names.
func Columns(fields ...string) []ExportColumn {
	out := make([]ExportColumn, len(fields))
	for i, f := range fields {
		out[i] = ExportColumn{Source: f}
	}
	return out
}

// ExportOptions configures an Exporter.
type ExportOptions struct {
	Class string
	// Columns defaults to ExportFields of the class.
	Columns      []ExportColumn
	HasHeader    bool
	CheckCanView bool
	IsLimited    bool
	Limit        int
	Filters      Filter
	Order        string
	Format       spreadsheet.Format
	// Sanitize enables the CSV formula guard using SanitizeChars.
	Sanitize      bool
	SanitizeChars string
	// Name is the base of the download file name. Defaults to export-<class>.
	Name    string
	Creator string
}

// DefaultExportOptions returns the standard export settings for a class.
func DefaultExportOptions(class string) ExportOptions {
	return ExportOptions{
		Class:         class,
		HasHeader:     true,
		CheckCanView:  true,
		IsLimited:     true,
		Limit:         DefaultExportLimit,
		Format:        spreadsheet.FormatXLSX,
		Sanitize:      true,
		SanitizeChars: DefaultSanitizeChars,
	}
}

// Exporter turns stored entities into spreadsheet rows.
type Exporter struct {
	store  Store
	opts   ExportOptions
	logger *slog.Logger
}

// NewExporter creates an exporter over store.
func NewExporter(store Store, opts ExportOptions) *Exporter {
	if opts.Format == "" {
		opts.Format = spreadsheet.FormatXLSX
	}
	if opts.Limit <= 0 {
		opts.Limit = DefaultExportLimit
	}
	return &Exporter{store: store, opts: opts, logger: slog.Default()}
}

// SetLogger replaces the default slog logger.
func (x *Exporter) SetLogger(logger *slog.Logger) {
	if logger != nil {
		x.logger = logger
	}
}

// Options returns the effective options.
func (x *Exporter) Options() ExportOptions {
	return x.opts
}

// Columns returns the configured columns or the class export fields.
func (x *Exporter) Columns() ([]ExportColumn, error) {
	if len(x.opts.Columns) > 0 {
		return x.opts.Columns, nil
	}
	fields, err := ExportFields(x.store, x.opts.Class)
	if err != nil {
		return nil, err
	}
	return Columns(fields...), nil
}

// Query is the listing used by Entities. Filters and order apply before
// the limit.
func (x *Exporter) Query() ListQuery {
	q := ListQuery{Filters: x.opts.Filters, Order: x.opts.Order}
	if x.opts.IsLimited {
		q.Limit = x.opts.Limit
	}
	return q
}

// Entities lists the class with the export query.
func (x *Exporter) Entities(ctx context.Context) iter.Seq2[Entity, error] {
	return x.store.List(ctx, x.opts.Class, x.Query())
}

// Rows yields the optional header row followed by one row per visible
// entity. Each entity is released once its row has been built.
func (x *Exporter) Rows(ctx context.Context, entities iter.Seq2[Entity, error]) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		columns, err := x.Columns()
		if err != nil {
			yield(nil, err)
			return
		}

		if x.opts.HasHeader {
			header := make([]any, len(columns))
			for i, c := range columns {
				header[i] = c.Header()
			}
			if !yield(header, nil) {
				return
			}
		}

		sanitize := x.sanitizeEnabled()
		for e, err := range entities {
			if err != nil {
				yield(nil, err)
				return
			}
			if x.opts.CheckCanView {
				if v, ok := e.(Viewable); ok && !v.CanView(ctx) {
					x.store.Release(e)
					continue
				}
			}

			row, err := x.row(ctx, e, columns, sanitize)
			x.store.Release(e)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (x *Exporter) row(ctx context.Context, e Entity, columns []ExportColumn, sanitize bool) ([]any, error) {
	schema, err := x.store.Schema(x.store.ClassOf(e))
	if err != nil {
		return nil, err
	}

	row := make([]any, len(columns))
	for i, c := range columns {
		value, err := x.value(ctx, schema, e, c)
		if err != nil {
			return nil, fmt.Errorf("export column %s of %s #%d: %w", c.Source, schema.Class(), e.EntityID(), err)
		}
		if s, ok := value.(string); ok && sanitize {
			value = SanitizeValue(s, x.opts.SanitizeChars)
		}
		row[i] = value
	}
	return row, nil
}

var methodCall = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)\((.*)\)$`)

func (x *Exporter) value(ctx context.Context, schema Schema, e Entity, c ExportColumn) (any, error) {
	if c.Compute != nil {
		related, err := x.related(ctx, e, c.Source)
		if err != nil {
			return nil, err
		}
		if re, ok := related.(Entity); ok {
			defer x.store.Release(re)
		}
		return c.Compute(ctx, related)
	}

	if m := methodCall.FindStringSubmatch(c.Source); m != nil {
		method, ok := exportMethod(e, m[1])
		if !ok {
			return nil, configError("%s has no export method %s", schema.Class(), m[1])
		}
		// Only the first argument is passed on.
		arg, _, _ := strings.Cut(m[2], ",")
		return method(ctx, strings.TrimSpace(arg))
	}

	if relation, field, ok := strings.Cut(c.Source, "."); ok {
		if _, ok := schema.Relation(relation); !ok {
			return nil, nil
		}
		related, err := x.store.Component(ctx, e, relation)
		if err != nil {
			return nil, err
		}
		defer x.store.Release(related)
		if related.EntityID() == 0 {
			return nil, nil
		}
		relSchema, err := x.store.Schema(x.store.ClassOf(related))
		if err != nil {
			return nil, err
		}
		return relSchema.Value(ctx, related, field)
	}

	value, err := schema.Value(ctx, e, c.Source)
	if err != nil {
		return nil, err
	}
	if c.Format != nil {
		value = c.Format(value)
	}
	return value, nil
}

// related resolves the input of a callback column: an export method of the
// same name, else a has-one relation.
func (x *Exporter) related(ctx context.Context, e Entity, source string) (any, error) {
	if method, ok := exportMethod(e, source); ok {
		return method(ctx, "")
	}
	related, err := x.store.Component(ctx, e, source)
	if err != nil {
		return nil, err
	}
	return related, nil
}

func exportMethod(e Entity, name string) (ExportMethod, bool) {
	p, ok := e.(MethodProvider)
	if !ok {
		return nil, false
	}
	m, ok := p.ExportMethods()[name]
	return m, ok
}

func (x *Exporter) sanitizeEnabled() bool {
	return x.opts.Sanitize && x.opts.SanitizeChars != "" && x.opts.Format == spreadsheet.FormatCSV
}

// SanitizeValue prefixes a tab when value starts with one of chars.
func SanitizeValue(value, chars string) string {
	if value == "" || chars == "" {
		return value
	}
	if strings.ContainsRune(chars, []rune(value)[0]) {
		return "\t" + value
	}
	return value
}

// Write streams the export of the class to w in the configured format and
// returns the number of entity rows written.
func (x *Exporter) Write(ctx context.Context, w io.Writer, entities iter.Seq2[Entity, error]) (int, error) {
	columns, err := x.Columns()
	if err != nil {
		return 0, err
	}
	if !x.opts.Format.Writable() {
		return 0, newError(KindUnsupportedFileType, nil, "cannot export to %s", x.opts.Format)
	}

	writer, err := spreadsheet.NewWriter(w, x.opts.Format, spreadsheet.WriteOptions{
		Creator:    x.opts.Creator,
		Title:      x.Name(),
		AutoFilter: x.opts.HasHeader && len(columns) > 0,
	})
	if err != nil {
		return 0, err
	}

	n := 0
	for row, err := range x.Rows(ctx, entities) {
		if err != nil {
			writer.Abort()
			return n, err
		}
		if err := writer.WriteRow(row); err != nil {
			writer.Abort()
			return n, fmt.Errorf("failed to write export row: %w", err)
		}
		n++
	}
	if x.opts.HasHeader && n > 0 {
		n--
	}
	if err := writer.Close(); err != nil {
		return n, fmt.Errorf("failed to finish export: %w", err)
	}

	x.logger.Info("export written", "class", x.opts.Class, "format", x.opts.Format, "rows", n)
	return n, nil
}

// Name is the sanitized base name of the export file.
func (x *Exporter) Name() string {
	name := x.opts.Name
	if name == "" {
		name = "export-" + x.opts.Class
	}
	return utils.SanitizeFilename(name)
}

// FileName returns the download name for an export produced at now.
func (x *Exporter) FileName(now time.Time) string {
	return ExportFileName(x.Name(), string(x.opts.Format), now)
}

// ExportFileName formats name-YYYYMMDD_HHMM.ext.
func ExportFileName(name, ext string, now time.Time) string {
	return fmt.Sprintf("%s-%s.%s", name, now.Format("20060102_1504"), ext)
}

// SampleFile writes an import template for class: the SampleDataProvider
// rows when the class has them, else a header row of importable fields.
func SampleFile(ctx context.Context, store Store, class string, format spreadsheet.Format, w io.Writer) error {
	if !format.Writable() {
		return newError(KindUnsupportedFileType, nil, "cannot write a sample %s file", format)
	}

	singleton, err := store.New(class)
	if err != nil {
		return newError(KindConfiguration, err, "unknown class %s", class)
	}
	defer store.Release(singleton)

	var rows [][]any
	if p, ok := singleton.(SampleDataProvider); ok {
		rows = p.SampleImportData()
	} else {
		fields, err := ImportFields(store, class)
		if err != nil {
			return err
		}
		header := make([]any, len(fields))
		for i, f := range fields {
			header[i] = f
		}
		rows = [][]any{header}
	}

	writer, err := spreadsheet.NewWriter(w, format, spreadsheet.WriteOptions{
		Title: "sample-" + class,
	})
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.WriteRow(row); err != nil {
			writer.Abort()
			return fmt.Errorf("failed to write sample row: %w", err)
		}
	}
	return writer.Close()
}
