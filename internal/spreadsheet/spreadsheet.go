// Package spreadsheet reads and writes tabular files (CSV and XLSX) as
// plain rows of cell values. It knows nothing about records or entities;
// header handling and field mapping live in the bulkloader package.
package spreadsheet

import (
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ReadOptions controls how rows are read from a file.
type ReadOptions struct {
	// Delimiter is a single character or AutoDelimiter (CSV only).
	Delimiter string
	// Enclosure is the quote character; only `"` or "" are supported (CSV only).
	Enclosure string
	// Sheet selects a worksheet by name (XLSX only). Defaults to the active sheet.
	Sheet string
}

// DefaultReadOptions mirrors the loader defaults.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{Delimiter: AutoDelimiter, Enclosure: `"`}
}

// WriteOptions controls export output.
type WriteOptions struct {
	Delimiter  string // CSV only, defaults to a comma
	Sheet      string // XLSX only
	Creator    string // XLSX document properties
	Title      string
	AutoFilter bool // XLSX only: filter on the header row
}

// RowWriter receives rows one at a time. Close must be called to flush;
// Abort releases the writer instead, leaving unflushed output unwritten.
type RowWriter interface {
	WriteRow(row []any) error
	Close() error
	Abort()
}

// Rows streams the non-blank rows of a file. Read errors are yielded once
// and end the sequence.
func Rows(path string, format Format, opts ReadOptions) iter.Seq2[[]any, error] {
	if _, err := os.Stat(path); err != nil {
		return failed(fmt.Errorf("%w %s: %v", ErrUnreadable, path, err))
	}
	switch format {
	case FormatCSV:
		return readCSVFile(path, opts)
	case FormatXLSX:
		return readXLSXFile(path, opts)
	default:
		return failed(fmt.Errorf("%w: no reader available for %s files", ErrUnsupportedFormat, format))
	}
}

// ReadFrom streams rows from an in-memory source, e.g. an upload body.
func ReadFrom(r io.Reader, format Format, opts ReadOptions) iter.Seq2[[]any, error] {
	switch format {
	case FormatCSV:
		return readCSV(r, opts)
	case FormatXLSX:
		return readXLSX(r, opts)
	default:
		return failed(fmt.Errorf("%w: no reader available for %s files", ErrUnsupportedFormat, format))
	}
}

// NewWriter returns a RowWriter producing the given format on w.
func NewWriter(w io.Writer, format Format, opts WriteOptions) (RowWriter, error) {
	switch format {
	case FormatCSV:
		return newCSVWriter(w, opts)
	case FormatXLSX, FormatXLS:
		return newXLSXWriter(w, opts)
	default:
		return nil, fmt.Errorf("%w: no writer available for %s files", ErrUnsupportedFormat, format)
	}
}

// ConvertExcelDate converts a spreadsheet serial date to YYYY-MM-DD.
// Non-numeric input yields an empty string.
func ConvertExcelDate(v any) string {
	var serial float64
	switch val := v.(type) {
	case float64:
		serial = val
	case int:
		serial = float64(val)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return ""
		}
		serial = f
	default:
		return ""
	}
	t, err := excelize.ExcelDateToTime(serial, false)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// SheetFile names the worksheet a workbook file is copied into. An empty
// Sheet falls back to the file's base name.
type SheetFile struct {
	Sheet string
	Path  string
}

// MergeFiles copies the active sheet of each XLSX file into its own sheet
// of a new workbook written to w. Rows are streamed sheet by sheet.
func MergeFiles(w io.Writer, files ...SheetFile) error {
	merged := excelize.NewFile()
	defer func() {
		_ = merged.Close()
	}()

	for i, src := range files {
		name := sheetName(src, i)
		if i == 0 {
			if err := merged.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("failed to name sheet: %w", err)
			}
		} else if _, err := merged.NewSheet(name); err != nil {
			return fmt.Errorf("failed to add sheet %q: %w", name, err)
		}

		sw, err := merged.NewStreamWriter(name)
		if err != nil {
			return fmt.Errorf("failed to open sheet %q: %w", name, err)
		}
		r := 0
		for row, err := range readXLSXFile(src.Path, ReadOptions{}) {
			if err != nil {
				return err
			}
			r++
			cell, err := excelize.CoordinatesToCellName(1, r)
			if err != nil {
				return err
			}
			if err := sw.SetRow(cell, row); err != nil {
				return fmt.Errorf("failed to copy row %d of %s: %w", r, src.Path, err)
			}
		}
		if err := sw.Flush(); err != nil {
			return fmt.Errorf("failed to flush sheet %q: %w", name, err)
		}
	}
	return merged.Write(w)
}

// sheetName applies the 31 character worksheet name limit.
func sheetName(src SheetFile, i int) string {
	name := src.Sheet
	if name == "" {
		name = strings.TrimSuffix(baseName(src.Path), "."+Extension(src.Path))
	}
	if len(name) > 31 {
		name = name[:31]
	}
	if name == "" {
		name = fmt.Sprintf("Sheet%d", i+1)
	}
	return name
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

func failed(err error) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		yield(nil, err)
	}
}
