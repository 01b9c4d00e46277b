package spreadsheet

import (
	"fmt"
	"io"
	"iter"

	"github.com/xuri/excelize/v2"
)

func readXLSXFile(path string, opts ReadOptions) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		f, err := excelize.OpenFile(path)
		if err != nil {
			yield(nil, fmt.Errorf("%w %s: %v", ErrUnreadable, path, err))
			return
		}
		defer func() {
			_ = f.Close()
		}()

		for row, err := range readWorkbook(f, opts.Sheet) {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

func readXLSX(r io.Reader, opts ReadOptions) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		f, err := excelize.OpenReader(r)
		if err != nil {
			yield(nil, fmt.Errorf("%w: %v", ErrUnreadable, err))
			return
		}
		defer func() {
			_ = f.Close()
		}()

		for row, err := range readWorkbook(f, opts.Sheet) {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// readWorkbook streams the rows of the named sheet, or the active sheet
// when no name is given.
func readWorkbook(f *excelize.File, sheet string) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		if sheet == "" {
			sheet = f.GetSheetName(f.GetActiveSheetIndex())
		}
		if sheet == "" {
			sheets := f.GetSheetList()
			if len(sheets) == 0 {
				yield(nil, fmt.Errorf("%w: no sheets found in workbook", ErrUnreadable))
				return
			}
			sheet = sheets[0]
		}

		rows, err := f.Rows(sheet)
		if err != nil {
			yield(nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadable, sheet, err))
			return
		}
		defer func() {
			_ = rows.Close()
		}()

		for rows.Next() {
			cols, err := rows.Columns()
			if err != nil {
				yield(nil, fmt.Errorf("%w: %v", ErrUnreadable, err))
				return
			}
			if isBlank(cols) {
				continue
			}
			if !yield(toCells(cols), nil) {
				return
			}
		}
		if err := rows.Error(); err != nil {
			yield(nil, fmt.Errorf("%w: %v", ErrUnreadable, err))
		}
	}
}

// xlsxWriter streams rows into a single worksheet. excelize spills
// large sheets to a temp file, so the workbook is never fully held in
// memory.
type xlsxWriter struct {
	out    io.Writer
	file   *excelize.File
	stream *excelize.StreamWriter
	sheet  string
	opts   WriteOptions
	row    int
	width  int
}

func newXLSXWriter(w io.Writer, opts WriteOptions) (*xlsxWriter, error) {
	f := excelize.NewFile()
	sheet := opts.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	} else if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	if opts.Creator != "" || opts.Title != "" {
		if err := f.SetDocProps(&excelize.DocProperties{
			Creator: opts.Creator,
			Title:   opts.Title,
		}); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("failed to set document properties: %w", err)
		}
	}

	stream, err := f.NewStreamWriter(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to open sheet stream: %w", err)
	}
	return &xlsxWriter{out: w, file: f, stream: stream, sheet: sheet, opts: opts}, nil
}

func (x *xlsxWriter) WriteRow(row []any) error {
	x.row++
	cell, err := excelize.CoordinatesToCellName(1, x.row)
	if err != nil {
		return err
	}
	if x.row == 1 {
		x.width = len(row)
	}
	return x.stream.SetRow(cell, row)
}

func (x *xlsxWriter) Close() error {
	defer func() {
		_ = x.file.Close()
	}()

	// The filter lives on the worksheet the stream writes out on Flush.
	if x.opts.AutoFilter && x.width > 0 {
		last, err := ColumnLetter(x.width)
		if err != nil {
			return err
		}
		if err := x.file.AutoFilter(x.sheet, "A1:"+last+"1", nil); err != nil {
			return fmt.Errorf("failed to set autofilter: %w", err)
		}
	}
	if err := x.stream.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}

	if err := x.file.Write(x.out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// Abort discards the workbook; nothing reaches the output before Close.
func (x *xlsxWriter) Abort() {
	_ = x.file.Close()
}

// ColumnLetter converts a 1-based column index to its spreadsheet name.
func ColumnLetter(index int) (string, error) {
	return excelize.ColumnNumberToName(index)
}
