package spreadsheet

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"time"
	"unicode/utf8"
)

// AutoDelimiter asks the CSV reader to sniff the delimiter from the first line.
const AutoDelimiter = "auto"

var delimiterCandidates = []rune{',', ';', '\t', '|'}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DetectDelimiter counts candidate delimiters outside of quotes in the
// first line and returns the most frequent one. Ties keep candidate order
// and an empty line falls back to a comma.
func DetectDelimiter(line []byte) rune {
	counts := make(map[rune]int, len(delimiterCandidates))
	inQuotes := false
	for _, r := range string(line) {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if inQuotes {
			continue
		}
		for _, c := range delimiterCandidates {
			if r == c {
				counts[c]++
			}
		}
	}

	best := ','
	bestCount := 0
	for _, c := range delimiterCandidates {
		if counts[c] > bestCount {
			best = c
			bestCount = counts[c]
		}
	}
	return best
}

func parseDelimiter(delimiter string, firstLine []byte) (rune, error) {
	if delimiter == "" || delimiter == AutoDelimiter {
		return DetectDelimiter(firstLine), nil
	}
	if delimiter == `\t` {
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(delimiter)
	if size != len(delimiter) {
		return 0, fmt.Errorf("delimiter must be a single character, got %q", delimiter)
	}
	return r, nil
}

func readCSV(r io.Reader, opts ReadOptions) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		br := bufio.NewReader(r)

		// Peek the first line for delimiter sniffing without consuming it.
		peek, _ := br.Peek(4096)
		peek = bytes.TrimPrefix(peek, utf8BOM)
		if i := bytes.IndexAny(peek, "\r\n"); i >= 0 {
			peek = peek[:i]
		}

		comma, err := parseDelimiter(opts.Delimiter, peek)
		if err != nil {
			yield(nil, err)
			return
		}

		reader := csv.NewReader(br)
		reader.Comma = comma
		reader.FieldsPerRecord = -1 // rows may be shorter or longer than the header
		switch opts.Enclosure {
		case `"`:
		case "":
			reader.LazyQuotes = true
		default:
			yield(nil, fmt.Errorf("unsupported enclosure %q", opts.Enclosure))
			return
		}

		first := true
		for {
			record, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, fmt.Errorf("%w: %v", ErrUnreadable, err))
				return
			}
			if first {
				first = false
				if len(record) > 0 {
					record[0] = string(bytes.TrimPrefix([]byte(record[0]), utf8BOM))
				}
			}
			if isBlank(record) {
				continue
			}
			if !yield(toCells(record), nil) {
				return
			}
		}
	}
}

func readCSVFile(path string, opts ReadOptions) iter.Seq2[[]any, error] {
	return func(yield func([]any, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, fmt.Errorf("%w %s: %v", ErrUnreadable, path, err))
			return
		}
		defer f.Close()

		for row, err := range readCSV(f, opts) {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

type csvWriter struct {
	w *csv.Writer
}

func newCSVWriter(w io.Writer, opts WriteOptions) (*csvWriter, error) {
	cw := csv.NewWriter(w)
	if opts.Delimiter != "" && opts.Delimiter != AutoDelimiter {
		comma, err := parseDelimiter(opts.Delimiter, nil)
		if err != nil {
			return nil, err
		}
		cw.Comma = comma
	}
	return &csvWriter{w: cw}, nil
}

func (c *csvWriter) WriteRow(row []any) error {
	record := make([]string, len(row))
	for i, v := range row {
		record[i] = FormatCell(v)
	}
	return c.w.Write(record)
}

func (c *csvWriter) Close() error {
	c.w.Flush()
	return c.w.Error()
}

// Abort drops what is still buffered. Rows past the buffer size may
// already have reached the underlying writer.
func (c *csvWriter) Abort() {}

// FormatCell renders a cell value as text for CSV output.
func FormatCell(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		if val {
			return "1"
		}
		return "0"
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		return val.Format(time.DateTime)
	case *time.Time:
		if val == nil {
			return ""
		}
		return FormatCell(*val)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

func toCells(record []string) []any {
	cells := make([]any, len(record))
	for i, v := range record {
		cells[i] = v
	}
	return cells
}

func isBlank(record []string) bool {
	for _, v := range record {
		if v != "" {
			return false
		}
	}
	return true
}
