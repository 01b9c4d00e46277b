package bulkloader

import "strings"

// Header is a usable header cell and the column it was read from.
type Header struct {
	Name   string
	Column int
}

// ParseHeaders trims header cells and drops empty and repeated ones,
// keeping each survivor's column position so later cells still line up.
func ParseHeaders(row []any) []Header {
	headers := make([]Header, 0, len(row))
	seen := make(map[string]struct{}, len(row))
	for i, cell := range row {
		h := strings.TrimSpace(toString(cell))
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		headers = append(headers, Header{Name: h, Column: i})
	}
	return headers
}

// PositionalHeaders binds names to consecutive columns, as for files
// without a header row.
func PositionalHeaders(names []string) []Header {
	headers := make([]Header, len(names))
	for i, name := range names {
		headers[i] = Header{Name: name, Column: i}
	}
	return headers
}

// MergeRowWithHeaders pairs row cells with headers by column. Cells under
// a dropped header or past the last header are ignored; short rows produce
// fewer keys and are not padded.
func MergeRowWithHeaders(row []any, headers []Header) *Record {
	rec := NewRecord()
	for _, h := range headers {
		if h.Column >= len(row) {
			continue
		}
		rec.Set(h.Name, row[h.Column])
	}
	return rec
}
