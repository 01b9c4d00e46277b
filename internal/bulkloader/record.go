package bulkloader

import (
	"iter"
	"strings"
)

// Record is one spreadsheet row keyed by column name. Column order is
// preserved because fields are assigned in the order they appear.
type Record struct {
	keys   []string
	values map[string]any
}

// NewRecord creates an empty record.
func NewRecord() *Record {
	return &Record{values: make(map[string]any)}
}

// RecordFrom builds a record from alternating column/value pairs.
// It panics on an odd number of arguments or a non-string column.
func RecordFrom(pairs ...any) *Record {
	if len(pairs)%2 != 0 {
		panic("bulkloader: RecordFrom needs column/value pairs")
	}
	r := NewRecord()
	for i := 0; i < len(pairs); i += 2 {
		r.Set(pairs[i].(string), pairs[i+1])
	}
	return r
}

// Set stores a value, appending the column if it is new.
func (r *Record) Set(column string, value any) *Record {
	if _, ok := r.values[column]; !ok {
		r.keys = append(r.keys, column)
	}
	r.values[column] = value
	return r
}

// Get returns the value for a column and whether the column is present.
func (r *Record) Get(column string) (any, bool) {
	v, ok := r.values[column]
	return v, ok
}

// Value returns the value for a column or nil.
func (r *Record) Value(column string) any {
	return r.values[column]
}

// String returns the value for a column rendered as trimmed text.
func (r *Record) String(column string) string {
	v, ok := r.values[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(toString(v))
}

// Has reports whether the column is present.
func (r *Record) Has(column string) bool {
	_, ok := r.values[column]
	return ok
}

// Delete removes a column.
func (r *Record) Delete(column string) {
	if _, ok := r.values[column]; !ok {
		return
	}
	delete(r.values, column)
	for i, k := range r.keys {
		if k == column {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
}

// Keys returns the columns in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of columns.
func (r *Record) Len() int {
	return len(r.keys)
}

// All iterates columns and values in order.
func (r *Record) All() iter.Seq2[string, any] {
	return func(yield func(string, any) bool) {
		for _, k := range r.keys {
			if !yield(k, r.values[k]) {
				return
			}
		}
	}
}

// Map returns a copy of the values, for logging and JSON output.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MethodMarker prefixes a ColumnMap target that names a registered field handler.
const MethodMarker = "->"

// ColumnMapping maps a source column to a target field or handler.
type ColumnMapping struct {
	Column string
	Target string
}

// Handler returns the handler name when the target uses MethodMarker.
func (m ColumnMapping) Handler() (string, bool) {
	if strings.HasPrefix(m.Target, MethodMarker) {
		return strings.TrimPrefix(m.Target, MethodMarker), true
	}
	return "", false
}

// ColumnMap is an ordered list of column mappings. The order doubles as
// the positional header list for files without a header row.
type ColumnMap []ColumnMapping

// Lookup returns the mapping for a column.
func (m ColumnMap) Lookup(column string) (ColumnMapping, bool) {
	for _, cm := range m {
		if cm.Column == column {
			return cm, true
		}
	}
	return ColumnMapping{}, false
}

// Columns returns the source columns in order.
func (m ColumnMap) Columns() []string {
	out := make([]string, len(m))
	for i, cm := range m {
		out[i] = cm.Column
	}
	return out
}
