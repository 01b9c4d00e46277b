package bulkloader

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHeaderNames(t *testing.T) {
	tests := []struct {
		name     string
		input    []any
		expected []string
	}{
		{
			name:     "trims cells",
			input:    []any{" Email ", "FirstName\t"},
			expected: []string{"Email", "FirstName"},
		},
		{
			name:     "drops empty cells",
			input:    []any{"Email", "", nil, "  ", "Surname"},
			expected: []string{"Email", "Surname"},
		},
		{
			name:     "drops repeated headers",
			input:    []any{"Email", "Email", "FirstName"},
			expected: []string{"Email", "FirstName"},
		},
		{
			name:     "renders numeric cells",
			input:    []any{1.0, 2.5},
			expected: []string{"1", "2.5"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var names []string
			for _, h := range ParseHeaders(tt.input) {
				names = append(names, h.Name)
			}
			assert.Equal(t, tt.expected, names)
		})
	}
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders([]any{"Email", "", "FirstName", "Email", " Surname "})
	assert.Equal(t, []Header{
		{Name: "Email", Column: 0},
		{Name: "FirstName", Column: 2},
		{Name: "Surname", Column: 4},
	}, headers)

	assert.Equal(t, []Header{{Name: "Mail", Column: 0}, {Name: "Name", Column: 1}}, PositionalHeaders([]string{"Mail", "Name"}))
}

func TestMergeRowWithHeaders(t *testing.T) {
	headers := PositionalHeaders([]string{"Email", "FirstName"})

	t.Run("Truncates long rows", func(t *testing.T) {
		rec := MergeRowWithHeaders([]any{"a@example.com", "Ann", "extra"}, headers)
		assert.Equal(t, []string{"Email", "FirstName"}, rec.Keys())
		assert.Equal(t, "Ann", rec.Value("FirstName"))
	})

	t.Run("Does not pad short rows", func(t *testing.T) {
		rec := MergeRowWithHeaders([]any{"a@example.com"}, headers)
		assert.Equal(t, 1, rec.Len())
		assert.False(t, rec.Has("FirstName"))
	})

	t.Run("Skips cells under blank and repeated headers", func(t *testing.T) {
		parsed := ParseHeaders([]any{"Email", "", "FirstName", "Email", "Surname"})
		rec := MergeRowWithHeaders([]any{"a@example.com", "junk", "Alice", "b@example.com", "Smith"}, parsed)

		assert.Equal(t, []string{"Email", "FirstName", "Surname"}, rec.Keys())
		assert.Equal(t, "a@example.com", rec.Value("Email"))
		assert.Equal(t, "Alice", rec.Value("FirstName"))
		assert.Equal(t, "Smith", rec.Value("Surname"))
	})

	t.Run("Short rows stop at the last present column", func(t *testing.T) {
		parsed := ParseHeaders([]any{"Email", "", "FirstName"})
		rec := MergeRowWithHeaders([]any{"a@example.com", "junk"}, parsed)

		assert.Equal(t, []string{"Email"}, rec.Keys())
	})
}

func TestRecord(t *testing.T) {
	rec := RecordFrom("Email", " a@example.com ", "Count", 3.0)
	rec.Set("Email", " b@example.com ")

	assert.Equal(t, []string{"Email", "Count"}, rec.Keys())
	assert.Equal(t, "b@example.com", rec.String("Email"))
	assert.Equal(t, "3", rec.String("Count"))
	assert.Equal(t, "", rec.String("Missing"))

	rec.Delete("Email")
	assert.Equal(t, []string{"Count"}, rec.Keys())
	assert.Equal(t, map[string]any{"Count": 3.0}, rec.Map())

	assert.Panics(t, func() { RecordFrom("odd") })
}

func TestColumnMap(t *testing.T) {
	m := ColumnMap{
		{Column: "Mail", Target: "Email"},
		{Column: "Name", Target: "->splitName"},
	}

	assert.Equal(t, []string{"Mail", "Name"}, m.Columns())

	mapping, ok := m.Lookup("Name")
	assert.True(t, ok)
	name, isHandler := mapping.Handler()
	assert.True(t, isHandler)
	assert.Equal(t, "splitName", name)

	mapping, _ = m.Lookup("Mail")
	_, isHandler = mapping.Handler()
	assert.False(t, isHandler)

	_, ok = m.Lookup("Other")
	assert.False(t, ok)
}

func TestIsEmpty(t *testing.T) {
	for _, v := range []any{nil, "", false, 0, 0.0, uint(0)} {
		assert.True(t, IsEmpty(v), "%#v", v)
	}
	for _, v := range []any{"0", " ", true, 1, 0.5} {
		assert.False(t, IsEmpty(v), "%#v", v)
	}
}

func TestCoerceBoolean(t *testing.T) {
	assert.Equal(t, true, CoerceBoolean("yes"))
	assert.Equal(t, false, CoerceBoolean("no"))
	assert.Equal(t, "Yes", CoerceBoolean("Yes"))
	assert.Equal(t, "NO", CoerceBoolean("NO"))
	assert.Equal(t, "1", CoerceBoolean("1"))
	assert.Equal(t, true, CoerceBoolean(true))
}

func TestErrorKinds(t *testing.T) {
	err := fmt.Errorf("row 2: %w", permissionError("delete", "Member"))

	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.NotErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, KindPermissionDenied, KindOf(err))
	assert.Equal(t, "row 2: not allowed to delete 'Member' records", err.Error())

	wrapped := newError(KindUnreadableFile, errors.New("eof"), "cannot read %s", "x.csv")
	assert.Equal(t, "cannot read x.csv: eof", wrapped.Error())
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestResultMessage(t *testing.T) {
	r := &Result{}
	assert.Equal(t, "Nothing to import", r.Message())

	r.addCreated(1, "Member", "")
	r.addUpdated(2, "Member", "")
	r.addUpdated(3, "Member", "")
	assert.Equal(t, "Imported 1 records. Updated 2 records.", r.Message())

	s := r.Summary()
	assert.Equal(t, 1, s.Created)
	assert.Equal(t, 2, s.Updated)
	assert.Len(t, s.Entries, 3)
}
