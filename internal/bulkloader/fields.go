package bulkloader

import (
	"slices"
	"strings"
)

// ExportedFields overrides the default export columns of a class.
type ExportedFields interface {
	ExportedFields() []string
}

// ImportedFields overrides the default import columns of a class.
type ImportedFields interface {
	ImportedFields() []string
}

// UnexportedFields removes fields from the export columns.
type UnexportedFields interface {
	UnexportedFields() []string
}

// UnimportedFields removes fields from the import columns.
type UnimportedFields interface {
	UnimportedFields() []string
}

// ExportFields returns the columns exported for a class: the class's own
// list if it declares one, else every stored field, minus exclusions.
func ExportFields(store Store, class string) ([]string, error) {
	schema, err := store.Schema(class)
	if err != nil {
		return nil, err
	}
	singleton, err := store.New(class)
	if err != nil {
		return nil, err
	}
	defer store.Release(singleton)

	fields := schema.Fields()
	if ef, ok := singleton.(ExportedFields); ok {
		fields = ef.ExportedFields()
	}
	if uf, ok := singleton.(UnexportedFields); ok {
		fields = without(fields, uf.UnexportedFields())
	}
	return fields, nil
}

// CheckReadable rejects names an outside caller may not read on class
// through export columns, filters or sorting. Allowed are the class's
// ExportFields and its export methods, plain or called as "Method(arg)".
func CheckReadable(store Store, class string, names ...string) error {
	fields, err := ExportFields(store, class)
	if err != nil {
		return newError(KindConfiguration, err, "unknown class %s", class)
	}
	singleton, err := store.New(class)
	if err != nil {
		return newError(KindConfiguration, err, "unknown class %s", class)
	}
	defer store.Release(singleton)

	var methods map[string]ExportMethod
	if p, ok := singleton.(MethodProvider); ok {
		methods = p.ExportMethods()
	}
	for _, name := range names {
		if slices.Contains(fields, name) {
			continue
		}
		method, _, _ := strings.Cut(name, "(")
		if _, ok := methods[method]; ok {
			continue
		}
		return configError("field %s of %s is not exportable", name, class)
	}
	return nil
}

// ImportFields returns the columns accepted on import for a class. ID is
// included so existing rows can be matched.
func ImportFields(store Store, class string) ([]string, error) {
	schema, err := store.Schema(class)
	if err != nil {
		return nil, err
	}
	singleton, err := store.New(class)
	if err != nil {
		return nil, err
	}
	defer store.Release(singleton)

	fields := schema.Fields()
	if imf, ok := singleton.(ImportedFields); ok {
		fields = imf.ImportedFields()
	}
	if uf, ok := singleton.(UnimportedFields); ok {
		fields = without(fields, uf.UnimportedFields())
	}
	return fields, nil
}

func without(fields, excluded []string) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if !slices.Contains(excluded, f) {
			out = append(out, f)
		}
	}
	return out
}
