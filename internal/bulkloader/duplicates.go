package bulkloader

import (
	"context"
	"fmt"
)

// DuplicateCheck is one rule for matching a row against stored entities.
// Exactly one of Column or Callback must be set.
//
// A column rule filters the class on Field (defaulting to Column) with the
// row's value for Column and is skipped when that value is empty. A
// callback rule calls the named DuplicateCallback with the row's value for
// Field.
type DuplicateCheck struct {
	Field    string
	Column   string
	Callback string
}

// ByColumn matches on a column holding the field of the same name.
func ByColumn(column string) DuplicateCheck {
	return DuplicateCheck{Field: column, Column: column}
}

// ByCallback matches through a registered callback.
func ByCallback(field, callback string) DuplicateCheck {
	return DuplicateCheck{Field: field, Callback: callback}
}

func (d DuplicateCheck) validate() error {
	switch {
	case d.Column != "" && d.Callback == "":
		return nil
	case d.Callback != "" && d.Column == "":
		return nil
	default:
		return configError("invalid duplicate check %+v: set exactly one of Column or Callback", d)
	}
}

func (d DuplicateCheck) filterField() string {
	if d.Field != "" {
		return d.Field
	}
	return d.Column
}

// DuplicateCallback resolves an existing entity for a row. Returning nil
// means no match.
type DuplicateCallback func(ctx context.Context, store Store, value any, rec *Record) (Entity, error)

// FindExisting applies the duplicate rules in order and returns the first
// match, or nil when no rule matches.
func (l *Loader) FindExisting(ctx context.Context, store Store, rec *Record) (Entity, error) {
	for _, check := range l.opts.DuplicateChecks {
		if check.Callback != "" {
			cb, err := l.duplicateCallback(store, check.Callback)
			if err != nil {
				return nil, err
			}
			existing, err := cb(ctx, store, rec.Value(check.Field), rec)
			if err != nil {
				return nil, fmt.Errorf("duplicate callback %s: %w", check.Callback, err)
			}
			if existing != nil {
				return existing, nil
			}
			continue
		}

		if check.Column == "" {
			return nil, configError("invalid duplicate check %+v", check)
		}

		value := rec.Value(check.Column)
		if IsEmpty(value) {
			continue
		}

		existing, err := store.FindOne(ctx, l.opts.Class, Filter{check.filterField(): value})
		if err != nil {
			return nil, fmt.Errorf("duplicate lookup on %s: %w", check.filterField(), err)
		}
		if existing != nil {
			return existing, nil
		}
	}
	return nil, nil
}

// duplicateCallback resolves a callback on the loader first, then on the
// class itself.
func (l *Loader) duplicateCallback(store Store, name string) (DuplicateCallback, error) {
	if cb, ok := l.callbacks[name]; ok {
		return cb, nil
	}
	singleton, err := store.New(l.opts.Class)
	if err != nil {
		return nil, err
	}
	defer store.Release(singleton)
	if p, ok := singleton.(DuplicateCallbackProvider); ok {
		if cb, ok := p.DuplicateCallbacks()[name]; ok {
			return cb, nil
		}
	}
	return nil, configError("duplicate callback %s not found on loader or class %s", name, l.opts.Class)
}
