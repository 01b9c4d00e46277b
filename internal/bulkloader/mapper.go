package bulkloader

import (
	"context"
	"fmt"
	"strings"
)

// applyFields assigns every column of rec to entity, in column order.
//
// Resolution per column: a "->name" ColumnMap target calls the registered
// handler, then an entity ImportHook for the column, then plain assignment
// to the mapped field (or the column name). Boolean fields accept "yes"
// and "no". Columns without a matching field are skipped.
func (l *Loader) applyFields(ctx context.Context, store Store, entity Entity, rec *Record) error {
	schema, err := store.Schema(store.ClassOf(entity))
	if err != nil {
		return err
	}

	var hooks map[string]ImportHook
	if fi, ok := entity.(FieldImporter); ok {
		hooks = fi.ImportHooks()
	}

	for column, value := range rec.All() {
		// An explicit ID only applies to new entities.
		if column == IDColumn && (entity.EntityID() != 0 || IsEmpty(value)) {
			continue
		}
		if column == ClassNameColumn && IsEmpty(value) {
			continue
		}

		mapping, mapped := l.opts.ColumnMap.Lookup(column)
		if mapped {
			if name, ok := mapping.Handler(); ok {
				h, ok := l.handlers[name]
				if !ok {
					return configError("field handler %s is not registered", name)
				}
				if err := h(ctx, store, entity, value, rec); err != nil {
					return fmt.Errorf("handler %s for column %s: %w", name, column, err)
				}
				continue
			}
		}

		if hook, ok := hooks[column]; ok {
			if err := hook(ctx, value, rec); err != nil {
				return fmt.Errorf("import hook for column %s: %w", column, err)
			}
			continue
		}

		target := column
		if mapped && mapping.Target != "" {
			target = mapping.Target
		}

		if strings.Contains(target, ".") {
			if err := l.assignRelationField(ctx, store, schema, entity, target, value); err != nil {
				return fmt.Errorf("column %s: %w", column, err)
			}
			continue
		}

		ft, ok := schema.FieldType(target)
		if !ok {
			l.logger.Debug("skipping column without matching field",
				"class", schema.Class(), "column", column, "field", target)
			continue
		}
		if ft == FieldBoolean {
			value = CoerceBoolean(value)
		}
		if err := schema.Assign(ctx, entity, target, value); err != nil {
			return newError(KindValidation, err, "invalid value for %s", target)
		}
	}
	return nil
}

// assignRelationField handles "Relation.Field" targets: the related entity
// is loaded or created, updated and linked to the owner.
func (l *Loader) assignRelationField(ctx context.Context, store Store, schema Schema, owner Entity, path string, value any) error {
	if IsEmpty(value) {
		return nil
	}
	relation, field, _ := strings.Cut(path, ".")
	if _, ok := schema.Relation(relation); !ok {
		l.logger.Debug("skipping column for unknown relation",
			"class", schema.Class(), "relation", relation)
		return nil
	}

	related, err := store.Component(ctx, owner, relation)
	if err != nil {
		return err
	}
	defer store.Release(related)

	relSchema, err := store.Schema(store.ClassOf(related))
	if err != nil {
		return err
	}
	ft, ok := relSchema.FieldType(field)
	if !ok {
		l.logger.Debug("skipping column without matching relation field",
			"class", relSchema.Class(), "field", field)
		return nil
	}
	if ft == FieldBoolean {
		value = CoerceBoolean(value)
	}
	if err := relSchema.Assign(ctx, related, field, value); err != nil {
		return newError(KindValidation, err, "invalid value for %s", path)
	}
	if err := save(ctx, store, related); err != nil {
		return err
	}
	return store.Link(owner, relation, related)
}

// applyRelations is the first pass over a row. It resolves relation
// callbacks and dot-notation columns so that field assignment can rely on
// the related entities being linked. Nothing is written in preview mode.
func (l *Loader) applyRelations(ctx context.Context, store Store, owner Entity, rec *Record, preview bool) error {
	schema, err := store.Schema(store.ClassOf(owner))
	if err != nil {
		return err
	}

	for column, value := range rec.All() {
		if IsEmpty(value) {
			continue
		}

		var (
			relation string
			related  Entity
		)

		if cb, ok := l.opts.RelationCallbacks[column]; ok {
			relation = cb.Relation
			relClass, ok := schema.Relation(relation)
			if !ok {
				return configError("%s has no relation %s", schema.Class(), relation)
			}
			if cb.Resolve != nil {
				related, err = cb.Resolve(ctx, store, owner, value, rec)
				if err != nil {
					return fmt.Errorf("relation callback for column %s: %w", column, err)
				}
			}
			if related == nil || related.EntityID() == 0 {
				related, err = store.New(relClass)
				if err != nil {
					return err
				}
				if !preview {
					if err := store.Create(ctx, related); err != nil {
						return err
					}
				}
			}
		} else if name, _, ok := strings.Cut(column, "."); ok {
			if _, ok := schema.Relation(name); !ok {
				continue
			}
			relation = name
			related, err = store.Component(ctx, owner, relation)
			if err != nil {
				return err
			}
			if !preview {
				if err := save(ctx, store, related); err != nil {
					return err
				}
			}
		} else {
			continue
		}

		err = store.Link(owner, relation, related)
		store.Release(related)
		if err != nil {
			return err
		}
		if f, ok := owner.(CacheFlusher); ok {
			f.FlushCache()
		}
	}
	return nil
}
