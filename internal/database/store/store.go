// Package store implements bulkloader.Store on top of gorm.
//
// Classes are registered gorm models. Field metadata comes from gorm's
// schema parser, so any column gorm knows about can be imported, exported
// and used in duplicate filters without per-model code.
package store

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"github.com/mrlokans/sheetloader/internal/bulkloader"
	"github.com/mrlokans/sheetloader/internal/spreadsheet"
)

// DiscriminatorField holds the concrete class of rows in shared tables.
const DiscriminatorField = "ClassName"

// Store is a gorm-backed bulkloader.Store.
type Store struct {
	db       *gorm.DB
	registry *Registry
	schemas  *sync.Map
}

var _ bulkloader.Store = (*Store)(nil)

func New(db *gorm.DB, registry *Registry) *Store {
	return &Store{db: db, registry: registry, schemas: &sync.Map{}}
}

// Registry returns the class registry of the store.
func (s *Store) Registry() *Registry {
	return s.registry
}

func (s *Store) parseType(t reflect.Type) (*schema.Schema, error) {
	return schema.Parse(reflect.New(t).Interface(), s.schemas, s.db.NamingStrategy)
}

func (s *Store) parseClass(class string) (*schema.Schema, *classInfo, error) {
	info, ok := s.registry.classes[class]
	if !ok {
		return nil, nil, fmt.Errorf("class %s is not registered", class)
	}
	sch, err := s.parseType(info.typ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse model for %s: %w", class, err)
	}
	return sch, info, nil
}

func (s *Store) parseEntity(e bulkloader.Entity) (*schema.Schema, reflect.Value, error) {
	rv := reflect.ValueOf(e)
	if rv.Kind() != reflect.Pointer || rv.IsNil() {
		return nil, reflect.Value{}, fmt.Errorf("entity must be a non-nil pointer, got %T", e)
	}
	sch, err := s.parseType(rv.Elem().Type())
	if err != nil {
		return nil, reflect.Value{}, err
	}
	return sch, rv.Elem(), nil
}

func (s *Store) Schema(class string) (bulkloader.Schema, error) {
	sch, _, err := s.parseClass(class)
	if err != nil {
		return nil, err
	}
	return &classSchema{store: s, class: class, sch: sch}, nil
}

// ClassOf prefers the discriminator value and falls back to the Go type.
func (s *Store) ClassOf(e bulkloader.Entity) string {
	if sch, rv, err := s.parseEntity(e); err == nil {
		if f := sch.LookUpField(DiscriminatorField); f != nil {
			v, _ := f.ValueOf(context.Background(), rv)
			if name, ok := v.(string); ok && s.registry.Has(name) {
				return name
			}
		}
	}
	name, _ := s.registry.classOfType(reflect.TypeOf(e))
	return name
}

func (s *Store) IsSubclass(class, base string) bool {
	return s.registry.IsSubclass(class, base)
}

func (s *Store) New(class string) (bulkloader.Entity, error) {
	sch, info, err := s.parseClass(class)
	if err != nil {
		return nil, err
	}
	ptr := reflect.New(info.typ)
	e, ok := ptr.Interface().(bulkloader.Entity)
	if !ok {
		return nil, fmt.Errorf("model %s does not implement EntityID", info.typ)
	}
	if f := sch.LookUpField(DiscriminatorField); f != nil {
		if err := f.Set(context.Background(), ptr.Elem(), class); err != nil {
			return nil, err
		}
	}
	return e, nil
}

type identity struct {
	ID        uint   `gorm:"column:id"`
	ClassName string `gorm:"column:class_name"`
}

// scope builds the base query for class: its table, the discriminator
// filter for subclasses and the equality filters.
func (s *Store) scope(ctx context.Context, class string, filter bulkloader.Filter) (*gorm.DB, *schema.Schema, error) {
	rootSch, _, err := s.parseClass(s.registry.Root(class))
	if err != nil {
		return nil, nil, err
	}
	pk := rootSch.PrioritizedPrimaryField
	if pk == nil {
		return nil, nil, fmt.Errorf("class %s has no primary key", class)
	}

	q := s.db.WithContext(ctx).Table(rootSch.Table)
	cols := []string{pk.DBName + " AS id"}
	if d := rootSch.LookUpField(DiscriminatorField); d != nil {
		cols = append(cols, d.DBName+" AS class_name")
		if s.registry.Root(class) != class {
			values := make([]any, 0)
			for _, name := range s.registry.Descendants(class) {
				values = append(values, name)
			}
			q = q.Where(clause.IN{Column: clause.Column{Name: d.DBName}, Values: values})
		}
	}
	q = q.Select(cols)

	for name, value := range filter {
		f := rootSch.LookUpField(name)
		if f == nil || f.DBName == "" {
			return nil, nil, bulkloader.NewConfigurationError(nil, "cannot filter %s on unknown field %s", class, name)
		}
		v, err := filterValue(f, value)
		if err != nil {
			return nil, nil, bulkloader.NewConfigurationError(err, "invalid filter value for %s", name)
		}
		q = q.Where(clause.Eq{Column: clause.Column{Name: f.DBName}, Value: v})
	}
	return q, rootSch, nil
}

// orderBy sorts on col, if given, then on the primary key.
func orderBy(q *gorm.DB, sch *schema.Schema, col string, desc bool) *gorm.DB {
	var columns []clause.OrderByColumn
	if col != "" {
		columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: col}, Desc: desc})
	}
	columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: sch.PrioritizedPrimaryField.DBName}})
	return q.Clauses(clause.OrderBy{Columns: columns})
}

// filterValue converts spreadsheet text to the column's type so that
// equality works for numeric and boolean columns.
func filterValue(f *schema.Field, value any) (any, error) {
	str, ok := value.(string)
	if !ok {
		return value, nil
	}
	str = strings.TrimSpace(str)
	switch f.DataType {
	case schema.Int:
		return strconv.ParseInt(str, 10, 64)
	case schema.Uint:
		return strconv.ParseUint(str, 10, 64)
	case schema.Float:
		return strconv.ParseFloat(str, 64)
	case schema.Bool:
		return strconv.ParseBool(str)
	default:
		return str, nil
	}
}

func (s *Store) load(ctx context.Context, class string, id identity) (bulkloader.Entity, error) {
	concrete := class
	if id.ClassName != "" && s.registry.IsSubclass(id.ClassName, class) {
		concrete = id.ClassName
	}
	e, err := s.New(concrete)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).First(e, id.ID).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s #%d: %w", concrete, id.ID, err)
	}
	return e, nil
}

func (s *Store) FindOne(ctx context.Context, class string, filter bulkloader.Filter) (bulkloader.Entity, error) {
	q, sch, err := s.scope(ctx, class, filter)
	if err != nil {
		return nil, err
	}
	var ids []identity
	if err := orderBy(q, sch, "", false).Limit(1).Find(&ids).Error; err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.load(ctx, class, ids[0])
}

// List loads matching entities one by one. The ordering field may carry a
// "-" prefix or a " DESC" suffix.
func (s *Store) List(ctx context.Context, class string, lq bulkloader.ListQuery) iter.Seq2[bulkloader.Entity, error] {
	return func(yield func(bulkloader.Entity, error) bool) {
		q, sch, err := s.scope(ctx, class, lq.Filters)
		if err != nil {
			yield(nil, err)
			return
		}
		var (
			col  string
			desc bool
		)
		if lq.Order != "" {
			col, desc, err = orderColumn(sch, lq.Order)
			if err != nil {
				yield(nil, err)
				return
			}
		}
		q = orderBy(q, sch, col, desc)
		if lq.Limit > 0 {
			q = q.Limit(lq.Limit)
		}
		if lq.Offset > 0 {
			q = q.Offset(lq.Offset)
		}

		var ids []identity
		if err := q.Find(&ids).Error; err != nil {
			yield(nil, err)
			return
		}
		for _, id := range ids {
			e, err := s.load(ctx, class, id)
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

func orderColumn(sch *schema.Schema, order string) (string, bool, error) {
	order = strings.TrimSpace(order)
	desc := false
	if strings.HasPrefix(order, "-") {
		desc = true
		order = order[1:]
	}
	if name, dir, ok := strings.Cut(order, " "); ok {
		order = name
		desc = strings.EqualFold(strings.TrimSpace(dir), "desc")
	}
	f := sch.LookUpField(order)
	if f == nil || f.DBName == "" {
		return "", false, bulkloader.NewConfigurationError(nil, "cannot sort on unknown field %s", order)
	}
	return f.DBName, desc, nil
}

// DeleteAll removes every entity of class, including subclass rows, along
// with their join table and has-many rows.
func (s *Store) DeleteAll(ctx context.Context, class string) (int, error) {
	q, sch, err := s.scope(ctx, class, nil)
	if err != nil {
		return 0, err
	}
	var ids []identity
	if err := orderBy(q, sch, "", false).Find(&ids).Error; err != nil {
		return 0, err
	}
	for _, id := range ids {
		e, err := s.load(ctx, class, id)
		if err != nil {
			return 0, err
		}
		if err := s.db.WithContext(ctx).Select(clause.Associations).Delete(e).Error; err != nil {
			return 0, fmt.Errorf("failed to delete %s #%d: %w", class, id.ID, err)
		}
	}
	return len(ids), nil
}

func (s *Store) Create(ctx context.Context, e bulkloader.Entity) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Create(e).Error
}

func (s *Store) Update(ctx context.Context, e bulkloader.Entity) error {
	return s.db.WithContext(ctx).Omit(clause.Associations).Save(e).Error
}

// relation finds a belongs-to relation on class or its ancestors.
func (s *Store) relation(class, name string) (*schema.Relationship, error) {
	for c := class; c != ""; {
		sch, info, err := s.parseClass(c)
		if err != nil {
			return nil, err
		}
		if rel, ok := sch.Relationships.Relations[name]; ok {
			return rel, nil
		}
		c = info.parent
	}
	return nil, fmt.Errorf("%s has no relation %s", class, name)
}

func (s *Store) Component(ctx context.Context, owner bulkloader.Entity, relation string) (bulkloader.Entity, error) {
	class := s.ClassOf(owner)
	rel, err := s.relation(class, relation)
	if err != nil {
		return nil, err
	}
	if rel.Type != schema.BelongsTo || len(rel.References) == 0 {
		return nil, fmt.Errorf("%s.%s is not a has-one relation", class, relation)
	}
	relClass, ok := s.registry.classOfType(rel.FieldSchema.ModelType)
	if !ok {
		return nil, fmt.Errorf("class of %s.%s is not registered", class, relation)
	}

	sch, rv, err := s.parseEntity(owner)
	if err != nil {
		return nil, err
	}
	fk := sch.LookUpField(rel.References[0].ForeignKey.Name)
	if fk == nil {
		return nil, fmt.Errorf("%s has no field %s", class, rel.References[0].ForeignKey.Name)
	}
	if v, zero := fk.ValueOf(ctx, rv); !zero {
		related, err := s.FindOne(ctx, relClass, bulkloader.Filter{rel.References[0].PrimaryKey.Name: v})
		if err != nil {
			return nil, err
		}
		if related != nil {
			return related, nil
		}
	}
	return s.New(relClass)
}

func (s *Store) Link(owner bulkloader.Entity, relation string, related bulkloader.Entity) error {
	class := s.ClassOf(owner)
	rel, err := s.relation(class, relation)
	if err != nil {
		return err
	}
	if rel.Type != schema.BelongsTo || len(rel.References) == 0 {
		return fmt.Errorf("%s.%s is not a has-one relation", class, relation)
	}
	sch, rv, err := s.parseEntity(owner)
	if err != nil {
		return err
	}
	fk := sch.LookUpField(rel.References[0].ForeignKey.Name)
	if fk == nil {
		return fmt.Errorf("%s has no field %s", class, rel.References[0].ForeignKey.Name)
	}
	return fk.Set(context.Background(), rv, related.EntityID())
}

// AppendRelation appends through the root class model so that the join
// table columns are the same for every subclass.
func (s *Store) AppendRelation(ctx context.Context, owner bulkloader.Entity, relation string, related ...bulkloader.Entity) error {
	if len(related) == 0 {
		return nil
	}
	if owner.EntityID() == 0 {
		return errors.New("cannot append relations to an unsaved entity")
	}
	root := s.registry.Root(s.ClassOf(owner))
	base, err := s.New(root)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).First(base, owner.EntityID()).Error; err != nil {
		return fmt.Errorf("failed to load %s #%d: %w", root, owner.EntityID(), err)
	}

	values := make([]any, len(related))
	for i, r := range related {
		values[i] = r
	}
	assoc := s.db.WithContext(ctx).Model(base).Association(relation)
	if assoc.Error != nil {
		return fmt.Errorf("%s has no relation %s: %w", root, relation, assoc.Error)
	}
	return assoc.Append(values...)
}

func (s *Store) Transaction(ctx context.Context, fn func(tx bulkloader.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, registry: s.registry, schemas: s.schemas})
	})
}

func (s *Store) Release(e bulkloader.Entity) {
	if r, ok := e.(bulkloader.Releaser); ok {
		r.Release()
	}
}

// classSchema adapts a parsed gorm schema to bulkloader.Schema. Values are
// always read and written through the schema of the entity's own Go type,
// which matters for subclasses sharing a table.
type classSchema struct {
	store *Store
	class string
	sch   *schema.Schema
}

func (c *classSchema) Class() string { return c.class }

func (c *classSchema) FieldType(field string) (bulkloader.FieldType, bool) {
	f := c.sch.LookUpField(field)
	if f == nil || f.DBName == "" || f.DataType == "" {
		return bulkloader.FieldUnknown, false
	}
	switch f.DataType {
	case schema.Bool:
		return bulkloader.FieldBoolean, true
	case schema.Int, schema.Uint, schema.Float:
		return bulkloader.FieldNumber, true
	case schema.Time:
		return bulkloader.FieldTime, true
	default:
		return bulkloader.FieldText, true
	}
}

func (c *classSchema) Fields() []string {
	out := make([]string, 0, len(c.sch.Fields))
	for _, f := range c.sch.Fields {
		if f.DBName != "" && f.Readable {
			out = append(out, f.Name)
		}
	}
	return out
}

func (c *classSchema) Relation(name string) (string, bool) {
	rel, err := c.store.relation(c.class, name)
	if err != nil || rel.Type != schema.BelongsTo {
		return "", false
	}
	return c.store.registry.classOfType(rel.FieldSchema.ModelType)
}

func (c *classSchema) Assign(ctx context.Context, e bulkloader.Entity, field string, value any) error {
	sch, rv, err := c.store.parseEntity(e)
	if err != nil {
		return err
	}
	f := sch.LookUpField(field)
	if f == nil || f.DBName == "" {
		return fmt.Errorf("%s has no field %s", c.class, field)
	}
	if s, ok := value.(string); ok && f.DataType != schema.String {
		s = strings.TrimSpace(s)
		if s == "" {
			fv := f.ReflectValueOf(ctx, rv)
			fv.Set(reflect.Zero(fv.Type()))
			return nil
		}
		value = s
	}
	switch f.DataType {
	case schema.Bool:
		if s, ok := value.(string); ok {
			value = parseBool(s)
		}
	case schema.Time:
		// Unformatted date cells arrive as spreadsheet serial numbers.
		if d := spreadsheet.ConvertExcelDate(value); d != "" {
			value = d
		}
	}
	return f.Set(ctx, rv, value)
}

// parseBool reads spreadsheet booleans: the strconv forms, yes/no and
// on/off in any case, and otherwise anything but "" and "0" counts as true.
func parseBool(s string) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(s) {
	case "yes", "y", "on":
		return true
	case "no", "n", "off":
		return false
	}
	return s != "" && s != "0"
}

func (c *classSchema) Value(ctx context.Context, e bulkloader.Entity, field string) (any, error) {
	sch, rv, err := c.store.parseEntity(e)
	if err != nil {
		return nil, err
	}
	f := sch.LookUpField(field)
	if f == nil || f.DBName == "" {
		return nil, fmt.Errorf("%s has no field %s", c.class, field)
	}
	v, _ := f.ValueOf(ctx, rv)
	return v, nil
}
