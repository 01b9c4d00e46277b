package bulkloader

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"strconv"
)

// memStore is an in-memory Store used by the loader and exporter tests.
// Entities are copied in and out so that transactions can be rolled back
// by restoring a snapshot.
type memStore struct {
	schemas  map[string]*memSchema
	parents  map[string]string
	tables   map[string][]*memEntity
	nextID   uint
	deny     map[string]bool
	released int
}

type memEntity struct {
	class  string
	fields map[string]any
	deny   map[string]bool
	links  map[string][]uint
	flushs int
}

func (e *memEntity) EntityID() uint {
	id, _ := e.fields[IDColumn].(uint)
	return id
}

func (e *memEntity) CanCreate(context.Context) bool { return !e.deny["create"] }
func (e *memEntity) CanEdit(context.Context) bool   { return !e.deny["edit"] }
func (e *memEntity) CanView(context.Context) bool   { return e.fields["Hidden"] != true }
func (e *memEntity) CanDelete(context.Context) bool {
	return !e.deny["delete"] && e.fields["Locked"] != true
}
func (e *memEntity) FlushCache() { e.flushs++ }

func (e *memEntity) ExportMethods() map[string]ExportMethod {
	return map[string]ExportMethod{
		"Greeting": func(_ context.Context, arg string) (any, error) {
			return fmt.Sprintf("%s %v", arg, e.fields["FirstName"]), nil
		},
	}
}

func (e *memEntity) UnexportedFields() []string {
	return []string{"Password"}
}

func (e *memEntity) clone() *memEntity {
	c := &memEntity{
		class:  e.class,
		fields: maps.Clone(e.fields),
		deny:   e.deny,
		links:  make(map[string][]uint, len(e.links)),
	}
	for k, v := range e.links {
		c.links[k] = slices.Clone(v)
	}
	return c
}

type memSchema struct {
	class     string
	order     []string
	types     map[string]FieldType
	relations map[string]string
}

func (s *memSchema) Class() string { return s.class }

func (s *memSchema) FieldType(field string) (FieldType, bool) {
	ft, ok := s.types[field]
	return ft, ok
}

func (s *memSchema) Fields() []string { return slices.Clone(s.order) }

func (s *memSchema) Relation(name string) (string, bool) {
	class, ok := s.relations[name]
	return class, ok
}

func (s *memSchema) Assign(_ context.Context, e Entity, field string, value any) error {
	me := e.(*memEntity)
	ft, ok := s.types[field]
	if !ok {
		return fmt.Errorf("unknown field %s", field)
	}
	switch ft {
	case FieldBoolean:
		switch v := value.(type) {
		case bool:
			me.fields[field] = v
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			me.fields[field] = b
		default:
			return fmt.Errorf("cannot assign %T to %s", value, field)
		}
	case FieldNumber:
		n, err := strconv.ParseUint(toString(value), 10, 64)
		if err != nil {
			return err
		}
		me.fields[field] = uint(n)
	default:
		me.fields[field] = toString(value)
		if field == ClassNameColumn {
			me.class = toString(value)
		}
	}
	return nil
}

func (s *memSchema) Value(_ context.Context, e Entity, field string) (any, error) {
	if _, ok := s.types[field]; !ok {
		return nil, fmt.Errorf("unknown field %s", field)
	}
	return e.(*memEntity).fields[field], nil
}

func newMemStore() *memStore {
	member := &memSchema{
		order: []string{"ID", "ClassName", "Email", "FirstName", "Subscribed", "Locked", "CompanyID", "Password"},
		types: map[string]FieldType{
			"ID":         FieldNumber,
			"ClassName":  FieldText,
			"Email":      FieldText,
			"FirstName":  FieldText,
			"Subscribed": FieldBoolean,
			"Locked":     FieldBoolean,
			"Hidden":     FieldBoolean,
			"CompanyID":  FieldNumber,
			"Password":   FieldText,
		},
		relations: map[string]string{"Company": "Company"},
	}
	verified := *member
	member.class = "Member"
	verified.class = "VerifiedMember"

	return &memStore{
		schemas: map[string]*memSchema{
			"Member":         member,
			"VerifiedMember": &verified,
			"Company": {
				class: "Company",
				order: []string{"ID", "Name"},
				types: map[string]FieldType{"ID": FieldNumber, "Name": FieldText},
			},
		},
		parents: map[string]string{"VerifiedMember": "Member"},
		tables:  make(map[string][]*memEntity),
		deny:    make(map[string]bool),
	}
}

func (s *memStore) table(class string) string {
	for {
		parent, ok := s.parents[class]
		if !ok {
			return class
		}
		class = parent
	}
}

func (s *memStore) seed(class string, pairs ...any) *memEntity {
	e, _ := s.New(class)
	me := e.(*memEntity)
	for i := 0; i < len(pairs); i += 2 {
		me.fields[pairs[i].(string)] = pairs[i+1]
	}
	if err := s.Create(context.Background(), me); err != nil {
		panic(err)
	}
	return me
}

func (s *memStore) count(class string) int {
	n := 0
	for _, e := range s.tables[s.table(class)] {
		if s.IsSubclass(e.class, class) {
			n++
		}
	}
	return n
}

func (s *memStore) Schema(class string) (Schema, error) {
	schema, ok := s.schemas[class]
	if !ok {
		return nil, fmt.Errorf("class %s is not registered", class)
	}
	return schema, nil
}

func (s *memStore) ClassOf(e Entity) string { return e.(*memEntity).class }

func (s *memStore) IsSubclass(class, base string) bool {
	if _, ok := s.schemas[class]; !ok {
		return false
	}
	for {
		if class == base {
			return true
		}
		parent, ok := s.parents[class]
		if !ok {
			return false
		}
		class = parent
	}
}

func (s *memStore) New(class string) (Entity, error) {
	if _, ok := s.schemas[class]; !ok {
		return nil, fmt.Errorf("class %s is not registered", class)
	}
	return &memEntity{
		class:  class,
		fields: map[string]any{IDColumn: uint(0), ClassNameColumn: class},
		deny:   s.deny,
		links:  make(map[string][]uint),
	}, nil
}

func (s *memStore) matches(e *memEntity, class string, filter Filter) bool {
	if !s.IsSubclass(e.class, class) {
		return false
	}
	for k, v := range filter {
		if fmt.Sprint(e.fields[k]) != fmt.Sprint(v) {
			return false
		}
	}
	return true
}

func (s *memStore) FindOne(_ context.Context, class string, filter Filter) (Entity, error) {
	for _, e := range s.tables[s.table(class)] {
		if s.matches(e, class, filter) {
			return e.clone(), nil
		}
	}
	return nil, nil
}

func (s *memStore) List(_ context.Context, class string, q ListQuery) iter.Seq2[Entity, error] {
	return func(yield func(Entity, error) bool) {
		n := 0
		for _, e := range s.tables[s.table(class)] {
			if !s.matches(e, class, q.Filters) {
				continue
			}
			if q.Limit > 0 && n >= q.Limit {
				return
			}
			n++
			if !yield(e.clone(), nil) {
				return
			}
		}
	}
}

func (s *memStore) DeleteAll(_ context.Context, class string) (int, error) {
	t := s.table(class)
	kept := s.tables[t][:0]
	n := 0
	for _, e := range s.tables[t] {
		if s.IsSubclass(e.class, class) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.tables[t] = kept
	return n, nil
}

func (s *memStore) Create(_ context.Context, e Entity) error {
	me := e.(*memEntity)
	if me.EntityID() == 0 {
		s.nextID++
		me.fields[IDColumn] = s.nextID
	} else if me.EntityID() > s.nextID {
		s.nextID = me.EntityID()
	}
	t := s.table(me.class)
	s.tables[t] = append(s.tables[t], me.clone())
	return nil
}

func (s *memStore) Update(_ context.Context, e Entity) error {
	me := e.(*memEntity)
	t := s.table(me.class)
	for i, stored := range s.tables[t] {
		if stored.EntityID() == me.EntityID() {
			s.tables[t][i] = me.clone()
			return nil
		}
	}
	return fmt.Errorf("%s #%d not found", me.class, me.EntityID())
}

func (s *memStore) Component(ctx context.Context, owner Entity, relation string) (Entity, error) {
	schema, _ := s.Schema(s.ClassOf(owner))
	class, ok := schema.Relation(relation)
	if !ok {
		return nil, fmt.Errorf("no relation %s", relation)
	}
	if id, _ := owner.(*memEntity).fields[relation+"ID"].(uint); id != 0 {
		if e, _ := s.FindOne(ctx, class, Filter{IDColumn: id}); e != nil {
			return e, nil
		}
	}
	return s.New(class)
}

func (s *memStore) Link(owner Entity, relation string, related Entity) error {
	owner.(*memEntity).fields[relation+"ID"] = related.EntityID()
	return nil
}

func (s *memStore) AppendRelation(_ context.Context, owner Entity, relation string, related ...Entity) error {
	me := owner.(*memEntity)
	for _, r := range related {
		me.links[relation] = append(me.links[relation], r.EntityID())
	}
	return s.Update(context.Background(), me)
}

func (s *memStore) Transaction(_ context.Context, fn func(tx Store) error) error {
	snapshot := make(map[string][]*memEntity, len(s.tables))
	for t, rows := range s.tables {
		snapshot[t] = slices.Clone(rows)
	}
	next := s.nextID
	if err := fn(s); err != nil {
		s.tables = snapshot
		s.nextID = next
		return err
	}
	return nil
}

func (s *memStore) Release(Entity) { s.released++ }

func (s *memStore) find(class, field string, value any) *memEntity {
	e, _ := s.FindOne(context.Background(), class, Filter{field: value})
	if e == nil {
		return nil
	}
	return e.(*memEntity)
}
