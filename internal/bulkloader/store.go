package bulkloader

import (
	"context"
	"iter"
)

// Entity is any persisted object the loader can create or update.
// A zero EntityID means the entity has not been stored yet.
type Entity interface {
	EntityID() uint
}

// FieldType is the coarse storage type of a field.
type FieldType int

const (
	FieldUnknown FieldType = iota
	FieldBoolean
	FieldNumber
	FieldText
	FieldTime
)

// Schema describes the fields of one entity class.
type Schema interface {
	// Class is the registered class name.
	Class() string
	// FieldType returns the storage type of a field and whether it exists.
	FieldType(field string) (FieldType, bool)
	// Assign converts and sets a field value on an entity of this class.
	Assign(ctx context.Context, e Entity, field string, value any) error
	// Value reads a field from an entity of this class.
	Value(ctx context.Context, e Entity, field string) (any, error)
	// Fields lists storable fields in declaration order, ID first.
	Fields() []string
	// Relation returns the class of a has-one relation.
	Relation(name string) (class string, ok bool)
}

// Filter is an equality filter on field names.
type Filter map[string]any

// ListQuery narrows and orders a listing. Limit <= 0 means no limit.
type ListQuery struct {
	Filters Filter
	Order   string
	Limit   int
	Offset  int
}

// Store is the persistence boundary of the loader. Class lookups include
// subclasses sharing the base class storage.
type Store interface {
	Schema(class string) (Schema, error)
	// ClassOf returns the concrete class of a stored or new entity.
	ClassOf(e Entity) string
	// IsSubclass reports whether class is base or one of its descendants.
	IsSubclass(class, base string) bool
	New(class string) (Entity, error)
	// FindOne returns the first match or nil when nothing matches.
	FindOne(ctx context.Context, class string, filter Filter) (Entity, error)
	List(ctx context.Context, class string, q ListQuery) iter.Seq2[Entity, error]
	DeleteAll(ctx context.Context, class string) (int, error)
	Create(ctx context.Context, e Entity) error
	Update(ctx context.Context, e Entity) error
	// Component returns the entity linked through a has-one relation, or a
	// new unsaved one when the link is empty.
	Component(ctx context.Context, owner Entity, relation string) (Entity, error)
	// Link points the owner's relation foreign key at related.
	Link(owner Entity, relation string, related Entity) error
	// AppendRelation adds related entities to a to-many relation of a
	// stored owner. Existing links are kept.
	AppendRelation(ctx context.Context, owner Entity, relation string, related ...Entity) error
	// Transaction runs fn against a store bound to one transaction.
	Transaction(ctx context.Context, fn func(tx Store) error) error
	Release(e Entity)
}

// Capabilities an entity may implement. The loader and exporter check for
// them with type assertions.

type Creatable interface {
	CanCreate(ctx context.Context) bool
}

type Editable interface {
	CanEdit(ctx context.Context) bool
}

type Deletable interface {
	CanDelete(ctx context.Context) bool
}

type Viewable interface {
	CanView(ctx context.Context) bool
}

// ImportHook receives a column value for one field.
type ImportHook func(ctx context.Context, value any, rec *Record) error

// FieldImporter lets an entity take over assignment of specific columns.
type FieldImporter interface {
	ImportHooks() map[string]ImportHook
}

// CacheFlusher is called after relations are linked on an entity.
type CacheFlusher interface {
	FlushCache()
}

// Releaser is called once an entity is no longer needed by the loader.
type Releaser interface {
	Release()
}

// DuplicateCallbackProvider exposes class-level duplicate lookups.
type DuplicateCallbackProvider interface {
	DuplicateCallbacks() map[string]DuplicateCallback
}

// ExportMethod computes a derived export value. The argument is the text
// between parentheses in "Method(arg)" columns, empty otherwise.
type ExportMethod func(ctx context.Context, arg string) (any, error)

// MethodProvider exposes named export methods on an entity.
type MethodProvider interface {
	ExportMethods() map[string]ExportMethod
}

// SampleDataProvider supplies rows for the sample import file.
type SampleDataProvider interface {
	SampleImportData() [][]any
}
