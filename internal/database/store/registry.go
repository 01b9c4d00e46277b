package store

import (
	"fmt"
	"reflect"
	"sort"
)

type classInfo struct {
	name   string
	typ    reflect.Type
	parent string
}

// Registry maps class names to gorm models. A class registered with a
// parent shares the parent's table and is selected through the ClassName
// discriminator column.
type Registry struct {
	classes map[string]*classInfo
	byType  map[reflect.Type]string
}

func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]*classInfo),
		byType:  make(map[reflect.Type]string),
	}
}

// Register adds a model, given as a pointer to its struct, under class.
func (r *Registry) Register(class string, model any, parent string) error {
	t := reflect.TypeOf(model)
	if t == nil || t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("model for %s must be a pointer to a struct, got %T", class, model)
	}
	if _, ok := r.classes[class]; ok {
		return fmt.Errorf("class %s is already registered", class)
	}
	if parent != "" {
		if _, ok := r.classes[parent]; !ok {
			return fmt.Errorf("parent class %s of %s is not registered", parent, class)
		}
	}
	r.classes[class] = &classInfo{name: class, typ: t.Elem(), parent: parent}
	r.byType[t.Elem()] = class
	return nil
}

// MustRegister is Register for static setups.
func (r *Registry) MustRegister(class string, model any, parent string) *Registry {
	if err := r.Register(class, model, parent); err != nil {
		panic(err)
	}
	return r
}

// Classes lists registered class names alphabetically.
func (r *Registry) Classes() []string {
	out := make([]string, 0, len(r.classes))
	for name := range r.classes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Has reports whether class is registered.
func (r *Registry) Has(class string) bool {
	_, ok := r.classes[class]
	return ok
}

// Root returns the top of class's hierarchy.
func (r *Registry) Root(class string) string {
	for {
		info, ok := r.classes[class]
		if !ok || info.parent == "" {
			return class
		}
		class = info.parent
	}
}

// IsSubclass reports whether class is base or inherits from it.
func (r *Registry) IsSubclass(class, base string) bool {
	for class != "" {
		info, ok := r.classes[class]
		if !ok {
			return false
		}
		if class == base {
			return true
		}
		class = info.parent
	}
	return false
}

// Descendants returns class and every class inheriting from it.
func (r *Registry) Descendants(class string) []string {
	var out []string
	for _, name := range r.Classes() {
		if r.IsSubclass(name, class) {
			out = append(out, name)
		}
	}
	return out
}

func (r *Registry) classOfType(t reflect.Type) (string, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	name, ok := r.byType[t]
	return name, ok
}
