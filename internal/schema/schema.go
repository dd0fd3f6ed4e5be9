// Package schema is the explicit registry of persisted entity kinds.
//
// Each kind is an ordered list of typed fields. The registry is built once at
// process start and validated before any store access, so a kind that cannot
// support the operations asked of it fails at registration time rather than
// at query time.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Well-known field names.
const (
	IDField        = "id"
	UpdatedAtField = "updated_at"
	SavedAtField   = "saved_at"
)

// FieldType is the semantic type of a field.
type FieldType int

const (
	Integer FieldType = iota
	Text
	Boolean
	// Timestamp values are naive ISO-8601 strings that compare correctly as text.
	Timestamp
)

func (t FieldType) String() string {
	switch t {
	case Integer:
		return "integer"
	case Text:
		return "text"
	case Boolean:
		return "boolean"
	case Timestamp:
		return "timestamp"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// Field is one column of a kind.
type Field struct {
	Name     string
	Type     FieldType
	Nullable bool
}

// Kind describes one entity kind (one table).
type Kind struct {
	Name   string
	Fields []Field
	// TracksSaves marks kinds that support pending scans. Such kinds must
	// declare both updated_at and saved_at as timestamps.
	TracksSaves bool
}

// Field returns the field with the given name.
func (k *Kind) Field(name string) (Field, bool) {
	for _, f := range k.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// validate checks the structural rules every kind must satisfy.
func (k *Kind) validate() error {
	if k.Name == "" {
		return fmt.Errorf("kind has no name")
	}

	seen := make(map[string]bool, len(k.Fields))
	for _, f := range k.Fields {
		if f.Name == "" {
			return fmt.Errorf("kind %s: field with empty name", k.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("kind %s: duplicate field %s", k.Name, f.Name)
		}
		seen[f.Name] = true
	}

	id, ok := k.Field(IDField)
	if !ok {
		return fmt.Errorf("kind %s: missing %s field", k.Name, IDField)
	}
	if id.Type != Integer || id.Nullable {
		return fmt.Errorf("kind %s: %s must be a non-nullable integer", k.Name, IDField)
	}

	if k.TracksSaves {
		for _, name := range []string{UpdatedAtField, SavedAtField} {
			f, ok := k.Field(name)
			if !ok {
				return fmt.Errorf("kind %s: pending scans require a %s field", k.Name, name)
			}
			if f.Type != Timestamp {
				return fmt.Errorf("kind %s: %s must be a timestamp, got %s", k.Name, name, f.Type)
			}
		}
	}
	return nil
}

// Record holds the present fields of one entity. Absent keys mean "not set",
// never "set to null". Values are int64, string or bool depending on the
// field type.
type Record map[string]any

// Keys returns the record's field names sorted, with id first.
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		if k != IDField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if _, ok := r[IDField]; ok {
		keys = append([]string{IDField}, keys...)
	}
	return keys
}

// Registry maps kind names to their declarations.
type Registry struct {
	kinds map[string]*Kind
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Register validates and adds a kind.
func (r *Registry) Register(k Kind) error {
	if err := k.validate(); err != nil {
		return err
	}
	if _, exists := r.kinds[k.Name]; exists {
		return fmt.Errorf("kind %s already registered", k.Name)
	}
	kind := k
	kind.Fields = append([]Field(nil), k.Fields...)
	r.kinds[k.Name] = &kind
	r.order = append(r.order, k.Name)
	return nil
}

// Kind returns a registered kind by name.
func (r *Registry) Kind(name string) (*Kind, error) {
	k, ok := r.kinds[name]
	if !ok {
		return nil, fmt.Errorf("unknown kind: %s", name)
	}
	return k, nil
}

// Kinds returns all registered kinds in registration order.
func (r *Registry) Kinds() []*Kind {
	kinds := make([]*Kind, len(r.order))
	for i, name := range r.order {
		kinds[i] = r.kinds[name]
	}
	return kinds
}

// Check verifies that every key in rec is a field of kind and that each value
// matches the field's type.
func (k *Kind) Check(rec Record) error {
	var problems []string
	for _, key := range rec.Keys() {
		f, ok := k.Field(key)
		if !ok {
			problems = append(problems, fmt.Sprintf("unknown field %s", key))
			continue
		}
		if !valueMatches(f.Type, rec[key]) {
			problems = append(problems, fmt.Sprintf("field %s: %T is not %s", key, rec[key], f.Type))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("kind %s: %s", k.Name, strings.Join(problems, "; "))
	}
	return nil
}

func valueMatches(t FieldType, v any) bool {
	switch t {
	case Integer:
		_, ok := v.(int64)
		return ok
	case Text, Timestamp:
		_, ok := v.(string)
		return ok
	case Boolean:
		_, ok := v.(bool)
		return ok
	}
	return false
}

// MissingRequired returns the non-nullable fields absent from rec, in
// declaration order.
func (k *Kind) MissingRequired(rec Record) []string {
	var missing []string
	for _, f := range k.Fields {
		if f.Nullable {
			continue
		}
		if _, ok := rec[f.Name]; !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}
