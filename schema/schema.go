// Package schema builds JSON Schema parameter descriptions from explicit,
// typed field descriptors and validates decoded arguments against them.
//
// A Schema is assembled once at tool or response model definition time; its
// JSON form is computed lazily a single time and cached, so converting tools
// into vendor formats on every call stays cheap.
//
//	s := schema.Object(
//	  schema.String("title").Describe("Book title").Required(),
//	  schema.String("author").Required(),
//	  schema.Integer("year"),
//	)
package schema

import (
	"sort"
	"sync"
)

// Type is a JSON Schema primitive type name.
type Type string

const (
	TypeString  Type = "string"
	TypeInteger Type = "integer"
	TypeNumber  Type = "number"
	TypeBoolean Type = "boolean"
	TypeArray   Type = "array"
	TypeObject  Type = "object"
)

// Field describes one named property. Field values are immutable; the
// modifier methods return updated copies.
type Field struct {
	Name        string
	Type        Type
	Description string
	IsRequired  bool
	EnumValues  []any
	Items       *Field  // element descriptor for arrays
	Properties  []Field // nested properties for objects
}

// String declares a string field.
func String(name string) Field { return Field{Name: name, Type: TypeString} }

// Integer declares an integer field.
func Integer(name string) Field { return Field{Name: name, Type: TypeInteger} }

// Number declares a floating point field.
func Number(name string) Field { return Field{Name: name, Type: TypeNumber} }

// Boolean declares a boolean field.
func Boolean(name string) Field { return Field{Name: name, Type: TypeBoolean} }

// Array declares an array field whose elements follow items (items.Name is ignored).
func Array(name string, items Field) Field {
	return Field{Name: name, Type: TypeArray, Items: &items}
}

// Nested declares an object field with the given properties.
func Nested(name string, props ...Field) Field {
	return Field{Name: name, Type: TypeObject, Properties: props}
}

// Describe sets the description shown to the model.
func (f Field) Describe(d string) Field { f.Description = d; return f }

// Required marks the field as mandatory.
func (f Field) Required() Field { f.IsRequired = true; return f }

// Enum restricts the accepted values.
func (f Field) Enum(values ...any) Field {
	f.EnumValues = append([]any(nil), values...)
	return f
}

// Schema is an object schema built from field descriptors.
type Schema struct {
	fields []Field

	once sync.Once
	json map[string]any
}

// Object builds an object schema from fields.
func Object(fields ...Field) *Schema {
	return &Schema{fields: append([]Field(nil), fields...)}
}

// Fields returns a copy of the top-level field descriptors.
func (s *Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Field looks up a top-level field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// JSON returns the JSON Schema representation. The map is computed once and
// shared; callers must not mutate it.
func (s *Schema) JSON() map[string]any {
	s.once.Do(func() {
		s.json = objectJSON(s.fields)
	})
	return s.json
}

// Types returns the distinct JSON types used anywhere in the schema, sorted.
func (s *Schema) Types() []Type {
	seen := map[Type]struct{}{TypeObject: {}}
	var walk func(fs []Field)
	walk = func(fs []Field) {
		for _, f := range fs {
			seen[f.Type] = struct{}{}
			if f.Items != nil {
				walk([]Field{*f.Items})
			}
			walk(f.Properties)
		}
	}
	walk(s.fields)
	out := make([]Type, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func objectJSON(fields []Field) map[string]any {
	properties := make(map[string]any, len(fields))
	required := make([]string, 0)
	for _, f := range fields {
		properties[f.Name] = fieldJSON(f)
		if f.IsRequired {
			required = append(required, f.Name)
		}
	}
	out := map[string]any{
		"type":       string(TypeObject),
		"properties": properties,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

func fieldJSON(f Field) map[string]any {
	var out map[string]any
	if f.Type == TypeObject {
		out = objectJSON(f.Properties)
	} else {
		out = map[string]any{"type": string(f.Type)}
	}
	if f.Description != "" {
		out["description"] = f.Description
	}
	if len(f.EnumValues) > 0 {
		out["enum"] = f.EnumValues
	}
	if f.Type == TypeArray && f.Items != nil {
		out["items"] = fieldJSON(*f.Items)
	}
	return out
}
