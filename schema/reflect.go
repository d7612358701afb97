package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

var timeType = reflect.TypeOf(time.Time{})

// For derives an object schema from the struct type T.
//
// Field names come from the json tag. A field is required unless its tag
// carries omitempty or its type is a pointer. The description tag sets the
// description and the enum tag a comma separated list of allowed values:
//
//	type Book struct {
//	  Title string `json:"title" description:"Book title"`
//	  Genre string `json:"genre" enum:"fantasy,scifi"`
//	  Year  *int   `json:"year"`
//	}
func For[T any]() (*Schema, error) {
	var zero T
	return Reflect(reflect.TypeOf(&zero).Elem())
}

// MustFor is For that panics on error, for package level response models.
func MustFor[T any]() *Schema {
	s, err := For[T]()
	if err != nil {
		panic(err)
	}
	return s
}

// Reflect derives an object schema from a struct type or a pointer to one.
func Reflect(t reflect.Type) (*Schema, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %v is not a struct type", t)
	}
	fields, err := structFields(t, map[reflect.Type]bool{})
	if err != nil {
		return nil, err
	}
	return Object(fields...), nil
}

func structFields(t reflect.Type, visiting map[reflect.Type]bool) ([]Field, error) {
	if visiting[t] {
		return nil, fmt.Errorf("schema: recursive type %v", t)
	}
	visiting[t] = true
	defer delete(visiting, t)

	var out []Field
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.IsExported() {
			continue
		}
		tag := sf.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name, opts, _ := strings.Cut(tag, ",")
		if name == "" {
			name = sf.Name
		}

		f, err := fieldFor(name, sf.Type, visiting)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", sf.Name, err)
		}
		if d := sf.Tag.Get("description"); d != "" {
			f = f.Describe(d)
		}
		if e := sf.Tag.Get("enum"); e != "" {
			f = f.Enum(enumValues(f.Type, e)...)
		}
		if !hasOption(opts, "omitempty") && sf.Type.Kind() != reflect.Pointer {
			f = f.Required()
		}
		out = append(out, f)
	}
	return out, nil
}

func fieldFor(name string, t reflect.Type, visiting map[reflect.Type]bool) (Field, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8) {
		return String(name), nil // RFC 3339 and base64 in encoding/json
	}
	switch t.Kind() {
	case reflect.String:
		return String(name), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integer(name), nil
	case reflect.Float32, reflect.Float64:
		return Number(name), nil
	case reflect.Bool:
		return Boolean(name), nil
	case reflect.Slice, reflect.Array:
		items, err := fieldFor("", t.Elem(), visiting)
		if err != nil {
			return Field{}, err
		}
		return Array(name, items), nil
	case reflect.Map:
		if t.Key().Kind() != reflect.String {
			return Field{}, fmt.Errorf("map key %v is not a string", t.Key())
		}
		return Nested(name), nil
	case reflect.Struct:
		props, err := structFields(t, visiting)
		if err != nil {
			return Field{}, err
		}
		return Nested(name, props...), nil
	}
	return Field{}, fmt.Errorf("unsupported kind %v", t.Kind())
}

func enumValues(t Type, tag string) []any {
	parts := strings.Split(tag, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		switch t {
		case TypeInteger, TypeNumber:
			var n float64
			if _, err := fmt.Sscan(p, &n); err == nil {
				out = append(out, n)
				continue
			}
		}
		out = append(out, p)
	}
	return out
}

func hasOption(opts, want string) bool {
	for opts != "" {
		var o string
		o, opts, _ = strings.Cut(opts, ",")
		if strings.TrimSpace(o) == want {
			return true
		}
	}
	return false
}
