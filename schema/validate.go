package schema

import (
	"fmt"
	"reflect"
)

// ValidationError represents parameter validation errors with detailed information.
type ValidationError struct {
	Field   string `json:"field"`   // Dotted path of the field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// Validate checks args against the schema and returns the first failure.
func (s *Schema) Validate(args map[string]any) error {
	if issues := s.ValidateAll(args); len(issues) > 0 {
		return issues[0]
	}
	return nil
}

// ValidateAll checks args against the schema and returns every failure in
// field declaration order. Extra fields are allowed.
func (s *Schema) ValidateAll(args map[string]any) []*ValidationError {
	return validateObject("", s.fields, args)
}

func validateObject(prefix string, fields []Field, args map[string]any) []*ValidationError {
	var issues []*ValidationError
	for _, f := range fields {
		path := joinPath(prefix, f.Name)
		value, exists := args[f.Name]
		if !exists || value == nil {
			if f.IsRequired {
				issues = append(issues, &ValidationError{Field: path, Message: "required field is missing"})
			}
			continue
		}
		issues = append(issues, validateValue(path, f, value)...)
	}
	return issues
}

func validateValue(path string, f Field, value any) []*ValidationError {
	if !isValidType(value, string(f.Type)) {
		return []*ValidationError{{
			Field:   path,
			Value:   value,
			Message: fmt.Sprintf("expected type %s, got %T", f.Type, value),
		}}
	}
	if len(f.EnumValues) > 0 && !inEnum(value, f.EnumValues) {
		return []*ValidationError{{
			Field:   path,
			Value:   value,
			Message: fmt.Sprintf("value must be one of %v", f.EnumValues),
		}}
	}
	var issues []*ValidationError
	switch f.Type {
	case TypeObject:
		obj, _ := value.(map[string]any)
		issues = append(issues, validateObject(path, f.Properties, obj)...)
	case TypeArray:
		if f.Items == nil {
			break
		}
		for i, elem := range value.([]any) {
			issues = append(issues, validateValue(fmt.Sprintf("%s[%d]", path, i), *f.Items, elem)...)
		}
	}
	return issues
}

// ValidateMap validates parameters against a raw JSON schema map. It serves
// tools whose schema is supplied as JSON rather than built from fields.
func ValidateMap(params map[string]any, schema map[string]any) error {
	for _, fieldName := range requiredNames(schema["required"]) {
		if _, exists := params[fieldName]; !exists {
			return &ValidationError{
				Field:   fieldName,
				Message: "required field is missing",
			}
		}
	}

	properties, _ := schema["properties"].(map[string]any)
	for fieldName, value := range params {
		propSchema, exists := properties[fieldName]
		if !exists {
			continue // Allow extra fields
		}

		propMap, ok := propSchema.(map[string]any)
		if !ok {
			continue
		}

		expectedType, _ := propMap["type"].(string)
		if !isValidType(value, expectedType) {
			return &ValidationError{
				Field:   fieldName,
				Value:   value,
				Message: fmt.Sprintf("expected type %s, got %T", expectedType, value),
			}
		}
	}

	return nil
}

// requiredNames accepts both []string (built in Go) and []any (decoded JSON).
func requiredNames(v any) []string {
	switch r := v.(type) {
	case []string:
		return r
	case []any:
		out := make([]string, 0, len(r))
		for _, item := range r {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// isValidType checks if a value is valid according to the expected JSON schema type.
func isValidType(value any, expectedType string) bool {
	if value == nil {
		return true // nil is valid for any type
	}

	switch expectedType {
	case "string":
		_, ok := value.(string)
		return ok
	case "integer":
		switch v := value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		case float64: // JSON unmarshaling often produces float64 for numbers
			return v == float64(int64(v))
		}
		return false
	case "number":
		switch value.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64,
			float32, float64:
			return true
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true // Unknown types are assumed valid
	}
}

func inEnum(value any, enum []any) bool {
	for _, candidate := range enum {
		if reflect.DeepEqual(normalizeNumber(candidate), normalizeNumber(value)) {
			return true
		}
	}
	return false
}

// normalizeNumber maps Go integer values to float64 so enum entries declared
// as ints match decoded JSON numbers.
func normalizeNumber(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	}
	return v
}

func joinPath(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
