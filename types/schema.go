package types

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
)

// SchemaType represents JSON Schema types.
type SchemaType string

const (
	SchemaTypeString  SchemaType = "string"
	SchemaTypeNumber  SchemaType = "number"
	SchemaTypeInteger SchemaType = "integer"
	SchemaTypeBoolean SchemaType = "boolean"
	SchemaTypeNull    SchemaType = "null"
	SchemaTypeObject  SchemaType = "object"
	SchemaTypeArray   SchemaType = "array"
)

// JSONSchema is the subset of JSON Schema the validation nodes understand.
type JSONSchema struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`

	Type SchemaType `json:"type,omitempty"`

	// Object properties
	Properties           map[string]*JSONSchema `json:"properties,omitempty"`
	Required             []string               `json:"required,omitempty"`
	AdditionalProperties *bool                  `json:"additionalProperties,omitempty"`

	// Array items
	Items    *JSONSchema `json:"items,omitempty"`
	MinItems *int        `json:"minItems,omitempty"`
	MaxItems *int        `json:"maxItems,omitempty"`

	// Enum
	Enum []any `json:"enum,omitempty"`

	// String constraints
	MinLength *int   `json:"minLength,omitempty"`
	MaxLength *int   `json:"maxLength,omitempty"`
	Pattern   string `json:"pattern,omitempty"`

	// Numeric constraints
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
}

// ParseSchema deserializes a schema from JSON.
func ParseSchema(data []byte) (*JSONSchema, error) {
	var schema JSONSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("unmarshal JSON schema: %w", err)
	}
	return &schema, nil
}

// SchemaFromAny converts a decoded YAML/JSON document into a schema.
func SchemaFromAny(doc any) (*JSONSchema, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal schema document: %w", err)
	}
	return ParseSchema(data)
}

// Validate checks a decoded JSON value against the schema. A nil schema
// accepts everything.
func (s *JSONSchema) Validate(value any) error {
	if s == nil {
		return nil
	}
	return s.validate(value, "$")
}

func (s *JSONSchema) validate(value any, path string) error {
	if s.Type != "" {
		if err := checkType(s.Type, value, path); err != nil {
			return err
		}
	}
	if len(s.Enum) > 0 && !enumMatch(s.Enum, value) {
		return NewFlowError(ErrValidation, fmt.Sprintf("%s: value not in enum", path))
	}

	switch v := value.(type) {
	case string:
		if s.MinLength != nil && len(v) < *s.MinLength {
			return FlowErrorf(ErrValidation, "%s: string shorter than %d", path, *s.MinLength)
		}
		if s.MaxLength != nil && len(v) > *s.MaxLength {
			return FlowErrorf(ErrValidation, "%s: string longer than %d", path, *s.MaxLength)
		}
		if s.Pattern != "" {
			re, err := regexp.Compile(s.Pattern)
			if err != nil {
				return FlowErrorf(ErrConfig, "%s: invalid pattern %q", path, s.Pattern).WithCause(err)
			}
			if !re.MatchString(v) {
				return FlowErrorf(ErrValidation, "%s: string does not match %q", path, s.Pattern)
			}
		}
	case float64:
		if s.Minimum != nil && v < *s.Minimum {
			return FlowErrorf(ErrValidation, "%s: %v below minimum %v", path, v, *s.Minimum)
		}
		if s.Maximum != nil && v > *s.Maximum {
			return FlowErrorf(ErrValidation, "%s: %v above maximum %v", path, v, *s.Maximum)
		}
	case map[string]any:
		for _, req := range s.Required {
			if _, ok := v[req]; !ok {
				return FlowErrorf(ErrValidation, "%s: missing required field %q", path, req)
			}
		}
		for name, prop := range s.Properties {
			if inner, ok := v[name]; ok {
				if err := prop.validate(inner, path+"."+name); err != nil {
					return err
				}
			}
		}
		if s.AdditionalProperties != nil && !*s.AdditionalProperties {
			for name := range v {
				if _, declared := s.Properties[name]; !declared {
					return FlowErrorf(ErrValidation, "%s: unexpected field %q", path, name)
				}
			}
		}
	case []any:
		if s.MinItems != nil && len(v) < *s.MinItems {
			return FlowErrorf(ErrValidation, "%s: fewer than %d items", path, *s.MinItems)
		}
		if s.MaxItems != nil && len(v) > *s.MaxItems {
			return FlowErrorf(ErrValidation, "%s: more than %d items", path, *s.MaxItems)
		}
		if s.Items != nil {
			for i, item := range v {
				if err := s.Items.validate(item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func checkType(want SchemaType, value any, path string) error {
	ok := false
	switch want {
	case SchemaTypeString:
		_, ok = value.(string)
	case SchemaTypeNumber:
		ok = isNumber(value)
	case SchemaTypeInteger:
		if f, isF := toFloat(value); isF {
			ok = f == math.Trunc(f)
		}
	case SchemaTypeBoolean:
		_, ok = value.(bool)
	case SchemaTypeNull:
		ok = value == nil
	case SchemaTypeObject:
		_, ok = value.(map[string]any)
	case SchemaTypeArray:
		_, ok = value.([]any)
	}
	if !ok {
		return FlowErrorf(ErrValidation, "%s: expected %s", path, want)
	}
	return nil
}

func isNumber(value any) bool {
	_, ok := toFloat(value)
	return ok
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	}
	return 0, false
}

func enumMatch(enum []any, value any) bool {
	for _, e := range enum {
		if fmt.Sprintf("%v", e) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
