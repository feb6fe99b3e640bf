package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }
func boolPtr(b bool) *bool        { return &b }

func TestSchemaValidateObject(t *testing.T) {
	t.Parallel()

	schema := &JSONSchema{
		Type: SchemaTypeObject,
		Properties: map[string]*JSONSchema{
			"name": {Type: SchemaTypeString, MinLength: intPtr(1)},
			"age":  {Type: SchemaTypeInteger, Minimum: floatPtr(0)},
		},
		Required: []string{"name"},
	}

	assert.NoError(t, schema.Validate(map[string]any{"name": "ada", "age": 36.0}))

	err := schema.Validate(map[string]any{"age": 36.0})
	assert.Equal(t, ErrValidation, CodeOf(err))

	err = schema.Validate(map[string]any{"name": "ada", "age": 3.5})
	assert.Equal(t, ErrValidation, CodeOf(err))
}

func TestSchemaValidateArrayAndEnum(t *testing.T) {
	t.Parallel()

	schema := &JSONSchema{
		Type:     SchemaTypeArray,
		Items:    &JSONSchema{Type: SchemaTypeString, Enum: []any{"red", "green"}},
		MinItems: intPtr(1),
	}

	assert.NoError(t, schema.Validate([]any{"red"}))
	assert.Error(t, schema.Validate([]any{}))
	assert.Error(t, schema.Validate([]any{"blue"}))
}

func TestSchemaAdditionalProperties(t *testing.T) {
	t.Parallel()

	schema := &JSONSchema{
		Type:                 SchemaTypeObject,
		Properties:           map[string]*JSONSchema{"a": {Type: SchemaTypeString}},
		AdditionalProperties: boolPtr(false),
	}
	assert.NoError(t, schema.Validate(map[string]any{"a": "x"}))
	assert.Error(t, schema.Validate(map[string]any{"a": "x", "b": "y"}))
}

func TestSchemaFromAny(t *testing.T) {
	t.Parallel()

	schema, err := SchemaFromAny(map[string]any{
		"type":     "object",
		"required": []any{"id"},
	})
	require.NoError(t, err)
	assert.Error(t, schema.Validate(map[string]any{}))

	nilSchema, err := SchemaFromAny(nil)
	require.NoError(t, err)
	assert.NoError(t, nilSchema.Validate("anything"))
}

func TestSchemaPattern(t *testing.T) {
	t.Parallel()

	schema := &JSONSchema{Type: SchemaTypeString, Pattern: `^[a-z]+$`}
	assert.NoError(t, schema.Validate("abc"))
	assert.Error(t, schema.Validate("ABC"))
}
