package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinnou/glitr/validation"
)

type bookInput struct {
	Title  string `json:"title"`
	Pages  int    `json:"pages"`
	Author *struct {
		Name string `json:"name"`
	} `json:"author,omitempty"`
}

const bookSchema = `{
	"type": "object",
	"required": ["title"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"pages": {"type": "integer", "minimum": 0},
		"author": {
			"type": "object",
			"required": ["name"],
			"properties": {"name": {"type": "string", "minLength": 1}}
		}
	}
}`

func TestJSONSchemaValid(t *testing.T) {
	v, err := validation.NewJSONSchema(bookSchema)
	require.NoError(t, err)

	assert.Empty(t, v.Validate(&bookInput{Title: "Dune", Pages: 412}))
}

func TestJSONSchemaViolations(t *testing.T) {
	v := validation.MustJSONSchema(bookSchema)

	violations := v.Validate(&bookInput{Title: "", Pages: -1})
	require.Len(t, violations, 2)
	assert.Equal(t, "pages", violations[0].Field)
	assert.Equal(t, "title", violations[1].Field)
	assert.NotEmpty(t, violations[1].Message)
}

func TestJSONSchemaRequired(t *testing.T) {
	v := validation.MustJSONSchema(bookSchema)

	violations := v.Validate(map[string]interface{}{"pages": 1})
	require.Len(t, violations, 1)
	assert.Equal(t, "title", violations[0].Field)

	violations = v.Validate(map[string]interface{}{"title": "x", "author": map[string]interface{}{}})
	require.Len(t, violations, 1)
	assert.Equal(t, "author.name", violations[0].Field)
}

func TestNewJSONSchemaInvalid(t *testing.T) {
	_, err := validation.NewJSONSchema(`{"type": 12}`)
	assert.Error(t, err)
}

func TestFunc(t *testing.T) {
	var v validation.Validator = validation.Func(func(payload interface{}) []validation.Violation {
		if payload.(*bookInput).Title == "" {
			return []validation.Violation{{Field: "title", Message: "must not be empty"}}
		}
		return nil
	})

	assert.Nil(t, v.Validate(&bookInput{Title: "x"}))
	violations := v.Validate(&bookInput{})
	require.Len(t, violations, 1)
	assert.Equal(t, "title: must not be empty", violations[0].String())
}
