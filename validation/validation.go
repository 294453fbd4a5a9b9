// Package validation checks mutation payloads before they reach business
// logic. A Validator reports field-level violations; an empty result means the
// payload is valid.
package validation

import (
	"fmt"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/samsarahq/go/oops"
	"github.com/xeipuuv/gojsonschema"
)

// A Violation is a single problem with one field of a payload.
type Violation struct {
	// Field is the dotted path of the offending field, or "" for the payload
	// as a whole.
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v Violation) String() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// Validator checks a decoded payload.
type Validator interface {
	Validate(payload interface{}) []Violation
}

// Func adapts a function to a Validator.
type Func func(payload interface{}) []Violation

// Validate calls f(payload).
func (f Func) Validate(payload interface{}) []Violation {
	return f(payload)
}

// JSONSchema validates the JSON encoding of a payload against a JSON Schema
// document.
type JSONSchema struct {
	schema *gojsonschema.Schema
}

var _ Validator = &JSONSchema{}

// NewJSONSchema compiles a JSON Schema document.
func NewJSONSchema(schema string) (*JSONSchema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	if err != nil {
		return nil, oops.Wrapf(err, "compiling json schema")
	}
	return &JSONSchema{schema: compiled}, nil
}

// MustJSONSchema is NewJSONSchema that panics on an invalid schema.
func MustJSONSchema(schema string) *JSONSchema {
	s, err := NewJSONSchema(schema)
	if err != nil {
		panic(err)
	}
	return s
}

// Validate encodes payload with the same rules used to decode mutation input
// and reports every schema violation, sorted by field.
func (s *JSONSchema) Validate(payload interface{}) []Violation {
	doc, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(payload)
	if err != nil {
		return []Violation{{Message: fmt.Sprintf("cannot encode payload: %s", err)}}
	}

	result, err := s.schema.Validate(gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return []Violation{{Message: fmt.Sprintf("cannot validate payload: %s", err)}}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]Violation, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, Violation{
			Field:   fieldOf(desc),
			Message: desc.Description(),
		})
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Field < violations[j].Field
	})
	return violations
}

// fieldOf names the field of a result error. Missing required properties are
// reported against the object holding them, so the property is appended.
func fieldOf(desc gojsonschema.ResultError) string {
	field := desc.Field()
	if field == gojsonschema.STRING_CONTEXT_ROOT {
		field = ""
	}
	if desc.Type() == "required" {
		if property, ok := desc.Details()["property"].(string); ok {
			if field == "" {
				return property
			}
			return field + "." + property
		}
	}
	return field
}
