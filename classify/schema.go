// Package classify asks an LLM for structured answers and validates them
// against a declared JSON schema before anything routes on them.
package classify

import (
	"encoding/json"
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// Schema is a named, compiled JSON schema describing the object a
// classification must return.
//
// Schemas are immutable and safe to share between goroutines.
type Schema struct {
	name     string
	doc      string
	compiled *gojsonschema.Schema
}

// NewSchema compiles doc, a JSON schema document, under name.
func NewSchema(name, doc string) (*Schema, error) {
	compiled, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("invalid schema %s: %w", name, err)
	}
	return &Schema{name: name, doc: doc, compiled: compiled}, nil
}

// MustSchema is like NewSchema but panics on error. For package-level schemas.
func MustSchema(name, doc string) *Schema {
	s, err := NewSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the schema name used in errors, metrics and logs.
func (s *Schema) Name() string { return s.name }

// Doc returns the schema document as given to NewSchema. It is embedded in
// the instruction sent to the model.
func (s *Schema) Doc() string { return s.doc }

// Validate checks raw against the schema. Malformed JSON and schema
// violations are returned as a retryable *ClassificationError.
func (s *Schema) Validate(raw []byte) error {
	if !json.Valid(raw) {
		return &ClassificationError{
			Schema:    s.name,
			Reason:    "reply is not valid JSON",
			Transient: true,
		}
	}

	result, err := s.compiled.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return &ClassificationError{Schema: s.name, Reason: "validation failed", Cause: err}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		violations[i] = desc.String()
	}
	return &ClassificationError{
		Schema:     s.name,
		Reason:     "reply does not match schema",
		Violations: violations,
		Transient:  true,
	}
}
