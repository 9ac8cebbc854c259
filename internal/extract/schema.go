package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrInvalidPayload marks a payload that does not match the configured schema.
var ErrInvalidPayload = errors.New("extraction payload does not match schema")

// SchemaValidator checks extraction payloads against a JSON Schema.
type SchemaValidator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles the schema document read from r. name is used as
// the schema's resource location in error messages.
func CompileSchema(name string, r io.Reader) (*SchemaValidator, error) {
	doc, err := jsonschema.UnmarshalJSON(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse schema %s: %w", name, err)
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, doc); err != nil {
		return nil, fmt.Errorf("failed to add schema %s: %w", name, err)
	}
	schema, err := c.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}
	return &SchemaValidator{schema: schema}, nil
}

// LoadSchema compiles the schema file at path.
func LoadSchema(path string) (*SchemaValidator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", path, err)
	}
	return CompileSchema(path, bytes.NewReader(data))
}

// Validate returns an error wrapping ErrInvalidPayload when payload does not conform.
func (v *SchemaValidator) Validate(payload map[string]any) error {
	if v == nil {
		return nil
	}
	if err := v.schema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}
