package extract

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invoiceSchema = `{
  "type": "object",
  "required": ["items"],
  "properties": {
    "items": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {"qty": {"type": "number"}}
      }
    },
    "po_number": {"type": "string"}
  }
}`

func TestSchemaValidator(t *testing.T) {
	v, err := CompileSchema("invoice.json", strings.NewReader(invoiceSchema))
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"items":[{"qty":5}],"po_number":"PO1"}`},
		{name: "missing items", payload: `{"po_number":"PO1"}`, wantErr: true},
		{name: "wrong item type", payload: `{"items":[{"qty":"five"}]}`, wantErr: true},
		{name: "wrong po type", payload: `{"items":[],"po_number":7}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var payload map[string]any
			require.NoError(t, json.Unmarshal([]byte(tt.payload), &payload))
			err := v.Validate(payload)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPayload)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSchemaValidator_Nil(t *testing.T) {
	var v *SchemaValidator
	assert.NoError(t, v.Validate(map[string]any{}))
}

func TestLoadSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(invoiceSchema), 0o600))

	v, err := LoadSchema(path)
	require.NoError(t, err)
	assert.NoError(t, v.Validate(map[string]any{"items": []any{}}))

	_, err = LoadSchema(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = LoadSchema(bad)
	assert.Error(t, err)
}
