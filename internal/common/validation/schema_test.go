package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSchema = `{
  "type": "object",
  "required": ["kind", "tags"],
  "properties": {
    "kind": {"type": "integer", "enum": [5300]},
    "tags": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}}
  }
}`

func TestSchema_Validate(t *testing.T) {
	s := MustCompileSchema(testSchema)

	tests := []struct {
		name      string
		doc       string
		wantValid bool
		wantField string
	}{
		{name: "valid", doc: `{"kind":5300,"tags":[["i","x","text"]]}`, wantValid: true},
		{name: "wrong kind", doc: `{"kind":1,"tags":[]}`, wantField: "kind"},
		{name: "missing tags", doc: `{"kind":5300}`, wantField: "(root)"},
		{name: "non string tag", doc: `{"kind":5300,"tags":[[1]]}`, wantField: "tags.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := s.Validate([]byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)
			if tt.wantField != "" {
				assert.True(t, res.HasErrors(tt.wantField), strings.Join(res.GetErrorMessages(), "; "))
			}
		})
	}
}

func TestSchema_ValidateMalformed(t *testing.T) {
	s := MustCompileSchema(testSchema)
	_, err := s.Validate([]byte(`{not json`))
	assert.Error(t, err)
}

func TestSchema_ValidateValue(t *testing.T) {
	s := MustCompileSchema(testSchema)
	res, err := s.ValidateValue(map[string]interface{}{"kind": 5300, "tags": []interface{}{}})
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestCompileSchema_Invalid(t *testing.T) {
	_, err := CompileSchema(`{"type": 12}`)
	assert.Error(t, err)
}

func TestGetErrorsForField(t *testing.T) {
	vr := &ValidationResult{Errors: []ValidationError{
		{Field: "tags.0", Message: "a"},
		{Field: "tags", Message: "b"},
		{Field: "kind", Message: "c"},
	}}
	assert.Len(t, vr.GetErrorsForField("tags"), 2)
	assert.Equal(t, []string{"tags.0: a", "tags: b", "kind: c"}, vr.GetErrorMessages())
}

func TestFormatValidators(t *testing.T) {
	assert.True(t, ValidateHex64(strings.Repeat("a", 64)))
	assert.False(t, ValidateHex64(strings.Repeat("A", 64)))
	assert.False(t, ValidateHex64("abc"))

	assert.True(t, ValidateRelayURL("wss://relay.divine.video"))
	assert.True(t, ValidateRelayURL("ws://127.0.0.1:7777"))
	assert.False(t, ValidateRelayURL("https://relay.divine.video"))
}
