package schemas

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedSchemas_ValidJSON(t *testing.T) {
	for name, content := range map[string]string{
		"activity_event": ActivityEventSchema,
		"payment_routes": PaymentRoutesSchema,
	} {
		t.Run(name, func(t *testing.T) {
			var v map[string]any
			require.NoError(t, json.Unmarshal([]byte(content), &v))
			assert.Equal(t, "object", v["type"])
		})
	}
}

func TestValidateBytes_ActivityEvent(t *testing.T) {
	valid := `{"id":"1790000000000000001","type":"manual_action","prospectId":"6f1c1a7e-3b59-4d6a-9b43-7f0bd1c9e0aa",
		"detail":"contacted -> dismissed","status":"completed","triggeredBy":"manual","createdAt":"2026-01-02T03:04:05Z"}`
	assert.NoError(t, ValidateBytes(ActivityEventSchema, []byte(valid)))

	tests := []struct {
		name string
		doc  string
	}{
		{"numeric id", `{"id":1,"type":"manual_action","detail":"","status":"completed","triggeredBy":"manual","createdAt":"2026-01-02T03:04:05Z"}`},
		{"unknown type", `{"id":"1","type":"teleport","detail":"","status":"completed","triggeredBy":"manual","createdAt":"2026-01-02T03:04:05Z"}`},
		{"unknown actor", `{"id":"1","type":"manual_action","detail":"","status":"completed","triggeredBy":"robot","createdAt":"2026-01-02T03:04:05Z"}`},
		{"missing status", `{"id":"1","type":"manual_action","detail":"","triggeredBy":"manual","createdAt":"2026-01-02T03:04:05Z"}`},
		{"extra field", `{"id":"1","type":"manual_action","detail":"","status":"completed","triggeredBy":"manual","createdAt":"2026-01-02T03:04:05Z","x":1}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateBytes(ActivityEventSchema, []byte(tt.doc))
			require.Error(t, err)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}

func TestValidateFile_Routes(t *testing.T) {
	assert.NoError(t, ValidateFile(PaymentRoutesSchema, filepath.Join("testdata", "routes_valid.json")))

	err := ValidateFile(PaymentRoutesSchema, filepath.Join("testdata", "routes_invalid.json"))
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok, "error should be ValidationError type")
	assert.GreaterOrEqual(t, len(ve.Errors), 2)
	assert.Contains(t, ve.Error(), "validation failed")
}

func TestValidateFile_Missing(t *testing.T) {
	err := ValidateFile(PaymentRoutesSchema, "testdata/nonexistent.json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestValidateBytes_BadSchema(t *testing.T) {
	err := ValidateBytes(`{"type": 12}`, []byte(`{}`))
	require.Error(t, err)
	var le *SchemaLoadError
	assert.ErrorAs(t, err, &le)
}

func TestValidateBytes_MalformedDocument(t *testing.T) {
	err := ValidateBytes(PaymentRoutesSchema, []byte(`{not json`))
	assert.Error(t, err)
}
