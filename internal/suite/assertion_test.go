package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boolPtr(b bool) *bool { return &b }

func TestAssertionCheck(t *testing.T) {
	tests := []struct {
		name    string
		assert  *Assertion
		body    string
		wantErr string
	}{
		{"nil assertion", nil, `not json`, ""},
		{"success ok", &Assertion{Success: boolPtr(true)}, `{"success":true,"data":{}}`, ""},
		{"success mismatch", &Assertion{Success: boolPtr(true)},
			`{"success":false,"error":{"code":"FORBIDDEN","message":"no"}}`, "success is false, want true (error FORBIDDEN: no)"},
		{"rejected probe", &Assertion{Success: boolPtr(false)}, `{"success":false}`, ""},
		{"success missing", &Assertion{Success: boolPtr(true)}, `{"data":{}}`, `missing boolean field "success"`},
		{"not json", &Assertion{Success: boolPtr(true)}, `<html>`, "response is not valid JSON"},
		{"not object", &Assertion{RequireData: []string{"files"}}, `[1,2]`, "not a JSON object"},
		{"data key present", &Assertion{RequireData: []string{"files", "meta.total"}},
			`{"data":{"files":[],"meta":{"total":0}}}`, ""},
		{"data key missing", &Assertion{RequireData: []string{"meta.total"}},
			`{"data":{"meta":{}}}`, "missing required field data.meta.total"},
		{"data absent", &Assertion{RequireData: []string{"files"}}, `{"success":true}`, "data.files"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.assert.Check([]byte(tt.body))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.ErrorIs(t, err, ErrContract)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertionCheck_Schema(t *testing.T) {
	a := &Assertion{Schema: `{
		"type": "object",
		"required": ["success", "data"],
		"properties": {"data": {"type": "object", "required": ["files"]}}
	}`}

	require.NoError(t, (&Suite{Cases: []*Template{{
		Name: "schema", Path: "/x", Expect: []int{200}, Assert: a,
	}}}).Validate())
	require.NotNil(t, a.schema)

	assert.NoError(t, a.Check([]byte(`{"success":true,"data":{"files":[]}}`)))

	err := a.Check([]byte(`{"success":true,"data":{}}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContract)
	assert.Contains(t, err.Error(), "schema:")
	assert.Contains(t, err.Error(), "/data")
}

func TestAssertionCheck_SchemaCompiledOnDemand(t *testing.T) {
	a := &Assertion{Schema: `{"type":"array"}`}

	err := a.Check([]byte(`{}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrContract)
	assert.Nil(t, a.schema, "Check never caches")
}

func TestValidate_BadSchema(t *testing.T) {
	err := (&Suite{Cases: []*Template{{
		Name: "bad", Path: "/x", Expect: []int{200}, Assert: &Assertion{Schema: `{"type": 12}`},
	}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assert.schema")
}
