package suite

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// ErrContract marks a response that does not satisfy the declared body
// shape. It is distinct from a status-code mismatch.
var ErrContract = errors.New("contract violation")

// compileSchema compiles the assertion's inline JSON Schema.
func (a *Assertion) compileSchema(resource string) (*sjsonschema.Schema, error) {
	doc, err := sjsonschema.UnmarshalJSON(strings.NewReader(a.Schema))
	if err != nil {
		return nil, fmt.Errorf("assert.schema: unmarshal: %w", err)
	}

	c := sjsonschema.NewCompiler()
	if err := c.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("assert.schema: add resource: %w", err)
	}

	sch, err := c.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("assert.schema: compile: %w", err)
	}

	return sch, nil
}

// Check verifies a response body against the assertion. Every failure
// wraps ErrContract.
func (a *Assertion) Check(body []byte) error {
	if a == nil {
		return nil
	}

	var doc any

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: response is not valid JSON: %v", ErrContract, err)
	}

	envelope, isObject := doc.(map[string]any)

	if a.Success != nil {
		if !isObject {
			return fmt.Errorf("%w: response is not a JSON object", ErrContract)
		}

		got, ok := envelope["success"].(bool)
		if !ok {
			return fmt.Errorf("%w: missing boolean field \"success\"", ErrContract)
		}

		if got != *a.Success {
			return fmt.Errorf("%w: success is %t, want %t%s", ErrContract, got, *a.Success, envelopeError(envelope))
		}
	}

	if len(a.RequireData) > 0 {
		if !isObject {
			return fmt.Errorf("%w: response is not a JSON object", ErrContract)
		}

		for _, key := range a.RequireData {
			if !hasPath(envelope["data"], key) {
				return fmt.Errorf("%w: missing required field data.%s", ErrContract, key)
			}
		}
	}

	sch := a.schema
	if sch == nil && a.Schema != "" {
		compiled, err := a.compileSchema("assert.json")
		if err != nil {
			return err
		}

		sch = compiled
	}

	if sch != nil {
		if err := sch.Validate(doc); err != nil {
			return fmt.Errorf("%w: schema: %s", ErrContract, describeValidation(err))
		}
	}

	return nil
}

// hasPath reports whether the dotted key path exists in v.
func hasPath(v any, dotted string) bool {
	_, ok := lookupPath(v, dotted)
	return ok
}

// lookupPath walks the dotted key path through nested objects.
func lookupPath(v any, dotted string) (any, bool) {
	for _, part := range strings.Split(dotted, ".") {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, false
		}

		v, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return v, true
}

// envelopeError formats the envelope's error code and message, if any.
func envelopeError(envelope map[string]any) string {
	e, ok := envelope["error"].(map[string]any)
	if !ok {
		return ""
	}

	code, _ := e["code"].(string)
	msg, _ := e["message"].(string)

	return fmt.Sprintf(" (error %s: %s)", code, msg)
}

// describeValidation flattens a schema validation error into its leaf
// causes, one per instance location.
func describeValidation(err error) string {
	var ve *sjsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err.Error()
	}

	leaves := flattenValidationErrors(ve)
	parts := make([]string, 0, len(leaves))

	for _, leaf := range leaves {
		loc := "/" + strings.Join(leaf.InstanceLocation, "/")
		parts = append(parts, fmt.Sprintf("%s: %v", loc, leaf.ErrorKind))
	}

	return strings.Join(parts, "; ")
}

func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}

	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}

	return flat
}
