package suite

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// GenerateJSONSchema produces a JSON Schema document for suite files from
// the Suite struct, for editor completion and CI linting.
func GenerateJSONSchema() ([]byte, error) {
	r := new(jsonschema.Reflector)
	r.DoNotReference = false

	s := r.Reflect(&Suite{})
	s.ID = "https://github.com/yes1688/arkprobe/schemas/suite-v1.json"
	s.Title = "arkprobe test suite"
	s.Description = "Declarative, environment-adaptive API test cases"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("suite: marshal schema: %w", err)
	}

	return data, nil
}
