package suite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"slices"
)

// placeholderRe matches a {name} reference to a captured value in a path.
var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var captureNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PathVars returns the captured values the template path references, in
// order of first use.
func (t *Template) PathVars() []string {
	return placeholders(t.Path)
}

func placeholders(s string) []string {
	var names []string

	for _, m := range placeholderRe.FindAllStringSubmatch(s, -1) {
		if !slices.Contains(names, m[1]) {
			names = append(names, m[1])
		}
	}

	return names
}

// ExpandPath replaces every {name} in s with the path-escaped value from
// vars. It returns the names it could not resolve; s is then returned
// unchanged.
func ExpandPath(s string, vars map[string]string) (string, []string) {
	var missing []string

	for _, name := range placeholders(s) {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return s, missing
	}

	return placeholderRe.ReplaceAllStringFunc(s, func(m string) string {
		return url.PathEscape(vars[m[1:len(m)-1]])
	}), nil
}

// CaptureValues extracts each capture's dotted key from the response
// envelope's data object. Scalars are rendered without JSON quoting.
// A missing key wraps ErrContract.
func CaptureValues(body []byte, capture map[string]string) (map[string]string, error) {
	var envelope map[string]any

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("%w: capture: response is not a JSON object", ErrContract)
	}

	out := make(map[string]string, len(capture))

	for name, key := range capture {
		v, ok := lookupPath(envelope["data"], key)
		if !ok || v == nil {
			return nil, fmt.Errorf("%w: capture %s: missing field data.%s", ErrContract, name, key)
		}

		switch val := v.(type) {
		case string:
			out[name] = val
		case json.Number, bool:
			out[name] = fmt.Sprint(val)
		default:
			return nil, fmt.Errorf("%w: capture %s: data.%s is not a scalar", ErrContract, name, key)
		}
	}

	return out, nil
}

// validateCaptures checks capture names and that every path placeholder
// refers to a value captured by an earlier case.
func (s *Suite) validateCaptures() []error {
	var errs []error

	captured := make(map[string]bool)

	for i, t := range s.Cases {
		if t == nil {
			continue
		}

		label := fmt.Sprintf("cases[%d]", i)
		if t.Name != "" {
			label = fmt.Sprintf("case %q", t.Name)
		}

		for _, name := range t.PathVars() {
			if !captured[name] {
				errs = append(errs, fmt.Errorf("suite: %s: path: {%s} is not captured by an earlier case", label, name))
			}
		}

		for name, key := range t.Capture {
			if !captureNameRe.MatchString(name) {
				errs = append(errs, fmt.Errorf("suite: %s: capture: invalid name %q", label, name))
			}

			if key == "" {
				errs = append(errs, fmt.Errorf("suite: %s: capture.%s: data key must not be empty", label, name))
			}

			captured[name] = true
		}
	}

	return errs
}
