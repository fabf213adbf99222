package envprobe

import (
	"bufio"
	"strings"
)

// ModeRule maps one configuration assignment to a mode. Key and Value are
// compared case-insensitively against assignments found in the config text.
type ModeRule struct {
	Key   string
	Value string
	Mode  Mode
}

// DefaultModeRules is the ordered rule list used when no rules are
// configured. The first rule with a matching assignment wins.
var DefaultModeRules = []ModeRule{
	{Key: "DEVELOPMENT_MODE", Value: "true", Mode: ModeDevelopment},
	{Key: "DEV_MODE", Value: "true", Mode: ModeDevelopment},
	{Key: "GIN_MODE", Value: "debug", Mode: ModeDevelopment},
	{Key: "NODE_ENV", Value: "development", Mode: ModeDevelopment},
	{Key: "DEVELOPMENT_MODE", Value: "false", Mode: ModeProduction},
	{Key: "GIN_MODE", Value: "release", Mode: ModeProduction},
	{Key: "NODE_ENV", Value: "production", Mode: ModeProduction},
	{Key: "GIN_MODE", Value: "test", Mode: ModeTesting},
	{Key: "NODE_ENV", Value: "test", Mode: ModeTesting},
}

const adminEmailKey = "ROOT_ADMIN_EMAIL"

// assignment is a KEY=value or KEY: value pair lifted from config text.
type assignment struct {
	key   string
	value string
}

// DetectMode scans config text (a compose file, an env file) for the first
// rule whose assignment is present. This is a best-effort heuristic: no
// match, including empty text, yields ModeUnknown.
func DetectMode(text string, rules []ModeRule) Mode {
	if len(rules) == 0 {
		rules = DefaultModeRules
	}

	assigns := parseAssignments(text)

	for _, rule := range rules {
		for _, a := range assigns {
			if strings.EqualFold(a.key, rule.Key) && strings.EqualFold(a.value, rule.Value) {
				return rule.Mode
			}
		}
	}

	return ModeUnknown
}

// ExtractAdminEmail returns the ROOT_ADMIN_EMAIL value from config text,
// with ${VAR:-default} indirection unwrapped to its default. Returns ""
// when absent or when the value is an unresolvable variable reference.
func ExtractAdminEmail(text string) string {
	for _, a := range parseAssignments(text) {
		if a.key == adminEmailKey && a.value != "" && !strings.HasPrefix(a.value, "$") {
			return a.value
		}
	}

	return ""
}

// parseAssignments lifts KEY=value and KEY: value pairs out of env-file and
// compose-file text. YAML list markers, quotes and comments are stripped.
func parseAssignments(text string) []assignment {
	var out []assignment

	sc := bufio.NewScanner(strings.NewReader(text))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		line = strings.TrimPrefix(line, "- ")
		line = strings.TrimPrefix(line, "export ")

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		idx := strings.IndexAny(line, "=:")
		if idx <= 0 {
			continue
		}

		key := strings.Trim(strings.TrimSpace(line[:idx]), `"'`)
		if strings.ContainsAny(key, " \t") {
			continue
		}

		out = append(out, assignment{key: key, value: cleanValue(line[idx+1:])})
	}

	return out
}

// cleanValue strips quotes and trailing comments and unwraps ${VAR:-default}.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)

	if i := strings.Index(v, " #"); i >= 0 {
		v = strings.TrimSpace(v[:i])
	}

	v = strings.Trim(v, `"'`)

	if strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}") {
		inner := v[2 : len(v)-1]
		if _, def, ok := strings.Cut(inner, ":-"); ok {
			return strings.Trim(def, `"'`)
		}
	}

	return v
}
