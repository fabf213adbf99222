package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownSectionKeys lists the valid keys of each top-level section.
// Sections whose values are free-form maps (probe.categories) accept any key.
var knownSectionKeys = map[string][]string{
	"target":    {"base_url", "candidates", "admin_email", "identity_header", "config_source"},
	"probe":     {"health_paths", "auth_status_path", "realtime_path", "timeout", "exhaustive", "categories"},
	"execution": {"suite", "timeout", "retries", "backoff", "workers", "deadline"},
	"report":    {"dir", "formats", "critical_threshold", "other_threshold"},
	"history":   {"enabled", "path"},
	"logging":   {"log_level", "log_format"},
	"load":      {"workers", "requests", "path", "timeout", "min_success_rate"},
	"migrate":   {"skip_suffixes", "skip_hidden"},
}

// knownSections is the sorted list of section names for Levenshtein matching.
// Sorted for deterministic suggestions when two candidates have the same
// edit distance.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownSectionKeys))
	for k := range knownSectionKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	for _, key := range undecoded {
		if err := buildKeyError(key); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// buildKeyError creates a descriptive error for an unknown key, optionally
// suggesting the closest known key in the same section.
func buildKeyError(key toml.Key) error {
	if len(key) == 0 {
		return nil
	}

	section := key[0]

	known, ok := knownSectionKeys[section]
	if !ok {
		if suggestion := closestMatch(section, knownSections); suggestion != "" {
			return fmt.Errorf("unknown config section %q: did you mean %q?", section, suggestion)
		}

		return fmt.Errorf("unknown config section %q", section)
	}

	if len(key) == 1 {
		return fmt.Errorf("config key %q must be a table", section)
	}

	field := key[1]

	sorted := append([]string(nil), known...)
	sort.Strings(sorted)

	if suggestion := closestMatch(field, sorted); suggestion != "" {
		return fmt.Errorf("unknown config key %q: did you mean %q?",
			strings.Join([]string{section, field}, "."), section+"."+suggestion)
	}

	return fmt.Errorf("unknown config key %q", section+"."+field)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization: two rows instead of a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
