package config

import (
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildKeyError_KeySuggestion(t *testing.T) {
	err := buildKeyError(toml.Key{"execution", "worker"})
	require.Error(t, err)
	assert.Equal(t, `unknown config key "execution.worker": did you mean "execution.workers"?`, err.Error())
}

func TestBuildKeyError_NoSuggestion(t *testing.T) {
	err := buildKeyError(toml.Key{"execution", "completely_unrelated"})
	require.Error(t, err)
	assert.Equal(t, `unknown config key "execution.completely_unrelated"`, err.Error())
}

func TestBuildKeyError_SectionSuggestion(t *testing.T) {
	err := buildKeyError(toml.Key{"reprot", "dir"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown config section "reprot": did you mean "report"?`)
}

func TestBuildKeyError_UnknownTopLevel(t *testing.T) {
	err := buildKeyError(toml.Key{"parallel_downloads"})
	require.Error(t, err)
	assert.Equal(t, `unknown config section "parallel_downloads"`, err.Error())
}

func TestBuildKeyError_SectionUsedAsScalar(t *testing.T) {
	err := buildKeyError(toml.Key{"target"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a table")
}

func TestCheckUnknownKeys_ViaDecode(t *testing.T) {
	cfg := DefaultConfig()

	md, err := toml.Decode(`
[logging]
log_levl = "debug"
`, cfg)
	require.NoError(t, err)

	err = checkUnknownKeys(&md)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `did you mean "logging.log_level"?`)
}

func TestCheckUnknownKeys_CleanDecode(t *testing.T) {
	cfg := DefaultConfig()

	md, err := toml.Decode(`
[probe.categories]
anything = "/api/anything"
`, cfg)
	require.NoError(t, err)
	assert.NoError(t, checkUnknownKeys(&md))
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"workers", "worker", 1},
		{"same", "same", 0},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, levenshtein(tt.a, tt.b), "%q vs %q", tt.a, tt.b)
	}
}

func TestClosestMatch_TooFar(t *testing.T) {
	assert.Empty(t, closestMatch("zzzzzzzz", []string{"target", "probe"}))
}
