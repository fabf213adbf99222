package suite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

func snapshot(mode envprobe.Mode, auth envprobe.AuthSignal) *envprobe.Snapshot {
	return &envprobe.Snapshot{
		Endpoints: []envprobe.Endpoint{
			{BaseURL: "http://a:1", Category: envprobe.CategoryHealth, StatusCode: 200},
			{BaseURL: "http://a:1", Category: "files", StatusCode: 200},
		},
		Mode: mode,
		Auth: auth,
	}
}

func TestPredicateEnv(t *testing.T) {
	env := PredicateEnv(snapshot(envprobe.ModeProduction, envprobe.AuthEnforced))

	assert.Equal(t, "production", env["mode"])
	assert.Equal(t, "enforced", env["auth"])
	assert.Equal(t, true, env["reachable"])
	assert.Equal(t, false, env["realtime"])
	assert.Equal(t, false, env["admin"])
	assert.Equal(t, []string{"files"}, env["categories"])
}

func TestSkipReason(t *testing.T) {
	tmpl := &Template{
		Name:     "unauthorized",
		Path:     "/api/files",
		Expect:   []int{401, 403},
		SkipWhen: []string{`mode == "development"`, `auth == "bypassed"`},
	}

	tests := []struct {
		name       string
		snap       *envprobe.Snapshot
		wantSkip   bool
		wantReason string
	}{
		{"development", snapshot(envprobe.ModeDevelopment, envprobe.AuthUnknown), true, `skip_when matched: mode == "development"`},
		{"bypassed", snapshot(envprobe.ModeUnknown, envprobe.AuthBypassed), true, `skip_when matched: auth == "bypassed"`},
		{"production enforced", snapshot(envprobe.ModeProduction, envprobe.AuthEnforced), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason, skip, err := tmpl.SkipReason(tt.snap)
			require.NoError(t, err)
			assert.Equal(t, tt.wantSkip, skip)
			assert.Equal(t, tt.wantReason, reason)
		})
	}
}

func TestSkipReason_CategoryMembership(t *testing.T) {
	tmpl := &Template{SkipWhen: []string{`!("admin" in categories)`}}

	_, skip, err := tmpl.SkipReason(snapshot(envprobe.ModeUnknown, envprobe.AuthUnknown))
	require.NoError(t, err)
	assert.True(t, skip)

	_, skip, err = tmpl.SkipReason(&envprobe.Snapshot{Endpoints: []envprobe.Endpoint{
		{Category: envprobe.CategoryHealth}, {Category: "admin"},
	}})
	require.NoError(t, err)
	assert.False(t, skip)
}

func TestSkipReason_CompileErrorIsReturned(t *testing.T) {
	tmpl := &Template{SkipWhen: []string{"undefined_var == 1"}}

	_, _, err := tmpl.SkipReason(snapshot(envprobe.ModeUnknown, envprobe.AuthUnknown))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile skip_when")
}

func TestSkipReason_NoPredicates(t *testing.T) {
	reason, skip, err := (&Template{}).SkipReason(&envprobe.Snapshot{})
	require.NoError(t, err)
	assert.False(t, skip)
	assert.Empty(t, reason)
}
