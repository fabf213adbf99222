package envprobe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectMode(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Mode
	}{
		{"empty", "", ModeUnknown},
		{"no indicators", "services:\n  web:\n    image: nginx:latest\n", ModeUnknown},
		{"env file dev", "DEVELOPMENT_MODE=true\n", ModeDevelopment},
		{"compose list dev", "    environment:\n      - GIN_MODE=debug\n", ModeDevelopment},
		{"compose map prod", "    environment:\n      GIN_MODE: release\n", ModeProduction},
		{"quoted value", `NODE_ENV: "production"`, ModeProduction},
		{"testing", "GIN_MODE=test", ModeTesting},
		{"case insensitive value", "DEV_MODE=TRUE", ModeDevelopment},
		{"commented out", "# DEVELOPMENT_MODE=true\nGIN_MODE=release", ModeProduction},
		{"defaulted variable", "DEVELOPMENT_MODE=${DEVELOPMENT_MODE:-false}", ModeProduction},
		{"export prefix", "export NODE_ENV=development", ModeDevelopment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMode(tt.text, nil))
		})
	}
}

func TestDetectMode_FirstRuleWins(t *testing.T) {
	// Both a development and a production indicator are present; the rule
	// order decides, not the line order.
	text := "GIN_MODE=release\nDEVELOPMENT_MODE=true\n"
	assert.Equal(t, ModeDevelopment, DetectMode(text, nil))

	rules := []ModeRule{
		{Key: "GIN_MODE", Value: "release", Mode: ModeProduction},
		{Key: "DEVELOPMENT_MODE", Value: "true", Mode: ModeDevelopment},
	}
	assert.Equal(t, ModeProduction, DetectMode(text, rules))
}

func TestExtractAdminEmail(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"absent", "GIN_MODE=debug", ""},
		{"env file", "ROOT_ADMIN_EMAIL=root@example.com", "root@example.com"},
		{"compose default", "      - ROOT_ADMIN_EMAIL=${ROOT_ADMIN_EMAIL:-admin@church.org}", "admin@church.org"},
		{"compose map quoted", `      ROOT_ADMIN_EMAIL: "ops@example.com"`, "ops@example.com"},
		{"unresolvable variable", "ROOT_ADMIN_EMAIL=${ROOT_ADMIN_EMAIL}", ""},
		{"trailing comment", "ROOT_ADMIN_EMAIL=a@b.c # the owner", "a@b.c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractAdminEmail(tt.text))
		})
	}
}

func TestParseAssignments_SkipsNonAssignments(t *testing.T) {
	got := parseAssignments("services:\n  some key: value\n=orphan\nKEY=v\n")
	assert.Equal(t, []assignment{{key: "services", value: ""}, {key: "KEY", value: "v"}}, got)
}
