package suite

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yes1688/arkprobe/internal/envprobe"
)

func TestDefault_LoadsAndValidates(t *testing.T) {
	s, err := Default()
	require.NoError(t, err)

	assert.Equal(t, "memoryark-default", s.Name)
	require.NotEmpty(t, s.Cases)

	names := make([]string, 0, len(s.Cases))
	for _, c := range s.Cases {
		names = append(names, c.Name)
		assert.Len(t, c.skip, len(c.SkipWhen), "predicates compiled for %s", c.Name)
	}

	assert.Contains(t, names, "Health Check")
	assert.Contains(t, names, "Unauthorized Access")
	assert.Contains(t, names, "Realtime Handshake")
}

func TestLoad_Minimal(t *testing.T) {
	s, err := Load(strings.NewReader(`
name: mini
cases:
  - name: health
    path: /api/health
    expect: [200]
`))
	require.NoError(t, err)
	require.Len(t, s.Cases, 1)

	c := s.Cases[0]
	assert.Equal(t, "GET", c.EffectiveMethod())
	assert.Equal(t, PriorityImportant, c.EffectivePriority())
	assert.Zero(t, c.TimeoutDuration())
	assert.False(t, c.IsAbsolute())
}

func TestLoad_UnknownFieldRejected(t *testing.T) {
	_, err := Load(strings.NewReader(`
name: typo
cases:
  - name: health
    path: /api/health
    expected: [200]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected")
}

func TestLoad_OverridesAndBodies(t *testing.T) {
	s, err := Load(strings.NewReader(`
name: full
cases:
  - name: upload
    method: POST
    path: /api/files/upload
    category: files
    auth: true
    expect: [201]
    timeout: 5s
    retries: 1
    body:
      multipart:
        filename: a.txt
        content: hello
        fields:
          category_id: "3"
    overrides:
      production:
        expect: [401, 403]
        headers:
          X-Extra: "1"
  - name: create folder
    method: POST
    path: http://other:9000/api/folders
    expect: [201, 409]
    body:
      json:
        name: docs
        parent_id: null
`))
	require.NoError(t, err)

	up := s.Cases[0]
	assert.Equal(t, 5*time.Second, up.TimeoutDuration())
	require.NotNil(t, up.Retries)
	assert.Equal(t, 1, *up.Retries)
	assert.Equal(t, FileFieldDefault, up.Body.Multipart.FieldName())
	assert.Equal(t, []int{401, 403}, up.Overrides[envprobe.ModeProduction].Expect)

	folder := s.Cases[1]
	assert.True(t, folder.IsAbsolute())

	raw, err := json.Marshal(folder.Body.JSON)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"docs","parent_id":null}`, string(raw))
}

func TestValidate_AccumulatesErrors(t *testing.T) {
	_, err := Load(strings.NewReader(`
name: broken
cases:
  - name: a
    method: FETCH
    path: api/health
    expect: []
    priority: urgent
    timeout: soon
    retries: 50
    skip_when: ["mode +"]
  - name: a
    path: /x
    expect: [99, 600]
    overrides:
      dev:
        expect: []
    body:
      json: {a: 1}
      multipart:
        filename: f
`))
	require.Error(t, err)

	msg := err.Error()
	for _, want := range []string{
		`method: unsupported "FETCH"`,
		`path: "api/health" must start with /`,
		"expect: must list at least one status",
		`priority: unknown "urgent"`,
		`timeout: invalid positive duration "soon"`,
		"retries: must be between 0 and 10",
		`compile skip_when "mode +"`,
		"duplicate name",
		"status 99 outside 100-599",
		"status 600 outside 100-599",
		`overrides: unknown mode "dev"`,
		"overrides.dev.expect: must list at least one status",
		"json and multipart are mutually exclusive",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidate_EmptySuite(t *testing.T) {
	err := (&Suite{Name: "empty"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no cases")
}

func TestValidate_NonBooleanPredicate(t *testing.T) {
	err := (&Suite{Cases: []*Template{{
		Name: "x", Path: "/x", Expect: []int{200}, SkipWhen: []string{`mode + "x"`},
	}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "compile skip_when")
}

func TestValidate_MultipartNeedsFilename(t *testing.T) {
	err := (&Suite{Cases: []*Template{{
		Name: "x", Path: "/x", Expect: []int{200}, Body: &Body{Multipart: &Multipart{Content: "c"}},
	}}}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multipart.filename")
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "suite.yaml")
	require.NoError(t, os.WriteFile(path, DefaultYAML(), 0o600))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "memoryark-default", s.Name)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "suite: open")
}

func TestGenerateJSONSchema(t *testing.T) {
	data, err := GenerateJSONSchema()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "arkprobe test suite", doc["title"])
	assert.Contains(t, string(data), "skip_when")
	assert.Contains(t, string(data), "require_data")
}
