package report

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileName(t *testing.T) {
	assert.Equal(t, "run-20260304-101112.json", FileName(testStart))
}

func TestWriteJSON_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	rr := sampleReport()

	path, err := WriteJSON(dir, rr)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-20260304-101112.json"), path)

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, rr.RunID, got.RunID)
	assert.Equal(t, rr.Summary.Total, got.Summary.Total)
	require.Len(t, got.Results, 3)
	assert.Equal(t, KindStatus, got.Results[1].ErrorKind)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteJSON_SameSecondGetsSuffix(t *testing.T) {
	dir := t.TempDir()

	first, err := WriteJSON(dir, sampleReport())
	require.NoError(t, err)

	second, err := WriteJSON(dir, sampleReport())
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, filepath.Join(dir, "run-20260304-101112-2.json"), second)
}

func TestWriteJSON_Nil(t *testing.T) {
	_, err := WriteJSON(t.TempDir(), nil)
	assert.Error(t, err)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0o600))
	_, err = Load(bad)
	assert.ErrorContains(t, err, "decoding")

	empty := filepath.Join(dir, "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte(`{"run_id":"x"}`), 0o600))
	_, err = Load(empty)
	assert.ErrorContains(t, err, "no results")
}

func TestSiblingPath(t *testing.T) {
	assert.Equal(t, "/r/run-1.html", SiblingPath("/r/run-1.json", ".html"))
	assert.Equal(t, "/r/run-1.md", SiblingPath("/r/run-1.json", ".md"))
}

func TestWriteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "r.md")
	require.NoError(t, WriteFile(path, []byte("# hi")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "# hi", string(data))
}
