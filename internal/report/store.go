package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FilePerms is used for report files; they carry no secrets.
const FilePerms = 0o644

// DirPerms is used when creating the report directory.
const DirPerms = 0o755

// maxNameCollisions bounds the -N suffix search for same-second runs.
const maxNameCollisions = 100

const fileTimeLayout = "20060102-150405"

// FileName returns the canonical report name for a run started at t.
func FileName(t time.Time) string {
	return "run-" + t.Format(fileTimeLayout) + ".json"
}

// WriteJSON writes rr to dir as run-YYYYMMDD-HHMMSS.json and returns the
// path. Two runs in the same second get a numeric suffix instead of
// overwriting each other. The write is atomic: readers never see a
// partial report.
func WriteJSON(dir string, rr *RunReport) (string, error) {
	if rr == nil {
		return "", errors.New("report: nil run report")
	}

	data, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return "", fmt.Errorf("report: encoding: %w", err)
	}

	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return "", fmt.Errorf("report: creating directory %s: %w", dir, mkErr)
	}

	path, err := freePath(dir, FileName(rr.Summary.StartedAt))
	if err != nil {
		return "", err
	}

	if err := writeAtomic(path, data); err != nil {
		return "", err
	}

	return path, nil
}

// freePath returns dir/name, or dir/name-N.json for the first N that does
// not exist yet.
func freePath(dir, name string) (string, error) {
	path := filepath.Join(dir, name)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return path, nil
	}

	stem := strings.TrimSuffix(name, ".json")

	for n := 2; n <= maxNameCollisions; n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s-%d.json", stem, n))
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
	}

	return "", fmt.Errorf("report: too many reports named %s in %s", name, dir)
}

// Load reads a JSON report written by WriteJSON.
func Load(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("report: reading %s: %w", path, err)
	}

	var rr RunReport
	if err := json.Unmarshal(data, &rr); err != nil {
		return nil, fmt.Errorf("report: decoding %s: %w", path, err)
	}

	if rr.Results == nil {
		return nil, fmt.Errorf("report: %s has no results field", path)
	}

	return &rr, nil
}

// WriteFile atomically writes a derived document (HTML, Markdown) to path.
func WriteFile(path string, data []byte) error {
	if mkErr := os.MkdirAll(filepath.Dir(path), DirPerms); mkErr != nil {
		return fmt.Errorf("report: creating directory %s: %w", filepath.Dir(path), mkErr)
	}

	return writeAtomic(path, data)
}

// writeAtomic writes data to a temp file in the same directory, syncs it,
// and renames it over path.
func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*.tmp")
	if err != nil {
		return fmt.Errorf("report: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		return fmt.Errorf("report: setting permissions: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("report: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("report: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("report: closing: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("report: renaming: %w", err)
	}

	success = true

	return nil
}

// SiblingPath returns jsonPath with its extension replaced by ext
// (".html", ".md").
func SiblingPath(jsonPath, ext string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ext
}
