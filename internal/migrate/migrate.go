// Package migrate mirrors a local folder tree into the target through its
// folder API. Files are never uploaded; only the directory structure is
// created. Folders that already exist are reused, so a migration can be
// re-run safely.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/yes1688/arkprobe/internal/arkapi"
)

// ErrNotDirectory is returned when the migration root is not a directory.
var ErrNotDirectory = errors.New("migrate: root is not a directory")

// FolderAPI is the slice of the target API a migration needs.
type FolderAPI interface {
	CreateFolder(ctx context.Context, name string, parentID *int64) (*arkapi.File, error)
	ListAll(ctx context.Context, parentID *int64) ([]arkapi.File, error)
}

// Action is what happened to one local directory.
type Action string

// Actions.
const (
	ActionCreated  Action = "created"
	ActionExisting Action = "existing"
	ActionSkipped  Action = "skipped"
	ActionFailed   Action = "failed"
	ActionPlanned  Action = "planned"
)

// Entry records one visited directory.
type Entry struct {
	Path   string // relative to the root, NFC-normalized, slash-separated
	Action Action
	ID     int64
	Error  string
}

// Result summarizes a migration.
type Result struct {
	Entries []Entry
}

// Count returns how many entries had the given action.
func (r *Result) Count(a Action) int {
	n := 0

	for _, e := range r.Entries {
		if e.Action == a {
			n++
		}
	}

	return n
}

// Options controls which directories are migrated.
type Options struct {
	// SkipSuffixes excludes directories whose name ends with any of these
	// (case-insensitive), e.g. ".md" or ".png".
	SkipSuffixes []string
	// SkipHidden excludes directories whose name starts with a dot.
	SkipHidden bool
	// DryRun walks the tree and reports what would be created without
	// calling the API.
	DryRun bool
}

// Migrator mirrors one local tree.
type Migrator struct {
	api    FolderAPI
	opts   Options
	logger *slog.Logger

	// listings caches each remote parent's children, keyed by parentKey.
	listings map[string][]arkapi.File
}

// New creates a Migrator.
func New(api FolderAPI, opts Options, logger *slog.Logger) *Migrator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Migrator{api: api, opts: opts, logger: logger, listings: make(map[string][]arkapi.File)}
}

// Run mirrors every directory below root (root itself is not created)
// under the target's top level. A folder that fails to be created is
// recorded and its subtree is not visited; the walk continues with its
// siblings. Only a cancelled context or an unreadable root abort the run.
func (m *Migrator) Run(ctx context.Context, root string) (*Result, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	res := &Result{}

	if err := m.walkDir(ctx, root, "", nil, res); err != nil {
		return res, err
	}

	m.logger.Info("migration finished",
		slog.String("root", root),
		slog.Int("created", res.Count(ActionCreated)),
		slog.Int("existing", res.Count(ActionExisting)),
		slog.Int("failed", res.Count(ActionFailed)),
		slog.Bool("dry_run", m.opts.DryRun),
	)

	return res, nil
}

// walkDir visits the directories of fsPath in name order. relPath is the
// NFC-normalized path used for reporting and remote names.
func (m *Migrator) walkDir(ctx context.Context, fsPath, relPath string, parentID *int64, res *Result) error {
	entries, err := os.ReadDir(fsPath)
	if err != nil {
		if relPath == "" {
			return fmt.Errorf("migrate: reading %s: %w", fsPath, err)
		}

		res.Entries = append(res.Entries, Entry{Path: relPath, Action: ActionFailed, Error: err.Error()})
		m.logger.Warn("unreadable directory", slog.String("path", fsPath), slog.String("error", err.Error()))

		return nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		if !entry.IsDir() {
			continue
		}

		if err := m.processDir(ctx, fsPath, relPath, parentID, entry.Name(), res); err != nil {
			return err
		}
	}

	return nil
}

func (m *Migrator) processDir(ctx context.Context, fsParent, relParent string, parentID *int64, originalName string, res *Result) error {
	// macOS stores NFD names; the target compares names byte-wise.
	name := norm.NFC.String(originalName)
	relPath := joinRel(relParent, name)

	if m.skipped(name) {
		res.Entries = append(res.Entries, Entry{Path: relPath, Action: ActionSkipped})
		m.logger.Debug("skipping directory", slog.String("path", relPath))

		return nil
	}

	fsPath := filepath.Join(fsParent, originalName)

	if m.opts.DryRun {
		res.Entries = append(res.Entries, Entry{Path: relPath, Action: ActionPlanned})
		return m.walkDir(ctx, fsPath, relPath, nil, res)
	}

	id, action, err := m.ensureFolder(ctx, name, parentID)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("migrate: %w", ctx.Err())
		}

		res.Entries = append(res.Entries, Entry{Path: relPath, Action: ActionFailed, Error: err.Error()})
		m.logger.Warn("folder not migrated", slog.String("path", relPath), slog.String("error", err.Error()))

		return nil
	}

	res.Entries = append(res.Entries, Entry{Path: relPath, Action: action, ID: id})
	m.logger.Debug("folder migrated", slog.String("path", relPath), slog.String("action", string(action)), slog.Int64("id", id))

	return m.walkDir(ctx, fsPath, relPath, &id, res)
}

// ensureFolder creates name under parentID, or finds the existing folder
// when the target reports a conflict.
func (m *Migrator) ensureFolder(ctx context.Context, name string, parentID *int64) (int64, Action, error) {
	f, err := m.api.CreateFolder(ctx, name, parentID)
	if err == nil {
		return f.ID, ActionCreated, nil
	}

	if !arkapi.IsConflict(err) {
		return 0, "", err
	}

	existing, lookupErr := m.findFolder(ctx, name, parentID)
	if lookupErr != nil {
		return 0, "", fmt.Errorf("folder exists but lookup failed: %w", lookupErr)
	}

	if existing == nil {
		return 0, "", fmt.Errorf("folder %q reported as existing but not listed", name)
	}

	return existing.ID, ActionExisting, nil
}

func (m *Migrator) findFolder(ctx context.Context, name string, parentID *int64) (*arkapi.File, error) {
	key := parentKey(parentID)

	files, ok := m.listings[key]
	if !ok {
		var err error

		files, err = m.api.ListAll(ctx, parentID)
		if err != nil {
			return nil, err
		}

		m.listings[key] = files
	}

	for i := range files {
		if files[i].IsDirectory && norm.NFC.String(files[i].Name) == name {
			return &files[i], nil
		}
	}

	return nil, nil //nolint:nilnil // not found
}

func (m *Migrator) skipped(name string) bool {
	if m.opts.SkipHidden && strings.HasPrefix(name, ".") {
		return true
	}

	lower := strings.ToLower(name)

	for _, suffix := range m.opts.SkipSuffixes {
		if suffix != "" && strings.HasSuffix(lower, strings.ToLower(suffix)) {
			return true
		}
	}

	return false
}

func parentKey(id *int64) string {
	if id == nil {
		return "root"
	}

	return fmt.Sprint(*id)
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}

	return parent + "/" + name
}
