// Package workspace manages the ~/.qcdb/ directory hierarchy.
//
// Directory layout:
//
//	~/.qcdb/<workspace>/
//	    settings.yaml     # inspection, watch and report settings
//	    qc.db             # checklist, Default DB and inspection history
//	    reports/          # rendered inspection reports
//
// QCDB_HOME, when set, replaces ~/.qcdb.
package workspace

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"qcdb/internal/settings"
	"qcdb/internal/store"
)

const (
	dbFile     = "qc.db"
	reportsDir = "reports"
)

// Workspace is a named directory under ~/.qcdb/.
type Workspace struct {
	Name string
	Dir  string
}

// baseDir returns ~/.qcdb, or $QCDB_HOME when set.
func baseDir() (string, error) {
	if dir := os.Getenv("QCDB_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".qcdb"), nil
}

func validName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid workspace name %q", name)
	}
	return nil
}

// Init creates ~/.qcdb/<name>/ with default settings and an empty reports
// directory. It errors if the workspace already exists.
func Init(name string) (*Workspace, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	base, err := baseDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(base, name)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("workspace %q already exists at %s", name, dir)
	}
	if err := os.MkdirAll(filepath.Join(dir, reportsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	w := &Workspace{Name: name, Dir: dir}
	if err := w.SaveSettings(settings.Default()); err != nil {
		return nil, err
	}
	return w, nil
}

// Open opens an existing workspace. Returns an error if not found.
func Open(name string) (*Workspace, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	base, err := baseDir()
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(base, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("workspace %q not found (run 'qcdb init %s' first)", name, name)
	}
	return &Workspace{Name: name, Dir: dir}, nil
}

// List returns the names of all workspaces, sorted.
func List() ([]string, error) {
	base, err := baseDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read qcdb dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a workspace and all its contents.
func Remove(name string) error {
	w, err := Open(name)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	return nil
}

// DBPath returns the database file path.
func (w *Workspace) DBPath() string { return filepath.Join(w.Dir, dbFile) }

// ReportsDir returns the report output directory.
func (w *Workspace) ReportsDir() string { return filepath.Join(w.Dir, reportsDir) }

// SettingsPath returns the settings file path.
func (w *Workspace) SettingsPath() string { return filepath.Join(w.Dir, settings.FileName) }

// LoadSettings reads settings.yaml; a missing file yields defaults.
func (w *Workspace) LoadSettings() (*settings.Settings, error) {
	return settings.Load(w.SettingsPath())
}

// SaveSettings validates and writes settings.yaml.
func (w *Workspace) SaveSettings(s *settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return settings.Save(w.SettingsPath(), s)
}

// OpenStore opens the workspace database.
func (w *Workspace) OpenStore(logger *zap.Logger) (*store.Store, error) {
	return store.Open(w.DBPath(), store.WithLogger(logger))
}

// ExportReports copies every report into dst/<workspace>-reports/ and writes
// description to index.md there. It errors if the target already exists.
func (w *Workspace) ExportReports(dst, description string) (string, error) {
	target := filepath.Join(dst, w.Name+"-reports")
	if _, err := os.Stat(target); err == nil {
		return "", fmt.Errorf("export target %q already exists", target)
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	entries, err := os.ReadDir(w.ReportsDir())
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read reports dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := copyFile(filepath.Join(w.ReportsDir(), e.Name()), filepath.Join(target, e.Name())); err != nil {
			return "", fmt.Errorf("copy %s: %w", e.Name(), err)
		}
	}
	if err := os.WriteFile(filepath.Join(target, "index.md"), []byte(description), 0o644); err != nil {
		return "", fmt.Errorf("write index.md: %w", err)
	}
	return target, nil
}

// copyFile copies a single file from src to dst, preserving permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
