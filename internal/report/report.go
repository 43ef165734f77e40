// Package report renders inspection results and writes them to a workspace.
//
// Rendering is pure: Text, Markdown and YAML only build bytes. Write is the
// single step that touches the filesystem, and it replaces files atomically.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"qcdb/internal/checklist"
)

// Format selects a report rendering.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatYAML     Format = "yaml"
)

// ParseFormat accepts a format name; empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatMarkdown, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("report: unknown format %q", s)
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatYAML:
		return "yaml"
	}
	return "txt"
}

// Render produces a report in the given format. Text reports are never
// styled here; styling is for terminals only.
func Render(r *checklist.Result, f Format) ([]byte, error) {
	switch f {
	case FormatMarkdown:
		return Markdown(r)
	case FormatYAML:
		return YAML(r)
	case FormatText, "":
		var buf bytes.Buffer
		if err := Text(&buf, r, false); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("report: unknown format %q", f)
}

// YAML renders the full result.
func YAML(r *checklist.Result) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return nil, fmt.Errorf("report: encode yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("report: encode yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// FileName returns "<timestamp>_<id>.<ext>" for a result. The timestamp is
// UTC and sorts lexically.
func FileName(r *checklist.Result, f Format) string {
	id := r.ID
	if id == "" {
		id = "unsaved"
	}
	return fmt.Sprintf("%s_%s.%s", r.InspectedAt.UTC().Format("20060102T150405Z"), id, f.Ext())
}

// Write renders r and writes it to dir/FileName(r, f). It returns the path.
func Write(dir string, r *checklist.Result, f Format) (string, error) {
	data, err := Render(r, f)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(r, f))
	if err := writeFileAtomic(path, data); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

// writeFileAtomic writes data to a hidden temp file in the same directory,
// syncs it and renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(name)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		_ = os.Remove(name)
		return err
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return err
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return nil
	}
	defer d.Close()
	return d.Sync()
}
