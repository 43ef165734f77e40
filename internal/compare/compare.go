// Package compare lines up parameter values across dumps, or a dump
// against the Default DB of its equipment type.
package compare

import (
	"sort"
	"strconv"
	"strings"

	"qcdb/internal/dump"
	"qcdb/internal/store"
)

// Row is one item across every compared file.
type Row struct {
	ItemName string `yaml:"item_name"`
	// Values holds one entry per file, in Matrix.Files order. Missing
	// entries are empty strings and flagged in Present.
	Values  []string `yaml:"values"`
	Present []bool   `yaml:"present"`
	Differs bool     `yaml:"differs"`
	Missing []string `yaml:"missing,omitempty"`
}

// Matrix is the result of comparing several dumps.
type Matrix struct {
	Files []string `yaml:"files"`
	Rows  []Row    `yaml:"rows"`
}

// Files compares dumps item by item. Rows are sorted by item name. A row
// differs when its non-empty values disagree; numeric values compare by
// value, so "1.0" and "1" are equal.
func Files(files ...*dump.File) *Matrix {
	m := &Matrix{}
	values := make([]map[string]string, len(files))
	names := make(map[string]struct{})
	for i, f := range files {
		m.Files = append(m.Files, f.Name)
		values[i] = f.Values()
		for n := range values[i] {
			names[n] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for n := range names {
		sorted = append(sorted, n)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		row := Row{
			ItemName: name,
			Values:   make([]string, len(files)),
			Present:  make([]bool, len(files)),
		}
		first := ""
		for i := range files {
			v, ok := values[i][name]
			row.Values[i], row.Present[i] = v, ok
			if !ok {
				row.Missing = append(row.Missing, m.Files[i])
				continue
			}
			if strings.TrimSpace(v) == "" {
				continue
			}
			if first == "" {
				first = v
			} else if !Equal(first, v) {
				row.Differs = true
			}
		}
		m.Rows = append(m.Rows, row)
	}
	return m
}

// OnlyDiffs returns a copy holding only rows that differ or are missing from
// some file.
func (m *Matrix) OnlyDiffs() *Matrix {
	out := &Matrix{Files: m.Files}
	for _, r := range m.Rows {
		if r.Differs || len(r.Missing) > 0 {
			out.Rows = append(out.Rows, r)
		}
	}
	return out
}

// Equal compares two dump values: numerically when both parse as numbers,
// otherwise as trimmed case-sensitive strings.
func Equal(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == b {
		return true
	}
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	return errA == nil && errB == nil && fa == fb
}

// ---------------------------------------------------------------------------
// Against the Default DB
// ---------------------------------------------------------------------------

// Status classifies a file value against its default.
type Status string

const (
	StatusMatch    Status = "match"
	StatusMismatch Status = "mismatch"
	StatusMissing  Status = "missing"
	// StatusExtra marks a file item with no Default DB entry.
	StatusExtra Status = "extra"
)

// DefaultRow is one item of a dump compared to the Default DB.
type DefaultRow struct {
	ItemName string `yaml:"item_name"`
	Default  string `yaml:"default,omitempty"`
	Value    string `yaml:"value,omitempty"`
	Status   Status `yaml:"status"`
	// InRange is set for numeric values checked against the default's spec
	// range; a value outside it is a mismatch even if it differs only
	// slightly from the default.
	InRange *bool `yaml:"in_range,omitempty"`
}

// DefaultReport is the outcome of AgainstDefault.
type DefaultReport struct {
	File   string         `yaml:"file"`
	Rows   []DefaultRow   `yaml:"rows"`
	Counts map[Status]int `yaml:"counts"`
}

// AgainstDefault compares a dump with Default DB values. A default with a
// spec range matches any numeric value inside it; otherwise the value must
// equal the default.
func AgainstDefault(f *dump.File, defaults []store.DefaultValue) *DefaultReport {
	rep := &DefaultReport{File: f.Name, Counts: make(map[Status]int)}
	values := f.Values()
	known := make(map[string]bool, len(defaults))
	for _, d := range defaults {
		known[d.ItemName] = true
		row := DefaultRow{ItemName: d.ItemName, Default: d.Value}
		v, ok := values[d.ItemName]
		switch {
		case !ok:
			row.Status = StatusMissing
		case d.SpecMin != nil || d.SpecMax != nil:
			row.Value = v
			in := false
			if x, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				in = (d.SpecMin == nil || x >= *d.SpecMin) && (d.SpecMax == nil || x <= *d.SpecMax)
			}
			row.InRange = &in
			row.Status = StatusMismatch
			if in {
				row.Status = StatusMatch
			}
		default:
			row.Value = v
			row.Status = StatusMismatch
			if Equal(v, d.Value) {
				row.Status = StatusMatch
			}
		}
		rep.Rows = append(rep.Rows, row)
	}
	for _, name := range f.Names() {
		if known[name] {
			continue
		}
		known[name] = true
		rep.Rows = append(rep.Rows, DefaultRow{ItemName: name, Value: values[name], Status: StatusExtra})
	}
	sort.SliceStable(rep.Rows, func(i, j int) bool { return rep.Rows[i].ItemName < rep.Rows[j].ItemName })
	for _, r := range rep.Rows {
		rep.Counts[r.Status]++
	}
	return rep
}
