package report

// markdown.go — Markdown reports: a YAML frontmatter header carrying the
// verdict and counts, then tables of failures, results and skipped items.

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"qcdb/internal/checklist"
)

// Header is the frontmatter of a markdown report.
type Header struct {
	ID              string    `yaml:"id"`
	Source          string    `yaml:"source"`
	ConfigurationID int64     `yaml:"configuration_id,omitempty"`
	InspectedAt     time.Time `yaml:"inspected_at"`
	Status          string    `yaml:"status"`
	Verdict         string    `yaml:"verdict_mode"`
	Total           int       `yaml:"total"`
	Passed          int       `yaml:"passed"`
	Failed          int       `yaml:"failed"`
	Missing         int       `yaml:"missing,omitempty"`
	PassRate        float64   `yaml:"pass_rate"`
	Tags            []string  `yaml:"tags"`
}

func headerOf(r *checklist.Result) Header {
	return Header{
		ID:              r.ID,
		Source:          r.Source,
		ConfigurationID: r.ConfigurationID,
		InspectedAt:     r.InspectedAt.UTC(),
		Status:          r.Status(),
		Verdict:         string(r.Verdict),
		Total:           r.Summary.Total,
		Passed:          r.Summary.Passed,
		Failed:          r.Summary.Failed,
		Missing:         r.Summary.Missing,
		PassRate:        r.Summary.PassRate,
		Tags:            []string{"qc/inspection", "qc/" + strings.ToLower(r.Status())},
	}
}

// Markdown renders r as a markdown document with YAML frontmatter.
func Markdown(r *checklist.Result) ([]byte, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# QC Inspection: %s\n\n", mdEscape(r.Source))
	fmt.Fprintf(&b, "- **Verdict**: %s (%s)\n", r.Status(), r.Verdict)
	fmt.Fprintf(&b, "- **Inspected**: %s\n", r.InspectedAt.UTC().Format(time.RFC3339))
	if r.ConfigurationID != 0 {
		fmt.Fprintf(&b, "- **Configuration**: %d\n", r.ConfigurationID)
	}
	fmt.Fprintf(&b, "- **Pass rate**: %.1f%% (%d passed, %d failed)\n", r.Summary.PassRate, r.Summary.Passed, r.Summary.Failed)
	fmt.Fprintf(&b, "- **Weighted failures**: %g\n", r.Summary.WeightedFailures)
	for _, reason := range r.Reasons {
		fmt.Fprintf(&b, "- **Reason**: %s\n", mdEscape(reason))
	}

	if len(r.Summary.BySeverity) > 0 {
		b.WriteString("\n## By Severity\n\n")
		b.WriteString("| Severity | Passed | Failed |\n")
		b.WriteString("|----------|--------|--------|\n")
		for _, sev := range checklist.Severities {
			t, ok := r.Summary.BySeverity[sev]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "| %s | %d | %d |\n", sev, t.Passed, t.Failed)
		}
	}

	if fails := r.Failures(); len(fails) > 0 {
		b.WriteString("\n## Failures\n\n")
		writeResultTable(&b, fails)
	}

	if len(r.Results) > 0 {
		b.WriteString("\n## All Results\n\n")
		writeResultTable(&b, r.Results)
	}

	if len(r.Excepted) > 0 {
		b.WriteString("\n## Excepted\n\n")
		for _, name := range r.Excepted {
			b.WriteString("- " + mdEscape(name) + "\n")
		}
	}
	if len(r.Unmatched) > 0 {
		b.WriteString("\n## Unmatched\n\n")
		for _, name := range r.Unmatched {
			b.WriteString("- " + mdEscape(name) + "\n")
		}
	}
	return withFrontmatter(headerOf(r), b.String())
}

func writeResultTable(b *strings.Builder, rows []checklist.ItemResult) {
	b.WriteString("| Item | Value | Spec | Severity | Result | Message |\n")
	b.WriteString("|------|-------|------|----------|--------|---------|\n")
	for _, ir := range rows {
		name := ir.ItemName
		if ir.FileItem != "" && ir.FileItem != ir.ItemName {
			name += " (" + ir.FileItem + ")"
		}
		status := "PASS"
		if !ir.Pass {
			status = "FAIL"
		}
		spec := ir.Spec
		if ir.Overridden {
			spec += " *"
		}
		fmt.Fprintf(b, "| %s | %s | %s | %s | %s | %s |\n",
			mdEscape(name), mdEscape(ir.Value), mdEscape(spec), ir.Severity, status, mdEscape(ir.Message))
	}
}

// mdEscape keeps table cells on one row.
func mdEscape(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

// ReadHeader parses the frontmatter of a markdown report.
func ReadHeader(data []byte) (*Header, error) {
	fm, _, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	var h Header
	if err := yaml.Unmarshal(fm, &h); err != nil {
		return nil, fmt.Errorf("frontmatter: parse: %w", err)
	}
	return &h, nil
}

// Index builds a markdown index of every markdown report in dir, oldest
// first, headed by title. Files without a readable header are listed as
// unreadable rather than failing the index.
func Index(dir, title string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return "", fmt.Errorf("read reports dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".md") && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(names) == 0 {
		b.WriteString("No markdown reports.\n")
		return b.String(), nil
	}
	b.WriteString("| Report | Source | Status | Pass rate |\n")
	b.WriteString("|--------|--------|--------|-----------|\n")
	for _, n := range names {
		data, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return "", fmt.Errorf("read %s: %w", n, err)
		}
		h, err := ReadHeader(data)
		if err != nil {
			fmt.Fprintf(&b, "| [%s](%s) | | unreadable | |\n", n, n)
			continue
		}
		fmt.Fprintf(&b, "| [%s](%s) | %s | %s | %.1f%% |\n", n, n, mdEscape(h.Source), h.Status, h.PassRate)
	}
	return b.String(), nil
}
