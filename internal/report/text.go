package report

// text.go — Terminal report. Styling uses lipgloss; with styled=false the
// output is plain text suitable for files and pipes.

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"qcdb/internal/checklist"
)

var (
	passColor  = lipgloss.Color("#8BC34A")
	failColor  = lipgloss.Color("#e53935")
	warnColor  = lipgloss.Color("#FFC107")
	mutedColor = lipgloss.Color("#6b7280")

	titleStyle  = lipgloss.NewStyle().Bold(true)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(passColor)
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(failColor)
	headerStyle = lipgloss.NewStyle().Bold(true).Underline(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(mutedColor)

	severityStyles = map[checklist.Severity]lipgloss.Style{
		checklist.SeverityCritical: lipgloss.NewStyle().Bold(true).Foreground(failColor),
		checklist.SeverityHigh:     lipgloss.NewStyle().Foreground(failColor),
		checklist.SeverityMedium:   lipgloss.NewStyle().Foreground(warnColor),
		checklist.SeverityLow:      lipgloss.NewStyle().Foreground(mutedColor),
	}
)

// painter applies styles only when styling is on.
type painter bool

func (p painter) paint(st lipgloss.Style, s string) string {
	if !p {
		return s
	}
	return st.Render(s)
}

// Text writes a human-readable report of r to w.
func Text(w io.Writer, r *checklist.Result, styled bool) error {
	p := painter(styled)
	var b strings.Builder

	b.WriteString(p.paint(titleStyle, "QC Inspection: "+r.Source) + "\n")
	meta := fmt.Sprintf("id %s  inspected %s", r.ID, r.InspectedAt.UTC().Format("2006-01-02 15:04:05Z"))
	if r.ConfigurationID != 0 {
		meta += fmt.Sprintf("  configuration %d", r.ConfigurationID)
	}
	b.WriteString(p.paint(mutedStyle, meta) + "\n\n")

	verdict := p.paint(passStyle, "PASS")
	if !r.Pass {
		verdict = p.paint(failStyle, "FAIL")
	}
	fmt.Fprintf(&b, "Verdict: %s (%s)\n", verdict, r.Verdict)
	for _, reason := range r.Reasons {
		b.WriteString("  - " + reason + "\n")
	}

	s := r.Summary
	fmt.Fprintf(&b, "Checked %d of %d values: %d passed, %d failed (%.1f%%), weighted failures %g\n",
		s.Matched, s.Total, s.Passed, s.Failed, s.PassRate, s.WeightedFailures)
	if s.Missing > 0 || s.Excepted > 0 || s.Ignored > 0 || s.Unmatched > 0 {
		fmt.Fprintf(&b, "Missing %d, excepted %d, ignored %d, unmatched %d\n",
			s.Missing, s.Excepted, s.Ignored, s.Unmatched)
	}

	if len(s.BySeverity) > 0 {
		b.WriteString("\n" + p.paint(headerStyle, "By severity") + "\n")
		for _, sev := range checklist.Severities {
			t, ok := s.BySeverity[sev]
			if !ok {
				continue
			}
			label := p.paint(severityStyles[sev], fmt.Sprintf("%-8s", sev))
			fmt.Fprintf(&b, "  %s %d passed, %d failed\n", label, t.Passed, t.Failed)
		}
	}

	if fails := r.Failures(); len(fails) > 0 {
		b.WriteString("\n" + p.paint(headerStyle, "Failures") + "\n")
		rows := [][]string{{"ITEM", "VALUE", "SPEC", "SEVERITY", "MESSAGE"}}
		for _, ir := range fails {
			name := ir.ItemName
			if ir.FileItem != "" && ir.FileItem != ir.ItemName {
				name += " (" + ir.FileItem + ")"
			}
			spec := ir.Spec
			if ir.Overridden {
				spec += " *"
			}
			rows = append(rows, []string{name, ir.Value, spec, string(ir.Severity), ir.Message})
		}
		writeTable(&b, p, rows, func(row, col int) lipgloss.Style {
			if row == 0 {
				return mutedStyle
			}
			if col == 3 {
				return severityStyles[fails[row-1].Severity]
			}
			return lipgloss.NewStyle()
		})
	}

	if len(r.Excepted) > 0 {
		fmt.Fprintf(&b, "\nExcepted (%d): %s\n", len(r.Excepted), strings.Join(r.Excepted, ", "))
	}
	if len(r.Unmatched) > 0 {
		fmt.Fprintf(&b, "\n%s\n", p.paint(mutedStyle, fmt.Sprintf("Unmatched (%d): %s", len(r.Unmatched), strings.Join(r.Unmatched, ", "))))
	}

	_, err := io.WriteString(w, b.String())
	return err
}

// writeTable pads cells to column width before styling them so ANSI codes
// never affect alignment. The last column is not padded.
func writeTable(b *strings.Builder, p painter, rows [][]string, style func(row, col int) lipgloss.Style) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	for ri, row := range rows {
		b.WriteString("  ")
		for ci, cell := range row {
			if ci < len(row)-1 {
				cell += strings.Repeat(" ", widths[ci]-lipgloss.Width(cell)) + "  "
			}
			b.WriteString(p.paint(style(ri, ci), cell))
		}
		b.WriteString("\n")
	}
}
