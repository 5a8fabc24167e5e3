package tui

import (
	"fmt"
	"strings"

	"qbank/internal/question"
	"qbank/internal/review"

	"github.com/charmbracelet/lipgloss"
)

const listWindow = 12

// renderHeader renders the run summary line.
func renderHeader(rep question.Report, snap review.Snapshot, poolID int64, noColor bool) string {
	line := fmt.Sprintf("%s | approved %d/%d | pool %d",
		rep.Summary(), snap.ApprovedCount, len(snap.Candidates), poolID)
	return stylize(line, noColor, lipgloss.Color("33"))
}

// renderWarnings lists pipeline warnings, one per line.
func renderWarnings(rep question.Report, noColor bool) string {
	if len(rep.Warnings) == 0 {
		return ""
	}
	lines := make([]string, 0, len(rep.Warnings))
	for _, w := range rep.Warnings {
		if w.Number > 0 {
			lines = append(lines, fmt.Sprintf("! #%d %s", w.Number, w.Message))
			continue
		}
		lines = append(lines, "! "+w.Message)
	}
	return stylize(strings.Join(lines, "\n"), noColor, lipgloss.Color("214"))
}

// renderList shows a window of candidates around the cursor.
func renderList(snap review.Snapshot, noColor bool) string {
	if len(snap.Candidates) == 0 {
		return stylize("no candidates", noColor, lipgloss.Color("242"))
	}
	start := max(snap.Cursor-listWindow/2, 0)
	end := min(start+listWindow, len(snap.Candidates))
	start = max(end-listWindow, 0)

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		c := snap.Candidates[i]
		pointer := "  "
		if i == snap.Cursor {
			pointer = "> "
		}
		mark := "[ ]"
		if c.Approved {
			mark = "[x]"
		}
		line := fmt.Sprintf("%s%s %2d. %s", pointer, mark, c.Ordinal, truncate(c.Stem, 70))
		switch {
		case i == snap.Cursor:
			line = stylize(line, noColor, lipgloss.Color("212"))
		case c.Approved:
			line = stylize(line, noColor, lipgloss.Color("42"))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// renderDetail shows the full question under the cursor.
func renderDetail(snap review.Snapshot, noColor bool) string {
	if len(snap.Candidates) == 0 {
		return ""
	}
	c := snap.Candidates[snap.Cursor]
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(c.Stem)
	sb.WriteString("\n")
	for _, o := range c.Options {
		line := fmt.Sprintf("  %s) %s", o.Label, o.Text)
		if o.Label == c.CorrectLabel {
			line = stylize(line+"  ✓", noColor, lipgloss.Color("42"))
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if c.Explanation != "" {
		sb.WriteString(stylize("  "+c.Explanation, noColor, lipgloss.Color("244")))
		sb.WriteString("\n")
	}
	sb.WriteString(stylize("  difficulty: "+string(c.Difficulty), noColor, lipgloss.Color("240")))
	return sb.String()
}

func renderStatus(status string, noColor bool) string {
	if status == "" {
		return ""
	}
	return stylize(status, noColor, lipgloss.Color("203"))
}

// stylize applies optional color styling.
func stylize(text string, noColor bool, color lipgloss.Color) string {
	if noColor {
		return text
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RenderPlain prints the run for non-interactive output.
func RenderPlain(rep question.Report, cands []question.Candidate) string {
	snap := review.Snapshot{Candidates: cands}
	var sb strings.Builder
	sb.WriteString(rep.Summary())
	sb.WriteString("\n")
	if w := renderWarnings(rep, true); w != "" {
		sb.WriteString(w)
		sb.WriteString("\n")
	}
	for i := range cands {
		snap.Cursor = i
		sb.WriteString(renderDetail(snap, true))
		sb.WriteString("\n")
	}
	return sb.String()
}
