package dispatch

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/rileyhilliard/herd/internal/ui"
	"github.com/rileyhilliard/herd/internal/util"
)

// RenderSummary writes the per-host report of a run to w. Colour follows w.
func RenderSummary(w io.Writer, result *Result) {
	if result == nil {
		return
	}

	st := ui.NewStyles(ui.NewRenderer(w))
	divider := st.Muted.Render(strings.Repeat("─", 60))

	fmt.Fprintln(w)
	fmt.Fprintln(w, divider)
	fmt.Fprintln(w)
	fmt.Fprintln(w, st.Header.Render(fmt.Sprintf("Run %s: %s", result.Task, shortID(result.RunID))))
	fmt.Fprintln(w)

	if len(result.Hosts) > 0 {
		fmt.Fprintln(w, hostTable(result, st))
		fmt.Fprintln(w)
	}

	failedStyle := st.Muted
	if result.Failed > 0 {
		failedStyle = st.Error
	}
	fmt.Fprintf(w, "  %s %d passed  %s %d failed  %s %d skipped  %s\n",
		st.Success.Render(ui.SymbolSuccess), result.Succeeded,
		failedStyle.Render(ui.SymbolFail), result.Failed,
		st.Muted.Render(ui.SymbolSkipped), result.Skipped,
		st.Muted.Render(fmt.Sprintf("(%s)", formatDuration(result.Duration))),
	)

	if failures := result.Failures(); len(failures) > 0 {
		names := make([]string, len(failures))
		for i, f := range failures {
			names[i] = f.Server.Name
		}
		fmt.Fprintf(w, "  %s %s\n", st.Error.Render("Failed:"), strings.Join(names, ", "))
		fmt.Fprintln(w)
		fmt.Fprintln(w, st.Header.Render("Retry Failed Servers:"))
		fmt.Fprintf(w, "  %s herd run %s -s %s\n", st.Muted.Render("$"), result.Task, strings.Join(names, ","))
	}
	if result.TeardownErr != nil {
		fmt.Fprintf(w, "  %s teardown: %s\n", st.Error.Render(ui.SymbolFail), firstLine(result.TeardownErr.Error()))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, divider)
}

func hostTable(result *Result, st ui.Styles) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(st.Muted).
		Headers("HOST", "STATUS", "DURATION", "REASON")

	for _, h := range result.Hosts {
		duration := "-"
		if h.Status != StatusSkipped {
			duration = formatDuration(h.Duration)
		}
		t.Row(h.Server.Name, statusLabel(h.Status), duration, h.Detail())
	}

	t.StyleFunc(func(row, col int) lipgloss.Style {
		base := st.Info.Padding(0, 1)
		if row == table.HeaderRow {
			return st.Header.Padding(0, 1)
		}
		if col != 1 || row < 0 || row >= len(result.Hosts) {
			return base.Foreground(ui.ColorPrimary)
		}
		switch result.Hosts[row].Status {
		case StatusSuccess:
			return st.Success.Padding(0, 1)
		case StatusFailure:
			return st.Error.Padding(0, 1)
		default:
			return st.Muted.Padding(0, 1)
		}
	})

	return t.String()
}

func statusLabel(s Status) string {
	switch s {
	case StatusSuccess:
		return ui.SymbolSuccess + " ok"
	case StatusFailure:
		return ui.SymbolFail + " failed"
	default:
		return ui.SymbolSkipped + " skipped"
	}
}

// FormatBriefSummary returns a one-line summary string.
func FormatBriefSummary(result *Result) string {
	if result == nil {
		return "No results"
	}

	total := len(result.Hosts)
	if result.Success() {
		return fmt.Sprintf("%d/%d %s succeeded (%s)",
			result.Succeeded, total, util.Pluralize(total, "server", "servers"), formatDuration(result.Duration))
	}
	return fmt.Sprintf("%d succeeded, %d failed, %d skipped of %d %s (%s)",
		result.Succeeded, result.Failed, result.Skipped, total,
		util.Pluralize(total, "server", "servers"), formatDuration(result.Duration))
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	secs := d.Seconds()
	if secs < 0.1 {
		return fmt.Sprintf("%.2fs", secs)
	}
	if secs < 60 {
		return fmt.Sprintf("%.1fs", secs)
	}
	mins := int(secs / 60)
	remainingSecs := secs - float64(mins)*60
	return fmt.Sprintf("%dm%.1fs", mins, remainingSecs)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
