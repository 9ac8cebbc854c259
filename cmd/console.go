package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/teemow/inboxledger/internal/events"
)

const progressWidth = 20

// console renders batch events for a terminal. Colors are dropped when
// noColor is set or the writer is not a terminal.
type console struct {
	mu sync.Mutex
	w  io.Writer

	levels  map[events.Level]lipgloss.Style
	dim     lipgloss.Style
	bar     lipgloss.Style
	summary lipgloss.Style
	failure lipgloss.Style
}

func newConsole(w io.Writer, noColor bool) *console {
	r := lipgloss.NewRenderer(w)
	c := &console{
		w:       w,
		dim:     r.NewStyle(),
		bar:     r.NewStyle(),
		summary: r.NewStyle().Bold(true),
		failure: r.NewStyle().Bold(true),
		levels: map[events.Level]lipgloss.Style{
			events.LevelInfo:    r.NewStyle(),
			events.LevelWarning: r.NewStyle(),
			events.LevelError:   r.NewStyle(),
			events.LevelSuccess: r.NewStyle(),
		},
	}
	if noColor {
		return c
	}

	c.dim = c.dim.Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "244"})
	c.bar = c.bar.Foreground(lipgloss.Color("63"))
	c.summary = c.summary.Foreground(lipgloss.Color("28"))
	c.failure = c.failure.Foreground(lipgloss.Color("196"))
	c.levels[events.LevelInfo] = c.levels[events.LevelInfo].Foreground(lipgloss.Color("39"))
	c.levels[events.LevelWarning] = c.levels[events.LevelWarning].Foreground(lipgloss.Color("214"))
	c.levels[events.LevelError] = c.levels[events.LevelError].Foreground(lipgloss.Color("196")).Bold(true)
	c.levels[events.LevelSuccess] = c.levels[events.LevelSuccess].Foreground(lipgloss.Color("28")).Bold(true)
	return c
}

// Emit implements events.Sink.
func (c *console) Emit(e events.Event) {
	line := c.render(e)
	if line == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.w, line)
}

func (c *console) render(e events.Event) string {
	ts := c.dim.Render(e.Time.Format("15:04:05"))
	switch e.Kind {
	case events.KindProgress:
		return fmt.Sprintf("%s %s %3d%%", ts, c.bar.Render(progressBar(e.Percent, progressWidth)), e.Percent)
	case events.KindStatus:
		return fmt.Sprintf("%s %s", ts, c.dim.Render(e.Text))
	case events.KindLog:
		style, ok := c.levels[e.Level]
		if !ok {
			style = c.levels[events.LevelInfo]
		}
		return fmt.Sprintf("%s %s %s", ts, style.Render(fmt.Sprintf("%-7s", e.Level)), e.Text)
	case events.KindDone:
		if e.Result == nil {
			return ""
		}
		style := c.summary
		if !e.Result.Success {
			style = c.failure
		}
		return fmt.Sprintf("%s %s", ts, style.Render(summarize(*e.Result)))
	default:
		return ""
	}
}

// progressBar renders percent as a fixed-width bar.
func progressBar(percent, width int) string {
	percent = max(0, min(100, percent))
	filled := percent * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

// summarize renders a result as one line, leaving out counters that do not
// apply to the workflow.
func summarize(r events.Result) string {
	status := "finished"
	if !r.Success {
		status = "failed"
	}
	parts := []string{fmt.Sprintf("%s %s: processed=%d", r.Workflow, status, r.Processed)}
	if r.Found > 0 || r.Uploaded > 0 {
		parts = append(parts, fmt.Sprintf("found=%d", r.Found), fmt.Sprintf("uploaded=%d", r.Uploaded))
	}
	if r.RowsAdded > 0 {
		parts = append(parts, fmt.Sprintf("rows=%d", r.RowsAdded))
	}
	parts = append(parts, fmt.Sprintf("skipped=%d", r.Skipped), fmt.Sprintf("failed=%d", r.Failed))
	return strings.Join(parts, " ")
}
