package commands

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vulntor/memsift/pkg/orchestrator"
)

var (
	progressTitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	progressSubtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	progressSuccessStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	progressWarnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	progressErrorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	progressInfoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
)

// progressPrinter writes one line per plugin state change.
type progressPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	color   bool
	dump    string
	started map[string]time.Time
}

func newProgressPrinter(out io.Writer, dump string, noColor bool) *progressPrinter {
	return &progressPrinter{
		out:     out,
		color:   !noColor && isTerminal(out),
		dump:    dump,
		started: make(map[string]time.Time),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *progressPrinter) render(style lipgloss.Style, s string) string {
	if !p.color {
		return s
	}
	return style.Render(s)
}

// Progress implements orchestrator.ProgressSink.
func (p *progressPrinter) Progress(ev orchestrator.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch ev.State {
	case orchestrator.StateExpanding:
		fmt.Fprintln(p.out, p.render(progressTitleStyle, "memsift")+" "+p.render(progressSubtleStyle, p.dump))
	case orchestrator.StateRunning:
		p.started[ev.Plugin] = time.Now()
		fmt.Fprintf(p.out, "%s %s %s\n",
			p.render(progressSubtleStyle, fmt.Sprintf("[%d/%d]", ev.Index+1, ev.Total)),
			p.render(progressInfoStyle, "running"),
			ev.Plugin)
	case orchestrator.StateRecording:
		if ev.Outcome == nil {
			return
		}
		elapsed := time.Duration(0)
		if t, ok := p.started[ev.Plugin]; ok {
			elapsed = time.Since(t).Round(time.Millisecond)
			delete(p.started, ev.Plugin)
		}
		detail := fmt.Sprintf("%d events", ev.Outcome.EventsSent)
		if ev.Outcome.Status != orchestrator.StatusSucceeded {
			detail = ev.Outcome.Error
		}
		fmt.Fprintf(p.out, "%s %s %s %s %s\n",
			p.render(progressSubtleStyle, fmt.Sprintf("[%d/%d]", ev.Index+1, ev.Total)),
			p.render(styleForStatus(ev.Outcome.Status), string(ev.Outcome.Status)),
			ev.Plugin,
			p.render(progressSubtleStyle, elapsed.String()),
			detail)
	}
}

func styleForStatus(status orchestrator.Status) lipgloss.Style {
	switch status {
	case orchestrator.StatusSucceeded:
		return progressSuccessStyle
	case orchestrator.StatusPartial:
		return progressWarnStyle
	case orchestrator.StatusFailed:
		return progressErrorStyle
	default:
		return progressSubtleStyle
	}
}
