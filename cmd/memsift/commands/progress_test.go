package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vulntor/memsift/pkg/catalog"
	"github.com/vulntor/memsift/pkg/orchestrator"
)

func TestProgressPrinter(t *testing.T) {
	var out bytes.Buffer
	p := newProgressPrinter(&out, "host1", false)
	require.False(t, p.color, "buffers are never terminals")

	p.Progress(orchestrator.ProgressEvent{State: orchestrator.StateStart})
	p.Progress(orchestrator.ProgressEvent{State: orchestrator.StateExpanding})
	p.Progress(orchestrator.ProgressEvent{State: orchestrator.StateRunning, Index: 0, Total: 2, Plugin: "pslist", Category: catalog.CategoryProcesses})
	p.Progress(orchestrator.ProgressEvent{
		State: orchestrator.StateRecording, Index: 0, Total: 2, Plugin: "pslist",
		Outcome: &orchestrator.PluginOutcome{Status: orchestrator.StatusSucceeded, EventsSent: 12},
	})
	p.Progress(orchestrator.ProgressEvent{
		State: orchestrator.StateRecording, Index: 1, Total: 2, Plugin: "malfind",
		Outcome: &orchestrator.PluginOutcome{Status: orchestrator.StatusFailed, Error: "exit status 1"},
	})
	p.Progress(orchestrator.ProgressEvent{State: orchestrator.StateDone, Total: 2})

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	require.Equal(t, "memsift host1", lines[0])
	require.Equal(t, "[1/2] running pslist", lines[1])
	require.True(t, strings.HasPrefix(lines[2], "[1/2] succeeded pslist"))
	require.True(t, strings.HasSuffix(lines[2], "12 events"))
	require.True(t, strings.HasPrefix(lines[3], "[2/2] failed malfind"))
	require.True(t, strings.HasSuffix(lines[3], "exit status 1"))
	require.Empty(t, p.started)
}

func TestStyleForStatus(t *testing.T) {
	require.Equal(t, progressSuccessStyle.Render("x"), styleForStatus(orchestrator.StatusSucceeded).Render("x"))
	require.Equal(t, progressWarnStyle.Render("x"), styleForStatus(orchestrator.StatusPartial).Render("x"))
	require.Equal(t, progressErrorStyle.Render("x"), styleForStatus(orchestrator.StatusFailed).Render("x"))
}
