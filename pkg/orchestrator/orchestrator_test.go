package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/memsift/pkg/catalog"
	"github.com/vulntor/memsift/pkg/forward"
	"github.com/vulntor/memsift/pkg/gate"
	"github.com/vulntor/memsift/pkg/retry"
	"github.com/vulntor/memsift/pkg/runner"
)

const toolScript = `plugin="$4"
echo "$plugin" >> "%s"
case "$plugin" in
  malfind) echo "No suitable address space mapping found" >&2; exit 1 ;;
  garbage) echo "Volatility Foundation Volatility Framework 2.6"; exit 0 ;;
  pslist) printf '{"columns":["PID","Name"],"rows":[[4,"System"]]}' ;;
  *) printf '{"columns":["Offset","Plugin"],"rows":[["0x1","spoofed"],["0x2"]]}' ;;
esac
`

// sink is an httptest collector that records every event body.
type sink struct {
	mu     sync.Mutex
	events []map[string]any
	reject func(ev map[string]any) bool
	srv    *httptest.Server
}

func newSink(t *testing.T) *sink {
	s := &sink{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var p forward.Payload
		if err := json.Unmarshal(body, &p); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var ev map[string]any
		_ = json.Unmarshal([]byte(p.Event), &ev)

		s.mu.Lock()
		s.events = append(s.events, ev)
		reject := s.reject
		s.mu.Unlock()

		if reject != nil && reject(ev) {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *sink) received() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]any(nil), s.events...)
}

type harness struct {
	orch     *Orchestrator
	sink     *sink
	calls    string
	outRoot  string
	runLock  string
	progress []ProgressEvent
}

func (h *harness) invoked(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(h.calls)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Fields(string(data))
}

func (h *harness) states() []State {
	out := make([]State, 0, len(h.progress))
	for _, ev := range h.progress {
		out = append(out, ev.State)
	}
	return out
}

func newHarness(t *testing.T, table catalog.Table, slots Slots) *harness {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell based fake tool")
	}

	dir := t.TempDir()
	h := &harness{
		sink:    newSink(t),
		calls:   filepath.Join(dir, "calls.log"),
		outRoot: filepath.Join(dir, "memory"),
		runLock: filepath.Join(dir, "dumpprocess.lock"),
	}

	tool := filepath.Join(dir, "vol.sh")
	require.NoError(t, os.WriteFile(tool, []byte("#!/bin/sh\n"+fmt.Sprintf(toolScript, h.calls)), 0o755))

	nop := zerolog.Nop()
	run, err := runner.New(runner.Options{ToolPath: tool, Logger: &nop})
	require.NoError(t, err)

	fwd, err := forward.New(forward.Options{URL: h.sink.srv.URL, Token: "test-token", Logger: &nop})
	require.NoError(t, err)

	if slots == nil {
		g, err := gate.New(gate.Options{
			CounterPath: filepath.Join(dir, "volatility2_script.lock"),
			Capacity:    2,
			Logger:      &nop,
		})
		require.NoError(t, err)
		slots = g
	}

	h.orch, err = New(Options{
		Catalog:     table,
		Gate:        slots,
		Runner:      run,
		Sender:      fwd,
		Retry:       retry.NoRetry(),
		OutputRoot:  h.outRoot,
		Program:     "Volatility2",
		RunLockPath: h.runLock,
		Progress:    ProgressFunc(func(ev ProgressEvent) { h.progress = append(h.progress, ev) }),
		Logger:      &nop,
	})
	require.NoError(t, err)
	return h
}

func request(selector string) Request {
	return Request{DumpPath: "/evidence/host1.raw", Profile: "Win7SP1x64", Selector: selector}
}

func TestRun_SinglePluginEndToEnd(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)

	report, err := h.orch.Run(context.Background(), request("pslist"))
	require.NoError(t, err)
	require.NotEmpty(t, report.BatchID)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.EventsSent)
	require.Equal(t, "host1", report.DumpName)

	events := h.sink.received()
	require.Equal(t, []map[string]any{{
		"PID":      float64(4),
		"Name":     "System",
		"Plugin":   "pslist",
		"Program":  "Volatility2",
		"Dump":     "host1",
		"Profile":  "Win7SP1x64",
		"Category": "processes",
	}}, events)

	outcome := report.Outcomes[0]
	require.Equal(t, StatusSucceeded, outcome.Status)
	require.FileExists(t, filepath.Join(h.outRoot, "host1", "pslist.json"))
	require.Equal(t, filepath.Join(h.outRoot, "host1", "pslist.ndjson"), outcome.EventsPath)
	require.DirExists(t, filepath.Join(h.outRoot, "host1", "objects", "procdump"))

	require.Equal(t, []State{StateStart, StateExpanding, StateRunning, StateRecording, StateDone}, h.states())
}

func TestRun_WindowsRunsWholeCatalog(t *testing.T) {
	table := make(catalog.Table, 0, 8)
	n := 0
	for i, c := range catalog.AllCategories() {
		count := 7
		if i < 4 {
			count = 8
		}
		g := catalog.Group{Category: c}
		for j := 0; j < count; j++ {
			g.Plugins = append(g.Plugins, fmt.Sprintf("%s%02d", c, j))
			n++
		}
		table = append(table, g)
	}
	require.Equal(t, 60, n)

	h := newHarness(t, table, nil)
	report, err := h.orch.Run(context.Background(), request("Windows"))
	require.NoError(t, err)

	require.Equal(t, 60, report.Planned)
	require.Equal(t, 60, report.Attempted())
	require.Len(t, h.invoked(t), 60)

	idx := 0
	for _, g := range table {
		for _, p := range g.Plugins {
			require.Equal(t, p, report.Outcomes[idx].Plugin)
			require.Equal(t, g.Category, report.Outcomes[idx].Category)
			idx++
		}
	}

	// rows of the wrong width are dropped; provenance beats the tool column
	events := h.sink.received()
	require.Len(t, events, 60)
	for _, ev := range events {
		require.NotEqual(t, "spoofed", ev["Plugin"])
	}
}

func TestRun_FailingPluginDoesNotAbortBatch(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)

	report, err := h.orch.Run(context.Background(), request("pslist,malfind,garbage,psscan"))
	require.NoError(t, err)
	require.Equal(t, []string{"pslist", "malfind", "garbage", "psscan"}, h.invoked(t))

	require.Equal(t, 2, report.Succeeded)
	require.Equal(t, 2, report.Failed)

	malfind := report.Outcomes[1]
	require.Equal(t, StatusFailed, malfind.Status)
	require.Equal(t, StageRun, malfind.Stage)
	require.Equal(t, CodeToolFailed, malfind.Code)
	require.Equal(t, 1, malfind.ExitCode)
	require.Contains(t, malfind.Error, "No suitable address space")
	require.Zero(t, malfind.EventsSent)

	garbage := report.Outcomes[2]
	require.Equal(t, StageParse, garbage.Stage)
	require.Equal(t, CodeMalformedOutput, garbage.Code)

	for _, ev := range h.sink.received() {
		require.NotEqual(t, "malfind", ev["Plugin"])
	}
	require.Len(t, h.sink.received(), 2)
}

func TestRun_PathLikePluginFailsAlone(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)

	report, err := h.orch.Run(context.Background(), request("../escaped,pslist"))
	require.NoError(t, err)
	require.Equal(t, []string{"pslist"}, h.invoked(t))
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Failed)

	escaped := report.Outcomes[0]
	require.Equal(t, StatusFailed, escaped.Status)
	require.Equal(t, StageRun, escaped.Stage)
	require.Contains(t, escaped.Error, "path elements")
	require.Empty(t, escaped.EventsPath)

	require.NoFileExists(t, filepath.Join(h.outRoot, "escaped.json"))
	require.NoFileExists(t, filepath.Join(h.outRoot, "escaped.ndjson"))
}

func TestRun_RunLockHeld(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)

	held, err := gate.TryRunLock(h.runLock)
	require.NoError(t, err)
	defer held.Release()

	report, err := h.orch.Run(context.Background(), request("windows"))
	require.Error(t, err)
	require.True(t, gate.IsRunLockHeld(err))
	require.Equal(t, CodeRunLocked, ErrorCode(err))
	require.Equal(t, 1, ExitCode(err))
	require.Zero(t, report.Attempted())
	require.Empty(t, h.invoked(t))
	require.Empty(t, h.sink.received())
}

func TestRun_RunLockReleasedAfterBatch(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)
	_, err := h.orch.Run(context.Background(), request("pslist"))
	require.NoError(t, err)

	lock, err := gate.TryRunLock(h.runLock)
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestRun_UsageErrors(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)

	for _, req := range []Request{
		{Profile: "Win7SP1x64", Selector: "pslist"},
		{DumpPath: "/evidence/host1.raw", Selector: "pslist"},
		{DumpPath: "/evidence/host1.raw", Profile: "Win7SP1x64", Selector: "  "},
		{DumpPath: "/evidence/host1.raw", Profile: "Win7SP1x64", Selector: " , ,"},
	} {
		report, err := h.orch.Run(context.Background(), req)
		require.ErrorIs(t, err, ErrUsage)
		require.Equal(t, CodeUsage, ErrorCode(err))
		require.Zero(t, report.Attempted())
	}
	require.Empty(t, h.invoked(t))
}

func TestRun_PartialDelivery(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)
	h.sink.mu.Lock()
	h.sink.reject = func(ev map[string]any) bool { return ev["Plugin"] == "psscan" }
	h.sink.mu.Unlock()

	report, err := h.orch.Run(context.Background(), request("pslist,psscan"))
	require.NoError(t, err)
	require.Equal(t, 1, report.Succeeded)
	require.Equal(t, 1, report.Partial)
	require.Equal(t, 1, report.EventsSent)
	require.Equal(t, 1, report.EventsFailed)

	psscan := report.Outcomes[1]
	require.Equal(t, StatusPartial, psscan.Status)
	require.Equal(t, StageDeliver, psscan.Stage)
	require.Equal(t, CodeDeliveryFailed, psscan.Code)
}

// exhausted is a gate that never has a free slot.
type exhausted struct{ attempts int }

func (e *exhausted) AcquireWithRetry(context.Context, retry.Config) (*gate.Ticket, error) {
	e.attempts++
	return nil, fmt.Errorf("max attempts (5) exceeded: %w", &gate.CapacityError{InFlight: 2, Capacity: 2})
}

func (e *exhausted) Release(*gate.Ticket) error { return nil }

func TestRun_CapacityExhaustedAbortsBatch(t *testing.T) {
	slots := &exhausted{}
	h := newHarness(t, catalog.DefaultTable(), slots)

	report, err := h.orch.Run(context.Background(), request("pslist,psscan"))
	require.Error(t, err)
	require.True(t, gate.IsCapacityExhausted(err))
	require.Equal(t, 1, slots.attempts)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, StageAcquire, report.Outcomes[0].Stage)
	require.Empty(t, h.invoked(t))
}

// counting wraps a gate and checks every acquire has a matching release.
type counting struct {
	Slots
	mu       sync.Mutex
	acquired int
	released int
}

func (c *counting) AcquireWithRetry(ctx context.Context, cfg retry.Config) (*gate.Ticket, error) {
	t, err := c.Slots.AcquireWithRetry(ctx, cfg)
	if err == nil {
		c.mu.Lock()
		c.acquired++
		c.mu.Unlock()
	}
	return t, err
}

func (c *counting) Release(t *gate.Ticket) error {
	c.mu.Lock()
	c.released++
	c.mu.Unlock()
	return c.Slots.Release(t)
}

func TestRun_ReleasesSlotOnEveryOutcome(t *testing.T) {
	nop := zerolog.Nop()
	counter := filepath.Join(t.TempDir(), "counter")
	g, err := gate.New(gate.Options{CounterPath: counter, Capacity: 1, Logger: &nop})
	require.NoError(t, err)
	c := &counting{Slots: g}

	h := newHarness(t, catalog.DefaultTable(), c)
	report, err := h.orch.Run(context.Background(), request("pslist,malfind,garbage"))
	require.NoError(t, err)
	require.Equal(t, 3, report.Attempted())
	require.Equal(t, 3, c.acquired)
	require.Equal(t, 3, c.released)

	st, err := g.Status(context.Background())
	require.NoError(t, err)
	require.Zero(t, st.Count)
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t, catalog.DefaultTable(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := h.orch.Run(ctx, request("pslist"))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.Attempted())
	require.Empty(t, h.invoked(t))
}

func TestNew_Validation(t *testing.T) {
	nop := zerolog.Nop()
	_, err := New(Options{Logger: &nop})
	require.Error(t, err)

	_, err = New(Options{
		Gate: &exhausted{}, Runner: nil, Sender: nil, OutputRoot: t.TempDir(),
	})
	require.Error(t, err)
}
