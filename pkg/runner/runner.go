// Package runner executes the external memory analysis tool for a single
// plugin and classifies the outcome.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/memsift/pkg/catalog"
)

const (
	stderrTailBytes = 4096

	// waitDelay bounds how long Wait blocks on pipes held open by
	// grandchildren after the tool itself was killed.
	waitDelay = 2 * time.Second
)

// Invocation is one plugin execution against one dump.
type Invocation struct {
	Plugin    string           // selector entry, e.g. "svcscan --verbose"
	Args      []string         // tokenized Plugin
	Category  catalog.Category // tag for produced events
	DumpPath  string
	DumpName  string // dump file name without extension
	Profile   string
	OutputDir string // directory receiving <name>.json
}

// NewInvocation builds an Invocation for a resolved catalog entry.
func NewInvocation(entry catalog.Entry, dumpPath, dumpName, profile, outputDir string) Invocation {
	return Invocation{
		Plugin:    entry.Plugin,
		Args:      SplitArgs(entry.Plugin),
		Category:  entry.Category,
		DumpPath:  dumpPath,
		DumpName:  dumpName,
		Profile:   profile,
		OutputDir: outputDir,
	}
}

// Name returns the primary plugin name.
func (i Invocation) Name() string {
	if len(i.Args) == 0 {
		return ""
	}
	return i.Args[0]
}

// RawPath is where the unmodified tool output for this invocation lives.
func (i Invocation) RawPath() string {
	return filepath.Join(i.OutputDir, i.Name()+".json")
}

// Validate checks the fields a command line needs.
func (i Invocation) Validate() error {
	switch {
	case i.Name() == "":
		return fmt.Errorf("%w: plugin name is empty", ErrInvalidInvocation)
	case strings.ContainsAny(i.Name(), `/\`) || strings.Contains(i.Name(), ".."):
		return fmt.Errorf("%w: plugin name %q must not contain path elements", ErrInvalidInvocation, i.Name())
	case i.DumpPath == "":
		return fmt.Errorf("%w: dump path is empty", ErrInvalidInvocation)
	case i.Profile == "":
		return fmt.Errorf("%w: profile is empty", ErrInvalidInvocation)
	case i.OutputDir == "":
		return fmt.Errorf("%w: output directory is empty", ErrInvalidInvocation)
	}
	return nil
}

// Result is the terminal outcome of one Run.
type Result struct {
	Invocation Invocation
	Command    []string
	ExitCode   int
	OutputPath string
	Stderr     string
	Duration   time.Duration
	Err        error
}

// Success reports whether the tool ran and exited cleanly.
func (r Result) Success() bool {
	return r.Err == nil
}

// Options configures a Runner.
type Options struct {
	Interpreter string
	ToolPath    string
	OutputFlag  string
	Timeout     time.Duration // 0 disables the per-invocation timeout
	Logger      *zerolog.Logger
}

// Runner launches the tool as a child process.
type Runner struct {
	opts   Options
	logger zerolog.Logger
}

// New returns a Runner.
func New(opts Options) (*Runner, error) {
	if opts.ToolPath == "" {
		return nil, fmt.Errorf("runner: tool path is required")
	}
	r := &Runner{opts: opts}
	if opts.Logger != nil {
		r.logger = *opts.Logger
	} else {
		r.logger = log.With().Str("component", "runner").Logger()
	}
	return r, nil
}

// Command builds the typed command line for inv.
func (r *Runner) Command(inv Invocation) Command {
	return Command{
		Interpreter: r.opts.Interpreter,
		ToolPath:    r.opts.ToolPath,
		DumpPath:    inv.DumpPath,
		Profile:     inv.Profile,
		PluginArgs:  inv.Args,
		OutputFlag:  r.opts.OutputFlag,
	}
}

// Run executes inv, writing stdout to inv.RawPath(). Failures are reported
// through Result.Err; Run never panics on tool misbehaviour.
func (r *Runner) Run(ctx context.Context, inv Invocation) Result {
	res := Result{Invocation: inv, ExitCode: -1}
	if err := inv.Validate(); err != nil {
		res.Err = err
		return res
	}

	argv := r.Command(inv).Argv()
	res.Command = argv
	res.OutputPath = inv.RawPath()

	logger := r.logger.With().Str("plugin", inv.Plugin).Str("category", inv.Category.String()).Logger()
	logger.Debug().Strs("argv", argv).Str("output", res.OutputPath).Msg("running tool")

	out, err := os.Create(res.OutputPath)
	if err != nil {
		res.Err = fmt.Errorf("%w: create output %s: %v", ErrToolStart, res.OutputPath, err)
		return res
	}
	defer func() {
		if cerr := out.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("close raw output")
		}
	}()

	stderr := &tailBuffer{limit: stderrTailBytes}
	started := time.Now()
	exitCode, runErr := r.exec(ctx, argv, out, stderr)
	res.Duration = time.Since(started)
	res.ExitCode = exitCode
	res.Stderr = strings.TrimSpace(stderr.String())

	if runErr != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(runErr, ErrToolTimeout), isContextErr(runErr):
			res.Err = runErr
		case errors.As(runErr, &exitErr):
			res.Err = &ExitError{Plugin: inv.Name(), ExitCode: exitCode, Stderr: lastLine(res.Stderr)}
		default:
			res.Err = fmt.Errorf("%w: %v", ErrToolStart, runErr)
		}
		logger.Debug().Err(res.Err).Int("exit_code", exitCode).Dur("duration", res.Duration).Msg("tool failed")
		return res
	}

	logger.Debug().Dur("duration", res.Duration).Msg("tool finished")
	return res
}

// Exec runs the tool with arbitrary arguments, bypassing the plugin command
// builder. stdout and stderr are streamed to the given writers.
func (r *Runner) Exec(ctx context.Context, args []string, stdout, stderr io.Writer) (int, error) {
	argv := make([]string, 0, len(args)+2)
	if r.opts.Interpreter != "" {
		argv = append(argv, r.opts.Interpreter)
	}
	argv = append(argv, r.opts.ToolPath)
	argv = append(argv, args...)

	code, err := r.exec(ctx, argv, stdout, stderr)
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return code, &ExitError{Plugin: "exec", ExitCode: code}
	}
	if err != nil && !errors.Is(err, ErrToolTimeout) && !isContextErr(err) {
		return code, fmt.Errorf("%w: %v", ErrToolStart, err)
	}
	return code, err
}

func (r *Runner) exec(ctx context.Context, argv []string, stdout, stderr io.Writer) (int, error) {
	runCtx := ctx
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = childEnv()
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	code := -1
	if cmd.ProcessState != nil {
		code = cmd.ProcessState.ExitCode()
	}
	if err == nil {
		return code, nil
	}

	if ctxErr := runCtx.Err(); ctxErr != nil {
		if ctx.Err() != nil {
			return code, fmt.Errorf("tool interrupted: %w", ctx.Err())
		}
		return code, fmt.Errorf("%w after %s", ErrToolTimeout, r.opts.Timeout)
	}
	return code, err
}

// childEnv is the current environment without LD_LIBRARY_PATH, which breaks
// the tool's bundled interpreter on hosts that set it.
func childEnv() []string {
	env := os.Environ()
	out := env[:0:0]
	for _, kv := range env {
		if strings.HasPrefix(kv, "LD_LIBRARY_PATH=") {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// tailBuffer keeps only the last limit bytes written to it.
type tailBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if len(p) >= t.limit {
		t.buf.Reset()
		t.buf.Write(p[len(p)-t.limit:])
		return n, nil
	}
	if over := t.buf.Len() + len(p) - t.limit; over > 0 {
		t.buf.Next(over)
	}
	t.buf.Write(p)
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}
