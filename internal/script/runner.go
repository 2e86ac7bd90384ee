package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbweber/anvil/internal/metrics"
)

const (
	// DefaultTimeout bounds a single script run.
	DefaultTimeout = 120 * time.Second

	// DefaultProbeTimeout bounds each interpreter version probe.
	DefaultProbeTimeout = 5 * time.Second

	// waitDelay is how long Wait keeps reading pipes after the process is
	// killed, for scripts whose children inherited stdout.
	waitDelay = time.Second
)

var tracer = otel.Tracer("github.com/jbweber/anvil/internal/script")

// Options configures a Runner.
type Options struct {
	Dir          string   // Scripts directory; also the working directory
	Interpreters []string // Probed in order (default: bash)
	Timeout      time.Duration
	ProbeTimeout time.Duration
	Logger       logrus.FieldLogger
	Metrics      *metrics.Metrics
}

// Runner executes scripts from a fixed directory. It keeps no state between
// runs and is safe for concurrent use.
type Runner struct {
	dir          string
	interpreters []string
	timeout      time.Duration
	probeTimeout time.Duration
	log          logrus.FieldLogger
	metrics      *metrics.Metrics
}

// NewRunner creates a Runner, applying defaults for unset options.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		dir:          opts.Dir,
		interpreters: opts.Interpreters,
		timeout:      opts.Timeout,
		probeTimeout: opts.ProbeTimeout,
		log:          opts.Logger,
		metrics:      opts.Metrics,
	}
	if len(r.interpreters) == 0 {
		r.interpreters = []string{"bash"}
	}
	if r.timeout <= 0 {
		r.timeout = DefaultTimeout
	}
	if r.probeTimeout <= 0 {
		r.probeTimeout = DefaultProbeTimeout
	}
	if r.log == nil {
		r.log = logrus.StandardLogger()
	}
	return r
}

// Dir returns the scripts directory.
func (r *Runner) Dir() string {
	return r.dir
}

// Run executes the script for cmd with positional args.
//
// Run never returns an error; every failure is described by the Result.
// Arguments are not logged because manage_users.sh receives a password.
func (r *Runner) Run(ctx context.Context, cmd Command, args ...string) Result {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracer.Start(ctx, "script.Run",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("script.command", cmd.String()),
			attribute.Int("script.args", len(args)),
		),
	)
	defer span.End()

	start := time.Now()
	res := r.run(ctx, cmd, args)
	res.Command = cmd
	res.Duration = time.Since(start)

	r.metrics.ObserveScript(cmd.String(), res.Kind.String(), res.Duration)

	fields := logrus.Fields{
		"command":  cmd.String(),
		"args":     len(args),
		"duration": res.Duration.Round(time.Millisecond).String(),
		"outcome":  res.Kind.String(),
	}
	if res.ExitCode != nil {
		fields["exit_code"] = *res.ExitCode
		span.SetAttributes(attribute.Int("script.exit_code", *res.ExitCode))
	}

	if res.Success {
		r.log.WithFields(fields).Info("script completed")
		return res
	}

	span.SetStatus(codes.Error, res.Kind.String())
	fields["diagnostic"] = res.Diagnostic()
	r.log.WithFields(fields).Warn("script failed")
	return res
}

func (r *Runner) run(ctx context.Context, cmd Command, args []string) Result {
	name := cmd.Script()
	if name == "" {
		return Result{
			Kind:    NotFound,
			Message: fmt.Sprintf("unknown command %s", cmd),
			Stderr:  fmt.Sprintf("Unknown command: %s", cmd),
		}
	}

	scriptPath, err := filepath.Abs(filepath.Join(r.dir, name))
	if err != nil {
		return Result{Kind: ExecutionError, Message: err.Error(), Stderr: err.Error()}
	}

	if _, err := os.Stat(scriptPath); err != nil {
		return Result{
			Kind:    NotFound,
			Message: fmt.Sprintf("Script %s not found at %s", name, scriptPath),
			Stderr:  fmt.Sprintf("Script not found: %s", scriptPath),
		}
	}

	interpreter, err := ResolveInterpreter(ctx, r.interpreters, r.probeTimeout)
	if err != nil {
		return Result{
			Kind:    InterpreterUnavailable,
			Message: err.Error(),
			Stderr:  "Interpreter executable not found",
		}
	}

	// Not fatal: some filesystems do not support mode bits.
	if err := os.Chmod(scriptPath, 0755); err != nil {
		r.log.WithFields(logrus.Fields{
			"script": scriptPath,
			"error":  err,
		}).Debug("could not mark script executable")
	}

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	c := exec.CommandContext(runCtx, interpreter, append([]string{scriptPath}, args...)...)
	c.Dir = r.dir
	c.Stdout = &stdout
	c.Stderr = &stderr
	c.WaitDelay = waitDelay

	r.log.WithFields(logrus.Fields{
		"command":     cmd.String(),
		"interpreter": interpreter,
		"script":      scriptPath,
	}).Debug("executing script")

	err = c.Run()

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Result{
			Kind:    Timeout,
			Message: "Script execution timed out",
			Stderr:  fmt.Sprintf("Timeout after %s", r.timeout),
		}
	}

	res := Result{
		Stdout: strings.TrimSpace(stdout.String()),
		Stderr: strings.TrimSpace(stderr.String()),
	}

	if err == nil {
		res.Success = true
		res.Kind = None
		res.ExitCode = exitCode(0)
		return res
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		res.Kind = ExitStatus
		res.ExitCode = exitCode(exitErr.ExitCode())
		return res
	}

	// Launch failure, or the process was killed by a signal.
	res.Kind = ExecutionError
	res.Message = err.Error()
	if res.Stderr == "" {
		res.Stderr = err.Error()
	}
	return res
}
