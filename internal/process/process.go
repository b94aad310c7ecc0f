package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"time"

	"git.home.luguber.info/inful/distcache/internal/logfields"
	"git.home.luguber.info/inful/distcache/internal/observability"
)

// maxErrorOutput bounds how much captured output is carried in an ExitError.
const maxErrorOutput = 4096

// Command describes a program invocation.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // KEY=VALUE pairs added to the inherited environment
	Stdin io.Reader
}

// String renders the command line for logs and errors. Values passed with
// -e/--env and userinfo in URLs are masked.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(redactArgs(c.Args), " "))
}

const redacted = "***"

func redactArgs(args []string) []string {
	out := make([]string, len(args))
	for i, a := range args {
		switch {
		case i > 0 && (args[i-1] == "--env" || args[i-1] == "-e"):
			out[i] = redactAssignment(a)
		case strings.HasPrefix(a, "--env="):
			out[i] = "--env=" + redactAssignment(strings.TrimPrefix(a, "--env="))
		default:
			out[i] = redactURL(a)
		}
	}
	return out
}

func redactAssignment(kv string) string {
	if k, _, ok := strings.Cut(kv, "="); ok {
		return k + "=" + redacted
	}
	return kv
}

func redactURL(s string) string {
	if !strings.Contains(s, "://") || !strings.Contains(s, "@") {
		return s
	}
	u, err := url.Parse(s)
	if err != nil || u.User == nil {
		return s
	}
	u.User = nil
	return u.Scheme + "://" + redacted + "@" + strings.TrimPrefix(u.String(), u.Scheme+"://")
}

// Result holds the captured outcome of a finished command.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Duration time.Duration
}

// Output returns stdout and stderr joined, stderr last, trimmed.
func (r Result) Output() string {
	out := strings.TrimSpace(string(r.Stdout))
	errOut := strings.TrimSpace(string(r.Stderr))
	switch {
	case out == "":
		return errOut
	case errOut == "":
		return out
	default:
		return out + "\n" + errOut
	}
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *ExitError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("%s: exit status %d", e.Command, e.ExitCode)
	}
	return fmt.Sprintf("%s: exit status %d: %s", e.Command, e.ExitCode, e.Output)
}

// Runner executes commands. Implementations must honour ctx cancellation.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct{}

// NewExecRunner creates a host command runner.
func NewExecRunner() *ExecRunner { return &ExecRunner{} }

// Run starts the command, waits for it and captures its output. A non-zero
// exit yields *ExitError; cancellation yields an error wrapping ctx.Err().
func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	// #nosec G204 -- commands are assembled from validated configuration and revisions
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = 5 * time.Second
	setProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	line := c.String()
	observability.DebugContext(ctx, "Running command", logfields.Command(line), logfields.Path(c.Dir))

	start := time.Now()
	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), Duration: time.Since(start)}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if out := strings.TrimSpace(stdout.String()); out != "" {
		observability.DebugContext(ctx, "command stdout", logfields.Command(c.Name), slog.String("output", out))
	}
	if errOut := strings.TrimSpace(stderr.String()); errOut != "" {
		observability.DebugContext(ctx, "command stderr", logfields.Command(c.Name), slog.String("error_output", errOut))
	}

	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", line, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, &ExitError{Command: line, ExitCode: res.ExitCode, Output: tail(res.Output(), maxErrorOutput)}
	}
	return res, fmt.Errorf("failed to start %s: %w", c.Name, err)
}

// tail keeps the last n bytes of s, where failures are usually reported.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
