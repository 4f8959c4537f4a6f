package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Result carries the captured output of one git invocation.
type Result struct {
	Stdout string
	Stderr string
}

// Runner executes git subprocess invocations. All git access in this
// package flows through this one interface so tests can script the tool's
// behavior without a git binary or network.
type Runner interface {
	// Run executes `git args...` in dir. A nil env inherits the process
	// environment. A non-zero exit returns a *ExitError alongside the
	// captured output.
	Run(ctx context.Context, dir string, env []string, args ...string) (Result, error)
}

// ExitError reports a git invocation that exited non-zero. Stderr is kept
// for classification and logging; it must never reach an API response
// verbatim.
type ExitError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Stderr))
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

type execRunner struct {
	gitBinary string
}

// NewExecRunner returns a Runner that shells out to the git binary on PATH.
func NewExecRunner() Runner {
	return &execRunner{gitBinary: "git"}
}

func (r *execRunner) Run(ctx context.Context, dir string, env []string, args ...string) (Result, error) {
	cmd := exec.CommandContext(ctx, r.gitBinary, args...)
	cmd.Dir = dir
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		return res, &ExitError{Args: args, Stderr: res.Stderr, Err: err}
	}
	return res, nil
}
