package deploy

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"gitscribe/pkg/logging"
)

// ErrCommandRejected is returned when the configured deploy command fails
// validation. The command never runs in that case.
var ErrCommandRejected = errors.New("deploy command rejected")

// shellMetaChars are never allowed in a deploy command. The command runs
// without a shell, but rejecting them here catches misconfiguration before
// anything executes.
const shellMetaChars = "|;&$><`\n\r"

const runTimeout = 5 * time.Minute

// ValidateCommand checks that command names an executable file living under
// allowedDir. Relative paths, nonexistent files, and shell metacharacters
// are all rejected.
func ValidateCommand(command, allowedDir string) error {
	if command == "" {
		return fmt.Errorf("%w: empty command", ErrCommandRejected)
	}
	if strings.ContainsAny(command, shellMetaChars) {
		return fmt.Errorf("%w: shell metacharacters are not allowed", ErrCommandRejected)
	}

	fields := strings.Fields(command)
	bin := fields[0]
	if !filepath.IsAbs(bin) {
		return fmt.Errorf("%w: command path must be absolute", ErrCommandRejected)
	}
	if allowedDir != "" {
		absDir, err := filepath.Abs(allowedDir)
		if err != nil {
			return fmt.Errorf("%w: resolving allowed directory: %v", ErrCommandRejected, err)
		}
		rel, err := filepath.Rel(absDir, bin)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("%w: command must live under %s", ErrCommandRejected, absDir)
		}
	}

	if err := checkExecutable(bin); err != nil {
		return fmt.Errorf("%w: %v", ErrCommandRejected, err)
	}
	return nil
}

// Runner executes the configured post-push deploy command. The command is
// validated on every run so config reloads cannot smuggle in a bad value.
type Runner struct {
	command    string
	allowedDir string
}

// NewRunner builds a deploy runner. An empty command disables deploys.
func NewRunner(command, allowedDir string) *Runner {
	return &Runner{command: command, allowedDir: allowedDir}
}

// Enabled reports whether a deploy command is configured.
func (r *Runner) Enabled() bool {
	return r.command != ""
}

// Run executes the deploy command with the workspace path appended as its
// final argument. Failures are logged, never surfaced to the editing user;
// a broken deploy must not fail the save that triggered it.
func (r *Runner) Run(ctx context.Context, workspacePath string) {
	if !r.Enabled() {
		return
	}
	if err := ValidateCommand(r.command, r.allowedDir); err != nil {
		logging.Error("Deploy", err, "Deploy command rejected, skipping")
		return
	}

	fields := strings.Fields(r.command)
	args := append(fields[1:], workspacePath)

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, fields[0], args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		logging.Error("Deploy", err, "Deploy command failed: %s", strings.TrimSpace(string(out)))
		return
	}
	logging.Info("Deploy", "Deploy command finished for %s", workspacePath)
}
