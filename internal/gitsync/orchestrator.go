package gitsync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"gitscribe/internal/config"
	"gitscribe/pkg/logging"
)

// InitStatus reports which branch of the workspace initialization state
// machine ran.
type InitStatus string

const (
	// StatusConnected: existing repository already pointed at the remote.
	StatusConnected InitStatus = "connected"
	// StatusRemoteConfigured: existing repository, remote URL replaced.
	StatusRemoteConfigured InitStatus = "remote_configured"
	// StatusNoRemote: existing repository, no remote requested.
	StatusNoRemote InitStatus = "no_remote"
	// StatusRemoteCheckFailed: existing repository, remote state could not
	// be read. The workspace stays usable for local edits.
	StatusRemoteCheckFailed InitStatus = "remote_check_failed"
	// StatusPreservedLocal: remote cloned, pre-existing local files kept.
	StatusPreservedLocal InitStatus = "preserved_local"
	// StatusCloned: fresh clone into an empty workspace.
	StatusCloned InitStatus = "cloned"
	// StatusEmptyRepo: remote exists but has no commits, repo initialized
	// locally with the remote attached.
	StatusEmptyRepo InitStatus = "empty_repo"
	// StatusInitialized: brand new local repository, no remote.
	StatusInitialized InitStatus = "initialized"
)

// Identity is the commit author recorded on workspace commits.
type Identity struct {
	Name  string
	Email string
}

// Options carries the per-call workspace coordinates. Every operation takes
// its target path explicitly; the orchestrator holds no per-session state.
type Options struct {
	// Path is the absolute workspace directory.
	Path string
	// RemoteURL is the remote to sync with, empty for local-only work.
	RemoteURL string
	// Token is an OAuth access token used for HTTPS remotes, empty for SSH.
	Token string
	// Author is stamped into git config before commits.
	Author Identity
}

// PostPushHook runs after a successful push, typically a site deploy.
type PostPushHook func(ctx context.Context, workspacePath string)

// CommitResult reports what a Commit call did.
type CommitResult struct {
	Committed bool
	Pushed    bool
	// Messages are the commit message lines, one per change plus the
	// summary line.
	Messages []string
	// Files is how many changes went into the commit.
	Files int
}

// RepoStatus is a read-only snapshot of a workspace repository.
type RepoStatus struct {
	Initialized bool
	Branch      string
	RemoteURL   string
	Dirty       bool
	Changes     []Change
}

const (
	remoteName          = "origin"
	cloneTimeoutDefault = 120 * time.Second
	fetchTimeout        = 60 * time.Second
	stashMessage        = "auto-stash-before-pull"
)

// Orchestrator runs git operations against session workspaces. A single
// weighted semaphore serializes all operations process-wide: concurrent git
// in sibling workspaces is cheap to allow, but the shared remote and the
// deploy hook are not safe under interleaving.
type Orchestrator struct {
	runner   Runner
	lock     *semaphore.Weighted
	cfg      config.GitConfig
	resolver TitleResolver
	postPush PostPushHook
}

// NewOrchestrator wires an orchestrator. resolver and postPush may be nil.
func NewOrchestrator(runner Runner, cfg config.GitConfig, resolver TitleResolver, postPush PostPushHook) *Orchestrator {
	return &Orchestrator{
		runner:   runner,
		lock:     semaphore.NewWeighted(1),
		cfg:      cfg,
		resolver: resolver,
		postPush: postPush,
	}
}

func (o *Orchestrator) acquire(ctx context.Context) error {
	if err := o.lock.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for git lock: %w", err)
	}
	return nil
}

func (o *Orchestrator) release() {
	o.lock.Release(1)
}

func (o *Orchestrator) env(opts Options) []string {
	return BuildEnv(opts.RemoteURL, o.cfg.SSHKeyPath, opts.Token)
}

func (o *Orchestrator) run(ctx context.Context, opts Options, args ...string) (Result, error) {
	return o.runner.Run(ctx, opts.Path, o.env(opts), args...)
}

func hasGitDir(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))
	return err == nil && info.IsDir()
}

func (o *Orchestrator) branch() string {
	if o.cfg.Branch != "" {
		return o.cfg.Branch
	}
	return config.DefaultBranch
}

func (o *Orchestrator) cloneTimeout() time.Duration {
	if o.cfg.CloneTimeoutSeconds > 0 {
		return time.Duration(o.cfg.CloneTimeoutSeconds) * time.Second
	}
	return cloneTimeoutDefault
}

// Init brings a workspace into a usable git state. The outcome depends on
// whether a repository already exists and whether a remote was requested;
// the returned status names the branch taken.
func (o *Orchestrator) Init(ctx context.Context, opts Options) (InitStatus, error) {
	if err := o.acquire(ctx); err != nil {
		return "", err
	}
	defer o.release()

	logging.Info("GitSync", "Initializing workspace %s (remote: %s)", opts.Path, SanitizeURL(opts.RemoteURL))

	if hasGitDir(opts.Path) {
		return o.initExisting(ctx, opts)
	}
	if opts.RemoteURL == "" {
		if _, err := o.run(ctx, opts, "init", "-b", o.branch()); err != nil {
			return "", classifyOp("init", err)
		}
		if err := o.configureAuthor(ctx, opts); err != nil {
			return "", err
		}
		return StatusInitialized, nil
	}
	return o.initFromRemote(ctx, opts)
}

func (o *Orchestrator) initExisting(ctx context.Context, opts Options) (InitStatus, error) {
	if err := o.configureAuthor(ctx, opts); err != nil {
		return "", err
	}
	if opts.RemoteURL == "" {
		return StatusNoRemote, nil
	}

	current, err := o.remoteURL(ctx, opts)
	if err != nil {
		logging.Warn("GitSync", "Could not read remote for %s: %v", opts.Path, err)
		return StatusRemoteCheckFailed, nil
	}
	if current == opts.RemoteURL {
		return StatusConnected, nil
	}
	if current == "" {
		if _, err := o.run(ctx, opts, "remote", "add", o.remoteName(), opts.RemoteURL); err != nil {
			return "", classifyOp("remote add", err)
		}
	} else {
		if _, err := o.run(ctx, opts, "remote", "set-url", o.remoteName(), opts.RemoteURL); err != nil {
			return "", classifyOp("remote set-url", err)
		}
	}
	return StatusRemoteConfigured, nil
}

func (o *Orchestrator) initFromRemote(ctx context.Context, opts Options) (InitStatus, error) {
	tempDir := opts.Path + "_remote_temp"
	_ = os.RemoveAll(tempDir)
	defer os.RemoveAll(tempDir)

	cloneCtx, cancel := context.WithTimeout(ctx, o.cloneTimeout())
	defer cancel()

	parent := filepath.Dir(tempDir)
	_, err := o.runner.Run(cloneCtx, parent, o.env(opts),
		"clone", "-b", o.branch(), opts.RemoteURL, tempDir)
	if err != nil {
		var exitErr *ExitError
		stderr := ""
		if errors.As(err, &exitErr) {
			stderr = strings.ToLower(exitErr.Stderr)
		}
		switch {
		case strings.Contains(stderr, "remote branch") && strings.Contains(stderr, "not found"):
			// The remote exists but not under the configured branch name;
			// take its default branch instead.
			_, err = o.runner.Run(cloneCtx, parent, o.env(opts), "clone", opts.RemoteURL, tempDir)
			if err != nil {
				return "", classifyOp("clone", err)
			}
		case strings.Contains(stderr, "empty repository"):
			return o.initEmptyRemote(ctx, opts)
		default:
			return "", classifyOp("clone", err)
		}
	}

	status := StatusCloned
	if dirHasEntries(opts.Path) {
		// Local drafts exist. Graft the clone's history onto them, bring
		// over remote files the drafts do not shadow, and stage the union
		// so the next commit does not record the remote's files as
		// deletions.
		if err := os.Rename(filepath.Join(tempDir, ".git"), filepath.Join(opts.Path, ".git")); err != nil {
			return "", fmt.Errorf("adopting cloned history: %w", err)
		}
		if err := copyTree(tempDir, opts.Path, false); err != nil {
			return "", fmt.Errorf("merging cloned files into workspace: %w", err)
		}
		if _, err := o.run(ctx, opts, "add", "-A"); err != nil {
			logging.Warn("GitSync", "Staging preserved workspace %s: %v", opts.Path, err)
		}
		status = StatusPreservedLocal
	} else {
		_ = os.RemoveAll(opts.Path)
		if err := copyTree(tempDir, opts.Path, true); err != nil {
			return "", fmt.Errorf("moving clone into workspace: %w", err)
		}
		if err := os.Rename(filepath.Join(tempDir, ".git"), filepath.Join(opts.Path, ".git")); err != nil {
			return "", fmt.Errorf("moving clone into workspace: %w", err)
		}
	}
	if err := o.configureAuthor(ctx, opts); err != nil {
		return "", err
	}
	return status, nil
}

func (o *Orchestrator) initEmptyRemote(ctx context.Context, opts Options) (InitStatus, error) {
	if err := os.MkdirAll(opts.Path, 0o755); err != nil {
		return "", fmt.Errorf("creating workspace: %w", err)
	}
	if _, err := o.run(ctx, opts, "init", "-b", o.branch()); err != nil {
		return "", classifyOp("init", err)
	}
	if _, err := o.run(ctx, opts, "remote", "add", o.remoteName(), opts.RemoteURL); err != nil {
		return "", classifyOp("remote add", err)
	}
	if err := o.configureAuthor(ctx, opts); err != nil {
		return "", err
	}
	return StatusEmptyRepo, nil
}

func (o *Orchestrator) configureAuthor(ctx context.Context, opts Options) error {
	name, email := opts.Author.Name, opts.Author.Email
	if name == "" {
		name = "GitScribe"
	}
	if email == "" {
		email = "gitscribe@localhost"
	}
	if _, err := o.run(ctx, opts, "config", "user.name", name); err != nil {
		return classifyOp("config", err)
	}
	if _, err := o.run(ctx, opts, "config", "user.email", email); err != nil {
		return classifyOp("config", err)
	}
	return nil
}

func (o *Orchestrator) remoteName() string {
	return remoteName
}

// remoteURL returns the fetch URL of the configured remote, empty when the
// remote is not set.
func (o *Orchestrator) remoteURL(ctx context.Context, opts Options) (string, error) {
	res, err := o.run(ctx, opts, "remote", "-v")
	if err != nil {
		return "", classifyOp("remote", err)
	}
	for _, line := range strings.Split(res.Stdout, "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[0] == o.remoteName() {
			return fields[1], nil
		}
	}
	return "", nil
}

// Commit stages everything, commits with per-file message lines, and pushes.
// With nothing to commit it returns CommitResult{Committed: false} and runs
// no further steps. A configured remote is required once changes exist.
func (o *Orchestrator) Commit(ctx context.Context, opts Options) (CommitResult, error) {
	if err := o.acquire(ctx); err != nil {
		return CommitResult{}, err
	}
	defer o.release()

	if !hasGitDir(opts.Path) {
		return CommitResult{}, &OpError{Op: "commit", Category: CategoryNotARepo,
			Message: userMessages[CategoryNotARepo], cause: ErrNotARepository}
	}

	if _, err := o.run(ctx, opts, "add", "-A"); err != nil {
		return CommitResult{}, classifyOp("add", err)
	}
	res, err := o.run(ctx, opts, "status", "--porcelain")
	if err != nil {
		return CommitResult{}, classifyOp("status", err)
	}
	changes := ParsePorcelain(res.Stdout)
	if len(changes) == 0 {
		logging.Debug("GitSync", "No changes to commit in %s", opts.Path)
		return CommitResult{}, nil
	}
	if opts.RemoteURL == "" {
		if url, _ := o.remoteURL(ctx, opts); url != "" {
			opts.RemoteURL = url
		} else {
			return CommitResult{}, &OpError{Op: "commit", Category: CategoryRemoteError,
				Message: "no remote repository configured, connect one before saving", cause: ErrNoRemote}
		}
	}

	if err := o.configureAuthor(ctx, opts); err != nil {
		return CommitResult{}, err
	}

	lines := FormatChanges(changes, o.resolver, opts.Path)
	summary := fmt.Sprintf("Update content (%d files)", len(changes))
	args := []string{"commit", "-m", summary}
	for _, line := range lines {
		args = append(args, "-m", line)
	}
	if _, err := o.run(ctx, opts, args...); err != nil {
		return CommitResult{}, classifyOp("commit", err)
	}

	result := CommitResult{Committed: true, Messages: append([]string{summary}, lines...), Files: len(changes)}

	if err := o.push(ctx, opts); err != nil {
		return result, err
	}
	result.Pushed = true

	if o.postPush != nil {
		o.postPush(ctx, opts.Path)
	}
	logging.Info("GitSync", "Committed and pushed %d changes from %s", len(changes), opts.Path)
	return result, nil
}

func (o *Orchestrator) push(ctx context.Context, opts Options) error {
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	if _, err := o.run(fetchCtx, opts, "fetch", o.remoteName()); err != nil {
		logging.Warn("GitSync", "Pre-push fetch failed for %s: %v", opts.Path, err)
	}
	cancel()

	target := o.defaultBranch(ctx, opts)
	current, err := o.currentBranch(ctx, opts)
	if err != nil {
		return err
	}
	if _, err := o.run(ctx, opts, "push", "-u", o.remoteName(), current+":"+target); err != nil {
		return classifyOp("push", err)
	}
	if current != target {
		// Align the local branch name with what the remote serves so later
		// merges track the right ref.
		if _, err := o.run(ctx, opts, "branch", "-m", current, target); err == nil {
			_, _ = o.run(ctx, opts, "branch", "--set-upstream-to", o.remoteName()+"/"+target, target)
		}
	}
	return nil
}

// defaultBranch resolves the remote's HEAD branch, falling back to the
// configured branch when the remote does not advertise one.
func (o *Orchestrator) defaultBranch(ctx context.Context, opts Options) string {
	res, err := o.run(ctx, opts, "symbolic-ref", "refs/remotes/"+o.remoteName()+"/HEAD")
	if err != nil {
		return o.branch()
	}
	ref := strings.TrimSpace(res.Stdout)
	prefix := "refs/remotes/" + o.remoteName() + "/"
	if strings.HasPrefix(ref, prefix) {
		return strings.TrimPrefix(ref, prefix)
	}
	return o.branch()
}

func (o *Orchestrator) currentBranch(ctx context.Context, opts Options) (string, error) {
	res, err := o.run(ctx, opts, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", classifyOp("rev-parse", err)
	}
	return strings.TrimSpace(res.Stdout), nil
}

func (o *Orchestrator) hasCommits(ctx context.Context, opts Options) bool {
	_, err := o.run(ctx, opts, "rev-parse", "--verify", "HEAD")
	return err == nil
}

// Pull fetches and merges the remote default branch. Dirty workspaces are
// stashed around the merge; a failed stash pop is logged and left for the
// user to resolve, the merge result stands.
func (o *Orchestrator) Pull(ctx context.Context, opts Options) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	if !hasGitDir(opts.Path) {
		return &OpError{Op: "pull", Category: CategoryNotARepo,
			Message: userMessages[CategoryNotARepo], cause: ErrNotARepository}
	}
	if opts.RemoteURL == "" {
		if url, _ := o.remoteURL(ctx, opts); url == "" {
			return &OpError{Op: "pull", Category: CategoryRemoteError,
				Message: "no remote repository configured", cause: ErrNoRemote}
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	_, err := o.run(fetchCtx, opts, "fetch", o.remoteName())
	cancel()
	if err != nil {
		return classifyOp("fetch", err)
	}

	stashed := false
	if o.hasCommits(ctx, opts) {
		res, err := o.run(ctx, opts, "status", "--porcelain")
		if err != nil {
			return classifyOp("status", err)
		}
		if len(ParsePorcelain(res.Stdout)) > 0 {
			if _, err := o.run(ctx, opts, "stash", "push", "-m", stashMessage); err != nil {
				return classifyOp("stash", err)
			}
			stashed = true
		}
	}

	target := o.defaultBranch(ctx, opts)
	if _, err := o.run(ctx, opts, "merge", o.remoteName()+"/"+target); err != nil {
		if stashed {
			if _, popErr := o.run(ctx, opts, "stash", "pop"); popErr != nil {
				logging.Warn("GitSync", "Stash pop after failed merge in %s: %v", opts.Path, popErr)
			}
		}
		return classifyOp("merge", err)
	}
	if stashed {
		if _, err := o.run(ctx, opts, "stash", "pop"); err != nil {
			logging.Warn("GitSync", "Local changes remain stashed in %s: %v", opts.Path, err)
		}
	}
	logging.Info("GitSync", "Pulled %s/%s into %s", o.remoteName(), target, opts.Path)
	return nil
}

// Add stages a single path without committing.
func (o *Orchestrator) Add(ctx context.Context, opts Options, relPath string) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()

	if !hasGitDir(opts.Path) {
		return &OpError{Op: "add", Category: CategoryNotARepo,
			Message: userMessages[CategoryNotARepo], cause: ErrNotARepository}
	}
	if _, err := o.run(ctx, opts, "add", "--", relPath); err != nil {
		return classifyOp("add", err)
	}
	return nil
}

// Changes lists pending workspace changes with the same formatting the
// commit messages use, without touching the index.
func (o *Orchestrator) Changes(ctx context.Context, opts Options) ([]Change, []string, error) {
	if !hasGitDir(opts.Path) {
		return nil, nil, &OpError{Op: "status", Category: CategoryNotARepo,
			Message: userMessages[CategoryNotARepo], cause: ErrNotARepository}
	}
	res, err := o.run(ctx, opts, "status", "--porcelain")
	if err != nil {
		return nil, nil, classifyOp("status", err)
	}
	changes := ParsePorcelain(res.Stdout)
	return changes, FormatChanges(changes, o.resolver, opts.Path), nil
}

// Status reports a read-only snapshot of the workspace repository.
func (o *Orchestrator) Status(ctx context.Context, opts Options) (RepoStatus, error) {
	status := RepoStatus{Initialized: hasGitDir(opts.Path)}
	if !status.Initialized {
		return status, nil
	}
	if branch, err := o.currentBranch(ctx, opts); err == nil {
		status.Branch = branch
	}
	if url, err := o.remoteURL(ctx, opts); err == nil {
		status.RemoteURL = SanitizeURL(url)
	}
	res, err := o.run(ctx, opts, "status", "--porcelain")
	if err != nil {
		return status, classifyOp("status", err)
	}
	status.Changes = ParsePorcelain(res.Stdout)
	status.Dirty = len(status.Changes) > 0
	return status, nil
}

func dirHasEntries(path string) bool {
	entries, err := os.ReadDir(path)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() == ".git" {
			continue
		}
		return true
	}
	return false
}
