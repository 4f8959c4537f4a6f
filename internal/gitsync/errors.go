package gitsync

import (
	"errors"
	"strings"
)

// Category classifies a git failure from the tool's diagnostic text.
// Matching is substring-based and therefore locale- and version-dependent;
// it is a best-effort heuristic, not a contract. Callers must branch on the
// category, never on the trigger strings.
type Category string

const (
	CategoryNotARepo      Category = "not_a_repository"
	CategoryAuthFailed    Category = "authentication_failed"
	CategoryRemoteError   Category = "remote_error"
	CategoryRepoNotFound  Category = "repository_not_found"
	CategoryNetwork       Category = "network_unreachable"
	CategoryMergeConflict Category = "merge_conflict"
	CategoryUnclassified  Category = "unclassified"
)

// Sentinel errors for failures detected before any subprocess runs.
var (
	// ErrNotARepository means the workspace has no .git directory.
	ErrNotARepository = errors.New("workspace is not a git repository")

	// ErrNoRemote means the operation needs a remote URL and none is
	// configured.
	ErrNoRemote = errors.New("no remote repository configured")
)

type matcher struct {
	category Category
	needles  []string
}

// Ordered: the first match wins. More specific diagnostics come before
// generic ones (for example "repository not found" before "not found").
var matchers = []matcher{
	{CategoryNotARepo, []string{"not a git repository"}},
	{CategoryMergeConflict, []string{"conflict", "automatic merge failed", "needs merge"}},
	{CategoryAuthFailed, []string{
		"authentication failed",
		"could not read username",
		"could not read password",
		"permission denied (publickey",
		"invalid credentials",
	}},
	{CategoryRepoNotFound, []string{"repository not found", "does not appear to be a git repository"}},
	{CategoryNetwork, []string{
		"could not resolve host",
		"connection timed out",
		"connection refused",
		"network is unreachable",
		"operation timed out",
	}},
	{CategoryRemoteError, []string{"remote error", "remote: error", "remote rejected", "failed to push"}},
}

// Classify maps git stderr output onto a Category.
func Classify(stderr string) Category {
	text := strings.ToLower(stderr)
	for _, m := range matchers {
		for _, needle := range m.needles {
			if strings.Contains(text, needle) {
				return m.category
			}
		}
	}
	return CategoryUnclassified
}

// OpError is the sanitized failure handed to callers. Message is safe to
// show to users; the raw diagnostic stays wrapped for logs only.
type OpError struct {
	Op       string
	Category Category
	Message  string
	cause    error
}

func (e *OpError) Error() string {
	return e.Message
}

func (e *OpError) Unwrap() error {
	return e.cause
}

// userMessages maps (operation, category) to a stable user-facing message.
// Unlisted combinations fall back to the generic per-op message.
var userMessages = map[Category]string{
	CategoryNotARepo:      "workspace is not a git repository, initialize it first",
	CategoryAuthFailed:    "authentication failed, check repository access",
	CategoryRemoteError:   "the remote rejected the operation",
	CategoryRepoNotFound:  "repository not found, check the repository URL and access rights",
	CategoryNetwork:       "could not reach the remote repository, try again later",
	CategoryMergeConflict: "merge conflict, resolve the conflicting files manually",
}

// classifyOp wraps a subprocess failure into an OpError for operation op.
func classifyOp(op string, err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return &OpError{Op: op, Category: CategoryUnclassified, Message: op + " failed", cause: err}
	}
	category := Classify(exitErr.Stderr)
	msg, ok := userMessages[category]
	if !ok {
		msg = op + " failed"
	}
	return &OpError{Op: op, Category: category, Message: msg, cause: err}
}
