package workspace

import (
	"regexp"
	"time"
)

// Session is the registry record for one user workspace. The JSON field
// names are part of the on-disk registry format and must stay stable across
// releases.
type Session struct {
	// UserKey identifies the owning user. At most one live session exists
	// per user key.
	UserKey string `json:"user_id"`

	// Path is the absolute workspace directory, always a descendant of the
	// configured root.
	Path string `json:"path"`

	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`

	// RemoteURL is the git remote configured for this workspace, empty when
	// the user has not connected a repository yet.
	RemoteURL string `json:"git_repo"`

	// Initialized reports whether the workspace has been through git
	// initialization.
	Initialized bool `json:"initialized"`
}

// userKeyRule restricts user keys to characters that are safe inside a
// directory name. The workspace path embeds the key directly.
var userKeyRule = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidUserKey reports whether key may be used to derive a workspace path.
func ValidUserKey(key string) bool {
	return userKeyRule.MatchString(key)
}
