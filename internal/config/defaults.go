package config

// Default limits chosen to match the deployment profile of a small
// self-hosted editor: a handful of concurrent users, workspaces of a few
// hundred megabytes each.
const (
	DefaultPort                 = 13131
	DefaultMaxBodyBytes         = 10 * 1024 * 1024
	DefaultBranch               = "main"
	DefaultCloneTimeoutSeconds  = 120
	DefaultScope                = "repo workflow"
	DefaultBaseURL              = "https://github.com"
	DefaultAPIBaseURL           = "https://api.github.com"
	DefaultTokenTTLSeconds      = 3600
	DefaultMaxSessions          = 100
	DefaultSessionTimeoutHours  = 24
	DefaultMaxDiskUsageGB       = 10
	DefaultCheckIntervalMinutes = 30
	DefaultRateLimitRequests    = 10
	DefaultRateLimitWindow      = 60
	DefaultPostsDir             = "content/posts"
	DefaultTemplatePath         = "archetypes/posts.md"
)

// Folder names that never show up in file listings. Mirrors the set of
// build/tooling directories a static site checkout typically carries.
var defaultHiddenFolders = []string{
	".git", ".github", ".idea", ".vscode", ".vs", "node_modules",
	"__pycache__", ".history", ".Trash", "themes", "public", "resources",
	"static", "assets", "layouts", "archetypes", "data", "i18n",
	".sessions",
}

var defaultAllowedExtensions = []string{
	".md", ".markdown", ".mdown", ".mkd", ".mkdown", ".ronn",
}

// GetDefaultConfig returns the built-in configuration. Every loader starts
// from this and overlays file and environment values on top.
func GetDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           DefaultPort,
			AllowedOrigins: []string{"http://localhost:5000", "http://127.0.0.1:5000"},
			MaxBodyBytes:   DefaultMaxBodyBytes,
		},
		Workspace: WorkspaceConfig{
			Root: "workspaces",
		},
		Git: GitConfig{
			Branch:              DefaultBranch,
			CloneTimeoutSeconds: DefaultCloneTimeoutSeconds,
		},
		OAuth: OAuthConfig{
			Scope:      DefaultScope,
			BaseURL:    DefaultBaseURL,
			APIBaseURL: DefaultAPIBaseURL,
			TTLSeconds: DefaultTokenTTLSeconds,
		},
		TokenStore: TokenStoreConfig{
			Backend:     "memory",
			MaxSessions: DefaultMaxSessions,
		},
		Cleanup: CleanupConfig{
			SessionTimeoutHours:  DefaultSessionTimeoutHours,
			MaxDiskUsageGB:       DefaultMaxDiskUsageGB,
			CheckIntervalMinutes: DefaultCheckIntervalMinutes,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   DefaultRateLimitRequests,
			WindowSeconds: DefaultRateLimitWindow,
		},
		Content: ContentConfig{
			PostsDir:          DefaultPostsDir,
			TemplatePath:      DefaultTemplatePath,
			HiddenFolders:     defaultHiddenFolders,
			AllowedExtensions: defaultAllowedExtensions,
		},
	}
}
