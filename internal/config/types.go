package config

// Config is the top-level configuration structure for gitscribe.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Workspace  WorkspaceConfig  `yaml:"workspace"`
	Git        GitConfig        `yaml:"git"`
	OAuth      OAuthConfig      `yaml:"oauth"`
	TokenStore TokenStoreConfig `yaml:"tokenStore"`
	Cleanup    CleanupConfig    `yaml:"cleanup"`
	RateLimit  RateLimitConfig  `yaml:"rateLimit"`
	Content    ContentConfig    `yaml:"content"`
}

// ServerConfig defines the HTTP listener and request policies.
type ServerConfig struct {
	Host           string   `yaml:"host,omitempty"`           // Host to bind to (default: localhost)
	Port           int      `yaml:"port,omitempty"`           // Listen port (default: 13131)
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"` // CORS/CSRF origin allow-list
	MaxBodyBytes   int64    `yaml:"maxBodyBytes,omitempty"`   // Request body size cap (default: 10 MiB)
}

// WorkspaceConfig defines where per-user workspaces live.
type WorkspaceConfig struct {
	Root string `yaml:"root,omitempty"` // Base directory for all session workspaces
}

// GitConfig defines how the external git binary is driven.
type GitConfig struct {
	DefaultRemote       string `yaml:"defaultRemote,omitempty"`       // Remote URL preconfigured for new sessions
	Branch              string `yaml:"branch,omitempty"`              // Fallback branch when the remote HEAD cannot be resolved (default: main)
	SSHKeyPath          string `yaml:"sshKeyPath,omitempty"`          // Identity file for ssh remotes
	PostPushCommand     string `yaml:"postPushCommand,omitempty"`     // Deploy command run after a successful push
	AllowedDeployDir    string `yaml:"allowedDeployDir,omitempty"`    // Directory deploy scripts must live under
	CloneTimeoutSeconds int    `yaml:"cloneTimeoutSeconds,omitempty"` // Hard timeout for clone (default: 120)
}

// OAuthConfig configures the device authorization flow against the git
// hosting provider.
type OAuthConfig struct {
	ClientID     string `yaml:"clientID,omitempty"`
	ClientSecret string `yaml:"clientSecret,omitempty"`
	Scope        string `yaml:"scope,omitempty"`      // Requested scopes (default: "repo workflow")
	BaseURL      string `yaml:"baseURL,omitempty"`    // Provider web base (default: https://github.com)
	APIBaseURL   string `yaml:"apiBaseURL,omitempty"` // Provider API base (default: https://api.github.com)
	TTLSeconds   int    `yaml:"ttlSeconds,omitempty"` // Stored token TTL (default: 3600)
}

// TokenStoreConfig selects and configures the token store backend.
type TokenStoreConfig struct {
	Backend     string `yaml:"backend,omitempty"`     // "memory" or "redis" (default: memory)
	MaxSessions int    `yaml:"maxSessions,omitempty"` // Capacity of the memory backend (default: 100)
	RedisURL    string `yaml:"redisURL,omitempty"`    // Connection URL for the redis backend
}

// CleanupConfig tunes the background eviction scheduler.
type CleanupConfig struct {
	SessionTimeoutHours  int     `yaml:"sessionTimeoutHours,omitempty"`  // TTL on session last-access (default: 24)
	MaxDiskUsageGB       float64 `yaml:"maxDiskUsageGB,omitempty"`       // Total workspace disk ceiling (default: 10)
	CheckIntervalMinutes int     `yaml:"checkIntervalMinutes,omitempty"` // Sweep interval (default: 30)
}

// RateLimitConfig bounds requests to the device-code endpoint.
type RateLimitConfig struct {
	MaxRequests   int `yaml:"maxRequests,omitempty"`   // Requests allowed per window (default: 10)
	WindowSeconds int `yaml:"windowSeconds,omitempty"` // Trailing window length (default: 60)
}

// ContentConfig defines the markdown content layout inside a workspace.
type ContentConfig struct {
	PostsDir          string   `yaml:"postsDir,omitempty"`          // Posts directory relative to the workspace (default: content/posts)
	TemplatePath      string   `yaml:"templatePath,omitempty"`      // Post archetype template relative to the workspace
	HiddenFolders     []string `yaml:"hiddenFolders,omitempty"`     // Folder names excluded from listings
	AllowedExtensions []string `yaml:"allowedExtensions,omitempty"` // File extensions exposed by listings
}
