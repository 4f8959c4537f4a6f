package app

import (
	"gitscribe/internal/cleanup"
	"gitscribe/internal/config"
	"gitscribe/internal/content"
	"gitscribe/internal/deploy"
	"gitscribe/internal/gitsync"
	"gitscribe/internal/oauth"
	"gitscribe/internal/server"
	"gitscribe/internal/workspace"
)

// Services holds every wired component of a running instance. Construction
// happens once in Bootstrap; nothing reaches for globals.
type Services struct {
	Config    config.Config
	Registry  *workspace.Registry
	Tokens    oauth.TokenStore
	Auth      *oauth.Client
	Limiter   *oauth.RateLimiter
	Git       *gitsync.Orchestrator
	Files     *content.FileService
	Posts     *content.PostService
	Deploy    *deploy.Runner
	Scheduler *cleanup.Scheduler
	Server    *server.Server
	Watcher   *config.Watcher
}
