package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"gitscribe/internal/cleanup"
	"gitscribe/internal/config"
	"gitscribe/internal/content"
	"gitscribe/internal/deploy"
	"gitscribe/internal/gitsync"
	"gitscribe/internal/oauth"
	"gitscribe/internal/server"
	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// Options controls bootstrap behavior.
type Options struct {
	// ConfigPath is the directory holding config.yaml. Empty means the
	// current directory.
	ConfigPath string
	// LogLevel overrides the default info level.
	LogLevel logging.LogLevel
	// WatchConfig enables hot reload of the config file.
	WatchConfig bool
}

// Bootstrap loads configuration and wires every service. Nothing starts
// running yet; Run does that.
func Bootstrap(ctx context.Context, opts Options) (*Services, error) {
	logging.Init(opts.LogLevel, os.Stderr)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	registry, err := workspace.NewRegistry(cfg.Workspace.Root)
	if err != nil {
		return nil, fmt.Errorf("opening workspace registry: %w", err)
	}

	tokens, err := newTokenStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	auth := oauth.NewClient(cfg.OAuth, tokens)
	limiter := oauth.NewRateLimiter(cfg.RateLimit.MaxRequests,
		time.Duration(cfg.RateLimit.WindowSeconds)*time.Second)

	deployer := deploy.NewRunner(cfg.Git.PostPushCommand, cfg.Git.AllowedDeployDir)
	posts := content.NewPostService(cfg.Content)
	files := content.NewFileService(cfg.Content)

	git := gitsync.NewOrchestrator(gitsync.NewExecRunner(), cfg.Git, posts, deployer.Run)

	scheduler := cleanup.NewScheduler(registry, auth, limiter, cfg.Cleanup)

	svcs := &Services{
		Config:    cfg,
		Registry:  registry,
		Tokens:    tokens,
		Auth:      auth,
		Limiter:   limiter,
		Git:       git,
		Files:     files,
		Posts:     posts,
		Deploy:    deployer,
		Scheduler: scheduler,
	}

	svcs.Server = server.New(server.Deps{
		Config:    cfg,
		Registry:  registry,
		Git:       git,
		Files:     files,
		Posts:     posts,
		Auth:      auth,
		Tokens:    tokens,
		Limiter:   limiter,
		Scheduler: scheduler,
		Deploy:    deployer,
	})

	if opts.WatchConfig {
		watcher, err := config.NewWatcher(opts.ConfigPath, func(updated config.Config) {
			// Only sweep tuning is safe to apply live; everything else
			// needs a restart.
			scheduler.UpdateConfig(updated.Cleanup)
			logging.Info("Bootstrap", "Configuration file changed, cleanup settings applied; restart for the rest")
		})
		if err != nil {
			logging.Warn("Bootstrap", "Config watching disabled: %v", err)
		} else {
			svcs.Watcher = watcher
		}
	}

	logging.Info("Bootstrap", "Wired services (workspace root: %s, token store: %s)",
		registry.Root(), cfg.TokenStore.Backend)
	return svcs, nil
}

func newTokenStore(ctx context.Context, cfg config.Config) (oauth.TokenStore, error) {
	ttl := time.Duration(cfg.OAuth.TTLSeconds) * time.Second
	switch cfg.TokenStore.Backend {
	case "", "memory":
		return oauth.NewMemoryTokenStore(cfg.TokenStore.MaxSessions), nil
	case "redis":
		store, err := oauth.NewRedisTokenStore(ctx, cfg.TokenStore.RedisURL, ttl)
		if err != nil {
			return nil, fmt.Errorf("connecting token store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown token store backend %q", cfg.TokenStore.Backend)
	}
}

// Run starts the HTTP server, the cleanup scheduler, and the config
// watcher, then blocks until ctx is canceled or a component fails. All
// components are shut down before Run returns.
func (s *Services) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	s.Scheduler.Start(ctx)
	defer s.Scheduler.Stop()

	if s.Watcher != nil {
		if err := s.Watcher.Start(); err != nil {
			logging.Warn("Bootstrap", "Config watcher failed to start: %v", err)
		} else {
			defer s.Watcher.Stop()
		}
	}

	g.Go(func() error {
		return s.Server.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	if closeErr := s.Tokens.Close(); closeErr != nil {
		logging.Warn("Bootstrap", "Closing token store: %v", closeErr)
	}
	return err
}
