package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"

	"gitscribe/internal/cleanup"
	"gitscribe/internal/config"
	"gitscribe/internal/content"
	"gitscribe/internal/deploy"
	"gitscribe/internal/gitsync"
	"gitscribe/internal/oauth"
	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// Session headers. The workspace session identifies the user's checkout,
// the auth session identifies their OAuth device flow.
const (
	headerSession     = "X-Session-Id"
	headerAuthSession = "X-Auth-Session"
)

// Deps are the collaborators the server needs. All fields are required
// except Scheduler and Deploy.
type Deps struct {
	Config    config.Config
	Registry  *workspace.Registry
	Git       *gitsync.Orchestrator
	Files     *content.FileService
	Posts     *content.PostService
	Auth      *oauth.Client
	Tokens    oauth.TokenStore
	Limiter   *oauth.RateLimiter
	Scheduler *cleanup.Scheduler
	Deploy    *deploy.Runner
}

// Server is the HTTP API in front of the editor backend.
type Server struct {
	deps Deps
	http *http.Server
}

// New builds the server with its route table and middleware chain.
func New(deps Deps) *Server {
	s := &Server{deps: deps}

	addr := net.JoinHostPort(deps.Config.Server.Host, strconv.Itoa(deps.Config.Server.Port))
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full middleware-wrapped route table.
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.GET("/api/health", s.handleHealth)

	router.POST("/api/session", s.handleSessionCreate)
	router.GET("/api/session", s.handleSessionStatus)
	router.DELETE("/api/session", s.handleSessionDelete)

	router.GET("/api/git-repo", s.handleGetRemote)
	router.POST("/api/git-repo", s.handleSetRemote)
	router.POST("/api/init", s.handleInit)
	router.POST("/api/pull", s.handlePull)
	router.POST("/api/commit", s.handleCommit)
	router.POST("/api/reset", s.handleReset)
	router.POST("/api/soft_reset", s.handleSoftReset)
	router.POST("/api/redeploy", s.handleRedeploy)

	router.GET("/api/files", s.handleFileList)
	router.GET("/api/file/*path", s.handleFileRead)
	router.POST("/api/file/*path", s.handleFileWrite)
	router.DELETE("/api/file/*path", s.handleFileDelete)
	router.POST("/api/files/rename", s.handleFileRename)
	router.POST("/api/folder/create", s.handleFolderCreate)

	router.GET("/api/posts", s.handlePostList)
	router.GET("/api/posts/changes", s.handlePostChanges)
	router.GET("/api/posts/categories", s.handlePostCategories)
	router.POST("/api/post", s.handlePostCreate)
	router.DELETE("/api/post/*path", s.handlePostDelete)

	router.POST("/api/auth/device-code", s.handleDeviceCode)
	router.POST("/api/auth/token", s.handleAuthPoll)
	router.GET("/api/auth/status", s.handleAuthStatus)
	router.GET("/api/auth/user", s.handleAuthUser)
	router.POST("/api/auth/logout", s.handleAuthLogout)

	var handler http.Handler = router
	handler = s.bodyLimit(handler)
	handler = s.csrfGuard(handler)
	handler = s.corsHeaders(handler)
	handler = s.recoverPanics(handler)
	return handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info("HTTP", "Listening on %s", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// session resolves the workspace session named by the request header.
func (s *Server) session(r *http.Request) (string, workspace.Session, error) {
	id := r.Header.Get(headerSession)
	if id == "" {
		return "", workspace.Session{}, workspace.ErrSessionNotFound
	}
	if _, err := s.deps.Registry.Resolve(id); err != nil {
		return "", workspace.Session{}, err
	}
	sess, ok := s.deps.Registry.Get(id)
	if !ok {
		return "", workspace.Session{}, workspace.ErrSessionNotFound
	}
	return id, sess, nil
}

// gitOptions assembles per-call git options from the session and, when an
// auth session is attached, the stored token and provider identity.
func (s *Server) gitOptions(r *http.Request, sess workspace.Session) gitsync.Options {
	opts := gitsync.Options{
		Path:      sess.Path,
		RemoteURL: sess.RemoteURL,
	}
	authID := r.Header.Get(headerAuthSession)
	if authID == "" || s.deps.Auth == nil {
		return opts
	}
	token, err := s.deps.Auth.Token(r.Context(), authID)
	if err != nil {
		return opts
	}
	opts.Token = token.AccessToken
	if info, err := s.deps.Auth.UserInfo(r.Context(), authID); err == nil {
		opts.Author = gitsync.Identity{Name: authorName(info), Email: authorEmail(info)}
	}
	return opts
}

func authorName(info *oauth.UserInfo) string {
	if info.Name != "" {
		return info.Name
	}
	return info.Login
}

func authorEmail(info *oauth.UserInfo) string {
	if info.Email != "" {
		return info.Email
	}
	return fmt.Sprintf("%s@users.noreply.github.com", info.Login)
}
