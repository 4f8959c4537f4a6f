package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitscribe/internal/config"
	"gitscribe/internal/content"
	"gitscribe/internal/gitsync"
	"gitscribe/internal/oauth"
	"gitscribe/internal/workspace"
)

// nopRunner answers every git invocation with empty success.
type nopRunner struct{}

func (nopRunner) Run(_ context.Context, _ string, _ []string, _ ...string) (gitsync.Result, error) {
	return gitsync.Result{}, nil
}

func newTestServer(t *testing.T) (*Server, *workspace.Registry) {
	t.Helper()
	reg, err := workspace.NewRegistry(t.TempDir())
	require.NoError(t, err)

	cfg := config.GetDefaultConfig()
	cfg.Server.AllowedOrigins = []string{"https://editor.example.com"}
	cfg.Server.MaxBodyBytes = 1 << 20

	store := NewTestTokenStore(t)
	srv := New(Deps{
		Config:   cfg,
		Registry: reg,
		Git:      gitsync.NewOrchestrator(nopRunner{}, cfg.Git, nil, nil),
		Files:    content.NewFileService(cfg.Content),
		Posts:    content.NewPostService(cfg.Content),
		Auth:     oauth.NewClient(cfg.OAuth, store),
		Tokens:   store,
		Limiter:  oauth.NewRateLimiter(2, time.Minute),
	})
	return srv, reg
}

func NewTestTokenStore(t *testing.T) oauth.TokenStore {
	t.Helper()
	store := oauth.NewMemoryTokenStore(10)
	t.Cleanup(func() { store.Close() })
	return store
}

func do(t *testing.T, srv *Server, method, path, sessionID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if sessionID != "" {
		req.Header.Set(headerSession, sessionID)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeData(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var env struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env.Data
}

func createSession(t *testing.T, srv *Server) string {
	t.Helper()
	rec := do(t, srv, http.MethodPost, "/api/session", "", map[string]any{"user_id": "alice"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeData(t, rec)["session_id"].(string)
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeData(t, rec)["status"])
}

func TestSessionLifecycle(t *testing.T) {
	srv, reg := newTestServer(t)

	id := createSession(t, srv)
	assert.Equal(t, 1, reg.Count())

	rec := do(t, srv, http.MethodGet, "/api/session", id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/session", "bogus-id", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/session", id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, reg.Count())
}

func TestRequestWithoutSessionHeader(t *testing.T) {
	srv, _ := newTestServer(t)
	rec := do(t, srv, http.MethodGet, "/api/files", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileAPIRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/file/content/posts/hello.md", id,
		map[string]string{"content": "# Hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/file/content/posts/hello.md", id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# Hi", decodeData(t, rec)["content"])

	rec = do(t, srv, http.MethodGet, "/api/files", id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodDelete, "/api/file/content/posts/hello.md", id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodGet, "/api/file/content/posts/hello.md", id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileAPIRename(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/file/content/posts/draft.md", id,
		map[string]string{"content": "wip"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/files/rename", id,
		map[string]string{"from": "content/posts/draft.md", "to": "content/posts/final.md"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/api/file/content/posts/final.md", id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wip", decodeData(t, rec)["content"])

	rec = do(t, srv, http.MethodPost, "/api/files/rename", id,
		map[string]string{"from": "content/posts/missing.md", "to": "x.md"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFileAPIRejectsTraversal(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodGet, "/api/file/..%2f..%2fetc%2fpasswd", id, nil)
	assert.NotEqual(t, http.StatusOK, rec.Code)

	rec = do(t, srv, http.MethodPost, "/api/file/%2e%2e/evil.md", id,
		map[string]string{"content": "x"})
	assert.NotEqual(t, http.StatusOK, rec.Code)
}

func TestPostAPICreateAndList(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/post", id, map[string]string{"title": "First Post"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "content/posts/first-post.md", decodeData(t, rec)["path"])

	rec = do(t, srv, http.MethodGet, "/api/posts", id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	posts := decodeData(t, rec)["posts"].([]any)
	assert.Len(t, posts, 1)

	rec = do(t, srv, http.MethodPost, "/api/post", id, map[string]string{"title": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCSRFRejectsForeignOrigin(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	req := httptest.NewRequest(http.MethodPost, "/api/pull", strings.NewReader("{}"))
	req.Header.Set(headerSession, id)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/pull", strings.NewReader("{}"))
	req.Header.Set(headerSession, id)
	req.Header.Set("Origin", "https://editor.example.com")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusForbidden, rec.Code)
}

func TestCSRFExemptsAuthPaths(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.NotEqual(t, http.StatusForbidden, rec.Code)
}

func TestBodyLimitRejectsOversized(t *testing.T) {
	srv, _ := newTestServer(t)
	id := createSession(t, srv)

	big := bytes.Repeat([]byte("a"), 2<<20)
	req := httptest.NewRequest(http.MethodPost, "/api/file/big.md", bytes.NewReader(big))
	req.Header.Set(headerSession, id)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestDeviceCodeRateLimited(t *testing.T) {
	srv, _ := newTestServer(t)

	// No client ID is configured, so allowed requests fail with 500; the
	// limiter must still kick in afterwards.
	for i := 0; i < 2; i++ {
		rec := do(t, srv, http.MethodPost, "/api/auth/device-code", "", nil)
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code)
	}
	rec := do(t, srv, http.MethodPost, "/api/auth/device-code", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestAuthStatusUnauthenticated(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/auth/status", nil)
	req.Header.Set(headerAuthSession, "nope")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeData(t, rec)["authenticated"])
}

func TestPanicRecovery(t *testing.T) {
	srv, _ := newTestServer(t)
	srv.deps.Posts = nil // forces a nil dereference inside the handler

	id := createSession(t, srv)
	rec := do(t, srv, http.MethodGet, "/api/posts", id, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
