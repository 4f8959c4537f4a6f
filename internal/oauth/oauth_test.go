package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitscribe/internal/config"
)

func TestMemoryStoreEvictsOldestAtCapacity(t *testing.T) {
	store := NewMemoryTokenStore(3)
	defer store.Close()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		err := store.Put(ctx, fmt.Sprintf("session-%d", i), &Token{
			AccessToken: fmt.Sprintf("tok-%d", i),
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	require.NoError(t, store.Put(ctx, "session-3", &Token{
		AccessToken: "tok-3",
		CreatedAt:   base.Add(3 * time.Minute),
	}))

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = store.Get(ctx, "session-0")
	assert.ErrorIs(t, err, ErrTokenNotFound)

	tok, err := store.Get(ctx, "session-3")
	require.NoError(t, err)
	assert.Equal(t, "tok-3", tok.AccessToken)
}

func TestMemoryStoreUpdateDoesNotEvict(t *testing.T) {
	store := NewMemoryTokenStore(2)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a", &Token{AccessToken: "1", CreatedAt: time.Now()}))
	require.NoError(t, store.Put(ctx, "b", &Token{AccessToken: "2", CreatedAt: time.Now()}))
	require.NoError(t, store.Put(ctx, "a", &Token{AccessToken: "3", CreatedAt: time.Now()}))

	tok, err := store.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, "2", tok.AccessToken)
}

func TestMemoryStoreExpiredTokenNotReturned(t *testing.T) {
	store := NewMemoryTokenStore(10)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "old", &Token{
		AccessToken: "stale",
		CreatedAt:   time.Now().Add(-2 * time.Hour),
		ExpiresAt:   time.Now().Add(-time.Hour),
	}))

	_, err := store.Get(ctx, "old")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		ok, _ := rl.Allow("10.0.0.1")
		require.True(t, ok, "request %d should pass", i)
	}
	ok, retryAfter := rl.Allow("10.0.0.1")
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))

	ok, _ = rl.Allow("10.0.0.2")
	assert.True(t, ok, "other keys are unaffected")
}

func TestRateLimiterWindowSlides(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	current := time.Now()
	rl.now = func() time.Time { return current }

	ok, _ := rl.Allow("ip")
	require.True(t, ok)
	ok, _ = rl.Allow("ip")
	require.True(t, ok)
	ok, _ = rl.Allow("ip")
	require.False(t, ok)

	current = current.Add(61 * time.Second)
	ok, _ = rl.Allow("ip")
	assert.True(t, ok)
}

func TestRateLimiterPrune(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	current := time.Now()
	rl.now = func() time.Time { return current }

	rl.Allow("a")
	rl.Allow("b")
	current = current.Add(2 * time.Minute)
	rl.Allow("c")

	assert.Equal(t, 2, rl.Prune())
}

// fakeProvider is a GitHub-shaped device flow endpoint. tokenAnswers are
// played back one per poll, the last one repeating.
type fakeProvider struct {
	tokenAnswers []map[string]any
	polls        int
}

func (p *fakeProvider) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"device_code":      "dev-code-1",
			"user_code":        "ABCD-1234",
			"verification_uri": "https://example.com/activate",
			"expires_in":       900,
			"interval":         5,
		})
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		idx := p.polls
		if idx >= len(p.tokenAnswers) {
			idx = len(p.tokenAnswers) - 1
		}
		p.polls++
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(p.tokenAnswers[idx])
	})
	return httptest.NewServer(mux)
}

func newTestClient(t *testing.T, provider *fakeProvider) (*Client, *MemoryTokenStore) {
	t.Helper()
	srv := provider.server(t)
	t.Cleanup(srv.Close)

	store := NewMemoryTokenStore(10)
	t.Cleanup(func() { store.Close() })

	client := NewClient(config.OAuthConfig{
		ClientID:   "client-id",
		Scope:      "repo workflow",
		BaseURL:    srv.URL,
		APIBaseURL: srv.URL,
		TTLSeconds: 3600,
	}, store)
	return client, store
}

func TestDeviceFlowAuthorization(t *testing.T) {
	provider := &fakeProvider{tokenAnswers: []map[string]any{
		{"error": "authorization_pending"},
		{"access_token": "gho_token", "token_type": "bearer", "scope": "repo workflow"},
	}}
	client, store := newTestClient(t, provider)
	ctx := context.Background()

	info, err := client.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ABCD-1234", info.UserCode)
	assert.Equal(t, 5, info.Interval)
	assert.NotEmpty(t, info.SessionID)

	res, err := client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollPending, res.Status)
	assert.Equal(t, 5, res.Interval)

	res, err = client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollAuthorized, res.Status)

	tok, err := store.Get(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "gho_token", tok.AccessToken)
	assert.False(t, tok.ExpiresAt.IsZero())
}

func TestDeviceFlowAuthorizedSessionNeverReauthorizes(t *testing.T) {
	provider := &fakeProvider{tokenAnswers: []map[string]any{
		{"access_token": "gho_token", "token_type": "bearer", "scope": "repo"},
	}}
	client, _ := newTestClient(t, provider)
	ctx := context.Background()

	info, err := client.Start(ctx)
	require.NoError(t, err)

	res, err := client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	require.Equal(t, PollAuthorized, res.Status)

	res, err = client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollInvalid, res.Status)
	assert.Equal(t, 1, provider.polls, "terminal flows must not reach the provider")
}

func TestDeviceFlowSlowDownRaisesInterval(t *testing.T) {
	provider := &fakeProvider{tokenAnswers: []map[string]any{
		{"error": "slow_down"},
		{"error": "authorization_pending"},
	}}
	client, _ := newTestClient(t, provider)
	ctx := context.Background()

	info, err := client.Start(ctx)
	require.NoError(t, err)

	res, err := client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollSlowDown, res.Status)
	assert.Equal(t, 10, res.Interval)

	res, err = client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollPending, res.Status)
	assert.Equal(t, 10, res.Interval)
}

func TestDeviceFlowDenialIsTerminal(t *testing.T) {
	provider := &fakeProvider{tokenAnswers: []map[string]any{
		{"error": "access_denied"},
	}}
	client, _ := newTestClient(t, provider)
	ctx := context.Background()

	info, err := client.Start(ctx)
	require.NoError(t, err)

	res, err := client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollDenied, res.Status)

	res, err = client.Poll(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, PollInvalid, res.Status)
}

func TestPollUnknownSession(t *testing.T) {
	client, _ := newTestClient(t, &fakeProvider{tokenAnswers: []map[string]any{{}}})

	res, err := client.Poll(context.Background(), "no-such-session")
	require.NoError(t, err)
	assert.Equal(t, PollInvalid, res.Status)
}

func TestLogoutDropsTokenAndFlow(t *testing.T) {
	provider := &fakeProvider{tokenAnswers: []map[string]any{
		{"access_token": "gho_token", "token_type": "bearer"},
	}}
	client, store := newTestClient(t, provider)
	ctx := context.Background()

	info, err := client.Start(ctx)
	require.NoError(t, err)
	_, err = client.Poll(ctx, info.SessionID)
	require.NoError(t, err)

	require.NoError(t, client.Logout(ctx, info.SessionID))
	_, err = store.Get(ctx, info.SessionID)
	assert.ErrorIs(t, err, ErrTokenNotFound)
	assert.Zero(t, client.FlowCount())
}

func TestUserInfo(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"device_code": "d", "user_code": "U", "verification_uri": "v",
			"expires_in": 900, "interval": 5,
		})
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"access_token": "gho_x", "token_type": "bearer"})
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Authorization"), "gho_x")
		json.NewEncoder(w).Encode(map[string]any{
			"login": "octocat", "name": "Octo Cat", "email": "octo@example.com",
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	store := NewMemoryTokenStore(10)
	defer store.Close()
	client := NewClient(config.OAuthConfig{
		ClientID: "id", BaseURL: srv.URL, APIBaseURL: srv.URL, TTLSeconds: 3600,
	}, store)
	ctx := context.Background()

	info, err := client.Start(ctx)
	require.NoError(t, err)
	_, err = client.Poll(ctx, info.SessionID)
	require.NoError(t, err)

	user, err := client.UserInfo(ctx, info.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "octocat", user.Login)
	assert.Equal(t, "Octo Cat", user.Name)
}
