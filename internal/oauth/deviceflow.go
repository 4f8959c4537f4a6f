package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"gitscribe/internal/config"
	"gitscribe/pkg/logging"
)

const deviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

// slowDownIncrement is added to the poll interval on a slow_down answer,
// per RFC 8628 section 3.5.
const slowDownIncrement = 5

// Client drives the OAuth device authorization flow against a GitHub-shaped
// provider and hands finished tokens to the token store. One auth session ID
// maps to one flow attempt; browsers poll with that ID, never with the
// device code itself.
type Client struct {
	cfg        config.OAuthConfig
	oauth      *oauth2.Config
	httpClient *http.Client
	store      TokenStore
	ttl        time.Duration

	mu    sync.Mutex
	flows map[string]*deviceSession

	userGroup singleflight.Group
}

// NewClient builds a device flow client from the OAuth configuration.
func NewClient(cfg config.OAuthConfig, store TokenStore) *Client {
	base := strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:       base + "/login/oauth/authorize",
				TokenURL:      base + "/login/oauth/access_token",
				DeviceAuthURL: base + "/login/device/code",
			},
		},
		httpClient: &http.Client{Timeout: 30 * time.Second},
		store:      store,
		ttl:        time.Duration(cfg.TTLSeconds) * time.Second,
		flows:      make(map[string]*deviceSession),
	}
}

// Start requests device and user codes from the provider and opens a new
// flow. The returned info is safe to hand to the browser.
func (c *Client) Start(ctx context.Context) (*DeviceAuthInfo, error) {
	if c.cfg.ClientID == "" {
		return nil, fmt.Errorf("oauth client ID is not configured")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	resp, err := c.oauth.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("requesting device code: %w", err)
	}

	interval := int(resp.Interval)
	if interval <= 0 {
		interval = 5
	}
	sessionID := uuid.New().String()

	c.mu.Lock()
	c.flows[sessionID] = &deviceSession{
		DeviceCode: resp.DeviceCode,
		UserCode:   resp.UserCode,
		State:      FlowPending,
		Interval:   interval,
		CreatedAt:  time.Now(),
		ExpiresAt:  resp.Expiry,
	}
	c.mu.Unlock()

	logging.Info("OAuth", "Started device flow session=%s user_code=%s",
		logging.TruncateID(sessionID), resp.UserCode)

	return &DeviceAuthInfo{
		SessionID:       sessionID,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		ExpiresIn:       int(time.Until(resp.Expiry).Seconds()),
		Interval:        interval,
	}, nil
}

// tokenResponse is the provider's answer to a device token poll. GitHub
// answers HTTP 200 for both success and pending states, distinguishing them
// through the error field.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Scope       string `json:"scope"`
	Error       string `json:"error"`
	Interval    int    `json:"interval"`
}

// Poll performs exactly one token request for the flow. The caller decides
// when to poll again based on the returned status and interval; flows in a
// terminal state always answer invalid_device.
func (c *Client) Poll(ctx context.Context, sessionID string) (*PollResult, error) {
	c.mu.Lock()
	flow, ok := c.flows[sessionID]
	if !ok || flow.State.terminal() {
		c.mu.Unlock()
		return &PollResult{Status: PollInvalid}, nil
	}
	if time.Now().After(flow.ExpiresAt) {
		flow.State = FlowExpired
		c.mu.Unlock()
		return &PollResult{Status: PollExpired}, nil
	}
	deviceCode := flow.DeviceCode
	interval := flow.Interval
	c.mu.Unlock()

	resp, err := c.requestToken(ctx, deviceCode)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch resp.Error {
	case "":
		now := time.Now()
		token := &Token{
			AccessToken: resp.AccessToken,
			TokenType:   resp.TokenType,
			Scope:       resp.Scope,
			CreatedAt:   now,
		}
		if c.ttl > 0 {
			token.ExpiresAt = now.Add(c.ttl)
		}
		if err := c.store.Put(ctx, sessionID, token); err != nil {
			return nil, fmt.Errorf("storing token: %w", err)
		}
		flow.State = FlowAuthorized
		logging.Info("OAuth", "Device flow authorized session=%s", logging.TruncateID(sessionID))
		return &PollResult{Status: PollAuthorized}, nil

	case "authorization_pending":
		return &PollResult{Status: PollPending, Interval: interval}, nil

	case "slow_down":
		flow.Interval = interval + slowDownIncrement
		if resp.Interval > flow.Interval {
			flow.Interval = resp.Interval
		}
		return &PollResult{Status: PollSlowDown, Interval: flow.Interval}, nil

	case "access_denied":
		flow.State = FlowDenied
		logging.Info("OAuth", "Device flow denied session=%s", logging.TruncateID(sessionID))
		return &PollResult{Status: PollDenied}, nil

	case "expired_token":
		flow.State = FlowExpired
		return &PollResult{Status: PollExpired}, nil

	default:
		return nil, fmt.Errorf("provider rejected token poll: %s", resp.Error)
	}
}

func (c *Client) requestToken(ctx context.Context, deviceCode string) (*tokenResponse, error) {
	form := url.Values{
		"client_id":   {c.cfg.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {deviceGrantType},
	}
	if c.cfg.ClientSecret != "" {
		form.Set("client_secret", c.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.oauth.Endpoint.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("polling token endpoint: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}
	var resp tokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	return &resp, nil
}

// Token returns the stored access token for an authorized session.
func (c *Client) Token(ctx context.Context, sessionID string) (*Token, error) {
	return c.store.Get(ctx, sessionID)
}

// UserInfo fetches the provider profile for the session's token. Concurrent
// calls for the same session collapse into one upstream request.
func (c *Client) UserInfo(ctx context.Context, sessionID string) (*UserInfo, error) {
	v, err, _ := c.userGroup.Do(sessionID, func() (interface{}, error) {
		token, err := c.store.Get(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		return c.fetchUserInfo(ctx, token)
	})
	if err != nil {
		return nil, err
	}
	return v.(*UserInfo), nil
}

func (c *Client) fetchUserInfo(ctx context.Context, token *Token) (*UserInfo, error) {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	})
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	client := oauth2.NewClient(ctx, src)

	apiBase := strings.TrimSuffix(c.cfg.APIBaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBase+"/user", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching user profile: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user profile request failed with status %d", resp.StatusCode)
	}
	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding user profile: %w", err)
	}
	return &info, nil
}

// Logout revokes the session's grant at the provider (best effort) and
// drops the local token and flow record.
func (c *Client) Logout(ctx context.Context, sessionID string) error {
	if token, err := c.store.Get(ctx, sessionID); err == nil {
		if err := c.revokeGrant(ctx, token.AccessToken); err != nil {
			logging.Warn("OAuth", "Could not revoke grant for session=%s: %v",
				logging.TruncateID(sessionID), err)
		}
	}
	c.mu.Lock()
	delete(c.flows, sessionID)
	c.mu.Unlock()
	return c.store.Delete(ctx, sessionID)
}

// revokeGrant invalidates the token at the provider so it cannot be used
// after logout. Requires the client secret; without one only local state is
// dropped.
func (c *Client) revokeGrant(ctx context.Context, accessToken string) error {
	if c.cfg.ClientSecret == "" {
		return nil
	}
	apiBase := strings.TrimSuffix(c.cfg.APIBaseURL, "/")
	endpoint := fmt.Sprintf("%s/applications/%s/grant", apiBase, c.cfg.ClientID)

	body, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("revocation answered status %d", resp.StatusCode)
	}
	return nil
}

// SweepExpiredFlows marks overdue pending flows expired and drops terminal
// flow records older than their expiry. Returns how many were removed.
func (c *Client) SweepExpiredFlows() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, flow := range c.flows {
		if flow.State == FlowPending && now.After(flow.ExpiresAt) {
			flow.State = FlowExpired
		}
		if flow.State.terminal() && now.After(flow.ExpiresAt) {
			delete(c.flows, id)
			removed++
		}
	}
	if removed > 0 {
		logging.Debug("OAuth", "Swept %d finished device flows", removed)
	}
	return removed
}

// FlowCount returns the number of tracked device flows.
func (c *Client) FlowCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.flows)
}
