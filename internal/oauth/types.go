package oauth

import (
	"time"
)

// Token is an access token obtained through the device authorization flow.
type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired checks whether the token expires within the given margin.
// Tokens without an expiry never expire.
func (t *Token) IsExpired(margin time.Duration) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return time.Now().Add(margin).After(t.ExpiresAt)
}

// FlowState tracks where a device authorization attempt stands.
type FlowState string

const (
	// FlowPending: codes issued, waiting for the user to authorize.
	FlowPending FlowState = "pending"
	// FlowAuthorized: token obtained and stored.
	FlowAuthorized FlowState = "authorized"
	// FlowDenied: the user rejected the authorization request.
	FlowDenied FlowState = "denied"
	// FlowExpired: the device code lapsed before the user acted.
	FlowExpired FlowState = "expired"
)

// terminal reports whether the flow can never leave this state.
func (s FlowState) terminal() bool {
	return s == FlowAuthorized || s == FlowDenied || s == FlowExpired
}

// deviceSession is the server-side record of one device flow attempt.
type deviceSession struct {
	DeviceCode string
	UserCode   string
	State      FlowState
	Interval   int
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// DeviceAuthInfo is what the browser needs to walk the user through
// authorization. The device code itself stays server-side.
type DeviceAuthInfo struct {
	SessionID       string `json:"session_id"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// Poll statuses returned to the browser. They mirror the provider's error
// codes so the frontend drives the same state machine either way.
const (
	PollPending    = "authorization_pending"
	PollSlowDown   = "slow_down"
	PollDenied     = "access_denied"
	PollExpired    = "expired_token"
	PollAuthorized = "authorized"
	// PollInvalid covers unknown session IDs and re-polls of flows that
	// already reached a terminal state.
	PollInvalid = "invalid_device"
)

// PollResult is the outcome of a single poll round.
type PollResult struct {
	Status string `json:"status"`
	// Interval is the wait the client should honor before the next poll,
	// in seconds.
	Interval int `json:"interval,omitempty"`
}

// UserInfo is the subset of the provider's user profile the editor shows.
type UserInfo struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}
