// Package server is the HTTP API in front of the editor backend.
//
// Every endpoint answers the same JSON envelope {code, message, data}.
// Two headers carry identity: X-Session-Id names the workspace session
// (which checkout on disk the request operates on) and X-Auth-Session
// names the OAuth device flow session (which stored token, if any, signs
// git operations).
//
// The middleware chain wraps the router in order: panic recovery, CORS
// for the configured origins, a CSRF origin check on state-changing
// requests (auth endpoints exempt), and a request body size cap.
package server
