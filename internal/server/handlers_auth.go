package server

import (
	"net"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"gitscribe/internal/oauth"
)

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// handleDeviceCode starts a device authorization flow. Rate limited per
// client IP so a misbehaving frontend cannot burn the provider quota.
func (s *Server) handleDeviceCode(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if s.deps.Limiter != nil {
		if allowed, retryAfter := s.deps.Limiter.Allow(clientIP(r)); !allowed {
			seconds := int(retryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			writeJSON(w, http.StatusTooManyRequests, "too many requests",
				map[string]int{"retry_after": seconds})
			return
		}
	}

	info, err := s.deps.Auth.Start(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, info)
}

// handleAuthPoll runs one poll round of the device flow for the auth
// session in the header.
func (s *Server) handleAuthPoll(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	authID := r.Header.Get(headerAuthSession)
	if authID == "" {
		writeJSON(w, http.StatusBadRequest, "missing auth session header", nil)
		return
	}
	result, err := s.deps.Auth.Poll(r.Context(), authID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, result)
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	authID := r.Header.Get(headerAuthSession)
	authenticated := false
	if authID != "" {
		if _, err := s.deps.Auth.Token(r.Context(), authID); err == nil {
			authenticated = true
		}
	}
	writeOK(w, map[string]bool{"authenticated": authenticated})
}

func (s *Server) handleAuthUser(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	authID := r.Header.Get(headerAuthSession)
	if authID == "" {
		writeError(w, oauth.ErrTokenNotFound)
		return
	}
	info, err := s.deps.Auth.UserInfo(r.Context(), authID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, info)
}

func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	authID := r.Header.Get(headerAuthSession)
	if authID == "" {
		writeJSON(w, http.StatusBadRequest, "missing auth session header", nil)
		return
	}
	if err := s.deps.Auth.Logout(r.Context(), authID); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}
