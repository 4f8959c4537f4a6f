package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"gitscribe/internal/config"
	"gitscribe/internal/content"
	"gitscribe/internal/gitsync"
	"gitscribe/internal/oauth"
	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// envelope is the uniform response shape for every endpoint.
type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Code: status, Message: message, Data: data})
}

func writeOK(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, "ok", data)
}

// writeError maps domain errors onto HTTP statuses with user-safe messages.
func writeError(w http.ResponseWriter, err error) {
	var opErr *gitsync.OpError
	switch {
	case errors.Is(err, workspace.ErrSessionNotFound):
		writeJSON(w, http.StatusNotFound, "session not found", nil)
	case errors.Is(err, workspace.ErrInvalidUserKey):
		writeJSON(w, http.StatusBadRequest, "invalid user id", nil)
	case errors.Is(err, content.ErrInvalidPath):
		writeJSON(w, http.StatusBadRequest, "invalid file path", nil)
	case errors.Is(err, content.ErrNotFound):
		writeJSON(w, http.StatusNotFound, "file not found", nil)
	case errors.Is(err, oauth.ErrTokenNotFound):
		writeJSON(w, http.StatusUnauthorized, "not authenticated", nil)
	case errors.As(err, &opErr):
		writeJSON(w, http.StatusUnprocessableEntity, opErr.Message,
			map[string]string{"category": string(opErr.Category)})
	default:
		writeJSON(w, http.StatusInternalServerError, "internal error", nil)
	}
}

func (s *Server) maxBody() int64 {
	if s.deps.Config.Server.MaxBodyBytes > 0 {
		return s.deps.Config.Server.MaxBodyBytes
	}
	return config.DefaultMaxBodyBytes
}

// bodyLimit caps request bodies so a runaway upload cannot exhaust memory.
func (s *Server) bodyLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > s.maxBody() {
			writeJSON(w, http.StatusRequestEntityTooLarge, "request body too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBody())
		next.ServeHTTP(w, r)
	})
}

func (s *Server) allowedOrigin(origin string) bool {
	for _, allowed := range s.deps.Config.Server.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// corsHeaders answers preflight requests and stamps CORS headers for
// allowed origins.
func (s *Server) corsHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.allowedOrigin(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers",
				"Content-Type, "+headerSession+", "+headerAuthSession)
			w.Header().Set("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// csrfGuard rejects state-changing cross-origin requests. Browsers always
// send Origin (or at least Referer) on such requests; requests without
// either come from non-browser clients and pass. Auth endpoints are exempt
// so the device flow can be driven from anywhere.
func (s *Server) csrfGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		if strings.HasPrefix(r.URL.Path, "/api/auth/") {
			next.ServeHTTP(w, r)
			return
		}

		origin := r.Header.Get("Origin")
		if origin == "" {
			if referer := r.Header.Get("Referer"); referer != "" {
				if u, err := url.Parse(referer); err == nil {
					origin = u.Scheme + "://" + u.Host
				}
			}
		}
		if origin == "" || s.allowedOrigin(origin) || sameHost(origin, r.Host) {
			next.ServeHTTP(w, r)
			return
		}
		logging.Warn("HTTP", "Rejected cross-origin %s %s from %s", r.Method, r.URL.Path, origin)
		writeJSON(w, http.StatusForbidden, "cross-origin request rejected", nil)
	})
}

func sameHost(origin, host string) bool {
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return u.Host == host
}

// recoverPanics converts handler panics into a generic 500 and logs the
// full details server-side.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.Error("HTTP", nil, "Panic serving %s %s: %v", r.Method, r.URL.Path, rec)
				writeJSON(w, http.StatusInternalServerError, "internal error", nil)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
