package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"

	"gitscribe/pkg/logging"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	data := map[string]any{
		"status":          "ok",
		"sessions":        s.deps.Registry.Count(),
		"active_sessions": s.deps.Registry.ActiveCount(time.Hour),
	}
	if s.deps.Scheduler != nil {
		data["cleanup"] = s.deps.Scheduler.Status()
	}
	writeOK(w, data)
}

type createSessionRequest struct {
	UserID   string `json:"user_id"`
	GitRepo  string `json:"git_repo"`
	CleanOld bool   `json:"clean_old"`
}

type sessionResponse struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	GitRepo    string    `json:"git_repo,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	LastAccess time.Time `json:"last_access"`
}

// handleSessionCreate opens (or replaces) the workspace session for a user.
// One live session per user: creating again with clean_old wipes the
// previous workspace first.
func (s *Server) handleSessionCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}

	id, _, err := s.deps.Registry.Create(req.UserID, req.CleanOld)
	if err != nil {
		writeError(w, err)
		return
	}
	remote := req.GitRepo
	if remote == "" {
		remote = s.deps.Config.Git.DefaultRemote
	}
	if remote != "" {
		if err := s.deps.Registry.UpdateRemote(id, remote); err != nil {
			writeError(w, err)
			return
		}
	}

	sess, _ := s.deps.Registry.Get(id)
	logging.Info("HTTP", "Created session %s for user %s", logging.TruncateID(id), sess.UserKey)
	writeOK(w, sessionResponse{
		SessionID:  id,
		UserID:     sess.UserKey,
		GitRepo:    sess.RemoteURL,
		CreatedAt:  sess.CreatedAt,
		LastAccess: sess.LastAccess,
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}

	data := map[string]any{
		"session": sessionResponse{
			SessionID:  id,
			UserID:     sess.UserKey,
			GitRepo:    sess.RemoteURL,
			CreatedAt:  sess.CreatedAt,
			LastAccess: sess.LastAccess,
		},
		"initialized": sess.Initialized,
	}
	if repo, err := s.deps.Git.Status(r.Context(), s.gitOptions(r, sess)); err == nil {
		data["repo"] = repo
	}
	writeOK(w, data)
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id := r.Header.Get(headerSession)
	if id == "" {
		writeJSON(w, http.StatusBadRequest, "missing session header", nil)
		return
	}
	deleted := s.deps.Registry.Delete(id)
	writeOK(w, map[string]bool{"deleted": deleted})
}
