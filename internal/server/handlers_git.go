package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"gitscribe/pkg/logging"
)

func (s *Server) handleGetRemote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"git_repo": sess.RemoteURL})
}

type setRemoteRequest struct {
	GitRepo string `json:"git_repo"`
}

// handleSetRemote stores a new remote URL for the session and reattaches
// the workspace repository to it.
func (s *Server) handleSetRemote(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setRemoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.GitRepo == "" {
		writeJSON(w, http.StatusBadRequest, "git_repo is required", nil)
		return
	}
	if err := s.deps.Registry.UpdateRemote(id, req.GitRepo); err != nil {
		writeError(w, err)
		return
	}

	sess.RemoteURL = req.GitRepo
	opts := s.gitOptions(r, sess)
	status, err := s.deps.Git.Init(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.deps.Registry.MarkInitialized(id)
	writeOK(w, map[string]string{"status": string(status)})
}

type initRequest struct {
	GitRepo string `json:"git_repo"`
}

// handleInit runs workspace initialization: connect, clone, or create
// depending on what exists locally and remotely.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req initRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.GitRepo != "" && req.GitRepo != sess.RemoteURL {
		if err := s.deps.Registry.UpdateRemote(id, req.GitRepo); err != nil {
			writeError(w, err)
			return
		}
		sess.RemoteURL = req.GitRepo
	}

	status, err := s.deps.Git.Init(r.Context(), s.gitOptions(r, sess))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.deps.Registry.MarkInitialized(id)
	writeOK(w, map[string]string{"status": string(status)})
}

func (s *Server) handlePull(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.deps.Git.Pull(r.Context(), s.gitOptions(r, sess)); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, nil)
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := s.deps.Git.Commit(r.Context(), s.gitOptions(r, sess))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, result)
}

// handleReset discards the workspace entirely and starts a fresh session
// for the same user, re-initializing from the remote when one is set.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	logging.Info("HTTP", "Resetting session %s", logging.TruncateID(id))

	newID, path, err := s.deps.Registry.Create(sess.UserKey, true)
	if err != nil {
		writeError(w, err)
		return
	}
	if sess.RemoteURL != "" {
		if err := s.deps.Registry.UpdateRemote(newID, sess.RemoteURL); err != nil {
			writeError(w, err)
			return
		}
	}

	opts := s.gitOptions(r, sess)
	opts.Path = path
	status, err := s.deps.Git.Init(r.Context(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.deps.Registry.MarkInitialized(newID)
	writeOK(w, map[string]string{"session_id": newID, "status": string(status)})
}

// handleSoftReset keeps local files and re-runs initialization so the
// repository state is reattached to the remote.
func (s *Server) handleSoftReset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	id, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	status, err := s.deps.Git.Init(r.Context(), s.gitOptions(r, sess))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = s.deps.Registry.MarkInitialized(id)
	writeOK(w, map[string]string{"status": string(status)})
}

func (s *Server) handleRedeploy(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Deploy == nil || !s.deps.Deploy.Enabled() {
		writeJSON(w, http.StatusConflict, "no deploy command configured", nil)
		return
	}
	// Deploys run detached from the request so a slow build cannot hold
	// the connection open.
	go s.deps.Deploy.Run(context.WithoutCancel(r.Context()), sess.Path)
	writeOK(w, map[string]string{"status": "started"})
}
