package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"

	"gitscribe/internal/workspace"
	"gitscribe/pkg/logging"
)

// routePath extracts the wildcard path segment, stripped of its leading
// slash.
func routePath(ps httprouter.Params) string {
	return strings.TrimPrefix(ps.ByName("path"), "/")
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	entries, err := s.deps.Files.List(sess.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"files": entries})
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := s.deps.Files.Read(sess.Path, routePath(ps))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"path": routePath(ps), "content": string(data)})
}

type writeFileRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleFileWrite(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req writeFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	rel := routePath(ps)
	if err := s.deps.Files.Write(sess.Path, rel, []byte(req.Content)); err != nil {
		writeError(w, err)
		return
	}
	s.stage(r, sess, rel)
	writeOK(w, map[string]string{"path": rel})
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rel := routePath(ps)
	if err := s.deps.Files.Delete(sess.Path, rel); err != nil {
		writeError(w, err)
		return
	}
	s.stage(r, sess, rel)
	writeOK(w, map[string]string{"path": rel})
}

type renameFileRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

func (s *Server) handleFileRename(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req renameFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, "from and to are required", nil)
		return
	}
	if err := s.deps.Files.Rename(sess.Path, req.From, req.To); err != nil {
		writeError(w, err)
		return
	}
	s.stage(r, sess, req.From)
	s.stage(r, sess, req.To)
	writeOK(w, map[string]string{"from": req.From, "to": req.To})
}

type createFolderRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleFolderCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, "path is required", nil)
		return
	}
	if err := s.deps.Files.Mkdir(sess.Path, req.Path); err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]string{"path": req.Path})
}

// stage marks a touched path in the index so the next commit picks it up
// even if the file later disappears. Best effort; commit stages everything
// anyway.
func (s *Server) stage(r *http.Request, sess workspace.Session, rel string) {
	if err := s.deps.Git.Add(r.Context(), s.gitOptions(r, sess), rel); err != nil {
		logging.Debug("HTTP", "Staging %s failed: %v", rel, err)
	}
}
