package server

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) handlePostList(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	posts, err := s.deps.Posts.List(sess.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"posts": posts})
}

// handlePostChanges lists pending workspace changes with the same labels
// the commit messages carry, bulk-delete summary included.
func (s *Server) handlePostChanges(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	changes, messages, err := s.deps.Git.Changes(r.Context(), s.gitOptions(r, sess))
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"changes": changes, "messages": messages})
}

func (s *Server) handlePostCategories(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	categories, err := s.deps.Posts.Categories(sess.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeOK(w, map[string]any{"categories": categories})
}

type createPostRequest struct {
	Title string `json:"title"`
}

func (s *Server) handlePostCreate(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	_, sess, err := s.session(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req createPostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusBadRequest, "title is required", nil)
		return
	}
	rel, err := s.deps.Posts.Create(sess.Path, req.Title)
	if err != nil {
		writeJSON(w, http.StatusConflict, err.Error(), nil)
		return
	}
	s.stage(r, sess, rel)
	writeOK(w, map[string]string{"path": rel})
}

// handlePostDelete removes a post and prunes images nothing references
// anymore.
func (s *Server) handlePostDelete(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
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
	pruned, err := s.deps.Posts.PruneUnusedImages(sess.Path)
	if err != nil {
		writeError(w, err)
		return
	}
	s.stage(r, sess, rel)
	writeOK(w, map[string]any{"path": rel, "pruned_images": pruned})
}
