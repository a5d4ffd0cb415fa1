package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/aretw0/callflow/pkg/session"
	"github.com/aretw0/callflow/pkg/syncer"
	"github.com/go-chi/chi/v5"
)

type sessionResponse struct {
	SessionID string `json:"session_id"`
	session.View
}

type openRequest struct {
	Location string `json:"location"`
}

type navigateRequest struct {
	Node   string `json:"node"`
	Choice *int   `json:"choice"`
}

type nodeRequest struct {
	Label *string `json:"label"`
	Say   *string `json:"say"`
	Note  *string `json:"note"`
}

type branchRequest struct {
	Label *string `json:"label"`
	To    *string `json:"to"`
}

type contextRequest struct {
	Context string `json:"context"`
}

type addNodeRequest struct {
	ID string `json:"id"`
}

// ListSessions handles GET /sessions.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.sessions.List()})
}

// OpenSession handles POST /sessions.
func (s *Server) OpenSession(w http.ResponseWriter, r *http.Request) {
	var body openRequest
	if !s.decode(w, r, &body) {
		return
	}
	id, fs, err := s.sessions.Open(r.Context(), body.Location)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sessionResponse{SessionID: id, View: fs.View()})
}

// GetSession handles GET /sessions/{id}.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(*session.FlowSession) error { return nil })
}

// CloseSession handles DELETE /sessions/{id}?discard=.
func (s *Server) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Close(r.Context(), chi.URLParam(r, "id"), confirmer(r)); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Navigate handles POST /sessions/{id}/navigate. A choice index takes
// precedence over a node id.
func (s *Server) Navigate(w http.ResponseWriter, r *http.Request) {
	var body navigateRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.withSession(w, r, func(fs *session.FlowSession) error {
		if body.Choice != nil {
			_, err := fs.Choose(*body.Choice)
			return err
		}
		if !fs.Navigate(body.Node) {
			return fmt.Errorf("%w: %q", domain.ErrNodeNotFound, body.Node)
		}
		return nil
	})
}

// Back handles POST /sessions/{id}/back.
func (s *Server) Back(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		fs.Back()
		return nil
	})
}

// StartOver handles POST /sessions/{id}/start-over.
func (s *Server) StartOver(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		fs.StartOver()
		return nil
	})
}

// ToggleBriefing handles POST /sessions/{id}/briefing.
func (s *Server) ToggleBriefing(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		fs.ToggleBriefing()
		return nil
	})
}

// EnterEdit handles POST /sessions/{id}/edit.
func (s *Server) EnterEdit(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		fs.EnterEdit()
		return nil
	})
}

// ExitEdit handles POST /sessions/{id}/edit/exit?discard=.
func (s *Server) ExitEdit(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		return fs.ExitEdit(r.Context(), confirmer(r))
	})
}

// Save handles POST /sessions/{id}/save. The bearer credential of the
// request authorises the write; it is never stored on the server.
func (s *Server) Save(w http.ResponseWriter, r *http.Request) {
	token := bearer(r)
	if token == "" {
		s.writeError(w, r, domain.ErrCredentialRequired)
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.sessions.Save(r.Context(), id, syncer.NewStaticCredential(token)); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.withSession(w, r, func(*session.FlowSession) error { return nil })
}

// Reload handles POST /sessions/{id}/reload?discard=.
func (s *Server) Reload(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		return fs.Reload(r.Context(), confirmer(r))
	})
}

// EditNode handles PATCH /sessions/{id}/node.
func (s *Server) EditNode(w http.ResponseWriter, r *http.Request) {
	var body nodeRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.withSession(w, r, func(fs *session.FlowSession) error {
		if body.Label != nil {
			if err := fs.SetLabel(*body.Label); err != nil {
				return err
			}
		}
		if body.Say != nil {
			if err := fs.SetSay(*body.Say); err != nil {
				return err
			}
		}
		if body.Note != nil {
			if err := fs.SetNote(*body.Note); err != nil {
				return err
			}
		}
		return nil
	})
}

// SetContext handles PUT /sessions/{id}/context.
func (s *Server) SetContext(w http.ResponseWriter, r *http.Request) {
	var body contextRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.withSession(w, r, func(fs *session.FlowSession) error {
		return fs.SetContext(body.Context)
	})
}

// AddBranch handles POST /sessions/{id}/branches.
func (s *Server) AddBranch(w http.ResponseWriter, r *http.Request) {
	s.withSession(w, r, func(fs *session.FlowSession) error {
		return fs.AddBranch()
	})
}

// EditBranch handles PATCH /sessions/{id}/branches/{index}.
func (s *Server) EditBranch(w http.ResponseWriter, r *http.Request) {
	index, ok := s.branchIndex(w, r)
	if !ok {
		return
	}
	var body branchRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.withSession(w, r, func(fs *session.FlowSession) error {
		if body.Label != nil {
			if err := fs.SetBranchLabel(index, *body.Label); err != nil {
				return err
			}
		}
		if body.To != nil {
			if err := fs.RetargetBranch(index, *body.To); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteBranch handles DELETE /sessions/{id}/branches/{index}.
func (s *Server) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	index, ok := s.branchIndex(w, r)
	if !ok {
		return
	}
	s.withSession(w, r, func(fs *session.FlowSession) error {
		return fs.DeleteBranch(index)
	})
}

// RetargetOptions handles GET /sessions/{id}/targets.
func (s *Server) RetargetOptions(w http.ResponseWriter, r *http.Request) {
	fs, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"targets": fs.RetargetOptions()})
}

// AddNode handles POST /sessions/{id}/nodes.
func (s *Server) AddNode(w http.ResponseWriter, r *http.Request) {
	var body addNodeRequest
	if !s.decode(w, r, &body) {
		return
	}
	s.withSession(w, r, func(fs *session.FlowSession) error {
		return fs.AddNode(body.ID)
	})
}

// withSession runs fn on the session named in the path and answers with
// its view.
func (s *Server) withSession(w http.ResponseWriter, r *http.Request, fn func(*session.FlowSession) error) {
	id := chi.URLParam(r, "id")
	fs, err := s.sessions.Get(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := fn(fs); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, View: fs.View()})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.logger.Warn("invalid request body", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body", Code: "bad_request"})
		return false
	}
	return true
}

func (s *Server) branchIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %s", domain.ErrBranchNotFound, chi.URLParam(r, "index")))
		return 0, false
	}
	return index, true
}

// confirmer answers discard prompts from the discard query parameter.
func confirmer(r *http.Request) ports.Confirmer {
	if ok, _ := strconv.ParseBool(r.URL.Query().Get("discard")); ok {
		return ports.AlwaysConfirm
	}
	return ports.NeverConfirm
}
