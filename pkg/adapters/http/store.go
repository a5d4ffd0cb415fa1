package http

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/aretw0/callflow/pkg/catalog"
	"github.com/aretw0/callflow/pkg/domain"
	"github.com/aretw0/callflow/pkg/ports"
	"github.com/go-chi/chi/v5"
)

// MaxDocumentSize caps PUT bodies.
const MaxDocumentSize = 4 << 20

var errListUnsupported = errors.New("store cannot list keys")

// ListKeys handles GET /store?prefix=.
func (s *Server) ListKeys(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.store.(ports.Lister)
	if !ok {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: errListUnsupported.Error(), Code: "not_implemented"})
		return
	}
	keys, err := lister.List(r.Context(), r.URL.Query().Get("prefix"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, map[string][]string{"keys": keys})
}

// GetDocument handles GET /store/{key}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	obj, err := s.store.Get(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", quoteETag(obj.Version))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(obj.Body)
}

// GetVersion handles HEAD /store/{key}.
func (s *Server) GetVersion(w http.ResponseWriter, r *http.Request) {
	version, err := s.store.Version(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		status, _ := statusFor(err)
		w.WriteHeader(status)
		return
	}
	w.Header().Set("ETag", quoteETag(version))
	w.WriteHeader(http.StatusOK)
}

// PutDocument handles PUT /store/{key}. If-Match replaces the version it
// names; If-None-Match: * creates. One of them is required.
func (s *Server) PutDocument(w http.ResponseWriter, r *http.Request) {
	req := ports.PutRequest{
		Key:        chi.URLParam(r, "*"),
		Credential: bearer(r),
	}

	ifMatch := r.Header.Get("If-Match")
	switch {
	case ifMatch != "":
		req.IfMatch = unquoteETag(ifMatch)
	case strings.TrimSpace(r.Header.Get("If-None-Match")) == "*":
	default:
		writeJSON(w, http.StatusPreconditionRequired, errorResponse{
			Error: "If-Match or If-None-Match: * is required",
			Code:  "precondition_required",
		})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxDocumentSize))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: err.Error(), Code: "too_large"})
		return
	}
	req.Body = body

	version, err := s.store.Put(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("document stored", "key", req.Key, "version", version)

	w.Header().Set("ETag", quoteETag(version))
	if req.IfMatch == "" {
		w.WriteHeader(http.StatusCreated)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ListLeads handles GET /leads?q=&group=.
func (s *Server) ListLeads(w http.ResponseWriter, r *http.Request) {
	leads, err := catalog.Load(r.Context(), s.store, s.collection)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	leads = catalog.Filter(leads, r.URL.Query().Get("q"))

	if r.URL.Query().Get("group") == "true" {
		groups := catalog.GroupByOrganization(leads)
		if groups == nil {
			groups = []catalog.Group{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
		return
	}
	if leads == nil {
		leads = []domain.SubjectSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func quoteETag(version string) string {
	return `"` + version + `"`
}

func unquoteETag(tag string) string {
	tag = strings.TrimSpace(tag)
	tag = strings.TrimPrefix(tag, "W/")
	return strings.Trim(tag, `"`)
}
