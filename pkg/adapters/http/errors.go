package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aretw0/callflow/pkg/domain"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// statusFor maps domain errors to an HTTP status and a stable code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrVersionConflict):
		return http.StatusPreconditionFailed, "conflict"
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrCredentialRequired):
		return http.StatusUnauthorized, "credential_required"
	case errors.Is(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, domain.ErrNoFlowData):
		return http.StatusUnprocessableEntity, "no_flow_data"
	case errors.Is(err, domain.ErrInvalidLocation):
		return http.StatusBadRequest, "invalid_location"
	case errors.Is(err, domain.ErrNodeNotFound):
		return http.StatusBadRequest, "node_not_found"
	case errors.Is(err, domain.ErrBranchNotFound):
		return http.StatusBadRequest, "branch_not_found"
	case errors.Is(err, domain.ErrInvalidNodeID):
		return http.StatusBadRequest, "invalid_node_id"
	case errors.Is(err, domain.ErrDuplicateNode):
		return http.StatusConflict, "duplicate_node"
	case errors.Is(err, domain.ErrNotEditing):
		return http.StatusConflict, "not_editing"
	case errors.Is(err, domain.ErrUnsavedChanges):
		return http.StatusConflict, "unsaved_changes"
	case errors.Is(err, domain.ErrSaveInFlight):
		return http.StatusConflict, "save_in_flight"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "code", code, "err", err)
	}
	writeJSON(w, status, errorResponse{Error: domain.Describe(err), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("response encode failed", "err", err)
	}
}
