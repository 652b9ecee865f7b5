package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/rmax-ai/diagraph/pkg/blob"
	"github.com/rmax-ai/diagraph/pkg/graph"
	"github.com/rmax-ai/diagraph/pkg/store"
)

// errorCode maps a domain error to its HTTP status and error code.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, graph.ErrUnknownEntityType):
		return http.StatusBadRequest, "unknown_entity_type"
	case errors.Is(err, graph.ErrInvalidKey):
		return http.StatusBadRequest, "invalid_key"
	case errors.Is(err, graph.ErrUnknownRelationType):
		return http.StatusBadRequest, "unknown_relation_type"
	case errors.Is(err, graph.ErrInvalidSeverity):
		return http.StatusBadRequest, "invalid_severity"
	case errors.Is(err, graph.ErrInvalidFact):
		return http.StatusBadRequest, "invalid_fact"
	case errors.Is(err, graph.ErrEntityNotFound):
		return http.StatusNotFound, "entity_not_found"
	case errors.Is(err, store.ErrReportNotFound):
		return http.StatusNotFound, "report_not_found"
	case errors.Is(err, blob.ErrNotFound):
		return http.StatusNotFound, "blob_not_found"
	default:
		return http.StatusInternalServerError, "internal_server_error"
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	resp := ErrorResponse{Error: code}
	if err != nil && status < http.StatusInternalServerError {
		resp.Details = err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

// fail writes the mapped error response; server errors are logged.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status, code := errorCode(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
	}
	writeError(w, status, code, err)
}

func (s *Server) writeJSON(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed_to_encode_response", zap.String("trace_id", getTraceID(r.Context())), zap.Error(err))
	}
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json_body", err)
		return false
	}
	return true
}
