package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/dativo-io/veil/internal/analyzer"
	"github.com/dativo-io/veil/internal/otel"
)

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes {"error": code, "message": message}.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

func (s *Server) handleAnonymize(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body exceeds the configured limit")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", "reading request body: "+err.Error())
		return
	}

	req, err := decodeAnonymizeRequest(body)
	if err != nil {
		var verr *validationError
		if errors.As(err, &verr) {
			resp := map[string]interface{}{"error": "invalid_request", "message": verr.message}
			if len(verr.details) > 0 {
				resp["details"] = verr.details
			}
			writeJSON(w, http.StatusUnprocessableEntity, resp)
			return
		}
		writeError(w, http.StatusInternalServerError, "internal", err.Error())
		return
	}

	resp, err := s.svc.Anonymize(ctx, req)
	if err != nil {
		log.Error().Err(err).
			Str("request_id", middleware.GetReqID(ctx)).
			Str("method", req.Method).
			Str("language", req.Language).
			Func(otel.LogTraceFields(ctx)).
			Msg("anonymize_failed")
		writeError(w, http.StatusInternalServerError, "anonymization_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.startTime).String(),
	}
	if r.URL.Query().Get("detail") == "true" {
		components := map[string]interface{}{}
		if s.catalog != nil {
			components["languages"] = s.catalog.Languages()
		}
		if s.audit == nil {
			components["audit_log"] = "disabled"
		} else {
			components["audit_log"] = "ok"
			components["audit_dropped"] = s.audit.Dropped()
		}
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSupportedEntities(w http.ResponseWriter, r *http.Request) {
	if s.catalog == nil {
		writeError(w, http.StatusNotFound, "not_found", "entity catalog not configured")
		return
	}
	language := r.URL.Query().Get("language")
	if language == "" {
		language = analyzer.DefaultLanguage
	}
	entities, err := s.catalog.SupportedEntities(language)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported_language", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, entities)
}
