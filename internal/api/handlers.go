package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mipworks/algo-control-plane/internal/algorithm"
	"github.com/mipworks/algo-control-plane/internal/router"
	"github.com/mipworks/algo-control-plane/internal/service"
)

// maxBodyBytes caps request bodies; job payloads above this are rejected.
const maxBodyBytes = 1 << 20

func (s *Server) createAlgorithm(w http.ResponseWriter, r *http.Request) {
	var spec algorithm.Spec
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rec, err := s.svc.Create(r.Context(), bearerToken(r), spec)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Algorithm registered, provisioning started",
		"algorithm": rec,
	})
}

func (s *Server) listAlgorithms(w http.ResponseWriter, r *http.Request) {
	if anonymous(r) {
		list, err := s.svc.PublicList(r.Context(), limitParam(r))
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"algorithms": list})
		return
	}
	recs, err := s.svc.List(r.Context(), bearerToken(r), limitParam(r))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"algorithms": recs})
}

func (s *Server) getAlgorithm(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "algorithm_id")
	if anonymous(r) {
		rec, err := s.svc.PublicGet(r.Context(), id)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
		return
	}
	rec, err := s.svc.Get(r.Context(), bearerToken(r), id)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// anonymous reports whether the caller presented no credential at all.
// Requests with a credential, even a bad one, go down the authenticated
// path so an invalid token is a 401 instead of a silently degraded view.
func anonymous(r *http.Request) bool {
	return r.Header.Get("Authorization") == ""
}

func (s *Server) updateAlgorithm(w http.ResponseWriter, r *http.Request) {
	var u algorithm.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	rec, err := s.svc.Update(r.Context(), bearerToken(r), chi.URLParam(r, "algorithm_id"), u)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"message":   "Update accepted, reconciliation started",
		"algorithm": rec,
	})
}

func (s *Server) deleteAlgorithm(w http.ResponseWriter, r *http.Request) {
	hard := r.URL.Query().Get("hard") == "true"
	err := s.svc.Delete(r.Context(), bearerToken(r), chi.URLParam(r, "algorithm_id"), hard)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	msg := "Scale down started"
	if hard {
		msg = "Deletion started"
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"message": msg})
}

func (s *Server) process(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	receipt, err := s.jobs.Route(r.Context(), chi.URLParam(r, "algorithm_id"), payload)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, receipt)
}

// writeServiceError maps domain errors to HTTP statuses. Unmapped errors
// surface as 502: the control plane itself is fine, a backend call failed.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, algorithm.ErrInvalidSpec), errors.Is(err, algorithm.ErrNothingToUpdate):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, algorithm.ErrNotFound), errors.Is(err, router.ErrNotRoutable):
		writeError(w, http.StatusNotFound, "algorithm not found")
	case errors.Is(err, algorithm.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "algorithm already exists")
	default:
		s.logger.Error("backend call failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "backend error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
