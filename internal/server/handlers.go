package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/me/mudd/internal/callout"
	"github.com/me/mudd/internal/driver"
	"github.com/me/mudd/pkg/model"
)

type healthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())
	respondOK(w, reqID, healthResponse{
		Status:    "healthy",
		Version:   "0.1.0",
		GoVersion: runtime.Version(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	status, err := s.driver.Status(r.Context())
	if err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondOK(w, reqID, status)
}

func (s *Server) handleListObjects(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	objs, err := s.driver.Objects(r.Context())
	if err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondOK(w, reqID, objs)
}

type createObjectRequest struct {
	Name   string `json:"name"`
	Source string `json:"source"`
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req createObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body"))
		return
	}
	if req.Name == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("name is required"))
		return
	}

	obj, err := s.driver.CreateObject(r.Context(), req.Name, req.Source)
	if err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, obj)
}

func (s *Server) handleListCallouts(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	cos, err := s.driver.Callouts(r.Context())
	if err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondOK(w, reqID, cos)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	var req model.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("invalid JSON body"))
		return
	}
	if req.Object == "" || req.Method == "" {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("object and method are required"))
		return
	}

	res, err := s.driver.Schedule(r.Context(), req)
	if err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondCreated(w, reqID, res)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	handle, err := strconv.ParseUint(chi.URLParam(r, "handle"), 10, 16)
	if err != nil || handle == 0 {
		respondError(w, reqID, http.StatusBadRequest,
			model.NewValidationError("handle must be a positive 16-bit integer"))
		return
	}

	if err := s.driver.Cancel(r.Context(), chi.URLParam(r, "object"), uint16(handle)); err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"cancelled": true})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	reqID := RequestIDFromContext(r.Context())

	if err := s.driver.Snapshot(r.Context()); err != nil {
		s.respondDriverError(w, reqID, err)
		return
	}
	respondOK(w, reqID, map[string]any{"snapshot": true})
}

// respondDriverError maps driver and scheduler errors onto API errors.
func (s *Server) respondDriverError(w http.ResponseWriter, reqID string, err error) {
	switch {
	case errors.Is(err, driver.ErrObjectNotFound), errors.Is(err, driver.ErrCalloutNotFound):
		respondError(w, reqID, http.StatusNotFound, &model.APIError{
			Code: model.ErrNotFound, Message: err.Error(),
		})
	case errors.Is(err, callout.ErrTooMany), errors.Is(err, callout.ErrTooLong):
		respondError(w, reqID, http.StatusUnprocessableEntity, &model.APIError{
			Code: model.ErrValidation, Message: err.Error(),
		})
	default:
		s.logger.Error("request failed", "error", err, "request_id", reqID)
		respondError(w, reqID, http.StatusInternalServerError, &model.APIError{
			Code: model.ErrInternal, Message: err.Error(),
		})
	}
}
