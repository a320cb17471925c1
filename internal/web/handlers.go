package web

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"goodzwork-checkin/internal/camera"
	"goodzwork-checkin/internal/checkin"
	"goodzwork-checkin/internal/webrtc"
)

const (
	errNoSession          = "no active session"
	errInvalidRequestBody = "invalid request body"
	maxOfferSize          = 64 * 1024
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// sessionError maps session control errors to HTTP statuses.
func sessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, checkin.ErrNotRunning):
		respondError(w, http.StatusNotFound, errNoSession)
	case errors.Is(err, checkin.ErrCaptureRefused):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusServiceUnavailable, err.Error())
	}
}

// ============================================================
// HEALTH & STATUS
// ============================================================

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	sess := s.opts.Current()
	if sess == nil {
		respondError(w, http.StatusNotFound, errNoSession)
		return
	}
	respondJSON(w, http.StatusOK, sess.Status())
}

// ============================================================
// CONTROL
// ============================================================

type autoAttendanceRequest struct {
	Enabled *bool `json:"enabled"`
}

func (s *Server) autoAttendance(w http.ResponseWriter, r *http.Request) {
	var req autoAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	sess := s.opts.Current()
	if sess == nil {
		respondError(w, http.StatusNotFound, errNoSession)
		return
	}
	if err := sess.SetAutoAttendance(r.Context(), *req.Enabled); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	sess := s.opts.Current()
	if sess == nil {
		respondError(w, http.StatusNotFound, errNoSession)
		return
	}
	if err := sess.CaptureNow(r.Context()); err != nil {
		sessionError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "captured"})
}

// ============================================================
// WHIP
// ============================================================

func (s *Server) whip(w http.ResponseWriter, r *http.Request) {
	if mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mediaType != "application/sdp" {
		respondError(w, http.StatusUnsupportedMediaType, "expected application/sdp")
		return
	}

	offer, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize))
	if err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	answer, err := s.opts.Ingest.HandleOffer(r.Context(), string(offer))
	switch {
	case errors.Is(err, webrtc.ErrInvalidOffer):
		respondError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, camera.ErrClosed):
		respondError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.log.Warnf("❌ WHIP offer failed: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to answer offer")
		return
	}

	w.Header().Set("Content-Type", "application/sdp")
	w.Header().Set("Location", "/whip")
	w.WriteHeader(http.StatusCreated)
	io.WriteString(w, answer)
}

// whipDelete acknowledges a publisher hanging up; the peer closes itself
// when its connection state changes.
func (s *Server) whipDelete(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
