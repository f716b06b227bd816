package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"altitude-recorder/internal/location"
	"altitude-recorder/internal/logger"
	"altitude-recorder/internal/recorder"
	"altitude-recorder/internal/share"
)

type TrackHandler struct {
	ctrl     Controller
	feed     FixPublisher
	exporter Exporter
	sharer   Sharer
}

type Controller interface {
	CaptureOnce(ctx context.Context) (recorder.Affordances, error)
	ToggleRecording() recorder.Affordances
	Reset(ctx context.Context) recorder.Affordances
	State() recorder.State
	Markers() []recorder.Marker
}

type FixPublisher interface {
	Publish(fix location.Fix) error
}

type Exporter interface {
	Export(ctx context.Context) ([]byte, error)
}

type Sharer interface {
	Share(ctx context.Context, data []byte) (share.Artifact, error)
}

// FixRequest is the push format for fixes from a phone or tracker.
type FixRequest struct {
	Latitude  *float64  `json:"latitude"`
	Longitude *float64  `json:"longitude"`
	Altitude  float64   `json:"altitude"`
	Timestamp time.Time `json:"timestamp"`
}

type affordanceResponse struct {
	Recording   bool                 `json:"recording"`
	Captured    int                  `json:"captured"`
	Affordances recorder.Affordances `json:"affordances"`
}

func NewTrackHandler(ctrl Controller, feed FixPublisher, exporter Exporter, sharer Sharer) *TrackHandler {
	return &TrackHandler{ctrl: ctrl, feed: feed, exporter: exporter, sharer: sharer}
}

// Register mounts every route on mux.
func (h *TrackHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/fix", h.HandleFix)
	mux.HandleFunc("/api/recording", h.HandleRecording)
	mux.HandleFunc("/api/capture", h.HandleCapture)
	mux.HandleFunc("/api/reset", h.HandleReset)
	mux.HandleFunc("/api/export", h.HandleExport)
	mux.HandleFunc("/api/status", h.HandleStatus)
	mux.HandleFunc("/api/markers", h.HandleMarkers)
}

func (h *TrackHandler) HandleFix(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req FixRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "latitude and longitude are required"})
		return
	}
	if req.Timestamp.IsZero() {
		req.Timestamp = time.Now().UTC()
	}

	fix := location.Fix{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Altitude:  req.Altitude,
		Time:      req.Timestamp,
	}
	if err := h.feed.Publish(fix); err != nil {
		logger.Warn("rejected pushed fix", "error", err)
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid fix"})
		return
	}

	writeJSON(w, http.StatusOK, h.affordances())
}

func (h *TrackHandler) HandleRecording(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.ctrl.ToggleRecording()
	writeJSON(w, http.StatusOK, h.affordances())
}

func (h *TrackHandler) HandleCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	_, err := h.ctrl.CaptureOnce(r.Context())
	switch {
	case errors.Is(err, recorder.ErrNoFix):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no location fix yet"})
		return
	case err != nil:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "capture failed"})
		return
	}
	writeJSON(w, http.StatusOK, h.affordances())
}

func (h *TrackHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	h.ctrl.Reset(r.Context())
	writeJSON(w, http.StatusOK, h.affordances())
}

// HandleExport serializes the track and shares it. With an uploader the
// response names the remote URL, otherwise the file is streamed back.
func (h *TrackHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	data, err := h.exporter.Export(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	art, err := h.sharer.Share(r.Context(), data)
	if err != nil {
		logger.Error(err, "share export")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "export failed"})
		return
	}

	if art.URL != "" {
		writeJSON(w, http.StatusOK, art)
		return
	}
	defer art.Cleanup()

	w.Header().Set("Content-Type", share.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	http.ServeFile(w, r, art.Path)
}

func (h *TrackHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.State())
}

func (h *TrackHandler) HandleMarkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Markers())
}

func (h *TrackHandler) affordances() affordanceResponse {
	st := h.ctrl.State()
	return affordanceResponse{Recording: st.Recording, Captured: st.Captured, Affordances: st.Affordances}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
