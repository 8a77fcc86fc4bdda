package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scrumdeck/internal/models"
	"github.com/mcdev12/scrumdeck/internal/session"
)

// Handler serves WebSocket upgrades and the small REST surface around them.
type Handler struct {
	service *Service
}

// NewHandler creates a gateway HTTP handler.
func NewHandler(s *Service) *Handler {
	return &Handler{service: s}
}

// HandleSessionConnection upgrades a device's connection to a session.
// player_id is optional: a device resuming with a held credential passes it
// here to skip the join round trip.
func (h *Handler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}
	playerID := r.URL.Query().Get("player_id")

	if err := h.service.cm.UpgradeConnection(w, r, sessionID, playerID); err != nil {
		log.Error().
			Err(err).
			Str("session_id", sessionID).
			Msg("failed to upgrade WebSocket connection")
		return
	}
}

// createSessionRequest is the POST /api/sessions body.
type createSessionRequest struct {
	Name string `json:"name"`
}

// createSessionResponse returns the new session id and the admin credential
// the device must hold for the rest of its membership.
type createSessionResponse struct {
	SessionID string             `json:"session_id"`
	Player    models.LocalPlayer `json:"player"`
}

// HandleCreateSession allocates a new session. Creation happens over REST
// because the device has no session path to subscribe to yet.
func (h *Handler) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	sessionID, lp, err := h.service.adapter.CreateSession(ctx, req.Name)
	switch {
	case errors.Is(err, session.ErrInvalidName):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil:
		log.Error().Err(err).Msg("failed to create session")
		http.Error(w, "store unavailable", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(createSessionResponse{SessionID: sessionID, Player: *lp}); err != nil {
		log.Error().Err(err).Msg("failed to write create session response")
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *Handler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, sessions := h.service.Stats()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{
		"total_connections": total,
		"active_sessions":   len(sessions),
	}); err != nil {
		log.Error().Err(err).Msg("failed to write stats response")
	}
}

// RegisterRoutes registers the gateway routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/session", h.HandleSessionConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
	mux.HandleFunc("/api/sessions", h.HandleCreateSession)
}
