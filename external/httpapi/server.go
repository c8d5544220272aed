// Package httpapi exposes the service's HTTP surface: LiveKit webhooks,
// manual room transcription controls, health and metrics endpoints.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/ferndesk/roomscribe/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	"github.com/livekit/protocol/webhook"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RoomController is the slice of the session registry the API drives.
type RoomController interface {
	StartRoom(ctx context.Context, roomID string) error
	StopRoom(ctx context.Context, roomID string)
	ActiveRooms() []string
}

type Server struct {
	controller  RoomController
	keyProvider auth.KeyProvider
	router      chi.Router
}

func NewServer(controller RoomController, apiKey, apiSecret string) *Server {
	s := &Server{
		controller:  controller,
		keyProvider: auth.NewSimpleKeyProvider(apiKey, apiSecret),
	}

	r := chi.NewRouter()
	r.Use(requestLogger)
	r.Post("/webhooks/livekit", s.handleLiveKitWebhook)
	r.Post("/v1/rooms/{roomID}/transcription/start", s.handleStart)
	r.Post("/v1/rooms/{roomID}/transcription/stop", s.handleStop)
	r.Get("/v1/rooms", s.handleListRooms)
	r.Get("/healthz", s.handleHealthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	s.router = r

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// handleLiveKitWebhook validates the signed LiveKit webhook and maps room
// lifecycle events onto registry operations. Other event types are
// acknowledged and ignored.
func (s *Server) handleLiveKitWebhook(w http.ResponseWriter, r *http.Request) {
	event, err := webhook.ReceiveWebhookEvent(r, s.keyProvider)
	if err != nil {
		slog.Warn("reject livekit webhook", "error", err)
		writeError(w, http.StatusUnauthorized, "invalid webhook signature")
		return
	}

	roomID := webhookRoomID(event)
	switch event.GetEvent() {
	case webhook.EventRoomStarted:
		err := s.controller.StartRoom(r.Context(), roomID)
		switch {
		case errors.Is(err, session.ErrNotEnabled):
			slog.Debug("room not enabled for transcription", "room_id", roomID)
		case err != nil:
			slog.Error("start room from webhook", "room_id", roomID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to start transcription")
			return
		}
	case webhook.EventRoomFinished:
		s.controller.StopRoom(r.Context(), roomID)
	default:
		slog.Debug("ignoring webhook event", "event", event.GetEvent(), "room_id", roomID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	if err := s.controller.StartRoom(r.Context(), roomID); err != nil {
		if errors.Is(err, session.ErrNotEnabled) {
			writeError(w, http.StatusConflict, "transcription not enabled for room")
			return
		}
		slog.Error("start room", "room_id", roomID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to start transcription")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"room_id": roomID, "status": "started"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomID")
	s.controller.StopRoom(r.Context(), roomID)
	writeJSON(w, http.StatusAccepted, map[string]string{"room_id": roomID, "status": "stopped"})
}

func (s *Server) handleListRooms(w http.ResponseWriter, _ *http.Request) {
	rooms := s.controller.ActiveRooms()
	if rooms == nil {
		rooms = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"rooms": rooms})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func webhookRoomID(event *livekit.WebhookEvent) string {
	if room := event.GetRoom(); room != nil {
		return room.GetName()
	}
	return ""
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.NewString()
		w.Header().Set("X-Request-Id", requestID)
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request",
			"request_id", requestID, "method", r.Method, "path", r.URL.Path,
			"duration", time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Warn("write response body", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
