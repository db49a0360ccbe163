package controlplane

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHandler builds the REST surface consumed by the CRUD tier. It is never
// exposed to end clients.
func NewHandler(logger *slog.Logger, facade *Facade) http.Handler {
	s := &httpServer{
		logger: logger.With(slog.String("component", "control_plane_http")),
		facade: facade,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /broadcast", s.handleBroadcast)
	mux.HandleFunc("POST /notify", s.handleNotify)
	mux.HandleFunc("POST /room/broadcast", s.handleRoomBroadcast)
	mux.HandleFunc("GET /clients", s.handleListClients)
	mux.HandleFunc("DELETE /client/{userId}", s.handleDisconnect)
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

type httpServer struct {
	logger *slog.Logger
	facade *Facade
}

type broadcastRequest struct {
	Event         string          `json:"event"`
	Data          json.RawMessage `json:"data"`
	ExcludeUserID string          `json:"excludeUserId"`
}

type notifyRequest struct {
	UserID string          `json:"userId"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

type roomBroadcastRequest struct {
	RoomID        string          `json:"roomId"`
	Event         string          `json:"event"`
	Data          json.RawMessage `json:"data"`
	ExcludeUserID string          `json:"excludeUserId"`
}

type disconnectRequest struct {
	Reason string `json:"reason"`
}

func (s *httpServer) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status, err := s.facade.Status()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *httpServer) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	delivered, err := s.facade.Broadcast(req.Event, req.Data, req.ExcludeUserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

func (s *httpServer) handleNotify(w http.ResponseWriter, r *http.Request) {
	var req notifyRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.facade.Notify(req.UserID, req.Event, req.Data); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"delivered": true})
}

func (s *httpServer) handleRoomBroadcast(w http.ResponseWriter, r *http.Request) {
	var req roomBroadcastRequest
	if !s.decode(w, r, &req) {
		return
	}
	delivered, err := s.facade.RoomBroadcast(req.RoomID, req.Event, req.Data, req.ExcludeUserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]int{"delivered": delivered})
}

func (s *httpServer) handleListClients(w http.ResponseWriter, _ *http.Request) {
	clients, err := s.facade.ListClients()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"clients": clients})
}

func (s *httpServer) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	// The body is optional for forced disconnects.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.facade.Disconnect(r.PathValue("userId"), req.Reason); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"disconnected": true})
}

func (s *httpServer) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (s *httpServer) writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotReady):
		code = http.StatusServiceUnavailable
	case errors.Is(err, ErrMissingEvent), errors.Is(err, ErrMissingUser), errors.Is(err, ErrMissingRoom):
		code = http.StatusBadRequest
	case errors.Is(err, ErrUserNotFound):
		code = http.StatusNotFound
	}
	s.writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *httpServer) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", slog.Any("error", err))
	}
}
