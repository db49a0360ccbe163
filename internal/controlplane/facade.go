package controlplane

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/hub"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/protocol"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
	"github.com/samber/lo"
)

var (
	// ErrNotReady is returned by every facade operation invoked before the
	// socket server has been initialized.
	ErrNotReady = errors.New("socket server not ready")

	ErrMissingEvent = errors.New("event is required")
	ErrMissingUser  = errors.New("userId is required")
	ErrMissingRoom  = errors.New("roomId is required")
	ErrUserNotFound = errors.New("user not connected")
)

// Facade is the synchronous request/response surface the CRUD tier uses to
// inspect and affect the live connection pool without speaking the socket
// protocol. It is constructed empty and bound to the registries once the
// socket server is up.
type Facade struct {
	logger *slog.Logger

	mu        sync.RWMutex
	state     state.Manager
	hub       *hub.Hub
	startedAt time.Time
}

func NewFacade(logger *slog.Logger) *Facade {
	return &Facade{
		logger: logger.With(slog.String("component", "control_plane")),
	}
}

// Initialize binds the facade to the live registries.
func (f *Facade) Initialize(manager state.Manager, h *hub.Hub) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state = manager
	f.hub = h
	f.startedAt = time.Now()
}

func (f *Facade) deps() (state.Manager, *hub.Hub, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state, f.hub, f.startedAt, f.hub != nil
}

// Status describes the connection pool at one point in time.
type Status struct {
	Initialized      bool  `json:"initialized"`
	TotalConnections int   `json:"totalConnections"`
	OpenConnections  int   `json:"openConnections"`
	Rooms            int   `json:"rooms"`
	UptimeSeconds    int64 `json:"uptimeSeconds"`
}

func (f *Facade) Status() (Status, error) {
	manager, _, startedAt, ok := f.deps()
	if !ok {
		return Status{}, ErrNotReady
	}

	all := manager.All()
	open := lo.CountBy(all, func(s state.Snapshot) bool { return s.Transport.Open() })
	return Status{
		Initialized:      true,
		TotalConnections: len(all),
		OpenConnections:  open,
		Rooms:            manager.RoomCount(),
		UptimeSeconds:    int64(time.Since(startedAt).Seconds()),
	}, nil
}

// Broadcast sends to every open connection except the excluded user and
// returns the delivered count.
func (f *Facade) Broadcast(event string, data json.RawMessage, excludeUserID string) (int, error) {
	_, h, _, ok := f.deps()
	if !ok {
		return 0, ErrNotReady
	}
	if event == "" {
		return 0, ErrMissingEvent
	}

	env := protocol.NewRaw(protocol.TypeBroadcast, event, data)
	return h.Broadcast(env, excludeUserID), nil
}

// Notify sends to exactly one connection if present and open.
func (f *Facade) Notify(userID, event string, data json.RawMessage) error {
	_, h, _, ok := f.deps()
	if !ok {
		return ErrNotReady
	}
	if userID == "" {
		return ErrMissingUser
	}
	if event == "" {
		return ErrMissingEvent
	}

	env := protocol.NewRaw(protocol.TypeNotification, event, data)
	env.UserID = userID
	if !h.SendToUser(userID, env) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	return nil
}

// RoomBroadcast sends to every currently open member of the room minus the
// exclusion. An unknown room delivers to zero members and is not an error.
func (f *Facade) RoomBroadcast(roomID, event string, data json.RawMessage, excludeUserID string) (int, error) {
	_, h, _, ok := f.deps()
	if !ok {
		return 0, ErrNotReady
	}
	if roomID == "" {
		return 0, ErrMissingRoom
	}
	if event == "" {
		return 0, ErrMissingEvent
	}

	env := protocol.NewRaw(protocol.TypeRoomBroadcast, event, data)
	env.RoomID = roomID
	return h.RoomBroadcast(roomID, env, excludeUserID), nil
}

// ClientInfo is one entry of the connection listing.
type ClientInfo struct {
	UserID        string   `json:"userId"`
	Role          string   `json:"role"`
	Rooms         []string `json:"rooms"`
	LastHeartbeat int64    `json:"lastHeartbeat"`
	Open          bool     `json:"open"`
}

func (f *Facade) ListClients() ([]ClientInfo, error) {
	manager, _, _, ok := f.deps()
	if !ok {
		return nil, ErrNotReady
	}

	return lo.Map(manager.All(), func(s state.Snapshot, _ int) ClientInfo {
		return ClientInfo{
			UserID:        s.UserID,
			Role:          s.Role,
			Rooms:         s.Rooms,
			LastHeartbeat: s.LastHeartbeat.UnixMilli(),
			Open:          s.Transport.Open(),
		}
	}), nil
}

// Disconnect force-closes and removes the named connection.
func (f *Facade) Disconnect(userID, reason string) error {
	_, h, _, ok := f.deps()
	if !ok {
		return ErrNotReady
	}
	if userID == "" {
		return ErrMissingUser
	}
	if reason == "" {
		reason = "disconnected by administrator"
	}

	if !h.Disconnect(userID, errors.New(reason)) {
		return fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	f.logger.Info("Force-disconnected client", slog.String("userID", userID), slog.String("reason", reason))
	return nil
}
