package hub

import (
	"errors"
	"log/slog"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/protocol"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
)

// Hub owns all envelope fan-out against the registries. It is constructed
// once by the process entry point and injected into the connection-accept
// path, the message router, the heartbeat monitor, and the control-plane
// handlers; there is no process-wide singleton.
type Hub struct {
	logger *slog.Logger
	state  state.Manager
}

func New(logger *slog.Logger, manager state.Manager) *Hub {
	return &Hub{
		logger: logger.With(slog.String("component", "hub")),
		state:  manager,
	}
}

// State exposes the registries for read-only callers (router, control plane).
func (h *Hub) State() state.Manager {
	return h.state
}

// Register records a new authenticated connection. When the user already had
// a live entry, the newer transport wins and the replaced one is proactively
// closed so it cannot linger until its own heartbeat timeout.
func (h *Hub) Register(identity state.Identity, t state.Transport) {
	replaced := h.state.Register(identity, t)
	if replaced != nil {
		h.logger.Info("Closing replaced connection", slog.String("userID", identity.UserID))
		replaced.Close(errors.New("replaced by newer connection"))
	}
	setConnections(h.state.ConnectionCount())
}

// SendToUser delivers one envelope to the named user, if present and open.
// Registry presence is the single source of truth for deliverability and is
// checked immediately before the send.
func (h *Hub) SendToUser(userID string, env *protocol.Envelope) bool {
	entry, ok := h.state.Get(userID)
	if !ok || !entry.Transport.Open() {
		return false
	}
	frame, err := env.Encode()
	if err != nil {
		h.logger.Error("Failed to encode envelope", slog.String("event", env.Event), slog.Any("error", err))
		return false
	}
	entry.Transport.Send(frame)
	addDelivered(1)
	return true
}

// Broadcast delivers one envelope to every open connection except the
// excluded user. Fan-out works on a point-in-time snapshot.
func (h *Hub) Broadcast(env *protocol.Envelope, excludeUserID string) int {
	frame, err := env.Encode()
	if err != nil {
		h.logger.Error("Failed to encode envelope", slog.String("event", env.Event), slog.Any("error", err))
		return 0
	}

	delivered := 0
	for _, entry := range h.state.All() {
		if entry.UserID == excludeUserID || !entry.Transport.Open() {
			continue
		}
		entry.Transport.Send(frame)
		delivered++
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
	return delivered
}

// RoomBroadcast delivers one envelope to every open member of the room minus
// the exclusion. An unknown room means zero members, not an error.
func (h *Hub) RoomBroadcast(roomID string, env *protocol.Envelope, excludeUserID string) int {
	frame, err := env.Encode()
	if err != nil {
		h.logger.Error("Failed to encode envelope", slog.String("event", env.Event), slog.Any("error", err))
		return 0
	}

	delivered := 0
	for _, userID := range h.state.MembersOf(roomID) {
		if userID == excludeUserID {
			continue
		}
		entry, ok := h.state.Get(userID)
		if !ok || !entry.Transport.Open() {
			continue
		}
		entry.Transport.Send(frame)
		delivered++
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
	return delivered
}

// Leave removes the user from one room and tells the remaining members. A
// leave from a room the user never occupied changes nothing and stays silent.
func (h *Hub) Leave(roomID, userID string) {
	remaining, removed := h.state.Leave(roomID, userID)
	if removed && len(remaining) > 0 {
		h.notifyLeft(roomID, userID)
	}
	setRooms(h.state.RoomCount())
}

// Disconnect force-closes and removes the named connection: room-left
// notifications go out first, then the registry entry disappears, then the
// transport is closed. Close failures never block registry cleanup.
func (h *Hub) Disconnect(userID string, reason error) bool {
	entry, ok := h.state.Get(userID)
	if !ok {
		return false
	}
	h.teardown(entry)
	entry.Transport.Close(reason)
	incEvictions()
	return true
}

// Detach runs the same teardown as Disconnect for a transport that is already
// closing on its own (client close frame, read error). It is a no-op when the
// registry has since been taken over by a newer transport, so a replaced
// connection's death cannot evict its successor.
func (h *Hub) Detach(userID string, t state.Transport) bool {
	entry, ok := h.state.Get(userID)
	if !ok || entry.Transport != t {
		return false
	}
	h.teardown(entry)
	return true
}

func (h *Hub) teardown(entry state.Snapshot) {
	// Other members learn of the departure exactly once, before the
	// registry entry disappears.
	for _, roomID := range entry.Rooms {
		remaining, removed := h.state.Leave(roomID, entry.UserID)
		if removed && len(remaining) > 0 {
			h.notifyLeft(roomID, entry.UserID)
		}
	}
	h.state.RemoveIf(entry.UserID, entry.Transport)
	setConnections(h.state.ConnectionCount())
	setRooms(h.state.RoomCount())
	h.logger.Info("Connection torn down", slog.String("userID", entry.UserID))
}

func (h *Hub) notifyLeft(roomID, userID string) {
	env, err := protocol.New(protocol.TypeRoomBroadcast, protocol.EventUserLeft, map[string]string{
		"roomId": roomID,
		"userId": userID,
	})
	if err != nil {
		h.logger.Error("Failed to build user_left envelope", slog.Any("error", err))
		return
	}
	env.RoomID = roomID
	env.UserID = userID
	h.RoomBroadcast(roomID, env, userID)
}
