package statemanager

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
	"github.com/samber/lo"
)

// InMemoryManager owns the connection and room registries for a single
// process. A single lock guards both maps so that membership changes and
// room-emptiness checks are atomic with respect to each other.
type InMemoryManager struct {
	mu    sync.RWMutex
	conns map[string]*state.Connection
	rooms map[string]*state.Room

	logger *slog.Logger
}

func NewInMemoryManager(logger *slog.Logger) *InMemoryManager {
	return &InMemoryManager{
		conns:  make(map[string]*state.Connection),
		rooms:  make(map[string]*state.Room),
		logger: logger.With(slog.String("component", "state_manager_inmemory")),
	}
}

// compile-time check to ensure InMemoryManager implements Manager.
var _ state.Manager = (*InMemoryManager)(nil)

func (m *InMemoryManager) Register(identity state.Identity, t state.Transport) state.Transport {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	entry := &state.Connection{
		UserID:        identity.UserID,
		Role:          identity.Role,
		Transport:     t,
		Rooms:         make(map[string]struct{}),
		LastHeartbeat: now,
		ConnectedAt:   now,
	}

	var replaced state.Transport
	if old, exists := m.conns[identity.UserID]; exists {
		// Membership is keyed by userID, so the newer connection takes
		// over the rooms the user already occupies.
		entry.Rooms = old.Rooms
		replaced = old.Transport
		m.logger.Debug("Replacing existing connection", slog.String("userID", identity.UserID))
	}

	m.conns[identity.UserID] = entry
	m.logger.Debug("Connection registered", slog.String("userID", identity.UserID), slog.String("role", identity.Role))
	return replaced
}

func (m *InMemoryManager) Remove(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(userID, nil)
}

func (m *InMemoryManager) RemoveIf(userID string, t state.Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.removeLocked(userID, t)
}

func (m *InMemoryManager) removeLocked(userID string, only state.Transport) bool {
	entry, ok := m.conns[userID]
	if !ok {
		return false
	}
	if only != nil && entry.Transport != only {
		// The entry was already replaced by a newer transport.
		return false
	}
	delete(m.conns, userID)

	// Purge any membership the caller did not already tear down, so a room
	// never keeps a member without a registry entry.
	for roomID := range entry.Rooms {
		m.leaveLocked(roomID, userID)
	}

	m.logger.Debug("Connection removed", slog.String("userID", userID))
	return true
}

func (m *InMemoryManager) Get(userID string) (state.Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.conns[userID]
	if !ok {
		return state.Snapshot{}, false
	}
	return snapshotOf(entry), true
}

func (m *InMemoryManager) All() []state.Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]state.Snapshot, 0, len(m.conns))
	for _, entry := range m.conns {
		all = append(all, snapshotOf(entry))
	}
	return all
}

func (m *InMemoryManager) Touch(userID string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[userID]
	if !ok {
		return false
	}
	entry.LastHeartbeat = at
	return true
}

func (m *InMemoryManager) ConnectionCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// --- Room Registry ---

func (m *InMemoryManager) Join(roomID, userID, displayName string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.conns[userID]
	if !ok {
		return nil, state.ErrUserNotConnected
	}

	room, exists := m.rooms[roomID]
	if !exists {
		name := displayName
		if name == "" {
			name = roomID
		}
		room = &state.Room{
			ID:        roomID,
			Name:      name,
			Members:   make(map[string]struct{}),
			CreatedAt: time.Now(),
		}
		m.rooms[roomID] = room
		m.logger.Debug("Room created", slog.String("roomID", roomID))
	}

	room.Members[userID] = struct{}{}
	entry.Rooms[roomID] = struct{}{}

	m.logger.Debug("User joined room", slog.String("userID", userID), slog.String("roomID", roomID))
	return sortedMembers(room), nil
}

func (m *InMemoryManager) Leave(roomID, userID string) ([]string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.conns[userID]; ok {
		delete(entry.Rooms, roomID)
	}
	return m.leaveLocked(roomID, userID)
}

func (m *InMemoryManager) leaveLocked(roomID, userID string) ([]string, bool) {
	room, ok := m.rooms[roomID]
	if !ok {
		return nil, false
	}
	if _, member := room.Members[userID]; !member {
		// Not a member; the room is untouched.
		return sortedMembers(room), false
	}
	delete(room.Members, userID)

	// A room never outlives its last member.
	if len(room.Members) == 0 {
		delete(m.rooms, roomID)
		m.logger.Debug("Removed empty room", slog.String("roomID", roomID))
		return nil, true
	}
	return sortedMembers(room), true
}

func (m *InMemoryManager) MembersOf(roomID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	room, ok := m.rooms[roomID]
	if !ok {
		return []string{}
	}
	return sortedMembers(room)
}

func (m *InMemoryManager) RoomsOf(userID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.conns[userID]
	if !ok {
		return []string{}
	}
	rooms := lo.Keys(entry.Rooms)
	sort.Strings(rooms)
	return rooms
}

func (m *InMemoryManager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

func snapshotOf(entry *state.Connection) state.Snapshot {
	rooms := lo.Keys(entry.Rooms)
	sort.Strings(rooms)
	return state.Snapshot{
		UserID:        entry.UserID,
		Role:          entry.Role,
		Rooms:         rooms,
		LastHeartbeat: entry.LastHeartbeat,
		ConnectedAt:   entry.ConnectedAt,
		Transport:     entry.Transport,
	}
}

func sortedMembers(room *state.Room) []string {
	members := lo.Keys(room.Members)
	sort.Strings(members)
	return members
}
