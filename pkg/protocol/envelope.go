package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire unit exchanged over the socket, one JSON object per
// frame in both directions. Envelopes are immutable once constructed and are
// never persisted; delivery is at-most-once to currently open connections.
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	UserID    string          `json:"userId,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
}

// Envelope types.
const (
	TypeMessage       = "message"
	TypeBroadcast     = "broadcast"
	TypeRoomBroadcast = "room_broadcast"
	TypeNotification  = "notification"
)

// Events consumed by the router.
const (
	EventPing     = "ping"
	EventPong     = "pong"
	EventError    = "error"
	EventJoinRoom = "room:join"
	EventLeave    = "room:leave"
	EventTyping   = "user:typing"
	EventPresence = "user:presence"
)

// Events emitted to clients.
const (
	EventRoomJoined      = "room:joined"
	EventRoomLeft        = "room:left"
	EventUserJoined      = "collaboration:user_joined"
	EventUserLeft        = "collaboration:user_left"
	EventTypingStart     = "collaboration:typing_start"
	EventTypingStop      = "collaboration:typing_stop"
	EventPresenceChanged = "collaboration:presence_changed"
)

// collaborationPrefix marks sub-events (edits, cursor moves, activity log
// entries) that are relayed verbatim to a room.
const collaborationPrefix = "collaboration:"

// domainEvents are cross-cutting notifications originating in the CRUD tier
// and surfaced to every connected client over the socket.
var domainEvents = map[string]struct{}{
	"beneficiary:created":   {},
	"beneficiary:updated":   {},
	"beneficiary:deleted":   {},
	"donation:received":     {},
	"application:submitted": {},
	"application:approved":  {},
	"document:uploaded":     {},
	"payment:approved":      {},
	"task:assigned":         {},
}

func IsCollaborationEvent(event string) bool {
	return strings.HasPrefix(event, collaborationPrefix)
}

func IsDomainEvent(event string) bool {
	_, ok := domainEvents[event]
	return ok
}

// New constructs an envelope with a fresh id and the current timestamp,
// marshalling data into the payload. The sender side owns id generation.
func New(typ, event string, data any) (*Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope data for event '%s': %w", event, err)
	}
	return NewRaw(typ, event, raw), nil
}

// NewRaw constructs an envelope around an already-encoded payload.
func NewRaw(typ, event string, data json.RawMessage) *Envelope {
	return &Envelope{
		ID:        uuid.NewString(),
		Type:      typ,
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

// Decode parses one inbound frame. An error here never terminates the
// connection; the router answers with an error event instead.
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("decode envelope: missing event")
	}
	return &env, nil
}

func (e *Envelope) Encode() ([]byte, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encode envelope for event '%s': %w", e.Event, err)
	}
	return raw, nil
}
