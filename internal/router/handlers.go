package router

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/protocol"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

// roomIDOf resolves the target room from the envelope's routing metadata,
// falling back to the payload.
func roomIDOf(env *protocol.Envelope) string {
	if env.RoomID != "" {
		return env.RoomID
	}
	return gjson.GetBytes(env.Data, "roomId").String()
}

func (r *Router) handlePing(_ context.Context, senderID string, _ *protocol.Envelope) {
	env, err := protocol.New(protocol.TypeMessage, protocol.EventPong, map[string]int64{
		"time": time.Now().UnixMilli(),
	})
	r.reply(senderID, env, err)
}

func (r *Router) handleJoinRoom(_ context.Context, senderID string, env *protocol.Envelope) {
	roomID := roomIDOf(env)
	if roomID == "" {
		r.replyError(senderID, "roomId is required")
		return
	}
	roomName := gjson.GetBytes(env.Data, "roomName").String()

	members, err := r.state.Join(roomID, senderID, roomName)
	if err != nil {
		r.logger.Warn("Room join failed", slog.String("userID", senderID), slog.String("roomID", roomID), slog.Any("error", err))
		r.replyError(senderID, "could not join room")
		return
	}

	// Existing members learn of the new arrival.
	joined, buildErr := protocol.New(protocol.TypeRoomBroadcast, protocol.EventUserJoined, map[string]string{
		"roomId": roomID,
		"userId": senderID,
	})
	if buildErr == nil {
		joined.RoomID = roomID
		joined.UserID = senderID
		r.hub.RoomBroadcast(roomID, joined, senderID)
	}

	// The joining client renders initial room state from the full list.
	reply, buildErr := protocol.New(protocol.TypeMessage, protocol.EventRoomJoined, map[string]any{
		"roomId":  roomID,
		"members": members,
	})
	r.reply(senderID, reply, buildErr)
}

func (r *Router) handleLeaveRoom(_ context.Context, senderID string, env *protocol.Envelope) {
	roomID := roomIDOf(env)
	if roomID == "" {
		r.replyError(senderID, "roomId is required")
		return
	}
	// The hub notifies remaining members only when the sender actually
	// held a membership to give up.
	r.hub.Leave(roomID, senderID)
}

func (r *Router) handleTyping(_ context.Context, senderID string, env *protocol.Envelope) {
	roomID := roomIDOf(env)
	if roomID == "" || !lo.Contains(r.state.MembersOf(roomID), senderID) {
		// Typing signals for rooms the sender does not occupy are dropped.
		return
	}

	event := protocol.EventTypingStop
	if gjson.GetBytes(env.Data, "isTyping").Bool() {
		event = protocol.EventTypingStart
	}

	out, err := protocol.New(protocol.TypeRoomBroadcast, event, map[string]string{
		"roomId": roomID,
		"userId": senderID,
	})
	if err != nil {
		r.logger.Error("Failed to build typing envelope", slog.Any("error", err))
		return
	}
	out.RoomID = roomID
	out.UserID = senderID
	r.hub.RoomBroadcast(roomID, out, senderID)
}

func (r *Router) handlePresence(_ context.Context, senderID string, env *protocol.Envelope) {
	status := gjson.GetBytes(env.Data, "status").String()

	for _, roomID := range r.state.RoomsOf(senderID) {
		out, err := protocol.New(protocol.TypeRoomBroadcast, protocol.EventPresenceChanged, map[string]string{
			"roomId": roomID,
			"userId": senderID,
			"status": status,
		})
		if err != nil {
			r.logger.Error("Failed to build presence envelope", slog.Any("error", err))
			return
		}
		out.RoomID = roomID
		out.UserID = senderID
		r.hub.RoomBroadcast(roomID, out, senderID)
	}
}

// handleCollaboration relays edit/cursor/activity sub-events verbatim: to the
// envelope's room when one is named, otherwise to every room the sender
// currently occupies.
func (r *Router) handleCollaboration(_ context.Context, senderID string, env *protocol.Envelope) {
	rooms := []string{}
	if roomID := roomIDOf(env); roomID != "" {
		rooms = append(rooms, roomID)
	} else {
		rooms = r.state.RoomsOf(senderID)
	}

	for _, roomID := range rooms {
		out := protocol.NewRaw(protocol.TypeRoomBroadcast, env.Event, env.Data)
		out.RoomID = roomID
		out.UserID = senderID
		r.hub.RoomBroadcast(roomID, out, senderID)
	}
}

// handleDomain surfaces cross-cutting CRUD-tier notifications to every
// connected client except the originator.
func (r *Router) handleDomain(_ context.Context, senderID string, env *protocol.Envelope) {
	out := protocol.NewRaw(protocol.TypeBroadcast, env.Event, env.Data)
	out.UserID = senderID
	r.hub.Broadcast(out, senderID)
}

// handleEcho is the diagnostic passthrough for unrecognized events.
func (r *Router) handleEcho(_ context.Context, senderID string, env *protocol.Envelope) {
	payload := struct {
		Processed bool            `json:"processed"`
		Original  json.RawMessage `json:"original,omitempty"`
	}{Processed: true, Original: env.Data}

	out, err := protocol.New(protocol.TypeNotification, env.Event, payload)
	r.reply(senderID, out, err)
}
