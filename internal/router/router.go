package router

import (
	"context"
	"log/slog"
	"time"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/hub"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/protocol"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
)

// HandlerFunc processes one decoded inbound envelope on behalf of the sender.
type HandlerFunc func(ctx context.Context, senderID string, env *protocol.Envelope)

// Router decodes inbound frames and dispatches them by event name through a
// handler map populated at construction time, so each handler is unit
// testable in isolation. Events without a registered handler fall through to
// the collaboration relay, the domain broadcast, or the diagnostic echo.
type Router struct {
	logger   *slog.Logger
	state    state.Manager
	hub      *hub.Hub
	handlers map[string]HandlerFunc
}

func New(logger *slog.Logger, manager state.Manager, h *hub.Hub) *Router {
	r := &Router{
		logger:   logger.With(slog.String("component", "event_router")),
		state:    manager,
		hub:      h,
		handlers: make(map[string]HandlerFunc),
	}

	r.register(protocol.EventPing, r.handlePing)
	r.register(protocol.EventJoinRoom, r.handleJoinRoom)
	r.register(protocol.EventLeave, r.handleLeaveRoom)
	r.register(protocol.EventTyping, r.handleTyping)
	r.register(protocol.EventPresence, r.handlePresence)

	return r
}

func (r *Router) register(event string, fn HandlerFunc) {
	if fn == nil {
		panic("nil handler registered for event: " + event)
	}
	if _, exists := r.handlers[event]; exists {
		panic("handler already registered for event: " + event)
	}
	r.handlers[event] = fn
}

// HandleFrame is the transport's message callback. A malformed frame never
// crashes the router: the sender gets an error event and stays connected.
func (r *Router) HandleFrame(ctx context.Context, senderID string, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		r.logger.Warn("Failed to decode client frame", slog.String("userID", senderID), slog.Any("error", err))
		r.replyError(senderID, "invalid message format")
		return
	}

	// Any inbound frame counts as liveness.
	r.state.Touch(senderID, time.Now())

	if handler, ok := r.handlers[env.Event]; ok {
		handler(ctx, senderID, env)
		return
	}

	switch {
	case protocol.IsCollaborationEvent(env.Event):
		r.handleCollaboration(ctx, senderID, env)
	case protocol.IsDomainEvent(env.Event):
		r.handleDomain(ctx, senderID, env)
	default:
		r.handleEcho(ctx, senderID, env)
	}
}

func (r *Router) replyError(senderID, message string) {
	env, err := protocol.New(protocol.TypeMessage, protocol.EventError, map[string]string{
		"message": message,
	})
	if err != nil {
		r.logger.Error("Failed to build error envelope", slog.Any("error", err))
		return
	}
	r.hub.SendToUser(senderID, env)
}

func (r *Router) reply(senderID string, env *protocol.Envelope, buildErr error) {
	if buildErr != nil {
		r.logger.Error("Failed to build reply envelope", slog.Any("error", buildErr))
		return
	}
	r.hub.SendToUser(senderID, env)
}
