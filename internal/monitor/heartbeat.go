package monitor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/hub"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/config"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
)

// ErrHeartbeatTimeout is the close reason for evicted connections.
var ErrHeartbeatTimeout = errors.New("heartbeat timeout")

// Monitor periodically reclaims connections whose clients died without
// sending a close frame. Eviction is best effort: registry cleanup always
// proceeds even when the transport refuses to close cleanly.
type Monitor struct {
	logger   *slog.Logger
	state    state.Manager
	hub      *hub.Hub
	interval time.Duration
	window   time.Duration
}

func New(logger *slog.Logger, manager state.Manager, h *hub.Hub, cfg config.HeartbeatConfig) *Monitor {
	return &Monitor{
		logger:   logger.With(slog.String("component", "heartbeat_monitor")),
		state:    manager,
		hub:      h,
		interval: cfg.Interval,
		window:   cfg.Window,
	}
}

// Run executes the sweep loop until the context is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.Info("Starting heartbeat monitor",
		slog.Duration("interval", m.interval),
		slog.Duration("window", m.window),
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Sweep(time.Now())
		}
	}
}

// Sweep evicts every connection whose last heartbeat is older than the
// liveness window at sweep time and returns how many were reclaimed. Each
// eviction produces the same room-left notifications a graceful leave would.
func (m *Monitor) Sweep(now time.Time) int {
	evicted := 0
	for _, entry := range m.state.All() {
		if now.Sub(entry.LastHeartbeat) <= m.window {
			continue
		}
		// Re-check against the live registry: the user may have
		// reconnected since the snapshot was taken.
		current, ok := m.state.Get(entry.UserID)
		if !ok || current.Transport != entry.Transport || now.Sub(current.LastHeartbeat) <= m.window {
			continue
		}

		m.logger.Info("Evicting stale connection",
			slog.String("userID", entry.UserID),
			slog.Time("lastHeartbeat", entry.LastHeartbeat),
		)
		if m.hub.Disconnect(entry.UserID, ErrHeartbeatTimeout) {
			evicted++
		}
	}
	return evicted
}
