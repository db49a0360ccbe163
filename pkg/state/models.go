package state

import "time"

// Identity is produced once per connection by the verifier and never mutated
// afterwards.
type Identity struct {
	UserID string
	Role   string
}

const RoleAnonymous = "anonymous"

// Transport is the subset of the transport connection the registries and
// fan-out paths need. The concrete implementation lives in pkg/transport.
type Transport interface {
	// Send queues a frame for delivery. It must never block.
	Send(msg []byte)
	// Close tears the transport down; safe to call more than once.
	Close(err error)
	// Open reports whether the transport can still deliver frames.
	Open() bool
}

// Connection is one live, authenticated session. The registry entry for a
// userID always points at a single currently-open transport; the latest one
// wins.
type Connection struct {
	UserID        string
	Role          string
	Transport     Transport
	Rooms         map[string]struct{}
	LastHeartbeat time.Time
	ConnectedAt   time.Time
}

// Room is an ephemeral collaboration namespace, created lazily on first join
// and deleted the moment its member set becomes empty.
type Room struct {
	ID        string
	Name      string
	Members   map[string]struct{}
	CreatedAt time.Time
}

// Snapshot is a point-in-time copy of one registry entry. Enumeration always
// works on snapshots, never on the live maps.
type Snapshot struct {
	UserID        string
	Role          string
	Rooms         []string
	LastHeartbeat time.Time
	ConnectedAt   time.Time
	Transport     Transport
}
