package state

import (
	"errors"
	"time"
)

// ErrUserNotConnected is returned by room operations that require a live
// registry entry for the acting user.
var ErrUserNotConnected = errors.New("user not connected")

type Manager interface {
	// --- Connection Registry ---
	// Register inserts or replaces the entry keyed by identity.UserID and
	// returns the replaced transport, if any. The registry only forgets the
	// old handle; closing it is the caller's concern. Room membership is
	// per-user and survives replacement.
	Register(identity Identity, t Transport) (replaced Transport)
	// Remove deletes the entry and purges the user from every room;
	// idempotent.
	Remove(userID string) bool
	// RemoveIf removes the entry only while it still maps to t, so a
	// replaced transport's own teardown cannot evict its successor.
	RemoveIf(userID string, t Transport) bool
	Get(userID string) (Snapshot, bool)
	// All returns a point-in-time snapshot of every entry.
	All() []Snapshot
	// Touch refreshes the entry's last-heartbeat timestamp.
	Touch(userID string, at time.Time) bool
	ConnectionCount() int

	// --- Room Registry ---
	// Join creates the room if absent, adds the member, and returns the
	// full current member list. Joining twice is a no-op that still
	// returns membership.
	Join(roomID, userID, displayName string) ([]string, error)
	// Leave removes the member and reports the members still in the room
	// plus whether the user actually was one. Leaving a room you are not
	// in is a no-op and reports false.
	Leave(roomID, userID string) (remaining []string, removed bool)
	// MembersOf returns the current member list, empty for unknown rooms.
	MembersOf(roomID string) []string
	RoomsOf(userID string) []string
	RoomCount() int
}
