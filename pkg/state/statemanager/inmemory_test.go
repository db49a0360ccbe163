package statemanager_test

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state/statemanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test Suite Setup ---

func newTestLogger() *slog.Logger {
	// Discard logger output during tests by setting a high level
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

func newTestManager() *statemanager.InMemoryManager {
	return statemanager.NewInMemoryManager(newTestLogger())
}

type fakeTransport struct {
	frames   [][]byte
	closed   bool
	closeErr error
}

func (f *fakeTransport) Send(msg []byte) { f.frames = append(f.frames, msg) }
func (f *fakeTransport) Close(err error) {
	f.closed = true
	f.closeErr = err
}
func (f *fakeTransport) Open() bool { return !f.closed }

func identity(userID string) state.Identity {
	return state.Identity{UserID: userID, Role: "member"}
}

// --- Connection Registry Tests ---

func TestConnectionLifecycle(t *testing.T) {
	m := newTestManager()
	conn := &fakeTransport{}

	replaced := m.Register(identity("alice"), conn)
	require.Nil(t, replaced)

	entry, found := m.Get("alice")
	require.True(t, found)
	assert.Equal(t, "alice", entry.UserID)
	assert.Equal(t, "member", entry.Role)
	assert.Same(t, conn, entry.Transport)
	assert.Equal(t, 1, m.ConnectionCount())

	require.True(t, m.Remove("alice"))
	_, found = m.Get("alice")
	assert.False(t, found)

	// Remove is idempotent.
	assert.False(t, m.Remove("alice"))
}

func TestRegisterReplacesPriorEntry(t *testing.T) {
	m := newTestManager()
	h1 := &fakeTransport{}
	h2 := &fakeTransport{}

	require.Nil(t, m.Register(identity("alice"), h1))
	replaced := m.Register(identity("alice"), h2)

	// The latest transport wins; the old handle is only forgotten, not
	// closed, by the registry itself.
	require.Same(t, h1, replaced)
	assert.False(t, h1.closed)

	entry, found := m.Get("alice")
	require.True(t, found)
	assert.Same(t, h2, entry.Transport)
	assert.Equal(t, 1, m.ConnectionCount())
}

func TestReplacementInheritsRoomMembership(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})
	_, err := m.Join("room-1", "alice", "")
	require.NoError(t, err)

	m.Register(identity("alice"), &fakeTransport{})

	assert.Equal(t, []string{"room-1"}, m.RoomsOf("alice"))
	assert.Equal(t, []string{"alice"}, m.MembersOf("room-1"))
}

func TestRemoveIfOnlyMatchesCurrentTransport(t *testing.T) {
	m := newTestManager()
	h1 := &fakeTransport{}
	h2 := &fakeTransport{}

	m.Register(identity("alice"), h1)
	m.Register(identity("alice"), h2)

	// The replaced transport's own teardown must not evict its successor.
	assert.False(t, m.RemoveIf("alice", h1))
	_, found := m.Get("alice")
	assert.True(t, found)

	assert.True(t, m.RemoveIf("alice", h2))
	_, found = m.Get("alice")
	assert.False(t, found)
}

func TestRemovePurgesRoomMembership(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})
	m.Register(identity("bob"), &fakeTransport{})
	_, err := m.Join("room-1", "alice", "")
	require.NoError(t, err)
	_, err = m.Join("room-1", "bob", "")
	require.NoError(t, err)

	m.Remove("alice")

	assert.Equal(t, []string{"bob"}, m.MembersOf("room-1"))
}

func TestAllIsPointInTime(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})

	snapshot := m.All()
	m.Register(identity("bob"), &fakeTransport{})
	m.Remove("alice")

	// The snapshot reflects the registry at enumeration time.
	require.Len(t, snapshot, 1)
	assert.Equal(t, "alice", snapshot[0].UserID)
}

func TestTouchRefreshesHeartbeat(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})

	at := time.Now().Add(42 * time.Second)
	require.True(t, m.Touch("alice", at))

	entry, _ := m.Get("alice")
	assert.Equal(t, at, entry.LastHeartbeat)

	assert.False(t, m.Touch("ghost", at))
}

// --- Room Registry Tests ---

func TestRoomMembership(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})
	m.Register(identity("bob"), &fakeTransport{})

	members, err := m.Join("room-1", "alice", "Case Review")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, members)

	members, err = m.Join("room-1", "bob", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
	assert.Equal(t, 1, m.RoomCount())

	remaining, removed := m.Leave("room-1", "alice")
	require.True(t, removed)
	assert.Equal(t, []string{"bob"}, remaining)

	// Test empty room cleanup
	remaining, removed = m.Leave("room-1", "bob")
	assert.True(t, removed)
	assert.Empty(t, remaining)
	assert.Equal(t, 0, m.RoomCount())
	assert.Empty(t, m.MembersOf("room-1"))
}

func TestJoinIsIdempotent(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})

	_, err := m.Join("room-1", "alice", "")
	require.NoError(t, err)
	members, err := m.Join("room-1", "alice", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"alice"}, members)
}

func TestJoinRequiresLiveConnection(t *testing.T) {
	m := newTestManager()
	_, err := m.Join("room-1", "ghost", "")
	assert.ErrorIs(t, err, state.ErrUserNotConnected)
}

func TestLeaveUnknownRoomOrMemberIsNoop(t *testing.T) {
	m := newTestManager()
	m.Register(identity("alice"), &fakeTransport{})
	m.Register(identity("bob"), &fakeTransport{})
	_, err := m.Join("room-1", "alice", "")
	require.NoError(t, err)

	_, removed := m.Leave("nope", "alice")
	assert.False(t, removed)

	// bob never joined; nothing is removed and alice stays a member.
	remaining, removed := m.Leave("room-1", "bob")
	assert.False(t, removed)
	assert.Equal(t, []string{"alice"}, remaining)
}
