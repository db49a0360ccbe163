package controlplane_test

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/controlplane"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/internal/hub"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/protocol"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state"
	"github.com/kafkasder-portal/kafkaspanel-app-sub001/pkg/state/statemanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func newTestLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return slog.New(handler)
}

type fakeTransport struct {
	frames [][]byte
	closed bool
}

func (f *fakeTransport) Send(msg []byte) { f.frames = append(f.frames, msg) }
func (f *fakeTransport) Close(error)     { f.closed = true }
func (f *fakeTransport) Open() bool      { return !f.closed }

type rig struct {
	handler http.Handler
	facade  *controlplane.Facade
	hub     *hub.Hub
	manager state.Manager
}

func newRig() *rig {
	manager := statemanager.NewInMemoryManager(newTestLogger())
	h := hub.New(newTestLogger(), manager)
	facade := controlplane.NewFacade(newTestLogger())
	facade.Initialize(manager, h)
	return &rig{
		handler: controlplane.NewHandler(newTestLogger(), facade),
		facade:  facade,
		hub:     h,
		manager: manager,
	}
}

func (r *rig) connect(userID string) *fakeTransport {
	ft := &fakeTransport{}
	r.hub.Register(state.Identity{UserID: userID, Role: "member"}, ft)
	return ft
}

func (r *rig) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusBeforeInitializationReturns503(t *testing.T) {
	facade := controlplane.NewFacade(newTestLogger())
	handler := controlplane.NewHandler(newTestLogger(), facade)

	for _, probe := range []struct{ method, target, body string }{
		{"GET", "/status", ""},
		{"POST", "/broadcast", `{"event":"x"}`},
		{"POST", "/notify", `{"userId":"u","event":"x"}`},
		{"POST", "/room/broadcast", `{"roomId":"r","event":"x"}`},
		{"GET", "/clients", ""},
		{"DELETE", "/client/u", ""},
	} {
		req := httptest.NewRequest(probe.method, probe.target, strings.NewReader(probe.body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "%s %s", probe.method, probe.target)
	}
}

func TestStatusReportsCounts(t *testing.T) {
	r := newRig()
	r.connect("alice")
	bob := r.connect("bob")
	bob.closed = true
	_, err := r.manager.Join("room-1", "alice", "")
	require.NoError(t, err)

	rec := r.do(t, "GET", "/status", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, gjson.Get(body, "initialized").Bool())
	assert.Equal(t, int64(2), gjson.Get(body, "totalConnections").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "openConnections").Int())
	assert.Equal(t, int64(1), gjson.Get(body, "rooms").Int())
}

func TestBroadcastEndpoint(t *testing.T) {
	r := newRig()
	alice := r.connect("alice")
	bob := r.connect("bob")

	rec := r.do(t, "POST", "/broadcast", `{"event":"application:approved","data":{"id":9},"excludeUserId":"bob"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "delivered").Int())
	require.Len(t, alice.frames, 1)
	assert.Empty(t, bob.frames)

	env, err := protocol.Decode(alice.frames[0])
	require.NoError(t, err)
	assert.Equal(t, "application:approved", env.Event)
	assert.Equal(t, protocol.TypeBroadcast, env.Type)
}

func TestBroadcastRequiresEvent(t *testing.T) {
	r := newRig()
	rec := r.do(t, "POST", "/broadcast", `{"data":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestNotifyScenario(t *testing.T) {
	r := newRig()
	alice := r.connect("alice")

	rec := r.do(t, "POST", "/notify", `{"userId":"alice","event":"task:assigned","data":{"taskId":42}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "delivered").Bool())

	require.Len(t, alice.frames, 1)
	env, err := protocol.Decode(alice.frames[0])
	require.NoError(t, err)
	assert.Equal(t, "task:assigned", env.Event)
	assert.Equal(t, int64(42), gjson.GetBytes(env.Data, "taskId").Int())

	// The same call after alice disconnects is a structured not-found.
	require.True(t, r.hub.Disconnect("alice", errors.New("left")))
	rec = r.do(t, "POST", "/notify", `{"userId":"alice","event":"task:assigned","data":{"taskId":42}}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNotifyValidation(t *testing.T) {
	r := newRig()
	assert.Equal(t, http.StatusBadRequest, r.do(t, "POST", "/notify", `{"event":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, r.do(t, "POST", "/notify", `{"userId":"u"}`).Code)
}

func TestRoomBroadcastEndpoint(t *testing.T) {
	r := newRig()
	alice := r.connect("alice")
	bob := r.connect("bob")
	_, err := r.manager.Join("room-1", "alice", "")
	require.NoError(t, err)
	_, err = r.manager.Join("room-1", "bob", "")
	require.NoError(t, err)

	rec := r.do(t, "POST", "/room/broadcast", `{"roomId":"room-1","event":"collaboration:refresh","data":{},"excludeUserId":"alice"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "delivered").Int())
	assert.Empty(t, alice.frames)
	assert.Len(t, bob.frames, 1)
}

func TestRoomBroadcastUnknownRoomDeliversZero(t *testing.T) {
	r := newRig()
	rec := r.do(t, "POST", "/room/broadcast", `{"roomId":"nope","event":"x","data":{}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(0), gjson.Get(rec.Body.String(), "delivered").Int())
}

func TestRoomBroadcastValidation(t *testing.T) {
	r := newRig()
	assert.Equal(t, http.StatusBadRequest, r.do(t, "POST", "/room/broadcast", `{"event":"x"}`).Code)
	assert.Equal(t, http.StatusBadRequest, r.do(t, "POST", "/room/broadcast", `{"roomId":"r"}`).Code)
}

func TestListClients(t *testing.T) {
	r := newRig()
	r.connect("alice")
	_, err := r.manager.Join("room-1", "alice", "")
	require.NoError(t, err)

	rec := r.do(t, "GET", "/clients", "")

	require.Equal(t, http.StatusOK, rec.Code)
	clients := gjson.Get(rec.Body.String(), "clients").Array()
	require.Len(t, clients, 1)
	assert.Equal(t, "alice", clients[0].Get("userId").String())
	assert.Equal(t, "member", clients[0].Get("role").String())
	assert.Equal(t, "room-1", clients[0].Get("rooms.0").String())
	assert.True(t, clients[0].Get("open").Bool())
	assert.Greater(t, clients[0].Get("lastHeartbeat").Int(), int64(0))
}

func TestDisconnectEndpoint(t *testing.T) {
	r := newRig()
	alice := r.connect("alice")

	rec := r.do(t, "DELETE", "/client/alice", `{"reason":"policy breach"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, alice.closed)
	_, found := r.manager.Get("alice")
	assert.False(t, found)

	// Unknown clients are a structured 404, not an error.
	rec = r.do(t, "DELETE", "/client/alice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
