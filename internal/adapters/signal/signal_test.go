package signal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/auth"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const offerSDP = "v=0\r\n" +
	"o=- 4596489990601351948 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"a=rtpmap:111 opus/48000/2\r\n"

type stubGate struct{}

func (stubGate) CanJoin(_ context.Context, ref, _ string) (core.Admission, error) {
	switch ref {
	case "locked":
		return core.Admission{Reason: "meeting is locked"}, nil
	case "small":
		return core.Admission{Allowed: true, Capacity: 2}, nil
	}
	return core.Admission{Allowed: true}, nil
}

type testServer struct {
	srv      *httptest.Server
	orch     *orch.Orchestrator
	ctl      *SignalWSController
	verifier *auth.JWTVerifier
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	verifier, err := auth.NewJWTVerifier("test-secret")
	require.NoError(t, err)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    app.NewRoomManager(),
		Policy:   app.SimplePolicy{},
	}
	ctrl := NewSignalWSController(o, verifier, stubGate{}, NewRoomRateLimiter(3, time.Minute), Options{
		PongWait:  10 * time.Second,
		WriteWait: time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) { ctrl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return &testServer{srv: srv, orch: o, ctl: ctrl, verifier: verifier}
}

func (ts *testServer) url() string {
	return "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
}

func (ts *testServer) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := ts.verifier.Sign(domain.Identity{ID: domain.UserID(user), DisplayName: strings.ToUpper(user)}, time.Minute)
	require.NoError(t, err)
	return tok
}

func (ts *testServer) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	h := http.Header{}
	h.Set("Authorization", "Bearer "+ts.token(t, user))
	conn, _, err := websocket.DefaultDialer.Dial(ts.url(), h)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, v map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readType skips frames until one of type typ arrives.
func readType(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var m map[string]any
		require.NoError(t, conn.ReadJSON(&m), "waiting for %s", typ)
		if m["type"] == typ {
			return m
		}
	}
}

func joinRoom(t *testing.T, conn *websocket.Conn, room, ref string) map[string]any {
	t.Helper()
	send(t, conn, map[string]any{"type": "join-room", "roomId": room, "meetingRef": ref})
	return readType(t, conn, "room-joined")
}

func TestUnauthorizedUpgradeRejected(t *testing.T) {
	ts := newTestServer(t)

	_, resp, err := websocket.DefaultDialer.Dial(ts.url(), nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	h := http.Header{}
	h.Set("Authorization", "Bearer forged")
	_, resp, err = websocket.DefaultDialer.Dial(ts.url(), h)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, ts.orch.Registry.Len())
}

func TestBrowserSubprotocolToken(t *testing.T) {
	ts := newTestServer(t)
	d := websocket.Dialer{Subprotocols: []string{Subprotocol, ts.token(t, "alice")}}
	conn, resp, err := d.Dial(ts.url(), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, Subprotocol, resp.Header.Get("Sec-WebSocket-Protocol"))

	send(t, conn, map[string]any{"type": "whoami"})
	who := readType(t, conn, "whoami")
	assert.Equal(t, "alice", who["user"].(map[string]any)["userId"])
}

func TestMeetingScenario(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "a")
	b := ts.dial(t, "b")
	c := ts.dial(t, "c")

	joined := joinRoom(t, a, "R1", "small")
	assert.EqualValues(t, 1, joined["participantCount"])

	joinRoom(t, b, "R1", "small")
	uj := readType(t, a, "user-joined")
	assert.EqualValues(t, 2, uj["totalParticipants"])

	send(t, c, map[string]any{"type": "join-room", "roomId": "R1", "meetingRef": "small"})
	e := readType(t, c, "error")
	assert.Equal(t, "capacity", e["code"])

	send(t, a, map[string]any{"type": "chat-message", "roomId": "R1", "text": "hello"})
	for _, conn := range []*websocket.Conn{a, b} {
		msg := readType(t, conn, "chat-message")["message"].(map[string]any)
		assert.Equal(t, "hello", msg["text"])
		assert.NotEmpty(t, msg["id"])
		assert.NotEmpty(t, msg["timestamp"])
	}

	require.NoError(t, a.Close())
	left := readType(t, b, "user-left")
	assert.EqualValues(t, 1, left["totalParticipants"])
	_, ok := ts.orch.Rooms.Get("R1")
	assert.True(t, ok)

	send(t, b, map[string]any{"type": "leave-room", "roomId": "R1"})
	readType(t, b, "room-left")
	assert.Eventually(t, func() bool {
		_, ok := ts.orch.Rooms.Get("R1")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRelayOfferAndCandidate(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "a")
	b := ts.dial(t, "b")
	joinRoom(t, a, "R1", "")
	joinRoom(t, b, "R1", "")

	send(t, a, map[string]any{"type": "offer", "roomId": "R1", "targetUserId": "b", "sdp": offerSDP})
	offer := readType(t, b, "offer")
	assert.Equal(t, "a", offer["fromUserId"])
	assert.Equal(t, offerSDP, offer["sdp"])

	send(t, b, map[string]any{
		"type":          "ice-candidate",
		"roomId":        "R1",
		"targetUserId":  "a",
		"candidate":     "candidate:1 1 udp 2130706431 192.168.1.10 54321 typ host",
		"sdpMid":        "0",
		"sdpMLineIndex": 0,
	})
	cand := readType(t, a, "ice-candidate")["candidate"].(map[string]any)
	assert.Equal(t, "0", cand["sdpMid"])
	assert.Contains(t, cand["candidate"], "typ host")

	send(t, a, map[string]any{"type": "answer", "roomId": "R1", "targetUserId": "b", "sdp": "garbage"})
	e := readType(t, a, "error")
	assert.Equal(t, "validation", e["code"])
}

func TestJoinDeniedByGate(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "a")
	send(t, a, map[string]any{"type": "join-room", "roomId": "R1", "meetingRef": "locked"})
	e := readType(t, a, "error")
	assert.Equal(t, "denied", e["code"])
	assert.Empty(t, ts.orch.Rooms.List())
}

func TestJoinWithoutMeetingRefDenied(t *testing.T) {
	ts := newTestServer(t)
	host := ts.dial(t, "host")
	eve := ts.dial(t, "eve")
	joinRoom(t, host, "R1", "small")

	send(t, eve, map[string]any{"type": "join-room", "roomId": "R1", "meetingRef": ""})
	assert.Equal(t, "denied", readType(t, eve, "error")["code"])
	room, ok := ts.orch.Rooms.Get("R1")
	require.True(t, ok)
	assert.False(t, room.IsActive("eve"))
	assert.Equal(t, 1, room.MemberCount())
}

func TestControlMessagesAndValidation(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "a")

	send(t, a, map[string]any{"type": "ping"})
	readType(t, a, "pong")

	send(t, a, map[string]any{"type": "teleport"})
	assert.Equal(t, "validation", readType(t, a, "error")["code"])

	send(t, a, map[string]any{"type": "join-room", "roomId": ""})
	assert.Equal(t, "validation", readType(t, a, "error")["code"])

	joinRoom(t, a, "R1", "")
	for i := 0; i < 3; i++ {
		send(t, a, map[string]any{"type": "chat-message", "roomId": "R1", "text": "hi"})
		readType(t, a, "chat-message")
	}
	send(t, a, map[string]any{"type": "chat-message", "roomId": "R1", "text": "too many"})
	assert.Equal(t, "validation", readType(t, a, "error")["code"])
}

func TestPresenceOverSocket(t *testing.T) {
	ts := newTestServer(t)
	a := ts.dial(t, "a")
	b := ts.dial(t, "b")
	joinRoom(t, a, "R1", "")
	joinRoom(t, b, "R1", "")

	send(t, a, map[string]any{"type": "start-screen-share", "roomId": "R1"})
	ev := readType(t, b, "participant-screen-share-changed")
	assert.Equal(t, "a", ev["userId"])
	assert.Equal(t, true, ev["value"])

	send(t, a, map[string]any{"type": "hand-raise", "roomId": "R1"})
	ev = readType(t, b, "participant-hand-changed")
	assert.Equal(t, true, ev["value"])
}

type nopConn struct{}

func (nopConn) TrySend(core.Frame) error { return nil }
func (nopConn) Close()                   {}

func TestReplacedSessionKeepsChatWindow(t *testing.T) {
	ts := newTestServer(t)
	id, err := domain.NewIdentity("alice", "Alice", "")
	require.NoError(t, err)
	old := core.NewMemberSession("old", id, nopConn{})
	fresh := core.NewMemberSession("fresh", id, nopConn{})
	ts.orch.Connect(old, nil)
	ts.orch.Connect(fresh, nil)
	for i := 0; i < 3; i++ {
		require.True(t, ts.ctl.limiter.Allow("alice"))
	}

	ts.orch.OnDisconnect("old")
	ts.ctl.forget(old)
	assert.False(t, ts.ctl.limiter.Allow("alice"))

	ts.orch.OnDisconnect("fresh")
	ts.ctl.forget(fresh)
	assert.True(t, ts.ctl.limiter.Allow("alice"))
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u"))
	assert.True(t, rl.Allow("u"))
	assert.False(t, rl.Allow("u"))
	assert.True(t, rl.Allow("other"))

	now = now.Add(2 * time.Second)
	assert.True(t, rl.Allow("u"))

	rl.Forget("u")
	var nilLimiter *RoomRateLimiter
	assert.True(t, nilLimiter.Allow("u"))
}
