package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/auth"
	"github.com/dkeye/Meet/internal/adapters/meeting"
	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:       "test",
		StaticPath: t.TempDir(),
		ICEServers: []config.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	}
	verifier, err := auth.NewJWTVerifier("secret")
	require.NoError(t, err)
	o := &orch.Orchestrator{Registry: app.NewRegistry(), Rooms: app.NewRoomManager(), Policy: app.SimplePolicy{}}
	ctrl := signal.NewSignalWSController(o, verifier, meeting.OpenGate{}, nil, signal.Options{})
	return SetupRouter(context.Background(), cfg, o, ctrl), o
}

func get(t *testing.T, r http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestHealthAndRooms(t *testing.T) {
	r, o := newRouter(t)

	w := get(t, r, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	var health HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, "ok", health.Status)

	room := o.Rooms.GetOrCreate("R1", "m-1", 4)
	id, _ := domain.NewIdentity("a", "Alice", "")
	_, err := room.Join(core.JoinRequest{Identity: id, ConnectionID: "c-a", MeetingRef: "m-1", Now: time.Now()})
	require.NoError(t, err)

	w = get(t, r, "/api/rooms")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Rooms []core.RoomInfo `json:"rooms"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Rooms, 1)
	assert.Equal(t, 1, list.Rooms[0].MemberCount)

	w = get(t, r, "/api/rooms/R1")
	require.Equal(t, http.StatusOK, w.Code)
	var details RoomDetails
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &details))
	assert.Equal(t, 4, details.Capacity)
	require.Len(t, details.Participants, 1)
	assert.Equal(t, "Alice", details.Participants[0].DisplayName)

	assert.Equal(t, http.StatusNotFound, get(t, r, "/api/rooms/nope").Code)
}

func TestICEServersEndpoint(t *testing.T) {
	r, _ := newRouter(t)
	w := get(t, r, "/api/ice-servers")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		ICEServers []struct {
			URLs []string `json:"urls"`
		} `json:"iceServers"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.com:3478"}, body.ICEServers[0].URLs)
}

func TestSignalEndpointRequiresToken(t *testing.T) {
	r, o := newRouter(t)
	w := get(t, r, "/api/ws/signal")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"auth"`)
	assert.Equal(t, 0, o.Registry.Len())
}
