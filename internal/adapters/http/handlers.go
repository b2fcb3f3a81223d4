package http

import (
	"net/http"

	"github.com/dkeye/Meet/internal/adapters/rtc"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

type RoomDetails struct {
	core.RoomInfo
	Participants []domain.Participant `json:"participants"`
}

type roomHandlers struct {
	orch *orch.Orchestrator
	cfg  *config.Config
}

func (h *roomHandlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:   "ok",
		Rooms:    len(h.orch.Rooms.List()),
		Sessions: h.orch.Registry.Len(),
	})
}

func (h *roomHandlers) listRooms(c *gin.Context) {
	rooms := h.orch.Rooms.List()
	if rooms == nil {
		rooms = []core.RoomInfo{}
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

func (h *roomHandlers) getRoom(c *gin.Context) {
	id, err := domain.ParseRoomID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return
	}
	room, ok := h.orch.Rooms.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	members := room.MembersSnapshot()
	c.JSON(http.StatusOK, RoomDetails{
		RoomInfo: core.RoomInfo{
			ID:          room.Room().ID,
			MeetingRef:  room.Room().MeetingRef,
			MemberCount: len(members),
			Capacity:    room.Capacity(),
			CreatedAt:   room.Room().CreatedAt,
		},
		Participants: members,
	})
}

func (h *roomHandlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": rtc.ICEServers(h.cfg.ICEServers)})
}
