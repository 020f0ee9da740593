package httpserver

import (
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/room"
)

// RoomLister is the read-only view of the room registry used by GET /rooms.
type RoomLister interface {
	Rooms() []room.Snapshot
}

// RoomSummary is one entry of the monitoring report.
type RoomSummary struct {
	UserCount int       `json:"user_count"`
	Users     []string  `json:"users"`
	CreatedAt time.Time `json:"created_at"`
}

// RoomsReport is the body of GET /rooms.
type RoomsReport struct {
	TotalRooms int                    `json:"total_rooms"`
	Rooms      map[string]RoomSummary `json:"rooms"`
}

func BuildRoomsReport(snaps []room.Snapshot) RoomsReport {
	rooms := lo.SliceToMap(snaps, func(s room.Snapshot) (string, RoomSummary) {
		return s.RoomID, RoomSummary{
			UserCount: len(s.Members),
			Users:     presence.Labels(s.Members),
			CreatedAt: s.CreatedAt.UTC(),
		}
	})
	return RoomsReport{TotalRooms: len(rooms), Rooms: rooms}
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	WriteJSON(w, http.StatusOK, BuildRoomsReport(s.rooms.Rooms()))
}
