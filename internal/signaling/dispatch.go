package signaling

import (
	"errors"
	"fmt"
	"time"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/room"
)

type handlerFunc func(s *Server, c *conn, ev Event) error

var handlers = map[EventType]handlerFunc{
	EventAuth:          (*Server).handleAuth,
	EventJoin:          (*Server).handleJoin,
	EventLeave:         (*Server).handleLeave,
	EventOffer:         (*Server).handleNegotiation,
	EventAnswer:        (*Server).handleNegotiation,
	EventCandidate:     (*Server).handleNegotiation,
	EventRoomInfoQuery: (*Server).handleRoomInfo,
	EventLivenessProbe: (*Server).handleLiveness,
}

// dispatch runs the handler for ev. Handler errors are reported to c only.
func (s *Server) dispatch(c *conn, ev Event) {
	start := time.Now()
	kind := ev.Kind()
	s.metrics.ObserveInbound(string(kind))

	h, ok := handlers[kind]
	if !ok {
		s.reportError(c, badMessage("unsupported event type %q", kind))
		return
	}
	if err := h(s, c, ev); err != nil {
		if perr := (*protocolError)(nil); errors.As(err, &perr) {
			if perr.Code == codeRoomNotFound {
				s.metrics.Inc(metrics.RoomNotFound)
			} else {
				s.metrics.Inc(metrics.BadMessage)
			}
		}
		c.log.Debug("event rejected", "event", kind, "err", err)
		s.reportError(c, err)
	}
	s.metrics.ObserveDispatch(time.Since(start).Seconds())
}

// handleAuth tolerates a repeated auth event from an authenticated client.
func (s *Server) handleAuth(c *conn, ev Event) error {
	return nil
}

func (s *Server) handleJoin(c *conn, ev Event) error {
	e := ev.(JoinEvent)
	role := presence.Role(e.Role)
	if !role.Recognized() {
		c.log.Debug("unrecognized role", "room_id", e.RoomID, "role", e.Role)
	}

	res, err := s.rooms.Join(e.RoomID, presence.Presence{ID: c.id, Role: role, Name: e.Name})
	if errors.Is(err, room.ErrInvalidRoomID) || errors.Is(err, room.ErrInvalidMember) {
		return badMessage("%v", err)
	}
	if err != nil {
		return err
	}
	if res.Left != nil {
		s.notifyDeparture(*res.Left)
	}
	if res.Created {
		s.metrics.Inc(metrics.RoomCreated)
	}
	c.log.Info("member joined", "room_id", e.RoomID, "role", role, "name", e.Name, "members", len(res.Room.Members))

	now := s.now()
	c.send(joinedMessage{
		Type:      EventJoined,
		RoomID:    e.RoomID,
		Self:      res.Self,
		Members:   res.Room.Members,
		Timestamp: now,
	})

	others := make([]string, 0, len(res.Room.Members))
	for _, m := range res.Room.Members {
		if m.ID != c.id {
			others = append(others, m.ID)
		}
	}
	s.relay.Fanout(others, encode(membershipMessage{
		Type:      EventUserJoined,
		RoomID:    e.RoomID,
		Member:    res.Self,
		Members:   res.Room.Members,
		Timestamp: now,
	}))
	return nil
}

// handleLeave is idempotent: leaving a room the connection is not in changes
// nothing and notifies no one.
func (s *Server) handleLeave(c *conn, ev Event) error {
	e := ev.(LeaveEvent)
	dep, ok := s.rooms.Leave(e.RoomID, c.id)
	if !ok {
		return nil
	}
	c.log.Info("member left", "room_id", e.RoomID)
	s.notifyDeparture(dep)
	return nil
}

func (s *Server) notifyDeparture(dep room.Departure) {
	if dep.RoomClosed {
		s.metrics.Inc(metrics.RoomClosed)
		return
	}
	s.relay.Fanout(presence.IDs(dep.Remaining), encode(membershipMessage{
		Type:      EventUserLeft,
		RoomID:    dep.RoomID,
		Member:    dep.Member,
		Members:   dep.Remaining,
		Timestamp: s.now(),
	}))
}

func (s *Server) handleNegotiation(c *conn, ev Event) error {
	e := ev.(NegotiationEvent)
	frame := encodeRelayed(relayedMessage{
		Type:      e.Type,
		RoomID:    e.RoomID,
		From:      c.id,
		Timestamp: s.now(),
	}, e.Payload)
	n, err := s.relay.Forward(e.RoomID, c.id, frame)
	if errors.Is(err, room.ErrRoomNotFound) {
		return &protocolError{Code: codeRoomNotFound, Message: fmt.Sprintf("room %q not found", e.RoomID)}
	}
	if err != nil {
		return err
	}
	s.metrics.ObserveRelay(string(e.Type), n)
	return nil
}

func (s *Server) handleRoomInfo(c *conn, ev Event) error {
	e := ev.(RoomInfoQueryEvent)
	snap, ok := s.rooms.Snapshot(e.RoomID)
	if !ok {
		c.send(roomInfoMessage{
			Type:      EventRoomInfo,
			RoomID:    e.RoomID,
			Found:     false,
			Members:   []presence.Presence{},
			Message:   "room not found",
			Timestamp: s.now(),
		})
		return nil
	}
	createdAt := snap.CreatedAt
	c.send(roomInfoMessage{
		Type:      EventRoomInfo,
		RoomID:    e.RoomID,
		Found:     true,
		Members:   snap.Members,
		CreatedAt: &createdAt,
		Timestamp: s.now(),
	})
	return nil
}

func (s *Server) handleLiveness(c *conn, ev Event) error {
	c.send(livenessAckMessage{
		Type:         EventLivenessAck,
		ConnectionID: c.id,
		Timestamp:    s.now(),
	})
	return nil
}
