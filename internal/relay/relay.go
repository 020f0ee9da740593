package relay

import (
	"fmt"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/room"
)

// Membership is the read side of the room registry that fan-out needs.
type Membership interface {
	Recipients(roomID, exclude string) ([]string, bool)
}

// Deliverer hands a frame to one connection. It reports false when the
// connection is gone or would not accept the frame.
type Deliverer interface {
	Deliver(connID string, frame []byte) bool
}

type Relay struct {
	rooms   Membership
	out     Deliverer
	metrics *metrics.Metrics
}

func New(rooms Membership, out Deliverer, m *metrics.Metrics) *Relay {
	return &Relay{rooms: rooms, out: out, metrics: m}
}

// Forward delivers frame to every current member of roomID except senderID and
// returns how many recipients accepted it.
//
// The frame is never inspected. Per-recipient failures are counted and
// otherwise ignored; the only error is room.ErrRoomNotFound.
func (r *Relay) Forward(roomID, senderID string, frame []byte) (int, error) {
	ids, ok := r.rooms.Recipients(roomID, senderID)
	if !ok {
		return 0, fmt.Errorf("%w: %q", room.ErrRoomNotFound, roomID)
	}
	return r.Fanout(ids, frame), nil
}

// Fanout delivers frame to each of ids and returns the number of successful
// deliveries.
func (r *Relay) Fanout(ids []string, frame []byte) int {
	delivered := 0
	for _, id := range ids {
		if r.out.Deliver(id, frame) {
			delivered++
			continue
		}
		r.metrics.Inc(metrics.DropReasonDeliveryFailed)
	}
	return delivered
}

// DelivererFunc adapts a function to Deliverer.
type DelivererFunc func(connID string, frame []byte) bool

func (f DelivererFunc) Deliver(connID string, frame []byte) bool {
	return f(connID, frame)
}
