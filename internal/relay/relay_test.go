package relay

import (
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/presence"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/room"
)

type recordingDeliverer struct {
	mu   sync.Mutex
	got  map[string][][]byte
	dead map[string]bool
}

func newRecordingDeliverer(dead ...string) *recordingDeliverer {
	d := &recordingDeliverer{got: map[string][][]byte{}, dead: map[string]bool{}}
	for _, id := range dead {
		d.dead[id] = true
	}
	return d
}

func (d *recordingDeliverer) Deliver(connID string, frame []byte) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dead[connID] {
		return false
	}
	d.got[connID] = append(d.got[connID], frame)
	return true
}

func (d *recordingDeliverer) received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.got))
	for id := range d.got {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func joinAll(t *testing.T, reg *room.Registry, roomID string, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := reg.Join(roomID, presence.Presence{ID: id, Role: presence.RolePatient, Name: id})
		require.NoError(t, err)
	}
}

func TestForward_DeliversToEveryoneButSender(t *testing.T) {
	req := require.New(t)
	reg := room.NewRegistry()
	out := newRecordingDeliverer()
	r := New(reg, out, metrics.New())

	// Given three members of r1 and one member of another room
	joinAll(t, reg, "r1", "a", "b", "c")
	joinAll(t, reg, "r2", "z")

	// When a sends a frame
	n, err := r.Forward("r1", "a", []byte(`{"sdp":"x"}`))

	// Then exactly b and c receive it unchanged
	req.NoError(err)
	req.Equal(2, n)
	req.Equal([]string{"b", "c"}, out.received())
	req.Equal(`{"sdp":"x"}`, string(out.got["b"][0]))
}

func TestForward_RoomNotFound(t *testing.T) {
	req := require.New(t)
	r := New(room.NewRegistry(), newRecordingDeliverer(), nil)

	n, err := r.Forward("missing", "a", []byte("x"))

	req.Zero(n)
	req.True(errors.Is(err, room.ErrRoomNotFound))
}

func TestForward_SoleMemberHasNoRecipients(t *testing.T) {
	req := require.New(t)
	reg := room.NewRegistry()
	out := newRecordingDeliverer()
	r := New(reg, out, nil)
	joinAll(t, reg, "r1", "a")

	n, err := r.Forward("r1", "a", []byte("x"))

	req.NoError(err)
	req.Zero(n)
	req.Empty(out.received())
}

func TestForward_FailedRecipientDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	reg := room.NewRegistry()
	out := newRecordingDeliverer("b")
	m := metrics.New()
	r := New(reg, out, m)
	joinAll(t, reg, "r1", "a", "b", "c")

	n, err := r.Forward("r1", "a", []byte("x"))

	req.NoError(err)
	req.Equal(1, n)
	req.Equal([]string{"c"}, out.received())
}

func TestForward_LateJoinerMissesEarlierFrame(t *testing.T) {
	req := require.New(t)
	reg := room.NewRegistry()
	out := newRecordingDeliverer()
	r := New(reg, out, nil)
	joinAll(t, reg, "r1", "a", "b")

	_, err := r.Forward("r1", "a", []byte("first"))
	req.NoError(err)
	joinAll(t, reg, "r1", "c")
	_, err = r.Forward("r1", "a", []byte("second"))
	req.NoError(err)

	req.Len(out.got["b"], 2)
	req.Len(out.got["c"], 1)
	req.Equal("second", string(out.got["c"][0]))
}

func TestForward_PreservesPerSenderOrder(t *testing.T) {
	req := require.New(t)
	reg := room.NewRegistry()
	q := NewQueue(0, 1<<20, PolicyDisconnect)
	r := New(reg, DelivererFunc(func(id string, frame []byte) bool {
		return q.Enqueue(frame).Queued()
	}), nil)
	joinAll(t, reg, "r1", "a", "b")

	for _, f := range []string{"1", "2", "3", "4"} {
		_, err := r.Forward("r1", "a", []byte(f))
		req.NoError(err)
	}

	for _, want := range []string{"1", "2", "3", "4"} {
		got, ok := q.Dequeue()
		req.True(ok)
		req.Equal(want, string(got))
	}
}
