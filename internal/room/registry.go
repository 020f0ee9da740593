// Package room owns the process-wide room table.
//
// A room exists only while it has members: it is created implicitly by the
// first join that names it and removed the instant its last member leaves or
// disconnects. Membership of a room is guarded by a per-room mutex so
// unrelated rooms never contend; the registry map lock is only held long
// enough to look up, create, or unlink a room.
//
// Nothing in this package performs I/O. Every result is a copy, so callers can
// notify participants after all locks have been released.
package room

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/presence"
)

const DefaultMaxRoomIDLength = 128

// Snapshot is a point-in-time copy of a room's membership.
type Snapshot struct {
	RoomID    string
	CreatedAt time.Time
	Members   []presence.Presence
}

// JoinResult describes the outcome of Registry.Join.
type JoinResult struct {
	Room    Snapshot
	Self    presence.Presence
	Created bool
	// Left is set when the joining connection was moved out of a different
	// room first.
	Left *Departure
}

// Departure describes a member removal.
type Departure struct {
	RoomID     string
	Member     presence.Presence
	Remaining  []presence.Presence
	RoomClosed bool
}

// Stats is a cheap aggregate used by metrics collectors.
type Stats struct {
	Rooms   int
	Members int
}

type Option func(*Registry)

// WithClock overrides the time source used for creation and join timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithMaxRoomIDLength bounds accepted room identifiers. n <= 0 keeps the
// default.
func WithMaxRoomIDLength(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.maxRoomIDLen = n
		}
	}
}

type Registry struct {
	now          func() time.Time
	maxRoomIDLen int

	mu    sync.RWMutex
	rooms map[string]*room

	occMu     sync.Mutex
	occupancy map[string]string // conn ID -> room ID
}

type room struct {
	id        string
	createdAt time.Time

	mu      sync.Mutex
	closed  atomic.Bool
	members map[string]presence.Presence
}

// NewRegistry returns an empty registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		now:          time.Now,
		maxRoomIDLen: DefaultMaxRoomIDLength,
		rooms:        make(map[string]*room),
		occupancy:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (reg *Registry) validRoomID(id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidRoomID)
	}
	if len(id) > reg.maxRoomIDLen {
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalidRoomID, reg.maxRoomIDLen)
	}
	return nil
}

// Join inserts member into roomID, creating the room when absent. Re-joining
// the same room replaces the previous record. If the connection currently
// occupies a different room it is removed from that room first and the
// removal is reported in JoinResult.Left.
//
// member.JoinedAt is assigned by the registry.
func (reg *Registry) Join(roomID string, member presence.Presence) (JoinResult, error) {
	if err := reg.validRoomID(roomID); err != nil {
		return JoinResult{}, err
	}
	if member.ID == "" {
		return JoinResult{}, fmt.Errorf("%w: missing connection id", ErrInvalidMember)
	}

	var res JoinResult
	if prev, ok := reg.occupied(member.ID); ok && prev != roomID {
		if dep, ok := reg.Leave(prev, member.ID); ok {
			res.Left = &dep
		}
	}

	for {
		r, created := reg.acquire(roomID)

		r.mu.Lock()
		if r.closed.Load() {
			// Lost a race with the last member leaving; acquire will replace it.
			r.mu.Unlock()
			continue
		}
		member.JoinedAt = reg.now().UTC()
		r.members[member.ID] = member
		res.Room = r.snapshotLocked()
		r.mu.Unlock()

		res.Self = member
		res.Created = created
		break
	}

	reg.occMu.Lock()
	reg.occupancy[member.ID] = roomID
	reg.occMu.Unlock()

	return res, nil
}

// Leave removes connID from roomID. It reports ok=false, and changes nothing,
// when connID is not a member of that room.
func (reg *Registry) Leave(roomID, connID string) (Departure, bool) {
	reg.mu.RLock()
	r := reg.rooms[roomID]
	reg.mu.RUnlock()
	if r == nil {
		return Departure{}, false
	}

	r.mu.Lock()
	member, ok := r.members[connID]
	if !ok || r.closed.Load() {
		r.mu.Unlock()
		return Departure{}, false
	}
	delete(r.members, connID)
	dep := Departure{
		RoomID:    roomID,
		Member:    member,
		Remaining: presence.MemberList(r.members),
	}
	if len(r.members) == 0 {
		r.closed.Store(true)
		dep.RoomClosed = true
	}
	r.mu.Unlock()

	if dep.RoomClosed {
		reg.mu.Lock()
		if reg.rooms[roomID] == r {
			delete(reg.rooms, roomID)
		}
		reg.mu.Unlock()
	}

	reg.occMu.Lock()
	if reg.occupancy[connID] == roomID {
		delete(reg.occupancy, connID)
	}
	reg.occMu.Unlock()

	return dep, true
}

// DisconnectCleanup removes connID from whichever room it occupies. It is safe
// to call for connections that never joined, and more than once.
func (reg *Registry) DisconnectCleanup(connID string) (Departure, bool) {
	roomID, ok := reg.occupied(connID)
	if !ok {
		return Departure{}, false
	}
	return reg.Leave(roomID, connID)
}

// Snapshot returns the current membership of roomID.
func (reg *Registry) Snapshot(roomID string) (Snapshot, bool) {
	reg.mu.RLock()
	r := reg.rooms[roomID]
	reg.mu.RUnlock()
	if r == nil {
		return Snapshot{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() || len(r.members) == 0 {
		return Snapshot{}, false
	}
	return r.snapshotLocked(), true
}

// Recipients returns the IDs of every member of roomID except exclude.
func (reg *Registry) Recipients(roomID, exclude string) ([]string, bool) {
	reg.mu.RLock()
	r := reg.rooms[roomID]
	reg.mu.RUnlock()
	if r == nil {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed.Load() || len(r.members) == 0 {
		return nil, false
	}
	out := make([]string, 0, len(r.members))
	for id := range r.members {
		if id == exclude {
			continue
		}
		out = append(out, id)
	}
	return out, true
}

// RoomOf returns the room connID currently occupies.
func (reg *Registry) RoomOf(connID string) (string, bool) {
	return reg.occupied(connID)
}

// Rooms returns a snapshot of every active room ordered by room ID.
func (reg *Registry) Rooms() []Snapshot {
	rooms := reg.list()
	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed.Load() && len(r.members) > 0 {
			out = append(out, r.snapshotLocked())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

func (reg *Registry) Stats() Stats {
	var st Stats
	for _, r := range reg.list() {
		r.mu.Lock()
		if n := len(r.members); n > 0 && !r.closed.Load() {
			st.Rooms++
			st.Members += n
		}
		r.mu.Unlock()
	}
	return st
}

func (reg *Registry) list() []*room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

func (reg *Registry) occupied(connID string) (string, bool) {
	reg.occMu.Lock()
	defer reg.occMu.Unlock()
	id, ok := reg.occupancy[connID]
	return id, ok
}

// acquire returns the live room for id, creating it (or replacing a closed
// one) when needed.
func (reg *Registry) acquire(id string) (*room, bool) {
	reg.mu.RLock()
	r := reg.rooms[id]
	reg.mu.RUnlock()
	if r != nil && !r.closed.Load() {
		return r, false
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	r = reg.rooms[id]
	if r != nil && !r.closed.Load() {
		return r, false
	}
	r = &room{
		id:        id,
		createdAt: reg.now().UTC(),
		members:   make(map[string]presence.Presence),
	}
	reg.rooms[id] = r
	return r, true
}

func (r *room) snapshotLocked() Snapshot {
	return Snapshot{
		RoomID:    r.id,
		CreatedAt: r.createdAt,
		Members:   presence.MemberList(r.members),
	}
}
