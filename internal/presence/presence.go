// Package presence derives the externally visible member records that are
// embedded in join/leave notifications and room-info responses.
//
// It holds no state of its own; every function is a pure projection of the
// membership owned by the room registry.
package presence

import (
	"fmt"
	"sort"
	"time"

	"github.com/samber/lo"
)

type Role string

const (
	// RoleDoctor is the initiator role.
	RoleDoctor Role = "doctor"
	// RolePatient is the responder role.
	RolePatient Role = "patient"
)

// Recognized reports whether r is one of the two roles clients are expected to
// send. Unrecognized roles are still accepted.
func (r Role) Recognized() bool {
	return r == RoleDoctor || r == RolePatient
}

// Presence is the public projection of a connection inside a room.
type Presence struct {
	ID       string    `json:"id"`
	Role     Role      `json:"role"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Label renders p the way the monitoring view lists members.
func (p Presence) Label() string {
	return fmt.Sprintf("%s (%s)", p.Name, p.Role)
}

// MemberList returns the members ordered by join time, then connection ID.
// The result is never nil so it always encodes as a JSON array.
func MemberList(members map[string]Presence) []Presence {
	out := lo.Values(members)
	if out == nil {
		out = []Presence{}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Labels maps a member list to "name (role)" strings.
func Labels(members []Presence) []string {
	return lo.Map(members, func(p Presence, _ int) string {
		return p.Label()
	})
}

// IDs returns the connection IDs of members.
func IDs(members []Presence) []string {
	return lo.Map(members, func(p Presence, _ int) string {
		return p.ID
	})
}
