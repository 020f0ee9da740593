package room

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	// ErrInvalidRoomID is returned for empty room IDs or IDs longer than the
	// registry's configured limit.
	ErrInvalidRoomID = errors.New("invalid room id")
	ErrInvalidMember = errors.New("invalid member")
)
