package signaling

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/presence"
)

type connectedMessage struct {
	Type         EventType `json:"type"`
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

type joinedMessage struct {
	Type      EventType           `json:"type"`
	RoomID    string              `json:"roomId"`
	Self      presence.Presence   `json:"self"`
	Members   []presence.Presence `json:"members"`
	Timestamp time.Time           `json:"timestamp"`
}

// membershipMessage is user-joined and user-left.
type membershipMessage struct {
	Type      EventType           `json:"type"`
	RoomID    string              `json:"roomId"`
	Member    presence.Presence   `json:"member"`
	Members   []presence.Presence `json:"members"`
	Timestamp time.Time           `json:"timestamp"`
}

// relayedMessage is offer, answer and candidate as delivered to the other
// members. The payload is spliced in by encodeRelayed.
type relayedMessage struct {
	Type      EventType `json:"type"`
	RoomID    string    `json:"roomId"`
	From      string    `json:"from"`
	Timestamp time.Time `json:"timestamp"`
}

type roomInfoMessage struct {
	Type      EventType           `json:"type"`
	RoomID    string              `json:"roomId"`
	Found     bool                `json:"found"`
	Members   []presence.Presence `json:"members"`
	CreatedAt *time.Time          `json:"createdAt,omitempty"`
	Message   string              `json:"message,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

type livenessAckMessage struct {
	Type         EventType `json:"type"`
	ConnectionID string    `json:"connectionId"`
	Timestamp    time.Time `json:"timestamp"`
}

type errorMessage struct {
	Type    EventType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
}

// encode marshals v without HTML escaping, so a frame is never larger than
// the text it carries.
func encode(v any) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		// Outbound messages only hold strings, times and presence records.
		panic(err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
}

// encodeRelayed appends payload to the envelope byte for byte. encoding/json
// would compact it.
func encodeRelayed(m relayedMessage, payload json.RawMessage) []byte {
	env := encode(m)
	frame := make([]byte, 0, len(env)+len(payload)+len(`,"payload":`))
	frame = append(frame, env[:len(env)-1]...)
	frame = append(frame, `,"payload":`...)
	frame = append(frame, payload...)
	return append(frame, '}')
}
