package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

type EventType string

// Client to server.
const (
	EventAuth          EventType = "auth"
	EventJoin          EventType = "join"
	EventLeave         EventType = "leave"
	EventOffer         EventType = "offer"
	EventAnswer        EventType = "answer"
	EventCandidate     EventType = "candidate"
	EventRoomInfoQuery EventType = "room-info-query"
	EventLivenessProbe EventType = "liveness-probe"
)

// Server to client.
const (
	EventConnected   EventType = "connected"
	EventJoined      EventType = "joined"
	EventUserJoined  EventType = "user-joined"
	EventUserLeft    EventType = "user-left"
	EventRoomInfo    EventType = "room-info"
	EventLivenessAck EventType = "liveness-ack"
	EventError       EventType = "error"
)

// Event is a decoded client event. The concrete type is selected by the
// `type` field of the frame.
type Event interface {
	Kind() EventType
}

type AuthEvent struct {
	Type   EventType `json:"type"`
	APIKey string    `json:"apiKey,omitempty"`
	Token  string    `json:"token,omitempty"`
}

type JoinEvent struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId" validate:"required"`
	Role   string    `json:"role" validate:"required,max=64"`
	Name   string    `json:"name" validate:"required,max=256"`
}

type LeaveEvent struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId" validate:"required"`
}

// NegotiationEvent is an offer, answer or candidate. Payload is relayed
// verbatim and never interpreted.
type NegotiationEvent struct {
	Type    EventType       `json:"type"`
	RoomID  string          `json:"roomId" validate:"required"`
	Payload json.RawMessage `json:"payload" validate:"json_value"`
}

type RoomInfoQueryEvent struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId" validate:"required"`
}

type LivenessProbeEvent struct {
	Type EventType `json:"type"`
}

func (AuthEvent) Kind() EventType          { return EventAuth }
func (JoinEvent) Kind() EventType          { return EventJoin }
func (LeaveEvent) Kind() EventType         { return EventLeave }
func (e NegotiationEvent) Kind() EventType { return e.Type }
func (RoomInfoQueryEvent) Kind() EventType { return EventRoomInfoQuery }
func (LivenessProbeEvent) Kind() EventType { return EventLivenessProbe }

var decoders = map[EventType]func() Event{
	EventAuth:          func() Event { return &AuthEvent{} },
	EventJoin:          func() Event { return &JoinEvent{} },
	EventLeave:         func() Event { return &LeaveEvent{} },
	EventOffer:         func() Event { return &NegotiationEvent{} },
	EventAnswer:        func() Event { return &NegotiationEvent{} },
	EventCandidate:     func() Event { return &NegotiationEvent{} },
	EventRoomInfoQuery: func() Event { return &RoomInfoQueryEvent{} },
	EventLivenessProbe: func() Event { return &LivenessProbeEvent{} },
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// json_value requires a present, non-null JSON value.
	_ = v.RegisterValidation("json_value", func(fl validator.FieldLevel) bool {
		raw := bytes.TrimSpace(fl.Field().Bytes())
		return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
	}, true)
	return v
}

// DecodeEvent parses one text frame. Unknown fields, trailing data and
// missing required fields are all rejected with a *protocolError so the
// caller can report them without touching any room.
func DecodeEvent(data []byte) (Event, error) {
	var envelope struct {
		Type EventType `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badMessage("invalid JSON: %v", err)
	}
	if envelope.Type == "" {
		return nil, badMessage("missing event type")
	}
	newEvent, ok := decoders[envelope.Type]
	if !ok {
		return nil, badMessage("unsupported event type %q", envelope.Type)
	}

	ev := newEvent()
	if err := decodeStrictJSON(data, ev); err != nil {
		return nil, badMessage("invalid %s event: %v", envelope.Type, err)
	}
	if err := validate.Struct(ev); err != nil {
		return nil, badMessage("invalid %s event: %s", envelope.Type, describeValidation(err))
	}
	return deref(ev), nil
}

func decodeStrictJSON(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("unexpected trailing data")
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required", "json_value":
			msgs = append(msgs, fe.Field()+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fe.Field()+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func deref(ev Event) Event {
	switch e := ev.(type) {
	case *AuthEvent:
		return *e
	case *JoinEvent:
		return *e
	case *LeaveEvent:
		return *e
	case *NegotiationEvent:
		return *e
	case *RoomInfoQueryEvent:
		return *e
	case *LivenessProbeEvent:
		return *e
	}
	return ev
}
