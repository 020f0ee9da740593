package signaling

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeEvent_Valid(t *testing.T) {
	cases := []struct {
		raw  string
		want EventType
	}{
		{`{"type":"auth","token":"t"}`, EventAuth},
		{`{"type":"join","roomId":"r1","role":"doctor","name":"Alice"}`, EventJoin},
		{`{"type":"leave","roomId":"r1"}`, EventLeave},
		{`{"type":"offer","roomId":"r1","payload":{"type":"offer","sdp":"v=0"}}`, EventOffer},
		{`{"type":"answer","roomId":"r1","payload":"opaque"}`, EventAnswer},
		{`{"type":"candidate","roomId":"r1","payload":0}`, EventCandidate},
		{`{"type":"room-info-query","roomId":"r1"}`, EventRoomInfoQuery},
		{`{"type":"liveness-probe"}`, EventLivenessProbe},
	}
	for _, tc := range cases {
		ev, err := DecodeEvent([]byte(tc.raw))
		if err != nil {
			t.Fatalf("DecodeEvent(%s): %v", tc.raw, err)
		}
		if ev.Kind() != tc.want {
			t.Fatalf("DecodeEvent(%s).Kind()=%q, want %q", tc.raw, ev.Kind(), tc.want)
		}
	}
}

func TestDecodeEvent_ConcreteTypes(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"type":"join","roomId":"r1","role":"patient","name":"Bob"}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	join, ok := ev.(JoinEvent)
	if !ok {
		t.Fatalf("got %T, want JoinEvent", ev)
	}
	if join.RoomID != "r1" || join.Role != "patient" || join.Name != "Bob" {
		t.Fatalf("join=%+v", join)
	}

	ev, err = DecodeEvent([]byte(`{"type":"candidate","roomId":"r1","payload":{"candidate":"a=1"}}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	neg, ok := ev.(NegotiationEvent)
	if !ok {
		t.Fatalf("got %T, want NegotiationEvent", ev)
	}
	if string(neg.Payload) != `{"candidate":"a=1"}` {
		t.Fatalf("payload=%s, want it verbatim", neg.Payload)
	}
}

func TestDecodeEvent_Invalid(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`nope`, "invalid JSON"},
		{`{"roomId":"r1"}`, "missing event type"},
		{`{"type":"joined"}`, "unsupported event type"},
		{`{"type":"join","roomId":"r1","role":"doctor"}`, "name is required"},
		{`{"type":"join","roomId":"","role":"doctor","name":"A"}`, "roomId is required"},
		{`{"type":"join","roomId":"r1","role":"doctor","name":"` + strings.Repeat("n", 300) + `"}`, "name must be at most 256"},
		{`{"type":"offer","roomId":"r1","payload":null}`, "payload is required"},
		{`{"type":"answer","roomId":"r1"}`, "payload is required"},
		{`{"type":"leave","roomId":"r1","extra":true}`, "unknown field"},
		{`{"type":"leave","roomId":5}`, "invalid leave event"},
	}
	for _, tc := range cases {
		_, err := DecodeEvent([]byte(tc.raw))
		if err == nil {
			t.Fatalf("DecodeEvent(%s) succeeded, want error", tc.raw)
		}
		var perr *protocolError
		if !errors.As(err, &perr) || perr.Code != codeBadMessage {
			t.Fatalf("DecodeEvent(%s) err=%v, want bad_message", tc.raw, err)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("DecodeEvent(%s) err=%q, want it to contain %q", tc.raw, err, tc.want)
		}
	}
}
