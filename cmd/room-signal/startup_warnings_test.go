package main

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/config"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/relay"
)

type recordedLog struct {
	level slog.Level
	msg   string
	attrs map[string]any
}

type recordingHandler struct {
	mu      *sync.Mutex
	records *[]recordedLog
	attrs   []slog.Attr
	groups  []string
}

func newRecordingLogger() (*slog.Logger, func() []recordedLog) {
	mu := &sync.Mutex{}
	records := &[]recordedLog{}
	h := &recordingHandler{mu: mu, records: records}
	logger := slog.New(h)
	return logger, func() []recordedLog {
		mu.Lock()
		defer mu.Unlock()
		out := make([]recordedLog, len(*records))
		copy(out, *records)
		return out
	}
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	rec := recordedLog{
		level: r.Level,
		msg:   r.Message,
		attrs: map[string]any{},
	}
	for _, a := range h.attrs {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		rec.attrs[h.key(a.Key)] = a.Value.Any()
		return true
	})

	h.mu.Lock()
	*h.records = append(*h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := h.clone()
	nh.attrs = append(nh.attrs, attrs...)
	return nh
}

func (h *recordingHandler) WithGroup(name string) slog.Handler {
	nh := h.clone()
	nh.groups = append(nh.groups, name)
	return nh
}

func (h *recordingHandler) clone() *recordingHandler {
	return &recordingHandler{
		mu:      h.mu,
		records: h.records,
		attrs:   append([]slog.Attr(nil), h.attrs...),
		groups:  append([]string(nil), h.groups...),
	}
}

func (h *recordingHandler) key(k string) string {
	if len(h.groups) == 0 {
		return k
	}
	return strings.Join(h.groups, ".") + "." + k
}

func warningCodes(records []recordedLog) map[string]recordedLog {
	out := map[string]recordedLog{}
	for _, r := range records {
		if r.level != slog.LevelWarn {
			continue
		}
		if code, ok := r.attrs["warning_code"].(string); ok {
			out[code] = r
		}
	}
	return out
}

func TestStartupSecurityWarnings_AuthModeNone(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                          config.ModeDev,
		AuthMode:                      config.AuthModeNone,
		MaxSignalingMessagesPerSecond: 50,
	}
	logStartupSecurityWarnings(logger, cfg)

	got := warningCodes(records())
	r, ok := got["auth_mode_none"]
	if !ok {
		t.Fatalf("expected auth_mode_none warning; got %v", got)
	}
	if r.attrs["auth_mode"] != config.AuthModeNone {
		t.Fatalf("auth_mode=%v, want %v", r.attrs["auth_mode"], config.AuthModeNone)
	}
	if len(got) != 1 {
		t.Fatalf("warnings=%v, want only auth_mode_none", got)
	}
}

func TestStartupSecurityWarnings_ProdHardening(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:               config.ModeProd,
		AuthMode:           config.AuthModeJWT,
		AllowedOrigins:     []string{"*"},
		MaxConnections:     0,
		SlowConsumerPolicy: relay.PolicyDropOldest,
	}
	logStartupSecurityWarnings(logger, cfg)

	got := warningCodes(records())
	for _, code := range []string{
		"allowed_origins_wildcard",
		"max_connections_unlimited_in_prod",
		"signaling_rate_limit_disabled",
		"slow_consumer_drop_oldest",
		"ice_servers_empty",
	} {
		if _, ok := got[code]; !ok {
			t.Fatalf("missing warning %q; got %v", code, got)
		}
	}
	if _, ok := got["auth_mode_none"]; ok {
		t.Fatalf("unexpected auth_mode_none warning with AUTH_MODE=jwt")
	}
}

func TestStartupSecurityWarnings_QuietWhenHardened(t *testing.T) {
	logger, records := newRecordingLogger()

	cfg := config.Config{
		Mode:                          config.ModeProd,
		AuthMode:                      config.AuthModeAPIKey,
		AllowedOrigins:                []string{"https://app.example.com"},
		MaxConnections:                1000,
		MaxSignalingMessagesPerSecond: 50,
		SlowConsumerPolicy:            relay.PolicyDisconnect,
		ICEServers:                    []webrtc.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	}
	logStartupSecurityWarnings(logger, cfg)

	if got := warningCodes(records()); len(got) != 0 {
		t.Fatalf("unexpected warnings: %v", got)
	}
}
