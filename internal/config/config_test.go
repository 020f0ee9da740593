package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/relay"
)

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func emptyLookup(string) (string, bool) { return "", false }

func TestDefaultsDev(t *testing.T) {
	cfg, err := load(emptyLookup, nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeDev)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelDebug)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.AuthMode != AuthModeNone {
		t.Fatalf("AuthMode=%q, want %q", cfg.AuthMode, AuthModeNone)
	}
	if cfg.SendQueueMessages != DefaultSendQueueMessages {
		t.Fatalf("SendQueueMessages=%d, want %d", cfg.SendQueueMessages, DefaultSendQueueMessages)
	}
	if cfg.SendQueueBytes != DefaultSendQueueBytes {
		t.Fatalf("SendQueueBytes=%d, want %d", cfg.SendQueueBytes, DefaultSendQueueBytes)
	}
	if cfg.SlowConsumerPolicy != relay.PolicyDisconnect {
		t.Fatalf("SlowConsumerPolicy=%q, want %q", cfg.SlowConsumerPolicy, relay.PolicyDisconnect)
	}
	if cfg.SendWriteTimeout != DefaultSendWriteTimeout {
		t.Fatalf("SendWriteTimeout=%v, want %v", cfg.SendWriteTimeout, DefaultSendWriteTimeout)
	}
	if cfg.MaxConnections != DefaultMaxConnections {
		t.Fatalf("MaxConnections=%d, want %d", cfg.MaxConnections, DefaultMaxConnections)
	}
	if cfg.MaxRoomIDLength != DefaultMaxRoomIDLength {
		t.Fatalf("MaxRoomIDLength=%d, want %d", cfg.MaxRoomIDLength, DefaultMaxRoomIDLength)
	}
	if cfg.SignalingWSPingInterval != DefaultSignalingWSPingInterval {
		t.Fatalf("SignalingWSPingInterval=%v, want %v", cfg.SignalingWSPingInterval, DefaultSignalingWSPingInterval)
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ICEServers=%v, want none", cfg.ICEServers)
	}
	if cfg.TURNREST.Enabled() {
		t.Fatalf("TURN REST enabled by default")
	}
}

func TestDefaultsProdWhenModeFlagSet(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--mode", "prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd {
		t.Fatalf("mode=%q, want %q", cfg.Mode, ModeProd)
	}
	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatJSON)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("logLevel=%v, want %v", cfg.LogLevel, slog.LevelInfo)
	}
}

func TestDefaultsProdFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarMode: "production"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Mode != ModeProd || cfg.LogFormat != LogFormatJSON {
		t.Fatalf("mode=%q logFormat=%q, want prod/json", cfg.Mode, cfg.LogFormat)
	}
}

func TestLogFormatExplicitOverride(t *testing.T) {
	cfg, err := load(emptyLookup, []string{"--mode", "prod", "--log-format", "text"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("logFormat=%q, want %q", cfg.LogFormat, LogFormatText)
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarSendQueueMessages:  "10",
		envVarSlowConsumerPolicy: "disconnect",
		envVarMaxConnections:     "5",
	}), []string{"--send-queue-messages", "20", "--slow-consumer-policy", "drop_oldest"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SendQueueMessages != 20 {
		t.Fatalf("SendQueueMessages=%d, want 20", cfg.SendQueueMessages)
	}
	if cfg.SlowConsumerPolicy != relay.PolicyDropOldest {
		t.Fatalf("SlowConsumerPolicy=%q, want %q", cfg.SlowConsumerPolicy, relay.PolicyDropOldest)
	}
	if cfg.MaxConnections != 5 {
		t.Fatalf("MaxConnections=%d, want 5", cfg.MaxConnections)
	}
}

func TestDurationsFromEnv(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarSignalingWSIdleTimeout:  "30s",
		envVarSignalingWSPingInterval: "10s",
		envVarShutdownTimeout:         "3s",
		envVarSendWriteTimeout:        "4s",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SignalingWSIdleTimeout != 30*time.Second || cfg.SignalingWSPingInterval != 10*time.Second {
		t.Fatalf("idle=%v ping=%v, want 30s/10s", cfg.SignalingWSIdleTimeout, cfg.SignalingWSPingInterval)
	}
	if cfg.ShutdownTimeout != 3*time.Second {
		t.Fatalf("ShutdownTimeout=%v, want 3s", cfg.ShutdownTimeout)
	}
	if cfg.SendWriteTimeout != 4*time.Second {
		t.Fatalf("SendWriteTimeout=%v, want 4s", cfg.SendWriteTimeout)
	}
}

func TestValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		args    []string
		wantErr string
	}{
		{"bad mode", nil, []string{"--mode", "staging"}, "invalid mode"},
		{"bad log level", map[string]string{envVarLogLevel: "loud"}, nil, "invalid log level"},
		{"bad int", map[string]string{envVarSendQueueMessages: "many"}, nil, envVarSendQueueMessages},
		{"bad duration", map[string]string{envVarSignalingAuthTimeout: "soon"}, nil, envVarSignalingAuthTimeout},
		{"zero queue", nil, []string{"--send-queue-messages", "0"}, "SEND_QUEUE_MESSAGES/--send-queue-messages must be > 0"},
		{"queue smaller than a message", nil, []string{"--send-queue-bytes", "1024"}, "SEND_QUEUE_BYTES/--send-queue-bytes must be >="},
		{"bad policy", nil, []string{"--slow-consumer-policy", "block"}, envVarSlowConsumerPolicy},
		{"zero write timeout", nil, []string{"--send-write-timeout", "0s"}, envVarSendWriteTimeout},
		{"negative connections", nil, []string{"--max-connections", "-1"}, envVarMaxConnections},
		{"zero room id length", nil, []string{"--max-room-id-length", "0"}, envVarMaxRoomIDLength},
		{"ping not below idle", nil, []string{"--signaling-ws-ping-interval", "60s"}, "must be <"},
		{"api key mode without key", map[string]string{envVarAuthMode: "api_key"}, nil, envVarAPIKey},
		{"jwt mode without secret", nil, []string{"--auth-mode", "jwt"}, envVarJWTSecret},
		{"unknown auth mode", map[string]string{envVarAuthMode: "oauth"}, nil, envVarAuthMode},
		{"bad public url", nil, []string{"--public-base-url", "example.com"}, envVarPublicBaseURL},
		{"bad origin", map[string]string{envVarAllowedOrigins: "example.com"}, nil, envVarAllowedOrigins},
		{"turn without creds", map[string]string{envTurnURLs: "turn:t.example.com"}, nil, envTurnUsername},
		{"turn rest prefix with colon", map[string]string{
			envVarTURNRESTSharedSecret:   "s",
			envVarTURNRESTUsernamePrefix: "a:b",
		}, nil, envVarTURNRESTUsernamePrefix},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := load(lookupMap(tc.env), tc.args)
			if err == nil {
				t.Fatalf("expected error containing %q", tc.wantErr)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("err=%q, want it to contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestAuthModes(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{envVarAuthMode: "JWT", envVarJWTSecret: "s"}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AuthMode != AuthModeJWT || cfg.JWTSecret != "s" {
		t.Fatalf("AuthMode=%q JWTSecret=%q", cfg.AuthMode, cfg.JWTSecret)
	}

	cfg, err = load(emptyLookup, []string{"--auth-mode", "api_key"})
	if err == nil {
		t.Fatalf("expected error without API key, got %+v", cfg)
	}
}

func TestTURNRESTAllowsTURNURLsWithoutStaticCreds(t *testing.T) {
	cfg, err := load(lookupMap(map[string]string{
		envVarTURNRESTSharedSecret: "secret",
		envTurnURLs:                "turn:turn.example.com:3478",
		envStunURLs:                "stun:stun.example.com:3478",
	}), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.TURNREST.Enabled() {
		t.Fatalf("expected TURN REST enabled")
	}
	if cfg.TURNREST.TTLSeconds != DefaultTURNRESTTTLSeconds || cfg.TURNREST.UsernamePrefix != DefaultTURNRESTUsernamePrefix {
		t.Fatalf("TURNREST=%+v", cfg.TURNREST)
	}
	if len(cfg.ICEServers) != 2 {
		t.Fatalf("ICEServers=%v, want 2 entries", cfg.ICEServers)
	}
}

func TestParseAllowedOrigins_NormalizesAndValidates(t *testing.T) {
	got, err := parseAllowedOrigins("HTTPS://Example.COM:443, http://localhost:5173/")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	want := []string{"https://example.com", "http://localhost:5173"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got=%v, want %v", got, want)
	}
}

func TestParseAllowedOrigins_AllowsStarAndNull(t *testing.T) {
	got, err := parseAllowedOrigins("*,null")
	if err != nil {
		t.Fatalf("parseAllowedOrigins: %v", err)
	}
	if len(got) != 2 || got[0] != "*" || got[1] != "null" {
		t.Fatalf("got=%v, want [* null]", got)
	}
}

func TestParseAllowedOrigins_RejectsPathQueryAndCredentials(t *testing.T) {
	for _, raw := range []string{
		"ftp://example.com",
		"https://example.com/path",
		"https://example.com/?q=1",
		"https://user@example.com",
		"https://example.com/#frag",
	} {
		if _, err := parseAllowedOrigins(raw); err == nil {
			t.Fatalf("expected error for %q, got nil", raw)
		}
	}
}

func TestNewLogger(t *testing.T) {
	for _, f := range []LogFormat{LogFormatText, LogFormatJSON} {
		if _, err := NewLogger(Config{LogFormat: f}); err != nil {
			t.Fatalf("NewLogger(%q): %v", f, err)
		}
	}
	if _, err := NewLogger(Config{LogFormat: "xml"}); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}
