package auth

import (
	"errors"
	"net/http"
	"net/url"
	"testing"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/config"
)

func TestCredentialFromQuery(t *testing.T) {
	cases := []struct {
		name string
		mode config.AuthMode
		q    url.Values
		want string
	}{
		{"none ignores credentials", config.AuthModeNone, url.Values{"apiKey": {"x"}, "token": {"y"}}, ""},
		{"api_key prefers apiKey", config.AuthModeAPIKey, url.Values{"apiKey": {"a"}, "token": {"t"}}, "a"},
		{"api_key accepts token", config.AuthModeAPIKey, url.Values{"token": {"t"}}, "t"},
		{"jwt prefers token", config.AuthModeJWT, url.Values{"apiKey": {"a"}, "token": {"t"}}, "t"},
		{"jwt accepts apiKey", config.AuthModeJWT, url.Values{"apiKey": {"a"}}, "a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cred, err := CredentialFromQuery(tc.mode, tc.q)
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if cred != tc.want {
				t.Fatalf("cred=%q, want %q", cred, tc.want)
			}
		})
	}

	t.Run("missing", func(t *testing.T) {
		_, err := CredentialFromQuery(config.AuthModeAPIKey, url.Values{})
		if !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("err=%v, want %v", err, ErrMissingCredentials)
		}
	})
}

func TestCredentialFromAuthMessage(t *testing.T) {
	cases := []struct {
		mode config.AuthMode
		msg  WireAuthMessage
		want string
	}{
		{config.AuthModeAPIKey, WireAuthMessage{Type: "auth", APIKey: "a"}, "a"},
		{config.AuthModeAPIKey, WireAuthMessage{Type: "auth", Token: "t"}, "t"},
		{config.AuthModeJWT, WireAuthMessage{Type: "auth", Token: "t", APIKey: "a"}, "t"},
		{config.AuthModeJWT, WireAuthMessage{Type: "auth", APIKey: "a"}, "a"},
	}
	for _, tc := range cases {
		cred, err := CredentialFromAuthMessage(tc.mode, tc.msg)
		if err != nil {
			t.Fatalf("%s %+v: err=%v", tc.mode, tc.msg, err)
		}
		if cred != tc.want {
			t.Fatalf("%s %+v: cred=%q, want %q", tc.mode, tc.msg, cred, tc.want)
		}
	}

	if _, err := CredentialFromAuthMessage(config.AuthModeJWT, WireAuthMessage{Type: "auth"}); !errors.Is(err, ErrMissingCredentials) {
		t.Fatalf("err=%v, want %v", err, ErrMissingCredentials)
	}
}

func TestCredentialFromRequest(t *testing.T) {
	cases := []struct {
		name   string
		mode   config.AuthMode
		header string
		value  string
		url    string
	}{
		{"jwt bearer", config.AuthModeJWT, "Authorization", "Bearer t", "http://example.com"},
		{"api_key X-API-Key", config.AuthModeAPIKey, "X-API-Key", "t", "http://example.com"},
		{"api_key ApiKey scheme", config.AuthModeAPIKey, "Authorization", "ApiKey t", "http://example.com"},
		{"jwt X-API-Key alias", config.AuthModeJWT, "X-API-Key", "t", "http://example.com"},
		{"query fallback", config.AuthModeJWT, "", "", "http://example.com/?token=t"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req, _ := http.NewRequest(http.MethodGet, tc.url, nil)
			if tc.header != "" {
				req.Header.Set(tc.header, tc.value)
			}
			cred, err := CredentialFromRequest(tc.mode, req)
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if cred != "t" {
				t.Fatalf("cred=%q, want %q", cred, "t")
			}
		})
	}

	t.Run("unknown scheme is ignored", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodGet, "http://example.com", nil)
		req.Header.Set("Authorization", "Basic dTpw")
		if _, err := CredentialFromRequest(config.AuthModeJWT, req); !errors.Is(err, ErrMissingCredentials) {
			t.Fatalf("err=%v, want %v", err, ErrMissingCredentials)
		}
	})
}

func TestAPIKeyVerifier(t *testing.T) {
	v := APIKeyVerifier{Expected: "k"}
	if _, err := v.Verify("k"); err != nil {
		t.Fatalf("Verify(k): %v", err)
	}
	for _, bad := range []string{"", "K", "kk"} {
		if _, err := v.Verify(bad); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("Verify(%q) err=%v, want %v", bad, err, ErrInvalidCredentials)
		}
	}
	if _, err := (APIKeyVerifier{}).Verify(""); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("empty expected key must reject everything")
	}
}

func TestNewVerifier(t *testing.T) {
	if _, err := NewVerifier(config.Config{AuthMode: config.AuthModeNone}); err == nil {
		t.Fatalf("expected error for AuthModeNone")
	}
	v, err := NewVerifier(config.Config{AuthMode: config.AuthModeAPIKey, APIKey: "k"})
	if err != nil {
		t.Fatalf("NewVerifier(api_key): %v", err)
	}
	if _, err := v.Verify("k"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if _, err := NewVerifier(config.Config{AuthMode: config.AuthModeJWT, JWTSecret: "s"}); err != nil {
		t.Fatalf("NewVerifier(jwt): %v", err)
	}
}
