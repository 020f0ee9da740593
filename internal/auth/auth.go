// Package auth verifies the credential a client presents when opening a
// signaling connection. Token issuance lives in the booking API, not here.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/config"
)

var (
	ErrMissingCredentials = errors.New("missing credentials")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Identity is what a verified credential says about its holder. Fields are
// empty when the credential type carries no such information (API keys).
type Identity struct {
	Subject string
	Email   string
	Role    string
}

type Verifier interface {
	Verify(credential string) (Identity, error)
}

// NewVerifier returns the verifier for cfg.AuthMode. AuthModeNone has no
// verifier; callers skip authentication entirely.
func NewVerifier(cfg config.Config) (Verifier, error) {
	switch cfg.AuthMode {
	case config.AuthModeAPIKey:
		return APIKeyVerifier{Expected: cfg.APIKey}, nil
	case config.AuthModeJWT:
		return NewJWTVerifier(cfg.JWTSecret), nil
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.AuthMode)
	}
}

// CredentialFromQuery extracts the credential from the upgrade request's query
// string. The parameter matching the mode is preferred but either is accepted
// so clients can use one URL shape for both modes.
func CredentialFromQuery(mode config.AuthMode, q url.Values) (string, error) {
	switch mode {
	case config.AuthModeNone:
		return "", nil
	case config.AuthModeAPIKey:
		return firstNonEmpty(q.Get("apiKey"), q.Get("token"))
	case config.AuthModeJWT:
		return firstNonEmpty(q.Get("token"), q.Get("apiKey"))
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

// CredentialFromRequest looks for a credential in the Authorization header
// ("Bearer <cred>" or "ApiKey <cred>"), then X-API-Key, then the query string.
func CredentialFromRequest(mode config.AuthMode, r *http.Request) (string, error) {
	if mode == config.AuthModeNone {
		return "", nil
	}
	if scheme, cred, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " "); ok {
		switch strings.ToLower(scheme) {
		case "bearer", "apikey":
			if cred = strings.TrimSpace(cred); cred != "" {
				return cred, nil
			}
		}
	}
	if cred := strings.TrimSpace(r.Header.Get("X-API-Key")); cred != "" {
		return cred, nil
	}
	return CredentialFromQuery(mode, r.URL.Query())
}

// WireAuthMessage is the first frame a client sends when it did not put its
// credential in the query string.
type WireAuthMessage struct {
	Type   string `json:"type"`
	APIKey string `json:"apiKey,omitempty"`
	Token  string `json:"token,omitempty"`
}

func CredentialFromAuthMessage(mode config.AuthMode, msg WireAuthMessage) (string, error) {
	switch mode {
	case config.AuthModeNone:
		return "", nil
	case config.AuthModeAPIKey:
		return firstNonEmpty(msg.APIKey, msg.Token)
	case config.AuthModeJWT:
		return firstNonEmpty(msg.Token, msg.APIKey)
	default:
		return "", fmt.Errorf("unsupported auth mode %q", mode)
	}
}

func firstNonEmpty(vals ...string) (string, error) {
	for _, v := range vals {
		if v != "" {
			return v, nil
		}
	}
	return "", ErrMissingCredentials
}
