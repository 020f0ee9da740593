package httpserver

import (
	"errors"
	"net/http"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/auth"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/config"
)

// WithVerifier checks credentials on GET /rooms and GET /webrtc/ice. It is
// required whenever AUTH_MODE is not none; without it those routes answer 401.
func WithVerifier(v auth.Verifier) Option {
	return func(s *Server) { s.verifier = v }
}

var errNoVerifier = errors.New("no credential verifier configured")

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requireAuth gates next with the same credentials the signaling endpoint
// accepts: an Authorization header, X-API-Key, or the apiKey/token query
// parameter.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if s.cfg.AuthMode == "" || s.cfg.AuthMode == config.AuthModeNone {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.authorize(r); err != nil {
			s.log.Debug("http request unauthorized",
				"path", r.URL.Path,
				"request_id", r.Header.Get("X-Request-ID"),
				"err", err,
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="room-signal"`)
			WriteJSON(w, http.StatusUnauthorized, errorResponse{Code: "unauthorized", Message: "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) authorize(r *http.Request) error {
	cred, err := auth.CredentialFromRequest(s.cfg.AuthMode, r)
	if err != nil {
		return err
	}
	if s.verifier == nil {
		return errNoVerifier
	}
	_, err = s.verifier.Verify(cred)
	return err
}
