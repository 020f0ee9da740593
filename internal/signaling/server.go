package signaling

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/auth"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/config"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/origin"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/relay"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/room"
)

// Config wires together the runtime dependencies for the gateway. Zero
// values fall back to the same defaults as internal/config.
type Config struct {
	// Rooms is required.
	Rooms *room.Registry
	// Hub is created with no connection limit when nil.
	Hub     *Hub
	Metrics *metrics.Metrics
	Logger  *slog.Logger

	AuthMode config.AuthMode
	// Verifier is required unless AuthMode is none.
	Verifier auth.Verifier
	Origin   origin.Policy

	SignalingAuthTimeout    time.Duration
	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	SendQueueMessages  int
	SendQueueBytes     int
	SlowConsumerPolicy relay.OverflowPolicy
	// SendWriteTimeout bounds one outbound frame write. A client that cannot
	// absorb a frame within it is disconnected.
	SendWriteTimeout time.Duration

	// Clock drives per-connection rate limiting. Nil means wall time.
	Clock ratelimit.Clock
	// Now stamps outbound events. Nil means time.Now.
	Now func() time.Time
}

// ConfigFrom maps process configuration onto a gateway Config.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		AuthMode:                      cfg.AuthMode,
		Origin:                        origin.Policy{Allowed: cfg.AllowedOrigins},
		SignalingAuthTimeout:          cfg.SignalingAuthTimeout,
		SignalingWSIdleTimeout:        cfg.SignalingWSIdleTimeout,
		SignalingWSPingInterval:       cfg.SignalingWSPingInterval,
		MaxSignalingMessageBytes:      cfg.MaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: cfg.MaxSignalingMessagesPerSecond,
		SendQueueMessages:             cfg.SendQueueMessages,
		SendQueueBytes:                cfg.SendQueueBytes,
		SlowConsumerPolicy:            cfg.SlowConsumerPolicy,
		SendWriteTimeout:              cfg.SendWriteTimeout,
	}
}

// Server implements GET /webrtc/signal.
type Server struct {
	cfg      Config
	rooms    *room.Registry
	hub      *Hub
	relay    *relay.Relay
	metrics  *metrics.Metrics
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(cfg Config) *Server {
	if cfg.Hub == nil {
		cfg.Hub = NewHub(0, cfg.Metrics)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = config.AuthModeNone
	}
	if cfg.Clock == nil {
		cfg.Clock = ratelimit.RealClock{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	s := &Server{
		cfg:     cfg,
		rooms:   cfg.Rooms,
		hub:     cfg.Hub,
		relay:   relay.New(cfg.Rooms, cfg.Hub, cfg.Metrics),
		metrics: cfg.Metrics,
		log:     cfg.Logger,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: cfg.Origin.CheckOrigin,
	}
	return s
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /webrtc/signal", s.handleWebSocket)
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// Hub returns the connection index, for gauges and shutdown.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Close asks every connection to go away. Each connection still runs its own
// disconnect cleanup.
func (s *Server) Close() {
	s.hub.CloseAll("server shutting down")
}

func (s *Server) signalingAuthTimeout() time.Duration {
	if s.cfg.SignalingAuthTimeout <= 0 {
		return config.DefaultSignalingAuthTimeout
	}
	return s.cfg.SignalingAuthTimeout
}

func (s *Server) idleTimeout() time.Duration {
	if s.cfg.SignalingWSIdleTimeout <= 0 {
		return config.DefaultSignalingWSIdleTimeout
	}
	return s.cfg.SignalingWSIdleTimeout
}

func (s *Server) pingInterval() time.Duration {
	if s.cfg.SignalingWSPingInterval <= 0 {
		return config.DefaultSignalingWSPingInterval
	}
	return s.cfg.SignalingWSPingInterval
}

func (s *Server) maxMessageBytes() int64 {
	if s.cfg.MaxSignalingMessageBytes <= 0 {
		return config.DefaultMaxSignalingMessageBytes
	}
	return s.cfg.MaxSignalingMessageBytes
}

func (s *Server) sendQueueMessages() int {
	if s.cfg.SendQueueMessages <= 0 {
		return config.DefaultSendQueueMessages
	}
	return s.cfg.SendQueueMessages
}

func (s *Server) sendQueueBytes() int {
	if s.cfg.SendQueueBytes <= 0 {
		return config.DefaultSendQueueBytes
	}
	return s.cfg.SendQueueBytes
}

func (s *Server) sendWriteTimeout() time.Duration {
	if s.cfg.SendWriteTimeout <= 0 {
		return config.DefaultSendWriteTimeout
	}
	return s.cfg.SendWriteTimeout
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub.Full() {
		s.metrics.Inc(metrics.DropReasonTooManyConnections)
		http.Error(w, ErrTooManyConnections.Error(), http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already written an HTTP error response.
		return
	}

	c := &conn{
		id:        uuid.NewString(),
		ws:        ws,
		metrics:   s.metrics,
		queue:     relay.NewQueue(s.sendQueueMessages(), s.sendQueueBytes(), s.cfg.SlowConsumerPolicy),
		policy:    s.cfg.SlowConsumerPolicy,
		writeWait: s.sendWriteTimeout(),
		limiter:   ratelimit.NewPerSecond(s.cfg.Clock, s.cfg.MaxSignalingMessagesPerSecond),
		done:      make(chan struct{}),
	}
	if c.policy == "" {
		c.policy = relay.PolicyDisconnect
	}
	c.log = s.log.With("conn_id", c.id)

	if err := s.hub.register(c); err != nil {
		s.metrics.Inc(metrics.DropReasonTooManyConnections)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too many connections"),
			time.Now().Add(wsWriteWait))
		_ = ws.Close()
		return
	}
	s.metrics.Inc(metrics.ConnectionAccepted)
	c.log.Debug("websocket connected", "remote_addr", r.RemoteAddr)

	go c.writeLoop()
	go c.pingLoop(s.pingInterval())

	s.serveConn(c, r)
}

// serveConn runs the read loop. Every exit path ends in disconnect.
func (s *Server) serveConn(c *conn, r *http.Request) {
	defer s.disconnect(c)

	c.ws.SetReadLimit(s.maxMessageBytes())
	c.ws.SetPongHandler(func(string) error {
		if c.authed && !c.closing.Load() {
			_ = c.ws.SetReadDeadline(time.Now().Add(s.idleTimeout()))
		}
		return nil
	})

	if !s.authenticateRequest(c, r) {
		return
	}

	for {
		msgType, data, err := c.ws.ReadMessage()
		if err != nil {
			s.handleReadError(c, err)
			return
		}
		// Rate limit after reading so the frame's bytes are consumed and the
		// client reliably observes the close code.
		if !c.limiter.Allow() {
			s.metrics.Inc(metrics.DropReasonRateLimited)
			c.fail(codeRateLimited, "rate limit exceeded", websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}
		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.BadMessage)
			c.fail(codeBadMessage, "expected text message", websocket.CloseUnsupportedData, "expected text message")
			return
		}
		if c.authed {
			_ = c.ws.SetReadDeadline(time.Now().Add(s.idleTimeout()))
		}

		ev, err := DecodeEvent(data)
		if err != nil {
			s.metrics.Inc(metrics.BadMessage)
			s.reportError(c, err)
			continue
		}

		if !c.authed {
			if !s.authenticateEvent(c, ev) {
				return
			}
			continue
		}

		s.dispatch(c, ev)
	}
}

func (s *Server) handleReadError(c *conn, err error) {
	switch {
	case c.closing.Load():
	case errors.Is(err, websocket.ErrReadLimit):
		// gorilla/websocket has already sent 1009.
		s.metrics.Inc(metrics.BadMessage)
		c.log.Debug("message too large")
	case isTimeout(err) && !c.authed:
		s.metrics.Inc(metrics.AuthFailure)
		c.fail(codeUnauthorized, "authentication timeout", websocket.ClosePolicyViolation, "authentication timeout")
	case isTimeout(err):
		c.log.Debug("websocket idle timeout")
		c.closing.Store(true)
		c.queue.Close()
		c.closeWith(websocket.CloseNormalClosure, "idle timeout")
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		c.log.Debug("websocket closed by client")
	default:
		c.log.Debug("websocket read failed", "err", err)
	}
}

// disconnect is the single teardown path of a connection. The registry
// cleanup it runs is a no-op when the client already left its room.
func (s *Server) disconnect(c *conn) {
	s.hub.unregister(c)
	c.terminate()

	if dep, ok := s.rooms.DisconnectCleanup(c.id); ok {
		c.log.Info("member disconnected", "room_id", dep.RoomID, "name", dep.Member.Name)
		s.notifyDeparture(dep)
	}
	s.metrics.Inc(metrics.ConnectionClosed)
	c.log.Debug("websocket disconnected")
}

// authenticateRequest checks credentials carried by the upgrade request. When
// there are none and auth is enabled, the client has SignalingAuthTimeout to
// send an auth event.
func (s *Server) authenticateRequest(c *conn, r *http.Request) bool {
	if s.cfg.AuthMode == config.AuthModeNone {
		s.markAuthenticated(c, auth.Identity{})
		return true
	}

	cred, err := auth.CredentialFromRequest(s.cfg.AuthMode, r)
	if errors.Is(err, auth.ErrMissingCredentials) {
		_ = c.ws.SetReadDeadline(time.Now().Add(s.signalingAuthTimeout()))
		return true
	}
	if err != nil {
		c.log.Error("auth configuration error", "err", err)
		c.fail(codeUnauthorized, "unauthorized", websocket.CloseInternalServerErr, "invalid auth configuration")
		return false
	}
	return s.verify(c, cred)
}

// authenticateEvent handles the first event of a connection that has not
// authenticated yet.
func (s *Server) authenticateEvent(c *conn, ev Event) bool {
	authEv, ok := ev.(AuthEvent)
	if !ok {
		s.metrics.Inc(metrics.AuthFailure)
		c.fail(codeUnauthorized, "authentication required", websocket.ClosePolicyViolation, "authentication required")
		return false
	}
	cred, err := auth.CredentialFromAuthMessage(s.cfg.AuthMode, auth.WireAuthMessage{
		Type:   string(authEv.Type),
		APIKey: authEv.APIKey,
		Token:  authEv.Token,
	})
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		c.fail(codeUnauthorized, "missing credentials", websocket.ClosePolicyViolation, "unauthorized")
		return false
	}
	return s.verify(c, cred)
}

func (s *Server) verify(c *conn, cred string) bool {
	if s.cfg.Verifier == nil {
		c.log.Error("auth verifier not configured", "auth_mode", s.cfg.AuthMode)
		c.fail(codeUnauthorized, "unauthorized", websocket.CloseInternalServerErr, "invalid auth configuration")
		return false
	}
	id, err := s.cfg.Verifier.Verify(cred)
	if err != nil {
		s.metrics.Inc(metrics.AuthFailure)
		c.log.Info("authentication failed", "err", err)
		c.fail(codeUnauthorized, "unauthorized", websocket.ClosePolicyViolation, "unauthorized")
		return false
	}
	s.markAuthenticated(c, id)
	return true
}

func (s *Server) markAuthenticated(c *conn, id auth.Identity) {
	c.authed = true
	c.identity = id
	if id.Subject != "" {
		c.log = c.log.With("subject", id.Subject)
	}
	_ = c.ws.SetReadDeadline(time.Now().Add(s.idleTimeout()))
	c.send(connectedMessage{
		Type:         EventConnected,
		ConnectionID: c.id,
		Timestamp:    s.now(),
	})
}

// reportError sends err to c as an error event. The connection stays open.
func (s *Server) reportError(c *conn, err error) {
	var perr *protocolError
	if !errors.As(err, &perr) {
		c.log.Error("event handling failed", "err", err)
		perr = &protocolError{Code: "internal_error", Message: "internal error"}
	}
	c.send(errorMessage{Type: EventError, Code: perr.Code, Message: perr.Message})
}

func (s *Server) now() time.Time {
	return s.cfg.Now().UTC()
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
