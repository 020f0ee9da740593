package signaling

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wilsonzlin/aero/proxy/room-signal/internal/auth"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/metrics"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/ratelimit"
	"github.com/wilsonzlin/aero/proxy/room-signal/internal/relay"
)

const (
	// wsWriteWait bounds error and close frames written on the failure path.
	wsWriteWait = 1 * time.Second
	// wsCloseGrace is how long a closing connection waits for the peer to
	// acknowledge the close frame before the socket is torn down.
	wsCloseGrace = 1 * time.Second
)

// conn is one client connection. The read loop owns authed and limiter; the
// writer goroutine is the only caller of WriteMessage outside the failure path,
// which serializes with it through writeMu.
type conn struct {
	id  string
	ws  *websocket.Conn
	log *slog.Logger

	metrics   *metrics.Metrics
	queue     *relay.Queue
	policy    relay.OverflowPolicy
	writeWait time.Duration

	authed   bool
	identity auth.Identity
	limiter  *ratelimit.TokenBucket

	writeMu   sync.Mutex
	closing   atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// enqueue hands frame to the writer goroutine. Under PolicyDisconnect a
// backlogged queue closes the connection as a slow consumer. A frame larger
// than the whole queue is dropped and the connection kept.
func (c *conn) enqueue(frame []byte) bool {
	res := c.queue.Enqueue(frame)
	switch res {
	case relay.Enqueued:
		return true
	case relay.EnqueuedDroppedOldest:
		c.metrics.Inc(metrics.DropReasonQueueFull)
		return true
	case relay.Oversize:
		c.metrics.Inc(metrics.DropReasonQueueFull)
		c.log.Warn("dropping outbound frame", "bytes", len(frame), "err", res.Err())
		return false
	case relay.Rejected:
		c.metrics.Inc(metrics.DropReasonQueueFull)
		if c.policy == relay.PolicyDisconnect && !c.closing.Load() {
			c.metrics.Inc(metrics.DropReasonSlowConsumer)
			c.log.Warn("closing slow consumer", "err", res.Err())
			// The caller may be another connection's read loop; never block it on
			// this connection's socket.
			go c.fail(codeSlowConsumer, "outbound queue overflow", websocket.ClosePolicyViolation, "slow consumer")
		}
		return false
	default:
		return false
	}
}

func (c *conn) send(v any) bool {
	return c.enqueue(encode(v))
}

func (c *conn) writeLoop() {
	for {
		frame, ok := c.queue.Dequeue()
		if !ok {
			return
		}
		c.writeMu.Lock()
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
		err := c.ws.WriteMessage(websocket.TextMessage, frame)
		c.writeMu.Unlock()
		if err != nil {
			if !c.closing.Load() {
				c.log.Debug("websocket write failed", "err", err)
			}
			// Unblocks the read loop, which runs the disconnect cleanup.
			_ = c.ws.Close()
			return
		}
	}
}

func (c *conn) pingLoop(interval time.Duration) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-t.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		}
	}
}

// fail reports code/message to the client and closes the connection. Queued
// frames are discarded. Only the first call has any effect.
func (c *conn) fail(code, message string, closeCode int, closeReason string) {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.queue.Close()

	c.writeMu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	_ = c.ws.WriteMessage(websocket.TextMessage, encode(errorMessage{
		Type:    EventError,
		Code:    code,
		Message: message,
	}))
	c.writeMu.Unlock()

	c.closeWith(closeCode, closeReason)
}

// shutdown closes the connection without an error event.
func (c *conn) shutdown(reason string) {
	if !c.closing.CompareAndSwap(false, true) {
		return
	}
	c.queue.Close()
	c.closeWith(websocket.CloseGoingAway, reason)
}

func (c *conn) closeWith(code int, reason string) {
	_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteWait))
	_ = c.ws.SetReadDeadline(time.Now().Add(wsCloseGrace))
}

// terminate releases the connection's goroutines and socket. It is called once
// from the read loop's exit path.
func (c *conn) terminate() {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.done)
		c.queue.Close()
		_ = c.ws.Close()
	})
}
