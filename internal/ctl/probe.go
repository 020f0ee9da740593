package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// ProbeResult describes one successful liveness round trip.
type ProbeResult struct {
	ConnectionID string
	// Connect covers the WebSocket handshake plus the server's connected event.
	Connect time.Duration
	// RTT is the liveness-probe to liveness-ack round trip.
	RTT time.Duration
}

type probeFrame struct {
	Type         string `json:"type"`
	ConnectionID string `json:"connectionId"`
	Code         string `json:"code"`
	Message      string `json:"message"`
}

// Probe opens a signaling connection, waits for it to be authenticated, sends
// one liveness-probe and waits for the ack.
func (c *Client) Probe(ctx context.Context) (ProbeResult, error) {
	var res ProbeResult

	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}

	start := time.Now()
	ws, resp, err := websocket.DefaultDialer.DialContext(ctx, c.signalURL(), header)
	if err != nil {
		if resp != nil {
			return res, fmt.Errorf("dial %s: %w (status %d)", c.signalURL(), err, resp.StatusCode)
		}
		return res, fmt.Errorf("dial %s: %w", c.signalURL(), err)
	}
	defer ws.Close()

	stop := context.AfterFunc(ctx, func() { _ = ws.SetReadDeadline(time.Now()) })
	defer stop()

	connected, err := readFrame(ws, "connected")
	if err != nil {
		return res, err
	}
	res.ConnectionID = connected.ConnectionID
	res.Connect = time.Since(start)

	sent := time.Now()
	if err := ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"liveness-probe"}`)); err != nil {
		return res, fmt.Errorf("send liveness-probe: %w", err)
	}
	if _, err := readFrame(ws, "liveness-ack"); err != nil {
		return res, err
	}
	res.RTT = time.Since(sent)

	_ = ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	return res, nil
}

// readFrame skips frames until one of the wanted type arrives. An error event
// from the server ends the probe.
func readFrame(ws *websocket.Conn, want string) (probeFrame, error) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				return probeFrame{}, fmt.Errorf("waiting for %s: server closed connection: %d %s", want, ce.Code, ce.Text)
			}
			return probeFrame{}, fmt.Errorf("waiting for %s: %w", want, err)
		}
		var f probeFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return probeFrame{}, fmt.Errorf("waiting for %s: invalid frame: %w", want, err)
		}
		switch f.Type {
		case want:
			return f, nil
		case "error":
			return f, fmt.Errorf("waiting for %s: server error %s: %s", want, f.Code, f.Message)
		}
	}
}
