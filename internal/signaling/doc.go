// Package signaling is the WebSocket gateway of the room relay.
//
// Each connection gets a process-unique ID, a bounded outbound queue drained
// by its own writer goroutine, and a read loop that decodes client events and
// dispatches them one at a time. Room state lives in the room registry; this
// package only turns events into registry calls and registry results into
// notifications.
package signaling
