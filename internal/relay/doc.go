// Package relay moves opaque frames from one room member to the others.
//
// It holds no membership state of its own: every fan-out starts from a
// recipient snapshot taken from the room registry, and delivery goes through
// per-connection bounded queues owned by the gateway.
package relay
