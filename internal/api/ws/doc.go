// Package ws implements the /stream WebSocket transport. One connection
// carries the full conversation between a UI surface and the backend:
// request/response operations correlated by request id, fire-and-forget
// commands, and the server-originated event stream (session output, exits,
// busy transitions, server status, project changes, update notices).
//
// Each connection holds exactly one hub subscription, disposed on
// disconnect; clients filter events by session id themselves.
package ws
