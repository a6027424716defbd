// Package main is the entry point for vtermd, the VTerm backend daemon.
//
// vtermd hosts PTY-backed shell sessions for UI surfaces (the desktop app,
// scripts, anything local) and exposes them over localhost HTTP plus a
// WebSocket event stream:
//
//	UI surface ←WebSocket /stream→ vtermd ←PTY→ shells
//
// The server provides:
//   - Session lifecycle: create, write, resize, kill, bulk teardown
//   - Activity heuristic (busy signal) for main sessions
//   - Process-status polling for server sessions
//   - Project detection, icons, and root watching
//   - Opaque JSON document persistence
//   - Desktop notifications and attention cues
//
// Configuration is environment-only (12-factor), VTERM_* variables; see
// internal/infrastructure/config.
//
// Signals:
//   - SIGINT, SIGTERM: graceful shutdown, killing every live session
package main
