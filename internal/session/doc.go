// Package session owns the PTY session lifecycle for the backend.
//
// It is the architectural center of the system: the Manager spawns
// pseudo-terminal-backed shell processes, multiplexes their output onto a
// broadcast Hub tagged by session id, propagates resizes, and guarantees a
// deterministic teardown protocol (every session delivers its exit event
// exactly once, and operations against retired ids are silent no-ops so
// in-flight UI traffic during teardown never errors).
//
// Two derived signals ride on top of the raw byte streams:
//   - Tracker approximates "the CLI is busy" for interactive (main) sessions
//     from output timing after a submitted command, since shells expose no
//     portable completion signal.
//   - Poller reports real running state for server sessions by scanning the
//     shell's descendant processes on an interval, independent of shell echo.
package session
