package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"
)

// ErrSpawnFailed is returned by Create when the OS refuses to start the
// shell process. It is the only user-visible session error; everything else
// degrades to silent no-ops or asynchronous exit events.
var ErrSpawnFailed = errors.New("session spawn failed")

// Kind is the closed set of session kinds.
type Kind int

const (
	// KindMain is the interactive CLI session of a project.
	KindMain Kind = iota
	// KindServer is a background-process session (dev server tab).
	KindServer
)

// String returns the wire representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindMain:
		return "main"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// ParseKind parses a wire kind string.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "main":
		return KindMain, nil
	case "server":
		return KindServer, nil
	default:
		return KindMain, fmt.Errorf("unknown session kind: %q", s)
	}
}

// EventType identifies an event on the hub.
type EventType string

const (
	// EventOutput carries a chunk of PTY output.
	EventOutput EventType = "output"
	// EventExit is the final event for a session id.
	EventExit EventType = "exit"
	// EventBusy signals a busy transition of a main session.
	EventBusy EventType = "busy"
	// EventStatus signals a running transition of a server session.
	EventStatus EventType = "status"
	// EventPrompt carries a submitted command line of a main session.
	EventPrompt EventType = "prompt"
)

// Event is the single broadcast unit of the hub. Every event carries the
// originating session id so one channel serves any number of sessions and
// subscribers filter client-side.
type Event struct {
	Type      EventType
	SessionID string
	ProjectID string
	Kind      Kind

	// Data is the output chunk for EventOutput and the submitted command
	// line for EventPrompt.
	Data []byte

	ExitCode int  // EventExit
	Busy     bool // EventBusy
	Running  bool // EventStatus
}

// Info is the public snapshot of a session.
type Info struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"project_id"`
	Kind       string    `json:"kind"`
	Shell      string    `json:"shell"`
	WorkingDir string    `json:"working_dir"`
	Cols       int       `json:"cols"`
	Rows       int       `json:"rows"`
	StartedAt  time.Time `json:"started_at"`
	Pid        int       `json:"pid"`
}

// Session is a live PTY-backed shell process. All fields below mu are
// guarded by it; identity fields are immutable after creation.
type Session struct {
	id         string
	projectID  string
	kind       Kind
	shell      string
	workingDir string
	startedAt  time.Time

	cmd  *exec.Cmd
	ptmx *os.File

	tracker *Tracker // main sessions only, nil otherwise

	mu     sync.Mutex
	cols   int
	rows   int
	closed bool

	readerDone chan struct{} // closed when the output reader drained
	done       chan struct{} // closed after the exit event is published
}

// info snapshots the session under its lock.
func (s *Session) info() Info {
	s.mu.Lock()
	cols, rows := s.cols, s.rows
	s.mu.Unlock()

	pid := 0
	if s.cmd.Process != nil {
		pid = s.cmd.Process.Pid
	}

	return Info{
		ID:         s.id,
		ProjectID:  s.projectID,
		Kind:       s.kind.String(),
		Shell:      s.shell,
		WorkingDir: s.workingDir,
		Cols:       cols,
		Rows:       rows,
		StartedAt:  s.startedAt,
		Pid:        pid,
	}
}

// markClosed flips the closed flag, returning false if it already was.
func (s *Session) markClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
