package session

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/creack/pty"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/config"
	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
	"github.com/vterm/vterm/backend/internal/infrastructure/monitoring"
	"github.com/vterm/vterm/backend/internal/shared/id"
)

const readChunkSize = 4096

// Manager owns the registry of live PTY sessions. All mutation of the
// registry funnels through its methods; "check session exists" and "act on
// session" are atomic with respect to a concurrent Kill.
type Manager struct {
	cfg     config.SessionConfig
	hub     *Hub
	logger  *logging.Logger
	metrics *monitoring.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewManager creates a session manager publishing to the given hub.
func NewManager(cfg config.SessionConfig, hub *Hub, logger *logging.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		hub:      hub,
		logger:   logger.Named("session"),
		sessions: make(map[string]*Session),
	}
}

// WithMetrics attaches a metrics collector.
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// Hub returns the event hub sessions publish to.
func (m *Manager) Hub() *Hub {
	return m.hub
}

// Create spawns a PTY-backed shell for the project and returns its info.
//
// The working directory falls back to the user home (then the temp dir)
// when missing; only an OS-level spawn refusal fails creation, wrapped as
// ErrSpawnFailed. The session is registered before Create returns, so a
// Write issued by a caller that has observed the result always resolves.
func (m *Manager) Create(projectID string, kind Kind, workingDir string) (Info, error) {
	shell := m.cfg.Shell
	if shell == "" {
		shell = defaultShell()
	}
	cwd := resolveWorkingDir(workingDir)

	cols, rows := m.cfg.DefaultCols, m.cfg.DefaultRows
	if cols <= 0 {
		cols = 80
	}
	if rows <= 0 {
		rows = 24
	}

	cmd := exec.Command(shell, shellArgs(m.cfg.LoginShell)...)
	cmd.Dir = cwd
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	})
	if err != nil {
		if m.metrics != nil {
			m.metrics.IncSpawnFailures()
		}
		m.logger.Error("Failed to spawn shell",
			zap.String("shell", shell),
			zap.String("cwd", cwd),
			zap.Error(err),
		)
		return Info{}, fmt.Errorf("%w: %v", ErrSpawnFailed, err)
	}

	sid := id.NewSessionID().String()
	s := &Session{
		id:         sid,
		projectID:  projectID,
		kind:       kind,
		shell:      shell,
		workingDir: cwd,
		startedAt:  time.Now(),
		cmd:        cmd,
		ptmx:       ptmx,
		cols:       cols,
		rows:       rows,
		readerDone: make(chan struct{}),
		done:       make(chan struct{}),
	}

	if kind == KindMain {
		s.tracker = NewTracker(
			m.cfg.IdleThreshold,
			m.cfg.ActivityTick,
			func(busy bool) {
				m.publishLive(Event{
					Type:      EventBusy,
					SessionID: sid,
					ProjectID: projectID,
					Kind:      kind,
					Busy:      busy,
				})
			},
			func(line string) {
				m.publishLive(Event{
					Type:      EventPrompt,
					SessionID: sid,
					ProjectID: projectID,
					Kind:      kind,
					Data:      []byte(line),
				})
			},
		)
		s.tracker.Start()
	}

	m.mu.Lock()
	m.sessions[sid] = s
	m.mu.Unlock()

	go m.readOutput(s)
	go m.monitor(s)

	if m.metrics != nil {
		m.metrics.IncSessionsActive()
		m.metrics.IncSessionsTotal(kind.String())
	}
	m.logger.Info("Session created",
		zap.String("session_id", sid),
		zap.String("project_id", projectID),
		zap.String("kind", kind.String()),
		zap.String("cwd", cwd),
	)

	return s.info(), nil
}

// Write forwards raw input bytes to a session's PTY. Unknown ids are silent
// no-ops: UI keystrokes may be in flight while the session is torn down.
func (m *Manager) Write(sessionID string, data []byte) {
	s := m.get(sessionID)
	if s == nil {
		return
	}

	if s.tracker != nil {
		s.tracker.HandleInput(data)
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	if _, err := s.ptmx.Write(data); err != nil {
		// The process may have exited between the check and the write;
		// the exit event is the report channel, not this call.
		m.logger.Debug("PTY write failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Resize updates the PTY dimensions. Idempotent, cheap, and a silent no-op
// for unknown ids; safe to call on every UI layout change.
func (m *Manager) Resize(sessionID string, cols, rows int) {
	s := m.get(sessionID)
	if s == nil || cols <= 0 || rows <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.cols == cols && s.rows == rows {
		return
	}
	s.cols, s.rows = cols, rows

	if err := pty.Setsize(s.ptmx, &pty.Winsize{
		Cols: uint16(cols),
		Rows: uint16(rows),
	}); err != nil {
		m.logger.Debug("PTY resize failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Kill requests termination of a session. It does not block waiting for
// process exit; the exit event arrives asynchronously on the hub. Killing
// an unknown or already-killed id is a silent no-op.
func (m *Manager) Kill(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	m.teardown(s)
}

// teardown closes a session's PTY and kills its process exactly once.
func (m *Manager) teardown(s *Session) {
	if !s.markClosed() {
		return
	}

	if s.tracker != nil {
		s.tracker.Stop()
	}
	s.ptmx.Close()
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}

	m.logger.Info("Session kill requested", zap.String("session_id", s.id))
}

// Get returns the info snapshot of a live session.
func (m *Manager) Get(sessionID string) (Info, bool) {
	s := m.get(sessionID)
	if s == nil {
		return Info{}, false
	}
	return s.info(), true
}

// List returns snapshots of all live sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	infos := make([]Info, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	return infos
}

// ServerPids returns (sessionID, shell pid) pairs for live server sessions;
// the status poller scans their descendants.
func (m *Manager) ServerPids() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pids := make(map[string]int)
	for sid, s := range m.sessions {
		if s.kind != KindServer || s.cmd.Process == nil {
			continue
		}
		pids[sid] = s.cmd.Process.Pid
	}
	return pids
}

// projectOf reports the owning project of a live session.
func (m *Manager) projectOf(sessionID string) string {
	if s := m.get(sessionID); s != nil {
		return s.projectID
	}
	return ""
}

// CloseAll kills every live session and waits, up to the timeout, for all
// exit events to be delivered. Called on shutdown so no child processes
// outlive the backend.
func (m *Manager) CloseAll(timeout time.Duration) {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for sid, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, sid)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.teardown(s)
	}

	deadline := time.After(timeout)
	for _, s := range sessions {
		select {
		case <-s.done:
		case <-deadline:
			m.logger.Warn("Timed out waiting for session exit",
				zap.String("session_id", s.id))
			return
		}
	}
}

// get resolves a live session or nil.
func (m *Manager) get(sessionID string) *Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[sessionID]
}

// publishLive publishes an event only while its session id is still
// registered. Holding the registry lock across the publish orders it
// strictly before the exit event, which monitor publishes under the write
// lock while retiring the id; a poller scan or idle-ticker callback that
// loses the race against teardown is dropped instead of trailing the exit.
func (m *Manager) publishLive(e Event) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.sessions[e.SessionID]; ok {
		m.hub.Publish(e)
	}
}

// readOutput pumps PTY output onto the hub in arrival order until the PTY
// closes. Chunks are forwarded as read, uncoalesced.
func (m *Manager) readOutput(s *Session) {
	defer close(s.readerDone)

	buf := make([]byte, readChunkSize)
	for {
		n, err := s.ptmx.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])

			if s.tracker != nil {
				s.tracker.TouchOutput()
			}
			if m.metrics != nil {
				m.metrics.AddOutputBytes(n)
			}
			m.hub.Publish(Event{
				Type:      EventOutput,
				SessionID: s.id,
				ProjectID: s.projectID,
				Kind:      s.kind,
				Data:      data,
			})
		}
		if err != nil {
			if err != io.EOF {
				m.logger.Debug("PTY read ended",
					zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}
	}
}

// monitor waits for process exit, retires the session id, and publishes the
// exit event. The event is published only after the output reader drains,
// making it the final event for the id, delivered exactly once.
func (m *Manager) monitor(s *Session) {
	err := s.cmd.Wait()
	<-s.readerDone

	exitCode := 0
	if s.cmd.ProcessState != nil {
		exitCode = s.cmd.ProcessState.ExitCode()
	} else if err != nil {
		exitCode = -1
	}

	requested := !s.markClosed()
	if !requested {
		// Spontaneous exit: release resources and retire the id.
		if s.tracker != nil {
			s.tracker.Stop()
		}
		s.ptmx.Close()
	}

	// Retiring the id and publishing the exit happen in one critical
	// section: every publishLive either saw the session registered and
	// published before this, or sees it gone and drops.
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.hub.Publish(Event{
		Type:      EventExit,
		SessionID: s.id,
		ProjectID: s.projectID,
		Kind:      s.kind,
		ExitCode:  exitCode,
	})
	m.mu.Unlock()
	close(s.done)

	reason := "spontaneous"
	if requested {
		reason = "killed"
	}
	if m.metrics != nil {
		m.metrics.DecSessionsActive()
		m.metrics.IncSessionExits(reason)
	}

	m.logger.Info("Session exited",
		zap.String("session_id", s.id),
		zap.Int("exit_code", exitCode),
		zap.String("reason", reason),
	)
}
