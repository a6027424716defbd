package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

// SnapshotFunc reports the descendant pids of a process. Implementations
// query the OS process table; an error means the answer is unknown, which
// is distinct from "no descendants".
type SnapshotFunc func(pid int) ([]int, error)

// Poller derives the running state of server sessions. A shell prints
// nothing useful when its child exits, so echo cannot be trusted; instead
// the poller scans the shell's process subtree on a fixed interval and
// reports a session as running while at least one descendant is alive.
type Poller struct {
	manager  *Manager
	interval time.Duration
	snapshot SnapshotFunc
	logger   *logging.Logger

	mu      sync.Mutex
	running map[string]bool

	stopOnce sync.Once
	stop     chan struct{}
}

// NewPoller creates a poller over the manager's server sessions using the
// platform process-table scan.
func NewPoller(manager *Manager, interval time.Duration, logger *logging.Logger) *Poller {
	return &Poller{
		manager:  manager,
		interval: interval,
		snapshot: descendants,
		logger:   logger.Named("poller"),
		running:  make(map[string]bool),
		stop:     make(chan struct{}),
	}
}

// WithSnapshot overrides the process-table scan; used by tests.
func (p *Poller) WithSnapshot(fn SnapshotFunc) *Poller {
	p.snapshot = fn
	return p
}

// Start launches the polling loop.
func (p *Poller) Start() {
	go func() {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.pollOnce()
			}
		}
	}()
}

// Stop tears the polling loop down. Safe to call more than once.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() { close(p.stop) })
}

// pollOnce scans every live server session and publishes transitions.
func (p *Poller) pollOnce() {
	pids := p.manager.ServerPids()

	p.mu.Lock()
	// Forget retired sessions so their ids never resolve again.
	for sid := range p.running {
		if _, live := pids[sid]; !live {
			delete(p.running, sid)
		}
	}
	p.mu.Unlock()

	for sid, pid := range pids {
		desc, err := p.snapshot(pid)
		if err != nil {
			// Unknown, not "stopped": keep the last known state.
			p.logger.Debug("Process scan failed",
				zap.String("session_id", sid), zap.Error(err))
			continue
		}
		p.report(sid, len(desc) > 0)
	}
}

// report publishes a status event when the running state transitions. The
// publish is gated on the session still being registered, so a kill
// landing between the pid snapshot and the scan cannot trail the exit
// event.
func (p *Poller) report(sessionID string, running bool) {
	p.mu.Lock()
	prev, seen := p.running[sessionID]
	if seen && prev == running {
		p.mu.Unlock()
		return
	}
	p.running[sessionID] = running
	p.mu.Unlock()

	// First observation of an idle shell is not a transition worth a
	// notification; only report initial state when something is running.
	if !seen && !running {
		return
	}

	p.manager.publishLive(Event{
		Type:      EventStatus,
		SessionID: sessionID,
		ProjectID: p.manager.projectOf(sessionID),
		Kind:      KindServer,
		Running:   running,
	})
}
