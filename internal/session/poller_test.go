//go:build !windows

package session

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

func newTestPoller(t *testing.T, snapshot SnapshotFunc) (*Poller, *Manager, Info) {
	t.Helper()
	m := newTestManager(t)

	info, err := m.Create("p1", KindServer, t.TempDir())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	p := NewPoller(m, time.Hour, &logging.Logger{Logger: zap.NewNop()}).WithSnapshot(snapshot)
	return p, m, info
}

// drainStatus pulls the next status event for the session, or reports none.
func drainStatus(ch <-chan Event, sessionID string, wait time.Duration) (Event, bool) {
	deadline := time.After(wait)
	for {
		select {
		case ev := <-ch:
			if ev.Type == EventStatus && ev.SessionID == sessionID {
				return ev, true
			}
		case <-deadline:
			return Event{}, false
		}
	}
}

func TestPollerReportsTransitionsOnly(t *testing.T) {
	var pids []int
	var scanErr error
	p, m, info := newTestPoller(t, func(int) ([]int, error) {
		return pids, scanErr
	})

	ch, dispose := m.Hub().Subscribe()
	defer dispose()

	// Idle shell on first observation: not a transition, nothing reported.
	p.pollOnce()
	if _, got := drainStatus(ch, info.ID, 100*time.Millisecond); got {
		t.Fatal("initial idle observation produced a status event")
	}

	// A child appears: running=true.
	pids = []int{4242}
	p.pollOnce()
	ev, got := drainStatus(ch, info.ID, time.Second)
	if !got || !ev.Running {
		t.Fatalf("expected running=true status, got %+v (delivered=%v)", ev, got)
	}
	if ev.ProjectID != "p1" || ev.Kind != KindServer {
		t.Errorf("status event misattributed: %+v", ev)
	}

	// Same state again: no repeat event.
	p.pollOnce()
	if _, got := drainStatus(ch, info.ID, 100*time.Millisecond); got {
		t.Fatal("unchanged state produced a duplicate status event")
	}

	// Children gone: running=false.
	pids = nil
	p.pollOnce()
	ev, got = drainStatus(ch, info.ID, time.Second)
	if !got || ev.Running {
		t.Fatalf("expected running=false status, got %+v (delivered=%v)", ev, got)
	}
}

func TestPollerKeepsStateOnScanFailure(t *testing.T) {
	var pids []int
	var scanErr error
	p, m, info := newTestPoller(t, func(int) ([]int, error) {
		return pids, scanErr
	})

	ch, dispose := m.Hub().Subscribe()
	defer dispose()

	pids = []int{4242}
	p.pollOnce()
	if _, got := drainStatus(ch, info.ID, time.Second); !got {
		t.Fatal("running transition never delivered")
	}

	// A failing scan is "unknown": the last known state is kept and no
	// stopped event is fabricated.
	pids, scanErr = nil, errors.New("process table unavailable")
	p.pollOnce()
	if _, got := drainStatus(ch, info.ID, 100*time.Millisecond); got {
		t.Fatal("scan failure produced a status event")
	}

	// The scan recovers with children gone: now the stop is real.
	scanErr = nil
	p.pollOnce()
	ev, got := drainStatus(ch, info.ID, time.Second)
	if !got || ev.Running {
		t.Fatalf("expected running=false after recovery, got %+v (delivered=%v)", ev, got)
	}
}

func TestPollerForgetsRetiredSessions(t *testing.T) {
	p, m, info := newTestPoller(t, func(int) ([]int, error) {
		return []int{4242}, nil
	})

	ch, dispose := m.Hub().Subscribe()
	defer dispose()

	p.pollOnce()
	if _, got := drainStatus(ch, info.ID, time.Second); !got {
		t.Fatal("running transition never delivered")
	}

	m.Kill(info.ID)
	if _, got := waitFor(t, ch, 5*time.Second, func(ev Event) bool {
		return ev.Type == EventExit && ev.SessionID == info.ID
	}); !got {
		t.Fatal("exit event never delivered")
	}

	// The retired id drops out of the scan set entirely.
	p.pollOnce()
	if _, got := drainStatus(ch, info.ID, 100*time.Millisecond); got {
		t.Fatal("retired session produced a status event")
	}

	p.mu.Lock()
	_, tracked := p.running[info.ID]
	p.mu.Unlock()
	if tracked {
		t.Error("retired session still tracked by the poller")
	}
}

func TestPollerTracksSessionsIndependently(t *testing.T) {
	perPid := map[int][]int{}
	p, m, a := newTestPoller(t, func(pid int) ([]int, error) {
		return perPid[pid], nil
	})

	b, err := m.Create("p2", KindServer, t.TempDir())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ch, dispose := m.Hub().Subscribe()
	defer dispose()

	// Only session b has a running child.
	perPid[b.Pid] = []int{9001}
	p.pollOnce()

	ev, got := drainStatus(ch, b.ID, time.Second)
	if !got || !ev.Running {
		t.Fatalf("expected running=true for second session, got %+v (delivered=%v)", ev, got)
	}
	if _, got := drainStatus(ch, a.ID, 100*time.Millisecond); got {
		t.Error("idle session produced a status event")
	}
}

// A kill landing between the poller's pid snapshot and the process scan
// must not produce a status event after the exit event: exit is the final
// event for a session id.
func TestStatusNeverFollowsExit(t *testing.T) {
	m := newTestManager(t)
	info, err := m.Create("p1", KindServer, t.TempDir())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	ch, dispose := m.Hub().Subscribe()

	exited := make(chan struct{})
	var order []EventType
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for ev := range ch {
			if ev.SessionID != info.ID {
				continue
			}
			order = append(order, ev.Type)
			if ev.Type == EventExit {
				close(exited)
			}
		}
	}()

	calls := 0
	p := NewPoller(m, time.Hour, &logging.Logger{Logger: zap.NewNop()}).
		WithSnapshot(func(pid int) ([]int, error) {
			calls++
			if calls == 1 {
				return []int{pid + 1}, nil
			}
			// The session dies after the pid snapshot, before this scan
			// completes.
			m.Kill(info.ID)
			<-exited
			return nil, nil
		})

	p.pollOnce() // running=true
	p.pollOnce() // retired mid-scan; the stop transition must be dropped

	dispose()
	<-collected

	exitAt := -1
	sawStatus := false
	for i, typ := range order {
		if typ == EventExit {
			exitAt = i
		}
		if typ == EventStatus {
			sawStatus = true
		}
	}
	if exitAt == -1 {
		t.Fatalf("exit event never delivered, order: %v", order)
	}
	if !sawStatus {
		t.Fatalf("running transition never delivered, order: %v", order)
	}
	for _, typ := range order[exitAt+1:] {
		t.Errorf("event %q delivered after exit", typ)
	}
}

func TestPollerStopIsIdempotent(t *testing.T) {
	p, _, _ := newTestPoller(t, func(int) ([]int, error) { return nil, nil })
	p.Start()
	p.Stop()
	p.Stop()
}
