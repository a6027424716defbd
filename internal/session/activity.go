package session

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// escState tracks escape-sequence parsing across input chunk boundaries.
// Key input (arrow keys, bracketed paste and focus markers) arrives as
// escape sequences that the UI forwards verbatim and that may be split
// anywhere, including immediately after the ESC byte.
type escState int

const (
	escNone escState = iota
	// escStart: saw ESC, discriminator byte not yet seen.
	escStart
	// escCSI: inside ESC [ ..., consumed through the final byte.
	escCSI
	// escOSC: inside ESC ] ..., consumed through BEL or ST.
	escOSC
)

// Tracker derives the "CLI is busy" signal for a main session.
//
// A shell gives its controlling process no portable completion signal, so
// busyness is approximated from output timing: the signal arms when the user
// submits a non-empty command line and disarms once output has been silent
// for longer than the idle threshold. A long-running command that prints
// nothing in between reads as idle; that imprecision is accepted.
type Tracker struct {
	threshold time.Duration
	tick      time.Duration

	onBusy   func(busy bool)
	onSubmit func(line string)

	mu           sync.Mutex
	line         []rune
	partial      []byte // incomplete utf8 tail of the previous chunk
	esc          escState
	oscEsc       bool // saw ESC inside an OSC sequence (possible ST)
	busy         bool
	lastActivity time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// NewTracker creates a tracker. onBusy fires on every busy transition,
// onSubmit on every submitted non-empty command line; either may be nil.
func NewTracker(threshold, tick time.Duration, onBusy func(bool), onSubmit func(string)) *Tracker {
	return &Tracker{
		threshold: threshold,
		tick:      tick,
		onBusy:    onBusy,
		onSubmit:  onSubmit,
		stop:      make(chan struct{}),
	}
}

// Start launches the idle ticker. Stop must be called on session teardown.
func (t *Tracker) Start() {
	go func() {
		ticker := time.NewTicker(t.tick)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case now := <-ticker.C:
				t.checkIdle(now)
			}
		}
	}()
}

// Stop tears the ticker down. Safe to call more than once.
func (t *Tracker) Stop() {
	t.stopOnce.Do(func() { close(t.stop) })
}

// Busy reports the current busy signal.
func (t *Tracker) Busy() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.busy
}

// TouchOutput records output activity for the session. Only meaningful
// while the signal is armed; a fresh prompt printing on session start must
// not arm it.
func (t *Tracker) TouchOutput() {
	t.mu.Lock()
	if t.busy {
		t.lastActivity = time.Now()
	}
	t.mu.Unlock()
}

// HandleInput feeds user keystrokes into the line buffer. The buffer exists
// solely to detect command submission; it is not an input editor. Escape
// sequences are skipped without corrupting the buffer even when split
// across chunks, and multi-byte text is handled rune-wise so a deletion
// marker following composed input removes one character, not one byte.
func (t *Tracker) HandleInput(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := 0; i < len(data); i++ {
		b := data[i]

		switch t.esc {
		case escStart:
			switch b {
			case '[':
				t.esc = escCSI
			case ']':
				t.esc = escOSC
			default:
				// Two-byte sequence (ESC O A style counts its final
				// byte next round as CSI would; ESC x consumes x).
				if b == 'O' {
					t.esc = escCSI
				} else {
					t.esc = escNone
				}
			}
			continue
		case escCSI:
			// CSI terminates on a final byte in 0x40..0x7E.
			if b >= 0x40 && b <= 0x7e {
				t.esc = escNone
			}
			continue
		case escOSC:
			// OSC terminates on BEL or ST (ESC \), which may itself be
			// split across chunks.
			if b == 0x1b {
				t.oscEsc = true
				continue
			}
			if b == 0x07 || (t.oscEsc && b == '\\') {
				t.esc = escNone
			}
			t.oscEsc = false
			continue
		}

		switch {
		case b == 0x1b:
			t.esc = escStart
			t.partial = t.partial[:0]
		case b == '\r' || b == '\n':
			t.submitLocked()
		case b == 0x7f || b == '\b':
			if n := len(t.line); n > 0 {
				t.line = t.line[:n-1]
			}
			t.partial = t.partial[:0]
		case b == 0x03 || b == 0x04:
			// Interrupt/EOF abandon the line without submission.
			t.line = t.line[:0]
			t.partial = t.partial[:0]
		case b < 0x20:
			// Other control bytes are not line content.
		default:
			t.partial = append(t.partial, b)
			for len(t.partial) > 0 && utf8.FullRune(t.partial) {
				r, size := utf8.DecodeRune(t.partial)
				t.partial = t.partial[size:]
				if r != utf8.RuneError || size > 1 {
					t.line = append(t.line, r)
				}
			}
		}
	}
}

// submitLocked handles a completed input line. Caller holds t.mu.
func (t *Tracker) submitLocked() {
	line := strings.TrimSpace(string(t.line))
	t.line = t.line[:0]
	t.partial = t.partial[:0]

	if line == "" {
		return
	}

	if t.onSubmit != nil {
		t.onSubmit(line)
	}

	t.lastActivity = time.Now()
	if !t.busy {
		t.busy = true
		if t.onBusy != nil {
			t.onBusy(true)
		}
	}
}

// checkIdle drops the busy signal once output has been silent past the
// threshold. The transition fires exactly once per armed period.
func (t *Tracker) checkIdle(now time.Time) {
	t.mu.Lock()
	shouldNotify := t.busy && now.Sub(t.lastActivity) > t.threshold
	if shouldNotify {
		t.busy = false
	}
	t.mu.Unlock()

	if shouldNotify && t.onBusy != nil {
		t.onBusy(false)
	}
}

// lineSnapshot exposes the accumulated buffer for tests.
func (t *Tracker) lineSnapshot() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.line)
}
