// Package notify delivers user-facing attention signals: desktop
// notifications, an audible attention cue, and opening URLs in the default
// browser. Everything is best-effort; a missing notification daemon must
// never break a session.
package notify

import (
	"errors"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

const (
	bounceCount    = 3
	bounceInterval = time.Second
)

var errUnsafeURL = errors.New("refusing to open url")

// Notifier sends desktop notifications and attention cues.
type Notifier struct {
	logger *logging.Logger
}

// New creates a notifier.
func New(logger *logging.Logger) *Notifier {
	return &Notifier{logger: logger.Named("notify")}
}

// Notify shows a desktop notification.
func (n *Notifier) Notify(title, body string) {
	if err := beeep.Notify(title, body, ""); err != nil {
		n.logger.Debug("Notification failed", zap.Error(err))
	}
}

// Bounce plays the attention cue: three beeps a second apart, mirroring a
// dock bounce. True dock bouncing belongs to the desktop shell hosting the
// UI; the backend can only make noise.
func (n *Notifier) Bounce() {
	go func() {
		for i := 0; i < bounceCount; i++ {
			if i > 0 {
				time.Sleep(bounceInterval)
			}
			if err := beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration); err != nil {
				n.logger.Debug("Attention beep failed", zap.Error(err))
				return
			}
		}
	}()
}

// OpenExternal opens a http(s) or mailto URL with the platform handler.
// Anything else is refused; the UI passes user-controlled strings here.
func (n *Notifier) OpenExternal(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return errUnsafeURL
	}
	switch u.Scheme {
	case "http", "https", "mailto":
	default:
		return errUnsafeURL
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}

	if err := cmd.Start(); err != nil {
		n.logger.Debug("Failed to open url", zap.String("url", rawURL), zap.Error(err))
		return err
	}
	// Reap in the background; the handler's exit status is not our problem.
	go cmd.Wait()
	return nil
}
