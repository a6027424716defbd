// Package dialog shows native folder pickers on behalf of UI surfaces that
// have no window of their own. Cancel and failure are indistinguishable to
// callers: both mean "no folder chosen".
package dialog

import (
	"context"
	"os/exec"
	"runtime"
	"strings"

	"go.uber.org/zap"

	"github.com/vterm/vterm/backend/internal/infrastructure/logging"
)

// pickerCommand builds the platform folder picker invocation; overridable
// in tests.
var pickerCommand = func(ctx context.Context) *exec.Cmd {
	switch runtime.GOOS {
	case "darwin":
		return exec.CommandContext(ctx, "osascript", "-e",
			`POSIX path of (choose folder with prompt "Select a project folder")`)
	case "windows":
		return exec.CommandContext(ctx, "powershell", "-NoProfile", "-Command",
			`Add-Type -AssemblyName System.Windows.Forms; `+
				`$d = New-Object System.Windows.Forms.FolderBrowserDialog; `+
				`if ($d.ShowDialog() -eq 'OK') { $d.SelectedPath }`)
	default:
		return exec.CommandContext(ctx, "zenity", "--file-selection", "--directory")
	}
}

// Dialog shows native pickers.
type Dialog struct {
	logger *logging.Logger
}

// New creates a dialog provider.
func New(logger *logging.Logger) *Dialog {
	return &Dialog{logger: logger.Named("dialog")}
}

// SelectFolder opens the native folder picker and returns the chosen path.
// Cancel, a missing picker binary and any other failure all report no
// selection.
func (d *Dialog) SelectFolder(ctx context.Context) (string, bool) {
	out, err := pickerCommand(ctx).Output()
	if err != nil {
		// Cancel surfaces as a non-zero exit; nothing to report.
		d.logger.Debug("Folder picker yielded nothing", zap.Error(err))
		return "", false
	}

	path := strings.TrimSpace(string(out))
	if path == "" {
		return "", false
	}
	return path, true
}
