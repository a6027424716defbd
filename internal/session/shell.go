package session

import (
	"os"
	"os/exec"
	"os/user"
	"runtime"
)

// defaultShell returns the user's shell for the current OS.
func defaultShell() string {
	switch runtime.GOOS {
	case "windows":
		if ps, err := exec.LookPath("pwsh"); err == nil {
			return ps
		}
		if ps, err := exec.LookPath("powershell"); err == nil {
			return ps
		}
		return "cmd.exe"
	default:
		if shell := os.Getenv("SHELL"); shell != "" {
			return shell
		}
		for _, shell := range []string{"zsh", "bash", "sh"} {
			if path, err := exec.LookPath(shell); err == nil {
				return path
			}
		}
		return "/bin/sh"
	}
}

// shellArgs returns the invocation arguments for the shell. Unix shells are
// started as login shells so user rc files configure PATH and prompts the
// same way a regular terminal app would.
func shellArgs(login bool) []string {
	if runtime.GOOS == "windows" || !login {
		return nil
	}
	return []string{"--login"}
}

// homeDir returns the user's home directory with a tolerant fallback chain.
func homeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil && usr.HomeDir != "" {
		return usr.HomeDir
	}
	return os.TempDir()
}

// resolveWorkingDir validates the requested directory and falls back to the
// user home (then the temp dir) when it is missing or not a directory.
// Session creation never fails because of a bad working directory.
func resolveWorkingDir(requested string) string {
	if requested != "" {
		if info, err := os.Stat(requested); err == nil && info.IsDir() {
			return requested
		}
	}
	home := homeDir()
	if info, err := os.Stat(home); err == nil && info.IsDir() {
		return home
	}
	return os.TempDir()
}
