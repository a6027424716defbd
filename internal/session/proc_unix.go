//go:build !windows

package session

import (
	"os/exec"
	"strconv"
	"strings"
)

// descendants collects the pids below a process by walking pgrep -P
// recursively. pgrep exiting 1 means "no matches", which is a definitive
// empty answer; any other failure means the process table could not be
// queried and the caller must treat the result as unknown.
func descendants(pid int) ([]int, error) {
	children, err := directChildren(pid)
	if err != nil {
		return nil, err
	}

	all := make([]int, 0, len(children))
	for _, child := range children {
		all = append(all, child)
		// A failing scan of a grandchild is fine: the child itself
		// already proves the subtree is alive.
		if grand, err := descendants(child); err == nil {
			all = append(all, grand...)
		}
	}
	return all, nil
}

// directChildren runs pgrep -P for one level of the tree.
func directChildren(pid int) ([]int, error) {
	out, err := exec.Command("pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
			return nil, nil // no children
		}
		return nil, err
	}

	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		child, err := strconv.Atoi(line)
		if err != nil {
			continue
		}
		pids = append(pids, child)
	}
	return pids, nil
}
