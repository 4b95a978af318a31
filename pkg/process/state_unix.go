//go:build !windows

package process

import (
	"fmt"
	"os"
	"syscall"
)

// IsRunning probes pid with signal 0. A zombie that has not been reaped yet
// still counts as running. EPERM means the pid exists under another user.
func IsRunning(pid int) (bool, error) {
	if pid <= 0 {
		return false, fmt.Errorf("invalid PID: %d", pid)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return false, err
	}
	defer proc.Release()

	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true, nil
	case IsProcessGone(err):
		return false, nil
	case err == syscall.EPERM:
		return true, nil
	}
	return false, err
}
