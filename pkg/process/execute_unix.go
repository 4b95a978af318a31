//go:build !windows

package process

import (
	"os/exec"
)

// setupProcessAttributes leaves the server in the supervisor's process group.
// Stop signals only the server pid, so processes a wrapper command forks
// still get a terminal Ctrl+C together with the supervisor.
func setupProcessAttributes(cmd *exec.Cmd) {
	cmd.SysProcAttr = nil
}
