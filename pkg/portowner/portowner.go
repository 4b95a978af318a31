// Package portowner finds the process listening on a TCP port.
//
// The system connection table is read through gopsutil. When that fails the
// lookup falls back to the platform's own tools: the kernel socket tables
// under /proc on Linux, lsof on other Unix systems and netstat on Windows.
package portowner

import (
	"context"
	"os/exec"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// Finder looks up the pid listening on a TCP port
type Finder interface {
	Lookup(ctx context.Context, port int) (pid int, found bool, err error)
}

// New returns the Finder suited to goos
func New(goos string) Finder {
	return NewChain(NewConnFinder(psnet.ConnectionsWithContext), platformFinder(goos))
}

func platformFinder(goos string) Finder {
	switch goos {
	case "linux":
		return NewProcFinder(DefaultProcRoot)
	case "windows":
		return NewNetstatFinder(RunOutput)
	default:
		return NewLsofFinder(RunOutput)
	}
}

// OutputRunner runs a command and returns its standard output
type OutputRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RunOutput runs name and returns its stdout. A non-zero exit is not an
// error when the command printed nothing, which is how lsof reports "no
// match".
func RunOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok && len(out) == 0 {
			return nil, nil
		}
		return out, err
	}
	return out, nil
}
