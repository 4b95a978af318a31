package process

import (
	"context"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/core-tools/hsu-rackguard/pkg/logging"
)

// Terminator ends a process and reports its exit status. A status of 0 means
// a clean exit; UnknownExitStatus means it had to be forced.
type Terminator interface {
	Kill(ctx context.Context, pid int, force bool) int
}

// ForceSignal is what Nix sends when the interrupt is skipped or ignored
var ForceSignal os.Signal = syscall.SIGTERM

// NewTerminator picks the termination strategy for goos once, so callers
// never branch on the platform themselves.
func NewTerminator(goos string, timeout time.Duration, logger logging.Logger) Terminator {
	if goos == "windows" {
		return NewWindows(logger)
	}
	return NewNix(timeout, NewSignaler(), NewWaiter(), logger)
}

// Nix interrupts the process, waits up to Timeout for it to exit, and falls
// back to ForceSignal without waiting again.
type Nix struct {
	Timeout  time.Duration
	signaler Signaler
	waiter   Waiter
	logger   logging.Logger
}

func NewNix(timeout time.Duration, signaler Signaler, waiter Waiter, logger logging.Logger) *Nix {
	return &Nix{
		Timeout:  timeout,
		signaler: signaler,
		waiter:   waiter,
		logger:   logger,
	}
}

func (n *Nix) Kill(ctx context.Context, pid int, force bool) int {
	result := UnknownExitStatus
	n.logger.Debugf("Trying to kill Rack (PID %d)...", pid)

	if !force {
		n.signal(pid, os.Interrupt)

		status, err := n.waiter.Wait(ctx, pid, n.Timeout)
		if err == nil {
			result = status
			n.logger.Debugf("Killed Rack (Exit status: %d)", result)
		} else {
			n.logger.Debugf("Couldn't kill Rack with INT (%v), switching to TERM", err)
			force = true
		}
	}

	if force {
		n.signal(pid, ForceSignal)
	}

	return result
}

func (n *Nix) signal(pid int, sig os.Signal) {
	if err := n.signaler.Signal(pid, sig); err != nil {
		if IsProcessGone(err) {
			n.logger.Debugf("PID %d already gone, %v not delivered", pid, sig)
			return
		}
		n.logger.Debugf("Failed to send %v to PID %d: %v", sig, pid, err)
	}
}

// CommandRunner runs an external command and returns its exit status
type CommandRunner func(ctx context.Context, name string, args ...string) (int, error)

// Windows has a single way to end the server: taskkill on the whole tree.
// The force flag makes no difference.
type Windows struct {
	run    CommandRunner
	logger logging.Logger
}

func NewWindows(logger logging.Logger) *Windows {
	return NewWindowsWithRunner(RunCommand, logger)
}

func NewWindowsWithRunner(run CommandRunner, logger logging.Logger) *Windows {
	return &Windows{
		run:    run,
		logger: logger,
	}
}

func (w *Windows) Kill(ctx context.Context, pid int, _ bool) int {
	result, err := w.run(ctx, "taskkill", "/pid", strconv.Itoa(pid), "/T", "/f")
	if err != nil {
		w.logger.Debugf("Couldn't run taskkill for PID %d: %v", pid, err)
		return UnknownExitStatus
	}
	if result == 0 {
		w.logger.Debugf("Killed Rack (Exit status: %d)", result)
	} else {
		w.logger.Debugf("Couldn't kill Rack")
	}
	return result
}

// RunCommand runs name to completion. A non-zero exit is reported through
// the status, not the error.
func RunCommand(ctx context.Context, name string, args ...string) (int, error) {
	err := exec.CommandContext(ctx, name, args...).Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return UnknownExitStatus, err
}
