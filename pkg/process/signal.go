package process

import (
	"context"
	stderrors "errors"
	"os"
	"syscall"
	"time"
)

// ErrWaitTimeout is returned by Waiter when the process outlives the wait budget
var ErrWaitTimeout = stderrors.New("timed out waiting for process exit")

// UnknownExitStatus is reported when a process was signalled but its exit
// status could not be collected.
const UnknownExitStatus = -1

// Signaler delivers a signal to a pid
type Signaler interface {
	Signal(pid int, sig os.Signal) error
}

// Waiter blocks until pid exits or timeout elapses
type Waiter interface {
	Wait(ctx context.Context, pid int, timeout time.Duration) (int, error)
}

type osSignaler struct{}

func NewSignaler() Signaler {
	return osSignaler{}
}

func (osSignaler) Signal(pid int, sig os.Signal) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	defer proc.Release()
	return proc.Signal(sig)
}

type osWaiter struct{}

func NewWaiter() Waiter {
	return osWaiter{}
}

type waitResult struct {
	status int
	err    error
}

// Wait reaps pid, which must be a child of this process. When the wait is
// abandoned the reaping goroutine keeps running until the child exits.
func (osWaiter) Wait(ctx context.Context, pid int, timeout time.Duration) (int, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return UnknownExitStatus, err
	}

	done := make(chan waitResult, 1)
	go func() {
		state, err := proc.Wait()
		if err != nil {
			done <- waitResult{status: UnknownExitStatus, err: err}
			return
		}
		done <- waitResult{status: state.ExitCode()}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.status, r.err
	case <-timer.C:
		return UnknownExitStatus, ErrWaitTimeout
	case <-ctx.Done():
		return UnknownExitStatus, ctx.Err()
	}
}

// IsProcessGone reports whether err means the target pid no longer exists
func IsProcessGone(err error) bool {
	return stderrors.Is(err, os.ErrProcessDone) || stderrors.Is(err, syscall.ESRCH)
}
