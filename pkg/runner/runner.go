// Package runner supervises a single Rack server process: it starts it,
// stops it with a bounded graceful wait and restarts it on demand.
package runner

import (
	"context"
	"runtime"
	"sync"

	"github.com/core-tools/hsu-rackguard/pkg/command"
	"github.com/core-tools/hsu-rackguard/pkg/errors"
	"github.com/core-tools/hsu-rackguard/pkg/logging"
	"github.com/core-tools/hsu-rackguard/pkg/options"
	"github.com/core-tools/hsu-rackguard/pkg/portowner"
	"github.com/core-tools/hsu-rackguard/pkg/process"
)

// Deps are the collaborators a Runner drives. Nil fields get the platform
// defaults.
type Deps struct {
	Launcher   process.Launcher
	Terminator process.Terminator
	Finder     portowner.Finder
}

type Runner struct {
	opts   options.Options
	deps   Deps
	logger logging.Logger

	pid   int
	mutex sync.Mutex
}

func New(opts options.Options, deps Deps, logger logging.Logger) *Runner {
	if deps.Launcher == nil {
		deps.Launcher = process.NewStdLauncher(process.LaunchConfig{}, logger)
	}
	if deps.Terminator == nil {
		deps.Terminator = process.NewTerminator(runtime.GOOS, opts.TimeoutDuration(), logger)
	}
	if deps.Finder == nil {
		deps.Finder = portowner.New(runtime.GOOS)
	}

	return &Runner{
		opts:   opts,
		deps:   deps,
		logger: logger,
	}
}

// Pid returns the managed pid, if any
func (r *Runner) Pid() (int, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.pid, r.pid != 0
}

// Start launches the server. It reports true once the process is spawned;
// a spawn failure is returned as an error and leaves no pid behind.
func (r *Runner) Start(ctx context.Context) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.startInternal(ctx)
}

// Stop terminates the managed server. It reports true when nothing was
// running or the server exited with status 0.
func (r *Runner) Stop(ctx context.Context) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	return r.stopInternal(ctx)
}

// Restart stops the server and starts it again. A failed stop skips the
// start and reports false.
func (r *Runner) Restart(ctx context.Context) (bool, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if !r.stopInternal(ctx) {
		return false, nil
	}
	return r.startInternal(ctx)
}

func (r *Runner) startInternal(ctx context.Context) (bool, error) {
	if r.opts.ForceRun {
		r.evictPortOwner(ctx)
	}

	cmd := command.Build(r.opts)
	r.logger.Debugf("Running Rack with command: %s", command.String(cmd))

	argv, err := command.Argv(cmd)
	if err != nil {
		return false, err
	}

	pid, err := r.deps.Launcher.Launch(argv)
	if err != nil {
		return false, errors.NewProcessError("failed to launch rack server", err).WithContext("port", r.opts.Port)
	}

	r.pid = pid
	return true, nil
}

func (r *Runner) stopInternal(ctx context.Context) bool {
	if r.pid == 0 {
		return true
	}

	status := r.deps.Terminator.Kill(ctx, r.pid, false)
	r.pid = 0

	if status == 0 {
		return true
	}

	r.logger.Infof("Rackup exited with non-zero exit status whilst trying to stop.")
	return false
}

func (r *Runner) evictPortOwner(ctx context.Context) {
	pid, found, err := r.deps.Finder.Lookup(ctx, r.opts.Port)
	if err != nil {
		r.logger.Warnf("Couldn't look up the process on port %d: %v", r.opts.Port, err)
		return
	}
	if !found {
		return
	}

	r.logger.Infof("Killing process %d listening on port %d", pid, r.opts.Port)
	r.deps.Terminator.Kill(ctx, pid, true)
}
