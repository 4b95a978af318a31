// Package plugin exposes the Rack runner through the watcher lifecycle hooks:
// start, reload, stop and run-on-changes. It adds the user-facing log lines
// and notifications around the runner calls.
package plugin

import (
	"context"
	"fmt"

	"github.com/core-tools/hsu-rackguard/pkg/logging"
	"github.com/core-tools/hsu-rackguard/pkg/notify"
	"github.com/core-tools/hsu-rackguard/pkg/options"
)

// Runner is the part of runner.Runner the plugin drives
type Runner interface {
	Restart(ctx context.Context) (bool, error)
	Stop(ctx context.Context) bool
	Pid() (int, bool)
}

type Plugin struct {
	opts     options.Options
	runner   Runner
	notifier notify.Notifier
	logger   logging.Logger
}

func New(opts options.Options, runner Runner, notifier notify.Notifier, logger logging.Logger) *Plugin {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Plugin{
		opts:     opts,
		runner:   runner,
		notifier: notifier,
		logger:   logger,
	}
}

func (p *Plugin) Start(ctx context.Context) {
	server := ""
	if p.opts.Server != "" {
		server = p.opts.Server + " and "
	}
	p.logger.Infof("Guard::Rack will now restart your app on port %d using %s%s environment.", p.opts.Port, server, p.opts.Environment)

	if p.opts.StartOnStart {
		p.Reload(ctx)
	}
}

// Reload restarts the server and reports whether it came back up
func (p *Plugin) Reload(ctx context.Context) bool {
	p.logger.Infof("Restarting Rack...")
	p.notifier.Notify(
		fmt.Sprintf("Rack restarting on port %d in %s environment...", p.opts.Port, p.opts.Environment),
		notify.Options{Title: "Restarting Rack...", Image: notify.ImagePending},
	)

	restarted, err := p.runner.Restart(ctx)
	if err != nil {
		p.logger.Errorf("Failed to restart Rack: %v", err)
	}

	if restarted {
		pid, _ := p.runner.Pid()
		p.logger.Infof("Rack restarted, pid %d", pid)
		p.notifier.Notify(
			fmt.Sprintf("Rack restarted on port %d.", p.opts.Port),
			notify.Options{Title: "Rack restarted!", Image: notify.ImageSuccess},
		)
		return true
	}

	p.logger.Infof("Rack NOT restarted, check your log files.")
	p.notifier.Notify(
		"Rack NOT restarted, check your log files.",
		notify.Options{Title: "Rack NOT restarted!", Image: notify.ImageFailed},
	)
	return false
}

func (p *Plugin) Stop(ctx context.Context) bool {
	p.notifier.Notify("Until next time...", notify.Options{Title: "Rack shutting down.", Image: notify.ImagePending})
	return p.runner.Stop(ctx)
}

// RunOnChanges reloads the server whatever the changed paths are
func (p *Plugin) RunOnChanges(ctx context.Context, paths []string) {
	p.logger.Debugf("Changed: %v", paths)
	p.Reload(ctx)
}
