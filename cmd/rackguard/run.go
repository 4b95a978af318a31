package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
	"github.com/core-tools/hsu-rackguard/pkg/logging"
	"github.com/core-tools/hsu-rackguard/pkg/notify"
	"github.com/core-tools/hsu-rackguard/pkg/options"
	"github.com/core-tools/hsu-rackguard/pkg/plugin"
	"github.com/core-tools/hsu-rackguard/pkg/runner"
	"github.com/core-tools/hsu-rackguard/pkg/watcher"
)

// Run starts the server, reloads it on file changes and stops it when a
// signal arrives or runDuration elapses.
func Run(runDuration int, config *options.Config, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if runDuration > 0 {
		duration := time.Duration(runDuration) * time.Second
		logger.Infof("Using RUN DURATION of %v", duration)
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	rackRunner := runner.New(config.Rack, runner.Deps{}, logger)
	rackPlugin := plugin.New(config.Rack, rackRunner, notify.NewLogNotifier(logger), logger)

	fileWatcher, err := watcher.New(config.Watch, rackPlugin.RunOnChanges, logger)
	if err != nil {
		return errors.NewInternalError("failed to create file watcher", err)
	}

	logger.Infof("Watching %v", config.Watch.Directories)

	sig := make(chan os.Signal, 1)
	if runtime.GOOS == "windows" {
		signal.Notify(sig, os.Interrupt)
	} else {
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	}
	defer signal.Stop(sig)

	rackPlugin.Start(ctx)

	watchCtx, stopWatching := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- fileWatcher.Run(watchCtx)
	}()

	watching := true
	select {
	case receivedSignal := <-sig:
		logger.Infof("Received signal: %v", receivedSignal)
	case <-ctx.Done():
		logger.Infof("Run duration elapsed")
	case err := <-done:
		watching = false
		if err != nil {
			logger.Errorf("File watcher stopped: %v", err)
		}
	}

	// wait for an in-flight reload to finish before stopping the server
	stopWatching()
	if watching {
		<-done
	}

	// Reset context to background so the graceful stop gets its full budget
	if !rackPlugin.Stop(context.Background()) {
		logger.Warnf("Rack did not stop cleanly")
	}

	logger.Infof("Rackguard stopped")
	return nil
}
