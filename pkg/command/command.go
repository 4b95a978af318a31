// Package command turns server options into the argument vector used to
// launch the Rack server.
package command

import (
	"strconv"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
	"github.com/core-tools/hsu-rackguard/pkg/options"

	"github.com/kballard/go-shellquote"
)

// Build returns the launch command, program first. Flag order is fixed:
// config, env, host, port, daemonize, debug, server. Values are not
// validated; the server is expected to reject what it cannot use.
func Build(opts options.Options) []string {
	cmd := []string{opts.Cmd, opts.Config}

	cmd = append(cmd, "--env", opts.Environment)
	cmd = append(cmd, "--host", opts.Host)
	cmd = append(cmd, "--port", strconv.Itoa(opts.Port))

	if opts.Daemon {
		cmd = append(cmd, "--daemonize")
	}
	if opts.Debugger {
		cmd = append(cmd, "--debug")
	}
	if opts.Server != "" {
		cmd = append(cmd, "--server", opts.Server)
	}

	return cmd
}

// Argv splits the program element with shell word rules so that a command
// such as "bundle exec rackup" or a quoted path with spaces can be executed
// without a shell. The remaining elements are passed through untouched.
func Argv(cmd []string) ([]string, error) {
	if len(cmd) == 0 {
		return nil, nil
	}
	argv, err := shellquote.Split(cmd[0])
	if err != nil {
		return nil, errors.NewValidationError("invalid command", err).WithContext("cmd", cmd[0])
	}
	return append(argv, cmd[1:]...), nil
}

// String renders cmd as a POSIX shell command line. The program element is
// already shell syntax and is kept as written.
func String(cmd []string) string {
	if len(cmd) == 0 {
		return ""
	}
	if len(cmd) == 1 {
		return cmd[0]
	}
	return cmd[0] + " " + shellquote.Join(cmd[1:]...)
}
