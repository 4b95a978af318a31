package process

import (
	"os"
	"os/exec"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
	"github.com/core-tools/hsu-rackguard/pkg/logging"
)

// Launcher spawns a command and returns its pid without waiting for it
type Launcher interface {
	Launch(argv []string) (int, error)
}

type LaunchConfig struct {
	WorkingDirectory string   `yaml:"working_directory,omitempty"`
	Environment      []string `yaml:"environment,omitempty"`

	// Server output goes straight to these files; nil means the
	// supervisor's own stdout/stderr.
	Stdout *os.File `yaml:"-"`
	Stderr *os.File `yaml:"-"`
}

// StdLauncher spawns the server as a child process without waiting for it
type StdLauncher struct {
	config LaunchConfig
	logger logging.Logger
}

func NewStdLauncher(config LaunchConfig, logger logging.Logger) *StdLauncher {
	if config.Stdout == nil {
		config.Stdout = os.Stdout
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	return &StdLauncher{
		config: config,
		logger: logger,
	}
}

// Launch starts argv and returns the child's pid as soon as it is running.
// The child is not reaped here; Waiter does that when it is stopped.
func (l *StdLauncher) Launch(argv []string) (int, error) {
	if len(argv) == 0 || argv[0] == "" {
		return 0, errors.NewValidationError("empty command", nil)
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = l.config.WorkingDirectory
	cmd.Env = append(os.Environ(), l.config.Environment...)
	cmd.Stdin = nil
	cmd.Stdout = l.config.Stdout
	cmd.Stderr = l.config.Stderr

	setupProcessAttributes(cmd)

	l.logger.Debugf("Executing process: args: %v, working directory: '%s'", argv, cmd.Dir)

	if err := cmd.Start(); err != nil {
		return 0, errors.NewProcessError("failed to start the process", err).WithContext("executable", argv[0])
	}

	pid := cmd.Process.Pid

	// Drop our handle; the pid is reopened when it is time to wait on it.
	_ = cmd.Process.Release()

	l.logger.Infof("Successfully executed process, PID: %d", pid)

	return pid, nil
}
