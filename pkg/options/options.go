package options

import "time"

const (
	DefaultCmd         = "rackup"
	DefaultRackupFile  = "config.ru"
	DefaultEnvironment = "development"
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 9292
	DefaultTimeout     = 20
)

// Options configures the supervised Rack server. It is treated as read-only
// once handed to a runner.
type Options struct {
	Cmd          string `yaml:"cmd"`
	Config       string `yaml:"config"`
	Environment  string `yaml:"environment"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	Server       string `yaml:"server,omitempty"` // empty means no --server flag
	Daemon       bool   `yaml:"daemon,omitempty"`
	Debugger     bool   `yaml:"debugger"`
	ForceRun     bool   `yaml:"force_run"`
	Timeout      int    `yaml:"timeout"` // seconds
	StartOnStart bool   `yaml:"start_on_start"`
}

// Defaults returns the built-in option values
func Defaults() Options {
	return Options{
		Cmd:          DefaultCmd,
		Config:       DefaultRackupFile,
		Environment:  DefaultEnvironment,
		Host:         DefaultHost,
		Port:         DefaultPort,
		Timeout:      DefaultTimeout,
		StartOnStart: true,
	}
}

// WithDefaults overlays the set fields of overrides onto Defaults()
func WithDefaults(overrides Overrides) Options {
	return overrides.Apply(Defaults())
}

// TimeoutDuration is the graceful shutdown budget
func (o Options) TimeoutDuration() time.Duration {
	return time.Duration(o.Timeout) * time.Second
}

// Overrides holds optionally-set option values. Nil fields leave the
// underlying value untouched. The tags double as command line flags.
type Overrides struct {
	Cmd          *string `long:"cmd" description:"command used to launch the server"`
	Config       *string `long:"rack-config" description:"rackup config file"`
	Environment  *string `short:"e" long:"env" description:"server environment"`
	Host         *string `long:"host" description:"bind address"`
	Port         *int    `short:"p" long:"port" description:"bind port"`
	Server       *string `short:"s" long:"server" description:"server adapter (thin, puma, webrick...)"`
	Daemon       *bool   `long:"daemon" description:"pass --daemonize to the server"`
	Debugger     *bool   `long:"debugger" description:"pass --debug to the server"`
	ForceRun     *bool   `long:"force-run" description:"kill whatever listens on the port before starting"`
	Timeout      *int    `long:"timeout" description:"seconds to wait for a graceful stop"`
	StartOnStart *bool   `long:"start-on-start" description:"start the server as soon as the watcher starts"`

	// wins over StartOnStart when both are given
	NoStartOnStart *bool `long:"no-start-on-start" description:"wait for the first file change before starting the server"`
}

// Apply returns base with every set override applied
func (ov Overrides) Apply(base Options) Options {
	if ov.Cmd != nil {
		base.Cmd = *ov.Cmd
	}
	if ov.Config != nil {
		base.Config = *ov.Config
	}
	if ov.Environment != nil {
		base.Environment = *ov.Environment
	}
	if ov.Host != nil {
		base.Host = *ov.Host
	}
	if ov.Port != nil {
		base.Port = *ov.Port
	}
	if ov.Server != nil {
		base.Server = *ov.Server
	}
	if ov.Daemon != nil {
		base.Daemon = *ov.Daemon
	}
	if ov.Debugger != nil {
		base.Debugger = *ov.Debugger
	}
	if ov.ForceRun != nil {
		base.ForceRun = *ov.ForceRun
	}
	if ov.Timeout != nil {
		base.Timeout = *ov.Timeout
	}
	if ov.StartOnStart != nil {
		base.StartOnStart = *ov.StartOnStart
	}
	if ov.NoStartOnStart != nil && *ov.NoStartOnStart {
		base.StartOnStart = false
	}
	return base
}
