package main

import (
	"fmt"
	"os"

	"github.com/core-tools/hsu-rackguard/pkg/logging"
	"github.com/core-tools/hsu-rackguard/pkg/options"

	flags "github.com/jessevdk/go-flags"
)

type flagOptions struct {
	Config      string   `short:"c" long:"config" description:"path to the YAML configuration file (default: rackguard.yml if present)"`
	Watch       []string `short:"w" long:"watch" description:"directory to watch, may be repeated"`
	LogLevel    string   `long:"log-level" description:"log level: debug, info, warn or error"`
	RunDuration int      `long:"run-duration" description:"stop after this many seconds, 0 runs until interrupted"`

	Rack options.Overrides `group:"Rack Options"`
}

func logPrefix(module string) string {
	return fmt.Sprintf("module: %s , ", module)
}

func main() {
	var opts flagOptions
	var argv []string = os.Args[1:]
	var parser = flags.NewParser(&opts, flags.HelpFlag)
	var err error
	_, err = parser.ParseArgs(argv)
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Printf("Command line flags parsing failed: %v\n", err)
		os.Exit(1)
	}

	config, err := loadConfig(opts)
	if err != nil {
		fmt.Printf("Configuration failed: %v\n", err)
		os.Exit(1)
	}

	zapLogger, err := logging.NewZapLogger(config.Log)
	if err != nil {
		fmt.Printf("Logger setup failed: %v\n", err)
		os.Exit(1)
	}
	defer zapLogger.Sync()

	logger := logging.NewLogger(logPrefix("rackguard"), zapLogger.Funcs())

	logger.Debugf("opts: %+v", opts)

	if err := Run(opts.RunDuration, config, logger); err != nil {
		logger.Errorf("Rackguard failed: %v", err)
		zapLogger.Sync()
		os.Exit(1)
	}
}

// loadConfig reads the configuration file and applies the command line on top
func loadConfig(opts flagOptions) (*options.Config, error) {
	config, err := options.LoadConfig(opts.Config)
	if err != nil {
		return nil, err
	}

	config.Rack = opts.Rack.Apply(config.Rack)
	if len(opts.Watch) > 0 {
		config.Watch.Directories = opts.Watch
	}
	if opts.LogLevel != "" {
		config.Log.Level = opts.LogLevel
	}

	if err := options.ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}
