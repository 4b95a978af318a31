package options

import (
	"fmt"
	"regexp"

	"github.com/core-tools/hsu-rackguard/pkg/errors"

	"go.uber.org/zap/zapcore"
)

// ValidateConfig checks the watch and log sections. The rack section is
// passed to the server verbatim and is intentionally left unchecked.
func ValidateConfig(config *Config) error {
	if config == nil {
		return errors.NewValidationError("configuration cannot be nil", nil)
	}

	if err := ValidateWatchConfig(config.Watch); err != nil {
		return errors.NewValidationError("invalid watch configuration", err)
	}

	if config.Log.Level != "" {
		if _, err := zapcore.ParseLevel(config.Log.Level); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid log level: %s", config.Log.Level),
				err,
			).WithContext("valid_levels", "debug, info, warn, error")
		}
	}

	switch config.Log.Format {
	case "", "json", "console":
	default:
		return errors.NewValidationError(
			fmt.Sprintf("invalid log format: %s", config.Log.Format),
			nil,
		).WithContext("valid_formats", "json, console")
	}

	return nil
}

func ValidateWatchConfig(watch WatchConfig) error {
	if len(watch.Directories) == 0 {
		return errors.NewValidationError("at least one directory must be watched", nil)
	}
	for i, dir := range watch.Directories {
		if dir == "" {
			return errors.NewValidationError(fmt.Sprintf("empty directory at index %d", i), nil)
		}
	}

	if err := validatePatterns("pattern", watch.Patterns); err != nil {
		return err
	}
	if err := validatePatterns("ignore pattern", watch.Ignore); err != nil {
		return err
	}

	if watch.Latency < 0 {
		return errors.NewValidationError("latency cannot be negative", nil)
	}

	return nil
}

func validatePatterns(kind string, patterns []string) error {
	for i, pattern := range patterns {
		if _, err := regexp.Compile(pattern); err != nil {
			return errors.NewValidationError(
				fmt.Sprintf("invalid %s at index %d", kind, i),
				err,
			).WithContext("pattern", pattern)
		}
	}
	return nil
}
