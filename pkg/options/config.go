package options

import (
	"os"
	"time"

	"github.com/core-tools/hsu-rackguard/pkg/errors"
	"github.com/core-tools/hsu-rackguard/pkg/logging"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is looked up in the working directory when no file is given
const DefaultConfigFile = "rackguard.yml"

// Config represents the configuration file structure
type Config struct {
	Rack  Options           `yaml:"rack"`
	Watch WatchConfig       `yaml:"watch"`
	Log   logging.ZapConfig `yaml:"log"`
}

// WatchConfig controls which file changes trigger a reload
type WatchConfig struct {
	Directories []string      `yaml:"directories"`
	Patterns    []string      `yaml:"patterns"` // regexps on slash-separated paths relative to the watched directory
	Ignore      []string      `yaml:"ignore"`
	Latency     time.Duration `yaml:"latency"`
}

func DefaultWatchConfig() WatchConfig {
	return WatchConfig{
		Directories: []string{"."},
		Patterns: []string{
			`^Gemfile\.lock$`,
			`^config\.ru$`,
			`^(config|lib|app)/.*`,
		},
		Ignore: []string{
			`(^|/)\.git/`,
			`^(tmp|log)/`,
			`\.sw[px]$`,
			`~$`,
		},
		Latency: 200 * time.Millisecond,
	}
}

func DefaultConfig() *Config {
	return &Config{
		Rack:  Defaults(),
		Watch: DefaultWatchConfig(),
		Log:   logging.DefaultZapConfig(),
	}
}

// LoadConfigFromFile reads a YAML file on top of DefaultConfig(). Keys that
// are absent from the file keep their default values.
func LoadConfigFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.NewIOError("failed to read configuration file", err).WithContext("filename", filename)
	}

	config, err := ParseConfig(data)
	if err != nil {
		return nil, errors.NewValidationError("failed to parse YAML configuration", err).WithContext("filename", filename)
	}
	return config, nil
}

func ParseConfig(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, err
	}
	return config, nil
}

// LoadConfig loads filename when set, otherwise DefaultConfigFile if it
// exists, otherwise the defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename != "" {
		return LoadConfigFromFile(filename)
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return LoadConfigFromFile(DefaultConfigFile)
	}
	return DefaultConfig(), nil
}
