package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the createtest configuration
type Config struct {
	Machine MachineConfig `mapstructure:"machine"`
	Paths   PathsConfig   `mapstructure:"paths"`
}

// MachineConfig contains machine metadata normally discovered from the
// machines database
type MachineConfig struct {
	MaxTasksPerNode int    `mapstructure:"max_tasks_per_node"`
	ScratchRoot     string `mapstructure:"scratch_root"`
}

// PathsConfig contains the locations of the CIME tree and the helper scripts
type PathsConfig struct {
	CIMERoot    string `mapstructure:"cime_root"`
	ScriptsRoot string `mapstructure:"scripts_root"`
}

// Load reads the config from path, falling back to defaults when the file
// does not exist. An empty path means the default location.
func Load(path string) (*Config, error) {
	if path == "" {
		path = filepath.Join(".createtest", "config.yaml")
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Machine: MachineConfig{
			MaxTasksPerNode: 8,
			ScratchRoot:     os.TempDir(),
		},
		Paths: PathsConfig{
			CIMERoot:    "cime",
			ScriptsRoot: filepath.Join("cime", "scripts"),
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Machine.MaxTasksPerNode == 0 {
		cfg.Machine.MaxTasksPerNode = defaults.Machine.MaxTasksPerNode
	}
	if cfg.Machine.ScratchRoot == "" {
		cfg.Machine.ScratchRoot = defaults.Machine.ScratchRoot
	}
	if cfg.Paths.CIMERoot == "" {
		cfg.Paths.CIMERoot = defaults.Paths.CIMERoot
	}
	if cfg.Paths.ScriptsRoot == "" {
		cfg.Paths.ScriptsRoot = defaults.Paths.ScriptsRoot
	}
}
