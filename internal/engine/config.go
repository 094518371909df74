package engine

import (
	"fmt"

	"github.com/spf13/viper"
)

// Config carries the two knobs the engine exposes: where page files
// live and how many pages the buffer pool keeps resident.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	PoolCapacity int    `mapstructure:"pool_capacity"`
}

const (
	DefaultDataDir      = "data"
	DefaultPoolCapacity = 128
)

// LoadConfig reads a YAML config file. Missing keys fall back to the
// defaults above.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.SetDefault("data_dir", DefaultDataDir)
	v.SetDefault("pool_capacity", DefaultPoolCapacity)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	return &Config{
		DataDir:      DefaultDataDir,
		PoolCapacity: DefaultPoolCapacity,
	}
}
