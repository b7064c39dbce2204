// Package config loads client-side tunables that are independent of the
// values the daemon negotiates at handshake time (max_packet_size always
// wins for attachment chunking regardless of what this package holds).
// Viper-backed: YAML on disk, environment override, sane defaults if
// nothing is found.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds client-side tunables.
type Config struct {
	Dial struct {
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"dial"`

	Transport struct {
		SendQueueDepth int `mapstructure:"send_queue_depth"`
	} `mapstructure:"transport"`

	Cache struct {
		RegistrySize int `mapstructure:"registry_size"`
		ColumnsSize  int `mapstructure:"columns_size"`
	} `mapstructure:"cache"`

	FolderModel struct {
		BatchInterval time.Duration `mapstructure:"batch_interval"`
	} `mapstructure:"folder_model"`
}

// Default returns the built-in tunables used when no config file or
// environment override is present.
func Default() Config {
	var c Config
	c.Dial.Timeout = 10 * time.Second
	c.Transport.SendQueueDepth = 128
	c.Cache.RegistrySize = 512
	c.Cache.ColumnsSize = 2048
	c.FolderModel.BatchInterval = 100 * time.Millisecond
	return c
}

// Load reads configuration from path (if non-empty) and the PEERDRIVE_*
// environment namespace, falling back to Default for anything unset.
func Load(path string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetEnvPrefix("PEERDRIVE")
	v.AutomaticEnv()
	v.SetDefault("dial.timeout", cfg.Dial.Timeout)
	v.SetDefault("transport.send_queue_depth", cfg.Transport.SendQueueDepth)
	v.SetDefault("cache.registry_size", cfg.Cache.RegistrySize)
	v.SetDefault("cache.columns_size", cfg.Cache.ColumnsSize)
	v.SetDefault("folder_model.batch_interval", cfg.FolderModel.BatchInterval)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}
