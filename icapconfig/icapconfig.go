// Package icapconfig loads ICAP server configuration from defaults,
// an optional config file, and the environment, layered with
// github.com/spf13/viper. It is not a command-line interface: flags are
// deliberately out of scope, matching the engine's library-first
// embedding model.
package icapconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/spf13/viper"
)

// Config holds the tunables a Server needs at startup.
type Config struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	MaxConnections int           `mapstructure:"max_connections"`
	OptionsTTL     int           `mapstructure:"options_ttl"`
	PreviewSize    int           `mapstructure:"preview_size"`
	ISTag          string        `mapstructure:"istag"`
}

// defaults mirror RFC 3507's common expectations and the resolved
// Open Question on the service's default listen port.
var defaults = map[string]interface{}{
	"addr":            ":1344",
	"read_timeout":    30 * time.Second,
	"write_timeout":   30 * time.Second,
	"idle_timeout":    2 * time.Minute,
	"max_connections": 0, // 0 means unlimited
	"options_ttl":     3600,
	"preview_size":    0,
	"istag":           "",
}

// Load builds a Config from, in increasing priority: built-in defaults,
// the file at path (if non-empty and present — format inferred from its
// extension), and environment variables prefixed ICAP_ (e.g.
// ICAP_MAX_CONNECTIONS).
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.SetEnvPrefix("icap")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("icapconfig: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("icapconfig: %w", err)
	}
	return &cfg, nil
}
