// Package config loads the daemon's startup configuration: socket
// placement, socket permission bits, and log level. Layered via viper
// (defaults, then an optional YAML file, then TRIDENT_-prefixed
// environment variables).
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Config is the daemon's startup configuration.
type Config struct {
	// SocketPath is where the control socket is created when the process
	// is not socket-activated.
	SocketPath string `mapstructure:"socketPath"`
	// SocketMode is the permission bits applied to the created socket.
	SocketMode uint32 `mapstructure:"socketMode"`
	// LogLevel is the logrus level name for the daemon's own output.
	LogLevel string `mapstructure:"logLevel"`
	// Datastore is the configured datastore path. It is loaded but not
	// used: the daemon keeps its configuration state in memory only, so
	// that state does not survive a restart.
	Datastore string `mapstructure:"datastore"`
}

const (
	DefaultSocketPath = "/run/trident/trident.sock"
	DefaultSocketMode = 0o660
	DefaultDatastore  = "/var/lib/trident/datastore.yaml"
)

// Load reads the configuration, optionally from a YAML file at path
// (empty path skips the file layer entirely).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetDefault("socketPath", DefaultSocketPath)
	v.SetDefault("socketMode", DefaultSocketMode)
	v.SetDefault("logLevel", "info")
	v.SetDefault("datastore", DefaultDatastore)

	v.SetEnvPrefix("TRIDENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigType("yaml")
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %q", path)
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse configuration")
	}
	return &cfg, nil
}
