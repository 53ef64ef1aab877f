package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults mirror the agent backend's development setup.
const (
	DefaultHost           = "127.0.0.1"
	DefaultPort           = 8765
	DefaultPath           = "/ws"
	DefaultReconnectBase  = 1 * time.Second
	DefaultReconnectMax   = 30 * time.Second
	DefaultCallTimeout    = 15 * time.Second
	DefaultInspectPort    = 8766
	DefaultCommandTimeout = 60 * time.Second
)

// Config holds everything the session client needs to run.
type Config struct {
	// Agent endpoint.
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Path string `mapstructure:"path"`

	// Transport reconnect policy.
	ReconnectBase time.Duration `mapstructure:"reconnect_base"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max"`

	// Capability bridge.
	CallTimeout time.Duration `mapstructure:"call_timeout"`

	// Local capability executor.
	WorkspaceRoot  string        `mapstructure:"workspace_root"`
	CommandTimeout time.Duration `mapstructure:"command_timeout"`

	// Inspection server; disabled unless InspectEnabled is set.
	InspectEnabled bool `mapstructure:"inspect_enabled"`
	InspectPort    int  `mapstructure:"inspect_port"`

	LogLevel string `mapstructure:"log_level"`
}

// WithDefaults returns a copy with zero values replaced by defaults.
func (c Config) WithDefaults() Config {
	out := c
	out.Host = strings.TrimSpace(out.Host)
	out.Path = strings.TrimSpace(out.Path)
	if out.Host == "" {
		out.Host = DefaultHost
	}
	if out.Port <= 0 {
		out.Port = DefaultPort
	}
	if out.Path == "" {
		out.Path = DefaultPath
	}
	if !strings.HasPrefix(out.Path, "/") {
		out.Path = "/" + out.Path
	}
	if out.ReconnectBase <= 0 {
		out.ReconnectBase = DefaultReconnectBase
	}
	if out.ReconnectMax <= 0 {
		out.ReconnectMax = DefaultReconnectMax
	}
	if out.ReconnectMax < out.ReconnectBase {
		out.ReconnectMax = out.ReconnectBase
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = DefaultCallTimeout
	}
	if out.CommandTimeout <= 0 {
		out.CommandTimeout = DefaultCommandTimeout
	}
	if out.WorkspaceRoot == "" {
		out.WorkspaceRoot = "."
	}
	if out.InspectPort <= 0 {
		out.InspectPort = DefaultInspectPort
	}
	if out.LogLevel == "" {
		out.LogLevel = "info"
	}
	return out
}

// Endpoint returns the ws:// URL of the agent process.
func (c Config) Endpoint() string {
	return fmt.Sprintf("ws://%s:%d%s", c.Host, c.Port, c.Path)
}

// Load reads configuration in layers: defaults, then an optional
// voco-config file ($HOME or cwd), then VOCO_* environment variables.
// Flag overrides are bound by the cmd package before calling Load.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.GetViper()
	}

	v.SetConfigName("voco-config")
	v.AddConfigPath("$HOME")
	v.AddConfigPath(".")
	v.SetEnvPrefix("VOCO")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; a broken one is not.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg.WithDefaults(), nil
}
