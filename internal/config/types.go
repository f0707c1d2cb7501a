package config

import "time"

// CurrentConfigVersion is the schema version for the config file.
// Increment when making breaking changes to the config structure.
const CurrentConfigVersion = 1

// Built-in defaults for settings that the config source, environment and
// flags may all leave unset.
const (
	DefaultMaxParallel = 100
	DefaultPort        = 22
	DefaultLogLevel    = "info"
	DefaultLockScope   = "local"
	DefaultRemoteDir   = "/tmp"
)

// Config is one loaded configuration source: the server inventory plus the
// run settings it carries.
type Config struct {
	Version  int      `yaml:"version" mapstructure:"version"`
	Defaults Defaults `yaml:"defaults" mapstructure:"defaults"`
	Servers  []Server `yaml:"servers" mapstructure:"servers"`
	Settings Settings `yaml:"settings" mapstructure:"settings"`

	// settingsRaw holds only the settings keys the source actually set, so
	// environment and flag layers can be applied on top with correct
	// precedence. See NewSettingsViper.
	settingsRaw map[string]interface{}
}

// Defaults fill per-server connection fields left empty in the inventory.
type Defaults struct {
	User    string        `yaml:"user" mapstructure:"user"`
	Port    int           `yaml:"port" mapstructure:"port"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// Server is one remote host in the inventory.
type Server struct {
	// Name is the canonical identity used by patterns, locks and reports.
	Name string `yaml:"name" mapstructure:"name"`

	// Address is what gets dialed: hostname, IP, or ~/.ssh/config alias.
	// Empty means Name.
	Address string `yaml:"address,omitempty" mapstructure:"address"`

	User    string        `yaml:"user,omitempty" mapstructure:"user"`
	Port    int           `yaml:"port,omitempty" mapstructure:"port"`
	Timeout time.Duration `yaml:"timeout,omitempty" mapstructure:"timeout"`

	// Roles are group labels for --roles targeting.
	Roles []string `yaml:"roles,omitempty" mapstructure:"roles"`
}

// Host returns the address to dial.
func (s *Server) Host() string {
	if s.Address != "" {
		return s.Address
	}
	return s.Name
}

// HasRole reports whether the server carries the given role label.
func (s *Server) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Settings are the run-level knobs a config source can provide.
type Settings struct {
	// LogLevel is the broadcaster's minimum level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level"`

	// Channels are log channel URIs, e.g. "console:" or "file:///var/log/herd.log".
	Channels []string `yaml:"channels" mapstructure:"channels"`

	// MaxParallel bounds concurrently active hosts in parallel mode.
	MaxParallel int `yaml:"max_parallel" mapstructure:"max_parallel"`

	// Parallel selects parallel dispatch when true.
	Parallel bool `yaml:"parallel" mapstructure:"parallel"`

	// Timeout is the per-host budget for connect, lock and execute. Zero
	// means the server's own timeout (or none).
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// FailFast turns any host failure into a run abort.
	FailFast bool `yaml:"fail_fast" mapstructure:"fail_fast"`

	// SudoUser runs task commands as this user via sudo.
	SudoUser string `yaml:"sudo" mapstructure:"sudo"`

	Lock LockConfig `yaml:"lock" mapstructure:"lock"`
}

// LockConfig controls the run locks that keep overlapping invocations apart.
type LockConfig struct {
	// Scope is one of none, local, remote, both.
	Scope string `yaml:"scope" mapstructure:"scope"`

	// Dir is where the local (control-node) lock lives.
	Dir string `yaml:"dir" mapstructure:"dir"`

	// RemoteDir is where per-host locks are created on each server.
	RemoteDir string `yaml:"remote_dir" mapstructure:"remote_dir"`

	// Stale is when to consider a lock abandoned (holder probably crashed).
	// Zero disables takeover.
	Stale time.Duration `yaml:"stale" mapstructure:"stale"`
}

// DefaultConfig returns an empty inventory with built-in settings.
func DefaultConfig() *Config {
	return &Config{
		Version:  CurrentConfigVersion,
		Defaults: Defaults{Port: DefaultPort},
		Settings: DefaultSettings(),
	}
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() Settings {
	return Settings{
		LogLevel:    DefaultLogLevel,
		Channels:    []string{"console:"},
		MaxParallel: DefaultMaxParallel,
		Lock: LockConfig{
			Scope:     DefaultLockScope,
			Dir:       defaultLockDir(),
			RemoteDir: DefaultRemoteDir,
		},
	}
}

// SettingsMap returns the settings keys the source explicitly set.
func (c *Config) SettingsMap() map[string]interface{} {
	if c.settingsRaw == nil {
		return map[string]interface{}{}
	}
	return c.settingsRaw
}

// applyDefaults fills empty per-server fields from Defaults.
func (c *Config) applyDefaults() {
	if c.Defaults.Port == 0 {
		c.Defaults.Port = DefaultPort
	}
	for i := range c.Servers {
		s := &c.Servers[i]
		if s.User == "" {
			s.User = c.Defaults.User
		}
		if s.Port == 0 {
			s.Port = c.Defaults.Port
		}
		if s.Timeout == 0 {
			s.Timeout = c.Defaults.Timeout
		}
	}
}
