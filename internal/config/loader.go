package config

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "herd.yaml"
	// EnvPrefix is the prefix for environment overrides (HERD_MAX_PARALLEL, ...).
	EnvPrefix = "HERD"
)

// ErrLoadFailed marks every error a Loader returns, so callers can tell a
// broken source apart from a broken inventory.
var ErrLoadFailed = stderrors.New("configuration load failed")

// Loader reads a configuration source identified by a URI.
type Loader interface {
	Load(ctx context.Context, uri *url.URL) (*Config, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, uri *url.URL) (*Config, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, uri *url.URL) (*Config, error) {
	return f(ctx, uri)
}

// loadFailed wraps err so that errors.Is(err, ErrLoadFailed) holds.
func loadFailed(err error, message, suggestion string) error {
	return errors.WrapWithCode(fmt.Errorf("%w: %w", ErrLoadFailed, err), errors.ErrConfig, message, suggestion)
}

// schemeRe matches a URI scheme prefix. Single letters are excluded so
// Windows drive paths stay paths.
var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]+:`)

// ParseURI turns a --config value into a URI. Bare paths become file URIs.
func ParseURI(raw string) (*url.URL, error) {
	if raw == "" {
		raw = ConfigFileName
	}
	if !schemeRe.MatchString(raw) {
		return &url.URL{Scheme: "file", Path: raw}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Can't parse config location '%s'", raw),
			"Use a file path or a URI like consul://127.0.0.1:8500/herd")
	}
	if u.Scheme == "" {
		u.Scheme = "file"
	}
	return u, nil
}

// FilePath extracts the local path from a file URI. file://relative/x is
// treated as the relative path relative/x.
func FilePath(u *url.URL) string {
	path := u.Path
	if u.Host != "" {
		path = u.Host + path
	}
	if path == "" {
		path = u.Opaque
	}
	return ExpandTilde(path)
}

// FileLoader reads YAML, JSON or TOML files through viper. The format comes
// from the file extension.
type FileLoader struct{}

// Load reads config from the file named by uri.
func (FileLoader) Load(_ context.Context, uri *url.URL) (*Config, error) {
	path := FilePath(uri)

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || stderrors.Is(err, os.ErrNotExist) {
			return nil, loadFailed(err,
				"Config file not found: "+path,
				"Create "+ConfigFileName+" or point --config at your inventory")
		}
		return nil, loadFailed(err,
			"Failed to read config file",
			"Check the file exists and is valid YAML")
	}

	return decodeConfig(v, path)
}

// decodeConfig converts a viper tree into a Config and keeps the raw
// settings map for later layering.
func decodeConfig(v *viper.Viper, source string) (*Config, error) {
	// Unmarshal on top of the defaults so keys missing from the source
	// keep their built-in values.
	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, loadFailed(err,
			"Invalid config format",
			"Check the YAML syntax in "+source)
	}

	if sub := v.Sub("settings"); sub != nil {
		cfg.settingsRaw = sub.AllSettings()
	}
	cfg.Settings.Lock.Dir = Expand(cfg.Settings.Lock.Dir)
	cfg.applyDefaults()

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewSettingsViper layers run settings with viper precedence: values set
// later through BindPFlag beat HERD_* environment variables, which beat the
// config source's settings, which beat built-in defaults.
func NewSettingsViper(cfg *Config) (*viper.Viper, error) {
	v, err := settingsViper(cfg)
	if err != nil {
		return nil, err
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// settingsViper holds the default and config-source layers only.
func settingsViper(cfg *Config) (*viper.Viper, error) {
	v := viper.New()

	d := DefaultSettings()
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("channels", d.Channels)
	v.SetDefault("max_parallel", d.MaxParallel)
	v.SetDefault("parallel", d.Parallel)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("fail_fast", d.FailFast)
	v.SetDefault("sudo", d.SudoUser)
	v.SetDefault("lock.scope", d.Lock.Scope)
	v.SetDefault("lock.dir", d.Lock.Dir)
	v.SetDefault("lock.remote_dir", d.Lock.RemoteDir)
	v.SetDefault("lock.stale", d.Lock.Stale)

	if cfg != nil {
		if err := v.MergeConfigMap(cfg.SettingsMap()); err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrConfig,
				"Invalid settings section",
				"Check the 'settings' block in your config")
		}
	}
	return v, nil
}

// DecodeSettings resolves all layers of v into Settings and validates them.
func DecodeSettings(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.WrapWithCode(err, errors.ErrConfig,
			"Invalid settings",
			"Check settings values in your config, HERD_* variables and flags")
	}
	s.Lock.Dir = Expand(s.Lock.Dir)
	if err := ValidateSettings(s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
