package config

import (
	"fmt"
	"strings"

	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/logger"
)

// LockScopes lists the accepted lock.scope values.
var LockScopes = []string{"none", "local", "remote", "both"}

// patternChars can't appear in server names or roles because the target
// pattern language gives them meaning.
const patternChars = "[],"

// Validate checks the loaded inventory and its settings.
func Validate(cfg *Config) error {
	if cfg.Version > CurrentConfigVersion {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("This config is from the future (version %d, but herd only knows up to %d)", cfg.Version, CurrentConfigVersion),
			"Upgrade herd, or lower the version field if the file doesn't use newer features.")
	}

	if err := validatePort("defaults.port", cfg.Defaults.Port); err != nil {
		return err
	}
	if cfg.Defaults.Timeout < 0 {
		return errors.New(errors.ErrConfig,
			"defaults.timeout can't be negative",
			"Use a duration like 30s, or leave it out for no timeout.")
	}

	seen := make(map[string]bool, len(cfg.Servers))
	for i, s := range cfg.Servers {
		if err := validateServer(i, s); err != nil {
			return err
		}
		if seen[s.Name] {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server '%s' is defined more than once", s.Name),
				"Server names must be unique. Rename or remove the duplicate.")
		}
		seen[s.Name] = true
	}

	return ValidateSettings(cfg.Settings)
}

func validateServer(i int, s Server) error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Server #%d has no name", i+1),
			"Every server needs a name, e.g. name: web1")
	}
	if strings.ContainsAny(s.Name, patternChars) || strings.ContainsAny(s.Name, " \t") {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Server name '%s' contains reserved characters", s.Name),
			"Names can't contain spaces, commas or square brackets; those are pattern syntax.")
	}
	for _, r := range s.Roles {
		if r == "" || strings.ContainsAny(r, patternChars) || strings.ContainsAny(r, " \t") {
			return errors.New(errors.ErrConfig,
				fmt.Sprintf("Server '%s' has an invalid role '%s'", s.Name, r),
				"Roles can't be empty or contain spaces, commas or square brackets.")
		}
	}
	if err := validatePort(fmt.Sprintf("servers[%s].port", s.Name), s.Port); err != nil {
		return err
	}
	if s.Timeout < 0 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Server '%s' has a negative timeout", s.Name),
			"Use a duration like 30s, or leave it out.")
	}
	return nil
}

func validatePort(field string, port int) error {
	if port < 0 || port > 65535 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("%s is out of range: %d", field, port),
			"Ports must be between 1 and 65535 (0 means the default, 22).")
	}
	return nil
}

// ValidateSettings checks run settings after every layer has been applied.
func ValidateSettings(s Settings) error {
	if _, err := logger.ParseLevel(s.LogLevel); err != nil {
		return errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid log level '%s'", s.LogLevel),
			"Use one of: debug, info, warn, error")
	}
	if s.MaxParallel < 1 {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("max_parallel must be at least 1, got %d", s.MaxParallel),
			"Set --max-parallel to a positive number (default 100).")
	}
	if s.Timeout < 0 {
		return errors.New(errors.ErrConfig,
			"timeout can't be negative",
			"Use a duration like 5m, or 0 for no limit.")
	}
	if !validScope(s.Lock.Scope) {
		return errors.New(errors.ErrConfig,
			fmt.Sprintf("Unknown lock scope '%s'", s.Lock.Scope),
			"Use one of: "+strings.Join(LockScopes, ", "))
	}
	if s.Lock.Stale < 0 {
		return errors.New(errors.ErrConfig,
			"lock.stale can't be negative",
			"Use a duration like 1h, or 0 to never take over old locks.")
	}
	return nil
}

func validScope(scope string) bool {
	for _, s := range LockScopes {
		if s == scope {
			return true
		}
	}
	return false
}
