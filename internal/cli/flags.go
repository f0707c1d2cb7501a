package cli

import (
	"github.com/rileyhilliard/herd/internal/host"
	"github.com/spf13/cobra"
)

// SelectionFlags hold the target pattern flags shared by run, servers and
// unlock --remote.
type SelectionFlags struct {
	Servers      []string
	Roles        []string
	Exclude      []string
	ExcludeRoles []string
}

// AddSelectionFlags registers -s, -r, -x and --exclude-roles on cmd.
func AddSelectionFlags(cmd *cobra.Command, f *SelectionFlags) {
	cmd.Flags().StringArrayVarP(&f.Servers, "servers", "s", nil, "server names, prefixes or ranges like web[1-3] (comma-separated, repeatable)")
	cmd.Flags().StringArrayVarP(&f.Roles, "roles", "r", nil, "roles to include (comma-separated, repeatable)")
	cmd.Flags().StringArrayVarP(&f.Exclude, "exclude", "x", nil, "server patterns to leave out")
	cmd.Flags().StringArrayVar(&f.ExcludeRoles, "exclude-roles", nil, "roles to leave out")
}

// Pattern converts the flags into a resolver pattern.
func (f *SelectionFlags) Pattern() host.Pattern {
	return host.Pattern{
		IncludeNames: f.Servers,
		IncludeRoles: f.Roles,
		ExcludeNames: f.Exclude,
		ExcludeRoles: f.ExcludeRoles,
	}
}

// Empty reports whether no selection flag was given.
func (f *SelectionFlags) Empty() bool {
	return len(f.Servers) == 0 && len(f.Roles) == 0 && len(f.Exclude) == 0 && len(f.ExcludeRoles) == 0
}

// settingFlags maps run-setting keys to the flag names that override them.
var settingFlags = map[string]string{
	"parallel":     "parallel",
	"max_parallel": "max-parallel",
	"timeout":      "timeout",
	"fail_fast":    "fail-fast",
	"sudo":         "sudo",
	"lock.scope":   "lock",
}

// persistentSettingFlags are the root flags that override settings.
var persistentSettingFlags = map[string]string{
	"log_level": "log-level",
	"channels":  "log",
}
