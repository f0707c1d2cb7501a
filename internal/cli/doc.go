// Package cli implements the herd command-line interface.
//
// The root command is "herd" with subcommands:
//
//	herd run <task> [args...]   - Run a task against the selected servers
//	herd servers                - Show the resolved target set
//	herd tasks                  - List registered tasks
//	herd unlock <task>          - Force-release a task's run locks
//	herd version                - Print version information
//
// # Configuration layering
//
// Every command loads the inventory through the registry loader for the
// --config URI scheme (a bare path is a file). Run settings then come from
// viper with this precedence: flag, HERD_* environment variable, the config
// source's settings block, built-in default. An optional dotenv file is
// loaded into the environment first.
//
// # Target selection
//
// --servers, --roles, --exclude and --exclude-roles take comma-separated
// patterns and may be repeated. Names support prefixes and numeric ranges
// such as web[01-12].
//
// # Exit status
//
// Execute exits 0 when the run succeeded on every target and 1 otherwise,
// including configuration, pattern and validation errors before dispatch.
package cli
