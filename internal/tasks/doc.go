// Package tasks holds the built-in tasks: command, copy, patch and rsync.
//
// Each constructor matches registry.TaskFactory; Builtins returns them by
// name for the CLI's default registry.
package tasks

import "github.com/rileyhilliard/herd/internal/task"

// Builtins returns a factory per built-in task name.
func Builtins() map[string]func() task.Task {
	return map[string]func() task.Task{
		"command": NewCommand,
		"copy":    NewCopy,
		"patch":   NewPatch,
		"rsync":   NewRsync,
	}
}
