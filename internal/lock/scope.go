package lock

import (
	"fmt"
	"strings"
)

// Scope selects which side of the control/remote boundary a run locks.
type Scope string

const (
	ScopeNone   Scope = "none"
	ScopeLocal  Scope = "local"
	ScopeRemote Scope = "remote"
	ScopeBoth   Scope = "both"
)

// ParseScope converts a setting value into a Scope. Empty means local.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeNone:
		return ScopeNone, nil
	case ScopeLocal, "":
		return ScopeLocal, nil
	case ScopeRemote:
		return ScopeRemote, nil
	case ScopeBoth:
		return ScopeBoth, nil
	default:
		return "", fmt.Errorf("unknown lock scope %q (want none, local, remote or both)", s)
	}
}

// Local reports whether the scope takes the control-node lock.
func (s Scope) Local() bool {
	return s == ScopeLocal || s == ScopeBoth
}

// Remote reports whether the scope takes per-host locks.
func (s Scope) Remote() bool {
	return s == ScopeRemote || s == ScopeBoth
}
