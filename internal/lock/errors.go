package lock

import (
	"errors"
	"fmt"
)

// ErrLocked is returned when a lock is held by another run.
// This is a sentinel error that can be checked with errors.Is().
var ErrLocked = errors.New("lock is held by another run")

// AlreadyLockedError reports contention for one lock. Name is "local" for the
// control-node lock or the server name for a remote lock.
type AlreadyLockedError struct {
	Scope  Scope
	Name   string
	Path   string
	Holder *LockInfo // nil when the holder could not be read
}

func (e *AlreadyLockedError) Error() string {
	holder := "unknown holder"
	if e.Holder != nil {
		holder = e.Holder.String()
	}
	if e.Scope == ScopeLocal {
		return fmt.Sprintf("local lock %s is held by %s", e.Path, holder)
	}
	return fmt.Sprintf("%s is locked by %s", e.Name, holder)
}

// Is makes errors.Is(err, ErrLocked) match.
func (e *AlreadyLockedError) Is(target error) bool {
	return target == ErrLocked
}
