package lock

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// LockInfo contains metadata about who holds a lock. It is written to
// info.json inside the lock directory.
type LockInfo struct {
	User     string    `json:"user"`
	Hostname string    `json:"hostname"`
	Started  time.Time `json:"started"`
	PID      int       `json:"pid"`
	RunID    string    `json:"run_id,omitempty"`
	Task     string    `json:"task,omitempty"`
}

// NewLockInfo creates a LockInfo for the current process.
func NewLockInfo(task, runID string) *LockInfo {
	return &LockInfo{
		User:     currentUser(),
		Hostname: controlHost(),
		Started:  time.Now(),
		PID:      os.Getpid(),
		RunID:    runID,
		Task:     task,
	}
}

// Age returns how long ago the lock was acquired.
func (i *LockInfo) Age() time.Duration {
	return time.Since(i.Started)
}

// Marshal serializes the LockInfo to JSON.
func (i *LockInfo) Marshal() ([]byte, error) {
	return json.Marshal(i)
}

// ParseLockInfo deserializes JSON data into a LockInfo.
func ParseLockInfo(data []byte) (*LockInfo, error) {
	var info LockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// String returns a human-readable description of who holds the lock.
func (i *LockInfo) String() string {
	s := i.User + "@" + i.Hostname + " (pid " + strconv.Itoa(i.PID)
	if i.RunID != "" {
		s += ", run " + i.RunID
	}
	if !i.Started.IsZero() {
		s += ", " + i.Age().Truncate(time.Second).String() + " ago"
	}
	return s + ")"
}

func currentUser() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "unknown"
}

func controlHost() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown"
	}
	return h
}
