// Package registry maps names to task, channel and config loader factories.
// Registering a key that already exists replaces it.
package registry

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/events"
	"github.com/rileyhilliard/herd/internal/task"
	"github.com/rileyhilliard/herd/internal/util"
)

// ErrUnknownKey is returned by Lookup for keys that were never registered.
var ErrUnknownKey = stderrors.New("unknown registry key")

// TaskFactory creates a fresh task for one run.
type TaskFactory func() task.Task

// ChannelFactory opens a log channel from its URI.
type ChannelFactory func(u *url.URL) (events.Channel, error)

// LoaderFactory creates a configuration loader.
type LoaderFactory func() config.Loader

// Namespace is one independent key space.
type Namespace[F any] struct {
	mu      sync.RWMutex
	kind    string
	entries map[string]F
}

// NewNamespace creates an empty namespace. kind names it in errors.
func NewNamespace[F any](kind string) *Namespace[F] {
	return &Namespace[F]{kind: kind, entries: make(map[string]F)}
}

// Register stores f under key, replacing any earlier entry.
func (n *Namespace[F]) Register(key string, f F) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.entries[key] = f
}

// Lookup returns the factory for key.
func (n *Namespace[F]) Lookup(key string) (F, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	f, ok := n.entries[key]
	if !ok {
		var zero F
		return zero, errors.WrapWithCode(ErrUnknownKey, errors.ErrRegistry,
			fmt.Sprintf("Unknown %s '%s'", n.kind, key),
			util.DidYouMean(key, n.keysLocked(), "Registered"))
	}
	return f, nil
}

// Keys returns the registered keys, sorted.
func (n *Namespace[F]) Keys() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.keysLocked()
}

func (n *Namespace[F]) keysLocked() []string {
	keys := make([]string, 0, len(n.entries))
	for k := range n.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Registry holds the three extension points.
type Registry struct {
	Tasks    *Namespace[TaskFactory]
	Channels *Namespace[ChannelFactory]
	Loaders  *Namespace[LoaderFactory]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		Tasks:    NewNamespace[TaskFactory]("task"),
		Channels: NewNamespace[ChannelFactory]("log channel"),
		Loaders:  NewNamespace[LoaderFactory]("config scheme"),
	}
}

// Task creates the named task.
func (r *Registry) Task(name string) (task.Task, error) {
	f, err := r.Tasks.Lookup(name)
	if err != nil {
		return nil, err
	}
	return f(), nil
}

// OpenChannel parses raw and opens a channel for its scheme.
func (r *Registry) OpenChannel(raw string) (events.Channel, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrConfig,
			fmt.Sprintf("Invalid log channel '%s'", raw),
			"Channels look like console:, file:///var/log/herd.log or ws://host/path")
	}
	f, err := r.Channels.Lookup(u.Scheme)
	if err != nil {
		return nil, err
	}
	return f(u)
}

// Load loads configuration from u with the loader for its scheme.
func (r *Registry) Load(ctx context.Context, u *url.URL) (*config.Config, error) {
	f, err := r.Loaders.Lookup(u.Scheme)
	if err != nil {
		return nil, err
	}
	return f().Load(ctx, u)
}
