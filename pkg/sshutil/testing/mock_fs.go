// Package testing provides an in-memory stand-in for a remote host: a mock
// SSH client backed by a mock filesystem.
package testing

import (
	"errors"
	"path"
	"strings"
	"sync"
)

// MockFS is a flat in-memory filesystem keyed by cleaned path.
type MockFS struct {
	mu      sync.RWMutex
	entries map[string][]byte
	dirs    map[string]bool
}

func NewMockFS() *MockFS {
	return &MockFS{
		entries: make(map[string][]byte),
		dirs:    make(map[string]bool),
	}
}

// Mkdir creates one directory and fails if anything already exists at p.
func (fs *MockFS) Mkdir(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = path.Clean(p)
	if fs.dirs[p] {
		return errors.New("directory already exists")
	}
	if _, ok := fs.entries[p]; ok {
		return errors.New("file exists at path")
	}
	fs.dirs[p] = true
	return nil
}

// MkdirAll creates p and every missing parent.
func (fs *MockFS) MkdirAll(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.mkdirAllLocked(path.Clean(p))
	return nil
}

func (fs *MockFS) mkdirAllLocked(p string) {
	for p != "/" && p != "." && !fs.dirs[p] {
		fs.dirs[p] = true
		p = path.Dir(p)
	}
}

// WriteFile stores content at p, creating parents.
func (fs *MockFS) WriteFile(p string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = path.Clean(p)
	if fs.dirs[p] {
		return errors.New("is a directory")
	}
	fs.mkdirAllLocked(path.Dir(p))
	fs.entries[p] = content
	return nil
}

func (fs *MockFS) ReadFile(p string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	content, ok := fs.entries[path.Clean(p)]
	if !ok {
		return nil, errors.New("file not found")
	}
	return content, nil
}

// Remove deletes p and everything under it, like rm -rf.
func (fs *MockFS) Remove(p string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	p = path.Clean(p)
	under := func(q string) bool { return q == p || strings.HasPrefix(q, p+"/") }
	for q := range fs.entries {
		if under(q) {
			delete(fs.entries, q)
		}
	}
	for q := range fs.dirs {
		if under(q) {
			delete(fs.dirs, q)
		}
	}
	return nil
}

func (fs *MockFS) Exists(p string) bool {
	return fs.IsDir(p) || fs.IsFile(p)
}

func (fs *MockFS) IsDir(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.dirs[path.Clean(p)]
}

func (fs *MockFS) IsFile(p string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, ok := fs.entries[path.Clean(p)]
	return ok
}
