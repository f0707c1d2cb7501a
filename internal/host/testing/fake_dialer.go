// Package testing provides test doubles for the host package.
package testing

import (
	"context"
	"sync"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/host"
	sstesting "github.com/rileyhilliard/herd/pkg/sshutil/testing"
)

// FakeDialer hands out mock SSH clients instead of real connections. Each
// server name gets one MockClient for the dialer's lifetime, so its virtual
// filesystem (lock directories, uploads) survives reconnects.
type FakeDialer struct {
	mu      sync.Mutex
	clients map[string]*sstesting.MockClient
	fail    map[string]error
	latency map[string]time.Duration

	// Dials lists server names in the order Dial was called.
	Dials []string
}

var _ host.Dialer = (*FakeDialer)(nil)

// NewFakeDialer creates a dialer where every server connects successfully.
func NewFakeDialer() *FakeDialer {
	return &FakeDialer{
		clients: make(map[string]*sstesting.MockClient),
		fail:    make(map[string]error),
		latency: make(map[string]time.Duration),
	}
}

// Client returns the mock client for a server, creating it on first use.
func (d *FakeDialer) Client(name string) *sstesting.MockClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clientLocked(name)
}

func (d *FakeDialer) clientLocked(name string) *sstesting.MockClient {
	c, ok := d.clients[name]
	if !ok {
		c = sstesting.NewMockClient(name)
		sstesting.WithDirs(c, []string{"/tmp"})
		d.clients[name] = c
	}
	return c
}

// Fail makes every dial to name return err.
func (d *FakeDialer) Fail(name string, err error) *FakeDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail[name] = err
	return d
}

// SetLatency delays dials to name. The delay honours ctx cancellation and
// reports it as a timeout.
func (d *FakeDialer) SetLatency(name string, latency time.Duration) *FakeDialer {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.latency[name] = latency
	return d
}

// Dial returns a Connection backed by the server's MockClient. A client
// closed by an earlier run is reopened with its filesystem intact.
func (d *FakeDialer) Dial(ctx context.Context, server *config.Server, opts host.DialOptions) (*host.Connection, error) {
	d.mu.Lock()
	d.Dials = append(d.Dials, server.Name)
	latency := d.latency[server.Name]
	failErr := d.fail[server.Name]
	d.mu.Unlock()

	if latency > 0 {
		select {
		case <-time.After(latency):
		case <-ctx.Done():
			return nil, &host.DialError{Server: server.Name, Reason: host.FailTimeout, Cause: ctx.Err()}
		}
	}

	if failErr != nil {
		return nil, failErr
	}

	d.mu.Lock()
	client := d.clientLocked(server.Name)
	d.mu.Unlock()
	client.Reopen()

	return &host.Connection{
		Name:     server.Name,
		Server:   server,
		Client:   client,
		SudoUser: opts.SudoUser,
		Latency:  latency,
	}, nil
}

// DialCount returns how many times name was dialed.
func (d *FakeDialer) DialCount(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, s := range d.Dials {
		if s == name {
			n++
		}
	}
	return n
}
