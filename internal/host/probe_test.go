package host_test

import (
	"context"
	"testing"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/host"
	hosttesting "github.com/rileyhilliard/herd/internal/host/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProbeAll(t *testing.T) {
	d := hosttesting.NewFakeDialer()
	d.Fail("db1", &host.DialError{Server: "db1", Reason: host.FailRefused})
	d.SetLatency("web2", 100*time.Millisecond)

	servers := []*config.Server{{Name: "web1"}, {Name: "web2"}, {Name: "db1"}}
	results := host.ProbeAll(context.Background(), d, servers, 50*time.Millisecond, 2)

	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.Equal(t, "web1", results[0].Server.Name)

	// The fake honours ctx only, so web2 still succeeds.
	assert.True(t, results[1].Success)

	assert.False(t, results[2].Success)
	assert.ErrorIs(t, results[2].Error, host.ErrConnect)

	// Probed connections are closed.
	assert.True(t, d.Client("web1").IsClosed())
}

func TestProbeAll_Cancelled(t *testing.T) {
	d := hosttesting.NewFakeDialer()
	d.SetLatency("web1", time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := host.ProbeAll(ctx, d, []*config.Server{{Name: "web1"}}, time.Second, 0)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.ErrorIs(t, results[0].Error, host.ErrTimeout)
}
