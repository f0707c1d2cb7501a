package host

import (
	"context"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"golang.org/x/sync/errgroup"
)

// ProbeResult contains the result of probing a single server.
type ProbeResult struct {
	Server  *config.Server
	Latency time.Duration
	Error   error
	Success bool
}

// ProbeAll connects to every server with the given dialer and closes the
// session straight away. At most limit probes run at once; results come back
// in input order.
func ProbeAll(ctx context.Context, d Dialer, servers []*config.Server, timeout time.Duration, limit int) []ProbeResult {
	if limit < 1 {
		limit = 1
	}
	results := make([]ProbeResult, len(servers))

	var g errgroup.Group
	g.SetLimit(limit)
	for i, s := range servers {
		g.Go(func() error {
			start := time.Now()
			conn, err := d.Dial(ctx, s, DialOptions{Timeout: timeout})
			results[i] = ProbeResult{Server: s, Error: err, Success: err == nil}
			if err == nil {
				results[i].Latency = time.Since(start)
				conn.Close()
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
