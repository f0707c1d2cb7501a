package events

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func levels(evs []Event) []logger.Level {
	var out []logger.Level
	for _, ev := range evs {
		if ev.Kind == KindLog {
			out = append(out, ev.Level)
		}
	}
	return out
}

func TestBroadcaster_LevelFiltering(t *testing.T) {
	tests := []struct {
		min  logger.Level
		want []logger.Level
	}{
		{logger.LevelDebug, []logger.Level{logger.LevelDebug, logger.LevelInfo, logger.LevelWarn, logger.LevelError}},
		{logger.LevelInfo, []logger.Level{logger.LevelInfo, logger.LevelWarn, logger.LevelError}},
		{logger.LevelWarn, []logger.Level{logger.LevelWarn, logger.LevelError}},
		{logger.LevelError, []logger.Level{logger.LevelWarn, logger.LevelError}},
	}

	for _, tt := range tests {
		t.Run(tt.min.String(), func(t *testing.T) {
			b := NewBroadcaster(tt.min)
			rec := NewRecorder()
			b.Add(rec)

			b.Debug("d")
			b.Info("i")
			b.Warn("w")
			b.Error("e")

			assert.Equal(t, tt.want, levels(rec.Events()))
		})
	}
}

func TestBroadcaster_PerChannelLevel(t *testing.T) {
	b := NewBroadcaster(logger.LevelWarn)
	quiet := NewRecorder()
	chatty := NewRecorder()
	b.Add(quiet)
	b.AddWithLevel(chatty, logger.LevelDebug)

	b.Debug("d")
	b.Info("i")

	assert.Empty(t, quiet.Events())
	assert.Len(t, chatty.Events(), 2)
}

func TestBroadcaster_FallbackWithNoChannels(t *testing.T) {
	b := NewBroadcaster(logger.LevelWarn)
	var out bytes.Buffer
	b.SetFallback(&out)

	b.Info("hidden")
	b.Error("disk full on %s", "db1")

	assert.Equal(t, "herd: [error] disk full on db1\n", out.String())
}

func TestBroadcaster_FallbackOnChannelError(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	var out bytes.Buffer
	b.SetFallback(&out)

	rec := NewRecorder()
	rec.FailWith(errors.New("socket closed"))
	b.Add(rec)

	b.Info("routine")
	assert.Empty(t, out.String())

	b.ForServer(&config.Server{Name: "web1"}).Warn("slow disk")
	assert.Contains(t, out.String(), "herd: [warn] web1: slow disk (channel error: socket closed)")
}

func TestBroadcaster_RegistrationOrder(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	var order []string
	var mu sync.Mutex
	for _, name := range []string{"a", "b", "c"} {
		b.Add(&orderChannel{name: name, order: &order, mu: &mu})
	}

	b.Info("x")
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

type orderChannel struct {
	Base
	name  string
	order *[]string
	mu    *sync.Mutex
}

func (c *orderChannel) Log(Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	*c.order = append(*c.order, c.name)
	return nil
}

func TestBroadcaster_BufferedReplayAtFinalize(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	b.SetRun("run-1", "deploy")
	buffered := NewBufferedRecorder()
	immediate := NewRecorder()
	b.Add(buffered)
	b.Add(immediate)

	web1 := &config.Server{Name: "web1"}
	b.Initialize(1)
	b.StartServer(web1)
	b.Debug("filtered")
	b.ForServer(web1).Info("hello")
	b.EndServer(web1, StatusSuccess, "", time.Second)

	assert.Empty(t, buffered.Events())
	assert.Len(t, immediate.Events(), 4)

	b.Finalize(StatusSuccess, 1, 0, time.Second)

	assert.Equal(t, []Kind{KindInitialize, KindStartServer, KindLog, KindEndServer, KindFinalize}, buffered.Kinds())
	assert.Equal(t, immediate.Kinds(), buffered.Kinds())

	for _, ev := range buffered.Events() {
		assert.Equal(t, "run-1", ev.RunID)
		assert.Equal(t, "deploy", ev.Task)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestBroadcaster_OnlyBufferedChannelsNoFallback(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	var out bytes.Buffer
	b.SetFallback(&out)
	buffered := NewBufferedRecorder()
	b.Add(buffered)

	b.Error("boom")
	assert.Empty(t, out.String())

	b.Finalize(StatusFailure, 0, 0, 0)
	assert.Equal(t, []logger.Level{logger.LevelError}, levels(buffered.Events()))
}

func TestBroadcaster_UrgentAfterFinalizeReachesFallback(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	var out bytes.Buffer
	b.SetFallback(&out)
	buffered := NewBufferedRecorder()
	b.Add(buffered)

	b.Finalize(StatusSuccess, 0, 0, 0)
	b.Info("late and routine")
	b.Error("failed to release local lock")

	assert.Equal(t, []Kind{KindFinalize}, buffered.Kinds(), "flushed channel receives nothing more")
	assert.Equal(t, "herd: [error] failed to release local lock\n", out.String())
}

func TestBroadcaster_UrgentAfterFinalizeWithImmediateChannel(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	var out bytes.Buffer
	b.SetFallback(&out)
	buffered := NewBufferedRecorder()
	immediate := NewRecorder()
	b.Add(buffered)
	b.Add(immediate)

	b.Finalize(StatusSuccess, 0, 0, 0)
	b.Warn("late warning")

	assert.Empty(t, out.String(), "the immediate channel accepted it")
	assert.Equal(t, []logger.Level{logger.LevelWarn}, levels(immediate.Events()))
	assert.Empty(t, levels(buffered.Events()))
}

// Concurrent emitters never interleave calls into one channel.
func TestBroadcaster_SerializesConcurrentEmit(t *testing.T) {
	b := NewBroadcaster(logger.LevelDebug)
	ch := &exclusiveChannel{}
	b.Add(ch)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			srv := &config.Server{Name: "web"}
			for j := 0; j < 50; j++ {
				b.ForServer(srv).Info("line %d", j)
			}
		}(i)
	}
	wg.Wait()

	assert.False(t, ch.overlap)
	assert.Equal(t, 1000, ch.count)
}

type exclusiveChannel struct {
	Base
	active  bool
	overlap bool
	count   int
}

func (c *exclusiveChannel) Log(Event) error {
	if c.active {
		c.overlap = true
	}
	c.active = true
	time.Sleep(time.Microsecond)
	c.count++
	c.active = false
	return nil
}

func TestBroadcaster_Close(t *testing.T) {
	b := NewBroadcaster(logger.LevelInfo)
	rec := NewRecorder()
	b.Add(rec)
	require.Equal(t, 1, b.Len())

	require.NoError(t, b.Close())
	assert.True(t, rec.Closed())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "start_server", KindStartServer.String())
	assert.Equal(t, "unknown", Kind(99).String())
}
