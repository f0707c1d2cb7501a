package lock

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/logger"
	sshtesting "github.com/rileyhilliard/herd/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCoordinator(t *testing.T, scope string, task string) *Coordinator {
	t.Helper()
	c, err := NewCoordinator(config.LockConfig{
		Scope:     scope,
		Dir:       filepath.Join(t.TempDir(), "locks"),
		RemoteDir: "/tmp",
	}, task, "run-1")
	require.NoError(t, err)
	c.SetLogger(logger.Noop())
	return c
}

func mockHost(name string) *sshtesting.MockClient {
	client := sshtesting.NewMockClient(name)
	sshtesting.WithDirs(client, []string{"/tmp"})
	return client
}

func TestLockInfo_NewLockInfo(t *testing.T) {
	info := NewLockInfo("deploy", "run-1")

	assert.NotEmpty(t, info.User)
	assert.NotEmpty(t, info.Hostname)
	assert.NotZero(t, info.PID)
	assert.Equal(t, "deploy", info.Task)
	assert.Equal(t, "run-1", info.RunID)
	assert.WithinDuration(t, time.Now(), info.Started, time.Second)
}

func TestLockInfo_Marshal(t *testing.T) {
	info := &LockInfo{
		User:     "testuser",
		Hostname: "ctl",
		Started:  time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC),
		PID:      12345,
		RunID:    "abc",
		Task:     "deploy",
	}

	data, err := info.Marshal()
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, "testuser", parsed["user"])
	assert.Equal(t, "abc", parsed["run_id"])
	assert.Equal(t, "deploy", parsed["task"])

	back, err := ParseLockInfo(data)
	require.NoError(t, err)
	assert.Equal(t, info.Started, back.Started.UTC())
}

func TestLockInfo_String(t *testing.T) {
	info := &LockInfo{User: "bob", Hostname: "ctl", PID: 42}
	assert.Equal(t, "bob@ctl (pid 42)", info.String())

	info.RunID = "r1"
	info.Started = time.Now().Add(-90 * time.Second)
	assert.Contains(t, info.String(), "bob@ctl (pid 42, run r1, 1m3")
}

func TestParseScope(t *testing.T) {
	tests := []struct {
		in            string
		want          Scope
		local, remote bool
	}{
		{"", ScopeLocal, true, false},
		{"none", ScopeNone, false, false},
		{"LOCAL", ScopeLocal, true, false},
		{"remote", ScopeRemote, false, true},
		{"both", ScopeBoth, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScope(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.local, got.Local())
			assert.Equal(t, tt.remote, got.Remote())
		})
	}

	_, err := ParseScope("global")
	assert.Error(t, err)
}

func TestNewCoordinator_InvalidScope(t *testing.T) {
	_, err := NewCoordinator(config.LockConfig{Scope: "global"}, "deploy", "r")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrConfig))
}

func TestPaths(t *testing.T) {
	c := newCoordinator(t, "both", "deploy app")

	assert.Equal(t, "/tmp/herd-deploy_app@web1.lock", c.RemotePath("web1"))
	assert.Contains(t, filepath.Base(c.LocalPath()), "herd-deploy_app-")

	other := newCoordinator(t, "both", "backup")
	assert.NotEqual(t, c.RemotePath("web1"), other.RemotePath("web1"))
	assert.NotEqual(t, c.RemotePath("web1"), c.RemotePath("web2"))
}

func TestAcquireLocal(t *testing.T) {
	c := newCoordinator(t, "local", "deploy")

	h, err := c.AcquireLocal()
	require.NoError(t, err)
	require.True(t, h.Held())
	assert.DirExists(t, c.LocalPath())

	holder := c.LocalHolder()
	require.NotNil(t, holder)
	assert.Equal(t, "run-1", holder.RunID)

	_, err = c.AcquireLocal()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)
	var locked *AlreadyLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, ScopeLocal, locked.Scope)
	assert.NotNil(t, locked.Holder)

	require.NoError(t, h.Release())
	_, statErr := os.Stat(c.LocalPath())
	assert.True(t, os.IsNotExist(statErr))

	h2, err := c.AcquireLocal()
	require.NoError(t, err)
	require.NoError(t, h2.Release())
}

func TestAcquireLocal_ConcurrentExactlyOneWins(t *testing.T) {
	c := newCoordinator(t, "local", "deploy")

	const runs = 16
	var wins, locked int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := c.AcquireLocal()
			if err == nil {
				atomic.AddInt32(&wins, 1)
			} else if assert.ErrorIs(t, err, ErrLocked) {
				atomic.AddInt32(&locked, 1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins)
	assert.Equal(t, int32(runs-1), locked)
}

func TestAcquireLocal_DifferentTasksDoNotContend(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "locks")
	a, err := NewCoordinator(config.LockConfig{Scope: "local", Dir: dir}, "deploy", "r1")
	require.NoError(t, err)
	b, err := NewCoordinator(config.LockConfig{Scope: "local", Dir: dir}, "backup", "r2")
	require.NoError(t, err)

	ha, err := a.AcquireLocal()
	require.NoError(t, err)
	hb, err := b.AcquireLocal()
	require.NoError(t, err)

	assert.NoError(t, ha.Release())
	assert.NoError(t, hb.Release())
}

func TestAcquire_NoopScopes(t *testing.T) {
	c := newCoordinator(t, "none", "deploy")

	h, err := c.AcquireLocal()
	require.NoError(t, err)
	assert.False(t, h.Held())
	assert.NoError(t, h.Release())

	client := mockHost("web1")
	h, err = c.AcquireRemote(client, "web1")
	require.NoError(t, err)
	assert.False(t, h.Held())
	assert.Empty(t, client.History())

	_, statErr := os.Stat(c.LocalPath())
	assert.True(t, os.IsNotExist(statErr))
}

func TestAcquireRemote(t *testing.T) {
	c := newCoordinator(t, "remote", "deploy")
	client := mockHost("web1")

	h, err := c.AcquireRemote(client, "web1")
	require.NoError(t, err)
	require.True(t, h.Held())
	assert.True(t, client.GetFS().IsDir("/tmp/herd-deploy@web1.lock"))

	data, err := client.GetFS().ReadFile("/tmp/herd-deploy@web1.lock/info.json")
	require.NoError(t, err)
	info, err := ParseLockInfo(data)
	require.NoError(t, err)
	assert.Equal(t, "deploy", info.Task)

	require.NoError(t, h.Release())
	assert.False(t, client.GetFS().Exists("/tmp/herd-deploy@web1.lock"))
}

func TestAcquireRemote_Contention(t *testing.T) {
	client := mockHost("web2")
	first := newCoordinator(t, "remote", "deploy")
	second := newCoordinator(t, "remote", "deploy")

	h, err := first.AcquireRemote(client, "web2")
	require.NoError(t, err)

	_, err = second.AcquireRemote(client, "web2")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLocked)

	var locked *AlreadyLockedError
	require.ErrorAs(t, err, &locked)
	assert.Equal(t, ScopeRemote, locked.Scope)
	assert.Equal(t, "web2", locked.Name)
	assert.Contains(t, err.Error(), "web2 is locked by")
	assert.Contains(t, err.Error(), "run run-1")

	require.NoError(t, h.Release())
	h2, err := second.AcquireRemote(client, "web2")
	require.NoError(t, err)
	assert.NoError(t, h2.Release())
}

func TestAcquireRemote_CreatesParent(t *testing.T) {
	c, err := NewCoordinator(config.LockConfig{Scope: "remote", RemoteDir: "/var/lock/herd"}, "deploy", "r")
	require.NoError(t, err)
	client := sshtesting.NewMockClient("web1")

	h, err := c.AcquireRemote(client, "web1")
	require.NoError(t, err)
	assert.True(t, client.GetFS().IsDir("/var/lock/herd/herd-deploy@web1.lock"))
	assert.NoError(t, h.Release())
}

func TestAcquireRemote_MkdirFailure(t *testing.T) {
	c := newCoordinator(t, "remote", "deploy")
	client := mockHost("web1")
	client.SetCommandResponse(`^mkdir '/tmp/herd-deploy@web1.lock'`, sshtesting.CommandResponse{ExitCode: 1})

	_, err := c.AcquireRemote(client, "web1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLocked)
	assert.True(t, errors.IsCode(err, errors.ErrLock))
}

func TestAcquireRemote_QuotesShellMetacharacters(t *testing.T) {
	dir := "/tmp/$USER`id`"
	c, err := NewCoordinator(config.LockConfig{Scope: "remote", RemoteDir: dir}, "deploy", "run-1")
	require.NoError(t, err)
	c.SetLogger(logger.Noop())
	client := mockHost("web1")

	h, err := c.AcquireRemote(client, "web1")
	require.NoError(t, err)

	lockPath := dir + "/herd-deploy@web1.lock"
	assert.True(t, client.GetFS().IsDir(lockPath), "metacharacters are kept literally")
	assert.Contains(t, client.History(), "mkdir '"+lockPath+"' 2>/dev/null")
	for _, cmd := range client.History() {
		assert.NotContains(t, cmd, `"`+dir, cmd)
	}
	assert.NoError(t, h.Release())
	assert.False(t, client.GetFS().Exists(lockPath))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'/tmp/a b'`, quote("/tmp/a b"))
	assert.Equal(t, `'/tmp/it'\''s'`, quote("/tmp/it's"))
	assert.Equal(t, `~/'.herd/locks'`, quote("~/.herd/locks"))
}

func TestAcquireRemote_NoClient(t *testing.T) {
	c := newCoordinator(t, "both", "deploy")
	_, err := c.AcquireRemote(nil, "web1")
	assert.True(t, errors.IsCode(err, errors.ErrLock))
}

func TestAcquireRemote_StaleTakeover(t *testing.T) {
	c, err := NewCoordinator(config.LockConfig{Scope: "remote", RemoteDir: "/tmp", Stale: time.Hour}, "deploy", "new-run")
	require.NoError(t, err)
	log := logger.NewBufferLogger()
	c.SetLogger(log)

	client := mockHost("web1")
	old := &LockInfo{User: "bob", Hostname: "ctl", PID: 1, RunID: "old-run", Started: time.Now().Add(-2 * time.Hour)}
	data, err := old.Marshal()
	require.NoError(t, err)
	require.NoError(t, client.GetFS().MkdirAll(c.RemotePath("web1")))
	require.NoError(t, client.GetFS().WriteFile(c.RemotePath("web1")+"/info.json", data))

	h, err := c.AcquireRemote(client, "web1")
	require.NoError(t, err)
	assert.True(t, log.HasLevel("warn"))

	holder := c.RemoteHolder(client, "web1")
	require.NotNil(t, holder)
	assert.Equal(t, "new-run", holder.RunID)
	assert.NoError(t, h.Release())
}

func TestAcquireRemote_FreshLockIsNotStale(t *testing.T) {
	c, err := NewCoordinator(config.LockConfig{Scope: "remote", RemoteDir: "/tmp", Stale: time.Hour}, "deploy", "new-run")
	require.NoError(t, err)
	client := mockHost("web1")

	holder := newCoordinator(t, "remote", "deploy")
	_, err = holder.AcquireRemote(client, "web1")
	require.NoError(t, err)

	_, err = c.AcquireRemote(client, "web1")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestHandle_ReleaseIdempotent(t *testing.T) {
	c := newCoordinator(t, "remote", "deploy")
	client := mockHost("web1")

	h, err := c.AcquireRemote(client, "web1")
	require.NoError(t, err)

	require.NoError(t, h.Release())
	require.NoError(t, h.Release())

	removes := 0
	for _, cmd := range client.History() {
		if cmd == `rm -rf '/tmp/herd-deploy@web1.lock'` {
			removes++
		}
	}
	assert.Equal(t, 1, removes)

	var nilHandle *Handle
	assert.NoError(t, nilHandle.Release())
}

func TestForceRelease(t *testing.T) {
	c := newCoordinator(t, "both", "deploy")
	client := mockHost("web1")

	_, err := c.AcquireLocal()
	require.NoError(t, err)
	_, err = c.AcquireRemote(client, "web1")
	require.NoError(t, err)

	require.NoError(t, c.ForceReleaseLocal())
	require.NoError(t, c.ForceReleaseRemote(client, "web1"))
	assert.Nil(t, c.LocalHolder())
	assert.Nil(t, c.RemoteHolder(client, "web1"))

	assert.Error(t, c.ForceReleaseRemote(nil, "web1"))
}
