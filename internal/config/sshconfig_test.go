package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSSHConfigLoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ssh_config")
	require.NoError(t, os.WriteFile(path, []byte(`
Host web-1
    HostName 10.0.0.11
    User ops
    Port 2222

Host web-2
    HostName 10.0.0.12

Host db-1
    HostName 10.0.1.1

Host *
    ServerAliveInterval 60
`), 0600))

	uri, err := ParseURI("sshconfig://" + path + "?roles=web:web-,db:db-")
	require.NoError(t, err)

	cfg, err := SSHConfigLoader{}.Load(context.Background(), uri)
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 3)
	// ParseSSHConfigFile sorts by alias.
	assert.Equal(t, "db-1", cfg.Servers[0].Name)
	assert.Equal(t, []string{"db"}, cfg.Servers[0].Roles)

	web1 := cfg.Servers[1]
	assert.Equal(t, "web-1", web1.Name)
	assert.Equal(t, "web-1", web1.Host(), "dial by alias")
	assert.Equal(t, "ops", web1.User)
	assert.Equal(t, 2222, web1.Port)
	assert.Equal(t, []string{"web"}, web1.Roles)

	assert.Equal(t, 22, cfg.Servers[2].Port)
}

func TestParseRolePrefixes(t *testing.T) {
	got := parseRolePrefixes("web:web-, db:db-,broken,:x,y:")
	assert.Equal(t, map[string]string{"web": "web-", "db": "db-"}, got)
	assert.Empty(t, parseRolePrefixes(""))
}
