package host

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rileyhilliard/herd/internal/errors"
	sstesting "github.com/rileyhilliard/herd/pkg/sshutil/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_Run(t *testing.T) {
	client := sstesting.NewMockClient("web1")
	client.SetCommandResponse("uptime", sstesting.CommandResponse{Stdout: []byte("up 3 days")})
	conn := &Connection{Name: "web1", Client: client}

	out, _, code, err := conn.Run("uptime")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "up 3 days", string(out))
	assert.Equal(t, []string{"uptime"}, client.History())
}

func TestConnection_Sudo(t *testing.T) {
	client := sstesting.NewMockClient("web1")
	conn := &Connection{Name: "web1", Client: client, SudoUser: "www-data"}

	var stdout bytes.Buffer
	_, err := conn.RunStream("echo 'hi'", &stdout, nil)
	require.NoError(t, err)

	require.Len(t, client.History(), 1)
	assert.Equal(t, `sudo -n -u 'www-data' -- sh -c 'echo '\''hi'\'''`, client.History()[0])
}

func TestConnection_Upload(t *testing.T) {
	client := sstesting.NewMockClient("web1")
	conn := &Connection{Name: "web1", Client: client, SudoUser: "root"}

	require.NoError(t, conn.Upload(strings.NewReader("data"), "/etc/app.conf"))
	content, err := client.GetFS().ReadFile("/etc/app.conf")
	require.NoError(t, err)
	assert.Equal(t, "data", string(content))
}

func TestConnection_NoClient(t *testing.T) {
	var nilConn *Connection
	_, _, _, err := nilConn.Run("true")
	assert.True(t, errors.IsCode(err, errors.ErrSSH))

	conn := &Connection{Name: "web1"}
	assert.False(t, HasClient(conn))
	_, err = conn.RunStream("true", nil, nil)
	assert.Error(t, err)
	assert.Error(t, conn.Upload(strings.NewReader(""), "/x"))
	assert.NoError(t, conn.Close())
}
