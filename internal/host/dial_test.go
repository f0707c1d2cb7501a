package host

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/rileyhilliard/herd/internal/config"
	herderrors "github.com/rileyhilliard/herd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategorizeDialError(t *testing.T) {
	tests := []struct {
		msg    string
		reason FailReason
		is     error
	}{
		{"dial tcp 10.0.0.1:22: i/o timeout", FailTimeout, ErrTimeout},
		{"dial tcp 10.0.0.1:22: connect: connection refused", FailRefused, ErrConnect},
		{"dial tcp: connect: no route to host", FailUnreachable, ErrConnect},
		{"dial tcp: lookup web9: no such host", FailUnreachable, ErrConnect},
		{"ssh: handshake failed: ssh: unable to authenticate", FailAuth, ErrAuth},
		{"No SSH auth methods available", FailAuth, ErrAuth},
		{"host key mismatch for web1", FailHostKey, ErrAuth},
		{"something odd", FailUnknown, ErrConnect},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			err := categorizeDialError("web1", stderrors.New(tt.msg))
			require.NotNil(t, err)
			assert.Equal(t, tt.reason, err.Reason)
			assert.ErrorIs(t, err, tt.is)
			assert.Contains(t, err.Error(), "web1")
		})
	}

	assert.Nil(t, categorizeDialError("web1", nil))
}

func TestCategorizeDialError_Deadline(t *testing.T) {
	err := categorizeDialError("web1", context.DeadlineExceeded)
	assert.Equal(t, FailTimeout, err.Reason)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrConnect)
}

func TestDialError_StructuredCause(t *testing.T) {
	cause := herderrors.WrapWithCode(stderrors.New("connection refused"), herderrors.ErrSSH,
		"Can't reach 'web1' at 10.0.0.1:22", "Is SSH running on that box?")
	err := categorizeDialError("web1", cause)

	assert.Equal(t, FailRefused, err.Reason)
	assert.Equal(t, "connect to web1: connection refused (Can't reach 'web1' at 10.0.0.1:22)", err.Error())
	assert.True(t, herderrors.IsCode(err, herderrors.ErrSSH))
}

func TestFailReason_String(t *testing.T) {
	assert.Equal(t, "authentication failed", FailAuth.String())
	assert.Equal(t, "connection failed", FailUnknown.String())
}

func TestSSHDialer_CancelledContext(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("SSH_AUTH_SOCK", "")
	t.Setenv("HERD_SSH_KEY", "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SSHDialer{}.Dial(ctx, &config.Server{Name: "web1", Address: "127.0.0.1"}, DialOptions{})
	require.Error(t, err)
	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.Equal(t, FailTimeout, dialErr.Reason)
}
