package host

import "github.com/rileyhilliard/herd/internal/errors"

// ValidateConnection checks that a connection is usable for remote operations.
// Returns nil if the connection is valid, or an error describing the issue.
func ValidateConnection(conn *Connection) error {
	if conn == nil {
		return errors.New(errors.ErrSSH,
			"No connection provided",
			"Connect to the server before running commands on it.")
	}

	if conn.Client == nil {
		return errors.New(errors.ErrSSH,
			"Connection has no SSH client",
			"The connection may have been closed. Try reconnecting.")
	}

	return nil
}

// HasClient returns true if the connection has an active SSH client.
func HasClient(conn *Connection) bool {
	return conn != nil && conn.Client != nil
}
