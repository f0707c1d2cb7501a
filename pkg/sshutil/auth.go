package sshutil

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rileyhilliard/herd/internal/errors"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// clientConfig assembles auth methods and host key verification for ep.
// Keys are tried in order: agent, HERD_SSH_KEY, the config IdentityFile, then
// the default id_* files. Passphrase-protected keys are skipped and recorded
// on ep for later error hints.
func clientConfig(ep *endpoint) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod
	if a := agentAuth(); a != nil {
		methods = append(methods, a)
	}

	tried := map[string]bool{}
	for _, path := range keyCandidates(ep.identityFile) {
		if path == "" || tried[path] {
			continue
		}
		tried[path] = true

		auth, err := keyFileAuth(path)
		var encErr *EncryptedKeyError
		switch {
		case err == nil:
			methods = append(methods, auth)
		case stderrors.As(err, &encErr):
			ep.encryptedKeys = append(ep.encryptedKeys, path)
		}
	}

	if len(methods) == 0 {
		if len(ep.encryptedKeys) > 0 {
			return nil, errors.New(errors.ErrSSH,
				"Found SSH key(s) but they're encrypted: "+strings.Join(ep.encryptedKeys, ", "),
				addKeysHint(ep.encryptedKeys))
		}
		return nil, errors.New(errors.ErrSSH,
			"No SSH auth methods available",
			"Check your keys are loaded: ssh-add -l")
	}

	hostKeys, err := hostKeyCallback()
	if err != nil {
		return nil, err
	}

	return &ssh.ClientConfig{
		User:            ep.user,
		Auth:            methods,
		HostKeyCallback: hostKeys,
		Timeout:         10 * time.Second,
	}, nil
}

func keyCandidates(identityFile string) []string {
	sshDir := filepath.Join(homeDir(), ".ssh")
	return []string{
		os.Getenv("HERD_SSH_KEY"),
		identityFile,
		filepath.Join(sshDir, "id_ed25519"),
		filepath.Join(sshDir, "id_rsa"),
		filepath.Join(sshDir, "id_ecdsa"),
	}
}

var (
	agentOnce   sync.Once
	agentClient agent.ExtendedAgent
)

// agentAuth returns agent-backed auth when SSH_AUTH_SOCK is set and the agent
// holds at least one key. An empty agent listed first makes some servers
// give up before the key files are offered. The socket is opened once per
// process and shared by every dial.
func agentAuth() ssh.AuthMethod {
	socket := os.Getenv("SSH_AUTH_SOCK")
	if socket == "" {
		return nil
	}
	agentOnce.Do(func() {
		if conn, err := net.Dial("unix", socket); err == nil {
			agentClient = agent.NewClient(conn)
		}
	})
	if agentClient == nil {
		return nil
	}
	if signers, err := agentClient.Signers(); err != nil || len(signers) == 0 {
		return nil
	}
	return ssh.PublicKeysCallback(agentClient.Signers)
}

// EncryptedKeyError reports a key file that needs a passphrase.
type EncryptedKeyError struct {
	Path string
}

func (e *EncryptedKeyError) Error() string {
	return fmt.Sprintf("SSH key at %s is encrypted (passphrase protected)", e.Path)
}

func keyFileAuth(path string) (ssh.AuthMethod, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	signer, err := ssh.ParsePrivateKey(pem)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if stderrors.As(err, &missing) || bytes.Contains(pem, []byte("ENCRYPTED")) {
			return nil, &EncryptedKeyError{Path: path}
		}
		return nil, err
	}
	return ssh.PublicKeys(signer), nil
}

// hostKeyCallback verifies against ~/.ssh/known_hosts, creating an empty file
// when there is none. HERD_INSECURE_HOST_KEY=1 turns verification off.
func hostKeyCallback() (ssh.HostKeyCallback, error) {
	if os.Getenv("HERD_INSECURE_HOST_KEY") == "1" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit opt-out
	}

	path := filepath.Join(homeDir(), ".ssh", "known_hosts")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, fmt.Errorf("failed to create .ssh directory: %w", err)
		}
		if err := os.WriteFile(path, nil, 0600); err != nil {
			return nil, fmt.Errorf("failed to create known_hosts: %w", err)
		}
	}

	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if stderrors.As(err, &keyErr) && len(keyErr.Want) > 0 {
			return &HostKeyMismatchError{
				Hostname:     hostname,
				ReceivedType: key.Type(),
				KnownHosts:   path,
				Want:         keyErr.Want,
			}
		}
		return err
	}, nil
}

// HostKeyMismatchError means known_hosts has a different key for the host.
type HostKeyMismatchError struct {
	Hostname     string
	ReceivedType string
	KnownHosts   string
	Want         []knownhosts.KnownKey
}

func (e *HostKeyMismatchError) Error() string {
	return fmt.Sprintf("host key mismatch for %s: server sent %s key", e.Hostname, e.ReceivedType)
}

// Suggestion tells the user how to refresh the known_hosts entry.
func (e *HostKeyMismatchError) Suggestion() string {
	host := e.Hostname
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	known := "unknown"
	if len(e.Want) > 0 {
		types := make([]string, len(e.Want))
		for i, k := range e.Want {
			types[i] = k.Key.Type()
		}
		known = strings.Join(types, ", ")
	}

	return fmt.Sprintf("known_hosts has %s, server sent %s.\n"+
		"  If the host was rebuilt, replace the entry:\n"+
		"    ssh-keygen -R %s && ssh-keyscan %s >> %s",
		known, e.ReceivedType, host, host, e.KnownHosts)
}

func addKeysHint(keys []string) string {
	var b strings.Builder
	b.WriteString("Add the key(s) to your agent:\n")
	for _, k := range keys {
		if runtime.GOOS == "darwin" {
			fmt.Fprintf(&b, "  ssh-add --apple-use-keychain %s\n", k)
		} else {
			fmt.Fprintf(&b, "  ssh-add %s\n", k)
		}
	}
	return b.String()
}

func suggestionForDialError(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return "Is SSH running on that box? Try: ssh <host>"
	case strings.Contains(msg, "no route to host"), strings.Contains(msg, "network is unreachable"):
		return "Can't route to the host. Check your network connection."
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return "Connection timed out. Host might be offline or firewalled."
	case strings.Contains(msg, "no such host"):
		return "The name doesn't resolve. Check the address in your inventory."
	}
	return "Make sure the host is reachable: ping <host>"
}

func suggestionForHandshakeError(err error, encryptedKeys []string) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "unable to authenticate"), strings.Contains(msg, "no supported methods"):
		if len(encryptedKeys) > 0 {
			return addKeysHint(encryptedKeys)
		}
		return "Auth failed. Check your keys are loaded: ssh-add -l"
	case strings.Contains(msg, "host key"), strings.Contains(msg, "knownhosts"):
		return "Host key issue. Connect once by hand to record it: ssh <host>"
	}
	return "Something went wrong during SSH setup. Try: ssh -v <host>"
}
