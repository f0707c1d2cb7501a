package testing

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/rileyhilliard/herd/pkg/sshutil"
)

var _ sshutil.SSHClient = (*MockClient)(nil)

// ErrClosed is returned by every call on a closed MockClient.
var ErrClosed = errors.New("connection closed")

// CommandResponse is a canned result for commands matching a pattern.
type CommandResponse struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	Error    error
}

// MockClient is an in-memory SSH connection. Canned responses win; otherwise
// the shell commands herd itself sends (mkdir, test, heredoc cat, rm) run
// against a MockFS, and anything else succeeds with no output.
type MockClient struct {
	mu       sync.Mutex
	host     string
	fs       *MockFS
	closed   bool
	commands map[string]CommandResponse
	history  []string
}

// NewMockClient returns a client for host with an empty filesystem.
func NewMockClient(host string) *MockClient {
	return &MockClient{
		host:     host,
		fs:       NewMockFS(),
		commands: make(map[string]CommandResponse),
	}
}

func (m *MockClient) Exec(cmd string) (stdout, stderr []byte, exitCode int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, nil, -1, ErrClosed
	}
	m.history = append(m.history, cmd)

	if resp, ok := m.commands[cmd]; ok {
		return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
	}
	for pattern, resp := range m.commands {
		if matched, _ := regexp.MatchString(pattern, cmd); matched {
			return resp.Stdout, resp.Stderr, resp.ExitCode, resp.Error
		}
	}
	return m.simulate(cmd)
}

func (m *MockClient) ExecStream(cmd string, stdout, stderr io.Writer) (exitCode int, err error) {
	out, errOut, code, err := m.Exec(cmd)
	if err != nil {
		return -1, err
	}
	if stdout != nil {
		_, _ = stdout.Write(out)
	}
	if stderr != nil {
		_, _ = stderr.Write(errOut)
	}
	return code, nil
}

// Upload writes r into the filesystem, creating parent directories like the
// SFTP client does. History records it as "upload <path>".
func (m *MockClient) Upload(r io.Reader, remotePath string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	m.history = append(m.history, "upload "+remotePath)
	if err := m.fs.MkdirAll(filepath.Dir(remotePath)); err != nil {
		return err
	}
	return m.fs.WriteFile(remotePath, data)
}

func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MockClient) GetHost() string    { return m.host }
func (m *MockClient) GetAddress() string { return m.host + ":22" }

// SetCommandResponse registers resp for commands equal to pattern or, failing
// an exact match, matching it as a regular expression.
func (m *MockClient) SetCommandResponse(pattern string, resp CommandResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[pattern] = resp
}

// GetFS exposes the backing filesystem.
func (m *MockClient) GetFS() *MockFS {
	return m.fs
}

// History returns a copy of every command and upload in call order.
func (m *MockClient) History() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history...)
}

// Reopen lets a closed client be handed out again by a fake dialer. History
// and filesystem survive.
func (m *MockClient) Reopen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = false
}

func (m *MockClient) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type simulated func(m *MockClient, args string) ([]byte, []byte, int, error)

// Prefixes are matched in order, so "cat > " precedes "cat ".
var simulations = []struct {
	prefix string
	run    simulated
}{
	{"mkdir -p ", (*MockClient).mkdirAll},
	{"mkdir ", (*MockClient).mkdir},
	{"cat > ", (*MockClient).heredocWrite},
	{"cat ", (*MockClient).cat},
	{"rm -rf ", (*MockClient).rm},
	{"rm -f ", (*MockClient).rm},
	{"test -d ", (*MockClient).testDir},
	{"[ -d ", (*MockClient).testDir},
	{"test -f ", (*MockClient).testFile},
	{"[ -f ", (*MockClient).testFile},
}

func (m *MockClient) simulate(cmd string) ([]byte, []byte, int, error) {
	cmd = strings.TrimSpace(cmd)
	cmd = strings.TrimSuffix(cmd, " 2>/dev/null")
	cmd = strings.TrimSuffix(cmd, " 2>&1")

	for _, s := range simulations {
		if strings.HasPrefix(cmd, s.prefix) {
			args := strings.TrimSuffix(strings.TrimPrefix(cmd, s.prefix), " ]")
			return s.run(m, args)
		}
	}
	return nil, nil, 0, nil
}

func (m *MockClient) mkdirAll(args string) ([]byte, []byte, int, error) {
	path := extractPath(args)
	if err := m.fs.MkdirAll(path); err != nil {
		return nil, []byte("mkdir: " + err.Error()), 1, nil
	}
	return nil, nil, 0, nil
}

// mkdir fails on an existing path or a missing parent, which is what the
// mkdir-based lock relies on.
func (m *MockClient) mkdir(args string) ([]byte, []byte, int, error) {
	path := extractPath(args)
	if path == "" {
		return nil, []byte("mkdir: missing operand"), 1, nil
	}
	if parent := filepath.Dir(path); parent != "/" && parent != "." && !m.fs.IsDir(parent) {
		return nil, []byte(fmt.Sprintf("mkdir: cannot create directory '%s': No such file or directory", path)), 1, nil
	}
	if err := m.fs.Mkdir(path); err != nil {
		return nil, []byte(fmt.Sprintf("mkdir: cannot create directory '%s': File exists", path)), 1, nil
	}
	return nil, nil, 0, nil
}

// heredocWrite handles: cat > "path" << 'MARKER'\n...\nMARKER
func (m *MockClient) heredocWrite(args string) ([]byte, []byte, int, error) {
	target, body, hasHeredoc := strings.Cut(args, "<<")
	path := extractPath(target)
	if path == "" {
		return nil, []byte("cat: missing output file"), 1, nil
	}
	if !hasHeredoc {
		_ = m.fs.WriteFile(path, nil)
		return nil, nil, 0, nil
	}

	header, content, _ := strings.Cut(body, "\n")
	marker := strings.Trim(strings.TrimSpace(header), `'"`)
	if marker != "" {
		content = strings.TrimSuffix(content, marker)
	}
	_ = m.fs.WriteFile(path, []byte(strings.TrimSuffix(content, "\n")))
	return nil, nil, 0, nil
}

func (m *MockClient) cat(args string) ([]byte, []byte, int, error) {
	path := extractPath(args)
	content, err := m.fs.ReadFile(path)
	if err != nil {
		return nil, []byte("cat: " + path + ": No such file or directory"), 1, nil
	}
	return content, nil, 0, nil
}

func (m *MockClient) rm(args string) ([]byte, []byte, int, error) {
	if path := extractPath(args); path != "" {
		_ = m.fs.Remove(path)
	}
	return nil, nil, 0, nil
}

func (m *MockClient) testDir(args string) ([]byte, []byte, int, error) {
	return nil, nil, boolExit(m.fs.IsDir(extractPath(args))), nil
}

func (m *MockClient) testFile(args string) ([]byte, []byte, int, error) {
	return nil, nil, boolExit(m.fs.IsFile(extractPath(args))), nil
}

func boolExit(ok bool) int {
	if ok {
		return 0
	}
	return 1
}

// extractPath returns the first argument, unquoting '...' or "...".
func extractPath(arg string) string {
	arg = strings.TrimSpace(arg)
	for _, q := range []string{`"`, "'"} {
		if strings.HasPrefix(arg, q) {
			if end := strings.Index(arg[1:], q); end != -1 {
				return arg[1 : end+1]
			}
		}
	}
	if fields := strings.Fields(arg); len(fields) > 0 {
		return fields[0]
	}
	return ""
}
