package lock

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/herd/internal/util"
	"github.com/rileyhilliard/herd/pkg/sshutil"
)

const infoFileName = "info.json"

// store is the filesystem a lock directory lives on. mkdir must be atomic:
// it reports created=false without error when the directory already exists.
type store interface {
	prepare(parent string) error
	mkdir(path string) (created bool, err error)
	writeInfo(path string, data []byte) error
	readInfo(path string) ([]byte, error)
	remove(path string) error
}

// localStore keeps locks on the control node.
type localStore struct{}

func (localStore) prepare(parent string) error {
	return os.MkdirAll(parent, 0o755)
}

func (localStore) mkdir(path string) (bool, error) {
	err := os.Mkdir(path, 0o755)
	if err == nil {
		return true, nil
	}
	if stderrors.Is(err, os.ErrExist) {
		return false, nil
	}
	return false, err
}

func (localStore) writeInfo(path string, data []byte) error {
	return os.WriteFile(filepath.Join(path, infoFileName), data, 0o644)
}

func (localStore) readInfo(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(path, infoFileName))
}

func (localStore) remove(path string) error {
	return os.RemoveAll(path)
}

// quote makes a remote path literal for the shell, leaving a leading ~/ to
// expand to the login user's home.
func quote(path string) string {
	return util.ShellQuotePreserveTilde(path)
}

// remoteStore keeps locks on a target host through shell commands.
type remoteStore struct {
	client sshutil.SSHClient
}

func (s remoteStore) prepare(parent string) error {
	_, stderr, exitCode, err := s.client.Exec("mkdir -p " + quote(parent))
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("mkdir -p %s: %s", parent, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (s remoteStore) mkdir(path string) (bool, error) {
	// mkdir fails if the directory exists, which is the atomic primitive.
	_, _, exitCode, err := s.client.Exec("mkdir " + quote(path) + " 2>/dev/null")
	if err != nil {
		return false, err
	}
	if exitCode == 0 {
		return true, nil
	}

	// Tell contention apart from permission or disk problems.
	_, _, exitCode, err = s.client.Exec("test -d " + quote(path))
	if err != nil {
		return false, err
	}
	if exitCode == 0 {
		return false, nil
	}
	return false, fmt.Errorf("cannot create %s", path)
}

func (s remoteStore) writeInfo(path string, data []byte) error {
	infoFile := filepath.Join(path, infoFileName)
	writeCmd := fmt.Sprintf("cat > %s << 'LOCKINFO'\n%s\nLOCKINFO", quote(infoFile), string(data))
	_, stderr, exitCode, err := s.client.Exec(writeCmd)
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("write %s: %s", infoFile, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (s remoteStore) readInfo(path string) ([]byte, error) {
	infoFile := filepath.Join(path, infoFileName)
	stdout, _, exitCode, err := s.client.Exec("cat " + quote(infoFile) + " 2>/dev/null")
	if err != nil {
		return nil, err
	}
	if exitCode != 0 {
		return nil, os.ErrNotExist
	}
	return stdout, nil
}

func (s remoteStore) remove(path string) error {
	_, stderr, exitCode, err := s.client.Exec("rm -rf " + quote(path))
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("rm %s: %s", path, strings.TrimSpace(string(stderr)))
	}
	return nil
}
