package sshutil

import (
	"fmt"
	"io"
	"os"
	"path"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/herd/internal/errors"
)

// Upload copies r to remotePath over SFTP, creating parent directories and
// truncating any existing file. A fresh SFTP subsystem is opened per call so
// concurrent uploads on one connection don't share state.
func (c *Client) Upload(r io.Reader, remotePath string) error {
	sc, err := sftp.NewClient(c.Client)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't start SFTP on '%s'", c.Host),
			"Make sure the sftp subsystem is enabled in sshd_config.")
	}
	defer sc.Close()

	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := sc.MkdirAll(dir); err != nil {
			return errors.WrapWithCode(err, errors.ErrSSH,
				fmt.Sprintf("Couldn't create %s on '%s'", dir, c.Host),
				"Check the remote user can write there.")
		}
	}

	f, err := sc.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't open %s on '%s'", remotePath, c.Host),
			"Check the remote user can write there.")
	}
	defer f.Close()

	if _, err := f.ReadFrom(r); err != nil {
		return errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Upload to %s on '%s' was cut short", remotePath, c.Host),
			"The connection may have dropped. Re-run for this host.")
	}
	return nil
}
