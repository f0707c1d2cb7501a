package config

import (
	"context"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/rileyhilliard/herd/pkg/sshutil"
)

// SSHConfigLoader builds an inventory from the concrete Host entries of an
// OpenSSH client config. sshconfig: reads ~/.ssh/config; sshconfig:///path
// reads another file. A roles query parameter maps alias prefixes to roles,
// e.g. ?roles=web:web-,db:db- gives every alias starting with "web-" the
// role "web".
type SSHConfigLoader struct{}

// Load parses the ssh config file named by uri.
func (SSHConfigLoader) Load(_ context.Context, uri *url.URL) (*Config, error) {
	path := FilePath(uri)

	var (
		entries []sshutil.HostEntry
		err     error
	)
	if path == "" {
		entries, err = sshutil.ParseSSHConfig()
		path = filepath.Join("~", ".ssh", "config")
	} else {
		entries, err = sshutil.ParseSSHConfigFile(path)
	}
	if err != nil {
		return nil, loadFailed(err,
			"Couldn't parse SSH config "+path,
			"Check the file with: ssh -G <host>")
	}

	rolePrefixes := parseRolePrefixes(uri.Query().Get("roles"))

	cfg := DefaultConfig()
	for _, e := range entries {
		s := Server{
			// Dial by alias so the ssh config keeps supplying HostName and keys.
			Name:    e.Alias,
			Address: e.Alias,
			User:    e.User,
			Port:    e.Port,
		}
		for role, prefix := range rolePrefixes {
			if strings.HasPrefix(e.Alias, prefix) {
				s.Roles = append(s.Roles, role)
			}
		}
		cfg.Servers = append(cfg.Servers, s)
	}

	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseRolePrefixes(spec string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(spec, ",") {
		role, prefix, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || role == "" || prefix == "" {
			continue
		}
		out[role] = prefix
	}
	return out
}
