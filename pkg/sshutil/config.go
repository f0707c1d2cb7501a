package sshutil

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/kevinburke/ssh_config"
)

// HostEntry is one concrete Host alias from an OpenSSH client config.
type HostEntry struct {
	Alias        string
	Hostname     string
	User         string
	Port         int // 0 when the config leaves it unset
	IdentityFile string
}

// ParseSSHConfig reads ~/.ssh/config. See ParseSSHConfigFile.
func ParseSSHConfig() ([]HostEntry, error) {
	return ParseSSHConfigFile(filepath.Join(homeDir(), ".ssh", "config"))
}

// ParseSSHConfigFile returns the concrete aliases declared in configPath,
// sorted by alias. Wildcard patterns are skipped and an alias declared twice
// keeps its first block. A missing file yields no entries and no error.
func ParseSSHConfigFile(configPath string) ([]HostEntry, error) {
	content, _, err := preprocessSSHConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	cfg, err := ssh_config.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}

	var entries []HostEntry
	seen := make(map[string]bool)
	for _, block := range cfg.Hosts {
		for _, pattern := range block.Patterns {
			alias := pattern.String()
			if strings.ContainsAny(alias, "*?") || seen[alias] {
				continue
			}
			seen[alias] = true
			entries = append(entries, entryFor(cfg, alias))
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Alias < entries[j].Alias
	})
	return entries, nil
}

func entryFor(cfg *ssh_config.Config, alias string) HostEntry {
	get := func(key string) string {
		v, _ := cfg.Get(alias, key)
		return v
	}

	e := HostEntry{
		Alias:    alias,
		Hostname: get("HostName"),
		User:     get("User"),
	}
	if p, err := strconv.Atoi(get("Port")); err == nil {
		e.Port = p
	}
	if id := get("IdentityFile"); id != "" {
		e.IdentityFile = expandPath(id)
	}
	return e
}
