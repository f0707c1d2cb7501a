package config

import (
	"fmt"
	"sort"

	"github.com/rileyhilliard/herd/internal/errors"
)

// Directory is the read-only server inventory for one run, with a role
// index built once at construction. It is shared by pool workers without
// locking, so nothing may mutate it after NewDirectory returns.
type Directory struct {
	servers []*Server
	byName  map[string]*Server
	roles   map[string][]*Server
}

// NewDirectory indexes servers by name and role. Server records are copied
// once here; every later lookup hands out pointers into that copy.
func NewDirectory(servers []Server) (*Directory, error) {
	d := &Directory{
		servers: make([]*Server, 0, len(servers)),
		byName:  make(map[string]*Server, len(servers)),
		roles:   make(map[string][]*Server),
	}

	for i := range servers {
		s := servers[i]
		if _, dup := d.byName[s.Name]; dup {
			return nil, errors.New(errors.ErrConfig,
				fmt.Sprintf("Server '%s' is defined more than once", s.Name),
				"Server names must be unique. Rename or remove the duplicate.")
		}
		s.Roles = dedupe(s.Roles)
		d.servers = append(d.servers, &s)
		d.byName[s.Name] = &s
		for _, role := range s.Roles {
			d.roles[role] = append(d.roles[role], &s)
		}
	}

	return d, nil
}

// Servers returns all servers in inventory order.
func (d *Directory) Servers() []*Server {
	out := make([]*Server, len(d.servers))
	copy(out, d.servers)
	return out
}

// Len returns the number of servers.
func (d *Directory) Len() int {
	return len(d.servers)
}

// Lookup finds a server by exact name.
func (d *Directory) Lookup(name string) (*Server, bool) {
	s, ok := d.byName[name]
	return s, ok
}

// Role returns the members of a role in inventory order.
func (d *Directory) Role(role string) ([]*Server, bool) {
	members, ok := d.roles[role]
	if !ok {
		return nil, false
	}
	out := make([]*Server, len(members))
	copy(out, members)
	return out, true
}

// Names returns all server names in inventory order.
func (d *Directory) Names() []string {
	names := make([]string, len(d.servers))
	for i, s := range d.servers {
		names[i] = s.Name
	}
	return names
}

// Roles returns all role labels, sorted.
func (d *Directory) Roles() []string {
	roles := make([]string, 0, len(d.roles))
	for r := range d.roles {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	return roles
}

func dedupe(items []string) []string {
	if len(items) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		if seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out
}
