package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDirectory(t *testing.T) {
	d, err := NewDirectory([]Server{
		{Name: "web1", Roles: []string{"web"}},
		{Name: "web2", Roles: []string{"web", "web"}},
		{Name: "db1", Roles: []string{"db"}},
		{Name: "bastion"},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, d.Len())
	assert.Equal(t, []string{"web1", "web2", "db1", "bastion"}, d.Names())
	assert.Equal(t, []string{"db", "web"}, d.Roles())

	web, ok := d.Role("web")
	require.True(t, ok)
	require.Len(t, web, 2)
	assert.Equal(t, "web1", web[0].Name)
	assert.Equal(t, "web2", web[1].Name)

	_, ok = d.Role("cache")
	assert.False(t, ok)

	s, ok := d.Lookup("db1")
	require.True(t, ok)
	assert.Equal(t, "db1", s.Name)

	_, ok = d.Lookup("db")
	assert.False(t, ok, "lookup is exact only")
}

func TestNewDirectory_SharesRecords(t *testing.T) {
	d, err := NewDirectory([]Server{{Name: "web1", Roles: []string{"web"}}})
	require.NoError(t, err)

	byName, _ := d.Lookup("web1")
	byRole, _ := d.Role("web")
	all := d.Servers()

	assert.Same(t, byName, byRole[0])
	assert.Same(t, byName, all[0])
}

func TestNewDirectory_Duplicate(t *testing.T) {
	_, err := NewDirectory([]Server{{Name: "a"}, {Name: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "more than once")
}

func TestDirectory_ServersIsACopy(t *testing.T) {
	d, err := NewDirectory([]Server{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)

	s := d.Servers()
	s[0] = nil
	assert.NotNil(t, d.Servers()[0])
}
