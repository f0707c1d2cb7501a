package host

import (
	"fmt"
	"testing"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDir(t *testing.T, servers ...config.Server) *config.Directory {
	t.Helper()
	d, err := config.NewDirectory(servers)
	require.NoError(t, err)
	return d
}

// clusterDir is web1..web3 (role web) plus db1 (role db).
func clusterDir(t *testing.T) *config.Directory {
	return newDir(t,
		config.Server{Name: "web1", Roles: []string{"web"}},
		config.Server{Name: "web2", Roles: []string{"web"}},
		config.Server{Name: "web3", Roles: []string{"web"}},
		config.Server{Name: "db1", Roles: []string{"db"}},
	)
}

func names(servers []*config.Server) []string {
	out := make([]string, len(servers))
	for i, s := range servers {
		out[i] = s.Name
	}
	return out
}

func TestResolve_RoleMinusExcludedName(t *testing.T) {
	got, err := Resolve(Pattern{
		IncludeRoles: []string{"web"},
		ExcludeNames: []string{"web2"},
	}, clusterDir(t))

	require.NoError(t, err)
	assert.Equal(t, []string{"web1", "web3"}, names(got))
}

func TestResolve_EmptyIncludesMeansEverything(t *testing.T) {
	dir := clusterDir(t)

	got, err := Resolve(Pattern{}, dir)
	require.NoError(t, err)
	assert.Equal(t, dir.Names(), names(got))

	got, err = Resolve(Pattern{ExcludeRoles: []string{"web"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"db1"}, names(got))
}

func TestResolve_FirstSeenOrderAndDedupe(t *testing.T) {
	got, err := Resolve(Pattern{
		IncludeNames: []string{"db1", "web3,web1", "db1"},
		IncludeRoles: []string{"web", "db"},
	}, clusterDir(t))

	require.NoError(t, err)
	assert.Equal(t, []string{"db1", "web3", "web1", "web2"}, names(got))
}

func TestResolve_ExcludeEverything(t *testing.T) {
	got, err := Resolve(Pattern{
		IncludeRoles: []string{"db"},
		ExcludeNames: []string{"db1"},
	}, clusterDir(t))

	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestResolve_Abbreviation(t *testing.T) {
	dir := newDir(t,
		config.Server{Name: "app-frontend"},
		config.Server{Name: "app-backend"},
		config.Server{Name: "db-primary"},
	)

	got, err := Resolve(Pattern{IncludeNames: []string{"db"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"db-primary"}, names(got))

	got, err = Resolve(Pattern{IncludeNames: []string{"app-f"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"app-frontend"}, names(got))

	_, err = Resolve(Pattern{IncludeNames: []string{"app"}}, dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAmbiguous)
	assert.True(t, errors.IsCode(err, errors.ErrPattern))
	assert.Contains(t, err.Error(), "app-frontend")
}

func TestResolve_ExactBeatsPrefix(t *testing.T) {
	dir := newDir(t, config.Server{Name: "web1"}, config.Server{Name: "web10"})

	got, err := Resolve(Pattern{IncludeNames: []string{"web1"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"web1"}, names(got))
}

func TestResolve_RangeTakesEveryPrefixMatch(t *testing.T) {
	dir := newDir(t,
		config.Server{Name: "node1a"},
		config.Server{Name: "node1b"},
		config.Server{Name: "node2"},
	)

	got, err := Resolve(Pattern{IncludeNames: []string{"node[1-2]"}}, dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"node1a", "node1b", "node2"}, names(got))
}

func TestResolve_Errors(t *testing.T) {
	tests := []struct {
		name     string
		pattern  Pattern
		sentinel error
	}{
		{"unknown server", Pattern{IncludeNames: []string{"cache1"}}, ErrUnknownServer},
		{"unknown role", Pattern{IncludeRoles: []string{"cache"}}, ErrUnknownRole},
		{"unknown excluded server", Pattern{ExcludeNames: []string{"zzz"}}, ErrUnknownServer},
		{"unknown excluded role", Pattern{ExcludeRoles: []string{"zzz"}}, ErrUnknownRole},
		{"reversed range", Pattern{IncludeNames: []string{"web[3-1]"}}, ErrInvalidPattern},
		{"unclosed bracket", Pattern{IncludeNames: []string{"web[1-3"}}, ErrInvalidPattern},
		{"non-numeric range", Pattern{IncludeNames: []string{"web[a-c]"}}, ErrInvalidPattern},
		{"range past known servers", Pattern{IncludeNames: []string{"web[1-4]"}}, ErrUnknownServer},
		{"ambiguous", Pattern{IncludeNames: []string{"web"}}, ErrAmbiguous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve(tt.pattern, clusterDir(t))
			require.Error(t, err)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.True(t, errors.IsCode(err, errors.ErrPattern))
		})
	}
}

func TestResolve_UnknownNameHints(t *testing.T) {
	_, err := Resolve(Pattern{IncludeNames: []string{"wbe1"}}, clusterDir(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean: web1?")

	_, err = Resolve(Pattern{IncludeNames: []string{"cache1"}}, clusterDir(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Known servers: web1, web2, web3, db1")

	_, err = Resolve(Pattern{IncludeRoles: []string{"wev"}}, clusterDir(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Did you mean: web?")
}

// For every include/exclude combination over a small inventory, the result
// never holds an excluded server and never holds duplicates.
func TestResolve_NeverExcludedNeverDuplicated(t *testing.T) {
	dir := newDir(t,
		config.Server{Name: "a1", Roles: []string{"x", "y"}},
		config.Server{Name: "a2", Roles: []string{"x"}},
		config.Server{Name: "b1", Roles: []string{"y"}},
		config.Server{Name: "b2", Roles: []string{"z"}},
	)
	nameOpts := [][]string{nil, {"a1"}, {"a[1-2]"}, {"b1,a1"}, {"b2", "b2"}}
	roleOpts := [][]string{nil, {"x"}, {"y"}, {"x,y"}, {"z", "x"}}

	for _, in := range nameOpts {
		for _, ir := range roleOpts {
			for _, en := range nameOpts {
				for _, er := range roleOpts {
					p := Pattern{IncludeNames: in, IncludeRoles: ir, ExcludeNames: en, ExcludeRoles: er}
					got, err := Resolve(p, dir)
					require.NoError(t, err, "%+v", p)

					excluded, err := Resolve(Pattern{IncludeNames: en, IncludeRoles: er}, dir)
					require.NoError(t, err)
					if len(en) == 0 && len(er) == 0 {
						excluded = nil
					}

					seen := map[string]bool{}
					for _, s := range got {
						assert.False(t, seen[s.Name], "duplicate %s for %+v", s.Name, p)
						seen[s.Name] = true
						for _, ex := range excluded {
							assert.NotEqual(t, ex.Name, s.Name, "excluded host leaked for %+v", p)
						}
					}
				}
			}
		}
	}
}

func TestExpandRange(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"web1", []string{"web1"}},
		{"web[1-3]", []string{"web1", "web2", "web3"}},
		{"web[2-2]", []string{"web2"}},
		{"web[01-03]", []string{"web01", "web02", "web03"}},
		{"web[08-10]", []string{"web08", "web09", "web10"}},
		{"web[9-11].dc", []string{"web9.dc", "web10.dc", "web11.dc"}},
		{"r[1-2]n[1-2]", []string{"r1n1", "r1n2", "r2n1", "r2n2"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandRange(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// Every valid range [a-b] yields exactly b-a+1 distinct tokens.
func TestExpandRange_Count(t *testing.T) {
	for a := 0; a <= 12; a++ {
		for b := a; b <= 25; b++ {
			got, err := ExpandRange(fmt.Sprintf("h[%d-%d]", a, b))
			require.NoError(t, err)
			require.Len(t, got, b-a+1)

			distinct := map[string]bool{}
			for i, tok := range got {
				assert.Equal(t, fmt.Sprintf("h%d", a+i), tok)
				distinct[tok] = true
			}
			assert.Len(t, distinct, b-a+1)
		}
	}
}

func TestExpandRange_Invalid(t *testing.T) {
	for _, in := range []string{"h[5-1]", "h[1-]", "h[-1]", "h]", "h[1-2", "h[1-2]]", "h[0-99999]",
		"web[0-9223372036854775807]", "r[1-2]n[0-4611686018427387904]", "h[1-100]x[1-100]y[1-2]",
	} {
		_, err := ExpandRange(in)
		assert.ErrorIs(t, err, ErrInvalidPattern, in)
	}
}
