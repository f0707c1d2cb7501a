package host

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rileyhilliard/herd/internal/config"
	"github.com/rileyhilliard/herd/internal/errors"
	"github.com/rileyhilliard/herd/internal/util"
)

// maxRangeSize caps how many tokens a single range may expand to.
const maxRangeSize = 10000

// rangeRe matches one numeric range group like [1-3] or [01-12].
var rangeRe = regexp.MustCompile(`\[(\d+)-(\d+)\]`)

// Pattern is the raw target selection from flags or settings. Each element
// may hold several comma-separated tokens.
type Pattern struct {
	IncludeNames []string
	IncludeRoles []string
	ExcludeNames []string
	ExcludeRoles []string
}

// token is one expanded name or role, remembering whether it came out of a
// range so ambiguity can be handled differently.
type token struct {
	value     string
	fromRange bool
}

// Resolve turns a Pattern into an ordered, deduplicated target list. Order is
// first-seen across names then roles; exclusions are removed last. With no
// inclusion tokens the whole directory is included. An empty result is not
// an error.
func Resolve(p Pattern, dir *config.Directory) ([]*config.Server, error) {
	includeNames, err := expandAll(p.IncludeNames)
	if err != nil {
		return nil, err
	}
	includeRoles, err := expandAll(p.IncludeRoles)
	if err != nil {
		return nil, err
	}
	excludeNames, err := expandAll(p.ExcludeNames)
	if err != nil {
		return nil, err
	}
	excludeRoles, err := expandAll(p.ExcludeRoles)
	if err != nil {
		return nil, err
	}

	var included *serverSet
	if len(includeNames) == 0 && len(includeRoles) == 0 {
		included = newServerSet()
		included.add(dir.Servers()...)
	} else {
		included, err = collect(includeNames, includeRoles, dir)
		if err != nil {
			return nil, err
		}
	}

	excluded, err := collect(excludeNames, excludeRoles, dir)
	if err != nil {
		return nil, err
	}

	out := make([]*config.Server, 0, len(included.order))
	for _, s := range included.order {
		if !excluded.has(s) {
			out = append(out, s)
		}
	}
	return out, nil
}

// collect resolves names then roles into one ordered set.
func collect(names, roles []token, dir *config.Directory) (*serverSet, error) {
	set := newServerSet()
	for _, t := range names {
		servers, err := resolveName(t, dir)
		if err != nil {
			return nil, err
		}
		set.add(servers...)
	}
	for _, t := range roles {
		members, ok := dir.Role(t.value)
		if !ok {
			return nil, patternError(ErrUnknownRole,
				fmt.Sprintf("Unknown role '%s'", t.value),
				util.DidYouMean(t.value, dir.Roles(), "Known roles"))
		}
		set.add(members...)
	}
	return set, nil
}

// resolveName matches a token exactly, then as a prefix of server names.
// A prefix matching several servers is an error unless the token came from
// a range, in which case every match is taken.
func resolveName(t token, dir *config.Directory) ([]*config.Server, error) {
	if s, ok := dir.Lookup(t.value); ok {
		return []*config.Server{s}, nil
	}

	var matches []*config.Server
	for _, s := range dir.Servers() {
		if strings.HasPrefix(s.Name, t.value) {
			matches = append(matches, s)
		}
	}

	switch {
	case len(matches) == 1:
		return matches, nil
	case len(matches) == 0:
		return nil, patternError(ErrUnknownServer,
			fmt.Sprintf("Unknown server '%s'", t.value),
			unknownServerHint(t.value, dir.Names()))
	case t.fromRange:
		return matches, nil
	default:
		names := make([]string, len(matches))
		for i, s := range matches {
			names[i] = s.Name
		}
		return nil, patternError(ErrAmbiguous,
			fmt.Sprintf("'%s' matches more than one server", t.value),
			"Be more specific. Candidates: "+summarize(names))
	}
}

// expandAll splits comma-separated entries and expands ranges.
func expandAll(raw []string) ([]token, error) {
	var out []token
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			expanded, err := ExpandRange(part)
			if err != nil {
				return nil, err
			}
			fromRange := len(expanded) != 1 || expanded[0] != part
			for _, v := range expanded {
				out = append(out, token{value: v, fromRange: fromRange})
			}
		}
	}
	return out, nil
}

// ExpandRange expands every [a-b] group in tok, left to right, as a
// cartesian product. A start bound with a leading zero pads every member to
// its width: web[01-03] gives web01, web02, web03. Tokens without brackets
// come back unchanged.
func ExpandRange(tok string) ([]string, error) {
	locs := rangeRe.FindAllStringSubmatchIndex(tok, -1)

	// Any bracket outside a well-formed group is malformed.
	stripped := rangeRe.ReplaceAllString(tok, "")
	if strings.ContainsAny(stripped, "[]") {
		return nil, patternError(ErrInvalidPattern,
			fmt.Sprintf("Malformed range in '%s'", tok),
			"Ranges look like name[1-5] or name[01-10] with start <= end.")
	}
	if len(locs) == 0 {
		return []string{tok}, nil
	}

	results := []string{""}
	last := 0
	total := 1
	for _, loc := range locs {
		literal := tok[last:loc[0]]
		startStr, endStr := tok[loc[2]:loc[3]], tok[loc[4]:loc[5]]
		last = loc[1]

		start, err1 := strconv.Atoi(startStr)
		end, err2 := strconv.Atoi(endStr)
		if err1 != nil || err2 != nil || start > end {
			return nil, patternError(ErrInvalidPattern,
				fmt.Sprintf("Invalid range [%s-%s] in '%s'", startStr, endStr, tok),
				"The start of a range must not be greater than its end.")
		}
		if end-start >= maxRangeSize || total > maxRangeSize/(end-start+1) {
			return nil, patternError(ErrInvalidPattern,
				fmt.Sprintf("Range in '%s' expands to more than %d names", tok, maxRangeSize),
				"Split the pattern into smaller ranges.")
		}
		total *= end - start + 1

		width := 0
		if len(startStr) > 1 && startStr[0] == '0' {
			width = len(startStr)
		}

		next := make([]string, 0, len(results)*(end-start+1))
		for _, prefix := range results {
			for n := start; n <= end; n++ {
				next = append(next, prefix+literal+fmt.Sprintf("%0*d", width, n))
			}
		}
		results = next
	}

	if tail := tok[last:]; tail != "" {
		for i := range results {
			results[i] += tail
		}
	}
	return results, nil
}

func patternError(sentinel error, message, suggestion string) error {
	return errors.WrapWithCode(sentinel, errors.ErrPattern, message, suggestion)
}

// summarize keeps long server lists readable in error suggestions.
func summarize(names []string) string {
	const max = 10
	if len(names) <= max {
		return util.JoinOrNone(names)
	}
	return util.JoinOrNone(names[:max]) + fmt.Sprintf(" (and %d more)", len(names)-max)
}

// serverSet keeps first-seen order and deduplicates by record identity.
type serverSet struct {
	order []*config.Server
	seen  map[*config.Server]bool
}

func newServerSet() *serverSet {
	return &serverSet{seen: make(map[*config.Server]bool)}
}

func (s *serverSet) add(servers ...*config.Server) {
	for _, srv := range servers {
		if s.seen[srv] {
			continue
		}
		s.seen[srv] = true
		s.order = append(s.order, srv)
	}
}

func (s *serverSet) has(srv *config.Server) bool {
	return s.seen[srv]
}

func unknownServerHint(name string, known []string) string {
	if similar := util.SuggestSimilar(name, known, 3); len(similar) > 0 {
		return "Did you mean: " + summarize(similar) + "?"
	}
	return "Known servers: " + summarize(known)
}
