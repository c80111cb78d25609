// Package pathmap translates file paths between the remote player's namespace
// (Windows paths inside a Wine prefix) and the local filesystem.
package pathmap

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Rule maps paths starting with From onto To.
type Rule struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Tables holds the two rule tables, tried in order: Music then Other.
type Tables struct {
	Music []Rule
	Other []Rule
}

// Normalize converts every backslash to a forward slash.
func Normalize(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}

// MapPath maps input with the first matching rule of the first table that
// matches. Prefixes are compared case-insensitively and the remainder is
// kept verbatim. Without a match input is returned unchanged. The rules must
// already be resolved and normalized.
func MapPath(input string, tables ...[]Rule) (string, bool) {
	norm := Normalize(input)
	for _, table := range tables {
		for _, r := range table {
			if hasPrefixFold(norm, r.From) {
				return r.To + norm[len(r.From):], true
			}
		}
	}
	return input, false
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

type resolved struct {
	music []Rule
	other []Rule
}

// Translator applies resolved rule tables. It is safe for concurrent use;
// Swap replaces the tables atomically.
type Translator struct {
	current atomic.Pointer[resolved]
	warned  sync.Map
}

// NewTranslator resolves the tables with vars. Rules that cannot be resolved
// are dropped and reported in the returned error; the translator is usable
// either way.
func NewTranslator(tables Tables, vars Vars) (*Translator, error) {
	t := &Translator{}
	err := t.Swap(tables, vars)
	return t, err
}

// Swap resolves new tables and installs them in one step.
func (t *Translator) Swap(tables Tables, vars Vars) error {
	music, errMusic := resolve(tables.Music, vars)
	other, errOther := resolve(tables.Other, vars)
	t.current.Store(&resolved{music: music, other: other})
	return errors.Join(errMusic, errOther)
}

func resolve(rules []Rule, vars Vars) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	var errs []error
	for i, r := range rules {
		from, err := Expand(r.From, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		to, err := Expand(r.To, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %d: %w", i, err))
			continue
		}
		if from == "" {
			errs = append(errs, fmt.Errorf("rule %d: empty from prefix", i))
			continue
		}
		out = append(out, Rule{From: Normalize(from), To: to})
	}
	return out, errors.Join(errs...)
}

// Lookup maps a remote path to a local one and reports whether a rule matched.
func (t *Translator) Lookup(remote string) (string, bool) {
	r := t.current.Load()
	return MapPath(remote, r.music, r.other)
}

// Map maps a remote path to a local one. Unmatched paths are returned
// unchanged, with one warning per parent directory.
func (t *Translator) Map(remote string) string {
	local, ok := t.Lookup(remote)
	if !ok {
		dir := path.Dir(Normalize(remote))
		if _, seen := t.warned.LoadOrStore(dir, struct{}{}); !seen {
			log.Warn().Str("prefix", dir).Msg("No path mapping rule matches, passing path through")
		}
	}
	return local
}

// ToRemote maps a local path back into the remote namespace. Without a
// matching rule the path is exposed through Wine's Z: drive.
func (t *Translator) ToRemote(local string) string {
	r := t.current.Load()
	for _, table := range [][]Rule{r.music, r.other} {
		for _, rule := range table {
			if rule.To != "" && strings.HasPrefix(local, rule.To) {
				return rule.From + local[len(rule.To):]
			}
		}
	}
	return "Z:" + local
}
