package query

import (
	"slices"
	"strings"

	"github.com/jcdickinson/symdex/internal/shard"
	"github.com/jcdickinson/symdex/internal/symtab"
)

// Match is one lookup result.
type Match struct {
	DisplayName   string            `json:"display_name"`
	QualifiedName string            `json:"qualified_name"`
	Scope         string            `json:"scope,omitempty"`
	SymbolID      symtab.ID         `json:"id"`
	Kind          symtab.Kind       `json:"kind"`
	Locations     []symtab.Location `json:"locations"`
}

// LookupOptions narrows a lookup.
type LookupOptions struct {
	Kinds []symtab.Kind
	Limit int
}

// Matcher holds a normalized prefix query. The same matching rules apply to
// in-memory shards and to shard files loaded on demand.
type Matcher struct {
	prefix string
	key    string
	scoped bool
	scopeQ string
}

// NewMatcher prepares text for matching. It reports false for an empty
// query. A query such as "A::B" is scoped: the display name must start
// with "b" and the entry's scope must be "a" or end in "::a".
func NewMatcher(text string, keyFn shard.KeyFunc) (Matcher, bool) {
	text = strings.TrimPrefix(strings.TrimSpace(text), "::")
	if text == "" {
		return Matcher{}, false
	}
	if keyFn == nil {
		keyFn = shard.DefaultKey
	}
	scope, last := lastComponent(text)
	m := Matcher{
		prefix: shard.Normalize(last),
		key:    keyFn(last),
		scoped: len(scope) > 0,
	}
	if m.scoped {
		m.scopeQ = shard.Normalize(strings.Join(scope, "::"))
	}
	return m, true
}

// Prefix is the normalized display-name prefix being searched for.
func (m Matcher) Prefix() string {
	return m.prefix
}

// Related reports whether the shard with the given key can hold matches.
func (m Matcher) Related(key string) bool {
	return shard.Related(key, m.prefix, m.key)
}

// Match reports whether an entry with the given normalized display name
// and scope matches. Members of nested scopes do not match a scoped query.
func (m Matcher) Match(normalized, scope string) bool {
	if !strings.HasPrefix(normalized, m.prefix) {
		return false
	}
	if !m.scoped {
		return true
	}
	s := shard.Normalize(scope)
	return s == m.scopeQ || strings.HasSuffix(s, "::"+m.scopeQ)
}

// Scan calls fn for every matching entry of a sorted shard, using binary
// search to skip entries before the prefix. fn returns false to stop.
func (m Matcher) Scan(entries []shard.Entry, fn func(shard.Entry) bool) {
	start, _ := slices.BinarySearchFunc(entries, m.prefix, func(e shard.Entry, p string) int {
		return strings.Compare(e.Normalized, p)
	})
	for _, e := range entries[start:] {
		if !strings.HasPrefix(e.Normalized, m.prefix) {
			return
		}
		if m.Match(e.Normalized, e.Scope) && !fn(e) {
			return
		}
	}
}

// LookupByPrefix returns every symbol whose display name starts with text
// (after normalization), ordered like the shards. No match yields an empty
// result, never an error.
func (ix *Index) LookupByPrefix(text string) []Match {
	return ix.Lookup(text, LookupOptions{})
}

// Lookup is LookupByPrefix with kind filtering and a result limit.
func (ix *Index) Lookup(text string, opts LookupOptions) []Match {
	if ix == nil {
		return nil
	}
	m, ok := NewMatcher(text, ix.keyFn)
	if !ok {
		return nil
	}
	var kinds map[symtab.Kind]bool
	if len(opts.Kinds) > 0 {
		kinds = make(map[symtab.Kind]bool, len(opts.Kinds))
		for _, k := range opts.Kinds {
			kinds[k] = true
		}
	}

	var hits []shard.Entry
	for _, key := range ix.shards.Keys() {
		if !m.Related(key) {
			continue
		}
		sh, _ := ix.shards.Get(key)
		m.Scan(sh.Entries, func(e shard.Entry) bool {
			if kinds == nil || kinds[e.Kind] {
				hits = append(hits, e)
			}
			return true
		})
	}
	slices.SortFunc(hits, shard.CompareEntries)
	if opts.Limit > 0 && len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}

	out := make([]Match, len(hits))
	for i, e := range hits {
		out[i] = MatchOf(e)
	}
	return out
}

// MatchOf converts a shard entry into a lookup result.
func MatchOf(e shard.Entry) Match {
	return Match{
		DisplayName:   e.DisplayName,
		QualifiedName: e.QualifiedName,
		Scope:         e.Scope,
		SymbolID:      e.SymbolID,
		Kind:          e.Kind,
		Locations:     e.Locations,
	}
}
