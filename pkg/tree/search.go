package tree

import (
	"path"
	"regexp"

	"idxengine/pkg/cache"
	"idxengine/pkg/codec"
)

// Match pairs a matching Entry's key with one of its Values, the unit
// Search returns per spec §4.3.
type Match struct {
	Key   codec.Key
	Value Value
}

// SearchResult is the decoded shape spec §4.3 names: `{entries, keys,
// valueCount, keyCount}`.
type SearchResult struct {
	Matches    []Match
	KeyCount   int
	ValueCount int
}

// SearchOptions carries the operands `search(op, val, include)` needs
// beyond the operator itself.
type SearchOptions struct {
	Value      codec.Key   // for <,<=,>,>=,==,!=,like,!like,matches,!matches
	LowerBound codec.Key   // for between/!between
	UpperBound codec.Key   // for between/!between
	Set        []codec.Key // for in/!in
	Pattern    *regexp.Regexp
	// Filter intersects results by record pointer without altering tree
	// reads (spec: "include.filter lets a caller intersect results by
	// record-pointer without altering tree reads").
	Filter func(codec.RecordPointer) bool
}

// Search implements spec §4.3's `search(op, val, include)`.
func (t *Tree) Search(op Operator, opts SearchOptions) (*SearchResult, error) {
	switch op {
	case OpEq:
		return t.rangeScan(opts.Value, opts.Value, true, true, opts)
	case OpLt:
		return t.fullScan(opts, func(k codec.Key) bool {
			return codec.Compare(k, opts.Value, t.opts.CaseSensitive) < 0
		})
	case OpLte:
		return t.rangeScan(codec.Key{}, opts.Value, false, true, opts)
	case OpGt:
		return t.rangeScan(opts.Value, codec.Key{}, false, false, opts)
	case OpGte:
		return t.rangeScan(opts.Value, codec.Key{}, true, false, opts)
	case OpBetween:
		return t.rangeScan(opts.LowerBound, opts.UpperBound, true, true, opts)
	case OpNeq:
		return t.fullScan(opts, func(k codec.Key) bool {
			return codec.Compare(k, opts.Value, t.opts.CaseSensitive) != 0
		})
	case OpNotBetween:
		return t.fullScan(opts, func(k codec.Key) bool {
			return codec.Compare(k, opts.LowerBound, t.opts.CaseSensitive) < 0 ||
				codec.Compare(k, opts.UpperBound, t.opts.CaseSensitive) > 0
		})
	case OpIn:
		return t.fullScan(opts, func(k codec.Key) bool { return containsKey(opts.Set, k, t.opts.CaseSensitive) })
	case OpNotIn:
		return t.fullScan(opts, func(k codec.Key) bool { return !containsKey(opts.Set, k, t.opts.CaseSensitive) })
	case OpLike:
		return t.fullScan(opts, func(k codec.Key) bool { return globMatch(opts.Value.Str, k.Str) })
	case OpNotLike:
		return t.fullScan(opts, func(k codec.Key) bool { return !globMatch(opts.Value.Str, k.Str) })
	case OpMatches:
		return t.fullScan(opts, func(k codec.Key) bool { return opts.Pattern != nil && opts.Pattern.MatchString(k.Str) })
	case OpNotMatches:
		return t.fullScan(opts, func(k codec.Key) bool { return opts.Pattern == nil || !opts.Pattern.MatchString(k.Str) })
	case OpExists:
		return t.fullScan(opts, func(k codec.Key) bool { return k.Tag != codec.TagUndefined })
	case OpNotExists:
		return t.fullScan(opts, func(k codec.Key) bool { return k.Tag == codec.TagUndefined })
	default:
		return nil, errUnsupportedOperator(op)
	}
}

func containsKey(set []codec.Key, k codec.Key, cs bool) bool {
	for _, s := range set {
		if codec.Compare(s, k, cs) == 0 {
			return true
		}
	}
	return false
}

// globMatch implements spec's `like`/`!like` glob: `*` any run, `?` one.
func globMatch(pattern, s string) bool {
	ok, err := path.Match(globToPathPattern(pattern), s)
	if err != nil {
		return false
	}
	return ok
}

// globToPathPattern escapes path.Match's `[`/`]` special meaning (not
// part of spec's glob dialect, which is only `*`/`?`) so a literal
// bracket in an indexed string doesn't accidentally act as a character
// class.
func globToPathPattern(p string) string {
	out := make([]byte, 0, len(p)*2)
	for i := 0; i < len(p); i++ {
		if p[i] == '[' || p[i] == ']' {
			out = append(out, '\\')
		}
		out = append(out, p[i])
	}
	return string(out)
}

// rangeScan walks the leaf chain starting at the leaf containing lower
// (or the leftmost leaf if lower is undefined), stopping once upper is
// exceeded.
func (t *Tree) rangeScan(lower, upper codec.Key, lowerInclusive, hasUpper bool, opts SearchOptions) (*SearchResult, error) {
	var startEntry *cache.Entry[*node]
	var err error

	if lower.Tag != codec.TagUndefined {
		startEntry, err = t.findLeaf(lower, cache.READ)
	} else {
		startEntry, err = t.leftmostLeaf()
	}
	if err != nil {
		return nil, err
	}

	res := &SearchResult{}
	addr := startEntry.Get().addr
	t.cache.Unlock(startEntry, cache.READ)

	for addr != nilPtr {
		e, err := t.cache.GetF(addr, cache.READ)
		if err != nil {
			return nil, err
		}
		n := e.Get()

		for _, entry := range n.entries {
			if lower.Tag != codec.TagUndefined {
				c := codec.Compare(entry.Key, lower, t.opts.CaseSensitive)
				if c < 0 || (c == 0 && !lowerInclusive) {
					continue
				}
			}
			if hasUpper {
				c := codec.Compare(entry.Key, upper, t.opts.CaseSensitive)
				if c > 0 {
					t.cache.Unlock(e, cache.READ)
					return res, nil
				}
			}
			appendMatches(res, entry, opts.Filter)
		}

		next := n.next
		t.cache.Unlock(e, cache.READ)
		addr = next
	}

	return res, nil
}

// fullScan walks the entire leaf chain, keeping entries keep(key) accepts
// (used by <, !=, !in, like, matches, exists and their negations — spec:
// "!= and !in scan the full leaf chain minus the match").
func (t *Tree) fullScan(opts SearchOptions, keep func(codec.Key) bool) (*SearchResult, error) {
	res := &SearchResult{}

	e, err := t.leftmostLeaf()
	if err != nil {
		return nil, err
	}
	addr := e.Get().addr
	t.cache.Unlock(e, cache.READ)

	for addr != nilPtr {
		ce, err := t.cache.GetF(addr, cache.READ)
		if err != nil {
			return nil, err
		}
		n := ce.Get()

		for _, entry := range n.entries {
			if keep(entry.Key) {
				appendMatches(res, entry, opts.Filter)
			}
		}

		next := n.next
		t.cache.Unlock(ce, cache.READ)
		addr = next
	}

	return res, nil
}

func appendMatches(res *SearchResult, entry Entry, filter func(codec.RecordPointer) bool) {
	matched := 0
	for _, v := range entry.Values {
		if filter != nil && !filter(v.Pointer) {
			continue
		}
		res.Matches = append(res.Matches, Match{Key: entry.Key, Value: v})
		matched++
	}
	if matched > 0 {
		res.KeyCount++
		res.ValueCount += matched
	}
}

func errUnsupportedOperator(op Operator) error {
	return &unsupportedOperatorError{op}
}

type unsupportedOperatorError struct{ op Operator }

func (e *unsupportedOperatorError) Error() string {
	return "tree: unsupported operator " + string(e.op)
}
