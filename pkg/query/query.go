package query

import (
	"context"
	"strings"
	"time"

	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/index"
	"idxengine/pkg/index/array"
	"idxengine/pkg/index/fulltext"
	"idxengine/pkg/index/geo"
	"idxengine/pkg/pager"
	"idxengine/pkg/tree"
	"idxengine/util/logger"
	"idxengine/util/timer"
)

// Filter is spec §6's optional `query(op, val, {filter?})` argument: a
// post-hoc predicate over record pointers plus the label the returned
// ResultSet reports as `filter_key`. It never touches the cache key —
// the cache stores the unfiltered tree result and every caller filters
// its own copy (spec §4.8 says nothing about filter scoping the cache).
type Filter struct {
	Key  string
	Func func(codec.RecordPointer) bool
}

// Engine is one index's query front-end: spec §6's `query`/`count`/
// `take`/`build`/`rebuild`, backed by the per-index Cache and IndexLock
// (spec §4.8/§5).
type Engine struct {
	Name  string
	Tree  *tree.Tree
	Index index.Capability
	Cache *Cache
	Locks *IndexLock

	// BuildFunc runs the full external build pipeline (pkg/build.Run)
	// bound to this engine's primary-store path and projector; nil if
	// this index was only ever opened for queries, never (re)built here.
	BuildFunc func(ctx context.Context) error

	sweepStop func()
}

// New wires a query Engine around an already-open tree and its index
// Capability.
func New(name string, t *tree.Tree, capability index.Capability, cache *Cache) *Engine {
	return &Engine{Name: name, Tree: t, Index: capability, Cache: cache, Locks: NewIndexLock()}
}

// StartSweep runs a periodic housekeeping tick (spec §9's "single timer
// wheel per index"); ristretto's own TTL bookkeeping expires entries
// without this, so the tick exists only to surface cache occupancy via
// structured logging on the interval config.QueryConfig.SweepIntervalSeconds
// names.
func (e *Engine) StartSweep(interval time.Duration) {
	ticker := timer.SetInterval(interval, func() {
		logger.L.WithField("index", e.Name).Debug("query cache: sweep tick")
	})
	e.sweepStop = ticker.Stop
}

// StopSweep halts the housekeeping tick started by StartSweep, if any.
func (e *Engine) StopSweep() {
	if e.sweepStop != nil {
		e.sweepStop()
	}
}

func cacheKeyFor(op tree.Operator, args []codec.Key) (string, error) {
	var b strings.Builder
	b.WriteString(string(op))
	for _, a := range args {
		enc, err := codec.Encode(a)
		if err != nil {
			return "", err
		}
		b.WriteByte(0)
		b.Write(enc)
	}
	return b.String(), nil
}

func fromMatches(res *tree.SearchResult) IndexQueryResult {
	values := make([]CachedValue, len(res.Matches))
	for i, m := range res.Matches {
		values[i] = CachedValue{Pointer: m.Value.Pointer, Metadata: m.Value.Metadata}
	}
	return IndexQueryResult{Entries: len(values), Values: values}
}

func fromPointers(ptrs []codec.RecordPointer) IndexQueryResult {
	values := make([]CachedValue, len(ptrs))
	for i, p := range ptrs {
		values[i] = CachedValue{Pointer: p}
	}
	return IndexQueryResult{Entries: len(values), Values: values}
}

func applyFilter(result IndexQueryResult, filter *Filter) IndexQueryResult {
	if filter == nil || filter.Func == nil {
		return result
	}
	out := make([]CachedValue, 0, len(result.Values))
	for _, v := range result.Values {
		if filter.Func(v.Pointer) {
			out = append(out, v)
		}
	}
	return IndexQueryResult{Entries: len(out), Values: out, FilterKey: filter.Key}
}

func validOperator(cap index.Capability, op tree.Operator) bool {
	for _, o := range cap.ValidOperators() {
		if o == op {
			return true
		}
	}
	return false
}

// Query implements spec §6's `query(op, val, {filter?}) → ResultSet`.
// args holds one value for the scalar operators, two for between/
// !between, N for in/!in; array/fulltext/geo's custom operators are
// recognized by type-switching on e.Index and routed to their own
// resolution paths instead of tree.Search (array's contains/!contains
// still end at the tree via UnderlyingOperator; fulltext's phrase/OR
// syntax and geo's nearby radius search need more than one tree read).
func (e *Engine) Query(op tree.Operator, args []codec.Key, filter *Filter) (IndexQueryResult, error) {
	key, err := cacheKeyFor(op, args)
	if err != nil {
		return IndexQueryResult{}, err
	}
	if cached, ok := e.Cache.Get(key); ok {
		return applyFilter(cached, filter), nil
	}

	e.Locks.RLock()
	result, err := e.search(op, args)
	e.Locks.RUnlock()
	if err != nil {
		return IndexQueryResult{}, err
	}

	e.Cache.Set(key, result)
	return applyFilter(result, filter), nil
}

func (e *Engine) search(op tree.Operator, args []codec.Key) (IndexQueryResult, error) {
	switch ix := e.Index.(type) {
	case *array.Index:
		underlying, err := array.UnderlyingOperator(op)
		if err != nil {
			return IndexQueryResult{}, err
		}
		opts, err := ix.TranslateQuery(op, args...)
		if err != nil {
			return IndexQueryResult{}, err
		}
		res, err := e.Tree.Search(underlying, opts)
		if err != nil {
			return IndexQueryResult{}, err
		}
		return fromMatches(res), nil

	case *fulltext.Index:
		if len(args) != 1 || args[0].Tag != codec.TagString {
			return IndexQueryResult{}, customerrors.ErrInvalidArgument
		}
		pointers, err := ix.Query(args[0].Str, op == fulltext.OpNotContains)
		if err != nil {
			return IndexQueryResult{}, err
		}
		return fromPointers(pointers), nil

	case *geo.Index:
		if op != geo.OpNearby || len(args) != 3 {
			return IndexQueryResult{}, customerrors.ErrInvalidArgument
		}
		pointers, err := ix.Nearby(args[0].Float, args[1].Float, args[2].Float)
		if err != nil {
			return IndexQueryResult{}, err
		}
		return fromPointers(pointers), nil

	default:
		if !validOperator(e.Index, op) {
			return IndexQueryResult{}, customerrors.ErrInvalidArgument
		}
		opts, err := e.Index.TranslateQuery(op, args...)
		if err != nil {
			return IndexQueryResult{}, err
		}
		res, err := e.Tree.Search(op, opts)
		if err != nil {
			return IndexQueryResult{}, err
		}
		return fromMatches(res), nil
	}
}

// Count implements spec §6's `count(op, val) → u64`: same resolution
// path as Query, reporting only the match count.
func (e *Engine) Count(op tree.Operator, args []codec.Key) (uint64, error) {
	res, err := e.Query(op, args, nil)
	if err != nil {
		return 0, err
	}
	return uint64(res.Entries), nil
}

// Take implements spec §6's `take(skip, take, ascending) → ResultSet`: a
// full ordered scan windowed by skip/take. Ascending order is the tree's
// natural leaf-chain order; descending reverses the decoded slice.
// Uncached — spec's cache is keyed on (op, value), and take has neither.
func (e *Engine) Take(skip, take int, ascending bool) (IndexQueryResult, error) {
	e.Locks.RLock()
	res, err := e.Tree.Search(tree.OpExists, tree.SearchOptions{})
	e.Locks.RUnlock()
	if err != nil {
		return IndexQueryResult{}, err
	}

	result := fromMatches(res)
	if !ascending {
		for i, j := 0, len(result.Values)-1; i < j; i, j = i+1, j-1 {
			result.Values[i], result.Values[j] = result.Values[j], result.Values[i]
		}
	}

	if skip >= len(result.Values) {
		return IndexQueryResult{}, nil
	}
	end := len(result.Values)
	if take >= 0 && skip+take < end {
		end = skip + take
	}
	result.Values = result.Values[skip:end]
	result.Entries = len(result.Values)
	return result, nil
}

// Build implements spec §6's `build() → ()`: runs the external build
// pipeline under the exclusive per-index lock, clearing the cache first
// (spec §5: "the per-index cache is cleared before the lock is released
// so the next reader cannot observe a stale cache").
func (e *Engine) Build(ctx context.Context) error {
	if e.BuildFunc == nil {
		return customerrors.ErrInvalidArgument
	}
	e.Locks.Lock()
	defer e.Locks.Unlock()
	e.Cache.Clear()
	return e.BuildFunc(ctx)
}

// Rebuild implements spec §6's `rebuild() → ()`: pkg/tree.Tree.Rebuild
// under the exclusive per-index lock, same cache-then-lock ordering as
// Build.
func (e *Engine) Rebuild(w pager.Writer) error {
	e.Locks.Lock()
	defer e.Locks.Unlock()
	e.Cache.Clear()
	return e.Tree.Rebuild(w)
}
