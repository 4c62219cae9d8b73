// Package fulltext implements the FullText index specialization of
// spec.md §4.6: word tokenization, per-word `_occurs_` position metadata,
// and the phrase/OR/glob/negation query syntax. The tokenizer is a
// regexp matching `[\w']+` over the lowercased text.
package fulltext

import (
	"regexp"
	"strconv"
	"strings"

	"idxengine/pkg/codec"
	"idxengine/pkg/customerrors"
	"idxengine/pkg/index"
	"idxengine/pkg/tree"
	"idxengine/util/stl"
)

// tokenPattern is spec §4.6's fulltext tokenizer: `[\w']+`, applied to the
// lowercased text (index locale's case-folding).
var tokenPattern = regexp.MustCompile(`[\w']+`)

func tokenize(s string) []string {
	return tokenPattern.FindAllString(strings.ToLower(s), -1)
}

// Operators spec §4.6 exposes for fulltext indexes.
const (
	OpContains    tree.Operator = "fulltext:contains"
	OpNotContains tree.Operator = "fulltext:!contains"
)

// occursField names the metadata slot that is always last; New appends "_occurs_"
// to the caller's include_keys so the base Index's encode/decode sizing
// (by metadata key count) stays correct without a parallel schema.
const occursField = "_occurs_"

// Index is the FullText specialization.
type Index struct {
	*index.Index
}

func New(t *tree.Tree, path, field string, includeKeys []string, caseSensitive bool) *Index {
	withOccurs := append(append([]string{}, includeKeys...), occursField)
	return &Index{Index: index.New(t, path, field, withOccurs, caseSensitive)}
}

func (ix *Index) includeKeysOnly() []string {
	return ix.IncludeKeys[:len(ix.IncludeKeys)-1]
}

func (ix *Index) baseMetadata(r index.Record) []codec.Key {
	keys := ix.includeKeysOnly()
	meta := make([]codec.Key, len(keys))
	for i, k := range keys {
		meta[i] = r.Fields[k]
	}
	return meta
}

// words tokenizes the indexed field, returning each unique word's ordered
// list of positions within the text (spec §4.6: "metadata {_occurs_:
// "i1,i2,..."} listing the word's positions").
func (ix *Index) words(r index.Record) map[string][]int {
	text := r.Fields[ix.KeyField].Str
	positions := map[string][]int{}
	for i, w := range tokenize(text) {
		positions[w] = append(positions[w], i)
	}
	return positions
}

func encodeOccurs(positions []int) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ",")
}

func decodeOccurs(s string) []int {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		if n, err := strconv.Atoi(p); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func sameInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ProjectBuild emits one projection per unique word (spec §4.6 FullText).
func (ix *Index) ProjectBuild(r index.Record) ([]index.Projection, error) {
	base := ix.baseMetadata(r)
	words := ix.words(r)
	out := make([]index.Projection, 0, len(words))
	for w, positions := range words {
		meta := append(append([]codec.Key{}, base...), codec.FromString(encodeOccurs(positions)))
		out = append(out, index.Projection{Key: codec.FromString(w), Pointer: r.Pointer(), Metadata: meta})
	}
	return out, nil
}

// ProjectUpdate diffs old/new word **and** position sets: any word whose
// positions differ between versions is removed and re-added (spec §4.6).
func (ix *Index) ProjectUpdate(old, new index.Record) ([]tree.TxOp, error) {
	oldWords, newWords := ix.words(old), ix.words(new)
	newMeta := ix.baseMetadata(new)

	var ops []tree.TxOp
	for w, oldPos := range oldWords {
		if newPos, ok := newWords[w]; !ok || !sameInts(oldPos, newPos) {
			ops = append(ops, tree.TxOp{Kind: tree.OpRemove, Key: codec.FromString(w), Pointer: old.Pointer()})
		}
	}
	for w, newPos := range newWords {
		if oldPos, ok := oldWords[w]; !ok || !sameInts(oldPos, newPos) {
			meta := append(append([]codec.Key{}, newMeta...), codec.FromString(encodeOccurs(newPos)))
			ops = append(ops, tree.TxOp{Kind: tree.OpAdd, Key: codec.FromString(w), Pointer: new.Pointer(), Metadata: meta})
		}
	}
	return ops, nil
}

func (ix *Index) ValidOperators() []tree.Operator {
	return []tree.Operator{OpContains, OpNotContains}
}

// TranslateQuery satisfies Capability for the simple single-word case;
// phrase/OR/glob queries go through Query below instead, since they need
// more than one tree.Search call to answer.
func (ix *Index) TranslateQuery(op tree.Operator, args ...codec.Key) (tree.SearchOptions, error) {
	if len(args) != 1 {
		return tree.SearchOptions{}, customerrors.ErrInvalidArgument
	}
	switch op {
	case OpContains, OpNotContains:
		return tree.SearchOptions{Value: args[0]}, nil
	default:
		return tree.SearchOptions{}, customerrors.ErrInvalidArgument
	}
}

// pointerKey makes codec.RecordPointer comparable as a map key.
func pointerKey(p codec.RecordPointer) string {
	return strings.Join(p.Wildcards, "\x00") + "\x01" + p.Key
}

// Query evaluates spec §4.6's fulltext query syntax: phrases in double
// quotes, `OR`-separated alternatives, and per-word glob patterns.
// negate complements the result against every record pointer the index
// currently holds (spec: "fulltext:!contains ... — complement").
func (ix *Index) Query(raw string, negate bool) ([]codec.RecordPointer, error) {
	matched, err := ix.evaluateOr(raw)
	if err != nil {
		return nil, err
	}
	if !negate {
		return matched, nil
	}

	universe, err := ix.allPointers()
	if err != nil {
		return nil, err
	}
	inMatched := make(map[string]struct{}, len(matched))
	for _, p := range matched {
		inMatched[pointerKey(p)] = struct{}{}
	}

	out := make([]codec.RecordPointer, 0, len(universe))
	for _, p := range universe {
		if _, ok := inMatched[pointerKey(p)]; !ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// evaluateOr splits raw on top-level `OR` (outside quotes, tracked with a
// stack so nested quote state is explicit rather than a lone boolean) and
// unions each alternative's matches.
func (ix *Index) evaluateOr(raw string) ([]codec.RecordPointer, error) {
	alternatives := splitTopLevel(raw, " OR ")

	seen := map[string]codec.RecordPointer{}
	for _, alt := range alternatives {
		matches, err := ix.evaluateTerm(strings.TrimSpace(alt))
		if err != nil {
			return nil, err
		}
		for _, p := range matches {
			seen[pointerKey(p)] = p
		}
	}

	out := make([]codec.RecordPointer, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out, nil
}

// splitTopLevel splits s on sep, ignoring occurrences of sep inside
// double-quoted spans. A stack tracks quote-nesting depth rather than a
// single boolean, the same shape util/stl.Stack gives the rest of the
// pack's hand-rolled parsers.
func splitTopLevel(s, sep string) []string {
	quotes := stl.NewStack[byte]()
	var parts []string
	start := 0

	for i := 0; i < len(s); {
		if s[i] == '"' {
			if _, err := quotes.Top(); err == nil {
				quotes.Pop()
			} else {
				quotes.Push('"')
			}
			i++
			continue
		}
		if _, err := quotes.Top(); err != nil && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			i += len(sep)
			start = i
			continue
		}
		i++
	}
	parts = append(parts, s[start:])
	return parts
}

func isGlob(word string) bool {
	return strings.ContainsAny(word, "*?")
}

// evaluateTerm resolves one OR-alternative: a quoted phrase, a single
// glob word, or a single plain word.
func (ix *Index) evaluateTerm(term string) ([]codec.RecordPointer, error) {
	if strings.HasPrefix(term, `"`) && strings.HasSuffix(term, `"`) && len(term) >= 2 {
		return ix.evaluatePhrase(strings.Trim(term, `"`))
	}
	if isGlob(term) {
		return ix.evaluateGlob(term)
	}
	return ix.evaluateWord(term)
}

func (ix *Index) evaluateWord(word string) ([]codec.RecordPointer, error) {
	vals, err := ix.Tree.Find(codec.FromString(word))
	if err == customerrors.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]codec.RecordPointer, len(vals))
	for i, v := range vals {
		out[i] = v.Pointer
	}
	return out, nil
}

func (ix *Index) evaluateGlob(pattern string) ([]codec.RecordPointer, error) {
	res, err := ix.Tree.Search(tree.OpLike, tree.SearchOptions{Value: codec.FromString(pattern)})
	if err != nil {
		return nil, err
	}
	out := make([]codec.RecordPointer, len(res.Matches))
	for i, m := range res.Matches {
		out[i] = m.Value.Pointer
	}
	return out, nil
}

// evaluatePhrase requires every word to match the same record with
// positions forming a strictly increasing run of 1 (spec §4.6). The word
// with the fewest matching records seeds the candidate set (spec: "sort
// candidate words by estimated result count ascending... to minimize
// working-set size"); the rest only need a single position lookup each.
func (ix *Index) evaluatePhrase(phrase string) ([]codec.RecordPointer, error) {
	words := tokenize(phrase)
	if len(words) == 0 {
		return nil, nil
	}

	positionsByWord := make([]map[string][]int, len(words))
	pointerByKey := map[string]codec.RecordPointer{}
	for i, w := range words {
		vals, err := ix.Tree.Find(codec.FromString(w))
		if err == customerrors.ErrKeyNotFound {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		m := make(map[string][]int, len(vals))
		for _, v := range vals {
			occurs := ""
			if len(v.Metadata) > 0 {
				occurs = v.Metadata[len(v.Metadata)-1].Str
			}
			pk := pointerKey(v.Pointer)
			m[pk] = decodeOccurs(occurs)
			pointerByKey[pk] = v.Pointer
		}
		positionsByWord[i] = m
	}

	seed := 0
	for i := 1; i < len(words); i++ {
		if len(positionsByWord[i]) < len(positionsByWord[seed]) {
			seed = i
		}
	}

	var out []codec.RecordPointer
	for pk, seedPositions := range positionsByWord[seed] {
		for _, seedPos := range seedPositions {
			start := seedPos - seed
			if start < 0 {
				continue
			}
			ok := true
			for i := 0; i < len(words); i++ {
				if i == seed {
					continue
				}
				positions, present := positionsByWord[i][pk]
				if !present || !containsInt(positions, start+i) {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, pointerByKey[pk])
				break
			}
		}
	}
	return out, nil
}

func containsInt(s []int, v int) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}

// allPointers returns every distinct record pointer currently held by the
// tree, used to compute fulltext:!contains's complement.
func (ix *Index) allPointers() ([]codec.RecordPointer, error) {
	res, err := ix.Tree.Search(tree.OpExists, tree.SearchOptions{})
	if err != nil {
		return nil, err
	}
	seen := map[string]codec.RecordPointer{}
	for _, m := range res.Matches {
		seen[pointerKey(m.Value.Pointer)] = m.Value.Pointer
	}
	out := make([]codec.RecordPointer, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	return out, nil
}
