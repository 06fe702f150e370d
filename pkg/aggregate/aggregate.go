// Package aggregate counts distinct match texts across a scan.
package aggregate

import (
	"slices"
)

// MaxKeys is the default limit on distinct match texts kept per run.
const MaxKeys = 1000

// Entry is one distinct match text and the number of times it was seen.
type Entry struct {
	Text  string `json:"text"  yaml:"text"`
	Count int    `json:"count" yaml:"count"`
}

// Aggregator maps match text to a count, bounded in the number of keys.
// It is not safe for concurrent use.
type Aggregator struct {
	maxKeys int
	index   map[string]int
	entries []Entry
}

// New returns an aggregator keeping at most maxKeys distinct texts.
// A non-positive maxKeys selects MaxKeys.
func New(maxKeys int) *Aggregator {
	if maxKeys <= 0 {
		maxKeys = MaxKeys
	}

	return &Aggregator{
		maxKeys: maxKeys,
		index:   make(map[string]int),
	}
}

// Record counts one occurrence of text. Texts already present always count.
// A new text is dropped when the key limit has been reached; Record then
// returns false.
func (a *Aggregator) Record(text string) bool {
	if pos, ok := a.index[text]; ok {
		a.entries[pos].Count++

		return true
	}

	if len(a.entries) >= a.maxKeys {
		return false
	}

	a.index[text] = len(a.entries)
	a.entries = append(a.entries, Entry{Text: text, Count: 1})

	return true
}

// Len returns the number of distinct texts.
func (a *Aggregator) Len() int {
	return len(a.entries)
}

// Count returns how many times text was recorded.
func (a *Aggregator) Count(text string) int {
	pos, ok := a.index[text]
	if !ok {
		return 0
	}

	return a.entries[pos].Count
}

// Snapshot returns the entries ordered by descending count. Entries with
// equal counts keep first-seen order.
func (a *Aggregator) Snapshot() []Entry {
	out := slices.Clone(a.entries)

	slices.SortStableFunc(out, func(x, y Entry) int {
		return y.Count - x.Count
	})

	return out
}

// Reset forgets every recorded text.
func (a *Aggregator) Reset() {
	clear(a.index)
	a.entries = a.entries[:0]
}
