// Package shard holds the barrel selection rules. A term's lexicon barrel is
// a pure function of its first byte and a posting's inverted-index barrel is
// a pure function of its term ID, so every process that reads or writes the
// barrels routes the same key to the same file.
package shard

import (
	"fmt"
	"path/filepath"
	"sort"
)

const (
	// NumLexicon is the number of lexicon barrels: 26 letters plus one for
	// everything else. Lexicon barrels are numbered from 1.
	NumLexicon = 27
	// NumIndex is the number of inverted index barrels, numbered from 0.
	NumIndex = 100

	otherLexicon = 27
)

// LexiconShard returns the lexicon barrel (1-27) for term.
func LexiconShard(term string) int {
	if term == "" {
		return otherLexicon
	}
	c := term[0]
	if c >= 'a' && c <= 'z' {
		return int(c-'a') + 1
	}
	return otherLexicon
}

// IndexShard returns the inverted index barrel (0-99) for termID.
func IndexShard(termID int) int {
	return termID % NumIndex
}

// LexiconPath returns the file backing lexicon barrel n.
func LexiconPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("lexicon%d.txt", n))
}

// IndexPath returns the file backing inverted index barrel n.
func IndexPath(dir string, n int) string {
	return filepath.Join(dir, fmt.Sprintf("inverted_index%d.txt", n))
}

// GroupBy buckets items by the shard key returns. The returned key slice is
// sorted ascending so callers visit barrels in a stable order; items inside a
// bucket keep their input order.
func GroupBy[T any](items []T, key func(T) int) ([]int, map[int][]T) {
	groups := make(map[int][]T)
	for _, item := range items {
		k := key(item)
		groups[k] = append(groups[k], item)
	}
	keys := make([]int, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys, groups
}
