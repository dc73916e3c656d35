// Package autocomplete suggests lexicon terms by prefix.
package autocomplete

import (
	"sort"
	"strings"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/lexicon"
)

const (
	DefaultLimit = 5
	minQueryLen  = 2
)

type node struct {
	children map[byte]*node
	terminal bool
}

// Trie is a byte-wise prefix tree, safe for concurrent use.
type Trie struct {
	mu    sync.RWMutex
	root  *node
	words int
}

func New() *Trie {
	return &Trie{root: &node{}}
}

// FromLexicon builds a trie from every term in the lexicon barrels under dir.
func FromLexicon(dir string) (*Trie, error) {
	t := New()
	if err := lexicon.Walk(dir, func(e lexicon.Entry) { t.Insert(e.Term) }); err != nil {
		return nil, err
	}
	return t, nil
}

// Insert adds word, lowercased. Re-inserting is a no-op.
func (t *Trie) Insert(word string) {
	word = strings.ToLower(word)
	if word == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.root
	for i := 0; i < len(word); i++ {
		c := word[i]
		child, ok := n.children[c]
		if !ok {
			if n.children == nil {
				n.children = make(map[byte]*node)
			}
			child = &node{}
			n.children[c] = child
		}
		n = child
	}
	if !n.terminal {
		n.terminal = true
		t.words++
	}
}

// Len is the number of distinct words.
func (t *Trie) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.words
}

// Suggest returns up to limit words starting with prefix. Shorter words come
// before their extensions and siblings are visited in byte order.
func (t *Trie) Suggest(prefix string, limit int) []string {
	if limit <= 0 {
		return nil
	}
	prefix = strings.ToLower(prefix)
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := t.root
	for i := 0; i < len(prefix); i++ {
		child, ok := n.children[prefix[i]]
		if !ok {
			return nil
		}
		n = child
	}
	results := make([]string, 0, limit)
	buf := []byte(prefix)
	collect(n, &buf, &results, limit)
	return results
}

func collect(n *node, buf *[]byte, results *[]string, limit int) {
	if len(*results) >= limit {
		return
	}
	if n.terminal {
		*results = append(*results, string(*buf))
	}
	keys := make([]byte, 0, len(n.children))
	for c := range n.children {
		keys = append(keys, c)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, c := range keys {
		if len(*results) >= limit {
			return
		}
		*buf = append(*buf, c)
		collect(n.children[c], buf, results, limit)
		*buf = (*buf)[:len(*buf)-1]
	}
}

// Complete suggests completions for the last word of query, keeping the
// earlier words in front of each suggestion. Queries shorter than two
// characters get no suggestions.
func (t *Trie) Complete(query string, limit int) []string {
	query = strings.TrimSpace(query)
	if len(query) < minQueryLen {
		return []string{}
	}
	words := strings.Fields(query)
	last := words[len(words)-1]
	suggestions := t.Suggest(last, limit)
	if len(words) > 1 {
		lead := strings.Join(words[:len(words)-1], " ") + " "
		for i, s := range suggestions {
			suggestions[i] = lead + s
		}
	}
	if suggestions == nil {
		return []string{}
	}
	return suggestions
}
