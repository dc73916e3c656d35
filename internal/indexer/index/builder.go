package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer/shard"
)

// Builder accumulates weighted postings in memory between flushes. Each
// indexing run owns its Builder; it is not safe for concurrent use.
type Builder struct {
	terms    map[int]*termPostings
	docs     map[string]struct{}
	postings int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	b := &Builder{}
	b.Reset()
	return b
}

// Add records count more occurrences of termID in docID.
func (b *Builder) Add(termID int, docID string, count int) {
	tp, ok := b.terms[termID]
	if !ok {
		tp = &termPostings{pos: make(map[string]int)}
		b.terms[termID] = tp
	}
	b.docs[docID] = struct{}{}
	if i, ok := tp.pos[docID]; ok {
		tp.postings[i].Count += count
		return
	}
	tp.pos[docID] = len(tp.postings)
	tp.postings = append(tp.postings, Posting{DocID: docID, Count: count})
	b.postings++
}

// Len is the number of pending (term, document) postings.
func (b *Builder) Len() int {
	return b.postings
}

// DocCount is the number of distinct documents added since the last reset.
func (b *Builder) DocCount() int {
	return len(b.docs)
}

// Updates returns the pending postings ordered by term ID, documents in the
// order they were added.
func (b *Builder) Updates() []Update {
	ids := make([]int, 0, len(b.terms))
	for id := range b.terms {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	updates := make([]Update, 0, b.postings)
	for _, id := range ids {
		for _, p := range b.terms[id].postings {
			updates = append(updates, Update{TermID: id, DocID: p.DocID, Count: p.Count})
		}
	}
	return updates
}

// Flush merges the pending postings into store, one rewrite per touched
// barrel, and resets the builder. On error only the postings of barrels
// that were not rewritten are kept, so a retry never applies a count twice.
func (b *Builder) Flush(store *Store) ([]int, error) {
	if b.postings == 0 {
		return nil, nil
	}
	barrels, err := store.MergeAll(b.Updates())
	if err != nil {
		b.drop(barrels)
		return barrels, err
	}
	b.Reset()
	return barrels, nil
}

func (b *Builder) drop(barrels []int) {
	done := make(map[int]bool, len(barrels))
	for _, n := range barrels {
		done[n] = true
	}
	for id, tp := range b.terms {
		if done[shard.IndexShard(id)] {
			b.postings -= len(tp.postings)
			delete(b.terms, id)
		}
	}
}

// Reset discards all pending postings.
func (b *Builder) Reset() {
	b.terms = make(map[int]*termPostings)
	b.docs = make(map[string]struct{})
	b.postings = 0
}
