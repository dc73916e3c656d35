package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/searcher/ranker"
)

// TopK returns the limit best docs, highest score first and ties by DocID.
// A limit of zero or less returns every doc in that order.
func TopK(docs []ranker.ScoredDoc, limit int) []ranker.ScoredDoc {
	if limit <= 0 || limit >= len(docs) {
		out := make([]ranker.ScoredDoc, len(docs))
		copy(out, docs)
		ranker.Sort(out)
		return out
	}
	h := &scoredDocHeap{}
	heap.Init(h)
	for _, doc := range docs {
		heap.Push(h, doc)
		if h.Len() > limit {
			heap.Pop(h)
		}
	}
	result := make([]ranker.ScoredDoc, h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap on the result order so the worst kept doc is
// at the root.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x any) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
