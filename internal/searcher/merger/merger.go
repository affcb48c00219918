// Package merger selects the best k results with a bounded min-heap.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/ranker"
)

// DefaultLimit is used when TopK is called with a non-positive limit.
const DefaultLimit = 10

// TopK returns the limit highest-scoring documents across all result sets,
// ordered like ranker.Sort. A document present in several sets keeps its
// best score. The result never aliases the inputs.
func TopK(limit int, resultSets ...[]ranker.ScoredDoc) []ranker.ScoredDoc {
	if limit <= 0 {
		limit = DefaultLimit
	}
	docs := dedupe(resultSets)
	if len(docs) <= limit {
		ranker.Sort(docs)
		return docs
	}

	// h[0] is the weakest of the current k; a candidate beating it replaces
	// the root in place.
	h := scoredDocHeap(docs[:limit:limit])
	heap.Init(&h)
	for _, doc := range docs[limit:] {
		if weaker(h[0], doc) {
			h[0] = doc
			heap.Fix(&h, 0)
		}
	}
	out := make([]ranker.ScoredDoc, len(h))
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(ranker.ScoredDoc)
	}
	return out
}

// dedupe concatenates the sets into a fresh slice. The single-set case,
// the usual one, skips the map.
func dedupe(sets [][]ranker.ScoredDoc) []ranker.ScoredDoc {
	if len(sets) == 1 {
		return append([]ranker.ScoredDoc(nil), sets[0]...)
	}
	var out []ranker.ScoredDoc
	pos := make(map[int]int)
	for _, set := range sets {
		for _, doc := range set {
			if i, ok := pos[doc.DocID]; ok {
				if doc.Score > out[i].Score {
					out[i] = doc
				}
				continue
			}
			pos[doc.DocID] = len(out)
			out = append(out, doc)
		}
	}
	return out
}

// weaker reports whether a ranks below b: lower score, or the higher
// docID on a tie.
func weaker(a, b ranker.ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.DocID > b.DocID
}

type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int           { return len(h) }
func (h scoredDocHeap) Less(i, j int) bool { return weaker(h[i], h[j]) }
func (h scoredDocHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

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
