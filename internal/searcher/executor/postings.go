package executor

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/query"
)

func isWildcard(term string) bool {
	return strings.Contains(term, query.Wildcard)
}

// intersect merges two docID-sorted lists with two pointers, keeping the
// shared documents without offsets.
func intersect(a, b *index.PostingsList) *index.PostingsList {
	out := index.NewPostingsList()
	pa, pb := a.Postings(), b.Postings()
	i, j := 0, 0
	for i < len(pa) && j < len(pb) {
		switch {
		case pa[i].DocID == pb[j].DocID:
			out.AddDoc(pa[i].DocID)
			i++
			j++
		case pa[i].DocID < pb[j].DocID:
			i++
		default:
			j++
		}
	}
	return out
}

// followedBy keeps the documents where some offset of b directly follows
// an offset of a, recording those offsets of b.
func followedBy(a, b *index.PostingsList) *index.PostingsList {
	out := index.NewPostingsList()
	pa, pb := a.Postings(), b.Postings()
	i, j := 0, 0
	for i < len(pa) && j < len(pb) {
		switch {
		case pa[i].DocID == pb[j].DocID:
			offA, offB := pa[i].Offsets, pb[j].Offsets
			k, l := 0, 0
			for k < len(offA) && l < len(offB) {
				switch {
				case offB[l] == offA[k]+1:
					out.Add(pb[j].DocID, offB[l])
					k++
					l++
				case offA[k]+1 < offB[l]:
					k++
				default:
					l++
				}
			}
			i++
			j++
		case pa[i].DocID < pb[j].DocID:
			i++
		default:
			j++
		}
	}
	return out
}

func withoutOffsets(l *index.PostingsList) *index.PostingsList {
	out := index.NewPostingsList()
	for _, p := range l.Postings() {
		out.AddDoc(p.DocID)
	}
	return out
}
