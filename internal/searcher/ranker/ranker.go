// Package ranker scores documents for ranked queries.
package ranker

import (
	"math"
	"slices"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75
)

type ScoredDoc struct {
	DocID int     `json:"doc_id"`
	Name  string  `json:"name,omitempty"`
	Score float64 `json:"score"`
}

// TermPostings is one query term's weight and postings. A nil list
// contributes nothing.
type TermPostings struct {
	Term     string
	Weight   float64
	Postings *index.PostingsList
}

// Corpus is the document statistics the scorers need. *index.DocMeta
// implements it.
type Corpus interface {
	Len() int
	MaxID() int
	Length(docID int) int
	AvgLength() float64
}

// LinkScorer supplies a query-independent score per document.
type LinkScorer interface {
	Score(docID int) float64
}

// TFIDF accumulates weight * tf * ln(N/df) per document, divides by the
// document length, and returns the positive scores in descending order.
// Documents of unknown length keep their raw score.
func TFIDF(terms []TermPostings, c Corpus) []ScoredDoc {
	n := c.Len()
	if n == 0 {
		return nil
	}
	scores := make([]float64, max(n, c.MaxID()+1))
	for _, t := range terms {
		df := t.Postings.Len()
		if df == 0 {
			continue
		}
		idf := math.Log(float64(n) / float64(df))
		for _, p := range t.Postings.Postings() {
			if p.DocID >= len(scores) {
				scores = slices.Grow(scores, p.DocID+1-len(scores))[:p.DocID+1]
			}
			scores[p.DocID] += t.Weight * float64(len(p.Offsets)) * idf
		}
	}
	return collect(scores, c)
}

// BM25 scores with the Okapi BM25 formula, k1 = 1.2 and b = 0.75.
func BM25(terms []TermPostings, c Corpus) []ScoredDoc {
	n := c.Len()
	if n == 0 {
		return nil
	}
	avg := c.AvgLength()
	scores := make(map[int]float64)
	for _, t := range terms {
		df := t.Postings.Len()
		if df == 0 {
			continue
		}
		idf := computeIDF(int64(n), int64(df))
		for _, p := range t.Postings.Postings() {
			tf := computeTFNorm(float64(len(p.Offsets)), float64(c.Length(p.DocID)), avg)
			scores[p.DocID] += t.Weight * idf * tf
		}
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		if score > 0 {
			result = append(result, ScoredDoc{DocID: docID, Score: score})
		}
	}
	Sort(result)
	return result
}

func collect(scores []float64, c Corpus) []ScoredDoc {
	var result []ScoredDoc
	for docID, score := range scores {
		if score == 0 {
			continue
		}
		if length := c.Length(docID); length > 0 {
			score /= float64(length)
		}
		if score > 0 {
			result = append(result, ScoredDoc{DocID: docID, Score: score})
		}
	}
	Sort(result)
	return result
}

// Combine rescores every result as alpha*score + beta*link and re-sorts.
func Combine(results []ScoredDoc, link LinkScorer, alpha, beta float64) []ScoredDoc {
	for i := range results {
		results[i].Score = alpha*results[i].Score + beta*link.Score(results[i].DocID)
	}
	Sort(results)
	return results
}

// Replace rescores every result with its link score alone and re-sorts.
func Replace(results []ScoredDoc, link LinkScorer) []ScoredDoc {
	return Combine(results, link, 0, 1)
}

// Sort orders by descending score, then ascending DocID.
func Sort(results []ScoredDoc) {
	slices.SortFunc(results, func(x, y ScoredDoc) int {
		switch {
		case x.Score > y.Score:
			return -1
		case x.Score < y.Score:
			return 1
		}
		return x.DocID - y.DocID
	})
}

func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq)
	denominator := float64(docFreq) + 0.5
	return math.Log(numerator/denominator + 1)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
