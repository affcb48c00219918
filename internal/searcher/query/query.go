// Package query models a search query as weighted terms and implements
// Rocchio relevance feedback over it.
package query

import (
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Wildcard marks a term to be expanded against the dictionary.
const Wildcard = "*"

type Term struct {
	Text   string  `json:"term"`
	Weight float64 `json:"weight"`
}

// Query is an ordered list of weighted terms. Order matters for phrase
// queries.
type Query struct {
	Terms []Term `json:"terms"`
}

// NormalizeFunc maps a raw query word to its index term; ok is false for
// words the index never stores.
type NormalizeFunc func(word string) (term string, ok bool)

// Parse splits raw on whitespace. A word written as term^w carries weight
// w, every other word weight 1. Wildcard words are only lower-cased, since
// stemming would break the pattern. normalize may be nil.
func Parse(raw string, normalize NormalizeFunc) Query {
	var q Query
	for _, word := range strings.Fields(raw) {
		weight := 1.0
		if i := strings.LastIndexByte(word, '^'); i > 0 {
			if w, err := strconv.ParseFloat(word[i+1:], 64); err == nil && w > 0 {
				word, weight = word[:i], w
			}
		}
		switch {
		case strings.Contains(word, Wildcard):
			word = strings.ToLower(word)
		case normalize != nil:
			term, ok := normalize(word)
			if !ok {
				continue
			}
			word = term
		}
		q.Terms = append(q.Terms, Term{Text: word, Weight: weight})
	}
	return q
}

// New builds a query of unit-weight terms.
func New(terms ...string) Query {
	q := Query{Terms: make([]Term, len(terms))}
	for i, t := range terms {
		q.Terms[i] = Term{Text: t, Weight: 1}
	}
	return q
}

func (q Query) Len() int { return len(q.Terms) }

// Length is the Manhattan length of the weight vector.
func (q Query) Length() float64 {
	var sum float64
	for _, t := range q.Terms {
		sum += t.Weight
	}
	return sum
}

func (q Query) Texts() []string {
	out := make([]string, len(q.Terms))
	for i, t := range q.Terms {
		out[i] = t.Text
	}
	return out
}

func (q Query) HasWildcard() bool {
	return slices.ContainsFunc(q.Terms, func(t Term) bool {
		return strings.Contains(t.Text, Wildcard)
	})
}

// String renders the query so that Parse reads it back.
func (q Query) String() string {
	var b strings.Builder
	for i, t := range q.Terms {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(t.Text)
		if t.Weight != 1 {
			b.WriteByte('^')
			b.WriteString(strconv.FormatFloat(t.Weight, 'g', 6, 64))
		}
	}
	return b.String()
}

// DocTermsFunc returns the term frequencies of a document.
type DocTermsFunc func(docID int) (map[string]int, error)

// Feedback applies Rocchio reweighting. The original weights are
// normalized to unit Manhattan length and scaled by alpha; every term of
// each result marked relevant adds beta times its frequency in that
// document. results and relevant are parallel. The returned terms are in
// lexical order.
func Feedback(q Query, results []int, relevant []bool, docTerms DocTermsFunc, alpha, beta float64) (Query, error) {
	weights := make(map[string]float64, len(q.Terms))
	if length := q.Length(); length > 0 {
		for _, t := range q.Terms {
			weights[t.Text] += alpha * t.Weight / length
		}
	}
	for i, docID := range results {
		if i >= len(relevant) || !relevant[i] {
			continue
		}
		tf, err := docTerms(docID)
		if err != nil {
			return q, err
		}
		for term, n := range tf {
			weights[term] += beta * float64(n)
		}
	}
	out := Query{Terms: make([]Term, 0, len(weights))}
	for _, term := range slices.Sorted(maps.Keys(weights)) {
		out.Terms = append(out.Terms, Term{Text: term, Weight: weights[term]})
	}
	return out, nil
}
