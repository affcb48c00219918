// Package kgram indexes dictionary terms by their character k-grams and
// expands wildcard patterns against them.
package kgram

import (
	"slices"
	"strings"
	"sync"
)

const (
	// DefaultK is the gram length used by the search service.
	DefaultK = 2

	startMark = "^"
	endMark   = "$"
	wildcard  = "*"
)

// Index maps k-grams of "^term$" to the ids of the terms containing them.
// Postings are ascending because ids are handed out in insertion order.
type Index struct {
	k     int
	mu    sync.RWMutex
	ids   map[string]int
	terms []string
	grams map[string][]int
}

// New returns an empty index. k below 1 selects DefaultK.
func New(k int) *Index {
	if k < 1 {
		k = DefaultK
	}
	return &Index{
		k:     k,
		ids:   make(map[string]int),
		grams: make(map[string][]int),
	}
}

func (x *Index) K() int { return x.k }

// Insert adds term. Re-inserting a known term is a no-op.
func (x *Index) Insert(term string) {
	if term == "" {
		return
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.ids[term]; ok {
		return
	}
	id := len(x.terms)
	x.ids[term] = id
	x.terms = append(x.terms, term)
	for _, g := range grams(startMark+term+endMark, x.k) {
		p := x.grams[g]
		if len(p) > 0 && p[len(p)-1] == id {
			continue
		}
		x.grams[g] = append(p, id)
	}
}

// Len is the number of indexed terms.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.terms)
}

// Postings returns the ids of the terms containing gram.
func (x *Index) Postings(gram string) []int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.grams[gram]
}

// Term returns the term with the given id.
func (x *Index) Term(id int) string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.terms[id]
}

// Intersect returns the ids present in both ascending lists.
func Intersect(a, b []int) []int {
	out := make([]int, 0, min(len(a), len(b)))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			out = append(out, a[i])
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}
	return out
}

// Expand returns the indexed terms matching pattern, in lexical order. '*'
// matches any run of characters. A pattern without '*' matches itself when
// indexed.
func (x *Index) Expand(pattern string) []string {
	if !strings.Contains(pattern, wildcard) {
		x.mu.RLock()
		_, ok := x.ids[pattern]
		x.mu.RUnlock()
		if ok {
			return []string{pattern}
		}
		return nil
	}

	var candidates []int
	first := true
	for _, piece := range strings.Split(startMark+pattern+endMark, wildcard) {
		for _, g := range grams(piece, x.k) {
			p := x.Postings(g)
			if first {
				candidates, first = p, false
			} else {
				candidates = Intersect(candidates, p)
			}
		}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()
	if first {
		// no piece was long enough to yield a gram
		candidates = make([]int, len(x.terms))
		for i := range candidates {
			candidates[i] = i
		}
	}
	var out []string
	for _, id := range candidates {
		if term := x.terms[id]; Match(pattern, term) {
			out = append(out, term)
		}
	}
	slices.Sort(out)
	return out
}

// Match reports whether term matches the wildcard pattern.
func Match(pattern, term string) bool {
	pieces := strings.Split(pattern, wildcard)
	if len(pieces) == 1 {
		return pattern == term
	}
	head, tail := pieces[0], pieces[len(pieces)-1]
	if len(term) < len(head)+len(tail) || !strings.HasPrefix(term, head) || !strings.HasSuffix(term, tail) {
		return false
	}
	rest := term[len(head) : len(term)-len(tail)]
	for _, mid := range pieces[1 : len(pieces)-1] {
		i := strings.Index(rest, mid)
		if i < 0 {
			return false
		}
		rest = rest[i+len(mid):]
	}
	return true
}

// grams returns the k-grams of s by rune.
func grams(s string, k int) []string {
	runes := []rune(s)
	if len(runes) < k {
		return nil
	}
	out := make([]string, 0, len(runes)-k+1)
	for i := 0; i+k <= len(runes); i++ {
		out = append(out, string(runes[i:i+k]))
	}
	return out
}
