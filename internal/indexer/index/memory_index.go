package index

import (
	"fmt"
	"slices"
	"sync"
)

// Index is the capability shared by the in-memory and persistent backends.
type Index interface {
	// Insert records that term occurs in docID at token offset.
	Insert(term string, docID, offset int) error
	// GetPostings returns the postings of term, or nil when absent.
	GetPostings(term string) (*PostingsList, error)
	// Docs is the document metadata table.
	Docs() *DocMeta
	// Cleanup finalizes the index. No Insert may follow it.
	Cleanup() error
}

// MemoryIndex keeps every postings list in a map. It is the memory backend
// and the write buffer of the persistent engine.
type MemoryIndex struct {
	mu     sync.RWMutex
	terms  map[string]*PostingsList
	docs   *DocMeta
	tokens int
}

func NewMemoryIndex() *MemoryIndex {
	return NewMemoryIndexWithDocs(NewDocMeta())
}

// NewMemoryIndexWithDocs creates a buffer that shares an existing document
// table.
func NewMemoryIndexWithDocs(docs *DocMeta) *MemoryIndex {
	return &MemoryIndex{
		terms: make(map[string]*PostingsList),
		docs:  docs,
	}
}

func (m *MemoryIndex) Insert(term string, docID, offset int) error {
	if term == "" {
		return fmt.Errorf("inserting empty term for doc %d", docID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.terms[term]
	if !ok {
		l = NewPostingsList()
		m.terms[term] = l
	}
	l.Add(docID, offset)
	m.tokens++
	return nil
}

func (m *MemoryIndex) GetPostings(term string) (*PostingsList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terms[term], nil
}

func (m *MemoryIndex) Docs() *DocMeta {
	return m.docs
}

func (m *MemoryIndex) Cleanup() error {
	return nil
}

// Terms returns the buffered terms in lexical order.
func (m *MemoryIndex) Terms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	terms := make([]string, 0, len(m.terms))
	for t := range m.terms {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	return terms
}

// TermSet returns the buffered terms as a set.
func (m *MemoryIndex) TermSet() map[string]struct{} {
	m.mu.RLock()
	defer m.mu.RUnlock()
	set := make(map[string]struct{}, len(m.terms))
	for t := range m.terms {
		set[t] = struct{}{}
	}
	return set
}

func (m *MemoryIndex) NumTerms() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.terms)
}

// Tokens is the number of Insert calls since the last Reset.
func (m *MemoryIndex) Tokens() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tokens
}

// Reset drops all buffered postings. The document table is kept.
func (m *MemoryIndex) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terms = make(map[string]*PostingsList)
	m.tokens = 0
}
