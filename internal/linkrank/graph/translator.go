package graph

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
)

// Translator maps between index document ids and graph node ids. Two ids
// correspond when the base name of the document equals the node's title.
type Translator struct {
	toNode map[int]int
	toDoc  map[int]int
}

// NewTranslator matches every document in docs against g. titles may be
// nil, in which case node names are compared directly.
func NewTranslator(g *Graph, titles Titles, docs *index.DocMeta) *Translator {
	byTitle := make(map[string]int, g.Len())
	for id := range g.Len() {
		byTitle[titles.Title(g.Name(id))] = id
	}
	tr := &Translator{
		toNode: make(map[int]int),
		toDoc:  make(map[int]int),
	}
	for _, docID := range docs.IDs() {
		node, ok := byTitle[BaseName(docs.Name(docID))]
		if !ok {
			continue
		}
		tr.toNode[docID] = node
		tr.toDoc[node] = docID
	}
	return tr
}

// ToNode returns the node of docID.
func (t *Translator) ToNode(docID int) (int, bool) {
	n, ok := t.toNode[docID]
	return n, ok
}

// ToDoc returns the document of node.
func (t *Translator) ToDoc(node int) (int, bool) {
	d, ok := t.toDoc[node]
	return d, ok
}

// Len is the number of matched documents.
func (t *Translator) Len() int { return len(t.toNode) }

// BaseName strips any directory part, '/' or '\' separated, from a
// document name.
func BaseName(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		return name[i+1:]
	}
	return name
}
