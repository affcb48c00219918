package executor

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/searcher/query"
)

// FileTerms re-reads a document from the path recorded in docs and counts
// its terms with tok, which must match the tokenizer the index was built
// with.
func FileTerms(docs *index.DocMeta, tok *tokenizer.Tokenizer) query.DocTermsFunc {
	return func(docID int) (map[string]int, error) {
		info, ok := docs.Get(docID)
		if !ok {
			return nil, fmt.Errorf("unknown document %d", docID)
		}
		text, err := indexer.ReadText(info.Name)
		if err != nil {
			return nil, fmt.Errorf("reading document %d: %w", docID, err)
		}
		tf := make(map[string]int)
		for _, t := range tok.Tokenize(text) {
			tf[t.Term]++
		}
		return tf, nil
	}
}
