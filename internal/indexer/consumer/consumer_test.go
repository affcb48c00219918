package consumer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
)

func TestHandleMessage(t *testing.T) {
	idx := index.NewMemoryIndex()
	b := indexer.NewBuilder(idx, tokenizer.New(tokenizer.Options{}), nil, nil)
	handle := HandleMessage(b)
	ctx := context.Background()

	require.NoError(t, handle(ctx, []byte("k1"), []byte(`{"doc_id":4,"name":"four.txt","body":"red fox"}`)))
	require.NoError(t, handle(ctx, []byte("k2"), []byte(`{"body":"blue fox"}`)))

	fox, _ := idx.GetPostings("fox")
	assert.Equal(t, []int{4, 5}, fox.DocIDs())
	assert.Equal(t, "four.txt", idx.Docs().Name(4))
	assert.Equal(t, "k2", idx.Docs().Name(5))

	// malformed payloads are acknowledged, duplicates are not
	assert.NoError(t, handle(ctx, nil, []byte(`{not json`)))
	assert.Error(t, handle(ctx, nil, []byte(`{"doc_id":4,"body":"again"}`)))
}
