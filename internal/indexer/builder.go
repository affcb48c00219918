package indexer

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/metrics"
)

// DocSink receives the metadata of every indexed document, for mirrors of
// the docInfo table.
type DocSink interface {
	PutDoc(ctx context.Context, docID int, name string, length int) error
}

// Builder feeds documents through the tokenizer into an Index, assigning
// dense document ids in arrival order.
type Builder struct {
	idx     index.Index
	tok     *tokenizer.Tokenizer
	sink    DocSink
	metrics *metrics.Metrics
	logger  *slog.Logger
	nextID  int
}

func NewBuilder(idx index.Index, tok *tokenizer.Tokenizer, sink DocSink, m *metrics.Metrics) *Builder {
	return &Builder{
		idx:     idx,
		tok:     tok,
		sink:    sink,
		metrics: m,
		logger:  slog.Default().With("component", "index-builder"),
		nextID:  idx.Docs().MaxID() + 1,
	}
}

// AddDocument indexes text under the next free document id.
func (b *Builder) AddDocument(ctx context.Context, name, text string) (int, error) {
	docID := b.nextID
	if err := b.AddDocumentWithID(ctx, docID, name, text); err != nil {
		return docID, err
	}
	return docID, nil
}

// AddDocumentWithID indexes text under docID.
func (b *Builder) AddDocumentWithID(ctx context.Context, docID int, name, text string) error {
	if _, exists := b.idx.Docs().Get(docID); exists {
		return fmt.Errorf("document %d already indexed", docID)
	}
	tokens := b.tok.Tokenize(text)
	for _, t := range tokens {
		if err := b.idx.Insert(t.Term, docID, t.Position); err != nil {
			return fmt.Errorf("indexing document %d: %w", docID, err)
		}
	}
	b.idx.Docs().Set(docID, name, len(tokens))
	if docID >= b.nextID {
		b.nextID = docID + 1
	}
	if b.metrics != nil {
		b.metrics.DocsIndexedTotal.Inc()
	}
	if b.sink != nil {
		if err := b.sink.PutDoc(ctx, docID, name, len(tokens)); err != nil {
			b.logger.Warn("doc sink rejected document", "doc_id", docID, "error", err)
		}
	}
	b.logger.Debug("document indexed", "doc_id", docID, "name", name, "tokens", len(tokens))
	return nil
}

// IndexDir indexes every regular file under root whose base name matches
// one of patterns, in lexical path order. HTML files are reduced to their
// visible text. It returns the number of documents indexed.
func (b *Builder) IndexDir(ctx context.Context, root string, patterns []string) (int, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			b.logger.Warn("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if d.Type().IsRegular() && matchAny(d.Name(), patterns) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", root, err)
	}
	slices.Sort(paths)

	n := 0
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		text, err := ReadText(path)
		if err != nil {
			b.logger.Error("failed to read document", "path", path, "error", err)
			continue
		}
		if _, err := b.AddDocument(ctx, path, text); err != nil {
			return n, err
		}
		n++
		if n%1000 == 0 {
			b.logger.Info("indexing progress", "docs", n, "total", len(paths))
		}
	}
	return n, nil
}

func matchAny(name string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}

// ReadText returns the indexable text of a document file. HTML files are
// reduced to their visible text.
func ReadText(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".html" || ext == ".htm" {
		return tokenizer.ExtractText(f)
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
