// Package consumer reads document events from Kafka and feeds them to the
// index builder.
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/kafka"
)

// DocumentEvent is the payload of the document-ingest topic. A missing
// doc_id lets the builder assign the next free id.
type DocumentEvent struct {
	DocID *int   `json:"doc_id,omitempty"`
	Name  string `json:"name"`
	Body  string `json:"body"`
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start consumes until ctx is cancelled or the topic is exhausted.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

func (ic *IndexConsumer) Close() error {
	return ic.consumer.Close()
}

// HandleMessage returns a MessageHandler that indexes each document event.
// Undecodable events are logged and acknowledged so they do not block the
// partition; indexing failures are returned and the message stays
// uncommitted.
func HandleMessage(b *indexer.Builder) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[DocumentEvent](value)
		if err != nil {
			logger.Error("failed to decode document event",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		name := event.Name
		if name == "" {
			name = string(key)
		}

		var docID int
		if event.DocID != nil {
			docID = *event.DocID
			err = b.AddDocumentWithID(ctx, docID, name, event.Body)
		} else {
			docID, err = b.AddDocument(ctx, name, event.Body)
		}
		if err != nil {
			return fmt.Errorf("indexing document %q: %w", name, err)
		}
		logger.Debug("document indexed", "doc_id", docID, "name", name)
		return nil
	}
}
