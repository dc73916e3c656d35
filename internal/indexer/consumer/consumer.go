// Package consumer indexes paper records delivered over Kafka and announces
// each indexed document on the index-complete topic.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/document"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/internal/indexer"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Engine/pkg/resilience"
)

// Indexer is the part of the indexing service the consumer drives.
type Indexer interface {
	IndexDocument(ctx context.Context, rec *document.Record, filename string) (indexer.Result, error)
}

// IndexConsumer wraps a Kafka consumer to drive the indexing pipeline.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

// New creates an IndexConsumer backed by the given Kafka consumer.
func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start begins consuming Kafka messages. It blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleMessage returns a Kafka MessageHandler that parses each message value
// as a paper record, keyed by its source file name, and indexes it. Records
// that cannot be parsed are logged and committed so they are not redelivered
// forever. When events is non-nil an IndexEvent is published per document.
func HandleMessage(idx Indexer, events kafka.Publisher) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		filename := string(key)
		rec, err := document.Parse(value, filename)
		if err != nil {
			logger.Error("dropping malformed record",
				"key", filename,
				"error", err,
			)
			return nil
		}

		res, err := idx.IndexDocument(ctx, rec, filename)
		if err != nil {
			if errors.Is(err, apperrors.ErrMalformedRecord) {
				logger.Error("dropping invalid record", "paper_id", rec.PaperID, "error", err)
				return nil
			}
			return fmt.Errorf("indexing document %s: %w", rec.PaperID, err)
		}

		if events != nil {
			event := kafka.Event{
				Key: res.PaperID,
				Value: kafka.IndexEvent{
					PaperID:       res.PaperID,
					TermsAdded:    res.TermsAdded,
					NewTerms:      res.NewTerms,
					LexiconShards: res.Shards.Lexicon,
					IndexShards:   res.Shards.InvertedIndex,
					IndexedAt:     time.Now().UTC(),
				},
			}
			err := resilience.Retry(ctx, "publish-index-event", resilience.RetryConfig{}, func() error {
				return events.Publish(ctx, event)
			})
			if err != nil {
				// The document is already in the barrels; redelivery would
				// double its weights, so only log.
				logger.Error("failed to publish index event", "paper_id", res.PaperID, "error", err)
			}
		}

		logger.Info("document indexed",
			"paper_id", res.PaperID,
			"terms_added", res.TermsAdded,
		)
		return nil
	}
}
