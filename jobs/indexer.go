package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/stockroom-app/stockroom/internal/ledger"
	"github.com/stockroom-app/stockroom/internal/shared"
)

// SummarySource loads the denormalised transaction view to index.
type SummarySource interface {
	GetSummary(ctx context.Context, ownerID, transactionID int64) (ledger.Summary, error)
}

// VectorSink stores a computed embedding.
type VectorSink interface {
	SaveEmbedding(ctx context.Context, transactionID int64, summary string, vector []float64) error
}

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// Indexer builds searchable summaries of recorded transactions and stores
// their embeddings.
type Indexer struct {
	logger   *slog.Logger
	source   SummarySource
	sink     VectorSink
	embedder Embedder
}

// NewIndexer constructs an Indexer.
func NewIndexer(logger *slog.Logger, source SummarySource, sink VectorSink, embedder Embedder) *Indexer {
	return &Indexer{logger: logger, source: source, sink: sink, embedder: embedder}
}

// HandleTransactionIndexTask processes TaskTransactionIndex tasks.
func (ix *Indexer) HandleTransactionIndexTask(ctx context.Context, t *asynq.Task) error {
	var payload TransactionIndexPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	summary, err := ix.source.GetSummary(ctx, payload.OwnerID, payload.TransactionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			ix.logger.Warn("indexing skipped, transaction gone", slog.Int64("transaction", payload.TransactionID))
			return asynq.SkipRetry
		}
		return err
	}

	text := ComposeSummary(summary)
	vector, err := ix.embedder.Embed(ctx, text)
	if err != nil {
		return err
	}
	if err := ix.sink.SaveEmbedding(ctx, payload.TransactionID, text, vector); err != nil {
		return err
	}
	ix.logger.Info("transaction indexed", slog.Int64("transaction", payload.TransactionID), slog.Int("dims", len(vector)))
	return nil
}

// ComposeSummary renders a transaction as one human readable sentence so the
// embedding captures action, locations, materials and the free-form note.
func ComposeSummary(s ledger.Summary) string {
	var b strings.Builder
	switch s.Action {
	case ledger.ActionAdded:
		fmt.Fprintf(&b, "Stock added to %s", s.ToWarehouse)
	case ledger.ActionRemoved:
		fmt.Fprintf(&b, "Stock removed from %s", s.FromWarehouse)
	case ledger.ActionTransfered:
		fmt.Fprintf(&b, "Stock transfered from %s to %s", s.FromWarehouse, s.ToWarehouse)
	default:
		fmt.Fprintf(&b, "Stock movement %s", s.Action)
	}
	b.WriteString(" on ")
	b.WriteString(s.PostedAt.Format("2006-01-02"))
	if len(s.Items) > 0 {
		b.WriteString(": ")
		for i, item := range s.Items {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s (%g)", item.MaterialName, item.Quantity)
		}
	}
	if s.Description != "" {
		b.WriteString(". ")
		b.WriteString(s.Description)
	}
	return b.String()
}
