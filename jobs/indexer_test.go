package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/stockroom-app/stockroom/internal/ledger"
	"github.com/stockroom-app/stockroom/internal/shared"
)

type fakeSource struct {
	summaries map[int64]ledger.Summary
}

func (f *fakeSource) GetSummary(_ context.Context, _, transactionID int64) (ledger.Summary, error) {
	s, ok := f.summaries[transactionID]
	if !ok {
		return ledger.Summary{}, shared.ErrNotFound
	}
	return s, nil
}

type fakeSink struct {
	savedID      int64
	savedSummary string
	savedVector  []float64
}

func (f *fakeSink) SaveEmbedding(_ context.Context, transactionID int64, summary string, vector []float64) error {
	f.savedID = transactionID
	f.savedSummary = summary
	f.savedVector = vector
	return nil
}

func newEmbeddingsServer(t *testing.T, vector []float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req["input"])
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": vector}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHandleTransactionIndexTask(t *testing.T) {
	posted := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	source := &fakeSource{summaries: map[int64]ledger.Summary{
		42: {
			TransactionID: 42,
			Action:        ledger.ActionTransfered,
			FromWarehouse: "North Depot",
			ToWarehouse:   "South Depot",
			PostedAt:      posted,
			Description:   "rebalancing before audit",
			Items: []ledger.SummaryItem{
				{MaterialName: "steel rod", Quantity: 4},
				{MaterialName: "bolt", Quantity: 2.5},
			},
		},
	}}
	sink := &fakeSink{}
	srv := newEmbeddingsServer(t, []float64{0.1, 0.2, 0.3})
	ix := NewIndexer(slog.Default(), source, sink, NewEmbeddingsClient(srv.URL, "test-model"))

	payload, err := json.Marshal(TransactionIndexPayload{TransactionID: 42, OwnerID: 1})
	require.NoError(t, err)
	err = ix.HandleTransactionIndexTask(context.Background(), asynq.NewTask(TaskTransactionIndex, payload))
	require.NoError(t, err)

	require.Equal(t, int64(42), sink.savedID)
	require.Equal(t, []float64{0.1, 0.2, 0.3}, sink.savedVector)
	require.Contains(t, sink.savedSummary, "North Depot")
	require.Contains(t, sink.savedSummary, "steel rod (4)")
	require.Contains(t, sink.savedSummary, "rebalancing before audit")
}

func TestHandleTransactionIndexTaskSkipsMissing(t *testing.T) {
	source := &fakeSource{summaries: map[int64]ledger.Summary{}}
	sink := &fakeSink{}
	srv := newEmbeddingsServer(t, []float64{0.1})
	ix := NewIndexer(slog.Default(), source, sink, NewEmbeddingsClient(srv.URL, "test-model"))

	payload, _ := json.Marshal(TransactionIndexPayload{TransactionID: 99, OwnerID: 1})
	err := ix.HandleTransactionIndexTask(context.Background(), asynq.NewTask(TaskTransactionIndex, payload))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, sink.savedID)
}

func TestHandleTransactionIndexTaskBadPayload(t *testing.T) {
	ix := NewIndexer(slog.Default(), &fakeSource{}, &fakeSink{}, nil)
	err := ix.HandleTransactionIndexTask(context.Background(), asynq.NewTask(TaskTransactionIndex, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestComposeSummaryShapes(t *testing.T) {
	posted := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	added := ComposeSummary(ledger.Summary{Action: ledger.ActionAdded, ToWarehouse: "Main", PostedAt: posted})
	require.Contains(t, added, "added to Main")
	require.Contains(t, added, "2025-03-14")

	removed := ComposeSummary(ledger.Summary{Action: ledger.ActionRemoved, FromWarehouse: "Main", PostedAt: posted})
	require.Contains(t, removed, "removed from Main")
}
