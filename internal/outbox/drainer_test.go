package outbox

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type memoryStorage struct {
	pending   []Event
	published []int64
	released  []int64
}

func (m *memoryStorage) ClaimPending(_ context.Context, limit int, _ time.Duration) ([]Event, error) {
	if limit > len(m.pending) {
		limit = len(m.pending)
	}
	batch := m.pending[:limit]
	m.pending = m.pending[limit:]
	return batch, nil
}

func (m *memoryStorage) MarkPublished(_ context.Context, id int64) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memoryStorage) Release(_ context.Context, id int64, _ time.Time, _ string) error {
	m.released = append(m.released, id)
	return nil
}

type flakyPublisher struct {
	failIDs map[int64]bool
	seen    []int64
}

func (p *flakyPublisher) Publish(_ context.Context, event Event) error {
	p.seen = append(p.seen, event.ID)
	if p.failIDs[event.ID] {
		return errors.New("broker unavailable")
	}
	return nil
}

func TestDrainOncePublishesBatch(t *testing.T) {
	storage := &memoryStorage{pending: []Event{{ID: 1}, {ID: 2}, {ID: 3}}}
	pub := &flakyPublisher{}
	d := NewDrainer(slog.Default(), storage, pub, 10, time.Second, time.Minute)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []int64{1, 2, 3}, storage.published)
	require.Empty(t, storage.released)
}

func TestDrainOnceReleasesFailures(t *testing.T) {
	storage := &memoryStorage{pending: []Event{{ID: 1}, {ID: 2}}}
	pub := &flakyPublisher{failIDs: map[int64]bool{2: true}}
	d := NewDrainer(slog.Default(), storage, pub, 10, time.Second, time.Minute)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []int64{1}, storage.published)
	require.Equal(t, []int64{2}, storage.released)
}

func TestDrainOnceHonoursBatchSize(t *testing.T) {
	storage := &memoryStorage{pending: []Event{{ID: 1}, {ID: 2}, {ID: 3}}}
	pub := &flakyPublisher{}
	d := NewDrainer(slog.Default(), storage, pub, 2, time.Second, time.Minute)

	n, err := d.DrainOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Len(t, storage.pending, 1)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	require.Equal(t, time.Second, backoff(0))
	require.Equal(t, 2*time.Second, backoff(1))
	require.Equal(t, 16*time.Second, backoff(4))
	require.Equal(t, maxBackoff, backoff(30))
}
