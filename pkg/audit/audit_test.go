package audit_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/meedprogram/meedkit/pkg/audit"
)

type mockBatchWriter struct {
	mock.Mock
	mu     sync.Mutex
	stored []audit.Event
}

func (m *mockBatchWriter) StoreBatch(ctx context.Context, events []audit.Event) error {
	args := m.Called(ctx, events)
	m.mu.Lock()
	m.stored = append(m.stored, events...)
	m.mu.Unlock()
	return args.Error(0)
}

func (m *mockBatchWriter) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.stored)
}

type requestIDKey struct{}

func TestLogger_Log(t *testing.T) {
	t.Parallel()

	storage := audit.NewMemoryStorage()
	journal := audit.NewLogger(storage,
		audit.WithRequestIDExtractor(func(ctx context.Context) (string, bool) {
			id, ok := ctx.Value(requestIDKey{}).(string)
			return id, ok
		}),
		audit.WithActorExtractor(func(context.Context) (string, bool) { return "0xowner", true }),
	)

	ctx := context.WithValue(context.Background(), requestIDKey{}, "req-1")
	require.NoError(t, journal.Log(ctx, audit.ActionSubscribedOrExtended,
		audit.WithSubscriber("0xbrand"),
		audit.WithMembershipID(7),
		audit.WithMetadata("expires_at", "2026-02-01T00:00:00Z"),
	))
	require.NoError(t, journal.LogError(ctx, audit.ActionCreditsDeducted, errors.New("insufficient"),
		audit.WithSubscriber("0xbrand"),
		audit.WithActor("0xcollab"),
	))

	events, err := storage.Find(ctx, audit.Criteria{Subscriber: "0xbrand"})
	require.NoError(t, err)
	require.Len(t, events, 2)

	first := events[0]
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, audit.ActionSubscribedOrExtended, first.Action)
	assert.Equal(t, audit.ResultSuccess, first.Result)
	assert.Equal(t, int64(7), first.MembershipID)
	assert.Equal(t, "req-1", first.RequestID)
	assert.Equal(t, "0xowner", first.Actor)
	assert.Equal(t, "2026-02-01T00:00:00Z", first.Metadata["expires_at"])

	second := events[1]
	assert.Equal(t, audit.ResultError, second.Result)
	assert.Equal(t, "insufficient", second.Error)
	assert.Equal(t, "0xcollab", second.Actor)

	only, err := storage.Find(ctx, audit.Criteria{Action: audit.ActionCreditsDeducted, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, only, 1)
}

func TestLogger_RejectsEmptyAction(t *testing.T) {
	t.Parallel()

	err := audit.NewLogger(audit.NewMemoryStorage()).Log(context.Background(), "")
	assert.ErrorIs(t, err, audit.ErrEventValidation)
}

func TestLogger_NilStorageDiscards(t *testing.T) {
	t.Parallel()

	assert.NoError(t, audit.NewLogger(nil).Log(context.Background(), audit.ActionPriceUpdated))

	var journal *audit.Logger
	assert.NoError(t, journal.Log(context.Background(), audit.ActionPriceUpdated))
}

func TestSlogStorage(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	journal := audit.NewLogger(audit.NewSlogStorage(log))

	require.NoError(t, journal.Log(context.Background(), audit.ActionRevenueWithdrawn,
		audit.WithActor("0xowner"),
		audit.WithMetadata("amount", "1.5 ETH"),
	))

	out := buf.String()
	assert.Contains(t, out, `"action":"treasury.revenue_withdrawn"`)
	assert.Contains(t, out, `"actor":"0xowner"`)
	assert.Contains(t, out, `"amount":"1.5 ETH"`)
	assert.Contains(t, out, `"component":"audit"`)
}

func TestAsyncWriter_FlushesOnClose(t *testing.T) {
	t.Parallel()

	bw := &mockBatchWriter{}
	bw.On("StoreBatch", mock.Anything, mock.Anything).Return(nil)

	w := audit.NewAsyncWriter(bw, audit.AsyncOptions{BatchSize: 10, BatchTimeout: time.Hour})
	journal := audit.NewLogger(w)
	for range 25 {
		require.NoError(t, journal.Log(context.Background(), audit.ActionCreditsAdded))
	}

	require.NoError(t, w.Close(context.Background()))
	assert.Equal(t, 25, bw.count())

	assert.ErrorIs(t, w.Store(context.Background(), audit.Event{Action: "late"}), audit.ErrStorageNotAvailable)
	require.NoError(t, w.Close(context.Background()))
}

func TestAsyncWriter_FlushesOnTimer(t *testing.T) {
	t.Parallel()

	bw := &mockBatchWriter{}
	bw.On("StoreBatch", mock.Anything, mock.Anything).Return(nil)

	w := audit.NewAsyncWriter(bw, audit.AsyncOptions{BatchSize: 100, BatchTimeout: 5 * time.Millisecond})
	t.Cleanup(func() { _ = w.Close(context.Background()) })

	require.NoError(t, w.Store(context.Background(), audit.Event{Action: audit.ActionCreditsAdded}))
	assert.Eventually(t, func() bool { return bw.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestAsyncWriter_ReportsErrors(t *testing.T) {
	t.Parallel()

	bw := &mockBatchWriter{}
	bw.On("StoreBatch", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	var (
		mu     sync.Mutex
		failed int
	)
	w := audit.NewAsyncWriter(bw, audit.AsyncOptions{
		BatchSize:    1,
		BatchTimeout: time.Hour,
		OnError: func(_ error, events []audit.Event) {
			mu.Lock()
			failed += len(events)
			mu.Unlock()
		},
	})
	require.NoError(t, w.Store(context.Background(), audit.Event{Action: audit.ActionCreditsAdded}))
	require.NoError(t, w.Close(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, failed)
}
