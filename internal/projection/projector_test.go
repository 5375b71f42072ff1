package projection_test

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/memstore"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
)

type results struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *results) ProjectionApplied(result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[result]++
}

type fixture struct {
	log       *memstore.EventLog
	views     *memstore.Views
	results   *results
	projector *projection.Projector
}

func newFixture() *fixture {
	f := &fixture{
		log:     memstore.NewEventLog(),
		views:   memstore.NewViews(),
		results: &results{},
	}
	f.projector = projection.NewProjector(f.log, f.views, memstore.NewCheckpoints(), f.results, slog.Default(), time.Hour, 100)
	return f
}

func (f *fixture) append(t *testing.T, id domain.TransactionID, data ...domain.EventData) []domain.Event {
	t.Helper()
	existing, err := f.log.Load(context.Background(), id)
	require.NoError(t, err)

	events := make([]domain.Event, len(data))
	for i, d := range data {
		v := int64(len(existing) + i + 1)
		events[i] = domain.Event{
			ID:            uuid.New(),
			TransactionID: id,
			Version:       v,
			CreatedAt:     time.Date(2026, 3, 1, 12, 0, int(v), 0, time.UTC),
			Data:          d,
		}
	}
	stored, err := f.log.Append(context.Background(), id, int64(len(existing)), events)
	require.NoError(t, err)
	return stored
}

func activation() []domain.EventData {
	return []domain.EventData{
		domain.ActivationRequestedData{
			Notices:  []domain.PaymentNotice{{RptID: "77777777777302016723749670035", Amount: 100, Description: "TARI"}},
			Email:    "enc:abc",
			ClientID: domain.ClientCheckout,
		},
		domain.ActivatedData{PaymentTokens: []string{"token-1"}},
	}
}

func authRequested() domain.AuthorizationRequestedData {
	return domain.AuthorizationRequestedData{
		Amount:                 100,
		Fee:                    5,
		PspID:                  "PSP1",
		Gateway:                domain.GatewayXPay,
		AuthorizationRequestID: "gw-1",
		TimeoutMillis:          600000,
	}
}

func TestProjector_ApplyBuildsView(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := domain.NewTransactionID()

	for _, ev := range f.append(t, id, append(activation(), authRequested())...) {
		require.NoError(t, f.projector.Apply(ctx, ev))
	}

	v, err := f.projector.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusAuthorizationRequested, v.Status)
	assert.Equal(t, int64(3), v.Version)
	assert.Equal(t, domain.Amount(100), v.Amount)
	assert.Equal(t, domain.Amount(5), v.Fee)
	assert.Equal(t, "token-1", v.Notices[0].PaymentToken)
	assert.Equal(t, "gw-1", v.AuthorizationRequestID)
	assert.Equal(t, 1, f.results.counts["created"])
	assert.Equal(t, 2, f.results.counts["updated"])
}

func TestProjector_ApplyIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := domain.NewTransactionID()
	events := f.append(t, id, activation()...)

	for _, ev := range events {
		require.NoError(t, f.projector.Apply(ctx, ev))
	}
	before, err := f.projector.Get(ctx, id)
	require.NoError(t, err)

	for _, ev := range events {
		require.NoError(t, f.projector.Apply(ctx, ev))
	}
	after, err := f.projector.Get(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, 2, f.results.counts["duplicate"])
}

func TestProjector_ApplyWithoutViewNeedsFirstEvent(t *testing.T) {
	f := newFixture()
	id := domain.NewTransactionID()
	events := f.append(t, id, activation()...)

	err := f.projector.Apply(context.Background(), events[1])
	assert.ErrorIs(t, err, domain.ErrViewNotFound)
}

func TestProjector_ApplyDetectsGap(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := domain.NewTransactionID()
	events := f.append(t, id, append(activation(), authRequested())...)

	require.NoError(t, f.projector.Apply(ctx, events[0]))
	err := f.projector.Apply(ctx, events[2])
	assert.ErrorIs(t, err, domain.ErrProjectionGap)
}

func TestProjector_GetUnknown(t *testing.T) {
	_, err := newFixture().projector.Get(context.Background(), domain.NewTransactionID())
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
}

func TestProjector_RebuildMatchesIncremental(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := domain.NewTransactionID()
	events := f.append(t, id, append(activation(),
		authRequested(),
		domain.AuthorizationCompletedData{Outcome: domain.OutcomeKO, ErrorCode: "116"},
		domain.RefundRequestedData{Reason: "authorization KO"},
		domain.RefundedData{RefundID: "rf-1"},
	)...)

	for _, ev := range events {
		require.NoError(t, f.projector.Apply(ctx, ev))
	}
	incremental, err := f.projector.Get(ctx, id)
	require.NoError(t, err)

	rebuilt, err := f.projector.Rebuild(ctx, id)
	require.NoError(t, err)

	assert.Equal(t, incremental, rebuilt)
	assert.Equal(t, aggregate.StatusRefunded, rebuilt.Status)
	assert.Equal(t, "rf-1", rebuilt.RefundID)
}

func TestProjector_RebuildRejectsCorruptLog(t *testing.T) {
	f := newFixture()
	id := domain.NewTransactionID()
	f.append(t, id, activation()[0], domain.ClosedData{Outcome: domain.OutcomeOK})

	_, err := f.projector.Rebuild(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrCorruptLog)
}

func TestProjector_CatchUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	a, b := domain.NewTransactionID(), domain.NewTransactionID()
	f.append(t, a, activation()...)
	f.append(t, b, activation()...)

	n, err := f.projector.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	n, err = f.projector.CatchUp(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, id := range []domain.TransactionID{a, b} {
		v, err := f.projector.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, aggregate.StatusActivated, v.Status)
	}
}

func TestProjector_CatchUpRebuildsLostView(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := domain.NewTransactionID()
	for _, ev := range f.append(t, id, activation()...) {
		require.NoError(t, f.projector.Apply(ctx, ev))
	}
	_, err := f.projector.CatchUp(ctx)
	require.NoError(t, err)

	f.views.Delete(id)
	f.append(t, id, authRequested())

	n, err := f.projector.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	v, err := f.projector.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusAuthorizationRequested, v.Status)
	assert.Equal(t, int64(3), v.Version)
	assert.Equal(t, 1, f.results.counts["rebuilt"])
}

func TestProjector_CatchUpSkipsCorruptTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	bad, good := domain.NewTransactionID(), domain.NewTransactionID()
	f.append(t, bad, activation()[0])
	_, err := f.projector.CatchUp(ctx)
	require.NoError(t, err)

	f.views.Delete(bad)
	f.append(t, bad, domain.ClosedData{Outcome: domain.OutcomeOK})
	f.append(t, good, activation()...)

	n, err := f.projector.CatchUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	_, err = f.projector.Get(ctx, bad)
	assert.ErrorIs(t, err, domain.ErrTransactionNotFound)

	v, err := f.projector.Get(ctx, good)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusActivated, v.Status)
}
