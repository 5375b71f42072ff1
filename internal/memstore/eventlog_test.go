package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

func event(id domain.TransactionID, version int64, data domain.EventData) domain.Event {
	return domain.Event{
		ID:            uuid.New(),
		TransactionID: id,
		Version:       version,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, int(version), 0, time.UTC),
		Data:          data,
	}
}

func activation(id domain.TransactionID) []domain.Event {
	return []domain.Event{
		event(id, 1, domain.ActivationRequestedData{
			Notices:  []domain.PaymentNotice{{RptID: "77777777777302016723749670035", Amount: 100, Description: "TARI"}},
			Email:    "enc:abc",
			ClientID: domain.ClientCheckout,
		}),
		event(id, 2, domain.ActivatedData{PaymentTokens: []string{"token-1"}}),
	}
}

func TestEventLog_AppendAndLoad(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	id := domain.NewTransactionID()

	stored, err := log.Append(ctx, id, 0, activation(id))
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, int64(1), stored[0].Seq)
	assert.Equal(t, int64(2), stored[1].Seq)

	loaded, err := log.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, stored[0].ID, loaded[0].ID)
	assert.Equal(t, domain.EventActivationRequested, loaded[0].Kind())
	assert.Equal(t, []string{"token-1"}, loaded[1].Data.(domain.ActivatedData).PaymentTokens)
}

func TestEventLog_LoadUnknownIsEmpty(t *testing.T) {
	events, err := NewEventLog().Load(context.Background(), domain.NewTransactionID())
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEventLog_StaleExpectedVersion(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	id := domain.NewTransactionID()

	_, err := log.Append(ctx, id, 0, activation(id))
	require.NoError(t, err)

	_, err = log.Append(ctx, id, 0, activation(id))
	assert.ErrorIs(t, err, domain.ErrVersionConflict)

	loaded, err := log.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, loaded, 2)
}

func TestEventLog_RejectsMisnumberedBatch(t *testing.T) {
	id := domain.NewTransactionID()
	events := activation(id)
	events[1].Version = 5

	_, err := NewEventLog().Append(context.Background(), id, 0, events)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestEventLog_LoadSince(t *testing.T) {
	ctx := context.Background()
	log := NewEventLog()
	a, b := domain.NewTransactionID(), domain.NewTransactionID()

	_, err := log.Append(ctx, a, 0, activation(a))
	require.NoError(t, err)
	_, err = log.Append(ctx, b, 0, activation(b))
	require.NoError(t, err)

	batch, err := log.LoadSince(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, int64(2), batch[0].Seq)
	assert.Equal(t, a, batch[0].TransactionID)
	assert.Equal(t, int64(3), batch[1].Seq)
	assert.Equal(t, b, batch[1].TransactionID)

	rest, err := log.LoadSince(ctx, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, rest)
}
