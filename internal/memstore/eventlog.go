// Package memstore holds in-process implementations of the event log and
// read-model stores, for tests and local runs without Postgres.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

// record is the stored form of an event. Payloads go through the same codec
// as the Postgres log so schema handling is exercised here too.
type record struct {
	id            uuid.UUID
	transactionID domain.TransactionID
	version       int64
	seq           int64
	kind          domain.EventKind
	schemaVersion int
	payload       json.RawMessage
	createdAt     time.Time
}

type EventLog struct {
	mu      sync.RWMutex
	seq     int64
	streams map[domain.TransactionID][]record
	all     []record
}

func NewEventLog() *EventLog {
	return &EventLog{streams: map[domain.TransactionID][]record{}}
}

func (l *EventLog) Append(_ context.Context, id domain.TransactionID, expectedVersion int64, events []domain.Event) ([]domain.Event, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("Append: no events: %w", domain.ErrInvalidRequest)
	}

	recs := make([]record, len(events))
	for i, ev := range events {
		if ev.TransactionID != id || ev.Version != expectedVersion+int64(i+1) {
			return nil, fmt.Errorf("Append: event %d out of sequence: %w", i, domain.ErrInvalidRequest)
		}
		payload, schema, err := domain.EncodeEventData(ev.Data)
		if err != nil {
			return nil, fmt.Errorf("Append: %w", err)
		}
		recs[i] = record{
			id:            ev.ID,
			transactionID: id,
			version:       ev.Version,
			kind:          ev.Kind(),
			schemaVersion: schema,
			payload:       payload,
			createdAt:     ev.CreatedAt,
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stream := l.streams[id]
	if int64(len(stream)) != expectedVersion {
		return nil, fmt.Errorf("Append: head v%d, expected v%d: %w", len(stream), expectedVersion, domain.ErrVersionConflict)
	}

	out := make([]domain.Event, len(events))
	for i := range recs {
		l.seq++
		recs[i].seq = l.seq
		out[i] = events[i]
		out[i].Seq = l.seq
	}
	l.streams[id] = append(stream, recs...)
	l.all = append(l.all, recs...)
	return out, nil
}

func (l *EventLog) Load(_ context.Context, id domain.TransactionID) ([]domain.Event, error) {
	l.mu.RLock()
	stream := append([]record(nil), l.streams[id]...)
	l.mu.RUnlock()

	return decodeAll(stream)
}

func (l *EventLog) LoadSince(_ context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	l.mu.RLock()
	var batch []record
	for _, r := range l.all {
		if r.seq <= afterSeq {
			continue
		}
		batch = append(batch, r)
		if len(batch) == limit {
			break
		}
	}
	l.mu.RUnlock()

	return decodeAll(batch)
}

func decodeAll(recs []record) ([]domain.Event, error) {
	if len(recs) == 0 {
		return nil, nil
	}
	out := make([]domain.Event, len(recs))
	for i, r := range recs {
		data, err := domain.DecodeEventData(r.kind, r.schemaVersion, r.payload)
		if err != nil {
			return nil, fmt.Errorf("decode %s v%d: %w", r.transactionID, r.version, err)
		}
		out[i] = domain.Event{
			ID:            r.id,
			TransactionID: r.transactionID,
			Version:       r.version,
			Seq:           r.seq,
			CreatedAt:     r.createdAt,
			Data:          data,
		}
	}
	return out, nil
}
