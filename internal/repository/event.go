package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

const eventColumns = `global_seq, id, transaction_id, version, kind, schema_version, payload, created_at`

// EventRepository is the append-only transaction event log.
type EventRepository struct {
	db *sql.DB
}

func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Append writes events atomically after the stream's head, which must be
// expectedVersion. A concurrent writer that got there first surfaces as
// domain.ErrVersionConflict.
func (r *EventRepository) Append(ctx context.Context, id domain.TransactionID, expectedVersion int64, events []domain.Event) ([]domain.Event, error) {
	if len(events) == 0 {
		return nil, fmt.Errorf("Append: no events: %w", domain.ErrInvalidRequest)
	}

	out := make([]domain.Event, len(events))
	err := inTx(ctx, r.db, func(tx *sql.Tx) error {
		var head int64
		err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(version), 0) FROM transaction_events WHERE transaction_id = $1`,
			id.UUID(),
		).Scan(&head)
		if err != nil {
			return fmt.Errorf("read head: %w", unavailable(err))
		}
		if head != expectedVersion {
			return fmt.Errorf("head v%d, expected v%d: %w", head, expectedVersion, domain.ErrVersionConflict)
		}

		for i, ev := range events {
			if ev.TransactionID != id || ev.Version != expectedVersion+int64(i+1) {
				return fmt.Errorf("event %d out of sequence: %w", i, domain.ErrInvalidRequest)
			}
			payload, schema, err := domain.EncodeEventData(ev.Data)
			if err != nil {
				return err
			}

			out[i] = ev
			err = tx.QueryRowContext(ctx,
				`INSERT INTO transaction_events (id, transaction_id, version, kind, schema_version, payload, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING global_seq`,
				ev.ID, id.UUID(), ev.Version, string(ev.Kind()), schema, []byte(payload), ev.CreatedAt,
			).Scan(&out[i].Seq)
			if isUniqueViolation(err) {
				return fmt.Errorf("insert v%d: %w", ev.Version, domain.ErrVersionConflict)
			}
			if err != nil {
				return fmt.Errorf("insert v%d: %w", ev.Version, unavailable(err))
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Append: %s: %w", id, err)
	}
	return out, nil
}

// Load returns a transaction's events in version order, or nil if it has none.
func (r *EventRepository) Load(ctx context.Context, id domain.TransactionID) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM transaction_events
		WHERE transaction_id = $1 ORDER BY version`, id.UUID(),
	)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", unavailable(err))
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("Load: %s: %w", id, err)
	}
	return events, nil
}

// LoadSince returns up to limit events after afterSeq in global order. Rows
// written by transactions still open below the snapshot horizon are held
// back so a late commit cannot be skipped past.
func (r *EventRepository) LoadSince(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM transaction_events
		WHERE global_seq > $1 AND transaction_xid < pg_snapshot_xmin(pg_current_snapshot())
		ORDER BY global_seq LIMIT $2`, afterSeq, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("LoadSince: %w", unavailable(err))
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("LoadSince: %w", err)
	}
	return events, nil
}

func scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", unavailable(err))
	}
	return events, nil
}

func scanEvent(s scanner) (*domain.Event, error) {
	var (
		ev      domain.Event
		txID    uuid.UUID
		kind    string
		schema  int
		payload []byte
	)
	if err := s.Scan(&ev.Seq, &ev.ID, &txID, &ev.Version, &kind, &schema, &payload, &ev.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan: %w", unavailable(err))
	}

	data, err := domain.DecodeEventData(domain.EventKind(kind), schema, json.RawMessage(payload))
	if err != nil {
		return nil, fmt.Errorf("decode v%d: %w", ev.Version, err)
	}
	ev.TransactionID = domain.TransactionID(txID)
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.Data = data
	return &ev, nil
}
