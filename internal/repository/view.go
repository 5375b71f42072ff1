package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
)

const viewColumns = `transaction_id, status, client_id, email, id_cart, notices, amount, fee, psp_id, gateway,
	authorization_request_id, authorization_code, authorization_outcome, authorization_error_code,
	closure_outcome, closure_failure_reason, receipt_outcome, refund_reason, refund_id,
	version, last_event_id, created_at, updated_at`

// ViewRepository stores the transaction read model.
type ViewRepository struct {
	db *sql.DB
}

func NewViewRepository(db *sql.DB) *ViewRepository {
	return &ViewRepository{db: db}
}

func (r *ViewRepository) Get(ctx context.Context, id domain.TransactionID) (*projection.View, error) {
	v, err := scanView(r.db.QueryRowContext(ctx,
		`SELECT `+viewColumns+` FROM transaction_views WHERE transaction_id = $1`, id.UUID(),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	return v, nil
}

func (r *ViewRepository) Create(ctx context.Context, v *projection.View) error {
	args, err := viewArgs(v)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transaction_views (`+viewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		args...,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("Create: %w", domain.ErrVersionConflict)
	}
	if err != nil {
		return fmt.Errorf("Create: %w", unavailable(err))
	}
	return nil
}

// Update overwrites a view that is still at expectedVersion.
func (r *ViewRepository) Update(ctx context.Context, v *projection.View, expectedVersion int64) error {
	args, err := viewArgs(v)
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE transaction_views SET
			status = $2, client_id = $3, email = $4, id_cart = $5, notices = $6, amount = $7, fee = $8,
			psp_id = $9, gateway = $10, authorization_request_id = $11, authorization_code = $12,
			authorization_outcome = $13, authorization_error_code = $14, closure_outcome = $15,
			closure_failure_reason = $16, receipt_outcome = $17, refund_reason = $18, refund_id = $19,
			version = $20, last_event_id = $21, created_at = $22, updated_at = $23
		WHERE transaction_id = $1 AND version = $24`,
		append(args, expectedVersion)...,
	)
	if err != nil {
		return fmt.Errorf("Update: %w", unavailable(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Update: rows affected: %w", unavailable(err))
	}
	if n == 0 {
		return fmt.Errorf("Update: %s at v%d: %w", v.TransactionID, expectedVersion, domain.ErrVersionConflict)
	}
	return nil
}

// Replace writes v unconditionally, creating it if missing.
func (r *ViewRepository) Replace(ctx context.Context, v *projection.View) error {
	args, err := viewArgs(v)
	if err != nil {
		return fmt.Errorf("Replace: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO transaction_views (`+viewColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		ON CONFLICT (transaction_id) DO UPDATE SET
			status = EXCLUDED.status, client_id = EXCLUDED.client_id, email = EXCLUDED.email,
			id_cart = EXCLUDED.id_cart, notices = EXCLUDED.notices, amount = EXCLUDED.amount,
			fee = EXCLUDED.fee, psp_id = EXCLUDED.psp_id, gateway = EXCLUDED.gateway,
			authorization_request_id = EXCLUDED.authorization_request_id,
			authorization_code = EXCLUDED.authorization_code,
			authorization_outcome = EXCLUDED.authorization_outcome,
			authorization_error_code = EXCLUDED.authorization_error_code,
			closure_outcome = EXCLUDED.closure_outcome,
			closure_failure_reason = EXCLUDED.closure_failure_reason,
			receipt_outcome = EXCLUDED.receipt_outcome, refund_reason = EXCLUDED.refund_reason,
			refund_id = EXCLUDED.refund_id, version = EXCLUDED.version,
			last_event_id = EXCLUDED.last_event_id, created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("Replace: %w", unavailable(err))
	}
	return nil
}

func viewArgs(v *projection.View) ([]any, error) {
	notices, err := json.Marshal(v.Notices)
	if err != nil {
		return nil, fmt.Errorf("marshal notices: %w", err)
	}
	return []any{
		v.TransactionID.UUID(), string(v.Status), string(v.ClientID), string(v.Email), v.IDCart, notices,
		int64(v.Amount), int64(v.Fee), v.PspID, string(v.Gateway),
		v.AuthorizationRequestID, v.AuthorizationCode, string(v.AuthorizationOutcome), v.AuthorizationErrorCode,
		string(v.ClosureOutcome), v.ClosureFailureReason, string(v.ReceiptOutcome), v.RefundReason, v.RefundID,
		v.Version, v.LastEventID, v.CreatedAt, v.UpdatedAt,
	}, nil
}

func scanView(s scanner) (*projection.View, error) {
	var (
		v       projection.View
		id      uuid.UUID
		notices []byte
	)
	err := s.Scan(
		&id, (*string)(&v.Status), (*string)(&v.ClientID), (*string)(&v.Email), &v.IDCart, &notices,
		(*int64)(&v.Amount), (*int64)(&v.Fee), &v.PspID, (*string)(&v.Gateway),
		&v.AuthorizationRequestID, &v.AuthorizationCode, (*string)(&v.AuthorizationOutcome), &v.AuthorizationErrorCode,
		(*string)(&v.ClosureOutcome), &v.ClosureFailureReason, (*string)(&v.ReceiptOutcome), &v.RefundReason, &v.RefundID,
		&v.Version, &v.LastEventID, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable(err)
	}
	if err := json.Unmarshal(notices, &v.Notices); err != nil {
		return nil, fmt.Errorf("decode notices: %w: %w", domain.ErrCorruptLog, err)
	}
	v.TransactionID = domain.TransactionID(id)
	v.CreatedAt = v.CreatedAt.UTC()
	v.UpdatedAt = v.UpdatedAt.UTC()
	return &v, nil
}
