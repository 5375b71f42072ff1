package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/client"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

// RequestClosure marks an authorized transaction as ready to be closed with
// the node. A failed closure may be requested again.
func (s *Service) RequestClosure(ctx context.Context, id domain.TransactionID) (aggregate.ClosureRequested, error) {
	state, err := s.execute(ctx, operation{
		command: "request_closure",
		id:      id,
		decide: func(_ context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			switch st := state.(type) {
			case aggregate.AuthorizationCompleted:
				if st.AuthorizationResult.Outcome != domain.OutcomeOK {
					return nil, fmt.Errorf("authorization outcome %s: %w", st.AuthorizationResult.Outcome, domain.ErrIllegalTransition)
				}
			case aggregate.ClosureError:
			default:
				return nil, illegal(state)
			}
			return []domain.EventData{domain.ClosureRequestedData{}}, nil
		},
	})
	if err != nil {
		return aggregate.ClosureRequested{}, err
	}
	return state.(aggregate.ClosureRequested), nil
}

// Close sends the closure to the node. A node failure is recorded as
// ClosureFailed and also returned to the caller.
func (s *Service) Close(ctx context.Context, id domain.TransactionID) (aggregate.Transaction, error) {
	var closure upstream[domain.Outcome]
	return s.execute(ctx, operation{
		command: "close",
		id:      id,
		decide: func(ctx context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			requested, ok := state.(aggregate.ClosureRequested)
			if !ok {
				return nil, illegal(state)
			}

			outcome, err := closure.call(func() (domain.Outcome, error) {
				return s.node.ClosePayment(ctx, client.ClosePaymentRequest{
					TransactionID:     id,
					PaymentTokens:     requested.PaymentTokens,
					AuthorizationCode: requested.AuthorizationResult.AuthorizationCode,
					Outcome:           requested.AuthorizationResult.Outcome,
					TotalAmount:       requested.Amount(),
					Fee:               requested.Authorization.Fee,
					PspID:             requested.Authorization.PspID,
				})
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				return []domain.EventData{domain.ClosureFailedData{
					Reason:    err.Error(),
					Retryable: errors.Is(err, domain.ErrUpstreamTimeout),
				}}, err
			}
			return []domain.EventData{domain.ClosedData{Outcome: outcome}}, nil
		},
	})
}

type AddUserReceiptCommand struct {
	TransactionID domain.TransactionID
	Outcome       domain.Outcome
	PaymentDate   time.Time
}

// AddUserReceipt records the receipt sent to the user for a successful closure.
func (s *Service) AddUserReceipt(ctx context.Context, cmd AddUserReceiptCommand) (aggregate.ClosedWithReceipt, error) {
	if !cmd.Outcome.IsValid() {
		return aggregate.ClosedWithReceipt{}, fmt.Errorf("AddUserReceipt: outcome %q: %w", cmd.Outcome, domain.ErrInvalidOutcome)
	}

	state, err := s.execute(ctx, operation{
		command: "add_user_receipt",
		id:      cmd.TransactionID,
		decide: func(_ context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			closed, ok := state.(aggregate.Closed)
			if !ok {
				return nil, illegal(state)
			}
			if closed.Closure.Outcome != domain.OutcomeOK {
				return nil, fmt.Errorf("closure outcome %s: %w", closed.Closure.Outcome, domain.ErrIllegalTransition)
			}
			date := cmd.PaymentDate
			if date.IsZero() {
				date = s.now()
			}
			return []domain.EventData{domain.UserReceiptAddedData{
				Outcome:     cmd.Outcome,
				PaymentDate: date.UTC().Truncate(time.Microsecond),
			}}, nil
		},
	})
	if err != nil {
		return aggregate.ClosedWithReceipt{}, err
	}
	return state.(aggregate.ClosedWithReceipt), nil
}

// UserCancel cancels a transaction the user abandoned before an outcome arrived.
func (s *Service) UserCancel(ctx context.Context, id domain.TransactionID) (aggregate.Canceled, error) {
	state, err := s.execute(ctx, operation{
		command: "user_cancel",
		id:      id,
		decide: func(_ context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			switch state.(type) {
			case aggregate.Activated, aggregate.AuthorizationRequested:
				return []domain.EventData{domain.UserCanceledData{}}, nil
			}
			return nil, illegal(state)
		},
	})
	if err != nil {
		return aggregate.Canceled{}, err
	}
	return state.(aggregate.Canceled), nil
}
