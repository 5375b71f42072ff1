package transaction

import (
	"context"
	"fmt"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type RequestRefundCommand struct {
	TransactionID domain.TransactionID
	Reason        string
}

// RequestRefund starts a refund of a transaction whose payment did not go
// through: a KO authorization or closure, a failed closure, or a failed refund.
func (s *Service) RequestRefund(ctx context.Context, cmd RequestRefundCommand) (aggregate.RefundRequested, error) {
	state, err := s.execute(ctx, operation{
		command: "request_refund",
		id:      cmd.TransactionID,
		decide: func(_ context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			switch st := state.(type) {
			case aggregate.AuthorizationCompleted:
				if st.AuthorizationResult.Outcome != domain.OutcomeKO {
					return nil, fmt.Errorf("authorization outcome %s: %w", st.AuthorizationResult.Outcome, domain.ErrIllegalTransition)
				}
			case aggregate.Closed:
				if st.Closure.Outcome != domain.OutcomeKO {
					return nil, fmt.Errorf("closure outcome %s: %w", st.Closure.Outcome, domain.ErrIllegalTransition)
				}
			case aggregate.ClosureError, aggregate.RefundError:
			default:
				return nil, illegal(state)
			}
			return []domain.EventData{domain.RefundRequestedData{Reason: cmd.Reason}}, nil
		},
	})
	if err != nil {
		return aggregate.RefundRequested{}, err
	}
	return state.(aggregate.RefundRequested), nil
}

// Refund asks the gateway to return the authorized amount plus fee. A
// gateway failure is recorded as RefundFailed and also returned.
func (s *Service) Refund(ctx context.Context, id domain.TransactionID) (aggregate.Transaction, error) {
	var refund upstream[string]
	return s.execute(ctx, operation{
		command: "refund",
		id:      id,
		decide: func(ctx context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			requested, ok := state.(aggregate.RefundRequested)
			if !ok {
				return nil, illegal(state)
			}

			auth := requested.Authorization
			refundID, err := refund.call(func() (string, error) {
				return s.gateway.Refund(ctx, id, auth.AuthorizationRequestID, auth.Amount+auth.Fee)
			})
			if err != nil {
				if ctx.Err() != nil {
					return nil, err
				}
				return []domain.EventData{domain.RefundFailedData{Reason: err.Error()}}, err
			}
			return []domain.EventData{domain.RefundedData{RefundID: refundID}}, nil
		},
	})
}
