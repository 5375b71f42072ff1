package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/client"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

type RequestAuthorizationCommand struct {
	TransactionID       domain.TransactionID
	Amount              domain.Amount
	Fee                 domain.Amount
	PaymentInstrumentID string
	PspID               string
	PaymentTypeCode     string
	PaymentMethodName   string
	PspBusinessName     string
	Gateway             domain.Gateway
	Language            string
	// TimeoutMillis bounds how long the gateway outcome may take. Zero, or
	// anything above the configured timeout, uses the configured timeout.
	TimeoutMillis int64
}

// RequestAuthorization opens an authorization with the gateway for an
// activated transaction. The gateway is only called once the state allows it.
func (s *Service) RequestAuthorization(ctx context.Context, cmd RequestAuthorizationCommand) (aggregate.AuthorizationRequested, error) {
	if err := validateAuthorizationRequest(cmd); err != nil {
		return aggregate.AuthorizationRequested{}, fmt.Errorf("RequestAuthorization: %w", err)
	}
	timeout := cmd.TimeoutMillis
	if timeout == 0 || timeout > s.config.AuthorizationTimeout {
		timeout = s.config.AuthorizationTimeout
	}

	var opened upstream[client.AuthorizationResponse]
	state, err := s.execute(ctx, operation{
		command: "request_authorization",
		id:      cmd.TransactionID,
		decide: func(ctx context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			activated, ok := state.(aggregate.Activated)
			if !ok {
				return nil, illegal(state)
			}
			if total := activated.Amount(); cmd.Amount != total {
				return nil, fmt.Errorf("amount %d, notices total %d: %w", cmd.Amount, total, domain.ErrAmountMismatch)
			}

			resp, err := opened.call(func() (client.AuthorizationResponse, error) {
				return s.gateway.RequestAuthorization(ctx, client.AuthorizationRequest{
					TransactionID:       cmd.TransactionID,
					Amount:              cmd.Amount,
					Fee:                 cmd.Fee,
					PspID:               cmd.PspID,
					Gateway:             cmd.Gateway,
					PaymentInstrumentID: cmd.PaymentInstrumentID,
					Language:            cmd.Language,
				})
			})
			if err != nil {
				return nil, err
			}

			return []domain.EventData{domain.AuthorizationRequestedData{
				Amount:                 cmd.Amount,
				Fee:                    cmd.Fee,
				PaymentInstrumentID:    cmd.PaymentInstrumentID,
				PspID:                  cmd.PspID,
				PaymentTypeCode:        cmd.PaymentTypeCode,
				PaymentMethodName:      cmd.PaymentMethodName,
				PspBusinessName:        cmd.PspBusinessName,
				Gateway:                cmd.Gateway,
				AuthorizationRequestID: resp.AuthorizationRequestID,
				RedirectURL:            resp.RedirectURL,
				TimeoutMillis:          timeout,
			}}, nil
		},
	})
	if err != nil {
		return aggregate.AuthorizationRequested{}, err
	}
	return state.(aggregate.AuthorizationRequested), nil
}

func validateAuthorizationRequest(cmd RequestAuthorizationCommand) error {
	switch {
	case cmd.Amount <= 0:
		return domain.ErrInvalidAmount
	case cmd.Fee < 0:
		return domain.ErrInvalidFee
	case !cmd.Gateway.IsValid():
		return fmt.Errorf("gateway %q: %w", cmd.Gateway, domain.ErrInvalidGateway)
	case cmd.PspID == "" || cmd.PaymentInstrumentID == "":
		return fmt.Errorf("psp and payment instrument are required: %w", domain.ErrInvalidRequest)
	case cmd.TimeoutMillis < 0:
		return fmt.Errorf("negative timeout: %w", domain.ErrInvalidRequest)
	}
	return nil
}

type CompleteAuthorizationCommand struct {
	TransactionID          domain.TransactionID
	AuthorizationRequestID string
	// PspID is checked against the pending authorization for redirect gateways.
	PspID             string
	Outcome           domain.Outcome
	AuthorizationCode string
	RRN               string
	ErrorCode         string
}

// OutcomeKey is the dedup key of a gateway outcome delivery.
func OutcomeKey(authorizationRequestID string) string {
	return "authorization-outcome:" + authorizationRequestID
}

// CompleteAuthorization records the gateway's authorization outcome. A
// redelivered outcome fails with ErrAlreadyProcessed; the dedup mark is only
// kept when the outcome was recorded.
func (s *Service) CompleteAuthorization(ctx context.Context, cmd CompleteAuthorizationCommand) (aggregate.AuthorizationCompleted, error) {
	if !cmd.Outcome.IsValid() {
		return aggregate.AuthorizationCompleted{}, fmt.Errorf("CompleteAuthorization: outcome %q: %w", cmd.Outcome, domain.ErrInvalidOutcome)
	}
	if cmd.AuthorizationRequestID == "" {
		return aggregate.AuthorizationCompleted{}, fmt.Errorf("CompleteAuthorization: %w", domain.ErrGatewayTxnMismatch)
	}

	key := OutcomeKey(cmd.AuthorizationRequestID)
	if err := s.locks.MarkProcessed(ctx, key, s.config.OperationKeyTTL); err != nil {
		return aggregate.AuthorizationCompleted{}, fmt.Errorf("CompleteAuthorization: %w", err)
	}

	state, err := s.execute(ctx, operation{
		command: "complete_authorization",
		id:      cmd.TransactionID,
		decide: func(ctx context.Context, state aggregate.Transaction) ([]domain.EventData, error) {
			pending, ok := state.(aggregate.AuthorizationRequested)
			if !ok {
				return nil, illegal(state)
			}
			if err := s.checkOutcome(pending, cmd); err != nil {
				return nil, err
			}
			return []domain.EventData{domain.AuthorizationCompletedData{
				Outcome:           cmd.Outcome,
				AuthorizationCode: cmd.AuthorizationCode,
				RRN:               cmd.RRN,
				ErrorCode:         cmd.ErrorCode,
			}}, nil
		},
	})
	if err != nil {
		if ferr := s.locks.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			logging.FromContext(ctx).Error("failed to release outcome key", "key", key, "error", ferr)
		}
		return aggregate.AuthorizationCompleted{}, err
	}
	return state.(aggregate.AuthorizationCompleted), nil
}

func (s *Service) checkOutcome(pending aggregate.AuthorizationRequested, cmd CompleteAuthorizationCommand) error {
	auth := pending.Authorization
	if cmd.AuthorizationRequestID != auth.AuthorizationRequestID {
		return fmt.Errorf("authorization request %q, pending %q: %w", cmd.AuthorizationRequestID, auth.AuthorizationRequestID, domain.ErrGatewayTxnMismatch)
	}
	if auth.Gateway == domain.GatewayRedirect && cmd.PspID != auth.PspID {
		return fmt.Errorf("psp %q, pending %q: %w", cmd.PspID, auth.PspID, domain.ErrPspMismatch)
	}

	// An outcome exactly at the deadline is still on time.
	if now := s.now(); now.After(pending.AuthorizationDeadline()) {
		return fmt.Errorf("outcome at %s, deadline %s: %w",
			now.UTC().Format(time.RFC3339Nano),
			pending.AuthorizationDeadline().UTC().Format(time.RFC3339Nano),
			domain.ErrAuthorizationTimeout,
		)
	}
	return nil
}
