package transaction

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type NoticeInput struct {
	RptID       string
	Amount      domain.Amount
	Description string
}

type ActivateCommand struct {
	Notices  []NoticeInput
	Email    string
	ClientID domain.ClientID
	IDCart   string
}

// Activate opens a transaction for a cart. Each notice is activated on the
// settlement node first; the request and the tokens are then recorded together.
func (s *Service) Activate(ctx context.Context, cmd ActivateCommand) (aggregate.Activated, error) {
	notices, err := s.validateActivation(cmd)
	if err != nil {
		return aggregate.Activated{}, fmt.Errorf("Activate: %w", err)
	}

	email, err := s.vault.Seal(cmd.Email)
	if err != nil {
		return aggregate.Activated{}, fmt.Errorf("Activate: seal email: %w", err)
	}

	id := domain.NewTransactionID()
	var activation upstream[[]string]
	state, err := s.execute(ctx, operation{
		command: "activate",
		id:      id,
		creates: true,
		decide: func(ctx context.Context, _ aggregate.Transaction) ([]domain.EventData, error) {
			tokens, err := activation.call(func() ([]string, error) {
				tokens := make([]string, len(notices))
				for i, n := range notices {
					token, err := s.node.ActivatePaymentNotice(ctx, id, n)
					if err != nil {
						return nil, err
					}
					tokens[i] = token
				}
				return tokens, nil
			})
			if err != nil {
				return nil, err
			}

			return []domain.EventData{
				domain.ActivationRequestedData{
					Notices:                     notices,
					Email:                       email,
					ClientID:                    cmd.ClientID,
					IDCart:                      cmd.IDCart,
					PaymentTokenValiditySeconds: s.config.PaymentTokenValidity,
				},
				domain.ActivatedData{PaymentTokens: tokens},
			}, nil
		},
	})
	if err != nil {
		return aggregate.Activated{}, err
	}
	return state.(aggregate.Activated), nil
}

func (s *Service) validateActivation(cmd ActivateCommand) ([]domain.PaymentNotice, error) {
	if !cmd.ClientID.IsValid() {
		return nil, fmt.Errorf("client id %q: %w", cmd.ClientID, domain.ErrInvalidClientID)
	}
	if _, err := mail.ParseAddress(cmd.Email); err != nil {
		return nil, domain.ErrInvalidEmail
	}

	notices := make([]domain.PaymentNotice, len(cmd.Notices))
	for i, in := range cmd.Notices {
		n, err := domain.NewPaymentNotice(in.RptID, in.Amount, in.Description)
		if err != nil {
			return nil, err
		}
		notices[i] = n
	}
	if err := domain.ValidateCart(notices, s.config.MaxCartSize); err != nil {
		return nil, err
	}
	return notices, nil
}
