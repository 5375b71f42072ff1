// Package aggregate reconstructs the typed state of a transaction from its
// event log. Each state is its own struct embedding the state it was reached
// from, so a value can only exist if every earlier step happened.
package aggregate

import (
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type Status string

const (
	StatusActivationRequested    Status = "ACTIVATION_REQUESTED"
	StatusActivated              Status = "ACTIVATED"
	StatusAuthorizationRequested Status = "AUTHORIZATION_REQUESTED"
	StatusAuthorizationCompleted Status = "AUTHORIZATION_COMPLETED"
	StatusClosureRequested       Status = "CLOSURE_REQUESTED"
	StatusClosed                 Status = "CLOSED"
	StatusClosureError           Status = "CLOSURE_ERROR"
	StatusClosedWithReceipt      Status = "CLOSED_WITH_RECEIPT"
	StatusCanceled               Status = "CANCELED"
	StatusRefundRequested        Status = "REFUND_REQUESTED"
	StatusRefunded               Status = "REFUNDED"
	StatusRefundError            Status = "REFUND_ERROR"
)

func (s Status) IsTerminal() bool {
	switch s {
	case StatusClosedWithReceipt, StatusCanceled, StatusRefunded:
		return true
	}
	return false
}

// Transaction is implemented only by the state types in this package.
type Transaction interface {
	ID() domain.TransactionID
	Status() Status
	sealed()
}

type ActivationRequested struct {
	TransactionID               domain.TransactionID
	Notices                     []domain.PaymentNotice
	Email                       domain.Confidential
	ClientID                    domain.ClientID
	IDCart                      string
	PaymentTokenValiditySeconds int
	CreatedAt                   time.Time
}

func (s ActivationRequested) ID() domain.TransactionID { return s.TransactionID }
func (s ActivationRequested) Status() Status           { return StatusActivationRequested }
func (ActivationRequested) sealed()                    {}

// Amount is the sum of the notice amounts, excluding fees.
func (s ActivationRequested) Amount() domain.Amount { return domain.TotalAmount(s.Notices) }

type Activated struct {
	ActivationRequested
	PaymentTokens []string
	ActivatedAt   time.Time
}

func (s Activated) Status() Status { return StatusActivated }

// NoticesWithTokens returns a copy of the notices with their payment tokens filled in.
func (s Activated) NoticesWithTokens() []domain.PaymentNotice {
	out := make([]domain.PaymentNotice, len(s.Notices))
	for i, n := range s.Notices {
		n.PaymentToken = s.PaymentTokens[i]
		out[i] = n
	}
	return out
}

type AuthorizationRequested struct {
	Activated
	Authorization            domain.AuthorizationRequestedData
	AuthorizationRequestedAt time.Time
}

func (s AuthorizationRequested) Status() Status { return StatusAuthorizationRequested }

// AuthorizationDeadline is the last instant at which an outcome is accepted.
func (s AuthorizationRequested) AuthorizationDeadline() time.Time {
	return s.AuthorizationRequestedAt.Add(time.Duration(s.Authorization.TimeoutMillis) * time.Millisecond)
}

type AuthorizationCompleted struct {
	AuthorizationRequested
	AuthorizationResult      domain.AuthorizationCompletedData
	AuthorizationCompletedAt time.Time
}

func (s AuthorizationCompleted) Status() Status { return StatusAuthorizationCompleted }

type ClosureRequested struct {
	AuthorizationCompleted
	ClosureRequestedAt time.Time
}

func (s ClosureRequested) Status() Status { return StatusClosureRequested }

type Closed struct {
	ClosureRequested
	Closure  domain.ClosedData
	ClosedAt time.Time
}

func (s Closed) Status() Status { return StatusClosed }

type ClosureError struct {
	ClosureRequested
	ClosureFailure  domain.ClosureFailedData
	ClosureFailedAt time.Time
}

func (s ClosureError) Status() Status { return StatusClosureError }

type ClosedWithReceipt struct {
	Closed
	Receipt        domain.UserReceiptAddedData
	ReceiptAddedAt time.Time
}

func (s ClosedWithReceipt) Status() Status { return StatusClosedWithReceipt }

type Canceled struct {
	Activated
	// PendingAuthorization is set when the user canceled while an authorization was in flight.
	PendingAuthorization *domain.AuthorizationRequestedData
	CanceledAt           time.Time
}

func (s Canceled) Status() Status { return StatusCanceled }

type RefundRequested struct {
	AuthorizationCompleted
	// Closure and ClosureFailure record how closure ended, when it was attempted.
	Closure           *domain.ClosedData
	ClosureFailure    *domain.ClosureFailedData
	Refund            domain.RefundRequestedData
	RefundRequestedAt time.Time
}

func (s RefundRequested) Status() Status { return StatusRefundRequested }

type Refunded struct {
	RefundRequested
	RefundResult domain.RefundedData
	RefundedAt   time.Time
}

func (s Refunded) Status() Status { return StatusRefunded }

type RefundError struct {
	RefundRequested
	RefundFailure  domain.RefundFailedData
	RefundFailedAt time.Time
}

func (s RefundError) Status() Status { return StatusRefundError }
