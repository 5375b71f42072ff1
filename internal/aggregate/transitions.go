package aggregate

import (
	"fmt"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

// Transitions take the exact predecessor type, so a state can only be built
// from the state the machine allows it to follow.

func NewActivationRequested(id domain.TransactionID, d domain.ActivationRequestedData, at time.Time) ActivationRequested {
	return ActivationRequested{
		TransactionID:               id,
		Notices:                     d.Notices,
		Email:                       d.Email,
		ClientID:                    d.ClientID,
		IDCart:                      d.IDCart,
		PaymentTokenValiditySeconds: d.PaymentTokenValiditySeconds,
		CreatedAt:                   at,
	}
}

func Activate(s ActivationRequested, d domain.ActivatedData, at time.Time) (Activated, error) {
	if len(d.PaymentTokens) != len(s.Notices) {
		return Activated{}, fmt.Errorf("%d payment tokens for %d notices", len(d.PaymentTokens), len(s.Notices))
	}
	return Activated{ActivationRequested: s, PaymentTokens: d.PaymentTokens, ActivatedAt: at}, nil
}

func RequestAuthorization(s Activated, d domain.AuthorizationRequestedData, at time.Time) AuthorizationRequested {
	return AuthorizationRequested{Activated: s, Authorization: d, AuthorizationRequestedAt: at}
}

func CompleteAuthorization(s AuthorizationRequested, d domain.AuthorizationCompletedData, at time.Time) AuthorizationCompleted {
	return AuthorizationCompleted{AuthorizationRequested: s, AuthorizationResult: d, AuthorizationCompletedAt: at}
}

func CancelActivated(s Activated, at time.Time) Canceled {
	return Canceled{Activated: s, CanceledAt: at}
}

func CancelAuthorizationRequested(s AuthorizationRequested, at time.Time) Canceled {
	pending := s.Authorization
	return Canceled{Activated: s.Activated, PendingAuthorization: &pending, CanceledAt: at}
}

func RequestClosure(s AuthorizationCompleted, at time.Time) ClosureRequested {
	return ClosureRequested{AuthorizationCompleted: s, ClosureRequestedAt: at}
}

func RetryClosure(s ClosureError, at time.Time) ClosureRequested {
	return ClosureRequested{AuthorizationCompleted: s.AuthorizationCompleted, ClosureRequestedAt: at}
}

func Close(s ClosureRequested, d domain.ClosedData, at time.Time) Closed {
	return Closed{ClosureRequested: s, Closure: d, ClosedAt: at}
}

func FailClosure(s ClosureRequested, d domain.ClosureFailedData, at time.Time) ClosureError {
	return ClosureError{ClosureRequested: s, ClosureFailure: d, ClosureFailedAt: at}
}

func AddUserReceipt(s Closed, d domain.UserReceiptAddedData, at time.Time) ClosedWithReceipt {
	return ClosedWithReceipt{Closed: s, Receipt: d, ReceiptAddedAt: at}
}

func RequestRefundAfterAuthorization(s AuthorizationCompleted, d domain.RefundRequestedData, at time.Time) RefundRequested {
	return RefundRequested{AuthorizationCompleted: s, Refund: d, RefundRequestedAt: at}
}

func RequestRefundAfterClosure(s Closed, d domain.RefundRequestedData, at time.Time) RefundRequested {
	closure := s.Closure
	return RefundRequested{
		AuthorizationCompleted: s.AuthorizationCompleted,
		Closure:                &closure,
		Refund:                 d,
		RefundRequestedAt:      at,
	}
}

func RequestRefundAfterClosureError(s ClosureError, d domain.RefundRequestedData, at time.Time) RefundRequested {
	failure := s.ClosureFailure
	return RefundRequested{
		AuthorizationCompleted: s.AuthorizationCompleted,
		ClosureFailure:         &failure,
		Refund:                 d,
		RefundRequestedAt:      at,
	}
}

func CompleteRefund(s RefundRequested, d domain.RefundedData, at time.Time) Refunded {
	return Refunded{RefundRequested: s, RefundResult: d, RefundedAt: at}
}

func FailRefund(s RefundRequested, d domain.RefundFailedData, at time.Time) RefundError {
	return RefundError{RefundRequested: s, RefundFailure: d, RefundFailedAt: at}
}

func RetryRefund(s RefundError, d domain.RefundRequestedData, at time.Time) RefundRequested {
	next := s.RefundRequested
	next.Refund = d
	next.RefundRequestedAt = at
	return next
}
