package projection

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

// View is the denormalized read model of one transaction. Version is the
// version of the last event folded into it.
type View struct {
	TransactionID          domain.TransactionID
	Status                 aggregate.Status
	ClientID               domain.ClientID
	Email                  domain.Confidential
	IDCart                 string
	Notices                []domain.PaymentNotice
	Amount                 domain.Amount
	Fee                    domain.Amount
	PspID                  string
	Gateway                domain.Gateway
	AuthorizationRequestID string
	AuthorizationCode      string
	AuthorizationOutcome   domain.Outcome
	AuthorizationErrorCode string
	ClosureOutcome         domain.Outcome
	ClosureFailureReason   string
	ReceiptOutcome         domain.Outcome
	RefundReason           string
	RefundID               string
	Version                int64
	LastEventID            uuid.UUID
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// statusAfter maps each event kind to the view status it leaves behind.
var statusAfter = map[domain.EventKind]aggregate.Status{
	domain.EventActivationRequested:    aggregate.StatusActivationRequested,
	domain.EventActivated:              aggregate.StatusActivated,
	domain.EventAuthorizationRequested: aggregate.StatusAuthorizationRequested,
	domain.EventAuthorizationCompleted: aggregate.StatusAuthorizationCompleted,
	domain.EventClosureRequested:       aggregate.StatusClosureRequested,
	domain.EventClosed:                 aggregate.StatusClosed,
	domain.EventClosureFailed:          aggregate.StatusClosureError,
	domain.EventUserReceiptAdded:       aggregate.StatusClosedWithReceipt,
	domain.EventUserCanceled:           aggregate.StatusCanceled,
	domain.EventRefundRequested:        aggregate.StatusRefundRequested,
	domain.EventRefunded:               aggregate.StatusRefunded,
	domain.EventRefundFailed:           aggregate.StatusRefundError,
}

// apply returns v advanced by ev. It does not check ordering; callers do.
func (v View) apply(ev domain.Event) View {
	switch d := ev.Data.(type) {
	case domain.ActivationRequestedData:
		v.TransactionID = ev.TransactionID
		v.ClientID = d.ClientID
		v.Email = d.Email
		v.IDCart = d.IDCart
		v.Notices = append([]domain.PaymentNotice(nil), d.Notices...)
		v.Amount = domain.TotalAmount(d.Notices)
		v.CreatedAt = ev.CreatedAt
	case domain.ActivatedData:
		notices := append([]domain.PaymentNotice(nil), v.Notices...)
		for i := range notices {
			if i < len(d.PaymentTokens) {
				notices[i].PaymentToken = d.PaymentTokens[i]
			}
		}
		v.Notices = notices
	case domain.AuthorizationRequestedData:
		v.Fee = d.Fee
		v.PspID = d.PspID
		v.Gateway = d.Gateway
		v.AuthorizationRequestID = d.AuthorizationRequestID
	case domain.AuthorizationCompletedData:
		v.AuthorizationOutcome = d.Outcome
		v.AuthorizationCode = d.AuthorizationCode
		v.AuthorizationErrorCode = d.ErrorCode
	case domain.ClosureRequestedData:
		v.ClosureFailureReason = ""
	case domain.ClosedData:
		v.ClosureOutcome = d.Outcome
	case domain.ClosureFailedData:
		v.ClosureFailureReason = d.Reason
	case domain.UserReceiptAddedData:
		v.ReceiptOutcome = d.Outcome
	case domain.RefundRequestedData:
		v.RefundReason = d.Reason
	case domain.RefundedData:
		v.RefundID = d.RefundID
	}

	if s, ok := statusAfter[ev.Kind()]; ok {
		v.Status = s
	}
	v.Version = ev.Version
	v.LastEventID = ev.ID
	v.UpdatedAt = ev.CreatedAt
	return v
}

// Build folds a whole log into a fresh view.
func Build(events []domain.Event) View {
	var v View
	for _, ev := range events {
		v = v.apply(ev)
	}
	return v
}
