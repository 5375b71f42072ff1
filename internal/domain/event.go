package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventKind string

const (
	EventActivationRequested    EventKind = "TRANSACTION_ACTIVATION_REQUESTED"
	EventActivated              EventKind = "TRANSACTION_ACTIVATED"
	EventAuthorizationRequested EventKind = "TRANSACTION_AUTHORIZATION_REQUESTED"
	EventAuthorizationCompleted EventKind = "TRANSACTION_AUTHORIZATION_COMPLETED"
	EventClosureRequested       EventKind = "TRANSACTION_CLOSURE_REQUESTED"
	EventClosed                 EventKind = "TRANSACTION_CLOSED"
	EventClosureFailed          EventKind = "TRANSACTION_CLOSURE_FAILED"
	EventUserReceiptAdded       EventKind = "TRANSACTION_USER_RECEIPT_ADDED"
	EventUserCanceled           EventKind = "TRANSACTION_USER_CANCELED"
	EventRefundRequested        EventKind = "TRANSACTION_REFUND_REQUESTED"
	EventRefunded               EventKind = "TRANSACTION_REFUNDED"
	EventRefundFailed           EventKind = "TRANSACTION_REFUND_FAILED"
)

// Event is an immutable fact in a transaction's log. Version is the
// per-transaction sequence number starting at 1; Seq is the store-wide
// position assigned on append and is zero until then.
type Event struct {
	ID            uuid.UUID
	TransactionID TransactionID
	Version       int64
	Seq           int64
	CreatedAt     time.Time
	Data          EventData
}

func (e Event) Kind() EventKind { return e.Data.Kind() }

type EventData interface {
	Kind() EventKind
}

type ActivationRequestedData struct {
	Notices                     []PaymentNotice `json:"payment_notices"`
	Email                       Confidential    `json:"email"`
	ClientID                    ClientID        `json:"client_id"`
	IDCart                      string          `json:"id_cart,omitempty"`
	PaymentTokenValiditySeconds int             `json:"payment_token_validity_seconds"`
}

type ActivatedData struct {
	// PaymentTokens are positional, one per notice of the activation request.
	PaymentTokens []string `json:"payment_tokens"`
}

type AuthorizationRequestedData struct {
	Amount                 Amount  `json:"amount"`
	Fee                    Amount  `json:"fee"`
	PaymentInstrumentID    string  `json:"payment_instrument_id"`
	PspID                  string  `json:"psp_id"`
	PaymentTypeCode        string  `json:"payment_type_code"`
	PaymentMethodName      string  `json:"payment_method_name"`
	PspBusinessName        string  `json:"psp_business_name"`
	Gateway                Gateway `json:"gateway"`
	AuthorizationRequestID string  `json:"authorization_request_id"`
	RedirectURL            string  `json:"redirect_url,omitempty"`
	TimeoutMillis          int64   `json:"timeout_millis"`
}

type AuthorizationCompletedData struct {
	Outcome           Outcome `json:"outcome"`
	AuthorizationCode string  `json:"authorization_code,omitempty"`
	RRN               string  `json:"rrn,omitempty"`
	ErrorCode         string  `json:"error_code,omitempty"`
}

type ClosureRequestedData struct{}

type ClosedData struct {
	Outcome Outcome `json:"outcome"`
}

type ClosureFailedData struct {
	Reason    string `json:"reason"`
	Retryable bool   `json:"retryable"`
}

type UserReceiptAddedData struct {
	Outcome     Outcome   `json:"outcome"`
	PaymentDate time.Time `json:"payment_date"`
}

type UserCanceledData struct{}

type RefundRequestedData struct {
	Reason string `json:"reason"`
}

type RefundedData struct {
	RefundID string `json:"refund_id"`
}

type RefundFailedData struct {
	Reason string `json:"reason"`
}

func (ActivationRequestedData) Kind() EventKind    { return EventActivationRequested }
func (ActivatedData) Kind() EventKind              { return EventActivated }
func (AuthorizationRequestedData) Kind() EventKind { return EventAuthorizationRequested }
func (AuthorizationCompletedData) Kind() EventKind { return EventAuthorizationCompleted }
func (ClosureRequestedData) Kind() EventKind       { return EventClosureRequested }
func (ClosedData) Kind() EventKind                 { return EventClosed }
func (ClosureFailedData) Kind() EventKind          { return EventClosureFailed }
func (UserReceiptAddedData) Kind() EventKind       { return EventUserReceiptAdded }
func (UserCanceledData) Kind() EventKind           { return EventUserCanceled }
func (RefundRequestedData) Kind() EventKind        { return EventRefundRequested }
func (RefundedData) Kind() EventKind               { return EventRefunded }
func (RefundFailedData) Kind() EventKind           { return EventRefundFailed }
