package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
	"github.com/josh-kwaku/checkout-transactions/internal/service/transaction"
)

type operationsService interface {
	RequestClosure(ctx context.Context, id domain.TransactionID) (aggregate.ClosureRequested, error)
	Close(ctx context.Context, id domain.TransactionID) (aggregate.Transaction, error)
	AddUserReceipt(ctx context.Context, cmd transaction.AddUserReceiptCommand) (aggregate.ClosedWithReceipt, error)
	RequestRefund(ctx context.Context, cmd transaction.RequestRefundCommand) (aggregate.RefundRequested, error)
	Refund(ctx context.Context, id domain.TransactionID) (aggregate.Transaction, error)
}

type emailOpener interface {
	Open(token domain.Confidential) (string, error)
}

// OperationsHandler serves the back-office steps that follow authorization.
// Its routes are mounted under /internal and are not reachable with a session.
type OperationsHandler struct {
	transactions operationsService
	emails       emailOpener
}

func NewOperationsHandler(transactions operationsService, emails emailOpener) *OperationsHandler {
	return &OperationsHandler{transactions: transactions, emails: emails}
}

// receiptDTO tells the notification sender where the receipt goes.
type receiptDTO struct {
	statusDTO
	Outcome   domain.Outcome `json:"outcome"`
	Recipient string         `json:"recipient"`
}

type userReceiptRequest struct {
	Outcome     string     `json:"outcome"`
	PaymentDate *time.Time `json:"payment_date,omitempty"`
}

func (r userReceiptRequest) Validate() []FieldError {
	var errs []FieldError
	if r.Outcome == "" {
		errs = append(errs, FieldError{Field: "outcome", Message: "required"})
	} else if !domain.Outcome(r.Outcome).IsValid() {
		errs = append(errs, FieldError{Field: "outcome", Message: "must be OK or KO"})
	}
	return errs
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *OperationsHandler) RequestClosure(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTransaction(w, r)
	if !ok {
		return
	}

	state, err := h.transactions.RequestClosure(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("closure request failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusAccepted, toStatusDTO(state))
}

func (h *OperationsHandler) Close(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTransaction(w, r)
	if !ok {
		return
	}

	state, err := h.transactions.Close(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("closure failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toStatusDTO(state))
}

func (h *OperationsHandler) AddUserReceipt(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTransaction(w, r)
	if !ok {
		return
	}

	var req userReceiptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	cmd := transaction.AddUserReceiptCommand{TransactionID: id, Outcome: domain.Outcome(req.Outcome)}
	if req.PaymentDate != nil {
		cmd.PaymentDate = *req.PaymentDate
	}
	state, err := h.transactions.AddUserReceipt(r.Context(), cmd)
	if err != nil {
		logging.FromContext(r.Context()).Warn("adding user receipt failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	recipient, err := h.emails.Open(state.Email)
	if err != nil {
		logging.FromContext(r.Context()).Error("opening receipt recipient failed", "error", err, "transaction_id", id)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	RespondSuccess(w, http.StatusOK, receiptDTO{statusDTO: toStatusDTO(state), Outcome: state.Receipt.Outcome, Recipient: recipient})
}

func (h *OperationsHandler) RequestRefund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTransaction(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	state, err := h.transactions.RequestRefund(r.Context(), transaction.RequestRefundCommand{TransactionID: id, Reason: req.Reason})
	if err != nil {
		logging.FromContext(r.Context()).Warn("refund request failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusAccepted, toStatusDTO(state))
}

func (h *OperationsHandler) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := pathTransaction(w, r)
	if !ok {
		return
	}

	state, err := h.transactions.Refund(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("refund failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toStatusDTO(state))
}
