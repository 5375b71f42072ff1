package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/auth"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
	"github.com/josh-kwaku/checkout-transactions/internal/service/transaction"
)

type transactionService interface {
	Activate(ctx context.Context, cmd transaction.ActivateCommand) (aggregate.Activated, error)
	RequestAuthorization(ctx context.Context, cmd transaction.RequestAuthorizationCommand) (aggregate.AuthorizationRequested, error)
	UserCancel(ctx context.Context, id domain.TransactionID) (aggregate.Canceled, error)
	GetTransaction(ctx context.Context, id domain.TransactionID) (*projection.View, error)
}

type TransactionHandler struct {
	transactions  transactionService
	sessionSecret string
	sessionTTL    time.Duration
}

func NewTransactionHandler(transactions transactionService, sessionSecret string, sessionTTL time.Duration) *TransactionHandler {
	return &TransactionHandler{transactions: transactions, sessionSecret: sessionSecret, sessionTTL: sessionTTL}
}

type noticeRequest struct {
	RptID       string          `json:"rpt_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type activateRequest struct {
	PaymentNotices []noticeRequest `json:"payment_notices"`
	Email          string          `json:"email"`
	ClientID       string          `json:"client_id"`
	IDCart         string          `json:"id_cart,omitempty"`
}

func (r activateRequest) Validate() []FieldError {
	var errs []FieldError

	if len(r.PaymentNotices) == 0 {
		errs = append(errs, FieldError{Field: "payment_notices", Message: "at least one required"})
	}
	for i, n := range r.PaymentNotices {
		if n.RptID == "" {
			errs = append(errs, FieldError{Field: fmt.Sprintf("payment_notices[%d].rpt_id", i), Message: "required"})
		}
		if _, ok := toCents(n.Amount); !ok || !n.Amount.IsPositive() {
			errs = append(errs, FieldError{Field: fmt.Sprintf("payment_notices[%d].amount", i), Message: "must be a positive euro amount with at most 2 decimals"})
		}
	}

	if r.Email == "" {
		errs = append(errs, FieldError{Field: "email", Message: "required"})
	}

	if r.ClientID == "" {
		errs = append(errs, FieldError{Field: "client_id", Message: "required"})
	} else if !domain.ClientID(r.ClientID).IsValid() {
		errs = append(errs, FieldError{Field: "client_id", Message: "must be CHECKOUT, CHECKOUT_CART or IO"})
	}

	return errs
}

func (r activateRequest) command() transaction.ActivateCommand {
	notices := make([]transaction.NoticeInput, len(r.PaymentNotices))
	for i, n := range r.PaymentNotices {
		cents, _ := toCents(n.Amount)
		notices[i] = transaction.NoticeInput{RptID: n.RptID, Amount: cents, Description: n.Description}
	}
	return transaction.ActivateCommand{
		Notices:  notices,
		Email:    r.Email,
		ClientID: domain.ClientID(r.ClientID),
		IDCart:   r.IDCart,
	}
}

type noticeDTO struct {
	RptID        string          `json:"rpt_id"`
	Amount       decimal.Decimal `json:"amount"`
	Description  string          `json:"description"`
	PaymentToken string          `json:"payment_token,omitempty"`
}

func toNoticeDTOs(notices []domain.PaymentNotice) []noticeDTO {
	out := make([]noticeDTO, len(notices))
	for i, n := range notices {
		out[i] = noticeDTO{
			RptID:        n.RptID.String(),
			Amount:       toEuros(n.Amount),
			Description:  n.Description,
			PaymentToken: n.PaymentToken,
		}
	}
	return out
}

type activationDTO struct {
	TransactionID  domain.TransactionID `json:"transaction_id"`
	Status         string               `json:"status"`
	PaymentNotices []noticeDTO          `json:"payment_notices"`
	Amount         decimal.Decimal      `json:"amount"`
	ClientID       string               `json:"client_id"`
	SessionToken   string               `json:"session_token"`
	CreatedAt      time.Time            `json:"created_at"`
}

type transactionDTO struct {
	TransactionID          domain.TransactionID `json:"transaction_id"`
	Status                 string               `json:"status"`
	ClientID               string               `json:"client_id"`
	IDCart                 string               `json:"id_cart,omitempty"`
	PaymentNotices         []noticeDTO          `json:"payment_notices"`
	Amount                 decimal.Decimal      `json:"amount"`
	Fee                    *decimal.Decimal     `json:"fee,omitempty"`
	PspID                  string               `json:"psp_id,omitempty"`
	Gateway                string               `json:"gateway,omitempty"`
	AuthorizationCode      string               `json:"authorization_code,omitempty"`
	AuthorizationOutcome   string               `json:"authorization_outcome,omitempty"`
	AuthorizationErrorCode string               `json:"authorization_error_code,omitempty"`
	ClosureOutcome         string               `json:"closure_outcome,omitempty"`
	ReceiptOutcome         string               `json:"receipt_outcome,omitempty"`
	Version                int64                `json:"version"`
	CreatedAt              time.Time            `json:"created_at"`
	UpdatedAt              time.Time            `json:"updated_at"`
}

func toTransactionDTO(v *projection.View) transactionDTO {
	dto := transactionDTO{
		TransactionID:          v.TransactionID,
		Status:                 string(v.Status),
		ClientID:               string(v.ClientID),
		IDCart:                 v.IDCart,
		PaymentNotices:         toNoticeDTOs(v.Notices),
		Amount:                 toEuros(v.Amount),
		PspID:                  v.PspID,
		Gateway:                string(v.Gateway),
		AuthorizationCode:      v.AuthorizationCode,
		AuthorizationOutcome:   string(v.AuthorizationOutcome),
		AuthorizationErrorCode: v.AuthorizationErrorCode,
		ClosureOutcome:         string(v.ClosureOutcome),
		ReceiptOutcome:         string(v.ReceiptOutcome),
		Version:                v.Version,
		CreatedAt:              v.CreatedAt,
		UpdatedAt:              v.UpdatedAt,
	}
	if v.PspID != "" {
		fee := toEuros(v.Fee)
		dto.Fee = &fee
	}
	return dto
}

type authorizationRequest struct {
	Amount              decimal.Decimal `json:"amount"`
	Fee                 decimal.Decimal `json:"fee"`
	PaymentInstrumentID string          `json:"payment_instrument_id"`
	PspID               string          `json:"psp_id"`
	PaymentTypeCode     string          `json:"payment_type_code"`
	PaymentMethodName   string          `json:"payment_method_name,omitempty"`
	PspBusinessName     string          `json:"psp_business_name,omitempty"`
	Gateway             string          `json:"gateway"`
	Language            string          `json:"language,omitempty"`
	TimeoutMillis       int64           `json:"timeout_ms,omitempty"`
}

func (r authorizationRequest) Validate() []FieldError {
	var errs []FieldError

	if _, ok := toCents(r.Amount); !ok || !r.Amount.IsPositive() {
		errs = append(errs, FieldError{Field: "amount", Message: "must be a positive euro amount with at most 2 decimals"})
	}
	if _, ok := toCents(r.Fee); !ok || r.Fee.IsNegative() {
		errs = append(errs, FieldError{Field: "fee", Message: "must be a non-negative euro amount with at most 2 decimals"})
	}
	if r.PaymentInstrumentID == "" {
		errs = append(errs, FieldError{Field: "payment_instrument_id", Message: "required"})
	}
	if r.PspID == "" {
		errs = append(errs, FieldError{Field: "psp_id", Message: "required"})
	}
	if r.Gateway == "" {
		errs = append(errs, FieldError{Field: "gateway", Message: "required"})
	} else if !domain.Gateway(r.Gateway).IsValid() {
		errs = append(errs, FieldError{Field: "gateway", Message: "must be NPG, REDIRECT, XPAY or VPOS"})
	}
	if r.TimeoutMillis < 0 {
		errs = append(errs, FieldError{Field: "timeout_ms", Message: "must not be negative"})
	}

	return errs
}

type authorizationDTO struct {
	AuthorizationRequestID string `json:"authorization_request_id"`
	AuthorizationURL       string `json:"authorization_url,omitempty"`
}

type statusDTO struct {
	TransactionID domain.TransactionID `json:"transaction_id"`
	Status        string               `json:"status"`
}

func toStatusDTO(state aggregate.Transaction) statusDTO {
	return statusDTO{TransactionID: state.ID(), Status: string(state.Status())}
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	activated, err := h.transactions.Activate(r.Context(), req.command())
	if err != nil {
		log.Warn("transaction activation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	token, err := auth.IssueSessionToken(activated.TransactionID, h.sessionSecret, h.sessionTTL)
	if err != nil {
		log.Error("failed to issue session token", "error", err, "transaction_id", activated.TransactionID)
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", activated.TransactionID))
	RespondSuccess(w, http.StatusCreated, activationDTO{
		TransactionID:  activated.TransactionID,
		Status:         string(activated.Status()),
		PaymentNotices: toNoticeDTOs(activated.NoticesWithTokens()),
		Amount:         toEuros(activated.Amount()),
		ClientID:       string(activated.ClientID),
		SessionToken:   token,
		CreatedAt:      activated.CreatedAt,
	})
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionTransaction(w, r)
	if !ok {
		return
	}

	view, err := h.transactions.GetTransaction(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction lookup failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(view))
}

func (h *TransactionHandler) RequestAuthorization(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionTransaction(w, r)
	if !ok {
		return
	}

	var req authorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, _ := toCents(req.Amount)
	fee, _ := toCents(req.Fee)
	state, err := h.transactions.RequestAuthorization(r.Context(), transaction.RequestAuthorizationCommand{
		TransactionID:       id,
		Amount:              amount,
		Fee:                 fee,
		PaymentInstrumentID: req.PaymentInstrumentID,
		PspID:               req.PspID,
		PaymentTypeCode:     req.PaymentTypeCode,
		PaymentMethodName:   req.PaymentMethodName,
		PspBusinessName:     req.PspBusinessName,
		Gateway:             domain.Gateway(req.Gateway),
		Language:            req.Language,
		TimeoutMillis:       req.TimeoutMillis,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("authorization request failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, authorizationDTO{
		AuthorizationRequestID: state.Authorization.AuthorizationRequestID,
		AuthorizationURL:       state.Authorization.RedirectURL,
	})
}

func (h *TransactionHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionTransaction(w, r)
	if !ok {
		return
	}

	state, err := h.transactions.UserCancel(r.Context(), id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("user cancel failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusAccepted, toStatusDTO(state))
}

// sessionTransaction resolves the path transaction and checks it is the one
// the session token was issued for. A mismatch looks like a missing resource.
func sessionTransaction(w http.ResponseWriter, r *http.Request) (domain.TransactionID, bool) {
	id, ok := pathTransaction(w, r)
	if !ok {
		return domain.TransactionID{}, false
	}
	session, ok := auth.TransactionIDFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return domain.TransactionID{}, false
	}
	if session != id {
		RespondAppError(w, ErrResourceNotFound, nil)
		return domain.TransactionID{}, false
	}
	return id, true
}

func pathTransaction(w http.ResponseWriter, r *http.Request) (domain.TransactionID, bool) {
	id, err := domain.ParseTransactionID(r.PathValue("id"))
	if err != nil {
		RespondValidationError(w, []FieldError{{Field: "id", Message: "must be a valid UUID"}})
		return domain.TransactionID{}, false
	}
	return id, true
}
