package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
	"github.com/josh-kwaku/checkout-transactions/internal/service/transaction"
)

type outcomeService interface {
	CompleteAuthorization(ctx context.Context, cmd transaction.CompleteAuthorizationCommand) (aggregate.AuthorizationCompleted, error)
}

type WebhookHandler struct {
	outcomes outcomeService
	secret   string
}

func NewWebhookHandler(outcomes outcomeService, secret string) *WebhookHandler {
	return &WebhookHandler{outcomes: outcomes, secret: secret}
}

type outcomePayload struct {
	TransactionID          string `json:"transaction_id"`
	AuthorizationRequestID string `json:"authorization_request_id"`
	PspID                  string `json:"psp_id,omitempty"`
	Outcome                string `json:"outcome"`
	AuthorizationCode      string `json:"authorization_code,omitempty"`
	RRN                    string `json:"rrn,omitempty"`
	ErrorCode              string `json:"error_code,omitempty"`
}

func (p outcomePayload) validate() []FieldError {
	var errs []FieldError

	if p.TransactionID == "" {
		errs = append(errs, FieldError{Field: "transaction_id", Message: "required"})
	} else if _, err := domain.ParseTransactionID(p.TransactionID); err != nil {
		errs = append(errs, FieldError{Field: "transaction_id", Message: "must be a valid UUID"})
	}

	if p.AuthorizationRequestID == "" {
		errs = append(errs, FieldError{Field: "authorization_request_id", Message: "required"})
	}

	if p.Outcome == "" {
		errs = append(errs, FieldError{Field: "outcome", Message: "required"})
	} else if !domain.Outcome(p.Outcome).IsValid() {
		errs = append(errs, FieldError{Field: "outcome", Message: "must be OK or KO"})
	}

	return errs
}

func (p outcomePayload) command() transaction.CompleteAuthorizationCommand {
	id, _ := domain.ParseTransactionID(p.TransactionID)
	return transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: p.AuthorizationRequestID,
		PspID:                  p.PspID,
		Outcome:                domain.Outcome(p.Outcome),
		AuthorizationCode:      p.AuthorizationCode,
		RRN:                    p.RRN,
		ErrorCode:              p.ErrorCode,
	}
}

// ReceiveAuthorizationOutcome records a gateway's signed authorization outcome.
// A redelivery of an outcome already recorded is acknowledged, not failed, so
// the gateway stops retrying it.
func (h *WebhookHandler) ReceiveAuthorizationOutcome(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		log.Error("failed to read webhook body", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	sig := r.Header.Get("X-Webhook-Signature")
	if !verifyHMAC(body, sig, h.secret) {
		log.Warn("webhook signature verification failed")
		RespondAppError(w, ErrInvalidSignature, nil)
		return
	}

	var payload outcomePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to parse webhook payload", "error", err)
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := payload.validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	state, err := h.outcomes.CompleteAuthorization(r.Context(), payload.command())
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyProcessed) {
			log.Info("duplicate authorization outcome received",
				"transaction_id", payload.TransactionID,
				"authorization_request_id", payload.AuthorizationRequestID,
			)
			RespondSuccess(w, http.StatusOK, map[string]string{"status": "already_received"})
			return
		}
		log.Warn("authorization outcome rejected", "error", err, "transaction_id", payload.TransactionID)
		RespondDomainError(w, err)
		return
	}

	log.Info("authorization outcome recorded",
		"transaction_id", payload.TransactionID,
		"authorization_request_id", payload.AuthorizationRequestID,
		"outcome", state.AuthorizationResult.Outcome,
	)

	RespondSuccess(w, http.StatusOK, map[string]string{"status": "received"})
}

func verifyHMAC(body []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
