package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// businessRules are validation failures about the state of the payment rather
// than the shape of the request.
var businessRules = []*domain.Error{
	domain.ErrAmountMismatch,
	domain.ErrPspMismatch,
	domain.ErrGatewayTxnMismatch,
	domain.ErrAuthorizationTimeout,
	domain.ErrNoticeNotPayable,
}

func statusFor(err error) int {
	switch domain.KindOf(err) {
	case domain.KindValidation:
		for _, rule := range businessRules {
			if errors.Is(err, rule) {
				return http.StatusUnprocessableEntity
			}
		}
		return http.StatusBadRequest
	case domain.KindIllegalTransition, domain.KindAlreadyProcessed, domain.KindConflict:
		return http.StatusConflict
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindUpstreamTimeout:
		return http.StatusGatewayTimeout
	case domain.KindUpstreamFailure:
		return http.StatusBadGateway
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondDomainError maps a classified error to its status and code. Internal
// and corruption failures never expose their message.
func RespondDomainError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("unhandled domain error", "error", err, "code", domain.CodeOf(err))
		RespondAppError(w, ErrInternalError, nil)
		return
	}

	var de *domain.Error
	errors.As(err, &de)
	RespondAppError(w, &AppError{Status: status, Code: de.Code, Message: de.Message}, nil)
}
