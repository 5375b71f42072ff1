package client

import (
	"context"
	"fmt"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

type GatewayClient struct {
	rest        restClient
	callbackURL string
}

func NewGatewayClient(baseURL, callbackURL string, timeout time.Duration) *GatewayClient {
	return &GatewayClient{
		rest:        newRESTClient("gateway", baseURL, timeout),
		callbackURL: callbackURL,
	}
}

type AuthorizationRequest struct {
	TransactionID       domain.TransactionID
	Amount              domain.Amount
	Fee                 domain.Amount
	PspID               string
	Gateway             domain.Gateway
	PaymentInstrumentID string
	Language            string
}

type AuthorizationResponse struct {
	AuthorizationRequestID string
	RedirectURL            string
}

type authorizationBody struct {
	TransactionID       string `json:"transaction_id"`
	Amount              int64  `json:"amount"`
	Fee                 int64  `json:"fee"`
	PspID               string `json:"psp_id"`
	Gateway             string `json:"gateway"`
	PaymentInstrumentID string `json:"payment_instrument_id"`
	Language            string `json:"language,omitempty"`
	CallbackURL         string `json:"callback_url"`
}

type authorizationResponseBody struct {
	AuthorizationRequestID string `json:"authorization_request_id"`
	RedirectURL            string `json:"redirect_url"`
}

// RequestAuthorization opens an authorization with the gateway. The outcome
// arrives later on the webhook.
func (c *GatewayClient) RequestAuthorization(ctx context.Context, req AuthorizationRequest) (AuthorizationResponse, error) {
	var resp authorizationResponseBody
	err := c.rest.post(ctx, "/gateway/v1/authorizations", authorizationBody{
		TransactionID:       req.TransactionID.String(),
		Amount:              int64(req.Amount),
		Fee:                 int64(req.Fee),
		PspID:               req.PspID,
		Gateway:             string(req.Gateway),
		PaymentInstrumentID: req.PaymentInstrumentID,
		Language:            req.Language,
		CallbackURL:         c.callbackURL,
	}, &resp, nil)
	if err != nil {
		return AuthorizationResponse{}, fmt.Errorf("RequestAuthorization: %w", err)
	}
	if resp.AuthorizationRequestID == "" {
		return AuthorizationResponse{}, fmt.Errorf("RequestAuthorization: empty authorization request id: %w", domain.ErrUpstreamFailure)
	}
	return AuthorizationResponse{
		AuthorizationRequestID: resp.AuthorizationRequestID,
		RedirectURL:            resp.RedirectURL,
	}, nil
}

type refundBody struct {
	TransactionID          string `json:"transaction_id"`
	AuthorizationRequestID string `json:"authorization_request_id"`
	Amount                 int64  `json:"amount"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
}

// Refund reverses a captured authorization and returns the gateway refund id.
func (c *GatewayClient) Refund(ctx context.Context, id domain.TransactionID, authorizationRequestID string, amount domain.Amount) (string, error) {
	var resp refundResponse
	err := c.rest.post(ctx, "/gateway/v1/refunds", refundBody{
		TransactionID:          id.String(),
		AuthorizationRequestID: authorizationRequestID,
		Amount:                 int64(amount),
	}, &resp, nil)
	if err != nil {
		return "", fmt.Errorf("Refund: %w", err)
	}
	return resp.RefundID, nil
}
