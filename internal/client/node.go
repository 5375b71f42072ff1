package client

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

// Node fault codes that mean the notice cannot be paid right now.
const (
	FaultNoticeUnknown     = "NOTICE_UNKNOWN"
	FaultNoticeExpired     = "NOTICE_EXPIRED"
	FaultPaymentDuplicated = "PAYMENT_DUPLICATED"
)

type NodeClient struct {
	rest restClient
}

func NewNodeClient(baseURL string, timeout time.Duration) *NodeClient {
	return &NodeClient{rest: newRESTClient("node", baseURL, timeout)}
}

type activationRequest struct {
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type activationResponse struct {
	PaymentToken string `json:"payment_token"`
}

// ActivatePaymentNotice reserves a notice for payment and returns the token
// the node will expect at closure.
func (c *NodeClient) ActivatePaymentNotice(ctx context.Context, id domain.TransactionID, notice domain.PaymentNotice) (string, error) {
	var resp activationResponse
	err := c.rest.post(ctx,
		"/nodo/v1/payment-notices/"+url.PathEscape(notice.RptID.String())+"/activation",
		activationRequest{Amount: int64(notice.Amount), IdempotencyKey: id.String()},
		&resp,
		classifyNodeFault,
	)
	if err != nil {
		return "", fmt.Errorf("ActivatePaymentNotice: %s: %w", notice.RptID, err)
	}
	if resp.PaymentToken == "" {
		return "", fmt.Errorf("ActivatePaymentNotice: %s: empty payment token: %w", notice.RptID, domain.ErrUpstreamFailure)
	}
	return resp.PaymentToken, nil
}

type ClosePaymentRequest struct {
	TransactionID     domain.TransactionID
	PaymentTokens     []string
	AuthorizationCode string
	Outcome           domain.Outcome
	TotalAmount       domain.Amount
	Fee               domain.Amount
	PspID             string
}

type closePaymentBody struct {
	TransactionID     string   `json:"transaction_id"`
	PaymentTokens     []string `json:"payment_tokens"`
	AuthorizationCode string   `json:"authorization_code,omitempty"`
	Outcome           string   `json:"outcome"`
	TotalAmount       int64    `json:"total_amount"`
	Fee               int64    `json:"fee"`
	PspID             string   `json:"psp_id"`
}

type closePaymentResponse struct {
	Outcome string `json:"outcome"`
}

// ClosePayment reports the authorization outcome to the node and returns the
// node's own closure outcome.
func (c *NodeClient) ClosePayment(ctx context.Context, req ClosePaymentRequest) (domain.Outcome, error) {
	var resp closePaymentResponse
	err := c.rest.post(ctx, "/nodo/v1/closures", closePaymentBody{
		TransactionID:     req.TransactionID.String(),
		PaymentTokens:     req.PaymentTokens,
		AuthorizationCode: req.AuthorizationCode,
		Outcome:           string(req.Outcome),
		TotalAmount:       int64(req.TotalAmount),
		Fee:               int64(req.Fee),
		PspID:             req.PspID,
	}, &resp, nil)
	if err != nil {
		return "", fmt.Errorf("ClosePayment: %w", err)
	}

	outcome := domain.Outcome(resp.Outcome)
	if !outcome.IsValid() {
		return "", fmt.Errorf("ClosePayment: outcome %q: %w", resp.Outcome, domain.ErrUpstreamFailure)
	}
	return outcome, nil
}

func classifyNodeFault(code string) error {
	switch code {
	case FaultNoticeUnknown, FaultNoticeExpired, FaultPaymentDuplicated:
		return domain.ErrNoticeNotPayable
	}
	return nil
}
