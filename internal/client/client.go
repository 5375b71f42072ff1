// Package client holds the REST clients for the payment gateway and the
// settlement node. Outbound failures come back as domain upstream errors:
// ErrUpstreamTimeout when a retry may succeed, ErrUpstreamFailure otherwise.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

type faultBody struct {
	FaultCode string `json:"fault_code"`
	Detail    string `json:"detail,omitempty"`
}

// FaultError is a fault reported by an upstream in its response body.
type FaultError struct {
	Status int
	Code   string
	Detail string
	cause  error
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("upstream fault %s (status %d): %s", e.Code, e.Status, e.Detail)
}

func (e *FaultError) Unwrap() error { return e.cause }

type restClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

func newRESTClient(name, baseURL string, timeout time.Duration) restClient {
	return restClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// post sends in as JSON and decodes a 2xx response into out. classify maps a
// fault code on a 4xx response to a domain error; nil means terminal failure.
func (c restClient) post(ctx context.Context, path string, in, out any, classify func(code string) error) error {
	log := logging.FromContext(ctx)

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	log.Info("upstream request sent", "upstream", c.name, "path", path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w: %w", domain.ErrUpstreamTimeout, err)
	}
	defer resp.Body.Close()

	log.Info("upstream response received",
		"upstream", c.name,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w: %w", domain.ErrUpstreamFailure, err)
		}
		return nil
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s: %w", resp.StatusCode, string(respBody), domain.ErrUpstreamTimeout)
	}

	var fault faultBody
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(respBody, &fault)

	var cause error = domain.ErrUpstreamFailure
	if classify != nil && fault.FaultCode != "" {
		if mapped := classify(fault.FaultCode); mapped != nil {
			cause = mapped
		}
	}
	return &FaultError{Status: resp.StatusCode, Code: fault.FaultCode, Detail: fault.Detail, cause: cause}
}
