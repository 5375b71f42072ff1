package main

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

// Notices whose rpt id ends in unpayableSuffix are rejected as unknown, and
// authorizations for the declinedInstrument come back KO.
const (
	unpayableSuffix    = "000"
	declinedInstrument = "declined"
	outcomeDelay       = 500 * time.Millisecond
)

type mock struct {
	secret string
	http   *http.Client
}

func main() {
	logging.Init("mock-gateway", "info", os.Getenv("APP_ENV"))

	m := &mock{
		secret: os.Getenv("WEBHOOK_SECRET"),
		http:   &http.Client{Timeout: 5 * time.Second},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /nodo/v1/payment-notices/{rpt}/activation", m.activate)
	mux.HandleFunc("POST /nodo/v1/closures", m.close)
	mux.HandleFunc("POST /gateway/v1/authorizations", m.authorize)
	mux.HandleFunc("POST /gateway/v1/refunds", m.refund)

	slog.Info("mock gateway started", "addr", ":8081")
	if err := http.ListenAndServe(":8081", mux); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func (m *mock) activate(w http.ResponseWriter, r *http.Request) {
	rpt := r.PathValue("rpt")
	if strings.HasSuffix(rpt, unpayableSuffix) {
		writeJSON(w, http.StatusNotFound, map[string]string{"fault_code": "NOTICE_UNKNOWN", "detail": "notice " + rpt + " is unknown"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"payment_token": strings.ReplaceAll(uuid.NewString(), "-", "")})
}

func (m *mock) close(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		Outcome       string `json:"outcome"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"fault_code": "BAD_REQUEST", "detail": err.Error()})
		return
	}
	slog.Info("closure received", "transaction_id", req.TransactionID, "outcome", req.Outcome)
	writeJSON(w, http.StatusOK, map[string]string{"outcome": "OK"})
}

type authorizationRequest struct {
	TransactionID       string `json:"transaction_id"`
	PspID               string `json:"psp_id"`
	PaymentInstrumentID string `json:"payment_instrument_id"`
	CallbackURL         string `json:"callback_url"`
}

func (m *mock) authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"fault_code": "BAD_REQUEST", "detail": err.Error()})
		return
	}

	authID := uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]string{
		"authorization_request_id": authID,
		"redirect_url":             "http://localhost:8081/pay/" + authID,
	})

	if req.CallbackURL != "" {
		go m.deliverOutcome(req, authID)
	}
}

func (m *mock) deliverOutcome(req authorizationRequest, authID string) {
	time.Sleep(outcomeDelay)

	payload := map[string]string{
		"transaction_id":           req.TransactionID,
		"authorization_request_id": authID,
		"psp_id":                   req.PspID,
		"outcome":                  "OK",
		"authorization_code":       strings.ToUpper(authID[:6]),
	}
	if req.PaymentInstrumentID == declinedInstrument {
		payload["outcome"] = "KO"
		payload["error_code"] = "DECLINED"
		delete(payload, "authorization_code")
	}
	body, _ := json.Marshal(payload)

	mac := hmac.New(sha256.New, []byte(m.secret))
	mac.Write(body)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.CallbackURL, bytes.NewReader(body))
	if err != nil {
		slog.Error("failed to build outcome callback", "error", err)
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))

	resp, err := m.http.Do(httpReq)
	if err != nil {
		slog.Error("outcome callback failed", "error", err, "transaction_id", req.TransactionID)
		return
	}
	resp.Body.Close()
	slog.Info("outcome delivered", "transaction_id", req.TransactionID, "status", resp.StatusCode, "outcome", payload["outcome"])
}

func (m *mock) refund(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transaction_id"`
		Amount        int64  `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"fault_code": "BAD_REQUEST", "detail": err.Error()})
		return
	}
	slog.Info("refund received", "transaction_id", req.TransactionID, "amount", req.Amount)
	writeJSON(w, http.StatusOK, map[string]string{"refund_id": uuid.NewString()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}
