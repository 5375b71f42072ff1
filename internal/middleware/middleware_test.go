package middleware

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/checkout-transactions/internal/auth"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/handler"
	"github.com/josh-kwaku/checkout-transactions/internal/repository"
)

const testSecret = "middleware-secret"

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp handler.APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestSessionAuth(t *testing.T) {
	id := domain.NewTransactionID()
	valid, err := auth.IssueSessionToken(id, testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := auth.IssueSessionToken(id, testSecret, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{name: "valid token", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized, wantCode: "MISSING_TOKEN"},
		{name: "not bearer", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "expired token", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized, wantCode: "INVALID_TOKEN"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var got domain.TransactionID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = auth.TransactionIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+id.String(), nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			SessionAuth(testSecret)(next).ServeHTTP(rr, req)

			assert.Equal(t, tc.wantStatus, rr.Code)
			if tc.wantCode == "" {
				assert.Equal(t, id, got)
				return
			}
			assert.Equal(t, tc.wantCode, errorCode(t, rr))
		})
	}
}

type memoryIdempotencyRepo struct {
	entries map[string]*repository.IdempotencyCacheEntry
}

func (m *memoryIdempotencyRepo) Get(_ context.Context, key, scope string) (*repository.IdempotencyCacheEntry, error) {
	return m.entries[scope+"|"+key], nil
}

func (m *memoryIdempotencyRepo) Set(_ context.Context, entry *repository.IdempotencyCacheEntry) error {
	m.entries[entry.Scope+"|"+entry.Key] = entry
	return nil
}

func TestIdempotency(t *testing.T) {
	repo := &memoryIdempotencyRepo{entries: map[string]*repository.IdempotencyCacheEntry{}}
	calls := 0
	status := http.StatusCreated
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		handler.RespondSuccess(w, status, map[string]string{"echo": string(body)})
	})
	h := Idempotency(repo, time.Hour)(next)

	send := func(key, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader(body))
		if key != "" {
			req.Header.Set("Idempotency-Key", key)
		}
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	t.Run("missing key", func(t *testing.T) {
		rr := send("", `{}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "MISSING_IDEMPOTENCY_KEY", errorCode(t, rr))
	})

	t.Run("replay", func(t *testing.T) {
		first := send("k1", `{"a":1}`)
		second := send("k1", `{"a":1}`)

		assert.Equal(t, 1, calls)
		assert.Equal(t, http.StatusCreated, second.Code)
		assert.Equal(t, "true", second.Header().Get("X-Idempotent-Replayed"))
		assert.Equal(t, first.Body.String(), second.Body.String())
	})

	t.Run("same key different body", func(t *testing.T) {
		rr := send("k1", `{"a":2}`)
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.Equal(t, "IDEMPOTENCY_CONFLICT", errorCode(t, rr))
	})

	t.Run("server errors are not stored", func(t *testing.T) {
		status = http.StatusBadGateway
		send("k2", `{}`)
		status = http.StatusCreated
		rr := send("k2", `{}`)

		assert.Equal(t, http.StatusCreated, rr.Code)
		assert.Empty(t, rr.Header().Get("X-Idempotent-Replayed"))
	})

	t.Run("reads pass through", func(t *testing.T) {
		before := calls
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)
		assert.Equal(t, before+1, calls)
	})
}

func TestTracing(t *testing.T) {
	var seen string
	h := Tracing(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "req-123", seen)
	assert.Equal(t, "req-123", rr.Header().Get("X-Request-ID"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "bad id\nwith newline")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.NotEqual(t, "bad id\nwith newline", seen)
	assert.Len(t, seen, 36)
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rr))

	abort := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic(http.ErrAbortHandler)
	}))
	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		abort.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}
