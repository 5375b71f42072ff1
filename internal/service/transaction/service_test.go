package transaction_test

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/auth"
	"github.com/josh-kwaku/checkout-transactions/internal/client"
	"github.com/josh-kwaku/checkout-transactions/internal/config"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/lock"
	"github.com/josh-kwaku/checkout-transactions/internal/memstore"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
	"github.com/josh-kwaku/checkout-transactions/internal/service/transaction"
	"github.com/josh-kwaku/checkout-transactions/internal/testutil"
)

type fakeNode struct {
	mu          sync.Mutex
	activateErr error
	closeErr    error
	closeResult domain.Outcome
	activations int
	closures    []client.ClosePaymentRequest
}

func (n *fakeNode) ActivatePaymentNotice(_ context.Context, _ domain.TransactionID, notice domain.PaymentNotice) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.activateErr != nil {
		return "", n.activateErr
	}
	n.activations++
	return fmt.Sprintf("token-%s-%d", notice.RptID.NoticeID(), n.activations), nil
}

func (n *fakeNode) ClosePayment(_ context.Context, req client.ClosePaymentRequest) (domain.Outcome, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closures = append(n.closures, req)
	if n.closeErr != nil {
		return "", n.closeErr
	}
	if n.closeResult != "" {
		return n.closeResult, nil
	}
	return domain.OutcomeOK, nil
}

type fakeGateway struct {
	mu        sync.Mutex
	calls     int
	refundErr error
	refunds   []domain.Amount
}

func (g *fakeGateway) RequestAuthorization(_ context.Context, req client.AuthorizationRequest) (client.AuthorizationResponse, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	id := fmt.Sprintf("gw-%d", g.calls)
	return client.AuthorizationResponse{AuthorizationRequestID: id, RedirectURL: "https://gateway.test/" + id}, nil
}

func (g *fakeGateway) Refund(_ context.Context, _ domain.TransactionID, _ string, amount domain.Amount) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return "", g.refundErr
	}
	g.refunds = append(g.refunds, amount)
	return "rf-1", nil
}

// conflictingLog fails the next failures appends with a version conflict.
type conflictingLog struct {
	*memstore.EventLog
	mu       sync.Mutex
	failures int
	appends  int
}

func (l *conflictingLog) Append(ctx context.Context, id domain.TransactionID, expected int64, events []domain.Event) ([]domain.Event, error) {
	l.mu.Lock()
	l.appends++
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, fmt.Errorf("Append: %w", domain.ErrVersionConflict)
	}
	l.mu.Unlock()
	return l.EventLog.Append(ctx, id, expected, events)
}

func (l *conflictingLog) failNext(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures = n
	l.appends = 0
}

type harness struct {
	svc     *transaction.Service
	log     *memstore.EventLog
	appends *conflictingLog
	node    *fakeNode
	gateway *fakeGateway
	clock   *testutil.Clock
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		log:     memstore.NewEventLog(),
		node:    &fakeNode{},
		gateway: &fakeGateway{},
		clock:   testutil.NewClock(t0),
	}
	h.appends = &conflictingLog{EventLog: h.log}
	vault, err := auth.NewVault(base64.StdEncoding.EncodeToString(make([]byte, 32)))
	require.NoError(t, err)

	proj := projection.NewProjector(h.log, memstore.NewViews(), memstore.NewCheckpoints(), testutil.NopRecorder{}, slog.Default(), time.Hour, 100)
	guard := lock.NewGuard(lock.NewMemoryStore(nil), 10*time.Second, 2*time.Second, testutil.NopRecorder{})

	h.svc = transaction.NewService(h.appends, guard, proj, h.node, h.gateway, vault, testutil.NopRecorder{}, h.clock.Now, &config.Config{
		AuthorizationTimeout: 600000,
		PaymentTokenValidity: 900,
		MaxCartSize:          5,
		AppendMaxRetries:     3,
		OperationKeyTTL:      time.Hour,
	})
	return h
}

func (h *harness) activate(t *testing.T, amount domain.Amount) domain.TransactionID {
	t.Helper()
	state, err := h.svc.Activate(context.Background(), transaction.ActivateCommand{
		Notices:  []transaction.NoticeInput{{RptID: testutil.RptID, Amount: amount, Description: "TARI 2026"}},
		Email:    "mario.rossi@example.it",
		ClientID: domain.ClientCheckout,
	})
	require.NoError(t, err)
	return state.ID()
}

func authorizationCommand(id domain.TransactionID, amount, fee domain.Amount) transaction.RequestAuthorizationCommand {
	return transaction.RequestAuthorizationCommand{
		TransactionID:       id,
		Amount:              amount,
		Fee:                 fee,
		PaymentInstrumentID: "card",
		PspID:               "PSP1",
		Gateway:             domain.GatewayRedirect,
	}
}

func (h *harness) authorize(t *testing.T, id domain.TransactionID, outcome domain.Outcome) {
	t.Helper()
	ctx := context.Background()
	requested, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.NoError(t, err)
	_, err = h.svc.CompleteAuthorization(ctx, transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: requested.Authorization.AuthorizationRequestID,
		PspID:                  "PSP1",
		Outcome:                outcome,
		AuthorizationCode:      "123456",
	})
	require.NoError(t, err)
}

func (h *harness) kinds(t *testing.T, id domain.TransactionID) []domain.EventKind {
	t.Helper()
	events, err := h.log.Load(context.Background(), id)
	require.NoError(t, err)
	kinds := make([]domain.EventKind, len(events))
	for i, ev := range events {
		kinds[i] = ev.Kind()
	}
	return kinds
}

func TestService_HappyPathToClosed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	h.authorize(t, id, domain.OutcomeOK)

	_, err := h.svc.RequestClosure(ctx, id)
	require.NoError(t, err)
	state, err := h.svc.Close(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusClosed, state.Status())

	view, err := h.svc.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusClosed, view.Status)
	assert.Equal(t, domain.Outcome(""), view.ReceiptOutcome)
	assert.Equal(t, domain.Amount(100), view.Amount)
	assert.Equal(t, domain.Amount(5), view.Fee)

	require.Len(t, h.node.closures, 1)
	assert.Equal(t, domain.Amount(100), h.node.closures[0].TotalAmount)
	assert.Equal(t, "123456", h.node.closures[0].AuthorizationCode)

	_, err = h.svc.AddUserReceipt(ctx, transaction.AddUserReceiptCommand{TransactionID: id, Outcome: domain.OutcomeOK})
	require.NoError(t, err)
	view, err = h.svc.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusClosedWithReceipt, view.Status)
}

func TestService_ActivateRecordsOneBatch(t *testing.T) {
	h := newHarness(t)
	state, err := h.svc.Activate(context.Background(), transaction.ActivateCommand{
		Notices: []transaction.NoticeInput{
			{RptID: testutil.RptID, Amount: 100, Description: "TARI"},
			{RptID: testutil.OtherRptID, Amount: 250, Description: "TARES"},
		},
		Email:    "mario.rossi@example.it",
		ClientID: domain.ClientCheckoutCart,
		IDCart:   "cart-1",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.Amount(350), state.Amount())
	assert.Len(t, state.PaymentTokens, 2)
	assert.NotContains(t, string(state.Email), "mario")
	assert.Equal(t, []domain.EventKind{domain.EventActivationRequested, domain.EventActivated}, h.kinds(t, state.ID()))
}

func TestService_ActivateValidation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     transaction.ActivateCommand
		wantErr error
	}{
		{
			name:    "empty cart",
			cmd:     transaction.ActivateCommand{Email: "a@b.it", ClientID: domain.ClientCheckout},
			wantErr: domain.ErrEmptyCart,
		},
		{
			name: "bad email",
			cmd: transaction.ActivateCommand{
				Notices:  []transaction.NoticeInput{{RptID: testutil.RptID, Amount: 100, Description: "x"}},
				Email:    "not-an-email",
				ClientID: domain.ClientCheckout,
			},
			wantErr: domain.ErrInvalidEmail,
		},
		{
			name: "unknown client",
			cmd: transaction.ActivateCommand{
				Notices:  []transaction.NoticeInput{{RptID: testutil.RptID, Amount: 100, Description: "x"}},
				Email:    "a@b.it",
				ClientID: "WEB",
			},
			wantErr: domain.ErrInvalidClientID,
		},
		{
			name: "duplicate notice",
			cmd: transaction.ActivateCommand{
				Notices: []transaction.NoticeInput{
					{RptID: testutil.RptID, Amount: 100, Description: "x"},
					{RptID: testutil.RptID, Amount: 100, Description: "x"},
				},
				Email:    "a@b.it",
				ClientID: domain.ClientCheckout,
			},
			wantErr: domain.ErrDuplicateNotice,
		},
		{
			name: "bad rpt id",
			cmd: transaction.ActivateCommand{
				Notices:  []transaction.NoticeInput{{RptID: "123", Amount: 100, Description: "x"}},
				Email:    "a@b.it",
				ClientID: domain.ClientCheckout,
			},
			wantErr: domain.ErrInvalidRptID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.svc.Activate(context.Background(), tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, h.node.activations)
		})
	}
}

func TestService_ActivateNodeFault(t *testing.T) {
	h := newHarness(t)
	h.node.activateErr = fmt.Errorf("ActivatePaymentNotice: %w", domain.ErrNoticeNotPayable)

	_, err := h.svc.Activate(context.Background(), transaction.ActivateCommand{
		Notices:  []transaction.NoticeInput{{RptID: testutil.RptID, Amount: 100, Description: "x"}},
		Email:    "a@b.it",
		ClientID: domain.ClientCheckout,
	})
	assert.ErrorIs(t, err, domain.ErrNoticeNotPayable)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	batch, err := h.log.LoadSince(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, batch, "failed activation must not append")
}

func TestService_RepeatedAuthorizationRequestIsAlreadyProcessed(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	_, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.NoError(t, err)

	_, err = h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, "ALREADY_PROCESSED", domain.CodeOf(err))

	assert.Equal(t, []domain.EventKind{
		domain.EventActivationRequested,
		domain.EventActivated,
		domain.EventAuthorizationRequested,
	}, h.kinds(t, id))
	assert.Equal(t, 1, h.gateway.calls, "no second gateway call")
}

func TestService_AuthorizationRules(t *testing.T) {
	ctx := context.Background()

	t.Run("amount must match notices", func(t *testing.T) {
		h := newHarness(t)
		id := h.activate(t, 100)
		_, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 99, 5))
		assert.ErrorIs(t, err, domain.ErrAmountMismatch)
		assert.Zero(t, h.gateway.calls)
	})

	t.Run("negative fee", func(t *testing.T) {
		h := newHarness(t)
		id := h.activate(t, 100)
		_, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, -1))
		assert.ErrorIs(t, err, domain.ErrInvalidFee)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		h := newHarness(t)
		_, err := h.svc.RequestAuthorization(ctx, authorizationCommand(domain.NewTransactionID(), 100, 5))
		assert.ErrorIs(t, err, domain.ErrTransactionNotFound)
	})

	t.Run("default timeout", func(t *testing.T) {
		h := newHarness(t)
		id := h.activate(t, 100)
		state, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
		require.NoError(t, err)
		assert.Equal(t, int64(600000), state.Authorization.TimeoutMillis)
		assert.Equal(t, "gw-1", state.Authorization.AuthorizationRequestID)
	})
}

func TestService_OutcomeAfterDeadlineIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	cmd := authorizationCommand(id, 100, 5)
	cmd.TimeoutMillis = 600000
	requested, err := h.svc.RequestAuthorization(ctx, cmd)
	require.NoError(t, err)

	h.clock.Advance(600001 * time.Millisecond)
	_, err = h.svc.CompleteAuthorization(ctx, transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: requested.Authorization.AuthorizationRequestID,
		PspID:                  "PSP1",
		Outcome:                domain.OutcomeOK,
	})
	assert.ErrorIs(t, err, domain.ErrAuthorizationTimeout)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	assert.NotContains(t, h.kinds(t, id), domain.EventAuthorizationCompleted)
}

func TestService_OutcomeAtDeadlineIsAccepted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	requested, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.NoError(t, err)

	h.clock.Advance(600000 * time.Millisecond)
	_, err = h.svc.CompleteAuthorization(ctx, transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: requested.Authorization.AuthorizationRequestID,
		PspID:                  "PSP1",
		Outcome:                domain.OutcomeOK,
	})
	assert.NoError(t, err)
}

func TestService_OutcomeMustMatchPendingAuthorization(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)
	requested, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.NoError(t, err)

	_, err = h.svc.CompleteAuthorization(ctx, transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: requested.Authorization.AuthorizationRequestID,
		PspID:                  "OTHER",
		Outcome:                domain.OutcomeOK,
	})
	assert.ErrorIs(t, err, domain.ErrPspMismatch)

	_, err = h.svc.CompleteAuthorization(ctx, transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: "gw-unknown",
		PspID:                  "PSP1",
		Outcome:                domain.OutcomeOK,
	})
	assert.ErrorIs(t, err, domain.ErrGatewayTxnMismatch)

	// Rejected deliveries release their dedup mark, so the genuine one still lands.
	_, err = h.svc.CompleteAuthorization(ctx, transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: requested.Authorization.AuthorizationRequestID,
		PspID:                  "PSP1",
		Outcome:                domain.OutcomeOK,
	})
	assert.NoError(t, err)
}

func TestService_DuplicateOutcomeDelivery(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)
	requested, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.NoError(t, err)

	cmd := transaction.CompleteAuthorizationCommand{
		TransactionID:          id,
		AuthorizationRequestID: requested.Authorization.AuthorizationRequestID,
		PspID:                  "PSP1",
		Outcome:                domain.OutcomeOK,
	}
	_, err = h.svc.CompleteAuthorization(ctx, cmd)
	require.NoError(t, err)

	_, err = h.svc.CompleteAuthorization(ctx, cmd)
	assert.ErrorIs(t, err, domain.ErrAlreadyProcessed)

	count := 0
	for _, k := range h.kinds(t, id) {
		if k == domain.EventAuthorizationCompleted {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestService_ConcurrentAuthorizationRequests(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, h.kinds(t, id), 3)
}

func TestService_ClosureFailureIsRecordedAndRetryable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)
	h.authorize(t, id, domain.OutcomeOK)

	_, err := h.svc.RequestClosure(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.RequestClosure(ctx, id)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition, "closure may not be requested twice")

	h.node.closeErr = fmt.Errorf("ClosePayment: %w", domain.ErrUpstreamTimeout)
	state, err := h.svc.Close(ctx, id)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
	require.NotNil(t, state)
	failed, ok := state.(aggregate.ClosureError)
	require.True(t, ok)
	assert.True(t, failed.ClosureFailure.Retryable)

	h.node.closeErr = nil
	_, err = h.svc.RequestClosure(ctx, id)
	require.NoError(t, err)
	state, err = h.svc.Close(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusClosed, state.Status())
}

func TestService_ReceiptRequiresSuccessfulClosure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)
	h.authorize(t, id, domain.OutcomeOK)
	_, err := h.svc.RequestClosure(ctx, id)
	require.NoError(t, err)

	h.node.closeResult = domain.OutcomeKO
	_, err = h.svc.Close(ctx, id)
	require.NoError(t, err)

	_, err = h.svc.AddUserReceipt(ctx, transaction.AddUserReceiptCommand{TransactionID: id, Outcome: domain.OutcomeOK})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = h.svc.RequestRefund(ctx, transaction.RequestRefundCommand{TransactionID: id, Reason: "closure KO"})
	require.NoError(t, err)
}

func TestService_UserCancel(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	id := h.activate(t, 100)
	state, err := h.svc.UserCancel(ctx, id)
	require.NoError(t, err)
	assert.True(t, state.Status().IsTerminal())

	_, err = h.svc.UserCancel(ctx, id)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	pending := h.activate(t, 100)
	_, err = h.svc.RequestAuthorization(ctx, authorizationCommand(pending, 100, 5))
	require.NoError(t, err)
	state, err = h.svc.UserCancel(ctx, pending)
	require.NoError(t, err)
	require.NotNil(t, state.PendingAuthorization)

	authorized := h.activate(t, 100)
	h.authorize(t, authorized, domain.OutcomeOK)
	_, err = h.svc.UserCancel(ctx, authorized)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestService_RefundAfterAuthorizationKO(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)
	h.authorize(t, id, domain.OutcomeKO)

	_, err := h.svc.RequestClosure(ctx, id)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	_, err = h.svc.RequestRefund(ctx, transaction.RequestRefundCommand{TransactionID: id, Reason: "authorization KO"})
	require.NoError(t, err)

	h.gateway.refundErr = fmt.Errorf("Refund: %w", domain.ErrUpstreamFailure)
	state, err := h.svc.Refund(ctx, id)
	assert.ErrorIs(t, err, domain.ErrUpstreamFailure)
	assert.Equal(t, aggregate.StatusRefundError, state.Status())

	h.gateway.refundErr = nil
	_, err = h.svc.RequestRefund(ctx, transaction.RequestRefundCommand{TransactionID: id, Reason: "retry"})
	require.NoError(t, err)
	state, err = h.svc.Refund(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusRefunded, state.Status())
	assert.True(t, state.Status().IsTerminal())
	assert.Equal(t, []domain.Amount{105}, h.gateway.refunds)

	view, err := h.svc.GetTransaction(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, aggregate.StatusRefunded, view.Status)
	assert.Equal(t, "rf-1", view.RefundID)
}

func TestService_RefundNotAllowedAfterSuccess(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)
	h.authorize(t, id, domain.OutcomeOK)

	_, err := h.svc.RequestRefund(ctx, transaction.RequestRefundCommand{TransactionID: id})
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
}

func TestService_AppendConflictReReadsAndRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	h.appends.failNext(1)
	state, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.NoError(t, err)

	assert.Equal(t, 2, h.appends.appends)
	assert.Equal(t, 1, h.gateway.calls)
	assert.Equal(t, "gw-1", state.Authorization.AuthorizationRequestID)
	assert.Equal(t, []domain.EventKind{
		domain.EventActivationRequested,
		domain.EventActivated,
		domain.EventAuthorizationRequested,
	}, h.kinds(t, id))
}

func TestService_AppendConflictsExhaustRetries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	id := h.activate(t, 100)

	h.appends.failNext(5)
	_, err := h.svc.RequestAuthorization(ctx, authorizationCommand(id, 100, 5))
	require.ErrorIs(t, err, domain.ErrConcurrencyExhausted)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))

	assert.Equal(t, 3, h.appends.appends)
	assert.Equal(t, 1, h.gateway.calls)
	assert.Equal(t, []domain.EventKind{domain.EventActivationRequested, domain.EventActivated}, h.kinds(t, id))
}

func TestService_ActivateConflictDoesNotReactivateNotices(t *testing.T) {
	h := newHarness(t)
	h.appends.failNext(1)

	state, err := h.svc.Activate(context.Background(), transaction.ActivateCommand{
		Notices:  []transaction.NoticeInput{{RptID: testutil.RptID, Amount: 100, Description: "TARI 2026"}},
		Email:    "mario.rossi@example.it",
		ClientID: domain.ClientCheckout,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, h.node.activations)
	assert.Len(t, h.kinds(t, state.ID()), 2)
}

func TestService_AuthorizationTimeoutIsCapped(t *testing.T) {
	h := newHarness(t)
	id := h.activate(t, 100)

	cmd := authorizationCommand(id, 100, 5)
	cmd.TimeoutMillis = 365 * 24 * 3600 * 1000
	state, err := h.svc.RequestAuthorization(context.Background(), cmd)
	require.NoError(t, err)
	assert.Equal(t, int64(600000), state.Authorization.TimeoutMillis)
}
