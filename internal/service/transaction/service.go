// Package transaction implements the command handlers of the transaction
// aggregate. Every command runs under the transaction's lock, re-reads the
// log, decides on the state it folds to, and appends with an expected version.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/client"
	"github.com/josh-kwaku/checkout-transactions/internal/config"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
)

type eventLog interface {
	Append(ctx context.Context, id domain.TransactionID, expectedVersion int64, events []domain.Event) ([]domain.Event, error)
	Load(ctx context.Context, id domain.TransactionID) ([]domain.Event, error)
}

type guard interface {
	WithLock(ctx context.Context, id domain.TransactionID, fn func(ctx context.Context) error) error
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) error
	Forget(ctx context.Context, key string) error
}

type projector interface {
	Apply(ctx context.Context, ev domain.Event) error
	Get(ctx context.Context, id domain.TransactionID) (*projection.View, error)
}

type nodeClient interface {
	ActivatePaymentNotice(ctx context.Context, id domain.TransactionID, notice domain.PaymentNotice) (string, error)
	ClosePayment(ctx context.Context, req client.ClosePaymentRequest) (domain.Outcome, error)
}

type gatewayClient interface {
	RequestAuthorization(ctx context.Context, req client.AuthorizationRequest) (client.AuthorizationResponse, error)
	Refund(ctx context.Context, id domain.TransactionID, authorizationRequestID string, amount domain.Amount) (string, error)
}

type sealer interface {
	Seal(plaintext string) (domain.Confidential, error)
}

type recorder interface {
	CommandHandled(command, result string)
	CommandDuration(command string, d time.Duration)
	AppendConflict()
}

type Service struct {
	events    eventLog
	locks     guard
	projector projector
	node      nodeClient
	gateway   gatewayClient
	vault     sealer
	metrics   recorder
	now       func() time.Time
	config    *config.Config
}

func NewService(
	events eventLog,
	locks guard,
	proj projector,
	node nodeClient,
	gateway gatewayClient,
	vault sealer,
	metrics recorder,
	now func() time.Time,
	cfg *config.Config,
) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		events:    events,
		locks:     locks,
		projector: proj,
		node:      node,
		gateway:   gateway,
		vault:     vault,
		metrics:   metrics,
		now:       now,
		config:    cfg,
	}
}

// decideFunc inspects the current state and returns the payloads to append.
// It may return events together with an error when a failure is itself a
// recorded fact; the events are appended and the error still reaches the caller.
type decideFunc func(ctx context.Context, state aggregate.Transaction) ([]domain.EventData, error)

// upstream memoizes one collaborator call across the attempts of a command,
// so an append conflict re-decides against the re-read log without calling
// the node or gateway a second time.
type upstream[T any] struct {
	done bool
	val  T
	err  error
}

func (u *upstream[T]) call(fn func() (T, error)) (T, error) {
	if !u.done {
		u.val, u.err = fn()
		u.done = true
	}
	return u.val, u.err
}

type operation struct {
	command string
	id      domain.TransactionID
	creates bool
	decide  decideFunc
}

// execute runs op under the transaction lock and returns the state after
// its events. A conflicting append re-reads the log and decides again.
func (s *Service) execute(ctx context.Context, op operation) (aggregate.Transaction, error) {
	start := time.Now()
	ctx, log := logging.WithTransaction(ctx, op.id)
	log = log.With("command", op.command)

	var result aggregate.Transaction
	err := s.locks.WithLock(ctx, op.id, func(ctx context.Context) error {
		for attempt := 1; ; attempt++ {
			next, err := s.attempt(ctx, op)
			if errors.Is(err, domain.ErrVersionConflict) {
				s.metrics.AppendConflict()
				log.Warn("append conflict, re-reading log", "attempt", attempt)
				if attempt >= s.config.AppendMaxRetries {
					return fmt.Errorf("%w: %w", domain.ErrConcurrencyExhausted, err)
				}
				continue
			}
			result = next
			return err
		}
	})

	s.metrics.CommandDuration(op.command, time.Since(start))
	if err != nil {
		s.metrics.CommandHandled(op.command, domain.KindOf(err).String())
		if domain.KindOf(err) == domain.KindInternal || domain.KindOf(err) == domain.KindCorruption {
			log.Error("command failed", "error", err)
		} else {
			log.Info("command rejected", "error", err)
		}
		return result, fmt.Errorf("%s: %w", op.command, err)
	}

	s.metrics.CommandHandled(op.command, "ok")
	log.Info("command handled", "status", result.Status())
	return result, nil
}

func (s *Service) attempt(ctx context.Context, op operation) (aggregate.Transaction, error) {
	history, err := s.events.Load(ctx, op.id)
	if err != nil {
		return nil, err
	}

	var state aggregate.Transaction
	switch {
	case len(history) > 0:
		if state, err = aggregate.Reduce(history); err != nil {
			return nil, err
		}
		if op.creates {
			return nil, illegal(state)
		}
	case !op.creates:
		return nil, domain.ErrTransactionNotFound
	}

	data, decideErr := op.decide(ctx, state)
	if len(data) == 0 {
		if decideErr == nil {
			return state, nil
		}
		return nil, decideErr
	}

	expected := int64(len(history))
	stored, err := s.events.Append(ctx, op.id, expected, s.newEvents(op.id, expected, data))
	if err != nil {
		return nil, err
	}

	next, err := aggregate.Fold(state, stored)
	if err != nil {
		return nil, err
	}
	s.project(ctx, stored)
	return next, decideErr
}

func (s *Service) newEvents(id domain.TransactionID, expected int64, data []domain.EventData) []domain.Event {
	at := s.now().UTC().Truncate(time.Microsecond)
	events := make([]domain.Event, len(data))
	for i, d := range data {
		events[i] = domain.Event{
			ID:            uuid.New(),
			TransactionID: id,
			Version:       expected + int64(i+1),
			CreatedAt:     at,
			Data:          d,
		}
	}
	return events
}

// project updates the read model in-process. A failure is left for the
// catch-up loop, which replays from the log.
func (s *Service) project(ctx context.Context, events []domain.Event) {
	for _, ev := range events {
		if err := s.projector.Apply(ctx, ev); err != nil {
			logging.FromContext(ctx).Warn("in-process projection failed",
				"event_kind", ev.Kind(),
				"version", ev.Version,
				"error", err,
			)
			return
		}
	}
}

func illegal(state aggregate.Transaction) error {
	return fmt.Errorf("transaction is %s: %w", state.Status(), domain.ErrIllegalTransition)
}

// GetTransaction returns the read model of a transaction.
func (s *Service) GetTransaction(ctx context.Context, id domain.TransactionID) (*projection.View, error) {
	v, err := s.projector.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("GetTransaction: %w", err)
	}
	return v, nil
}
