package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

const (
	lockPrefix      = "transaction-lock:"
	processedPrefix = "processed:"
	retryInterval   = 25 * time.Millisecond
)

type recorder interface {
	LockAcquired(result string)
}

// Lease is a held lock. Its token identifies the holder on release.
type Lease struct {
	Key   string
	token string
}

type Guard struct {
	store   Store
	ttl     time.Duration
	wait    time.Duration
	metrics recorder
}

// NewGuard builds a Guard whose leases expire after ttl. WithLock waits up
// to wait for a busy lock before giving up.
func NewGuard(store Store, ttl, wait time.Duration, metrics recorder) *Guard {
	return &Guard{store: store, ttl: ttl, wait: wait, metrics: metrics}
}

// Acquire takes the lock for id without waiting.
func (g *Guard) Acquire(ctx context.Context, id domain.TransactionID) (*Lease, error) {
	lease := &Lease{Key: lockPrefix + id.String(), token: uuid.NewString()}

	ok, err := g.store.SetNX(ctx, lease.Key, lease.token, g.ttl)
	if err != nil {
		g.metrics.LockAcquired("error")
		return nil, fmt.Errorf("Acquire: %w", err)
	}
	if !ok {
		g.metrics.LockAcquired("busy")
		return nil, fmt.Errorf("Acquire: %s: %w", id, domain.ErrAlreadyLocked)
	}
	g.metrics.LockAcquired("acquired")
	return lease, nil
}

// Release gives up a lease. Releasing a lease that already expired is not an error.
func (g *Guard) Release(ctx context.Context, lease *Lease) error {
	ok, err := g.store.CompareAndDelete(ctx, lease.Key, lease.token)
	if err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	if !ok {
		logging.FromContext(ctx).Warn("lock lease expired before release", "key", lease.Key)
	}
	return nil
}

// WithLock runs fn while holding the lock for id, retrying a busy lock until
// the guard's wait elapses.
func (g *Guard) WithLock(ctx context.Context, id domain.TransactionID, fn func(ctx context.Context) error) error {
	lease, err := g.acquireWithin(ctx, id)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.Release(context.WithoutCancel(ctx), lease); err != nil {
			logging.FromContext(ctx).Error("failed to release lock", "key", lease.Key, "error", err)
		}
	}()

	return fn(ctx)
}

func (g *Guard) acquireWithin(ctx context.Context, id domain.TransactionID) (*Lease, error) {
	deadline := time.Now().Add(g.wait)
	for {
		lease, err := g.Acquire(ctx, id)
		if err == nil {
			return lease, nil
		}
		if !errors.Is(err, domain.ErrAlreadyLocked) || time.Now().Add(retryInterval).After(deadline) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("Acquire: %w", ctx.Err())
		case <-time.After(retryInterval):
		}
	}
}

// MarkProcessed records that the external operation key has been handled.
// A second mark for the same key within ttl fails with ErrAlreadyProcessed.
func (g *Guard) MarkProcessed(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := g.store.SetNX(ctx, processedPrefix+key, time.Now().UTC().Format(time.RFC3339Nano), ttl)
	if err != nil {
		return fmt.Errorf("MarkProcessed: %w", err)
	}
	if !ok {
		return fmt.Errorf("MarkProcessed: %s: %w", key, domain.ErrAlreadyProcessed)
	}
	return nil
}

// Forget drops a processed mark so the operation can be retried.
func (g *Guard) Forget(ctx context.Context, key string) error {
	if err := g.store.Delete(ctx, processedPrefix+key); err != nil {
		return fmt.Errorf("Forget: %w", err)
	}
	return nil
}
