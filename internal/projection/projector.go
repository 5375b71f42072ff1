// Package projection keeps the per-transaction read model in step with the
// event log. Delivery is at-least-once; Apply is idempotent by event version.
package projection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/aggregate"
	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/logging"
)

const (
	checkpointName   = "transaction_views"
	maxUpdateRetries = 3
)

type eventSource interface {
	Load(ctx context.Context, id domain.TransactionID) ([]domain.Event, error)
	LoadSince(ctx context.Context, afterSeq int64, limit int) ([]domain.Event, error)
}

type viewStore interface {
	Get(ctx context.Context, id domain.TransactionID) (*View, error)
	Create(ctx context.Context, v *View) error
	Update(ctx context.Context, v *View, expectedVersion int64) error
	Replace(ctx context.Context, v *View) error
}

type checkpointStore interface {
	Load(ctx context.Context, name string) (int64, error)
	Save(ctx context.Context, name string, seq int64) error
}

type recorder interface {
	ProjectionApplied(result string)
}

type Projector struct {
	events      eventSource
	views       viewStore
	checkpoints checkpointStore
	metrics     recorder
	logger      *slog.Logger
	interval    time.Duration
	batchSize   int
}

func NewProjector(
	events eventSource,
	views viewStore,
	checkpoints checkpointStore,
	metrics recorder,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
) *Projector {
	return &Projector{
		events:      events,
		views:       views,
		checkpoints: checkpoints,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
		batchSize:   batchSize,
	}
}

// Get returns the current view of a transaction.
func (p *Projector) Get(ctx context.Context, id domain.TransactionID) (*View, error) {
	v, err := p.views.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("Get: %w", domain.ErrTransactionNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return v, nil
}

// Apply folds ev into its transaction's view. Re-applying an event that is
// already reflected is a no-op.
func (p *Projector) Apply(ctx context.Context, ev domain.Event) error {
	for range maxUpdateRetries {
		result, err := p.applyOnce(ctx, ev)
		if errors.Is(err, domain.ErrVersionConflict) {
			continue
		}
		if err != nil {
			p.metrics.ProjectionApplied("error")
			return fmt.Errorf("Apply: %s v%d: %w", ev.TransactionID, ev.Version, err)
		}
		p.metrics.ProjectionApplied(result)
		return nil
	}
	p.metrics.ProjectionApplied("conflict")
	return fmt.Errorf("Apply: %s v%d: %w", ev.TransactionID, ev.Version, domain.ErrConcurrencyExhausted)
}

func (p *Projector) applyOnce(ctx context.Context, ev domain.Event) (string, error) {
	current, err := p.views.Get(ctx, ev.TransactionID)
	if errors.Is(err, domain.ErrNotFound) {
		if ev.Version != 1 {
			return "", domain.ErrViewNotFound
		}
		v := View{}.apply(ev)
		if err := p.views.Create(ctx, &v); err != nil {
			return "", err
		}
		return "created", nil
	}
	if err != nil {
		return "", err
	}

	if ev.Version <= current.Version {
		return "duplicate", nil
	}
	if ev.Version != current.Version+1 {
		return "", fmt.Errorf("view at v%d: %w", current.Version, domain.ErrProjectionGap)
	}

	next := current.apply(ev)
	if err := p.views.Update(ctx, &next, current.Version); err != nil {
		return "", err
	}
	return "updated", nil
}

// Rebuild replaces a transaction's view with one derived from its full log.
func (p *Projector) Rebuild(ctx context.Context, id domain.TransactionID) (*View, error) {
	events, err := p.events.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Rebuild: %w", err)
	}
	if _, err := aggregate.Reduce(events); err != nil {
		return nil, fmt.Errorf("Rebuild: %s: %w", id, err)
	}

	v := Build(events)
	if err := p.views.Replace(ctx, &v); err != nil {
		return nil, fmt.Errorf("Rebuild: %w", err)
	}
	p.metrics.ProjectionApplied("rebuilt")
	logging.FromContext(ctx).Info("projection rebuilt", "transaction_id", id, "version", v.Version)
	return &v, nil
}

// Run tails the event log from the stored checkpoint until ctx is done,
// catching up on events whose in-process projection failed.
func (p *Projector) Run(ctx context.Context) {
	p.logger.Info("projector started", "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("projector stopped")
			return
		case <-ticker.C:
			if _, err := p.CatchUp(ctx); err != nil {
				p.logger.Error("projection catch-up failed", "error", err)
			}
		}
	}
}

// CatchUp projects one batch of events past the checkpoint and returns how many it consumed.
func (p *Projector) CatchUp(ctx context.Context) (int, error) {
	from, err := p.checkpoints.Load(ctx, checkpointName)
	if err != nil {
		return 0, fmt.Errorf("CatchUp: load checkpoint: %w", err)
	}

	events, err := p.events.LoadSince(ctx, from, p.batchSize)
	if err != nil {
		return 0, fmt.Errorf("CatchUp: %w", err)
	}

	for i, ev := range events {
		if err := p.Apply(ctx, ev); err != nil {
			if err := p.handleApplyFailure(ctx, ev, err); err != nil {
				return i, p.saveCheckpoint(ctx, from, err)
			}
		}
		from = ev.Seq
	}

	return len(events), p.saveCheckpoint(ctx, from, nil)
}

// handleApplyFailure handles a failed Apply during catch-up. A view that is out of step
// with the log is rebuilt; a log that cannot be reduced is reported and
// skipped so one corrupt transaction does not stall the others.
func (p *Projector) handleApplyFailure(ctx context.Context, ev domain.Event, applyErr error) error {
	if domain.KindOf(applyErr) != domain.KindCorruption {
		return applyErr
	}

	if errors.Is(applyErr, domain.ErrProjectionGap) || errors.Is(applyErr, domain.ErrViewNotFound) {
		p.logger.Warn("projection out of step, rebuilding",
			"transaction_id", ev.TransactionID,
			"version", ev.Version,
			"error", applyErr,
		)
		_, err := p.Rebuild(ctx, ev.TransactionID)
		if err == nil {
			return nil
		}
		if domain.KindOf(err) != domain.KindCorruption {
			return err
		}
		applyErr = err
	}

	p.logger.Error("corrupt event log, skipping transaction event",
		"transaction_id", ev.TransactionID,
		"version", ev.Version,
		"event_kind", ev.Kind(),
		"error", applyErr,
	)
	return nil
}

func (p *Projector) saveCheckpoint(ctx context.Context, seq int64, cause error) error {
	if err := p.checkpoints.Save(ctx, checkpointName, seq); err != nil {
		return errors.Join(cause, fmt.Errorf("CatchUp: save checkpoint: %w", err))
	}
	if cause != nil {
		return fmt.Errorf("CatchUp: %w", cause)
	}
	return nil
}
