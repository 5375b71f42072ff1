package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
	"github.com/josh-kwaku/checkout-transactions/internal/projection"
)

type Views struct {
	mu    sync.RWMutex
	views map[domain.TransactionID]projection.View
}

func NewViews() *Views {
	return &Views{views: map[domain.TransactionID]projection.View{}}
}

func (s *Views) Get(_ context.Context, id domain.TransactionID) (*projection.View, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.views[id]
	if !ok {
		return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
	}
	v = clone(v)
	return &v, nil
}

func (s *Views) Create(_ context.Context, v *projection.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.views[v.TransactionID]; exists {
		return fmt.Errorf("Create: %w", domain.ErrVersionConflict)
	}
	s.views[v.TransactionID] = clone(*v)
	return nil
}

func (s *Views) Update(_ context.Context, v *projection.View, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.views[v.TransactionID]
	if !ok {
		return fmt.Errorf("Update: %w", domain.ErrNotFound)
	}
	if cur.Version != expectedVersion {
		return fmt.Errorf("Update: %w", domain.ErrVersionConflict)
	}
	s.views[v.TransactionID] = clone(*v)
	return nil
}

func (s *Views) Replace(_ context.Context, v *projection.View) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.views[v.TransactionID] = clone(*v)
	return nil
}

// Delete drops a view, used to simulate a lost read model.
func (s *Views) Delete(id domain.TransactionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.views, id)
}

func clone(v projection.View) projection.View {
	v.Notices = append([]domain.PaymentNotice(nil), v.Notices...)
	return v
}

type Checkpoints struct {
	mu  sync.Mutex
	seq map[string]int64
}

func NewCheckpoints() *Checkpoints {
	return &Checkpoints{seq: map[string]int64{}}
}

func (c *Checkpoints) Load(_ context.Context, name string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq[name], nil
}

func (c *Checkpoints) Save(_ context.Context, name string, seq int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq[name] = seq
	return nil
}
