package testutil

import (
	"sync"
	"time"

	"github.com/josh-kwaku/checkout-transactions/internal/domain"
)

const (
	RptID      = "77777777777302016723749670035"
	OtherRptID = "77777777777302016723749670036"
)

// Notice returns a valid payment notice for RptID.
func Notice(amount domain.Amount) domain.PaymentNotice {
	n, err := domain.NewPaymentNotice(RptID, amount, "TARI 2026")
	if err != nil {
		panic(err)
	}
	return n
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// NopRecorder satisfies the metrics recorders without recording anything.
type NopRecorder struct{}

func (NopRecorder) ProjectionApplied(string)              {}
func (NopRecorder) LockAcquired(string)                   {}
func (NopRecorder) CommandHandled(string, string)         {}
func (NopRecorder) CommandDuration(string, time.Duration) {}
func (NopRecorder) AppendConflict()                       {}
