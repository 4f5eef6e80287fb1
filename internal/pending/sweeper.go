package pending

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/grandcafe/concierge/internal/observability"
)

// Sweeper periodically expires lapsed pending actions. Expiry is already
// lazy on access; the sweep keeps the store bounded and makes expiry
// visible even when nobody touches the action again.
type Sweeper struct {
	store Store
	log   *observability.Logger
	cron  *cron.Cron
}

// NewSweeper builds a sweeper over the store.
func NewSweeper(store Store, log *observability.Logger) *Sweeper {
	return &Sweeper{
		store: store,
		log:   log,
		cron:  cron.New(),
	}
}

// Start schedules the sweep at the given interval and begins running.
func (s *Sweeper) Start(interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	spec := fmt.Sprintf("@every %s", interval)
	if _, err := s.cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("pending: schedule sweep: %w", err)
	}
	s.cron.Start()
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := s.store.Sweep(ctx)
	if err != nil {
		s.log.Error(ctx, "pending action sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.log.Info(ctx, "expired pending actions", "count", n)
	}
}
