package sweeper

import (
	"context"
	"time"

	"github.com/giftvault-io/giftvault/internal/inventory"
	log "github.com/sirupsen/logrus"
)

const defaultSweepInterval = 15 * time.Minute

// ExpirySweeper periodically transitions stale codes to EXPIRED.
type ExpirySweeper struct {
	inv      *inventory.Service
	interval time.Duration
}

// New constructs a sweeper over the inventory service. A non-positive
// interval falls back to the default.
func New(inv *inventory.Service, interval time.Duration) *ExpirySweeper {
	if inv == nil {
		return nil
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	return &ExpirySweeper{inv: inv, interval: interval}
}

// Start launches the sweep loop in a background goroutine.
func (s *ExpirySweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go s.run(ctx)
	log.Infof("expiry sweeper started (interval=%s)", s.interval)
}

func (s *ExpirySweeper) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		s.sweepOnce(ctx)
		timer := time.NewTimer(s.interval)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return
		case <-timer.C:
		}
	}
}

func (s *ExpirySweeper) sweepOnce(ctx context.Context) {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if _, errSweep := s.inv.SweepExpired(sweepCtx); errSweep != nil {
		log.WithError(errSweep).Error("expiry sweep failed")
	}
}
