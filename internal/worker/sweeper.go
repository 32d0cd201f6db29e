package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Sweeper expires overdue invitations. *invitations.Service implements it.
type Sweeper interface {
	Sweep(ctx context.Context) (int, error)
}

// ExpirySweeper runs Sweep on an interval. It catches expiry jobs the
// in-process scheduler lost to a restart.
type ExpirySweeper struct {
	sweeper  Sweeper
	interval time.Duration
	logger   *zap.Logger
}

// NewExpirySweeper creates a sweeper.
func NewExpirySweeper(s Sweeper, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{sweeper: s, interval: interval, logger: logger}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (e *ExpirySweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()
	for {
		e.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			e.logger.Info("expiry sweeper stopping")
			return
		case <-ticker.C:
		}
	}
}

func (e *ExpirySweeper) sweepOnce(ctx context.Context) {
	n, err := e.sweeper.Sweep(ctx)
	if err != nil {
		if ctx.Err() == nil {
			e.logger.Error("invitation sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		e.logger.Info("expired overdue invitations", zap.Int("count", n))
	}
}
