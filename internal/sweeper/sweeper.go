package sweeper

import (
	"context"
	"fmt"

	"github.com/PitchsideLabs/fieldbook/pkg/booking"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Sweeper runs the periodic background jobs: expiring stale payment
// holds and finalizing cancellation requests whose undo window closed.
type Sweeper struct {
	engine *booking.Engine
	logger *zap.Logger
	cron   *cron.Cron
}

// New wires a Sweeper but does not start it.
func New(engine *booking.Engine, logger *zap.Logger) (*Sweeper, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{engine: engine, logger: logger, cron: cron.New()}, nil
}

// Start registers the jobs on the given schedule and begins running
// them until Stop is called. The schedule uses the standard cron
// format, for example "*/1 * * * *" for every minute.
func (sweeper *Sweeper) Start(ctx context.Context, schedule string) error {
	if _, err := sweeper.cron.AddFunc(schedule, func() { sweeper.expireHolds(ctx) }); err != nil {
		return fmt.Errorf("schedule hold sweep: %w", err)
	}
	if _, err := sweeper.cron.AddFunc(schedule, func() { sweeper.finalizeCancellations(ctx) }); err != nil {
		return fmt.Errorf("schedule cancellation sweep: %w", err)
	}
	sweeper.cron.Start()
	sweeper.logger.Info("sweeper started", zap.String("schedule", schedule))
	return nil
}

// Stop halts the schedule and waits for running jobs to finish.
func (sweeper *Sweeper) Stop() {
	stopCtx := sweeper.cron.Stop()
	<-stopCtx.Done()
	sweeper.logger.Info("sweeper stopped")
}

func (sweeper *Sweeper) expireHolds(ctx context.Context) {
	expired, err := sweeper.engine.Holds.ExpireStaleHolds(ctx)
	if err != nil {
		sweeper.logger.Warn("hold sweep incomplete", zap.Int("expired", expired), zap.Error(err))
		return
	}
	if expired > 0 {
		sweeper.logger.Info("holds expired", zap.Int("expired", expired))
	}
}

func (sweeper *Sweeper) finalizeCancellations(ctx context.Context) {
	finalized, err := sweeper.engine.Cancellations.FinalizeDue(ctx)
	if err != nil {
		sweeper.logger.Warn("cancellation sweep incomplete", zap.Int("finalized", finalized), zap.Error(err))
		return
	}
	if finalized > 0 {
		sweeper.logger.Info("cancellations finalized", zap.Int("finalized", finalized))
	}
}
