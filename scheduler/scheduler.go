package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/cppla/bharatinvest/models"
)

// Refresher is the part of the wallet service the sweep drives.
type Refresher interface {
	Due(ctx context.Context, limit int) ([]uint, error)
	Refresh(ctx context.Context, userID uint) (models.Account, error)
}

// Scheduler runs periodic ledger maintenance.
type Scheduler struct {
	Cron      *cron.Cron
	Refresher Refresher
	Logger    *zap.Logger
	Ctx       context.Context
	BatchSize int
}

// NewScheduler creates a scheduler with second-resolution cron specs.
func NewScheduler(ctx context.Context, r Refresher, logger *zap.Logger, batch int) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if batch <= 0 {
		batch = 500
	}
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Refresher: r,
		Logger:    logger,
		Ctx:       ctx,
		BatchSize: batch,
	}
}

// RegisterAll registers the sweep that settles pending transactions and pays out returns for
// accounts nobody is looking at.
func (s *Scheduler) RegisterAll(sweepCron string) error {
	if _, err := s.Cron.AddFunc(sweepCron, func() { s.Sweep() }); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info("scheduler started")
}

// Stop stops the cron and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info("scheduler stopped")
}

// Sweep refreshes every due account once and returns how many were refreshed.
func (s *Scheduler) Sweep() int {
	ids, err := s.Refresher.Due(s.Ctx, s.BatchSize)
	if err != nil {
		s.Logger.Error("sweep: list due accounts", zap.Error(err))
		return 0
	}
	done := 0
	for _, id := range ids {
		if s.Ctx.Err() != nil {
			break
		}
		if _, err := s.Refresher.Refresh(s.Ctx, id); err != nil {
			s.Logger.Warn("sweep: refresh account", zap.Uint("user_id", id), zap.Error(err))
			continue
		}
		done++
	}
	if len(ids) > 0 {
		s.Logger.Info("sweep finished", zap.Int("due", len(ids)), zap.Int("refreshed", done))
	}
	return done
}
