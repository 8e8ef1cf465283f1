// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package unlock runs the scheduled sweep that opens due time capsules.
package unlock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adhocore/gronx"

	"github.com/efchatnet/memories/backend/metrics"
	"github.com/efchatnet/memories/backend/storage"
)

const DefaultCron = "0 * * * *"

// ErrPartialSweep is returned when some capsules in a run failed to unlock.
var ErrPartialSweep = errors.New("unlock sweep finished with failures")

type Report struct {
	Scanned  int
	Unlocked int
	Failed   int
}

type Sweeper struct {
	store   storage.CapsuleStore
	cron    string
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	after   func(d time.Duration) <-chan time.Time
	running atomic.Bool
	ticks   sync.WaitGroup
}

func NewSweeper(store storage.CapsuleStore, cronExpr string, logger *slog.Logger, m *metrics.Metrics) (*Sweeper, error) {
	if cronExpr == "" {
		cronExpr = DefaultCron
	}
	if !gronx.IsValid(cronExpr) {
		return nil, fmt.Errorf("invalid unlock cron expression: %s", cronExpr)
	}
	return &Sweeper{
		store:   store,
		cron:    cronExpr,
		logger:  logger,
		metrics: m,
		now:     time.Now,
		after:   time.After,
	}, nil
}

// RunOnce unlocks every capsule that is due. A failure on one capsule is
// logged and the sweep moves on; the report counts it and the returned error
// wraps ErrPartialSweep.
func (s *Sweeper) RunOnce(ctx context.Context) (Report, error) {
	var report Report

	due, err := s.store.DueCapsules(ctx, s.now())
	if err != nil {
		return report, fmt.Errorf("list due capsules: %w", err)
	}
	report.Scanned = len(due)
	if len(due) == 0 {
		s.logger.Debug("No capsules ready to unlock")
		return report, nil
	}

	for _, c := range due {
		changed, err := s.store.UnlockCapsule(ctx, c.ID)
		if err != nil {
			report.Failed++
			s.logger.Error("Failed to unlock capsule", "capsule_id", c.ID, "error", err)
			continue
		}
		if changed {
			report.Unlocked++
			s.logger.Info("Unlocked capsule", "capsule_id", c.ID, "group_id", c.GroupID, "title", c.Title)
		}
	}

	s.metrics.CapsulesUnlocked(report.Unlocked)
	s.metrics.SweepFailures(report.Failed)
	if report.Failed > 0 {
		return report, fmt.Errorf("%w: %d of %d", ErrPartialSweep, report.Failed, report.Scanned)
	}
	return report, nil
}

// Run sleeps until each cron tick and sweeps, until ctx is done. A tick that
// arrives while the previous sweep is still running is skipped. Run returns
// only after in-flight sweeps finish.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info("Capsule unlock scheduler started", "cron", s.cron)
	for {
		next, err := gronx.NextTickAfter(s.cron, s.now(), false)
		if err != nil {
			s.logger.Error("Failed to compute next unlock tick", "cron", s.cron, "error", err)
			next = s.now().Add(time.Minute)
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Capsule unlock scheduler stopping")
			s.ticks.Wait()
			return
		case <-s.after(time.Until(next)):
		}

		s.ticks.Add(1)
		go func() {
			defer s.ticks.Done()
			s.tick(ctx)
		}()
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("Previous unlock sweep still running, skipping tick")
		return
	}
	defer s.running.Store(false)

	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("Unlock sweep failed", "scanned", report.Scanned, "unlocked", report.Unlocked, "failed", report.Failed, "error", err)
		return
	}
	if report.Scanned > 0 {
		s.logger.Info("Unlock sweep finished", "scanned", report.Scanned, "unlocked", report.Unlocked)
	}
}
