package scheduler

import (
	"context"
	"sync"
	"time"
)

// Start runs Tick every cfg.Tick and Rundown once a day at rundownAt (an
// offset from local midnight). The first tick runs immediately. The returned
// function stops both loops and waits for them to exit.
func (s *Scheduler) Start(ctx context.Context, rundownAt time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		s.tickLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		s.rundownLoop(ctx, rundownAt)
	}()

	s.logger.Info("scheduler started", map[string]interface{}{
		"tick":           s.cfg.Tick.String(),
		"reminderOffset": s.cfg.ReminderOffset.String(),
		"rundownAt":      rundownAt.String(),
		"timezone":       s.cfg.Location.String(),
	})

	return func() {
		cancel()
		wg.Wait()
		s.logger.Info("scheduler stopped", nil)
	}
}

func (s *Scheduler) tickLoop(ctx context.Context) {
	tick := s.cfg.Tick
	if tick <= 0 {
		tick = 10 * time.Minute
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

func (s *Scheduler) rundownLoop(ctx context.Context, at time.Duration) {
	for {
		next := nextRundown(s.now(), at, s.cfg.Location)
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			if _, err := s.Rundown(ctx, next); err != nil {
				s.logger.Error("daily rundown failed", map[string]interface{}{"error": err})
			}
		}
	}
}

// nextRundown returns the first instant strictly after now that falls at
// offset past local midnight in loc.
func nextRundown(now time.Time, offset time.Duration, loc *time.Location) time.Time {
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	next := midnight.Add(offset)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, loc).Add(offset)
	}
	return next
}
