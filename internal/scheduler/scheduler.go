// Package scheduler fans out appointment reminders, sweeps the due queue and
// sends the morning rundown.
package scheduler

import (
	"context"
	"time"

	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification"
	"clinic-workers/internal/notification/directory"
	"clinic-workers/internal/notification/dispatch"
	"clinic-workers/internal/notification/record"
)

// Notifier is the part of the notification service the scheduler drives.
type Notifier interface {
	SendNow(ctx context.Context, req notification.Request) (*models.NotificationRecord, error)
	ScheduleAt(ctx context.Context, req notification.Request, when time.Time) (*models.NotificationRecord, error)
	Deliver(ctx context.Context, rec *models.NotificationRecord) (dispatch.Outcome, error)
}

type Config struct {
	Tick           time.Duration
	ReminderOffset time.Duration
	BatchSize      int
	Location       *time.Location
}

type Scheduler struct {
	events    EventSource
	records   record.Store
	notifier  Notifier
	directory directory.Directory
	cfg       Config
	logger    logger.Logger
	now       func() time.Time
}

func New(events EventSource, records record.Store, notifier Notifier, dir directory.Directory, cfg Config, log logger.Logger) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	return &Scheduler{
		events:    events,
		records:   records,
		notifier:  notifier,
		directory: dir,
		cfg:       cfg,
		logger:    log.WithFields(map[string]interface{}{"component": "scheduler"}),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SweepResult counts what one sweep did.
type SweepResult struct {
	Delivered int
	Failed    int
	Errors    int
}

// Tick runs the reminder fan-out and then the due-queue sweep. Errors are
// logged and counted; a failing fan-out does not prevent the sweep.
func (s *Scheduler) Tick(ctx context.Context) {
	if _, err := s.FanOut(ctx); err != nil {
		metrics.SchedulerRuns.WithLabelValues("fanout", "error").Inc()
		s.logger.Error("reminder fan-out failed", map[string]interface{}{"error": err})
	} else {
		metrics.SchedulerRuns.WithLabelValues("fanout", "ok").Inc()
	}

	if _, err := s.Sweep(ctx); err != nil {
		metrics.SchedulerRuns.WithLabelValues("sweep", "error").Inc()
		s.logger.Error("due-queue sweep failed", map[string]interface{}{"error": err})
	} else {
		metrics.SchedulerRuns.WithLabelValues("sweep", "ok").Inc()
	}
}

// FanOut queues a reminder for every confirmed event starting one offset from
// now, widened by one tick on each side so consecutive ticks overlap. The
// overlap is absorbed by the dedup probe.
func (s *Scheduler) FanOut(ctx context.Context) (int, error) {
	now := s.now()
	center := now.Add(s.cfg.ReminderOffset)
	events, err := s.events.Upcoming(ctx, center.Add(-s.cfg.Tick), center.Add(s.cfg.Tick))
	if err != nil {
		return 0, err
	}

	names := make(map[string]string)
	queued := 0
	for _, ev := range events {
		exists, err := s.records.Exists(ctx, record.Filter{
			TemplateKey:    models.TemplateEventReminder24h,
			RecipientKind:  models.RecipientPatient,
			RecipientID:    ev.PatientCode,
			CorrelationKey: ev.Code,
		})
		if err != nil {
			metrics.SchedulerItems.WithLabelValues("fanout", "error").Inc()
			s.logger.Warn("dedup probe failed, skipping event", map[string]interface{}{"eventCode": ev.Code, "error": err})
			continue
		}
		if exists {
			metrics.SchedulerItems.WithLabelValues("fanout", "duplicate").Inc()
			continue
		}

		local := ev.StartsAt.In(s.cfg.Location)
		req := notification.Request{
			RecipientKind: models.RecipientPatient,
			RecipientID:   ev.PatientCode,
			TemplateKey:   models.TemplateEventReminder24h,
			Channel:       models.ChannelAuto,
			Meta: map[string]interface{}{
				"eventCode":        ev.Code,
				"counterpartyCode": ev.StaffCode,
				"counterpartyName": s.staffName(ctx, names, ev.StaffCode),
				"date":             local.Format("2006-01-02"),
				"time":             local.Format("15:04"),
			},
		}
		if _, err := s.notifier.ScheduleAt(ctx, req, ev.StartsAt.Add(-s.cfg.ReminderOffset)); err != nil {
			metrics.SchedulerItems.WithLabelValues("fanout", "error").Inc()
			s.logger.Error("failed to queue reminder", map[string]interface{}{"eventCode": ev.Code, "error": err})
			continue
		}
		metrics.SchedulerItems.WithLabelValues("fanout", "queued").Inc()
		queued++
	}

	if queued > 0 {
		s.logger.Info("reminders queued", map[string]interface{}{"count": queued, "candidates": len(events)})
	}
	return queued, nil
}

func (s *Scheduler) staffName(ctx context.Context, cache map[string]string, code string) string {
	if name, ok := cache[code]; ok {
		return name
	}
	name := code
	if s.directory != nil {
		if c, err := s.directory.Lookup(ctx, models.RecipientStaff, code); err == nil && c.DisplayName != "" {
			name = c.DisplayName
		}
	}
	cache[code] = name
	return name
}

// Sweep delivers queued records that are due. Each record is handled on its
// own; a failure is recorded and the batch continues. Nothing is retried.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	due, err := s.records.FindDue(ctx, s.now(), s.cfg.BatchSize)
	if err != nil {
		return res, err
	}

	for _, rec := range due {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		outcome, err := s.notifier.Deliver(ctx, rec)
		switch {
		case err != nil:
			res.Errors++
			metrics.SchedulerItems.WithLabelValues("sweep", "error").Inc()
			s.logger.Error("delivery of queued record failed", map[string]interface{}{"id": rec.ID, "error": err})
		case outcome.Success:
			res.Delivered++
			metrics.SchedulerItems.WithLabelValues("sweep", "sent").Inc()
		default:
			res.Failed++
			metrics.SchedulerItems.WithLabelValues("sweep", "failed").Inc()
		}
	}

	if len(due) > 0 {
		s.logger.Info("due-queue sweep finished", map[string]interface{}{
			"due":       len(due),
			"delivered": res.Delivered,
			"failed":    res.Failed,
			"errors":    res.Errors,
		})
	}
	return res, nil
}

// Rundown sends each staff member the confirmed events of day, in start order.
func (s *Scheduler) Rundown(ctx context.Context, day time.Time) (int, error) {
	local := day.In(s.cfg.Location)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, s.cfg.Location)
	end := start.AddDate(0, 0, 1).Add(-time.Nanosecond)

	events, err := s.events.ConfirmedBetween(ctx, start, end)
	if err != nil {
		metrics.SchedulerRuns.WithLabelValues("rundown", "error").Inc()
		return 0, err
	}

	var (
		order  []string
		groups = make(map[string][]map[string]interface{})
	)
	for _, ev := range events {
		if _, ok := groups[ev.StaffCode]; !ok {
			order = append(order, ev.StaffCode)
		}
		groups[ev.StaffCode] = append(groups[ev.StaffCode], map[string]interface{}{
			"time":          ev.StartsAt.In(s.cfg.Location).Format("15:04"),
			"recipientCode": ev.PatientCode,
			"eventCode":     ev.Code,
		})
	}

	sent := 0
	date := start.Format("2006-01-02")
	for _, staff := range order {
		_, err := s.notifier.SendNow(ctx, notification.Request{
			RecipientKind: models.RecipientStaff,
			RecipientID:   staff,
			TemplateKey:   models.TemplateDailyRundown,
			Channel:       models.ChannelAuto,
			Meta:          map[string]interface{}{"date": date, "items": groups[staff]},
		})
		if err != nil {
			metrics.SchedulerItems.WithLabelValues("rundown", "error").Inc()
			s.logger.Error("failed to send rundown", map[string]interface{}{"staffCode": staff, "error": err})
			continue
		}
		metrics.SchedulerItems.WithLabelValues("rundown", "sent").Inc()
		sent++
	}

	metrics.SchedulerRuns.WithLabelValues("rundown", "ok").Inc()
	s.logger.Info("daily rundown sent", map[string]interface{}{"date": date, "staff": sent, "events": len(events)})
	return sent, nil
}
