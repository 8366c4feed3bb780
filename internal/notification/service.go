// Package notification records, schedules and delivers outbound notifications.
package notification

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/common/observability"
	"clinic-workers/internal/common/validation"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/composer"
	"clinic-workers/internal/notification/dispatch"
	"clinic-workers/internal/notification/record"
	"clinic-workers/pkg/registry"
)

// Dispatcher delivers a composed message for a record.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec *models.NotificationRecord, msg composer.Message) dispatch.Outcome
}

// AuditSink receives every record that reached a terminal status.
type AuditSink interface {
	Record(ctx context.Context, rec *models.NotificationRecord) error
}

// Request describes one notification to send or schedule.
type Request struct {
	RecipientKind models.RecipientKind
	RecipientID   string
	TemplateKey   string
	Channel       models.Channel
	Meta          map[string]interface{}
}

type Service struct {
	store      record.Store
	dispatcher Dispatcher
	templates  *registry.TemplateRegistry
	audit      AuditSink
	obs        *observability.Observability
	logger     logger.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithAudit(sink AuditSink) Option {
	return func(s *Service) { s.audit = sink }
}

func WithObservability(o *observability.Observability) Option {
	return func(s *Service) { s.obs = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store record.Store, dispatcher Dispatcher, templates *registry.TemplateRegistry, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		store:      store,
		dispatcher: dispatcher,
		templates:  templates,
		logger:     log.WithFields(map[string]interface{}{"component": "notification"}),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.templates == nil {
		s.templates = registry.Default()
	}
	return s
}

// Now exposes the service clock to collaborators that must agree with it.
func (s *Service) Now() time.Time {
	return s.now()
}

// SendNow records the notification and delivers it immediately. Delivery
// failures are persisted on the returned record; only store errors are returned.
func (s *Service) SendNow(ctx context.Context, req Request) (*models.NotificationRecord, error) {
	rec, err := s.create(ctx, req, nil)
	if err != nil {
		return nil, err
	}
	final, _, err := s.deliver(ctx, rec)
	return final, err
}

// ScheduleAt queues the notification for when, or sends it now if when is not in the future.
func (s *Service) ScheduleAt(ctx context.Context, req Request, when time.Time) (*models.NotificationRecord, error) {
	if !when.After(s.now()) {
		return s.SendNow(ctx, req)
	}

	when = when.UTC()
	rec, err := s.create(ctx, req, &when)
	if err != nil {
		return nil, err
	}
	metrics.NotificationsQueued.WithLabelValues(rec.TemplateKey).Inc()
	s.logger.Info("notification queued", map[string]interface{}{
		"id":           rec.ID,
		"templateKey":  rec.TemplateKey,
		"recipientId":  rec.RecipientID,
		"scheduledFor": when.Format(time.RFC3339),
	})
	return rec, nil
}

// Deliver composes, dispatches and marks an already persisted record.
func (s *Service) Deliver(ctx context.Context, rec *models.NotificationRecord) (dispatch.Outcome, error) {
	_, outcome, err := s.deliver(ctx, rec)
	return outcome, err
}

func (s *Service) create(ctx context.Context, req Request, scheduledFor *time.Time) (*models.NotificationRecord, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	s.checkMeta(req.TemplateKey, req.Meta)

	channel := req.Channel
	if channel == "" {
		channel = models.ChannelAuto
	}
	rec := &models.NotificationRecord{
		RecipientKind: req.RecipientKind,
		RecipientID:   req.RecipientID,
		TemplateKey:   req.TemplateKey,
		Channel:       channel,
		ScheduledFor:  scheduledFor,
		Status:        models.StatusQueued,
		Meta:          req.Meta,
	}
	if _, err := s.store.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) deliver(ctx context.Context, rec *models.NotificationRecord) (*models.NotificationRecord, dispatch.Outcome, error) {
	ctx, span := s.obs.StartSpan(ctx, "notification.deliver",
		attribute.String("notification.id", rec.ID),
		attribute.String("notification.template", rec.TemplateKey),
	)
	defer span.End()

	msg := composer.Compose(rec.TemplateKey, rec.Meta)

	start := time.Now()
	outcome := s.dispatcher.Dispatch(ctx, rec, msg)
	s.obs.RecordDispatchDuration(ctx, string(outcome.Channel), time.Since(start))

	var (
		transitioned bool
		err          error
	)
	if outcome.Success {
		sentAt := s.now()
		transitioned, err = s.store.MarkSent(ctx, rec.ID, outcome.Channel, sentAt)
		if err == nil && transitioned {
			rec.Status = models.StatusSent
			rec.Channel = outcome.Channel
			rec.SentAt = &sentAt
			rec.Error = nil
		}
	} else {
		errText := outcome.ErrorText()
		transitioned, err = s.store.MarkFailed(ctx, rec.ID, errText)
		if err == nil && transitioned {
			rec.Status = models.StatusFailed
			rec.Error = &errText
		}
	}
	if err != nil {
		span.RecordError(err)
		return rec, outcome, err
	}

	if !transitioned {
		// another sweep finished this record first; report what the store holds
		s.logger.Warn("record already terminal, mark skipped", map[string]interface{}{"id": rec.ID})
		current, getErr := s.store.Get(ctx, rec.ID)
		if getErr != nil {
			return rec, outcome, getErr
		}
		return current, outcome, nil
	}

	s.finished(ctx, rec)
	return rec, outcome, nil
}

func (s *Service) finished(ctx context.Context, rec *models.NotificationRecord) {
	metrics.NotificationsFinished.WithLabelValues(rec.TemplateKey, string(rec.Channel), string(rec.Status)).Inc()
	s.obs.RecordNotification(ctx, rec.TemplateKey, string(rec.Channel), string(rec.Status))

	fields := map[string]interface{}{
		"id":            rec.ID,
		"templateKey":   rec.TemplateKey,
		"recipientKind": rec.RecipientKind,
		"recipientId":   rec.RecipientID,
		"channel":       rec.Channel,
		"status":        rec.Status,
	}
	if rec.Status == models.StatusFailed {
		fields["error"] = *rec.Error
		s.logger.Warn("notification failed", fields)
	} else {
		s.logger.Info("notification sent", fields)
	}

	if s.audit != nil {
		if err := s.audit.Record(ctx, rec); err != nil {
			s.logger.Warn("audit indexing failed", map[string]interface{}{"id": rec.ID, "error": err})
		}
	}
}

// checkMeta logs schema violations. It never blocks a notification.
func (s *Service) checkMeta(templateKey string, meta map[string]interface{}) {
	tpl, ok := s.templates.Lookup(templateKey)
	if !ok {
		s.logger.Debug("no schema registered for template", map[string]interface{}{"templateKey": templateKey})
		return
	}
	res, err := validation.ValidateAgainstSchema(meta, tpl.MetaSchema)
	if err != nil {
		s.logger.Warn("meta schema check errored", map[string]interface{}{"templateKey": templateKey, "error": err})
		return
	}
	if !res.Valid {
		s.logger.Warn("meta does not match template schema", map[string]interface{}{
			"templateKey": templateKey,
			"violations":  strings.Join(res.Messages(), "; "),
		})
	}
}

func validateRequest(req Request) error {
	if !req.RecipientKind.Valid() {
		return errors.NewValidationError("recipientKind must be Patient or Staff")
	}
	if strings.TrimSpace(req.RecipientID) == "" {
		return errors.NewValidationError("recipientId is required")
	}
	if strings.TrimSpace(req.TemplateKey) == "" {
		return errors.NewValidationError("templateKey is required")
	}
	if req.Channel != "" && !req.Channel.Valid() {
		return errors.NewValidationError("unsupported channel: " + string(req.Channel))
	}
	return nil
}
