package sendnotification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification"
)

const (
	TaskType = "send-notification"
)

// Notifier is the slice of the notification service this worker calls.
type Notifier interface {
	SendNow(ctx context.Context, req notification.Request) (*models.NotificationRecord, error)
	ScheduleAt(ctx context.Context, req notification.Request, when time.Time) (*models.NotificationRecord, error)
}

type Handler struct {
	config   *Config
	notifier Notifier
	errors   *errors.JobErrorHandler
	logger   logger.Logger
}

func NewHandler(config *Config, notifier Notifier, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   config,
		notifier: notifier,
		errors:   errors.NewJobErrorHandler(log),
		logger:   log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, errors.NewValidationError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.Execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(ctx, client, job, output)
}

// Execute records the notification and, unless it is scheduled, delivers it.
// A delivery failure is reported in Output, not as an error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	req := notification.Request{
		RecipientKind: models.RecipientKind(input.RecipientKind),
		RecipientID:   input.RecipientID,
		TemplateKey:   input.TemplateKey,
		Channel:       models.Channel(input.Channel),
		Meta:          input.Meta,
	}

	var (
		rec *models.NotificationRecord
		err error
	)
	if input.ScheduledFor != "" {
		when, perr := time.Parse(time.RFC3339, input.ScheduledFor)
		if perr != nil {
			return nil, errors.NewValidationError(fmt.Sprintf("scheduledFor: %v", perr))
		}
		rec, err = h.notifier.ScheduleAt(ctx, req, when)
	} else {
		rec, err = h.notifier.SendNow(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	return toOutput(rec), nil
}

func toOutput(rec *models.NotificationRecord) *Output {
	out := &Output{
		NotificationID: rec.ID,
		Status:         string(rec.Status),
		Channel:        string(rec.Channel),
	}
	if rec.SentAt != nil {
		out.SentAt = rec.SentAt.UTC().Format(time.RFC3339)
	}
	if rec.Error != nil {
		out.Error = *rec.Error
	}
	return out
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
}
