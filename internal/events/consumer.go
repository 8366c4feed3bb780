// Package events turns clinic domain events from Kafka into immediate notifications.
package events

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification"
)

const (
	TypeEventConfirmed = "event.confirmed"
	TypeEventCanceled  = "event.canceled"
)

// DomainEvent is the JSON payload published on the clinic events topic.
type DomainEvent struct {
	Type             string    `json:"type"`
	EventCode        string    `json:"eventCode"`
	PatientCode      string    `json:"patientCode"`
	StaffCode        string    `json:"staffCode"`
	CounterpartyName string    `json:"counterpartyName,omitempty"`
	StartsAt         time.Time `json:"startsAt"`
}

// ToRequest maps an event to the patient notification it triggers. ok is
// false for event types that notify nobody.
func ToRequest(ev DomainEvent, loc *time.Location) (req notification.Request, ok bool) {
	var template string
	switch ev.Type {
	case TypeEventConfirmed:
		template = models.TemplateEventConfirmed
	case TypeEventCanceled:
		template = models.TemplateEventCanceled
	default:
		return notification.Request{}, false
	}

	name := ev.CounterpartyName
	if name == "" {
		name = ev.StaffCode
	}
	local := ev.StartsAt.In(loc)

	return notification.Request{
		RecipientKind: models.RecipientPatient,
		RecipientID:   ev.PatientCode,
		TemplateKey:   template,
		Channel:       models.ChannelAuto,
		Meta: map[string]interface{}{
			"eventCode":        ev.EventCode,
			"counterpartyCode": ev.StaffCode,
			"counterpartyName": name,
			"date":             local.Format("2006-01-02"),
			"time":             local.Format("15:04"),
		},
	}, true
}

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Sender delivers an immediate notification.
type Sender interface {
	SendNow(ctx context.Context, req notification.Request) (*models.NotificationRecord, error)
}

const (
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

type Consumer struct {
	reader     MessageReader
	sender     Sender
	location   *time.Location
	retryDelay time.Duration
	logger     logger.Logger
}

// NewReader builds a consumer-group reader for cfg.
func NewReader(cfg config.KafkaConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1 << 20,
	})
}

func NewConsumer(reader MessageReader, sender Sender, loc *time.Location, log logger.Logger) *Consumer {
	if loc == nil {
		loc = time.UTC
	}
	return &Consumer{
		reader:     reader,
		sender:     sender,
		location:   loc,
		retryDelay: defaultRetryDelay,
		logger:     log.WithFields(map[string]interface{}{"component": "events"}),
	}
}

// Run consumes until ctx is cancelled. A message is committed once handled,
// including when it is malformed or its delivery failed. A store error holds
// the partition on that message and retries it with backoff, since committing
// any later offset would skip it.
func (c *Consumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if stderrors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			c.logger.Error("kafka fetch failed", map[string]interface{}{"error": err})
			continue
		}

		if !c.handleWithRetry(ctx, m) {
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			c.logger.Warn("kafka commit failed", map[string]interface{}{"offset": m.Offset, "error": err})
		}
	}
}

// handleWithRetry reports false when ctx ended before m was handled.
func (c *Consumer) handleWithRetry(ctx context.Context, m kafka.Message) bool {
	delay := c.retryDelay
	for attempt := 1; ; attempt++ {
		err := c.Handle(ctx, m.Value)
		if err == nil {
			return true
		}
		c.logger.Error("domain event not handled, retrying", map[string]interface{}{
			"partition": m.Partition,
			"offset":    m.Offset,
			"attempt":   attempt,
			"retryIn":   delay.String(),
			"error":     err,
		})

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxRetryDelay {
			delay = maxRetryDelay
		}
	}
}

// Handle processes one raw message.
func (c *Consumer) Handle(ctx context.Context, value []byte) error {
	var ev DomainEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		c.logger.Warn("dropping malformed domain event", map[string]interface{}{"error": err})
		return nil
	}

	req, ok := ToRequest(ev, c.location)
	if !ok {
		c.logger.Debug("ignoring domain event", map[string]interface{}{"type": ev.Type})
		return nil
	}

	rec, err := c.sender.SendNow(ctx, req)
	if err != nil {
		return fmt.Errorf("send %s for %s: %w", req.TemplateKey, ev.EventCode, err)
	}

	c.logger.Info("domain event notified", map[string]interface{}{
		"type":      ev.Type,
		"eventCode": ev.EventCode,
		"id":        rec.ID,
		"status":    rec.Status,
	})
	return nil
}
