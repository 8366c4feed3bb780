// Package dispatch delivers composed notifications over the first capable channel.
package dispatch

import (
	"context"
	stderrors "errors"
	"time"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/common/metrics"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/composer"
	"clinic-workers/internal/notification/directory"
)

// Channel is one delivery mechanism.
type Channel interface {
	Name() models.Channel
	// Available reports whether the channel can reach contact with the current configuration.
	Available(contact *models.Contact) bool
	Send(ctx context.Context, contact *models.Contact, msg composer.Message) error
}

// Outcome is the result of one dispatch.
type Outcome struct {
	Channel models.Channel
	Success bool
	Err     error
}

// ErrorText is the text persisted on a failed record.
func (o Outcome) ErrorText() string {
	if o.Err == nil {
		return ""
	}
	if errors.HasCode(o.Err, errors.ErrCodeDispatchTimeout) {
		return "timeout"
	}
	return o.Err.Error()
}

type Dispatcher struct {
	directory directory.Directory
	chain     []Channel
	timeout   time.Duration
	logger    logger.Logger
}

// NewDispatcher builds a dispatcher. chain is the auto fallback order, e.g. sms, email, log.
func NewDispatcher(dir directory.Directory, timeout time.Duration, log logger.Logger, chain ...Channel) *Dispatcher {
	return &Dispatcher{
		directory: dir,
		chain:     chain,
		timeout:   timeout,
		logger:    log.WithFields(map[string]interface{}{"component": "dispatcher"}),
	}
}

// Dispatch delivers msg to the record's recipient. It never returns a Go error;
// failures are reported in the Outcome.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *models.NotificationRecord, msg composer.Message) Outcome {
	requested := rec.Channel
	if requested == "" {
		requested = models.ChannelAuto
	}

	contact, err := d.resolve(ctx, rec)
	if err != nil {
		return Outcome{Channel: requested, Err: err}
	}

	ch, err := d.choose(requested, contact)
	if err != nil {
		return Outcome{Channel: requested, Err: err}
	}

	return d.attempt(ctx, ch, contact, msg)
}

func (d *Dispatcher) resolve(ctx context.Context, rec *models.NotificationRecord) (*models.Contact, error) {
	contact, err := d.directory.Lookup(ctx, rec.RecipientKind, rec.RecipientID)
	if err == nil {
		return contact, nil
	}

	if !errors.HasCode(err, errors.ErrCodeRecipientNotFound) {
		return nil, err
	}
	if rec.RecipientKind == models.RecipientStaff {
		// staff without directory entries still get their messages in the local log
		d.logger.Warn("staff contact not found, continuing without address", map[string]interface{}{
			"recipientId": rec.RecipientID,
		})
		return &models.Contact{DisplayName: rec.RecipientID}, nil
	}
	return nil, err
}

func (d *Dispatcher) choose(requested models.Channel, contact *models.Contact) (Channel, error) {
	if requested == models.ChannelAuto {
		for _, ch := range d.chain {
			if ch.Available(contact) {
				return ch, nil
			}
		}
		return nil, errors.NewChannelUnavailableError(string(models.ChannelAuto))
	}

	for _, ch := range d.chain {
		if ch.Name() == requested {
			if ch.Available(contact) {
				return ch, nil
			}
			break
		}
	}
	return nil, errors.NewChannelUnavailableError(string(requested))
}

func (d *Dispatcher) attempt(ctx context.Context, ch Channel, contact *models.Contact, msg composer.Message) Outcome {
	name := ch.Name()
	attemptCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- ch.Send(attemptCtx, contact, msg)
	}()

	var err error
	select {
	case err = <-done:
	case <-attemptCtx.Done():
		err = attemptCtx.Err()
	}
	metrics.DispatchDuration.WithLabelValues(string(name)).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		return Outcome{Channel: name, Success: true}
	case stderrors.Is(err, context.DeadlineExceeded):
		d.logger.Warn("dispatch timed out", map[string]interface{}{"channel": name, "timeout": d.timeout.String()})
		return Outcome{Channel: name, Err: errors.NewDispatchTimeoutError(string(name))}
	default:
		d.logger.Error("dispatch failed", map[string]interface{}{"channel": name, "error": err})
		return Outcome{Channel: name, Err: errors.NewNotificationSendFailedError(string(name), err)}
	}
}
