// Package record persists notification records and their delivery state.
package record

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clinic-workers/internal/models"
)

// Filter selects records for the reminder dedup check. Every field must match.
type Filter struct {
	TemplateKey    string
	RecipientKind  models.RecipientKind
	RecipientID    string
	CorrelationKey string
}

// DefaultDueLimit caps FindDue when the caller passes a non-positive limit.
const DefaultDueLimit = 200

// Store is the durable notification record store.
//
// MarkSent and MarkFailed only transition non-terminal records. They report
// false with a nil error when the record was already terminal.
type Store interface {
	Create(ctx context.Context, rec *models.NotificationRecord) (string, error)
	Exists(ctx context.Context, f Filter) (bool, error)
	FindDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error)
	MarkSent(ctx context.Context, id string, channel models.Channel, sentAt time.Time) (bool, error)
	MarkFailed(ctx context.Context, id string, errText string) (bool, error)
	Get(ctx context.Context, id string) (*models.NotificationRecord, error)
}

// prepare fills the id and timestamps of a record about to be created.
func prepare(rec *models.NotificationRecord, now time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = models.StatusQueued
	}
	if rec.Channel == "" {
		rec.Channel = models.ChannelAuto
	}
	if rec.Meta == nil {
		rec.Meta = map[string]interface{}{}
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
}

func dueLimit(limit int) int {
	if limit <= 0 {
		return DefaultDueLimit
	}
	return limit
}
