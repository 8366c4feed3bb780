package models

import "time"

type RecipientKind string

const (
	RecipientPatient RecipientKind = "Patient"
	RecipientStaff   RecipientKind = "Staff"
)

func (k RecipientKind) Valid() bool {
	return k == RecipientPatient || k == RecipientStaff
}

type Status string

const (
	StatusQueued Status = "queued"
	StatusSent   Status = "sent"
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

type Channel string

const (
	ChannelAuto  Channel = "auto"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
	ChannelLog   Channel = "log"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelAuto, ChannelSMS, ChannelEmail, ChannelLog:
		return true
	}
	return false
}

// Template keys understood by the composer.
const (
	TemplateEventConfirmed   = "EVENT_CONFIRMED"
	TemplateEventCanceled    = "EVENT_CANCELED"
	TemplateEventReminder24h = "EVENT_REMINDER_24H"
	TemplateDailyRundown     = "DAILY_RUNDOWN"
)

// CorrelationMetaKey is the meta field used for dedup lookups.
const CorrelationMetaKey = "eventCode"

// NotificationRecord is one notification attempt and its delivery state.
type NotificationRecord struct {
	ID            string                 `json:"id" bson:"_id"`
	RecipientKind RecipientKind          `json:"recipientKind" bson:"recipientKind"`
	RecipientID   string                 `json:"recipientId" bson:"recipientId"`
	TemplateKey   string                 `json:"templateKey" bson:"templateKey"`
	Channel       Channel                `json:"channel" bson:"channel"`
	ScheduledFor  *time.Time             `json:"scheduledFor,omitempty" bson:"scheduledFor,omitempty"`
	Status        Status                 `json:"status" bson:"status"`
	SentAt        *time.Time             `json:"sentAt,omitempty" bson:"sentAt,omitempty"`
	Meta          map[string]interface{} `json:"meta" bson:"meta"`
	Error         *string                `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt     time.Time              `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time              `json:"updatedAt" bson:"updatedAt"`
}

// CorrelationKey returns meta[eventCode] as a string, or "".
func (r *NotificationRecord) CorrelationKey() string {
	return CorrelationKeyOf(r.Meta)
}

func CorrelationKeyOf(meta map[string]interface{}) string {
	if v, ok := meta[CorrelationMetaKey].(string); ok {
		return v
	}
	return ""
}

// Contact is what the directory knows about a recipient.
type Contact struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}
