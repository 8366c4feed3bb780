package sendnotification

type Input struct {
	RecipientKind string                 `json:"recipientKind"`
	RecipientID   string                 `json:"recipientId"`
	TemplateKey   string                 `json:"templateKey"`
	Channel       string                 `json:"channel,omitempty"`
	ScheduledFor  string                 `json:"scheduledFor,omitempty"` // RFC 3339, empty sends now
	Meta          map[string]interface{} `json:"meta,omitempty"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"` // "queued", "sent", "failed"
	Channel        string `json:"channel"`
	SentAt         string `json:"sentAt,omitempty"`
	Error          string `json:"error,omitempty"`
}
