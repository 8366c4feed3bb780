package dispatch

import (
	"context"

	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/composer"
)

// LogChannel writes the message to the process log. It is always available
// and is the last link of the auto chain.
type LogChannel struct {
	logger logger.Logger
}

func NewLogChannel(log logger.Logger) *LogChannel {
	return &LogChannel{logger: log.WithFields(map[string]interface{}{"channel": "log"})}
}

func (c *LogChannel) Name() models.Channel { return models.ChannelLog }

func (c *LogChannel) Available(*models.Contact) bool { return true }

func (c *LogChannel) Send(_ context.Context, contact *models.Contact, msg composer.Message) error {
	recipient := ""
	if contact != nil {
		recipient = contact.DisplayName
	}
	c.logger.Info("notification", map[string]interface{}{
		"recipient": recipient,
		"subject":   msg.Subject,
		"body":      msg.Body,
	})
	return nil
}
