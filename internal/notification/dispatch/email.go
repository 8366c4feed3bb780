package dispatch

import (
	"context"

	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/composer"
)

// Mailer sends one plain-text email.
type Mailer interface {
	SendMail(ctx context.Context, to, subject, body string) error
}

// EmailChannel delivers through whichever Mailer the deployment configured.
// A nil mailer means no email provider is configured.
type EmailChannel struct {
	mailer Mailer
}

func NewEmailChannel(mailer Mailer) *EmailChannel {
	return &EmailChannel{mailer: mailer}
}

func (c *EmailChannel) Name() models.Channel { return models.ChannelEmail }

func (c *EmailChannel) Available(contact *models.Contact) bool {
	return c.mailer != nil && contact != nil && contact.Email != ""
}

func (c *EmailChannel) Send(ctx context.Context, contact *models.Contact, msg composer.Message) error {
	return c.mailer.SendMail(ctx, contact.Email, msg.Subject, msg.Body)
}
