package dispatch

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	awsclient "clinic-workers/internal/common/aws"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/composer"
)

// SMSChannel publishes the message body to the contact's phone through SNS.
// A nil client means no messaging provider is configured.
type SMSChannel struct {
	client   awsclient.SNSAPI
	senderID string
}

func NewSMSChannel(client awsclient.SNSAPI, senderID string) *SMSChannel {
	return &SMSChannel{client: client, senderID: senderID}
}

func (c *SMSChannel) Name() models.Channel { return models.ChannelSMS }

func (c *SMSChannel) Available(contact *models.Contact) bool {
	return c.client != nil && contact != nil && contact.Phone != ""
}

func (c *SMSChannel) Send(ctx context.Context, contact *models.Contact, msg composer.Message) error {
	input := &sns.PublishInput{
		PhoneNumber: aws.String(contact.Phone),
		Message:     aws.String(msg.Body),
	}
	if c.senderID != "" {
		input.MessageAttributes = map[string]types.MessageAttributeValue{
			"AWS.SNS.SMS.SenderID": {DataType: aws.String("String"), StringValue: aws.String(c.senderID)},
		}
	}
	_, err := c.client.Publish(ctx, input)
	return err
}
