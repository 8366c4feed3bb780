package dispatch

import (
	"context"
	"fmt"
	"net/http"

	"github.com/mrz1836/postmark"
)

type PostmarkMailer struct {
	client *postmark.Client
	from   string
	tag    string
}

// NewPostmarkMailer builds a mailer on the Postmark API. httpClient may be nil.
func NewPostmarkMailer(serverToken, accountToken, from, tag string, httpClient *http.Client) *PostmarkMailer {
	client := postmark.NewClient(serverToken, accountToken)
	if httpClient != nil {
		client.HTTPClient = httpClient
	}
	return &PostmarkMailer{client: client, from: from, tag: tag}
}

func (m *PostmarkMailer) SendMail(ctx context.Context, to, subject, body string) error {
	res, err := m.client.SendEmail(ctx, postmark.Email{
		From:     m.from,
		To:       to,
		Subject:  subject,
		TextBody: body,
		Tag:      m.tag,
	})
	if err != nil {
		return err
	}
	if res.ErrorCode != 0 {
		return fmt.Errorf("postmark error %d: %s", res.ErrorCode, res.Message)
	}
	return nil
}
