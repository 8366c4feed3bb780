package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "clinic-workers/internal/common/errors"
	"clinic-workers/internal/common/logger"
	"clinic-workers/internal/models"
	"clinic-workers/internal/notification/composer"
	"clinic-workers/internal/notification/directory"
)

// ==========================
// Mock Implementations
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	return m.SendEmailFunc(ctx, params, optFns...)
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	return m.PublishFunc(ctx, params, optFns...)
}

type recordingMailer struct {
	sent []string
	err  error
}

func (m *recordingMailer) SendMail(_ context.Context, to, _, _ string) error {
	m.sent = append(m.sent, to)
	return m.err
}

// ==========================
// Test Helper Functions
// ==========================

var testMessage = composer.Message{Subject: "Reminder: Appointment in 24 hours", Body: "See you soon!"}

func testDirectory() directory.StaticDirectory {
	return directory.StaticDirectory{
		models.RecipientPatient: {
			"P-0001": {DisplayName: "Nimal", Email: "nimal@example.com", Phone: "+94770000001"},
			"P-0002": {DisplayName: "Kamala", Email: "kamala@example.com"},
			"P-0003": {DisplayName: "Sunil"},
		},
		models.RecipientStaff: {
			"S-01": {DisplayName: "Dr. Perera", Email: "perera@example.com"},
		},
	}
}

func patientRecord(id string, channel models.Channel) *models.NotificationRecord {
	return &models.NotificationRecord{
		ID:            "rec-1",
		RecipientKind: models.RecipientPatient,
		RecipientID:   id,
		TemplateKey:   models.TemplateEventReminder24h,
		Channel:       channel,
	}
}

func newDispatcher(t *testing.T, sms Channel, mailer Mailer, timeout time.Duration) *Dispatcher {
	log := logger.NewTestLogger(t)
	return NewDispatcher(testDirectory(), timeout, log, sms, NewEmailChannel(mailer), NewLogChannel(log))
}

// ==========================
// Core Functionality Tests
// ==========================

func TestDispatcher_AutoChain(t *testing.T) {
	snsOK := &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		return &sns.PublishOutput{}, nil
	}}

	tests := []struct {
		name        string
		snsClient   *MockSNSService
		mailer      Mailer
		recipientID string
		want        models.Channel
	}{
		{name: "phone and messaging provider", snsClient: snsOK, mailer: &recordingMailer{}, recipientID: "P-0001", want: models.ChannelSMS},
		{name: "phone without messaging provider falls to email", mailer: &recordingMailer{}, recipientID: "P-0001", want: models.ChannelEmail},
		{name: "email only", snsClient: snsOK, mailer: &recordingMailer{}, recipientID: "P-0002", want: models.ChannelEmail},
		{name: "email without mailer falls to log", snsClient: snsOK, recipientID: "P-0002", want: models.ChannelLog},
		{name: "no contact details", snsClient: snsOK, mailer: &recordingMailer{}, recipientID: "P-0003", want: models.ChannelLog},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var smsChannel *SMSChannel
			if tt.snsClient != nil {
				smsChannel = NewSMSChannel(tt.snsClient, "CLINIC")
			} else {
				smsChannel = NewSMSChannel(nil, "")
			}
			d := newDispatcher(t, smsChannel, tt.mailer, time.Second)

			out := d.Dispatch(context.Background(), patientRecord(tt.recipientID, models.ChannelAuto), testMessage)

			require.True(t, out.Success, "unexpected failure: %v", out.Err)
			assert.Equal(t, tt.want, out.Channel)
			assert.Empty(t, out.ErrorText())
		})
	}
}

func TestDispatcher_SMSPayload(t *testing.T) {
	var got *sns.PublishInput
	client := &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		got = params
		return &sns.PublishOutput{}, nil
	}}
	d := newDispatcher(t, NewSMSChannel(client, "CLINIC"), nil, time.Second)

	out := d.Dispatch(context.Background(), patientRecord("P-0001", models.ChannelSMS), testMessage)

	require.True(t, out.Success)
	require.NotNil(t, got)
	assert.Equal(t, "+94770000001", *got.PhoneNumber)
	assert.Equal(t, "See you soon!", *got.Message)
	assert.Equal(t, "CLINIC", *got.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
}

func TestDispatcher_ExplicitChannelUnavailable(t *testing.T) {
	d := newDispatcher(t, NewSMSChannel(nil, ""), &recordingMailer{}, time.Second)

	out := d.Dispatch(context.Background(), patientRecord("P-0002", models.ChannelSMS), testMessage)

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelSMS, out.Channel)
	assert.True(t, apperrors.HasCode(out.Err, apperrors.ErrCodeChannelUnavailable))
}

func TestDispatcher_ExplicitEmailDoesNotFallBack(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("550 mailbox unavailable")}
	d := newDispatcher(t, NewSMSChannel(nil, ""), mailer, time.Second)

	out := d.Dispatch(context.Background(), patientRecord("P-0002", models.ChannelEmail), testMessage)

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelEmail, out.Channel)
	assert.True(t, apperrors.HasCode(out.Err, apperrors.ErrCodeNotificationSendFailed))
	assert.Contains(t, out.ErrorText(), "550 mailbox unavailable")
	assert.Equal(t, []string{"kamala@example.com"}, mailer.sent)
}

func TestDispatcher_Timeout(t *testing.T) {
	slow := &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	d := newDispatcher(t, NewSMSChannel(slow, ""), nil, 20*time.Millisecond)

	out := d.Dispatch(context.Background(), patientRecord("P-0001", models.ChannelAuto), testMessage)

	assert.False(t, out.Success)
	assert.Equal(t, models.ChannelSMS, out.Channel)
	assert.True(t, apperrors.HasCode(out.Err, apperrors.ErrCodeDispatchTimeout))
	assert.Equal(t, "timeout", out.ErrorText())
}

func TestDispatcher_TimeoutWhenProviderIgnoresContext(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	stuck := &MockSNSService{PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
		<-release
		return &sns.PublishOutput{}, nil
	}}
	d := newDispatcher(t, NewSMSChannel(stuck, ""), nil, 20*time.Millisecond)

	out := d.Dispatch(context.Background(), patientRecord("P-0001", models.ChannelAuto), testMessage)

	assert.Equal(t, "timeout", out.ErrorText())
}

func TestDispatcher_PatientNotFound(t *testing.T) {
	d := newDispatcher(t, NewSMSChannel(nil, ""), &recordingMailer{}, time.Second)

	out := d.Dispatch(context.Background(), patientRecord("P-9999", models.ChannelAuto), testMessage)

	assert.False(t, out.Success)
	assert.True(t, apperrors.HasCode(out.Err, apperrors.ErrCodeRecipientNotFound))
}

func TestDispatcher_UnknownStaffGoesToLog(t *testing.T) {
	mailer := &recordingMailer{}
	d := newDispatcher(t, NewSMSChannel(nil, ""), mailer, time.Second)
	rec := &models.NotificationRecord{
		RecipientKind: models.RecipientStaff,
		RecipientID:   "S-99",
		TemplateKey:   models.TemplateDailyRundown,
		Channel:       models.ChannelAuto,
	}

	out := d.Dispatch(context.Background(), rec, testMessage)

	assert.True(t, out.Success)
	assert.Equal(t, models.ChannelLog, out.Channel)
	assert.Empty(t, mailer.sent)
}

type unreachableDirectory struct{}

func (unreachableDirectory) Lookup(context.Context, models.RecipientKind, string) (*models.Contact, error) {
	return nil, apperrors.NewQueryExecutionFailedError("directory.lookup", errors.New("connection refused"))
}

func TestDispatcher_DirectoryOutageKeepsCause(t *testing.T) {
	tests := []struct {
		name string
		kind models.RecipientKind
		id   string
	}{
		{name: "patient", kind: models.RecipientPatient, id: "P-0001"},
		{name: "staff", kind: models.RecipientStaff, id: "S-01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := logger.NewTestLogger(t)
			mailer := &recordingMailer{}
			d := NewDispatcher(unreachableDirectory{}, time.Second, log, NewSMSChannel(nil, ""), NewEmailChannel(mailer), NewLogChannel(log))
			rec := &models.NotificationRecord{
				RecipientKind: tt.kind,
				RecipientID:   tt.id,
				TemplateKey:   models.TemplateDailyRundown,
				Channel:       models.ChannelAuto,
			}

			out := d.Dispatch(context.Background(), rec, testMessage)

			assert.False(t, out.Success)
			assert.True(t, apperrors.HasCode(out.Err, apperrors.ErrCodeQueryExecutionFailed))
			assert.False(t, apperrors.HasCode(out.Err, apperrors.ErrCodeRecipientNotFound))
			assert.Empty(t, mailer.sent)
		})
	}
}

func TestSESMailer(t *testing.T) {
	var got *ses.SendEmailInput
	client := &MockSESService{SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		got = params
		return &ses.SendEmailOutput{}, nil
	}}

	err := NewSESMailer(client, "no-reply@clinic.local").SendMail(context.Background(), "nimal@example.com", "Subject", "Body")

	require.NoError(t, err)
	assert.Equal(t, "no-reply@clinic.local", *got.Source)
	assert.Equal(t, []string{"nimal@example.com"}, got.Destination.ToAddresses)
	assert.Equal(t, "Subject", *got.Message.Subject.Data)
	assert.Equal(t, "Body", *got.Message.Body.Text.Data)
}

func TestSESMailer_Error(t *testing.T) {
	client := &MockSESService{SendEmailFunc: func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
		return nil, errors.New("MessageRejected")
	}}

	err := NewSESMailer(client, "no-reply@clinic.local").SendMail(context.Background(), "x@example.com", "s", "b")
	assert.ErrorContains(t, err, "MessageRejected")
}
