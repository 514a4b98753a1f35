package notification

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// ---------------------------------------------------------------------------
// SendGrid
// ---------------------------------------------------------------------------

// SendGridSender delivers email through the SendGrid v3 API.
type SendGridSender struct {
	client *sendgrid.Client
	from   *mail.Email
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client: sendgrid.NewSendClient(apiKey),
		from:   mail.NewEmail(fromName, fromEmail),
	}
}

func (s *SendGridSender) SendEmail(ctx context.Context, to, subject, body string) error {
	msg := mail.NewSingleEmail(s.from, subject, mail.NewEmail("", to), body, "")

	resp, err := s.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid returned status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Twilio
// ---------------------------------------------------------------------------

// messageCreator is the part of the Twilio REST API used to send SMS.
type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// TwilioSender delivers SMS through Twilio. Numbers without a leading "+" get
// CountryCode prepended.
type TwilioSender struct {
	api         messageCreator
	from        string
	countryCode string
}

func NewTwilioSender(accountSID, authToken, from, countryCode string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username:   accountSID,
		Password:   authToken,
		AccountSid: accountSID,
	})
	return &TwilioSender{api: client.Api, from: from, countryCode: countryCode}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(E164(to, s.countryCode))
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio send: %w", err)
	}
	if resp == nil || resp.Sid == nil {
		return fmt.Errorf("twilio returned no message sid")
	}
	return nil
}

// E164 prefixes a national number with countryCode unless it already starts
// with "+".
func E164(number, countryCode string) string {
	number = strings.TrimSpace(number)
	if strings.HasPrefix(number, "+") || countryCode == "" {
		return number
	}
	return countryCode + number
}

// ---------------------------------------------------------------------------
// Log sender
// ---------------------------------------------------------------------------

// LogSender writes messages to the log instead of delivering them. It stands
// in for a provider whose credentials are not configured.
type LogSender struct {
	logger zerolog.Logger
}

func NewLogSender(logger zerolog.Logger) *LogSender {
	return &LogSender{logger: logger.With().Str("component", "notification.log").Logger()}
}

func (s *LogSender) SendEmail(_ context.Context, to, subject, body string) error {
	s.logger.Info().Str("to", to).Str("subject", subject).Str("body", body).Msg("email (not delivered)")
	return nil
}

func (s *LogSender) SendSMS(_ context.Context, to, body string) error {
	s.logger.Info().Str("to", to).Str("body", body).Msg("sms (not delivered)")
	return nil
}
