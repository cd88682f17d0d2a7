package notify

import (
	"context"
	"fmt"
	"strings"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSMS sends text messages through Twilio's REST API.
type TwilioSMS struct {
	client     *twilio.RestClient
	fromNumber string
}

// NewTwilioSMS creates a Twilio client bound to the configured sender number.
func NewTwilioSMS(accountSID, authToken, fromNumber string) *TwilioSMS {
	return &TwilioSMS{
		client:     twilio.NewRestClientWithParams(twilio.ClientParams{Username: accountSID, Password: authToken}),
		fromNumber: strings.TrimSpace(fromNumber),
	}
}

// SendSMS sends body to the E.164 number to. The Twilio SDK has no context
// support, so ctx is only checked before the call.
func (c *TwilioSMS) SendSMS(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.fromNumber == "" {
		return fmt.Errorf("twilio sender number is not configured")
	}
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("recipient number missing")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(c.fromNumber)
	params.SetBody(body)

	if _, err := c.client.Api.CreateMessage(params); err != nil {
		return fmt.Errorf("twilio send message error: %w", err)
	}
	return nil
}
