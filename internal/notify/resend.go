package notify

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// ResendProvider sends email through the Resend API.
type ResendProvider struct {
	client *resend.Client
	log    zerolog.Logger
}

// NewResendProvider builds the Resend provider. With an empty API key
// the provider registers as unconfigured and the registry routes
// around it.
func NewResendProvider(apiKey string, log zerolog.Logger) *ResendProvider {
	p := &ResendProvider{log: log.With().Str("provider", "resend").Logger()}
	if apiKey == "" {
		p.log.Warn().Msg("resend api key not set, provider unavailable")
		return p
	}
	p.client = resend.NewClient(apiKey)
	return p
}

func (p *ResendProvider) Name() string { return "resend" }

func (p *ResendProvider) Configured() bool { return p.client != nil }

func (p *ResendProvider) Send(ctx context.Context, msg *EmailMessage) error {
	if p.client == nil {
		return fmt.Errorf("resend client not initialized")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	params := &resend.SendEmailRequest{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		Text:    msg.Body,
	}
	sent, err := p.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		return fmt.Errorf("resend send failed: %w", err)
	}

	p.log.Debug().Str("email_id", sent.Id).Strs("to", msg.To).Msg("email sent")
	return nil
}
