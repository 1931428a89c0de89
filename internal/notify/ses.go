package notify

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/rs/zerolog"
)

// SESProvider sends email through AWS SES.
type SESProvider struct {
	client *sesv2.Client
	log    zerolog.Logger
}

// NewSESProvider builds the SES provider from the ambient AWS config
// (environment credentials or instance role). A failed config load
// leaves the provider unconfigured rather than failing startup.
func NewSESProvider(ctx context.Context, region string, log zerolog.Logger) *SESProvider {
	p := &SESProvider{log: log.With().Str("provider", "ses").Logger()}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		p.log.Warn().Err(err).Msg("loading aws config failed, ses provider unavailable")
		return p
	}
	p.client = sesv2.NewFromConfig(cfg)
	return p
}

func (p *SESProvider) Name() string { return "ses" }

func (p *SESProvider) Configured() bool { return p.client != nil }

func (p *SESProvider) Send(ctx context.Context, msg *EmailMessage) error {
	if p.client == nil {
		return fmt.Errorf("ses client not initialized")
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("no recipients specified")
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: &msg.From,
		Destination:      &types.Destination{ToAddresses: msg.To},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: &msg.Subject},
				Body:    &types.Body{Text: &types.Content{Data: &msg.Body}},
			},
		},
	}
	sent, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("ses send failed: %w", err)
	}

	if sent.MessageId != nil {
		p.log.Debug().Str("message_id", *sent.MessageId).Strs("to", msg.To).Msg("email sent")
	}
	return nil
}
