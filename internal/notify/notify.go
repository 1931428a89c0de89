// Package notify delivers alerts to responders over SMS and email.
// Delivery is best-effort with per-recipient-per-channel outcomes; a
// failed SMS to one ranger never blocks the rest of the batch.
package notify

import (
	"context"

	"github.com/forestwatch/forestwatch/internal/alert"
)

// Channel is a delivery transport.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Outcome records what happened to one delivery attempt.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Delivery is one responder-channel attempt.
type Delivery struct {
	ResponderID string
	Responder   string
	Channel     Channel
	Outcome     Outcome
	Error       string
}

// DeliveryReport aggregates every attempt for one alert dispatch.
type DeliveryReport struct {
	AlertID    string
	Deliveries []Delivery
}

func (r *DeliveryReport) add(responder alert.Responder, ch Channel, outcome Outcome, err error) {
	d := Delivery{
		ResponderID: responder.ID,
		Responder:   responder.Name,
		Channel:     ch,
		Outcome:     outcome,
	}
	if err != nil {
		d.Error = err.Error()
	}
	r.Deliveries = append(r.Deliveries, d)
}

// Count returns the number of deliveries with the given outcome.
func (r *DeliveryReport) Count(outcome Outcome) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Outcome == outcome {
			n++
		}
	}
	return n
}

// ResponderReader resolves who gets notified.
type ResponderReader interface {
	ActiveRangers(ctx context.Context) ([]alert.Responder, error)
	SubscribersFor(ctx context.Context, treeID string) ([]alert.Responder, error)
}

// SMSSender sends one SMS. Implemented by the Africa's Talking client.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// EmailSender sends one email. Implemented by the provider registry.
type EmailSender interface {
	SendEmail(ctx context.Context, msg *EmailMessage) error
}
