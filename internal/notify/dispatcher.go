package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/forestwatch/forestwatch/internal/alert"
	"github.com/forestwatch/forestwatch/internal/metrics"
)

// Dispatcher routes one alert to the responder set over the channels
// its severity warrants. Critical and high alerts go out over SMS and
// email; medium and low over email only.
type Dispatcher struct {
	responders ResponderReader
	sms        SMSSender
	email      EmailSender
	from       string
	log        zerolog.Logger
}

// NewDispatcher creates the notification dispatcher. from is the email
// sender address.
func NewDispatcher(responders ResponderReader, sms SMSSender, email EmailSender, from string, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		responders: responders,
		sms:        sms,
		email:      email,
		from:       from,
		log:        log.With().Str("component", "dispatcher").Logger(),
	}
}

// Notify delivers the alert to every active ranger plus, for tree
// alerts, the tree's subscribers. Per-recipient failures are recorded
// in the report and never abort the batch. Calling Notify twice for
// the same alert re-sends; idempotence is the caller's concern via the
// notified flag.
func (d *Dispatcher) Notify(ctx context.Context, a alert.Alert) (DeliveryReport, error) {
	report := DeliveryReport{AlertID: a.ID}

	recipients, err := d.recipients(ctx, a)
	if err != nil {
		return report, err
	}
	if len(recipients) == 0 {
		d.log.Warn().Str("alert", a.ID).Msg("no active responders to notify")
		return report, nil
	}

	useSMS := a.Severity >= alert.SeverityHigh
	body := fmt.Sprintf("[%s] %s\n\n%s", strings.ToUpper(a.Severity.String()), a.Title, a.Message)

	for _, r := range recipients {
		if useSMS {
			d.deliver(ctx, &report, r, ChannelSMS, a.Title, body)
		}
		d.deliver(ctx, &report, r, ChannelEmail, a.Title, body)
	}

	d.log.Info().
		Str("alert", a.ID).
		Str("severity", a.Severity.String()).
		Int("recipients", len(recipients)).
		Int("sent", report.Count(OutcomeSent)).
		Int("failed", report.Count(OutcomeFailed)).
		Int("skipped", report.Count(OutcomeSkipped)).
		Msg("alert dispatched")
	return report, nil
}

// recipients is the union of active rangers and, for per-tree alerts,
// subscribers of the subject tree. Aggregate subjects ("species:...",
// "trend:...") have no subscribers.
func (d *Dispatcher) recipients(ctx context.Context, a alert.Alert) ([]alert.Responder, error) {
	rangers, err := d.responders.ActiveRangers(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active rangers: %w", err)
	}

	seen := make(map[string]bool, len(rangers))
	out := make([]alert.Responder, 0, len(rangers))
	for _, r := range rangers {
		seen[r.ID] = true
		out = append(out, r)
	}

	if !strings.Contains(a.SubjectID, ":") {
		subs, err := d.responders.SubscribersFor(ctx, a.SubjectID)
		if err != nil {
			d.log.Warn().Err(err).Str("tree", a.SubjectID).Msg("loading subscribers failed, notifying rangers only")
		} else {
			for _, s := range subs {
				if !seen[s.ID] {
					seen[s.ID] = true
					out = append(out, s)
				}
			}
		}
	}
	return out, nil
}

func (d *Dispatcher) deliver(ctx context.Context, report *DeliveryReport, r alert.Responder, ch Channel, subject, body string) {
	var contact string
	switch ch {
	case ChannelSMS:
		contact = r.Phone
	case ChannelEmail:
		contact = r.Email
	}
	if contact == "" {
		report.add(r, ch, OutcomeSkipped, nil)
		metrics.Notifications.WithLabelValues(string(ch), string(OutcomeSkipped)).Inc()
		return
	}

	var err error
	switch ch {
	case ChannelSMS:
		err = d.sms.SendSMS(ctx, contact, body)
	case ChannelEmail:
		err = d.email.SendEmail(ctx, &EmailMessage{
			From:    d.from,
			To:      []string{contact},
			Subject: subject,
			Body:    body,
		})
	}
	if err != nil {
		d.log.Error().Err(err).Str("responder", r.Name).Str("channel", string(ch)).
			Msg("delivery failed")
		report.add(r, ch, OutcomeFailed, err)
		metrics.Notifications.WithLabelValues(string(ch), string(OutcomeFailed)).Inc()
		return
	}

	report.add(r, ch, OutcomeSent, nil)
	metrics.Notifications.WithLabelValues(string(ch), string(OutcomeSent)).Inc()
}
