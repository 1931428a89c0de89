package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// EmailMessage is an email to be sent through a provider.
type EmailMessage struct {
	From    string
	To      []string
	Subject string
	Body    string
}

// Provider is one email backend.
type Provider interface {
	// Name identifies the provider ("resend", "ses").
	Name() string

	// Send delivers the message or returns an error.
	Send(ctx context.Context, msg *EmailMessage) error

	// Configured reports whether the provider has usable credentials.
	Configured() bool
}

// Registry holds the email providers and routes sends through the
// primary, falling back in order when it fails. The registry is built
// once at startup and read-only afterwards.
type Registry struct {
	providers map[string]Provider
	primary   string
	fallback  []string
	log       zerolog.Logger
}

// NewRegistry builds a registry over the given providers. Primary and
// fallback names must all be registered.
func NewRegistry(primary string, fallback []string, log zerolog.Logger, providers ...Provider) (*Registry, error) {
	r := &Registry{
		providers: make(map[string]Provider, len(providers)),
		primary:   primary,
		fallback:  fallback,
		log:       log.With().Str("component", "email").Logger(),
	}
	for _, p := range providers {
		r.providers[p.Name()] = p
		r.log.Info().Str("provider", p.Name()).Bool("configured", p.Configured()).
			Msg("registered email provider")
	}
	if _, ok := r.providers[primary]; !ok {
		return nil, fmt.Errorf("primary email provider %q not registered", primary)
	}
	for _, name := range fallback {
		if _, ok := r.providers[name]; !ok {
			return nil, fmt.Errorf("fallback email provider %q not registered", name)
		}
	}
	return r, nil
}

// active returns the first configured provider in primary-then-fallback
// order.
func (r *Registry) active() (Provider, error) {
	if p := r.providers[r.primary]; p.Configured() {
		return p, nil
	}
	for _, name := range r.fallback {
		if p := r.providers[name]; p.Configured() {
			r.log.Warn().Str("primary", r.primary).Str("fallback", name).
				Msg("primary email provider not configured, using fallback")
			return p, nil
		}
	}
	return nil, fmt.Errorf("no configured email provider available")
}

// SendEmail sends through the active provider, retrying the fallbacks
// in order when the active one fails. Returns the first error when
// every attempt fails.
func (r *Registry) SendEmail(ctx context.Context, msg *EmailMessage) error {
	p, err := r.active()
	if err != nil {
		return err
	}

	sendErr := p.Send(ctx, msg)
	if sendErr == nil {
		return nil
	}

	for _, name := range r.fallback {
		fb := r.providers[name]
		if fb.Name() == p.Name() || !fb.Configured() {
			continue
		}
		r.log.Warn().Err(sendErr).Str("failed", p.Name()).Str("fallback", name).
			Msg("email provider failed, trying fallback")
		if err := fb.Send(ctx, msg); err == nil {
			return nil
		}
	}
	return sendErr
}
