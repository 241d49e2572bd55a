// Package delivery implements the multi-tier outbound delivery strategy.
//
// A response is attempted through a descending ladder of richness:
// interactive buttons, then plain text with the button labels inlined as a
// numbered list, then a minimal generic acknowledgment. The orchestrator
// stops at the first success and never surfaces a transport failure to the
// caller; the full attempt trail is returned for logging and audit.
package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// Transport is the outbound half of the channel transport consumed by the
// delivery tiers.
type Transport interface {
	SendText(ctx context.Context, to string, body string) error
	SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error
}

// Tier is one rung of the delivery ladder.
type Tier interface {
	Name() models.DeliveryTierName
	// Attempt tries to deliver the payload. A nil error means the user got
	// the message at this tier's richness.
	Attempt(ctx context.Context, to string, payload models.ResponsePayload) error
}

// InteractiveTier sends the payload as an interactive button message. It is
// skipped when the payload carries no buttons.
type InteractiveTier struct {
	transport Transport
}

func (t *InteractiveTier) Name() models.DeliveryTierName { return models.TierInteractive }

func (t *InteractiveTier) Attempt(ctx context.Context, to string, payload models.ResponsePayload) error {
	if len(payload.Buttons) == 0 {
		return fmt.Errorf("no buttons to send interactively")
	}
	return t.transport.SendInteractive(ctx, to, payload.Text, payload.Buttons)
}

// TextTier sends plain text. Button labels, if any, are appended as a
// numbered list so no information is lost relative to the interactive tier.
type TextTier struct {
	transport Transport
}

func (t *TextTier) Name() models.DeliveryTierName { return models.TierText }

func (t *TextTier) Attempt(ctx context.Context, to string, payload models.ResponsePayload) error {
	return t.transport.SendText(ctx, to, FlattenButtons(payload))
}

// FlattenButtons renders a payload as plain text with its button labels as a
// numbered list.
func FlattenButtons(payload models.ResponsePayload) string {
	if len(payload.Buttons) == 0 {
		return payload.Text
	}
	var b strings.Builder
	b.WriteString(payload.Text)
	b.WriteString("\n")
	for i, btn := range payload.Buttons {
		b.WriteString(fmt.Sprintf("\n%d. %s", i+1, btn.Label))
	}
	return b.String()
}

// FallbackTier sends the minimal generic acknowledgment. With no buttons and
// no formatting it has nothing left to fail on short of a dead transport.
type FallbackTier struct {
	transport Transport
}

func (t *FallbackTier) Name() models.DeliveryTierName { return models.TierFallback }

func (t *FallbackTier) Attempt(ctx context.Context, to string, payload models.ResponsePayload) error {
	return t.transport.SendText(ctx, to, models.FallbackAcknowledgment)
}

// Opts holds configuration options for the orchestrator.
type Opts struct {
	TierTimeout time.Duration // per-tier attempt bound; 0 means unbounded
}

// Option defines a configuration option for the orchestrator.
type Option func(*Opts)

// WithTierTimeout bounds each interactive/text attempt before falling
// through to the next tier.
func WithTierTimeout(d time.Duration) Option {
	return func(o *Opts) { o.TierTimeout = d }
}

// Orchestrator drives the tier ladder for each outbound response.
type Orchestrator struct {
	tiers []Tier
	opts  Opts
}

// NewOrchestrator creates an orchestrator with the standard three-tier
// ladder over the given transport.
func NewOrchestrator(transport Transport, options ...Option) *Orchestrator {
	var opts Opts
	for _, opt := range options {
		opt(&opts)
	}
	return &Orchestrator{
		tiers: []Tier{
			&InteractiveTier{transport: transport},
			&TextTier{transport: transport},
			&FallbackTier{transport: transport},
		},
		opts: opts,
	}
}

// NewOrchestratorWithTiers creates an orchestrator over a custom tier list.
func NewOrchestratorWithTiers(tiers []Tier, options ...Option) *Orchestrator {
	var opts Opts
	for _, opt := range options {
		opt(&opts)
	}
	return &Orchestrator{tiers: tiers, opts: opts}
}

// Deliver attempts the payload through the tier ladder, stopping at the
// first success. Payloads without buttons skip the interactive tier rather
// than burning an attempt on it. The attempt trail is always returned; the
// caller acknowledges the inbound event regardless of outcome.
func (o *Orchestrator) Deliver(ctx context.Context, to string, payload models.ResponsePayload) []models.DeliveryAttempt {
	payload.EnsureText()

	attempts := make([]models.DeliveryAttempt, 0, len(o.tiers))
	for _, tier := range o.tiers {
		if tier.Name() == models.TierInteractive && len(payload.Buttons) == 0 {
			continue
		}

		err := o.attemptWithTimeout(ctx, tier, to, payload)
		if err != nil {
			slog.Warn("Orchestrator tier failed", "to", to, "tier", tier.Name(), "error", err)
			attempts = append(attempts, models.DeliveryAttempt{
				Tier:    tier.Name(),
				Outcome: models.DeliveryFailure,
				Error:   err.Error(),
			})
			continue
		}

		slog.Info("Orchestrator delivered", "to", to, "tier", tier.Name(), "prior_failures", len(attempts))
		attempts = append(attempts, models.DeliveryAttempt{
			Tier:    tier.Name(),
			Outcome: models.DeliverySuccess,
		})
		return attempts
	}

	slog.Error("Orchestrator exhausted all delivery tiers", "to", to, "attempts", len(attempts))
	return attempts
}

// attemptWithTimeout bounds a single tier attempt when a tier timeout is
// configured. The fallback tier is never bounded; it is the last word.
func (o *Orchestrator) attemptWithTimeout(ctx context.Context, tier Tier, to string, payload models.ResponsePayload) error {
	if o.opts.TierTimeout <= 0 || tier.Name() == models.TierFallback {
		return tier.Attempt(ctx, to, payload)
	}
	tctx, cancel := context.WithTimeout(ctx, o.opts.TierTimeout)
	defer cancel()
	return tier.Attempt(tctx, to, payload)
}
