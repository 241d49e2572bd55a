// Package models defines delivery and ingress structures for StudyLine.
package models

// GenericAcknowledgment substitutes for an empty response text so the user
// always receives something actionable.
const GenericAcknowledgment = "Thanks for your message! Choose an option above to continue."

// FallbackAcknowledgment is the minimal tier-3 delivery text. It carries no
// buttons or formatting so it has nothing left to fail on.
const FallbackAcknowledgment = "Got your message, we'll get back to you shortly."

// ButtonSpec describes one interactive button. The ID is a stable string fed
// back verbatim as the button_id of the next inbound event.
type ButtonSpec struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// ResponsePayload is a generated outbound response: text plus an optional
// button menu.
type ResponsePayload struct {
	Text    string       `json:"text"`
	Buttons []ButtonSpec `json:"buttons,omitempty"`
}

// EnsureText guarantees non-empty outbound text. Empty outbound text is a
// defect class, not a valid payload.
func (p *ResponsePayload) EnsureText() {
	if p.Text == "" {
		p.Text = GenericAcknowledgment
	}
}

// DeliveryTierName identifies one rung of the descending delivery strategy.
type DeliveryTierName string

const (
	TierInteractive DeliveryTierName = "interactive"
	TierText        DeliveryTierName = "text"
	TierFallback    DeliveryTierName = "fallback"
)

// DeliveryOutcome is the result of a single delivery attempt.
type DeliveryOutcome string

const (
	DeliverySuccess DeliveryOutcome = "success"
	DeliveryFailure DeliveryOutcome = "failure"
)

// DeliveryAttempt records one attempt of the orchestrator against one tier.
// Attempts are consumed for logging and audit only.
type DeliveryAttempt struct {
	Tier    DeliveryTierName `json:"tier"`
	Outcome DeliveryOutcome  `json:"outcome"`
	Error   string           `json:"error,omitempty"`
}

// Succeeded reports whether any attempt in the trail succeeded.
func Succeeded(attempts []DeliveryAttempt) bool {
	for _, a := range attempts {
		if a.Outcome == DeliverySuccess {
			return true
		}
	}
	return false
}

// InboundEvent is a normalized inbound user event extracted from a provider
// envelope or a live transport connection.
type InboundEvent struct {
	From     string `json:"from"`
	Body     string `json:"body"`
	ButtonID string `json:"button_id,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
	Time     int64  `json:"time"`
}
