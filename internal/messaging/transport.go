// Package messaging provides the pluggable channel transport abstraction and
// the inbound event routing loop.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// Constants for transport configuration
const (
	// DefaultChannelBufferSize defines the default buffer size for inbound event channels
	DefaultChannelBufferSize = 100
	// DefaultChannelTimeout defines the default timeout for non-blocking channel operations
	DefaultChannelTimeout = 1 * time.Second
)

// ErrTransportStopped is returned when a send is attempted on a stopped transport.
var ErrTransportStopped = errors.New("transport stopped")

// Transport defines a pluggable channel transport. It covers the outbound
// surface consumed by the delivery tiers plus inbound event production.
type Transport interface {
	// ValidateAndCanonicalizeRecipient validates and canonicalizes a recipient identifier.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)

	// SendText sends a plain text message.
	SendText(ctx context.Context, to string, body string) error

	// SendInteractive sends a message with interactive buttons.
	SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error

	// DownloadMedia fetches the bytes behind a media reference from an inbound event.
	DownloadMedia(ctx context.Context, ref string) ([]byte, error)

	// Start begins any background processing (e.g., event polling).
	Start(ctx context.Context) error

	// Stop stops background processing and cleans up resources.
	Stop() error

	// Events returns a channel of normalized inbound events.
	Events() <-chan models.InboundEvent
}

var phoneNumberRegex = regexp.MustCompile(`[^0-9]`)

// CanonicalizePhone validates and canonicalizes a WhatsApp phone number by
// removing all non-numeric characters. The result must have at least 6 digits.
func CanonicalizePhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}

	canonical := phoneNumberRegex.ReplaceAllString(recipient, "")
	if canonical == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(canonical) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", canonical)
	}

	if canonical != recipient {
		slog.Debug("CanonicalizePhone modified recipient", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}
