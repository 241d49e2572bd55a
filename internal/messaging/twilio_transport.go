package messaging

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/twiliowhatsapp"
)

// TwilioTransport implements Transport using the Twilio API. Inbound events
// arrive through the HTTP webhook rather than a live connection.
type TwilioTransport struct {
	client  twiliowhatsapp.Sender
	events  chan models.InboundEvent
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
}

// NewTwilioTransport creates a TwilioTransport wrapping the given client.
func NewTwilioTransport(client twiliowhatsapp.Sender) *TwilioTransport {
	return &TwilioTransport{
		client: client,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}
}

// ValidateAndCanonicalizeRecipient canonicalizes the recipient phone number.
func (t *TwilioTransport) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendText sends a plain text message via Twilio.
func (t *TwilioTransport) SendText(ctx context.Context, to string, body string) error {
	if t.isStopped() {
		return ErrTransportStopped
	}
	canonical, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return t.client.SendMessage(ctx, canonical, body)
}

// SendInteractive sends a button menu via Twilio's numbered-list emulation.
func (t *TwilioTransport) SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	if t.isStopped() {
		return ErrTransportStopped
	}
	canonical, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return t.client.SendInteractive(ctx, canonical, body, buttons)
}

// DownloadMedia fetches inbound media; the ref is the Twilio media URL.
func (t *TwilioTransport) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	return t.client.DownloadMedia(ctx, ref)
}

// Start is a no-op: Twilio events arrive through the webhook.
func (t *TwilioTransport) Start(ctx context.Context) error {
	return nil
}

// Stop closes channels and stops the transport.
func (t *TwilioTransport) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return nil
	}
	t.stopped = true
	close(t.done)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(t.events)
	}()
	return nil
}

// Events returns the inbound event channel.
func (t *TwilioTransport) Events() <-chan models.InboundEvent {
	return t.events
}

// WebhookHandler handles inbound Twilio webhook requests. It extracts the
// provider envelope (From, Body, ButtonPayload, MediaUrl0) and emits a
// normalized event. The response is 200 unconditionally, including on parse
// failures (which are logged), so the provider never enters a retry storm.
func (t *TwilioTransport) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	slog.Info("Twilio webhook received")

	ack := func() {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Twilio webhook failed to write acknowledgment", "error", err)
		}
	}

	if err := r.ParseForm(); err != nil {
		slog.Error("Failed to parse Twilio webhook form", "error", err)
		ack()
		return
	}

	rawFrom := strings.TrimPrefix(r.FormValue("From"), "whatsapp:")
	from, err := CanonicalizePhone(rawFrom)
	if err != nil {
		slog.Warn("Twilio webhook invalid sender", "error", err, "from", rawFrom)
		ack()
		return
	}

	event := models.InboundEvent{
		From:     from,
		Body:     r.FormValue("Body"),
		ButtonID: r.FormValue("ButtonPayload"),
		MediaRef: r.FormValue("MediaUrl0"),
		Time:     time.Now().Unix(),
	}

	slog.Info("Inbound WhatsApp message from Twilio", "from", from, "button_id", event.ButtonID, "has_media", event.MediaRef != "")
	t.safeEmit(event)
	ack()
}

func (t *TwilioTransport) isStopped() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopped
}

// safeEmit pushes an event into the channel without blocking the webhook.
func (t *TwilioTransport) safeEmit(event models.InboundEvent) {
	if t.isStopped() {
		slog.Warn("TwilioTransport dropping inbound event (transport stopped)", "from", event.From)
		return
	}

	select {
	case t.events <- event:
		slog.Debug("TwilioTransport emitted inbound event", "from", event.From)
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("TwilioTransport events channel blocked, dropping message", "from", event.From)
	}
}
