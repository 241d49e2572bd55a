package messaging

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/whatsapp"
	"go.mau.fi/whatsmeow/types/events"
)

// WhatsAppTransport implements Transport using the whatsmeow-based client.
// Inbound WhatsApp events are normalized into models.InboundEvent and fed to
// the Events channel.
type WhatsAppTransport struct {
	sender   whatsapp.Sender
	waClient *whatsapp.Client // access to the underlying client for event handling
	events   chan models.InboundEvent
	done     chan struct{}
}

// NewWhatsAppTransport creates a WhatsAppTransport wrapping the given sender.
func NewWhatsAppTransport(sender whatsapp.Sender) *WhatsAppTransport {
	t := &WhatsAppTransport{
		sender: sender,
		events: make(chan models.InboundEvent, DefaultChannelBufferSize),
		done:   make(chan struct{}),
	}

	// A full client enables live event handling; an interface-only sender
	// (mocks) leaves the transport send-only.
	if waClient, ok := sender.(*whatsapp.Client); ok {
		t.waClient = waClient
		slog.Debug("WhatsAppTransport created with full client for event handling")
	} else {
		slog.Debug("WhatsAppTransport created with interface sender (likely mock)")
	}

	return t
}

// ValidateAndCanonicalizeRecipient canonicalizes the recipient phone number.
func (t *WhatsAppTransport) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return CanonicalizePhone(recipient)
}

// SendText sends a plain text message.
func (t *WhatsAppTransport) SendText(ctx context.Context, to string, body string) error {
	canonical, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return t.sender.SendText(ctx, canonical, body)
}

// SendInteractive sends a button message.
func (t *WhatsAppTransport) SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	canonical, err := CanonicalizePhone(to)
	if err != nil {
		return err
	}
	return t.sender.SendButtons(ctx, canonical, body, buttons)
}

// DownloadMedia resolves a media ref captured from an inbound event.
func (t *WhatsAppTransport) DownloadMedia(ctx context.Context, ref string) ([]byte, error) {
	return t.sender.DownloadMedia(ctx, ref)
}

// Start registers the whatsmeow event handler.
func (t *WhatsAppTransport) Start(ctx context.Context) error {
	slog.Debug("WhatsAppTransport Start invoked")
	if t.waClient == nil || t.waClient.GetClient() == nil {
		slog.Debug("WhatsAppTransport no full client available, skipping event handling")
		return nil
	}

	t.waClient.GetClient().AddEventHandler(func(evt interface{}) {
		switch v := evt.(type) {
		case *events.Message:
			t.handleIncomingMessage(v)
		default:
			// Other event types (receipts, presence) are irrelevant here.
		}
	})

	slog.Debug("WhatsAppTransport event handler registered")
	return nil
}

// Stop closes the event channel.
func (t *WhatsAppTransport) Stop() error {
	slog.Info("WhatsAppTransport Stop invoked")
	close(t.done)
	close(t.events)
	if t.waClient != nil {
		t.waClient.Disconnect()
	}
	return nil
}

// Events returns the inbound event channel.
func (t *WhatsAppTransport) Events() <-chan models.InboundEvent {
	return t.events
}

// handleIncomingMessage normalizes one inbound WhatsApp message. Button
// replies carry the selected button id verbatim; images are registered in
// the media registry and referenced opaquely.
func (t *WhatsAppTransport) handleIncomingMessage(evt *events.Message) {
	msg := evt.Message
	if msg == nil {
		return
	}

	var body, buttonID, mediaRef string
	switch {
	case msg.GetButtonsResponseMessage() != nil:
		buttonID = msg.GetButtonsResponseMessage().GetSelectedButtonID()
		body = msg.GetButtonsResponseMessage().GetSelectedDisplayText()
	case msg.GetListResponseMessage() != nil:
		buttonID = msg.GetListResponseMessage().GetSingleSelectReply().GetSelectedRowID()
		body = msg.GetListResponseMessage().GetTitle()
	case msg.GetImageMessage() != nil:
		if t.waClient != nil {
			mediaRef = t.waClient.RegisterMedia(msg.GetImageMessage())
		}
		body = msg.GetImageMessage().GetCaption()
	case msg.GetConversation() != "":
		body = msg.GetConversation()
	case msg.GetExtendedTextMessage() != nil:
		body = msg.GetExtendedTextMessage().GetText()
	default:
		slog.Debug("WhatsAppTransport ignoring unsupported message type", "from", evt.Info.Sender.String())
		return
	}

	from, err := CanonicalizePhone(evt.Info.Sender.User)
	if err != nil {
		slog.Warn("WhatsAppTransport dropping event with invalid sender", "error", err, "sender", evt.Info.Sender.String())
		return
	}

	event := models.InboundEvent{
		From:     from,
		Body:     body,
		ButtonID: buttonID,
		MediaRef: mediaRef,
		Time:     evt.Info.Timestamp.Unix(),
	}

	select {
	case t.events <- event:
		slog.Debug("WhatsAppTransport inbound event forwarded", "from", from, "button_id", buttonID, "has_media", mediaRef != "")
	case <-time.After(DefaultChannelTimeout):
		slog.Warn("WhatsAppTransport events channel blocked, dropping message", "from", from, "timeout", DefaultChannelTimeout)
	}
}
