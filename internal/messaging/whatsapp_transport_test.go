package messaging

import (
	"context"
	"testing"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/whatsapp"
)

func TestWhatsAppTransportCanonicalizesRecipients(t *testing.T) {
	mock := whatsapp.NewMockClient()
	tr := NewWhatsAppTransport(mock)
	ctx := context.Background()

	if err := tr.SendText(ctx, "+1 (555) 123-4567", "hello"); err != nil {
		t.Fatalf("SendText failed: %v", err)
	}
	if len(mock.Texts) != 1 || mock.Texts[0].To != "15551234567" {
		t.Errorf("recipient should be canonicalized, got %+v", mock.Texts)
	}

	if err := tr.SendText(ctx, "123", "hello"); err == nil {
		t.Error("too-short recipient should be rejected")
	}
}

func TestWhatsAppTransportSendsButtons(t *testing.T) {
	mock := whatsapp.NewMockClient()
	tr := NewWhatsAppTransport(mock)

	buttons := []models.ButtonSpec{{ID: "btn_homework", Label: "Homework"}}
	if err := tr.SendInteractive(context.Background(), "15551234567", "choose", buttons); err != nil {
		t.Fatalf("SendInteractive failed: %v", err)
	}
	if len(mock.Buttons) != 1 || len(mock.Buttons[0].Buttons) != 1 {
		t.Fatalf("expected one interactive send, got %+v", mock.Buttons)
	}
	if mock.Buttons[0].Buttons[0].ID != "btn_homework" {
		t.Errorf("button id should pass through verbatim, got %+v", mock.Buttons[0].Buttons[0])
	}
}

func TestWhatsAppTransportStartWithoutFullClient(t *testing.T) {
	tr := NewWhatsAppTransport(whatsapp.NewMockClient())
	// Interface-only senders have no live connection; Start must be a no-op.
	if err := tr.Start(context.Background()); err != nil {
		t.Errorf("Start with mock sender should succeed, got %v", err)
	}
}
