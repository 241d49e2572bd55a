package delivery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// mockTransport records sends and fails on demand per method.
type mockTransport struct {
	texts        []string
	interactives []string
	textErr      error
	btnErr       error
}

func (m *mockTransport) SendText(ctx context.Context, to string, body string) error {
	if m.textErr != nil {
		return m.textErr
	}
	m.texts = append(m.texts, body)
	return nil
}

func (m *mockTransport) SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	if m.btnErr != nil {
		return m.btnErr
	}
	m.interactives = append(m.interactives, body)
	return nil
}

var menu = []models.ButtonSpec{
	{ID: "btn_homework", Label: "Homework"},
	{ID: "btn_pay", Label: "Pay"},
}

func TestDeliverInteractiveFirst(t *testing.T) {
	mt := &mockTransport{}
	o := NewOrchestrator(mt)

	attempts := o.Deliver(context.Background(), "1234567890", models.ResponsePayload{Text: "choose", Buttons: menu})

	if len(attempts) != 1 || attempts[0].Tier != models.TierInteractive || attempts[0].Outcome != models.DeliverySuccess {
		t.Fatalf("expected single interactive success, got %+v", attempts)
	}
	if len(mt.interactives) != 1 || len(mt.texts) != 0 {
		t.Errorf("expected one interactive send only, got %d interactive %d text", len(mt.interactives), len(mt.texts))
	}
}

func TestDeliverSkipsInteractiveWithoutButtons(t *testing.T) {
	mt := &mockTransport{}
	o := NewOrchestrator(mt)

	attempts := o.Deliver(context.Background(), "1234567890", models.ResponsePayload{Text: "plain"})

	if len(attempts) != 1 || attempts[0].Tier != models.TierText {
		t.Fatalf("expected text tier first for buttonless payload, got %+v", attempts)
	}
	if len(mt.texts) != 1 || mt.texts[0] != "plain" {
		t.Errorf("expected plain text sent, got %v", mt.texts)
	}
}

func TestDeliverFallsThroughToFallback(t *testing.T) {
	// Interactive fails; text fails twice (tier 2 and the fallback both use
	// SendText), so use a transport that fails SendText a limited number of
	// times.
	ft := &flakyTransport{textFailures: 1, btnErr: errors.New("buttons unsupported")}
	o := NewOrchestrator(ft)

	attempts := o.Deliver(context.Background(), "1234567890", models.ResponsePayload{Text: "choose", Buttons: menu})

	if len(attempts) != 3 {
		t.Fatalf("expected 3 attempts, got %d: %+v", len(attempts), attempts)
	}
	if attempts[0].Tier != models.TierInteractive || attempts[0].Outcome != models.DeliveryFailure {
		t.Errorf("attempt 1 should be interactive failure, got %+v", attempts[0])
	}
	if attempts[1].Tier != models.TierText || attempts[1].Outcome != models.DeliveryFailure {
		t.Errorf("attempt 2 should be text failure, got %+v", attempts[1])
	}
	if attempts[2].Tier != models.TierFallback || attempts[2].Outcome != models.DeliverySuccess {
		t.Errorf("attempt 3 should be fallback success, got %+v", attempts[2])
	}
	if !models.Succeeded(attempts) {
		t.Error("trail with fallback success should report success")
	}
	if len(ft.texts) != 1 || ft.texts[0] != models.FallbackAcknowledgment {
		t.Errorf("fallback should send the generic acknowledgment, got %v", ft.texts)
	}
}

// flakyTransport fails SendText a fixed number of times before succeeding.
type flakyTransport struct {
	textFailures int
	btnErr       error
	texts        []string
}

func (f *flakyTransport) SendText(ctx context.Context, to string, body string) error {
	if f.textFailures > 0 {
		f.textFailures--
		return errors.New("text send failed")
	}
	f.texts = append(f.texts, body)
	return nil
}

func (f *flakyTransport) SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	if f.btnErr != nil {
		return f.btnErr
	}
	return nil
}

func TestDeliverExhaustedTrail(t *testing.T) {
	mt := &mockTransport{textErr: errors.New("dead"), btnErr: errors.New("dead")}
	o := NewOrchestrator(mt)

	attempts := o.Deliver(context.Background(), "1234567890", models.ResponsePayload{Text: "choose", Buttons: menu})

	if len(attempts) != 3 {
		t.Fatalf("expected 3 failed attempts, got %d", len(attempts))
	}
	if models.Succeeded(attempts) {
		t.Error("all-failure trail must not report success")
	}
}

func TestFlattenButtons(t *testing.T) {
	got := FlattenButtons(models.ResponsePayload{Text: "choose", Buttons: menu})
	if !strings.Contains(got, "choose") || !strings.Contains(got, "1. Homework") || !strings.Contains(got, "2. Pay") {
		t.Errorf("flattened text missing labels: %q", got)
	}

	if got := FlattenButtons(models.ResponsePayload{Text: "plain"}); got != "plain" {
		t.Errorf("buttonless payload should flatten to its text, got %q", got)
	}
}

func TestDeliverEnsuresText(t *testing.T) {
	mt := &mockTransport{}
	o := NewOrchestrator(mt)

	o.Deliver(context.Background(), "1234567890", models.ResponsePayload{})

	if len(mt.texts) != 1 || mt.texts[0] != models.GenericAcknowledgment {
		t.Errorf("empty payload should deliver the generic acknowledgment, got %v", mt.texts)
	}
}
