package livechat

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/BTreeMap/StudyLine/internal/convstore"
	"github.com/BTreeMap/StudyLine/internal/delivery"
	"github.com/BTreeMap/StudyLine/internal/engine"
	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/services"
)

type mockTransport struct {
	texts        []string
	interactives []string
}

func (m *mockTransport) SendText(ctx context.Context, to string, body string) error {
	m.texts = append(m.texts, body)
	return nil
}

func (m *mockTransport) SendInteractive(ctx context.Context, to string, body string, buttons []models.ButtonSpec) error {
	m.interactives = append(m.interactives, body)
	return nil
}

func newTestBridge(t *testing.T) (*Bridge, *engine.Engine, *convstore.InMemoryStore, *mockTransport) {
	t.Helper()
	store := convstore.NewInMemoryStore()
	mt := &mockTransport{}
	eng := engine.New(store, delivery.NewOrchestrator(mt),
		services.NewInMemoryDirectory(), services.NewInMemoryDesk(), services.NewStaticGateway(""))
	return NewBridge(store, eng), eng, store, mt
}

func enterLiveChat(t *testing.T, eng *engine.Engine, identity string) {
	t.Helper()
	eng.HandleEvent(context.Background(), models.InboundEvent{From: identity, Body: "talk to someone"})
}

func TestSendOperatorMessageRequiresLiveChat(t *testing.T) {
	bridge, eng, _, _ := newTestBridge(t)
	ctx := context.Background()

	// Unknown identity.
	if _, err := bridge.SendOperatorMessage(ctx, "+5550001", "hello"); !errors.Is(err, models.ErrNotInLiveChat) {
		t.Errorf("expected ErrNotInLiveChat for unknown identity, got %v", err)
	}

	// Known identity, but not in live chat.
	eng.HandleEvent(ctx, models.InboundEvent{From: "+5550001", Body: "hi"})
	if _, err := bridge.SendOperatorMessage(ctx, "+5550001", "hello"); !errors.Is(err, models.ErrNotInLiveChat) {
		t.Errorf("expected ErrNotInLiveChat outside live chat, got %v", err)
	}
}

func TestSendOperatorMessageRejectsEmptyText(t *testing.T) {
	bridge, eng, _, _ := newTestBridge(t)
	enterLiveChat(t, eng, "+5550002")

	if _, err := bridge.SendOperatorMessage(context.Background(), "+5550002", ""); !errors.Is(err, models.ErrEmptyText) {
		t.Errorf("expected ErrEmptyText, got %v", err)
	}
}

func TestSendOperatorMessageDeliversAndLogs(t *testing.T) {
	bridge, eng, store, mt := newTestBridge(t)
	ctx := context.Background()
	enterLiveChat(t, eng, "+5550003")

	attempts, err := bridge.SendOperatorMessage(ctx, "+5550003", "An agent here, how can I help?")
	if err != nil {
		t.Fatalf("SendOperatorMessage failed: %v", err)
	}
	if !models.Succeeded(attempts) {
		t.Fatal("operator message should deliver")
	}
	if got := mt.texts[len(mt.texts)-1]; got != "An agent here, how can I help?" {
		t.Errorf("unexpected delivered text %q", got)
	}

	rec, _ := store.Get(ctx, "+5550003")
	last := rec.MessageLog[len(rec.MessageLog)-1]
	if last.Direction != models.DirectionOperator {
		t.Errorf("operator entry should have operator direction, got %s", last.Direction)
	}
	if last.Status != models.MessageStatusDelivered {
		t.Errorf("operator entry should be marked delivered, got %s", last.Status)
	}
}

func TestEndChatRequiresLiveChat(t *testing.T) {
	bridge, eng, _, _ := newTestBridge(t)
	ctx := context.Background()

	if _, err := bridge.EndChat(ctx, "+5550004", ""); !errors.Is(err, models.ErrNotInLiveChat) {
		t.Errorf("expected ErrNotInLiveChat for unknown identity, got %v", err)
	}

	eng.HandleEvent(ctx, models.InboundEvent{From: "+5550004", Body: "hi"})
	if _, err := bridge.EndChat(ctx, "+5550004", ""); !errors.Is(err, models.ErrNotInLiveChat) {
		t.Errorf("expected ErrNotInLiveChat outside live chat, got %v", err)
	}
}

func TestEndChatForcesTransition(t *testing.T) {
	bridge, eng, store, mt := newTestBridge(t)
	ctx := context.Background()
	enterLiveChat(t, eng, "+5550005")

	rec, err := bridge.EndChat(ctx, "+5550005", "Thanks for chatting with us!")
	if err != nil {
		t.Fatalf("EndChat failed: %v", err)
	}
	if rec.LiveChat {
		t.Error("returned record should have live chat cleared")
	}
	if rec.State != models.StateIdle {
		t.Errorf("unregistered user should return to IDLE, got %s", rec.State)
	}

	closing := mt.interactives[len(mt.interactives)-1]
	if !strings.Contains(closing, "Thanks for chatting with us!") {
		t.Errorf("custom closing text should be delivered, got %q", closing)
	}

	stored, _ := store.Get(ctx, "+5550005")
	if stored.LiveChat {
		t.Error("stored record should have live chat cleared")
	}
}

func TestEndChatDefaultClosingText(t *testing.T) {
	bridge, eng, _, mt := newTestBridge(t)
	enterLiveChat(t, eng, "+5550006")

	if _, err := bridge.EndChat(context.Background(), "+5550006", ""); err != nil {
		t.Fatalf("EndChat failed: %v", err)
	}
	closing := mt.interactives[len(mt.interactives)-1]
	if !strings.Contains(closing, "ended") {
		t.Errorf("expected default closing copy, got %q", closing)
	}
}
