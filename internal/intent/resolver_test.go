package intent

import (
	"testing"

	"github.com/BTreeMap/StudyLine/internal/models"
)

func TestResolveButtonPrecedence(t *testing.T) {
	// A button id wins even when the accompanying text would resolve to a
	// different intent.
	got := Resolve("I want to pay", "btn_cancel")
	if got != models.IntentCancel {
		t.Errorf("expected cancel from button id, got %s", got)
	}

	// Unknown button ids never fall back to text interpretation.
	got = Resolve("register", "btn_bogus")
	if got != models.IntentUnknown {
		t.Errorf("expected unknown for unrecognized button id, got %s", got)
	}
}

func TestResolveTextIntents(t *testing.T) {
	cases := []struct {
		text string
		want models.Intent
	}{
		{"I want to register", models.IntentRegister},
		{"sign up please", models.IntentRegister},
		{"submit homework", models.IntentHomework},
		{"my assignment is ready", models.IntentHomework},
		{"pay", models.IntentPay},
		{"subscribe", models.IntentPay},
		{"please confirm payment", models.IntentConfirm},
		{"yes", models.IntentConfirm},
		{"cancel", models.IntentCancel},
		{"stop", models.IntentCancel},
		{"status", models.IntentCheckStatus},
		{"help", models.IntentHelp},
		{"menu", models.IntentHelp},
		{"faq", models.IntentHelp},
		{"help me", models.IntentSupport},
		{"talk to someone", models.IntentSupport},
		{"I need an agent", models.IntentSupport},
		{"end chat please", models.IntentEndChat},
		{"quit chat", models.IntentEndChat},
		{"done", models.IntentEndChat},
		{"as text", models.IntentTextSubmission},
		{"photo", models.IntentImageSubmission},
		{"blah blah blah", models.IntentUnknown},
		{"", models.IntentUnknown},
	}

	for _, c := range cases {
		if got := Resolve(c.text, ""); got != c.want {
			t.Errorf("Resolve(%q) = %s, want %s", c.text, got, c.want)
		}
	}
}

func TestResolveOrderingDisambiguation(t *testing.T) {
	// "confirm" must beat "pay" when both substrings are present.
	if got := Resolve("confirm the payment", ""); got != models.IntentConfirm {
		t.Errorf("expected confirm to win over pay, got %s", got)
	}
	// "end chat" must beat "chat" (support).
	if got := Resolve("end chat", ""); got != models.IntentEndChat {
		t.Errorf("expected end_chat to win over support, got %s", got)
	}
	// Bare "chat" still reaches support.
	if got := Resolve("chat", ""); got != models.IntentSupport {
		t.Errorf("expected support for bare chat, got %s", got)
	}
}

func TestResolveCaseAndWhitespace(t *testing.T) {
	if got := Resolve("  REGISTER  ", ""); got != models.IntentRegister {
		t.Errorf("expected register for upper-case padded input, got %s", got)
	}
	if got := Resolve("", "  BTN_PAY  "); got != models.IntentPay {
		t.Errorf("expected pay for padded button id, got %s", got)
	}
}
