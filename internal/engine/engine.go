// Package engine implements the conversation state machine.
//
// Given a conversation record and a resolved intent it produces the next
// state and the response payload to deliver. Transitions are driven by a
// per-state table where each state declares its own cancel target, so the
// payment-pending exception (cancel returns to IDLE without discarding
// session context) needs no special-case branch. Collaborator failures are
// converted into an apologetic reply with the state left where it was, so
// the user can retry instead of being stranded mid-flow.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/StudyLine/internal/convstore"
	"github.com/BTreeMap/StudyLine/internal/delivery"
	"github.com/BTreeMap/StudyLine/internal/intent"
	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/services"
	"github.com/BTreeMap/StudyLine/internal/util"
)

// DefaultPriceCents is the subscription price shown in the payment flow when
// none is configured.
const DefaultPriceCents = 2500

// Opts holds configuration options for the engine.
type Opts struct {
	PriceCents int
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithPriceCents overrides the subscription price quoted in the payment flow.
func WithPriceCents(cents int) Option {
	return func(o *Opts) { o.PriceCents = cents }
}

// Engine owns the conversation state machine and its collaborators.
type Engine struct {
	store        convstore.Store
	orchestrator *delivery.Orchestrator
	students     services.StudentDirectory
	homework     services.HomeworkDesk
	payments     services.PaymentGateway
	opts         Opts
}

// New creates an engine over the given store, orchestrator, and collaborators.
func New(store convstore.Store, orchestrator *delivery.Orchestrator,
	students services.StudentDirectory, homework services.HomeworkDesk,
	payments services.PaymentGateway, options ...Option) *Engine {
	opts := Opts{PriceCents: DefaultPriceCents}
	for _, opt := range options {
		opt(&opts)
	}
	return &Engine{
		store:        store,
		orchestrator: orchestrator,
		students:     students,
		homework:     homework,
		payments:     payments,
		opts:         opts,
	}
}

// Store exposes the conversation store for collaborators that need record
// snapshots (the operator API, primarily).
func (e *Engine) Store() convstore.Store { return e.store }

// Orchestrator exposes the delivery orchestrator for the live-chat bridge.
func (e *Engine) Orchestrator() *delivery.Orchestrator { return e.orchestrator }

// HandleEvent runs the full cycle for one inbound event: append the user
// entry, resolve the intent, transition inside the identity's critical
// section, then deliver outside it and record the outcome. The state is
// committed before delivery, so a failed send never leaves the user stuck
// mid-flow. HandleEvent never returns an error; every failure mode ends in
// some response being attempted.
func (e *Engine) HandleEvent(ctx context.Context, ev models.InboundEvent) []models.DeliveryAttempt {
	slog.Debug("Engine.HandleEvent: processing", "from", ev.From, "button_id", ev.ButtonID, "has_media", ev.MediaRef != "")

	var payload models.ResponsePayload
	rec, err := e.store.Update(ctx, ev.From, func(r *models.ConversationRecord) error {
		r.AppendLog(models.MessageEntry{
			ID:        util.GenerateMessageID(),
			Direction: models.DirectionUser,
			Text:      ev.Body,
			Timestamp: time.Unix(ev.Time, 0),
			Status:    models.MessageStatusReceived,
		})
		it := intent.Resolve(ev.Body, ev.ButtonID)
		slog.Debug("Engine.HandleEvent: resolved intent", "from", ev.From, "intent", it, "state", r.State)
		payload = e.Transition(ctx, r, it, ev)
		return nil
	})
	if err != nil {
		slog.Error("Engine.HandleEvent: state update failed", "error", err, "from", ev.From)
		payload = models.ResponsePayload{Text: models.FallbackAcknowledgment}
	}

	payload.EnsureText()
	attempts := e.orchestrator.Deliver(ctx, ev.From, payload)

	status := models.MessageStatusFailed
	if models.Succeeded(attempts) {
		status = models.MessageStatusDelivered
	}
	if _, logErr := e.store.Update(ctx, ev.From, func(r *models.ConversationRecord) error {
		r.AppendLog(models.MessageEntry{
			ID:        util.GenerateMessageID(),
			Direction: models.DirectionSystem,
			Text:      payload.Text,
			Timestamp: time.Now(),
			Status:    status,
		})
		return nil
	}); logErr != nil {
		slog.Error("Engine.HandleEvent: failed to record outbound entry", "error", logErr, "from", ev.From)
	}

	if rec != nil {
		slog.Info("Engine.HandleEvent: done", "from", ev.From, "state", rec.State, "delivery", status)
	}
	return attempts
}

// Transition applies one intent to the record and returns the response
// payload. The caller is responsible for running it inside the identity's
// critical section.
func (e *Engine) Transition(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	// Live-chat short-circuit: while an operator session is active, nothing
	// is reinterpreted except the end_chat intent. The inbound text is
	// already captured in the message log.
	if r.LiveChat && it != models.IntentEndChat {
		return models.ResponsePayload{
			Text:    msgLiveChatForwarded,
			Buttons: chatButtons(),
		}
	}
	if r.LiveChat && it == models.IntentEndChat {
		return e.exitLiveChat(r)
	}

	// Chat support entry is reachable from any state.
	if it == models.IntentSupport {
		return e.enterLiveChat(r)
	}

	// Cancel resolves through the per-state table. States without an entry
	// use the global target: reset to INITIAL and clear collected fields.
	if it == models.IntentCancel {
		return e.handleCancel(r)
	}

	handler, ok := stateHandlers[r.State]
	if !ok {
		// Unknown state is a defect upstream; recover to IDLE rather than
		// crash, per the state-set invariant.
		slog.Warn("Engine.Transition: no handler for state, falling back to IDLE", "identity", r.Identity, "state", r.State)
		r.State = models.StateIdle
		handler = stateHandlers[models.StateIdle]
	}
	return handler(e, ctx, r, it, ev)
}

// handleCancel applies the state's declared cancel target.
func (e *Engine) handleCancel(r *models.ConversationRecord) models.ResponsePayload {
	target, ok := cancelTargets[r.State]
	if !ok {
		target = cancelTarget{state: models.StateInitial, clearFields: true}
	}
	slog.Debug("Engine cancel", "identity", r.Identity, "from_state", r.State, "to_state", target.state, "clear_fields", target.clearFields)
	r.State = target.state
	if target.clearFields {
		r.ClearFlows()
	}
	return models.ResponsePayload{
		Text:    target.text,
		Buttons: mainMenuButtons(r),
	}
}

// cancelTarget declares where a cancel intent lands from a given state.
type cancelTarget struct {
	state       models.ConversationState
	clearFields bool
	text        string
}

// cancelTargets is the per-state cancel table. PAYMENT_PENDING keeps the
// collected session context and returns to IDLE; every unlisted state uses
// the global reset to INITIAL.
var cancelTargets = map[models.ConversationState]cancelTarget{
	models.StatePaymentPending: {state: models.StateIdle, clearFields: false, text: msgPaymentCancelled},
}

func init() {
	globalReset := cancelTarget{state: models.StateInitial, clearFields: true, text: msgConversationReset}
	for _, s := range []models.ConversationState{
		models.StateInitial, models.StateIdentifying,
		models.StateRegisteringName, models.StateRegisteringEmail, models.StateRegisteringClass,
		models.StateRegistered, models.StateAlreadyRegistered, models.StateIdle,
		models.StateHomeworkSubject, models.StateHomeworkType, models.StateHomeworkContent,
		models.StateHomeworkSubmitted, models.StatePaymentConfirmed,
	} {
		cancelTargets[s] = globalReset
	}
}

// enterLiveChat flips the conversation into operator hands.
func (e *Engine) enterLiveChat(r *models.ConversationRecord) models.ResponsePayload {
	now := time.Now()
	r.LiveChat = true
	r.ChatStartedAt = &now
	r.State = models.StateChatSupport
	slog.Info("Engine: live chat started", "identity", r.Identity)
	return models.ResponsePayload{
		Text:    msgLiveChatWelcome,
		Buttons: chatButtons(),
	}
}

// exitLiveChat returns the conversation to the automated flow.
func (e *Engine) exitLiveChat(r *models.ConversationRecord) models.ResponsePayload {
	r.LiveChat = false
	r.ChatStartedAt = nil
	r.State = r.HomeState()
	slog.Info("Engine: live chat ended", "identity", r.Identity, "state", r.State)
	return models.ResponsePayload{
		Text:    msgLiveChatClosed,
		Buttons: mainMenuButtons(r),
	}
}

// EndLiveChat forces the same transition as a user-initiated end_chat. It is
// the entry point used by the live-chat bridge on behalf of an operator.
func (e *Engine) EndLiveChat(r *models.ConversationRecord) models.ResponsePayload {
	return e.exitLiveChat(r)
}
