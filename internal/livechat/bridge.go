// Package livechat bridges operator messages into live-chat conversations.
//
// While a conversation has live chat active the automated flow is suspended;
// the bridge lets an operator inject replies and hand the conversation back
// to the state machine. Both operations reject identities that are not
// currently in live chat with models.ErrNotInLiveChat rather than silently
// doing nothing.
package livechat

import (
	"context"
	"log/slog"
	"time"

	"github.com/BTreeMap/StudyLine/internal/convstore"
	"github.com/BTreeMap/StudyLine/internal/engine"
	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/BTreeMap/StudyLine/internal/util"
)

// Bridge exposes the operator-facing live-chat operations.
type Bridge struct {
	store convstore.Store
	eng   *engine.Engine
}

// NewBridge creates a bridge over the given store and engine.
func NewBridge(store convstore.Store, eng *engine.Engine) *Bridge {
	return &Bridge{store: store, eng: eng}
}

// SendOperatorMessage delivers an operator reply to a live-chat conversation
// and records it in the message log with operator direction.
func (b *Bridge) SendOperatorMessage(ctx context.Context, identity, text string) ([]models.DeliveryAttempt, error) {
	if text == "" {
		return nil, models.ErrEmptyText
	}

	rec, err := b.store.Peek(ctx, identity)
	if err != nil {
		return nil, err
	}
	if rec == nil || !rec.LiveChat {
		slog.Warn("Bridge.SendOperatorMessage: conversation not in live chat", "identity", identity)
		return nil, models.ErrNotInLiveChat
	}

	attempts := b.eng.Orchestrator().Deliver(ctx, identity, models.ResponsePayload{Text: text})

	status := models.MessageStatusFailed
	if models.Succeeded(attempts) {
		status = models.MessageStatusDelivered
	}
	if _, logErr := b.store.Update(ctx, identity, func(r *models.ConversationRecord) error {
		r.AppendLog(models.MessageEntry{
			ID:        util.GenerateMessageID(),
			Direction: models.DirectionOperator,
			Text:      text,
			Timestamp: time.Now(),
			Status:    status,
		})
		return nil
	}); logErr != nil {
		slog.Error("Bridge.SendOperatorMessage: failed to record operator entry", "error", logErr, "identity", identity)
	}

	slog.Info("Bridge.SendOperatorMessage: delivered", "identity", identity, "status", status)
	return attempts, nil
}

// EndChat forces the same transition as a user-initiated end_chat intent,
// delivering closingText (or the default closing message) before handing the
// conversation back to the automated flow. The updated record is returned.
func (b *Bridge) EndChat(ctx context.Context, identity, closingText string) (*models.ConversationRecord, error) {
	existing, err := b.store.Peek(ctx, identity)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		slog.Warn("Bridge.EndChat: unknown identity", "identity", identity)
		return nil, models.ErrNotInLiveChat
	}

	var payload models.ResponsePayload
	rec, err := b.store.Update(ctx, identity, func(r *models.ConversationRecord) error {
		if !r.LiveChat {
			return models.ErrNotInLiveChat
		}
		payload = b.eng.EndLiveChat(r)
		if closingText != "" {
			payload.Text = closingText
		}
		return nil
	})
	if err != nil {
		slog.Warn("Bridge.EndChat: rejected", "error", err, "identity", identity)
		return nil, err
	}

	attempts := b.eng.Orchestrator().Deliver(ctx, identity, payload)

	status := models.MessageStatusFailed
	if models.Succeeded(attempts) {
		status = models.MessageStatusDelivered
	}
	if _, logErr := b.store.Update(ctx, identity, func(r *models.ConversationRecord) error {
		r.AppendLog(models.MessageEntry{
			ID:        util.GenerateMessageID(),
			Direction: models.DirectionSystem,
			Text:      payload.Text,
			Timestamp: time.Now(),
			Status:    status,
		})
		return nil
	}); logErr != nil {
		slog.Error("Bridge.EndChat: failed to record closing entry", "error", logErr, "identity", identity)
	}

	slog.Info("Bridge.EndChat: chat ended", "identity", identity, "state", rec.State, "delivery", status)
	return rec, nil
}
