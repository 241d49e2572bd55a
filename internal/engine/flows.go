package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// stateHandler applies an intent to a record while it is in one particular
// state. Handlers mutate the record in place and return the response payload.
type stateHandler func(e *Engine, ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload

var stateHandlers = map[models.ConversationState]stateHandler{
	models.StateInitial:           (*Engine).handleEntry,
	models.StateIdentifying:       (*Engine).handleEntry,
	models.StateRegisteringName:   (*Engine).handleRegisteringName,
	models.StateRegisteringEmail:  (*Engine).handleRegisteringEmail,
	models.StateRegisteringClass:  (*Engine).handleRegisteringClass,
	models.StateRegistered:        (*Engine).handleIdle,
	models.StateAlreadyRegistered: (*Engine).handleIdle,
	models.StateIdle:              (*Engine).handleIdle,
	models.StateHomeworkSubject:   (*Engine).handleHomeworkSubject,
	models.StateHomeworkType:      (*Engine).handleHomeworkType,
	models.StateHomeworkContent:   (*Engine).handleHomeworkContent,
	models.StateHomeworkSubmitted: (*Engine).handleIdle,
	models.StatePaymentPending:    (*Engine).handlePaymentPending,
	models.StatePaymentConfirmed:  (*Engine).handleIdle,
	models.StateChatSupport:       (*Engine).handleStaleChatState,
}

// handleEntry greets first contact. Any input starts identification: known
// identities go straight to the main menu, unknown ones into registration.
func (e *Engine) handleEntry(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	existing, err := e.students.Get(ctx, r.Identity)
	if err != nil {
		// Lookup failure is not fatal to the flow; treat the user as new.
		slog.Warn("Engine.handleEntry: student lookup failed", "error", err, "identity", r.Identity)
	}
	if existing != nil {
		r.Registered = true
		r.State = models.StateAlreadyRegistered
		return models.ResponsePayload{
			Text:    fmt.Sprintf(msgAlreadyRegistered, existing.Name),
			Buttons: mainMenuButtons(r),
		}
	}

	r.State = models.StateRegisteringName
	return models.ResponsePayload{Text: msgAskName}
}

// handleRegisteringName stores the name and asks for the email.
func (e *Engine) handleRegisteringName(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	name := strings.TrimSpace(ev.Body)
	if name == "" {
		return models.ResponsePayload{Text: msgAskName}
	}
	r.Registration.Name = name
	r.State = models.StateRegisteringEmail
	return models.ResponsePayload{Text: fmt.Sprintf(msgAskEmail, name)}
}

// handleRegisteringEmail stores the email and asks for the class.
func (e *Engine) handleRegisteringEmail(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	email := strings.TrimSpace(ev.Body)
	if email == "" || !strings.Contains(email, "@") {
		return models.ResponsePayload{Text: msgAskEmailAgain}
	}
	r.Registration.Email = email
	r.State = models.StateRegisteringClass
	return models.ResponsePayload{Text: msgAskClass}
}

// handleRegisteringClass completes registration through the student
// directory. On collaborator failure the state stays put so the user can
// retry with the same input.
func (e *Engine) handleRegisteringClass(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	class := strings.TrimSpace(ev.Body)
	if class == "" {
		return models.ResponsePayload{Text: msgAskClass}
	}
	r.Registration.Class = class

	if err := e.students.Create(ctx, r.Identity, r.Registration); err != nil {
		slog.Error("Engine.handleRegisteringClass: student create failed", "error", err, "identity", r.Identity)
		return models.ResponsePayload{Text: msgCollaboratorApology}
	}

	r.Registered = true
	r.State = models.StateRegistered
	name := r.Registration.Name
	return models.ResponsePayload{
		Text:    fmt.Sprintf(msgRegistered, name, class),
		Buttons: mainMenuButtons(r),
	}
}

// handleIdle covers every settled state: the main menu hub.
func (e *Engine) handleIdle(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	switch it {
	case models.IntentHomework:
		r.Homework = models.HomeworkFields{}
		r.MenuMode = menuModeHomework
		r.State = models.StateHomeworkSubject
		return models.ResponsePayload{Text: msgAskSubject}

	case models.IntentPay:
		r.State = models.StatePaymentPending
		return models.ResponsePayload{
			Text:    fmt.Sprintf(msgPaymentPrompt, float64(e.opts.PriceCents)/100),
			Buttons: paymentButtons(),
		}

	case models.IntentRegister:
		if r.Registered {
			r.State = models.StateAlreadyRegistered
			return models.ResponsePayload{
				Text:    fmt.Sprintf(msgAlreadyRegistered, r.Registration.Name),
				Buttons: mainMenuButtons(r),
			}
		}
		r.State = models.StateRegisteringName
		return models.ResponsePayload{Text: msgAskName}

	case models.IntentCheckStatus:
		return models.ResponsePayload{
			Text:    e.statusText(ctx, r),
			Buttons: mainMenuButtons(r),
		}

	case models.IntentHelp:
		r.MenuMode = menuModeFAQ
		return models.ResponsePayload{
			Text:    msgHelp,
			Buttons: faqMenuButtons(),
		}

	default:
		return models.ResponsePayload{
			Text:    msgDidNotUnderstand,
			Buttons: mainMenuButtons(r),
		}
	}
}

// handleHomeworkSubject stores the subject and offers the submission type.
func (e *Engine) handleHomeworkSubject(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	subject := strings.TrimSpace(ev.Body)
	if subject == "" {
		return models.ResponsePayload{Text: msgAskSubject}
	}
	r.Homework.Subject = subject
	r.State = models.StateHomeworkType
	return models.ResponsePayload{
		Text:    fmt.Sprintf(msgAskHomeworkType, subject),
		Buttons: homeworkTypeButtons(),
	}
}

// handleHomeworkType records the chosen submission kind.
func (e *Engine) handleHomeworkType(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	switch it {
	case models.IntentTextSubmission:
		r.Homework.Kind = "text"
	case models.IntentImageSubmission:
		r.Homework.Kind = "image"
	default:
		return models.ResponsePayload{
			Text:    msgAskHomeworkTypeAgain,
			Buttons: homeworkTypeButtons(),
		}
	}
	r.State = models.StateHomeworkContent
	if r.Homework.Kind == "image" {
		return models.ResponsePayload{Text: msgAskHomeworkImage}
	}
	return models.ResponsePayload{Text: msgAskHomeworkText}
}

// handleHomeworkContent hands the submission to the homework desk. A
// collaborator failure leaves the state in HOMEWORK_CONTENT so the payload
// can simply be resent.
func (e *Engine) handleHomeworkContent(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	var content string
	switch {
	case ev.MediaRef != "":
		r.Homework.Kind = "image"
		r.Homework.MediaRef = ev.MediaRef
		content = ev.MediaRef
	case strings.TrimSpace(ev.Body) != "":
		content = strings.TrimSpace(ev.Body)
		r.Homework.Content = content
	default:
		if r.Homework.Kind == "image" {
			return models.ResponsePayload{Text: msgAskHomeworkImage}
		}
		return models.ResponsePayload{Text: msgAskHomeworkText}
	}

	ref, err := e.homework.Create(ctx, r.Identity, r.Homework.Subject, r.Homework.Kind, content)
	if err != nil {
		slog.Error("Engine.handleHomeworkContent: homework create failed", "error", err, "identity", r.Identity, "subject", r.Homework.Subject)
		return models.ResponsePayload{Text: msgCollaboratorApology}
	}

	subject := r.Homework.Subject
	r.Homework = models.HomeworkFields{}
	r.MenuMode = ""
	r.State = models.StateHomeworkSubmitted
	return models.ResponsePayload{
		Text:    fmt.Sprintf(msgHomeworkSubmitted, subject, ref),
		Buttons: mainMenuButtons(r),
	}
}

// handlePaymentPending waits for confirm; cancel is routed by the cancel
// table before this handler runs.
func (e *Engine) handlePaymentPending(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	switch it {
	case models.IntentConfirm:
		link, err := e.payments.CreateLink(ctx, r.Identity, e.opts.PriceCents)
		if err != nil {
			slog.Error("Engine.handlePaymentPending: payment link failed", "error", err, "identity", r.Identity)
			return models.ResponsePayload{Text: msgCollaboratorApology}
		}
		r.State = models.StatePaymentConfirmed
		return models.ResponsePayload{Text: fmt.Sprintf(msgPaymentLink, link)}

	default:
		return models.ResponsePayload{
			Text:    fmt.Sprintf(msgPaymentPrompt, float64(e.opts.PriceCents)/100),
			Buttons: paymentButtons(),
		}
	}
}

// handleStaleChatState recovers a CHAT_SUPPORT_ACTIVE record whose live-chat
// flag was already cleared. The pre-checks in Transition handle the normal
// live-chat paths, so landing here means the flag and state disagreed.
func (e *Engine) handleStaleChatState(ctx context.Context, r *models.ConversationRecord, it models.Intent, ev models.InboundEvent) models.ResponsePayload {
	slog.Warn("Engine: chat state without live-chat flag, returning home", "identity", r.Identity)
	r.State = r.HomeState()
	return models.ResponsePayload{
		Text:    msgLiveChatClosed,
		Buttons: mainMenuButtons(r),
	}
}

// statusText summarizes the conversation for a check_status intent.
func (e *Engine) statusText(ctx context.Context, r *models.ConversationRecord) string {
	if !r.Registered {
		return msgStatusUnregistered
	}
	fields, err := e.students.Get(ctx, r.Identity)
	if err != nil || fields == nil {
		slog.Warn("Engine.statusText: student lookup failed", "error", err, "identity", r.Identity)
		return msgStatusRegistered
	}
	return fmt.Sprintf(msgStatusDetail, fields.Name, fields.Class)
}
