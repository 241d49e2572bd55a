// Package intent maps inbound events to symbolic intents.
//
// Resolution is deterministic and total: every (free text, button id) pair
// maps to exactly one intent, defaulting to IntentUnknown. The resolver is a
// pure function of its inputs and never errors.
package intent

import (
	"strings"

	"github.com/BTreeMap/StudyLine/internal/models"
)

// buttonIntents maps stable button ids to intents. Button ids are consumed
// verbatim from interactive replies, so entries here must match the ids the
// engine attaches to outbound menus.
var buttonIntents = map[string]models.Intent{
	"btn_register":     models.IntentRegister,
	"btn_homework":     models.IntentHomework,
	"btn_confirm":      models.IntentConfirm,
	"btn_pay":          models.IntentPay,
	"btn_cancel":       models.IntentCancel,
	"btn_status":       models.IntentCheckStatus,
	"btn_help":         models.IntentHelp,
	"btn_faq":          models.IntentHelp,
	"btn_support":      models.IntentSupport,
	"btn_end_chat":     models.IntentEndChat,
	"end_chat":         models.IntentEndChat,
	"text_submission":  models.IntentTextSubmission,
	"image_submission": models.IntentImageSubmission,
}

// Resolve maps an inbound event to an intent.
//
// Button precedence: a non-empty button id is authoritative and free text is
// ignored entirely, so a tap that echoes its label as text cannot be
// misread. Without a button id, an ordered list of keyword predicates runs
// against a case-normalized copy of the text. Predicate order disambiguates
// overlapping substrings: confirm is checked before pay so "confirm payment"
// resolves to confirm, and end_chat is checked before support so "end chat"
// does not resolve to support.
func Resolve(freeText, buttonID string) models.Intent {
	if buttonID != "" {
		if it, ok := buttonIntents[strings.ToLower(strings.TrimSpace(buttonID))]; ok {
			return it
		}
		return models.IntentUnknown
	}

	norm := strings.ToLower(strings.TrimSpace(freeText))
	if norm == "" {
		return models.IntentUnknown
	}

	for _, p := range textPredicates {
		if p.match(norm) {
			return p.intent
		}
	}
	return models.IntentUnknown
}

type predicate struct {
	intent models.Intent
	match  func(norm string) bool
}

// textPredicates run in order; the first match wins.
var textPredicates = []predicate{
	{models.IntentConfirm, func(s string) bool {
		return strings.Contains(s, "confirm") || s == "yes"
	}},
	{models.IntentEndChat, func(s string) bool {
		return strings.Contains(s, "end chat") || strings.Contains(s, "end_chat") ||
			strings.Contains(s, "quit chat") || isExact(s, "close", "done", "exit", "quit")
	}},
	{models.IntentRegister, func(s string) bool {
		return strings.Contains(s, "register") || strings.Contains(s, "sign up") ||
			strings.Contains(s, "signup") || strings.Contains(s, "enroll")
	}},
	{models.IntentHomework, func(s string) bool {
		return strings.Contains(s, "homework") || strings.Contains(s, "assignment")
	}},
	{models.IntentPay, func(s string) bool {
		return strings.Contains(s, "pay") || strings.Contains(s, "subscribe") ||
			strings.Contains(s, "fee")
	}},
	{models.IntentCheckStatus, func(s string) bool {
		return strings.Contains(s, "status")
	}},
	{models.IntentHelp, func(s string) bool {
		if strings.Contains(s, "help me") {
			return false // support phrase, handled below
		}
		return strings.Contains(s, "help") || isExact(s, "menu", "options", "faq")
	}},
	{models.IntentCancel, func(s string) bool {
		return strings.Contains(s, "cancel") || isExact(s, "stop", "reset")
	}},
	{models.IntentTextSubmission, func(s string) bool {
		return strings.Contains(s, "text submission") || strings.Contains(s, "as text") ||
			isExact(s, "text")
	}},
	{models.IntentImageSubmission, func(s string) bool {
		return strings.Contains(s, "image submission") || strings.Contains(s, "as image") ||
			isExact(s, "image", "photo", "picture")
	}},
	{models.IntentSupport, func(s string) bool {
		return strings.Contains(s, "support") || strings.Contains(s, "chat") ||
			strings.Contains(s, "help me") || strings.Contains(s, "agent") ||
			strings.Contains(s, "human") || strings.Contains(s, "talk to someone")
	}},
}

func isExact(s string, words ...string) bool {
	for _, w := range words {
		if s == w {
			return true
		}
	}
	return false
}
