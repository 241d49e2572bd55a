// Package models defines the core data structures for StudyLine.
//
// It includes conversation state, intents, message-log entries, and delivery
// types shared across modules.
package models

import (
	"errors"
	"time"
)

// ConversationState identifies where a user is in the guided flow.
type ConversationState string

const (
	StateInitial           ConversationState = "INITIAL"
	StateIdentifying       ConversationState = "IDENTIFYING"
	StateRegisteringName   ConversationState = "REGISTERING_NAME"
	StateRegisteringEmail  ConversationState = "REGISTERING_EMAIL"
	StateRegisteringClass  ConversationState = "REGISTERING_CLASS"
	StateRegistered        ConversationState = "REGISTERED"
	StateAlreadyRegistered ConversationState = "ALREADY_REGISTERED"
	StateIdle              ConversationState = "IDLE"
	StateHomeworkSubject   ConversationState = "HOMEWORK_SUBJECT"
	StateHomeworkType      ConversationState = "HOMEWORK_TYPE"
	StateHomeworkContent   ConversationState = "HOMEWORK_CONTENT"
	StateHomeworkSubmitted ConversationState = "HOMEWORK_SUBMITTED"
	StatePaymentPending    ConversationState = "PAYMENT_PENDING"
	StatePaymentConfirmed  ConversationState = "PAYMENT_CONFIRMED"
	StateChatSupport       ConversationState = "CHAT_SUPPORT_ACTIVE"
)

// IsValidConversationState checks if the given state is one of the known states.
func IsValidConversationState(s ConversationState) bool {
	switch s {
	case StateInitial, StateIdentifying, StateRegisteringName, StateRegisteringEmail,
		StateRegisteringClass, StateRegistered, StateAlreadyRegistered, StateIdle,
		StateHomeworkSubject, StateHomeworkType, StateHomeworkContent, StateHomeworkSubmitted,
		StatePaymentPending, StatePaymentConfirmed, StateChatSupport:
		return true
	default:
		return false
	}
}

// Intent is the symbolic classification of an inbound event.
type Intent string

const (
	IntentRegister        Intent = "register"
	IntentHomework        Intent = "homework"
	IntentConfirm         Intent = "confirm"
	IntentPay             Intent = "pay"
	IntentCancel          Intent = "cancel"
	IntentCheckStatus     Intent = "check_status"
	IntentHelp            Intent = "help"
	IntentSupport         Intent = "support"
	IntentEndChat         Intent = "end_chat"
	IntentTextSubmission  Intent = "text_submission"
	IntentImageSubmission Intent = "image_submission"
	IntentUnknown         Intent = "unknown"
)

// MessageDirection indicates who produced a message-log entry.
type MessageDirection string

const (
	DirectionUser     MessageDirection = "user"
	DirectionSystem   MessageDirection = "system"
	DirectionOperator MessageDirection = "operator"
)

// MessageStatus represents the delivery status of an outbound message-log entry.
type MessageStatus string

const (
	MessageStatusPending   MessageStatus = "pending"
	MessageStatusDelivered MessageStatus = "delivered"
	MessageStatusFailed    MessageStatus = "failed"
	// MessageStatusReceived marks inbound entries, which have no delivery cycle.
	MessageStatusReceived MessageStatus = "received"
)

// MaxMessageLogEntries bounds the per-conversation message log. Older entries
// are dropped first.
const MaxMessageLogEntries = 200

// MessageEntry is one line of a conversation's message log.
type MessageEntry struct {
	ID        string           `json:"id"`
	Direction MessageDirection `json:"direction"`
	Text      string           `json:"text"`
	Timestamp time.Time        `json:"timestamp"`
	Status    MessageStatus    `json:"status"`
}

// RegistrationFields holds partially collected registration input.
type RegistrationFields struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Class string `json:"class,omitempty"`
}

// HomeworkFields holds partially collected homework submission input.
type HomeworkFields struct {
	Subject  string `json:"subject,omitempty"`
	Kind     string `json:"kind,omitempty"` // "text" or "image"
	Content  string `json:"content,omitempty"`
	MediaRef string `json:"media_ref,omitempty"`
}

// ConversationRecord is the per-identity mutable conversation state. Records
// are created lazily on first contact and never explicitly destroyed; the
// store's idle TTL policy bounds their lifetime.
type ConversationRecord struct {
	Identity      string             `json:"identity"`
	State         ConversationState  `json:"state"`
	Registration  RegistrationFields `json:"registration"`
	Homework      HomeworkFields     `json:"homework"`
	MenuMode      string             `json:"menu_mode,omitempty"`
	LiveChat      bool               `json:"live_chat"`
	ChatStartedAt *time.Time         `json:"chat_started_at,omitempty"`
	Registered    bool               `json:"registered"`
	MessageLog    []MessageEntry     `json:"message_log,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

// NewConversationRecord creates a fresh record in the initial state.
func NewConversationRecord(identity string) *ConversationRecord {
	now := time.Now()
	return &ConversationRecord{
		Identity:  identity,
		State:     StateInitial,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendLog appends an entry to the message log, dropping the oldest entries
// once the bound is exceeded.
func (r *ConversationRecord) AppendLog(entry MessageEntry) {
	r.MessageLog = append(r.MessageLog, entry)
	if len(r.MessageLog) > MaxMessageLogEntries {
		r.MessageLog = r.MessageLog[len(r.MessageLog)-MaxMessageLogEntries:]
	}
}

// ClearFlows resets all collected flow fields without touching the message log.
func (r *ConversationRecord) ClearFlows() {
	r.Registration = RegistrationFields{}
	r.Homework = HomeworkFields{}
	r.MenuMode = ""
}

// HomeState returns the state a conversation should settle in when no flow is
// active: REGISTERED for known students, IDLE otherwise.
func (r *ConversationRecord) HomeState() ConversationState {
	if r.Registered {
		return StateRegistered
	}
	return StateIdle
}

// Error variables shared across modules.
var (
	ErrEmptyIdentity = errors.New("identity cannot be empty")
	ErrNotInLiveChat = errors.New("conversation is not in live chat")
	ErrEmptyText     = errors.New("text cannot be empty")
)
