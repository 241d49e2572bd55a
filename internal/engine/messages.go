package engine

import "github.com/BTreeMap/StudyLine/internal/models"

// Menu sub-modes stored on the record.
const (
	menuModeFAQ      = "faq_menu"
	menuModeHomework = "homework_menu"
)

// User-facing copy. Formatting verbs are filled by the flow handlers.
const (
	msgAskName       = "Welcome to StudyLine! 🎓 Let's get you registered. What's your full name?"
	msgAskEmail      = "Nice to meet you, %s! What's your email address?"
	msgAskEmailAgain = "That doesn't look like an email address. Please send your email (e.g. jane@example.com)."
	msgAskClass      = "Almost done! Which class or grade are you in?"
	msgRegistered    = "You're all set, %s! We've registered you for %s. What would you like to do next?"

	msgAlreadyRegistered = "Welcome back, %s! You're already registered. What would you like to do?"

	msgAskSubject           = "📚 Which subject is this homework for?"
	msgAskHomeworkType      = "Got it, %s. How would you like to submit your homework?"
	msgAskHomeworkTypeAgain = "Please choose how you'd like to submit: as text or as an image."
	msgAskHomeworkText      = "Go ahead and type your homework answer now."
	msgAskHomeworkImage     = "Please send a photo of your homework now."
	msgHomeworkSubmitted    = "✅ Your %s homework has been submitted! Reference: %s"

	msgPaymentPrompt    = "💳 The monthly subscription is $%.2f. Would you like to proceed?"
	msgPaymentLink      = "Here's your payment link: %s\n\nComplete the payment there and you'll be confirmed automatically."
	msgPaymentCancelled = "No problem, the payment was cancelled. You can pick it up again anytime."

	msgLiveChatWelcome   = "🧑‍💻 You're connected to our support team. Type your messages and an agent will reply here. Tap End Chat when you're done."
	msgLiveChatForwarded = "Your message has been forwarded to our support team."
	msgLiveChatClosed    = "The support chat has ended. Thanks for reaching out!"

	msgConversationReset = "Okay, we've reset the conversation. Say hi whenever you're ready to start again."
	msgDidNotUnderstand  = "Sorry, I didn't understand that. Here are your options:"
	msgHelp              = "Here's what I can help with. Pick an option or just type it out:"

	msgStatusUnregistered = "You're not registered yet. Tap Register to get started!"
	msgStatusRegistered   = "You're registered and good to go."
	msgStatusDetail       = "You're registered as %s (%s). Everything looks good!"

	msgCollaboratorApology = "Sorry, something went wrong on our side. Please try that again in a moment."
)

// mainMenuButtons is the settled-state menu. WhatsApp interactive messages
// carry at most three buttons, so the menu adapts to registration status.
func mainMenuButtons(r *models.ConversationRecord) []models.ButtonSpec {
	if !r.Registered {
		return []models.ButtonSpec{
			{ID: "btn_register", Label: "Register"},
			{ID: "btn_homework", Label: "Homework"},
			{ID: "btn_support", Label: "Support"},
		}
	}
	return []models.ButtonSpec{
		{ID: "btn_homework", Label: "Homework"},
		{ID: "btn_pay", Label: "Pay"},
		{ID: "btn_support", Label: "Support"},
	}
}

func faqMenuButtons() []models.ButtonSpec {
	return []models.ButtonSpec{
		{ID: "btn_status", Label: "Check status"},
		{ID: "btn_homework", Label: "Homework"},
		{ID: "btn_support", Label: "Talk to someone"},
	}
}

func homeworkTypeButtons() []models.ButtonSpec {
	return []models.ButtonSpec{
		{ID: "text_submission", Label: "Type it out"},
		{ID: "image_submission", Label: "Send a photo"},
		{ID: "btn_cancel", Label: "Cancel"},
	}
}

func paymentButtons() []models.ButtonSpec {
	return []models.ButtonSpec{
		{ID: "btn_confirm", Label: "Confirm"},
		{ID: "btn_cancel", Label: "Cancel"},
	}
}

func chatButtons() []models.ButtonSpec {
	return []models.ButtonSpec{
		{ID: "btn_end_chat", Label: "End Chat"},
	}
}
