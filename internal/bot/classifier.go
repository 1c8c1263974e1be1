package bot

import (
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const feedbackTag = "#feedback"

// hasFeedbackTag reports whether the message text or caption carries the
// feedback hashtag, case-insensitively
func hasFeedbackTag(msg *tgbotapi.Message) bool {
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	return strings.Contains(strings.ToLower(text), feedbackTag)
}

// hasMedia reports whether the message carries a qualifying attachment
func hasMedia(msg *tgbotapi.Message) bool {
	return msg != nil && (len(msg.Photo) > 0 || msg.Video != nil || msg.Document != nil)
}

// Classify decides whether a message is a reportable feedback event and, if
// so, which message carries the evidence media: the message itself when it
// has an attachment, otherwise the message it replies to. Pure predicate; no
// authorization is consulted here.
func Classify(msg *tgbotapi.Message) (evidence *tgbotapi.Message, ok bool) {
	if msg == nil || !hasFeedbackTag(msg) {
		return nil, false
	}
	if hasMedia(msg) {
		return msg, true
	}
	if msg.ReplyToMessage != nil && hasMedia(msg.ReplyToMessage) {
		return msg.ReplyToMessage, true
	}
	return nil, false
}
