package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"telegram-feedback-bot/internal/storage"
)

const (
	welcomeText         = "Welcome to the HIJI's Private Bot"
	groupNotAuthorized  = "🚫 This group is not authorized. Ask the owner to run /addgroup here."
	addGroupNotInGroup  = "❌ Run this inside a group you want to authorize."
	addGroupNotOwner    = "❌ Only the owner can authorize groups for this bot."
	addGroupDone        = "✅ This group has been authorized. Feedback tracking is now active."
	adminRequired       = "❌ You must be an admin to use this command."
	clearNotPermitted   = "❌ You don't have permission to use this command."
	statsUsage          = "Usage: /fb_stats [days]"
	userUsage           = "Usage: /fb_user <user_id|@username> [days]"
	invalidIdentifier   = "❌ Invalid identifier. Provide a numeric ID or @username."
	checkUsage          = "Usage: reply with /check (or type /check @username or user_id).\nTip: I also accept raw '/!' text."
	reminderUsage       = "Usage: /addreminder <text>"
	reminderRemoved     = "🗑 Reminder removed for this group."
	clearPrompt         = "⚠️ Are you sure you want to delete <b>all stored feedback data</b>? This action cannot be undone."
	clearDone           = "🗑 All feedback data has been cleared successfully."
	clearCancelled      = "❌ Operation cancelled."
	feedbackAck         = "✅ Thanks! Your feedback has been recorded."
	callbackNotAllowed  = "Not allowed."
	confirmClearAction  = "confirm_clear"
	cancelClearAction   = "cancel_clear"
	checkWindowDays     = 3
	defaultStatsDays    = 3
	maxStatsDays        = 90
	maxUserLookupDays   = 365
)

func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	if isGroupChat(msg) && !b.ensureAuthorizedGroup(ctx, msg) {
		b.reply(msg, groupNotAuthorized)
		return
	}
	b.reply(msg, welcomeText)
}

func (b *Bot) handleAddGroup(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroupChat(msg) {
		b.reply(msg, addGroupNotInGroup)
		return
	}
	if !b.gate.IsOwner(msg.From.ID) {
		b.reply(msg, addGroupNotOwner)
		return
	}

	if err := b.store.AddGroup(ctx, msg.Chat.ID, chatName(msg.Chat)); err != nil {
		b.logger.Errorf("Authorizing group %d failed: %v", msg.Chat.ID, err)
		return
	}
	b.reply(msg, addGroupDone)
}

func (b *Bot) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}
	if !b.gate.IsAdminOrOwner(msg.Chat.ID, msg.From.ID) {
		b.reply(msg, adminRequired)
		return
	}

	days := defaultStatsDays
	if args := strings.Fields(msg.CommandArguments()); len(args) > 0 {
		parsed, err := strconv.Atoi(args[0])
		if err != nil {
			b.reply(msg, statsUsage)
			return
		}
		days = clampDays(parsed, maxStatsDays)
	}

	events, err := b.store.FeedbackSince(ctx, msg.Chat.ID, days)
	if err != nil {
		b.logger.Errorf("Stats query failed for chat %d: %v", msg.Chat.ID, err)
		return
	}
	if len(events) == 0 {
		b.reply(msg, fmt.Sprintf("📊 No feedback found in the last %d days.", days))
		return
	}

	uniqueSenders, err := b.store.CountUniqueSenders(ctx, msg.Chat.ID, days)
	if err != nil {
		b.logger.Errorf("Unique-sender count failed for chat %d: %v", msg.Chat.ID, err)
		return
	}

	b.sendPaginated(msg.Chat.ID, formatStatsReport(days, uniqueSenders, events))
}

func (b *Bot) handleUser(ctx context.Context, msg *tgbotapi.Message) {
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}
	if !b.gate.IsAdminOrOwner(msg.Chat.ID, msg.From.ID) {
		b.reply(msg, adminRequired)
		return
	}

	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		b.reply(msg, userUsage)
		return
	}

	filter, who, ok := filterForTarget(args[0])
	if !ok {
		b.reply(msg, invalidIdentifier)
		return
	}

	days := 0
	if len(args) > 1 {
		parsed, err := strconv.Atoi(args[1])
		if err != nil {
			b.reply(msg, userUsage)
			return
		}
		days = clampDays(parsed, maxUserLookupDays)
		filter = filter.LastDays(days)
	}

	events, err := b.store.UserFeedback(ctx, msg.Chat.ID, filter)
	if err != nil {
		b.logger.Errorf("User feedback query failed for chat %d: %v", msg.Chat.ID, err)
		return
	}
	if len(events) == 0 {
		when := ""
		if days > 0 {
			when = fmt.Sprintf(" in the last %d days", days)
		}
		b.reply(msg, fmt.Sprintf("❌ No feedback found for %s%s.", who, when))
		return
	}

	b.sendPaginated(msg.Chat.ID, formatUserReport(0, events))
}

// handleCheck serves both /check and the raw /! alias. The target is
// resolved from the replied-to message, a mention entity, or the first
// argument, and the window is fixed at three days.
func (b *Bot) handleCheck(ctx context.Context, msg *tgbotapi.Message, rawArgs string) {
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}
	if !b.gate.IsAdminOrOwner(msg.Chat.ID, msg.From.ID) {
		b.reply(msg, adminRequired)
		return
	}

	filter, who, ok := b.resolveCheckTarget(msg, rawArgs)
	if !ok {
		b.reply(msg, checkUsage)
		return
	}

	events, err := b.store.UserFeedback(ctx, msg.Chat.ID, filter.LastDays(checkWindowDays))
	if err != nil {
		b.logger.Errorf("Check query failed for chat %d: %v", msg.Chat.ID, err)
		return
	}
	if len(events) == 0 {
		b.reply(msg, fmt.Sprintf("❌ No feedback was received from %s in the last %d days.", who, checkWindowDays))
		return
	}

	b.sendPaginated(msg.Chat.ID, formatUserReport(checkWindowDays, events))
}

func (b *Bot) resolveCheckTarget(msg *tgbotapi.Message, rawArgs string) (storage.UserFilter, string, bool) {
	if msg.ReplyToMessage != nil && msg.ReplyToMessage.From != nil {
		from := msg.ReplyToMessage.From
		return storage.ByUserID(from.ID), describeTarget(from.ID, from.UserName), true
	}

	for _, ent := range msg.Entities {
		if ent.Type == "mention" {
			username := strings.TrimPrefix(entityText(msg.Text, ent), "@")
			if username != "" {
				return storage.ByUsername(username), "@" + username, true
			}
		}
		if ent.Type == "text_mention" && ent.User != nil {
			return storage.ByUserID(ent.User.ID), describeTarget(ent.User.ID, ent.User.UserName), true
		}
	}

	if args := strings.Fields(rawArgs); len(args) > 0 {
		if filter, who, ok := filterForTarget(args[0]); ok {
			return filter, who, true
		}
	}

	return storage.UserFilter{}, "", false
}

func (b *Bot) handleAddReminder(ctx context.Context, msg *tgbotapi.Message) {
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}
	if !b.gate.IsAdminOrOwner(msg.Chat.ID, msg.From.ID) {
		b.reply(msg, adminRequired)
		return
	}

	text := strings.TrimSpace(msg.CommandArguments())
	if text == "" {
		b.reply(msg, reminderUsage)
		return
	}

	if err := b.store.SetReminder(ctx, msg.Chat.ID, text); err != nil {
		b.logger.Errorf("Saving reminder for chat %d failed: %v", msg.Chat.ID, err)
		return
	}
	b.reply(msg, fmt.Sprintf("✅ Reminder saved. I'll send it every %d minutes in this group.", b.cfg.ReminderIntervalMinutes))
}

func (b *Bot) handleRemoveReminder(ctx context.Context, msg *tgbotapi.Message) {
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}
	if !b.gate.IsAdminOrOwner(msg.Chat.ID, msg.From.ID) {
		b.reply(msg, adminRequired)
		return
	}

	if err := b.store.RemoveReminder(ctx, msg.Chat.ID); err != nil {
		b.logger.Errorf("Removing reminder for chat %d failed: %v", msg.Chat.ID, err)
		return
	}
	b.reply(msg, reminderRemoved)
}

// handleClear only asks for confirmation. The delete itself happens in
// handleClearCallback after the confirming user passes a fresh admin check.
func (b *Bot) handleClear(ctx context.Context, msg *tgbotapi.Message) {
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}
	if !b.gate.IsAdminOrOwner(msg.Chat.ID, msg.From.ID) {
		b.reply(msg, clearNotPermitted)
		return
	}

	out := tgbotapi.NewMessage(msg.Chat.ID, clearPrompt)
	out.ParseMode = tgbotapi.ModeHTML
	out.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Yes, clear everything", confirmClearAction),
			tgbotapi.NewInlineKeyboardButtonData("❌ Cancel", cancelClearAction),
		),
	)
	if _, err := b.api.Send(out); err != nil {
		b.logger.Warnf("Sending clear prompt to chat %d failed: %v", msg.Chat.ID, err)
	}
}

func (b *Bot) handleClearCallback(ctx context.Context, query *tgbotapi.CallbackQuery) {
	if query.Message == nil || query.Message.Chat == nil {
		return
	}
	if query.Data != confirmClearAction && query.Data != cancelClearAction {
		return
	}

	// The confirming tap may come from someone other than the prompt's
	// author, so authorization is checked again here.
	if !b.gate.IsAdminOrOwner(query.Message.Chat.ID, query.From.ID) {
		b.answerCallback(query.ID, callbackNotAllowed)
		return
	}

	result := clearCancelled
	if query.Data == confirmClearAction {
		if _, err := b.store.ClearFeedback(ctx); err != nil {
			b.logger.Errorf("Clearing feedback failed: %v", err)
			b.answerCallback(query.ID, "Clearing failed, try again.")
			return
		}
		result = clearDone
	}

	edit := tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, result)
	if _, err := b.api.Send(edit); err != nil {
		b.logger.Warnf("Editing clear prompt failed: %v", err)
	}
	b.answerCallback(query.ID, "")
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.logger.Warnf("Answering callback query failed: %v", err)
	}
}

// handleFeedback is the passive listener: every group message lands here and
// leaves silently unless it classifies as feedback
func (b *Bot) handleFeedback(ctx context.Context, msg *tgbotapi.Message) {
	if !isGroupChat(msg) {
		return
	}
	if !b.ensureAuthorizedGroup(ctx, msg) {
		return
	}

	evidence, ok := Classify(msg)
	if !ok {
		return
	}

	err := b.store.LogFeedback(ctx, storage.Feedback{
		UserID:      msg.From.ID,
		Username:    msg.From.UserName,
		DisplayName: displayName(msg.From),
		GroupID:     msg.Chat.ID,
		GroupName:   chatName(msg.Chat),
		MessageID:   int64(evidence.MessageID),
		MessageLink: BuildMessageLink(msg.Chat.UserName, msg.Chat.ID, evidence.MessageID),
		TS:          time.Now().UTC(),
	})
	if err != nil {
		b.logger.Errorf("Logging feedback in chat %d failed: %v", msg.Chat.ID, err)
		return
	}

	// ack failures are not worth more than a debug line
	out := tgbotapi.NewMessage(msg.Chat.ID, feedbackAck)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Debugf("Sending feedback ack to chat %d failed: %v", msg.Chat.ID, err)
	}
}

// filterForTarget interprets a raw target argument: @handle or numeric id
func filterForTarget(target string) (storage.UserFilter, string, bool) {
	if strings.HasPrefix(target, "@") {
		username := strings.TrimPrefix(target, "@")
		if username == "" {
			return storage.UserFilter{}, "", false
		}
		return storage.ByUsername(username), "@" + username, true
	}

	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return storage.UserFilter{}, "", false
	}
	return storage.ByUserID(id), fmt.Sprintf("ID %d", id), true
}

func describeTarget(id int64, username string) string {
	if username != "" {
		return "@" + username
	}
	return fmt.Sprintf("ID %d", id)
}

func clampDays(days, max int) int {
	if days < 1 {
		return 1
	}
	if days > max {
		return max
	}
	return days
}

func chatName(chat *tgbotapi.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.UserName != "" {
		return chat.UserName
	}
	return strconv.FormatInt(chat.ID, 10)
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(strings.TrimSpace(user.FirstName) + " " + strings.TrimSpace(user.LastName))
	if name == "" {
		return "-"
	}
	return name
}

// entityText extracts the substring an entity covers. Telegram counts
// offsets in UTF-16 code units.
func entityText(text string, ent tgbotapi.MessageEntity) string {
	encoded := utf16.Encode([]rune(text))
	if ent.Offset < 0 || ent.Length < 0 || ent.Offset+ent.Length > len(encoded) {
		return ""
	}
	return string(utf16.Decode(encoded[ent.Offset : ent.Offset+ent.Length]))
}
