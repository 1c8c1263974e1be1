package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"telegram-feedback-bot/internal/storage"
)

// api is the slice of *tgbotapi.BotAPI the dispatcher uses
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Store is the query/command surface the dispatcher needs from the feedback
// store. *storage.Store satisfies it.
type Store interface {
	AddGroup(ctx context.Context, groupID int64, name string) error
	IsGroupAuthorized(ctx context.Context, groupID int64) (bool, error)
	LogFeedback(ctx context.Context, f storage.Feedback) error
	FeedbackSince(ctx context.Context, groupID int64, days int) ([]storage.Feedback, error)
	UserFeedback(ctx context.Context, groupID int64, filter storage.UserFilter) ([]storage.Feedback, error)
	CountUniqueSenders(ctx context.Context, groupID int64, days int) (int, error)
	ClearFeedback(ctx context.Context) (int64, error)
	SetReminder(ctx context.Context, groupID int64, text string) error
	RemoveReminder(ctx context.Context, groupID int64) error
}

// Bot routes incoming Telegram updates to command handlers and the passive
// feedback listener
type Bot struct {
	logger *zap.SugaredLogger
	api    api
	store  Store
	gate   *Gate
	cfg    Config
}

func New(logger *zap.SugaredLogger, api api, store Store, cfg Config) *Bot {
	return &Bot{
		logger: logger,
		api:    api,
		store:  store,
		gate:   NewGate(logger, cfg.OwnerID, api),
		cfg:    cfg,
	}
}

// Run consumes updates until the channel closes or ctx is cancelled
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			b.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate dispatches a single update. A panic inside a handler is
// contained here so one bad update cannot take down the run loop.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Errorf("Update handler panicked: %v", r)
		}
	}()

	if update.CallbackQuery != nil {
		b.handleClearCallback(ctx, update.CallbackQuery)
		return
	}

	msg := update.Message
	if msg == nil || msg.From == nil || msg.Chat == nil {
		return
	}

	if msg.IsCommand() {
		b.dispatchCommand(ctx, msg)
		return
	}

	// Raw "/!" is not a valid Telegram command name, accept it as text.
	if isBangCheck(msg.Text) {
		b.handleCheck(ctx, msg, strings.TrimSpace(strings.TrimPrefix(msg.Text, "/!")))
		return
	}

	b.handleFeedback(ctx, msg)
}

func (b *Bot) dispatchCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.handleStart(ctx, msg)
	case "addgroup":
		b.handleAddGroup(ctx, msg)
	case "fb_stats":
		b.handleStats(ctx, msg)
	case "fb_user":
		b.handleUser(ctx, msg)
	case "check":
		b.handleCheck(ctx, msg, msg.CommandArguments())
	case "addreminder":
		b.handleAddReminder(ctx, msg)
	case "removereminder":
		b.handleRemoveReminder(ctx, msg)
	case "cleardb":
		b.handleClear(ctx, msg)
	}
}

func isBangCheck(text string) bool {
	return text == "/!" || strings.HasPrefix(text, "/! ")
}

func isGroupChat(msg *tgbotapi.Message) bool {
	return msg.Chat.IsGroup() || msg.Chat.IsSuperGroup()
}

// ensureAuthorizedGroup is the silent gate in front of every group-scoped
// operation: unauthorized chats see no reaction at all
func (b *Bot) ensureAuthorizedGroup(ctx context.Context, msg *tgbotapi.Message) bool {
	ok, err := b.store.IsGroupAuthorized(ctx, msg.Chat.ID)
	if err != nil {
		b.logger.Errorf("Group authorization check failed for chat %d: %v", msg.Chat.ID, err)
		return false
	}
	return ok
}

func (b *Bot) reply(msg *tgbotapi.Message, text string) {
	out := tgbotapi.NewMessage(msg.Chat.ID, text)
	out.ReplyToMessageID = msg.MessageID
	if _, err := b.api.Send(out); err != nil {
		b.logger.Warnf("Sending reply to chat %d failed: %v", msg.Chat.ID, err)
	}
}

// sendPaginated delivers a report as one message per chunk, in order, with
// HTML formatting and link previews disabled
func (b *Bot) sendPaginated(chatID int64, text string) {
	for _, chunk := range paginate(text) {
		out := tgbotapi.NewMessage(chatID, chunk)
		out.ParseMode = tgbotapi.ModeHTML
		out.DisableWebPagePreview = true
		if _, err := b.api.Send(out); err != nil {
			b.logger.Warnf("Sending report chunk to chat %d failed: %v", chatID, err)
			return
		}
	}
}
