package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// chatMemberGetter is the slice of the Telegram API the authorization gate
// needs. *tgbotapi.BotAPI satisfies it.
type chatMemberGetter interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
}

// Gate answers the two authorization questions: is this user the configured
// owner, and is this user allowed to run privileged group commands.
type Gate struct {
	logger  *zap.SugaredLogger
	ownerID int64
	members chatMemberGetter
}

func NewGate(logger *zap.SugaredLogger, ownerID int64, members chatMemberGetter) *Gate {
	return &Gate{
		logger:  logger,
		ownerID: ownerID,
		members: members,
	}
}

// IsOwner reports whether the user is the configured owner identity
func (g *Gate) IsOwner(userID int64) bool {
	return userID == g.ownerID
}

// IsAdminOrOwner reports whether the user may run privileged commands in the
// chat: the owner always may, everyone else needs administrator or creator
// membership status. A failed membership lookup counts as not authorized.
func (g *Gate) IsAdminOrOwner(chatID, userID int64) bool {
	if g.IsOwner(userID) {
		return true
	}

	member, err := g.members.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: chatID,
			UserID: userID,
		},
	})
	if err != nil {
		g.logger.Warnf("Admin check failed for user %d in chat %d: %v", userID, chatID, err)
		return false
	}

	return member.IsAdministrator() || member.IsCreator()
}
