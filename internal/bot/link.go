package bot

import (
	"strconv"
	"strings"
)

// BuildMessageLink produces a t.me deep link for a message. Public chats link
// through their handle; private chats use the /c/ form with the -100
// supergroup prefix (or a bare leading minus) stripped from the chat id.
func BuildMessageLink(chatUsername string, chatID int64, messageID int) string {
	if chatUsername != "" {
		return "https://t.me/" + chatUsername + "/" + strconv.Itoa(messageID)
	}

	cid := strconv.FormatInt(chatID, 10)
	if strings.HasPrefix(cid, "-100") {
		cid = cid[4:]
	} else {
		cid = strings.TrimPrefix(cid, "-")
	}

	return "https://t.me/c/" + cid + "/" + strconv.Itoa(messageID)
}
