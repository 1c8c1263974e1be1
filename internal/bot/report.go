package bot

import (
	"fmt"
	"strings"

	"telegram-feedback-bot/internal/storage"
)

// messageCharBudget is the largest report chunk sent as a single Telegram
// message. Splitting is budget-driven, not entry-aware: a chunk may end in
// the middle of an entry.
const messageCharBudget = 4000

// paginate splits a report body into ordered chunks of at most
// messageCharBudget runes. Concatenating the chunks restores the input.
func paginate(text string) []string {
	runes := []rune(text)
	if len(runes) <= messageCharBudget {
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += messageCharBudget {
		end := start + messageCharBudget
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func handleOrDash(username string) string {
	if username == "" {
		return "-"
	}
	return "@" + username
}

func nameOrDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}

func linkOrDash(link string) string {
	if link == "" {
		return "-"
	}
	return link
}

func formatTS(f storage.Feedback) string {
	return f.TS.UTC().Format("2006-01-02 15:04") + " UTC"
}

// formatStatsReport renders the group-wide feedback report: header with the
// window and unique-sender count, then one numbered entry per event.
func formatStatsReport(days, uniqueSenders int, events []storage.Feedback) string {
	lines := []string{
		fmt.Sprintf("<b>📊 Feedback Report (Last %d days)</b>", days),
		fmt.Sprintf("<b>Total unique senders:</b> %d", uniqueSenders),
		"",
	}
	for i, f := range events {
		lines = append(lines, fmt.Sprintf("%d. <b>%s</b> (%s, ID: <code>%d</code>)\n   Date: %s\n   Link: %s",
			i+1, nameOrDash(f.DisplayName), handleOrDash(f.Username), f.UserID, formatTS(f), linkOrDash(f.MessageLink)))
	}
	return strings.Join(lines, "\n")
}

// formatUserReport renders a single actor's feedback history. The header
// identity comes from the newest event. days == 0 means no window was
// applied.
func formatUserReport(days int, events []storage.Feedback) string {
	head := events[0]
	window := ""
	if days > 0 {
		window = fmt.Sprintf(" — last %d days", days)
	}

	lines := []string{
		fmt.Sprintf("<b>📌 Feedback history for %s (%s, ID: <code>%d</code>)%s</b>",
			nameOrDash(head.DisplayName), handleOrDash(head.Username), head.UserID, window),
		"",
	}
	for i, f := range events {
		lines = append(lines, fmt.Sprintf("%d. Date: %s\n   Link: %s", i+1, formatTS(f), linkOrDash(f.MessageLink)))
	}
	return strings.Join(lines, "\n")
}
