package support

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

// The forwarded message's trailing "ID: <digits>" line is the only linkage
// between a user's message and the admin's reply. formatForward and
// extractRelayID are the single encode/decode pair for that wire format;
// changing one side breaks reply routing.

const unknownName = "Неизвестен"

var relayIDPattern = regexp.MustCompile(`ID: (\d+)`)

// formatForward renders a user's message for the admin, ending with the
// routing line the reply handler extracts the user id from.
func formatForward(from *models.User, chatID int64, text string) string {
	name := unknownName
	if from != nil && strings.TrimSpace(from.FirstName) != "" {
		name = strings.TrimSpace(from.FirstName)
	}

	var b strings.Builder
	b.WriteString("📩 Сообщение от ")
	b.WriteString(name)
	if from != nil && from.Username != "" {
		b.WriteString(" (@")
		b.WriteString(from.Username)
		b.WriteString(")")
	}
	b.WriteString("\n\n")
	b.WriteString(text)
	b.WriteString(fmt.Sprintf("\n\nID: %d", chatID))

	return b.String()
}

// extractRelayID pulls the target user id out of a previously forwarded
// message's text.
func extractRelayID(text string) (int64, bool) {
	match := relayIDPattern.FindStringSubmatch(text)
	if match == nil {
		return 0, false
	}

	id, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return 0, false
	}

	return id, true
}
