package gateway

import (
	"strings"

	"github.com/elee1766/servoskull/src/session"
)

const (
	historyHeader = "\n\nConversation history:\n"
	imageMarker   = "[image attached]"
)

// FormatHistory renders turns as "role: content" lines, oldest first.
func FormatHistory(turns []session.Turn) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Role))
		b.WriteString(": ")
		b.WriteString(t.Content)
		if t.HasImage() {
			b.WriteByte(' ')
			b.WriteString(imageMarker)
		}
	}
	return b.String()
}

// BuildContext prefixes the serialized history with the system prompt. With
// no history the system prompt is returned as is.
func BuildContext(systemPrompt string, history []session.Turn) string {
	if len(history) == 0 {
		return systemPrompt
	}
	return systemPrompt + historyHeader + FormatHistory(history)
}
