// Package render formats store snapshots as plain text for the CLI.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/xeonx/timeago"

	"github.com/goatkit/goatdesk/internal/chat"
	"github.com/goatkit/goatdesk/internal/tickets"
)

// Transcript renders a chat transcript, oldest first. Pending entries
// are marked so the user can tell an unconfirmed send apart.
func Transcript(msgs []chat.ChatMessage) string {
	if len(msgs) == 0 {
		return "no messages yet\n"
	}

	var b strings.Builder
	for _, m := range msgs {
		marker := ""
		if m.ID.Pending() {
			marker = " (sending...)"
		}
		fmt.Fprintf(&b, "[%s] %s: %s%s\n",
			m.Timestamp.Local().Format("15:04:05"), m.Sender, m.Message, marker)
	}
	return b.String()
}

// Board renders the three kanban columns with relative ages.
func Board(snap tickets.Snapshot) string {
	var b strings.Builder
	writeColumn(&b, "INBOUND", snap.Inbound)
	writeColumn(&b, "MINE", snap.Mine)
	writeColumn(&b, "DONE", snap.Done)
	return b.String()
}

func writeColumn(b *strings.Builder, title string, items []tickets.Ticket) {
	fmt.Fprintf(b, "%s (%d)\n", title, len(items))
	if len(items) == 0 {
		b.WriteString("  -\n")
		return
	}
	for _, t := range items {
		fmt.Fprintf(b, "  %-12s %-30s %s\n", t.ID, truncate(t.Content, 30), age(t.SortKey()))
	}
}

func age(ts time.Time) string {
	if ts.IsZero() {
		return ""
	}
	return timeago.English.Format(ts)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
