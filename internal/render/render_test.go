package render

import (
	"strings"
	"testing"
	"time"

	"github.com/goatkit/goatdesk/internal/chat"
	"github.com/goatkit/goatdesk/internal/tickets"
)

func TestTranscriptEmptyState(t *testing.T) {
	if got := Transcript(nil); !strings.Contains(got, "no messages yet") {
		t.Fatalf("missing empty state: %q", got)
	}
}

func TestTranscriptMarksPendingEntries(t *testing.T) {
	store := chat.NewMessageStore()
	store.MergeIncoming([]chat.ChatMessage{{
		ID:        chat.ConfirmedID("1"),
		Sender:    "Agent",
		Message:   "hej",
		Timestamp: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}})
	store.AppendOptimistic(chat.ChatMessage{Sender: "Anna", Message: "tack", Timestamp: time.Now()})

	out := Transcript(store.Snapshot())
	if !strings.Contains(out, "Agent: hej") {
		t.Fatalf("confirmed message missing: %q", out)
	}
	if !strings.Contains(out, "(sending...)") {
		t.Fatalf("pending marker missing: %q", out)
	}
}

func TestBoardShowsColumnsAndAges(t *testing.T) {
	store := tickets.NewStore()
	tk := tickets.Ticket{
		ID:        "tok1",
		Sender:    "Anna",
		FormType:  "tele",
		Message:   "hjälp",
		Timestamp: time.Now().Add(-2 * time.Minute),
		Bucket:    tickets.BucketInbound,
	}
	tk.Content = tk.DefaultContent()
	store.MergeFetched([]tickets.Ticket{tk})

	out := Board(store.Snapshot())
	for _, want := range []string{"INBOUND (1)", "MINE (0)", "DONE (0)", "tok1", "Anna - tele", "ago"} {
		if !strings.Contains(out, want) {
			t.Fatalf("board output missing %q:\n%s", want, out)
		}
	}
}

func TestBoardTruncatesLongContent(t *testing.T) {
	store := tickets.NewStore()
	tk := tickets.Ticket{
		ID:        "tok1",
		Sender:    "Anna",
		FormType:  "tele",
		Timestamp: time.Now(),
		Bucket:    tickets.BucketInbound,
		Content:   strings.Repeat("x", 80),
	}
	store.MergeFetched([]tickets.Ticket{tk})

	out := Board(store.Snapshot())
	if strings.Contains(out, strings.Repeat("x", 40)) {
		t.Fatalf("content not truncated:\n%s", out)
	}
	if !strings.Contains(out, "...") {
		t.Fatalf("missing ellipsis:\n%s", out)
	}
}
