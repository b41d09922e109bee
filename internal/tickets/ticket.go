// Package tickets implements the client-side ticket board core: the
// three-bucket store with its edit cache, the fetch synchronizer and
// the drag/drop triage controller.
package tickets

import (
	"time"

	"github.com/goatkit/goatdesk/internal/utils"
)

// Bucket is one of the three board columns.
type Bucket string

const (
	BucketInbound Bucket = "inbound"
	BucketMine    Bucket = "mine"
	BucketDone    Bucket = "done"
)

// Valid reports whether b names a real bucket.
func (b Bucket) Valid() bool {
	return b == BucketInbound || b == BucketMine || b == BucketDone
}

// Ticket is one board card. The id equals the chat token of the
// originating session: one ticket per chat. Bucket assignment and the
// triage note live only on this client; the server always reports
// tickets as inbound candidates.
type Ticket struct {
	ID        string
	Sender    string
	FormType  string
	Message   string
	Timestamp time.Time

	Content      string // staff triage note
	Bucket       Bucket
	LastModified time.Time
	MovedAt      time.Time
}

// DefaultContent derives the initial triage note from the submission.
func (t Ticket) DefaultContent() string {
	return t.Sender + " - " + t.FormType
}

// SortKey is LastModified when the card has been touched, otherwise
// the submission timestamp.
func (t Ticket) SortKey() time.Time {
	if !t.LastModified.IsZero() {
		return t.LastModified
	}
	return t.Timestamp
}

// wireTicket is the raw record the tickets endpoint returns.
type wireTicket struct {
	ChatToken string `json:"chatToken"`
	Sender    string `json:"sender"`
	FormType  string `json:"formType"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

func (w wireTicket) toTicket() (Ticket, bool) {
	if w.ChatToken == "" {
		return Ticket{}, false
	}
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return Ticket{}, false
	}
	t := Ticket{
		ID:        w.ChatToken,
		Sender:    w.Sender,
		FormType:  w.FormType,
		Message:   utils.SanitizeMessage(w.Message),
		Timestamp: ts,
		Bucket:    BucketInbound,
	}
	t.Content = t.DefaultContent()
	return t, true
}

// decodeTickets converts a wire batch, dropping malformed records.
func decodeTickets(wire []wireTicket) []Ticket {
	out := make([]Ticket, 0, len(wire))
	for _, w := range wire {
		if t, ok := w.toTicket(); ok {
			out = append(out, t)
		}
	}
	return out
}
