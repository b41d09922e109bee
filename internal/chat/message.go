// Package chat implements the client-side chat session core: the
// message store, the per-session synchronizer and the wire types they
// exchange with the support desk API.
package chat

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/goatkit/goatdesk/internal/utils"
)

// MessageID identifies a chat message. A confirmed id was assigned by
// the server; a pending id is local to this client and only exists
// until the optimistic entry is reconciled or rolled back. The two are
// separate fields rather than a prefixed string so reconciliation keys
// off the tag, not string sniffing.
type MessageID struct {
	server string
	local  string
}

// ConfirmedID wraps a server-assigned identifier.
func ConfirmedID(serverID string) MessageID {
	return MessageID{server: serverID}
}

// NewPendingID allocates a fresh local identifier for an optimistic entry.
func NewPendingID() MessageID {
	return MessageID{local: uuid.NewString()}
}

// Pending reports whether the id is a local optimistic one.
func (id MessageID) Pending() bool {
	return id.server == "" && id.local != ""
}

// Zero reports whether the id is unset.
func (id MessageID) Zero() bool {
	return id.server == "" && id.local == ""
}

func (id MessageID) String() string {
	if id.Pending() {
		return "pending:" + id.local
	}
	return id.server
}

// SessionStatus is the lifecycle state of a chat session.
type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionEnded  SessionStatus = "ended"
)

// ChatSession is the metadata for one chat, keyed by its token.
type ChatSession struct {
	ChatToken string
	OwnerName string
	FormType  string
	Status    SessionStatus
}

// ChatMessage is one entry in a chat transcript.
type ChatMessage struct {
	ID        MessageID
	ChatToken string
	Sender    string
	Message   string
	Timestamp time.Time
}

// wireMessage is the JSON shape the API uses. Ids arrive as strings or
// numbers depending on the storage backend, so they are decoded via
// json.Number and normalized to a string.
type wireMessage struct {
	ID        json.Number `json:"id"`
	ChatToken string      `json:"chatToken"`
	Sender    string      `json:"sender"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
}

func (w wireMessage) toMessage() (ChatMessage, error) {
	ts, err := time.Parse(time.RFC3339, w.Timestamp)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("failed to parse message timestamp %q: %w", w.Timestamp, err)
	}
	return ChatMessage{
		ID:        ConfirmedID(w.ID.String()),
		ChatToken: w.ChatToken,
		Sender:    w.Sender,
		Message:   utils.SanitizeMessage(w.Message),
		Timestamp: ts,
	}, nil
}

// decodeMessages converts a wire batch, dropping entries with missing
// ids or unparseable timestamps rather than failing the whole batch.
func decodeMessages(wire []wireMessage) []ChatMessage {
	out := make([]ChatMessage, 0, len(wire))
	for _, w := range wire {
		if w.ID.String() == "" {
			continue
		}
		msg, err := w.toMessage()
		if err != nil {
			continue
		}
		out = append(out, msg)
	}
	return out
}

// wireSession is the JSON shape of the session metadata endpoint.
type wireSession struct {
	ChatToken string `json:"chatToken"`
	OwnerName string `json:"ownerName"`
	FormType  string `json:"formType"`
	Status    string `json:"status"`
}

func (w wireSession) toSession() ChatSession {
	status := SessionStatus(w.Status)
	if status != SessionEnded {
		status = SessionActive
	}
	return ChatSession{
		ChatToken: w.ChatToken,
		OwnerName: w.OwnerName,
		FormType:  w.FormType,
		Status:    status,
	}
}
