package chat

import (
	"sort"
	"sync"
	"time"
)

// MessageStore holds the ordered transcript for a single chat session.
// It deduplicates by server id, carries optimistic (pending) entries
// and supersedes them when the server copy of the same message shows
// up in a poll batch. The owning synchronizer is the only writer; the
// UI reads snapshots.
type MessageStore struct {
	mu      sync.Mutex
	entries []storeEntry
	seen    map[string]struct{} // confirmed server ids
	nextSeq int
}

// storeEntry keeps the insertion sequence so timestamp ties display in
// arrival order.
type storeEntry struct {
	msg ChatMessage
	seq int
}

// NewMessageStore creates an empty store.
func NewMessageStore() *MessageStore {
	return &MessageStore{
		seen: make(map[string]struct{}),
	}
}

// MergeIncoming folds a server batch into the store. Messages whose id
// is already present are dropped. A pending entry is removed when the
// batch contains a confirmed message with the same sender and text:
// that is our own optimistic echo coming back from the server. Returns
// the updated ordered transcript.
func (s *MessageStore) MergeIncoming(batch []ChatMessage) []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(batch) > 0 {
		s.dropSupersededLocked(batch)
	}

	for _, msg := range batch {
		if msg.ID.Pending() || msg.ID.Zero() {
			continue
		}
		if _, dup := s.seen[msg.ID.String()]; dup {
			continue
		}
		s.seen[msg.ID.String()] = struct{}{}
		s.appendLocked(msg)
	}

	return s.snapshotLocked()
}

// dropSupersededLocked removes pending entries matched by a confirmed
// message in the batch. One batch entry supersedes at most one pending
// entry, so two identical sends are not both collapsed by one echo.
func (s *MessageStore) dropSupersededLocked(batch []ChatMessage) {
	type key struct{ sender, message string }
	confirmed := make(map[key]int)
	for _, msg := range batch {
		if !msg.ID.Pending() && !msg.ID.Zero() {
			confirmed[key{msg.Sender, msg.Message}]++
		}
	}

	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.msg.ID.Pending() {
			k := key{e.msg.Sender, e.msg.Message}
			if confirmed[k] > 0 {
				confirmed[k]--
				continue
			}
		}
		kept = append(kept, e)
	}
	s.entries = kept
}

// AppendOptimistic inserts a pending entry for instant feedback and
// returns its id so the caller can reconcile or roll back later. The
// provisional timestamp is the caller's clock; the server copy
// replaces it on confirmation.
func (s *MessageStore) AppendOptimistic(msg ChatMessage) MessageID {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg.ID = NewPendingID()
	s.appendLocked(msg)
	return msg.ID
}

// Reconcile swaps the pending entry for the server-confirmed message.
// If the pending entry is already gone (superseded by a concurrent
// merge) this is a no-op; if the confirmed id is already in the store
// the pending entry is simply dropped.
func (s *MessageStore) Reconcile(pendingID MessageID, confirmed ChatMessage) {
	if !pendingID.Pending() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.findPendingLocked(pendingID)
	if idx < 0 {
		return
	}

	if _, dup := s.seen[confirmed.ID.String()]; dup || confirmed.ID.Pending() || confirmed.ID.Zero() {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
		return
	}

	s.seen[confirmed.ID.String()] = struct{}{}
	s.entries[idx].msg = confirmed
}

// Remove deletes a pending entry, used to roll back a failed send.
// Idempotent.
func (s *MessageStore) Remove(pendingID MessageID) {
	if !pendingID.Pending() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.findPendingLocked(pendingID); idx >= 0 {
		s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	}
}

// Snapshot returns a copy of the transcript ordered by timestamp
// ascending, insertion order breaking ties.
func (s *MessageStore) Snapshot() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Len returns the number of entries, pending included.
func (s *MessageStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// LastTimestamp returns the newest confirmed timestamp, used as the
// "since" cursor for the next poll. Zero time when nothing confirmed
// has arrived yet.
func (s *MessageStore) LastTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last time.Time
	for _, e := range s.entries {
		if e.msg.ID.Pending() {
			continue
		}
		if e.msg.Timestamp.After(last) {
			last = e.msg.Timestamp
		}
	}
	return last
}

func (s *MessageStore) appendLocked(msg ChatMessage) {
	s.entries = append(s.entries, storeEntry{msg: msg, seq: s.nextSeq})
	s.nextSeq++
}

func (s *MessageStore) findPendingLocked(id MessageID) int {
	for i, e := range s.entries {
		if e.msg.ID == id {
			return i
		}
	}
	return -1
}

func (s *MessageStore) snapshotLocked() []ChatMessage {
	ordered := make([]storeEntry, len(s.entries))
	copy(ordered, s.entries)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].msg.Timestamp.Equal(ordered[j].msg.Timestamp) {
			return ordered[i].seq < ordered[j].seq
		}
		return ordered[i].msg.Timestamp.Before(ordered[j].msg.Timestamp)
	})

	out := make([]ChatMessage, len(ordered))
	for i, e := range ordered {
		out[i] = e.msg
	}
	return out
}
