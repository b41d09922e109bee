package tickets

import (
	"errors"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownTicket is returned by Move and Edit for an id that is
	// not on the board.
	ErrUnknownTicket = errors.New("tickets: unknown ticket")
	// ErrInvalidBucket is returned for bucket names outside the board.
	ErrInvalidBucket = errors.New("tickets: invalid bucket")
	// ErrWrongBucket is returned by Move when the ticket is not in the
	// claimed source bucket.
	ErrWrongBucket = errors.New("tickets: ticket not in source bucket")
)

// editEntry is the cached local state for one ticket: the triage note
// and when it changed. It outlives fetch refreshes so a server copy
// never clobbers staff edits.
type editEntry struct {
	content      string
	lastModified time.Time
}

// Store holds the board for one dashboard session. Tickets live in
// exactly one bucket; ids moved out of inbound never return there on a
// fetch merge. The owning synchronizer and the triage controller are
// the writers; the UI reads snapshots.
type Store struct {
	mu        sync.Mutex
	buckets   map[Bucket][]Ticket
	editCache map[string]editEntry
	now       func() time.Time
}

// NewStore creates an empty board.
func NewStore() *Store {
	return &Store{
		buckets: map[Bucket][]Ticket{
			BucketInbound: nil,
			BucketMine:    nil,
			BucketDone:    nil,
		},
		editCache: make(map[string]editEntry),
		now:       time.Now,
	}
}

// MergeFetched folds a server fetch into the board. New ids land in
// inbound; ids already triaged into mine or done are left untouched,
// and cached edits win over the server's content. Fetches never
// un-triage.
func (s *Store) MergeFetched(incoming []Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range incoming {
		if s.inBucketLocked(in.ID, BucketMine) || s.inBucketLocked(in.ID, BucketDone) {
			continue
		}

		in.Bucket = BucketInbound
		if in.Content == "" {
			in.Content = in.DefaultContent()
		}

		if idx := s.indexLocked(BucketInbound, in.ID); idx >= 0 {
			existing := s.buckets[BucketInbound][idx]
			// Refresh the snapshot fields, keep the local edit state.
			in.Content = existing.Content
			in.LastModified = existing.LastModified
			in.MovedAt = existing.MovedAt
			if cached, ok := s.editCache[in.ID]; ok {
				in.Content = cached.content
				in.LastModified = cached.lastModified
			}
			s.buckets[BucketInbound][idx] = in
			continue
		}

		if cached, ok := s.editCache[in.ID]; ok {
			in.Content = cached.content
			in.LastModified = cached.lastModified
		}
		s.buckets[BucketInbound] = append(s.buckets[BucketInbound], in)
	}
}

// Move relocates a ticket between buckets: removed from the source,
// prepended to the destination with a fresh MovedAt. Atomic with
// respect to the store.
func (s *Store) Move(id string, from, to Bucket) error {
	if !from.Valid() || !to.Valid() {
		return ErrInvalidBucket
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexLocked(from, id)
	if idx < 0 {
		if s.findLocked(id) == "" {
			return ErrUnknownTicket
		}
		return ErrWrongBucket
	}
	if from == to {
		return nil
	}

	t := s.buckets[from][idx]
	s.buckets[from] = append(s.buckets[from][:idx], s.buckets[from][idx+1:]...)

	now := s.now()
	t.Bucket = to
	t.MovedAt = now
	t.LastModified = now
	s.buckets[to] = append([]Ticket{t}, s.buckets[to]...)
	s.editCache[id] = editEntry{content: t.Content, lastModified: now}
	return nil
}

// Edit updates the triage note in place and in the edit cache.
func (s *Store) Edit(id, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.findLocked(id)
	if bucket == "" {
		return ErrUnknownTicket
	}

	idx := s.indexLocked(bucket, id)
	now := s.now()
	s.buckets[bucket][idx].Content = content
	s.buckets[bucket][idx].LastModified = now
	s.editCache[id] = editEntry{content: content, lastModified: now}
	return nil
}

// Find returns the ticket and its bucket.
func (s *Store) Find(id string) (Ticket, Bucket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket := s.findLocked(id)
	if bucket == "" {
		return Ticket{}, "", false
	}
	return s.buckets[bucket][s.indexLocked(bucket, id)], bucket, true
}

// Snapshot is a read-only copy of the board, each bucket sorted most
// recently modified first.
type Snapshot struct {
	Inbound []Ticket
	Mine    []Ticket
	Done    []Ticket
}

// Total returns the number of tickets on the board.
func (s Snapshot) Total() int {
	return len(s.Inbound) + len(s.Mine) + len(s.Done)
}

// Snapshot copies the board for rendering.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		Inbound: sortedCopyLocked(s.buckets[BucketInbound]),
		Mine:    sortedCopyLocked(s.buckets[BucketMine]),
		Done:    sortedCopyLocked(s.buckets[BucketDone]),
	}
}

// LastTimestamp returns the newest submission timestamp on the board,
// the since-cursor for long-poll fetches.
func (s *Store) LastTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	var last time.Time
	for _, bucket := range s.buckets {
		for _, t := range bucket {
			if t.Timestamp.After(last) {
				last = t.Timestamp
			}
		}
	}
	return last
}

func (s *Store) inBucketLocked(id string, b Bucket) bool {
	return s.indexLocked(b, id) >= 0
}

func (s *Store) indexLocked(b Bucket, id string) int {
	for i, t := range s.buckets[b] {
		if t.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) findLocked(id string) Bucket {
	for _, b := range []Bucket{BucketInbound, BucketMine, BucketDone} {
		if s.inBucketLocked(id, b) {
			return b
		}
	}
	return ""
}

func sortedCopyLocked(bucket []Ticket) []Ticket {
	out := make([]Ticket, len(bucket))
	copy(out, bucket)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SortKey().After(out[j].SortKey())
	})
	return out
}
