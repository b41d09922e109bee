package tickets

import (
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/goatkit/goatdesk/internal/gateway"
)

// fakeTicketServer serves the tickets endpoint with controllable
// failures, auth denial and response delay.
type fakeTicketServer struct {
	mu         sync.Mutex
	tickets    []map[string]any
	nextSeq    int
	fetchCount int
	failNext   int
	forbid     bool
	delay      time.Duration

	srv *httptest.Server
}

func newFakeTicketServer(t *testing.T) *fakeTicketServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fakeTicketServer{nextSeq: 1}
	router := gin.New()
	router.GET("/api/tickets", f.handleFetch)
	f.srv = httptest.NewServer(router)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeTicketServer) handleFetch(c *gin.Context) {
	f.mu.Lock()
	f.fetchCount++
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		c.Status(http.StatusInternalServerError)
		return
	}
	if f.forbid {
		f.mu.Unlock()
		c.Status(http.StatusForbidden)
		return
	}
	delay := f.delay
	since := c.Query("since")
	out := make([]map[string]any, 0)
	for _, tk := range f.tickets {
		if since == "" || tk["timestamp"].(string) > since {
			out = append(out, tk)
		}
	}
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-c.Request.Context().Done():
			return
		case <-time.After(delay):
		}
	}
	c.JSON(http.StatusOK, out)
}

func (f *fakeTicketServer) add(token, sender, formType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC).
		Add(time.Duration(f.nextSeq) * time.Second).
		Format(time.RFC3339)
	f.tickets = append(f.tickets, map[string]any{
		"chatToken": token,
		"sender":    sender,
		"formType":  formType,
		"message":   "behöver hjälp",
		"timestamp": ts,
	})
	f.nextSeq++
}

func (f *fakeTicketServer) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetchCount
}

func quietSyncLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

func TestIntervalModeFetchesImmediatelyAndOnTicks(t *testing.T) {
	f := newFakeTicketServer(t)
	f.add("tok1", "Anna", "tele")

	store := NewStore()
	s := NewSynchronizer(
		gateway.NewClient(f.srv.URL), store,
		WithSyncLogger(quietSyncLogger()),
		WithInterval(30*time.Millisecond),
	)
	s.Start()
	defer s.Stop()

	waitUntil(t, time.Second, func() bool {
		return store.Snapshot().Total() == 1
	}, "immediate fetch did not populate the board")

	f.add("tok2", "Björn", "fordon")
	waitUntil(t, time.Second, func() bool {
		return store.Snapshot().Total() == 2
	}, "periodic tick did not pick up new ticket")

	if s.State() != SyncActive {
		t.Fatalf("expected active, got %s", s.State())
	}
}

func TestIntervalModeRetriesWithBackoff(t *testing.T) {
	f := newFakeTicketServer(t)
	f.add("tok1", "Anna", "tele")
	f.mu.Lock()
	f.failNext = 2
	f.mu.Unlock()

	store := NewStore()
	s := NewSynchronizer(
		gateway.NewClient(f.srv.URL), store,
		WithSyncLogger(quietSyncLogger()),
		WithInterval(time.Hour), // only the backoff retry can recover
		WithBackoff(Backoff{Base: 20 * time.Millisecond, Multiplier: 1.5, Cap: 100 * time.Millisecond}),
	)
	s.Start()
	defer s.Stop()

	waitUntil(t, time.Second, func() bool { return s.LastError() != nil }, "failure not surfaced")

	waitUntil(t, 2*time.Second, func() bool {
		return store.Snapshot().Total() == 1 && s.LastError() == nil
	}, "backoff retry did not recover")
}

func TestForbiddenPausesPollingUntilResume(t *testing.T) {
	f := newFakeTicketServer(t)
	f.add("tok1", "Anna", "tele")
	f.mu.Lock()
	f.forbid = true
	f.mu.Unlock()

	store := NewStore()
	s := NewSynchronizer(
		gateway.NewClient(f.srv.URL), store,
		WithSyncLogger(quietSyncLogger()),
		WithInterval(20*time.Millisecond),
	)
	s.Start()
	defer s.Stop()

	waitUntil(t, time.Second, func() bool { return s.State() == SyncAuthError }, "403 not surfaced")

	if !errors.Is(s.LastError(), ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", s.LastError())
	}
	if store.Snapshot().Total() != 0 {
		t.Fatal("board mutated by denied fetch")
	}

	// No automatic retry: request count settles while paused.
	time.Sleep(60 * time.Millisecond)
	before := f.fetches()
	time.Sleep(100 * time.Millisecond)
	if after := f.fetches(); after != before {
		t.Fatalf("fetches continued while auth-denied: %d -> %d", before, after)
	}

	f.mu.Lock()
	f.forbid = false
	f.mu.Unlock()
	s.Resume()

	waitUntil(t, time.Second, func() bool {
		return store.Snapshot().Total() == 1 && s.State() == SyncActive
	}, "resume did not restart fetching")
}

func TestOnlyOneFetchInFlight(t *testing.T) {
	var mu sync.Mutex
	concurrent, maxConcurrent := 0, 0
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/tickets", func(c *gin.Context) {
		mu.Lock()
		concurrent++
		if concurrent > maxConcurrent {
			maxConcurrent = concurrent
		}
		mu.Unlock()
		time.Sleep(60 * time.Millisecond)
		mu.Lock()
		concurrent--
		mu.Unlock()
		c.JSON(http.StatusOK, []any{})
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	s := NewSynchronizer(
		gateway.NewClient(srv.URL), NewStore(),
		WithSyncLogger(quietSyncLogger()),
		// Ticks far faster than the server responds.
		WithInterval(5*time.Millisecond),
	)
	s.Start()
	defer s.Stop()

	time.Sleep(300 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if maxConcurrent > 1 {
		t.Fatalf("reentrancy guard failed: %d concurrent fetches", maxConcurrent)
	}
}

func TestLongPollModeAdvancesCursor(t *testing.T) {
	f := newFakeTicketServer(t)
	f.add("tok1", "Anna", "tele")

	store := NewStore()
	s := NewSynchronizer(
		gateway.NewClient(f.srv.URL), store,
		WithSyncLogger(quietSyncLogger()),
		WithMode(ModeLongPoll),
		WithPollTimeouts(30*time.Millisecond, 200*time.Millisecond),
	)
	s.Start()
	defer s.Stop()

	waitUntil(t, time.Second, func() bool {
		return store.Snapshot().Total() == 1
	}, "first poll did not deliver")

	f.add("tok2", "Björn", "fordon")
	waitUntil(t, time.Second, func() bool {
		return store.Snapshot().Total() == 2
	}, "re-poll did not deliver new ticket")

	// The cursor must move: deliveries keep flowing and the board
	// never duplicates on heavy re-polling.
	time.Sleep(150 * time.Millisecond)
	if got := store.Snapshot().Total(); got != 2 {
		t.Fatalf("board duplicated under long poll: %d", got)
	}
}

func TestLongPollModeBacksOffOnErrors(t *testing.T) {
	f := newFakeTicketServer(t)
	f.add("tok1", "Anna", "tele")
	f.mu.Lock()
	f.failNext = 3
	f.mu.Unlock()

	store := NewStore()
	s := NewSynchronizer(
		gateway.NewClient(f.srv.URL), store,
		WithSyncLogger(quietSyncLogger()),
		WithMode(ModeLongPoll),
		WithPollTimeouts(20*time.Millisecond, 100*time.Millisecond),
		WithBackoff(Backoff{Base: 10 * time.Millisecond, Multiplier: 2.5, Cap: 30 * time.Millisecond}),
	)
	s.Start()
	defer s.Stop()

	waitUntil(t, 2*time.Second, func() bool {
		return store.Snapshot().Total() == 1
	}, "long poll did not recover from transient errors")
}

func TestStopCancelsOutstandingWork(t *testing.T) {
	f := newFakeTicketServer(t)
	f.mu.Lock()
	f.delay = 200 * time.Millisecond
	f.mu.Unlock()

	store := NewStore()
	s := NewSynchronizer(
		gateway.NewClient(f.srv.URL), store,
		WithSyncLogger(quietSyncLogger()),
		WithInterval(20*time.Millisecond),
	)
	s.Start()
	waitUntil(t, time.Second, func() bool { return f.fetches() > 0 }, "no fetch issued")

	s.Stop()
	if s.State() != SyncStopped {
		t.Fatalf("expected stopped, got %s", s.State())
	}

	time.Sleep(250 * time.Millisecond)
	before := f.fetches()
	time.Sleep(150 * time.Millisecond)
	if after := f.fetches(); after != before {
		t.Fatalf("fetches continued after stop: %d -> %d", before, after)
	}
}

func TestBackoffDelayParameters(t *testing.T) {
	b := Backoff{Base: 2 * time.Second, Multiplier: 1.5, Cap: 20 * time.Second}

	cases := []struct {
		n    int
		want time.Duration
	}{
		{1, 2 * time.Second},
		{2, 3 * time.Second},
		{3, 4500 * time.Millisecond},
		{10, 20 * time.Second}, // capped
		{0, 2 * time.Second},   // clamped to first tier
	}
	for _, tc := range cases {
		if got := b.Delay(tc.n); got != tc.want {
			t.Fatalf("Delay(%d) = %v, want %v", tc.n, got, tc.want)
		}
	}
}
