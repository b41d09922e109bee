package tickets

import (
	"context"
	"errors"
	"log"
	"math"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goatkit/goatdesk/internal/gateway"
)

// Mode selects the fetch cadence. Both modes share the merge logic and
// the backoff parameters; the cadence is an instantiation choice.
type Mode int

const (
	// ModeInterval fetches on a fixed ticker plus once immediately on
	// start.
	ModeInterval Mode = iota
	// ModeLongPoll holds a request open with a since-cursor and
	// re-polls immediately when data arrives.
	ModeLongPoll
)

// SyncState is the lifecycle state of a ticket synchronizer.
type SyncState int

const (
	SyncIdle SyncState = iota
	SyncLoading
	SyncActive
	SyncRetrying
	SyncAuthError
	SyncStopped
)

func (s SyncState) String() string {
	switch s {
	case SyncIdle:
		return "idle"
	case SyncLoading:
		return "loading"
	case SyncActive:
		return "active"
	case SyncRetrying:
		return "retrying"
	case SyncAuthError:
		return "auth-error"
	case SyncStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrAccessDenied is the board-level error surfaced on HTTP 403. It is
// not retried automatically; the operator logs back in and calls
// Resume.
var ErrAccessDenied = errors.New("Åtkomst nekad. Logga in och försök igen.")

// Backoff parameterizes retry delays: Base × Multiplier^(n-1), capped.
type Backoff struct {
	Base       time.Duration
	Multiplier float64
	Cap        time.Duration
}

// Delay returns the backoff for the nth consecutive failure (n >= 1).
func (b Backoff) Delay(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := time.Duration(float64(b.Base) * math.Pow(b.Multiplier, float64(n-1)))
	if b.Cap > 0 && d > b.Cap {
		d = b.Cap
	}
	return d
}

type syncOptions struct {
	Logger       *log.Logger
	Mode         Mode
	Interval     time.Duration // interval mode tick
	FetchTimeout time.Duration // interval mode per-request bound
	PollTimeout  time.Duration // long-poll server hold
	HardAbort    time.Duration // long-poll client force abort
	Backoff      Backoff
}

// SyncOption applies configuration to the synchronizer.
type SyncOption func(*syncOptions)

func defaultSyncOptions() syncOptions {
	return syncOptions{
		Logger:       log.Default(),
		Mode:         ModeInterval,
		Interval:     10 * time.Second,
		FetchTimeout: 15 * time.Second,
		PollTimeout:  30 * time.Second,
		HardAbort:    35 * time.Second,
		Backoff:      Backoff{Base: 2 * time.Second, Multiplier: 1.5, Cap: 20 * time.Second},
	}
}

// WithSyncLogger injects a custom logger implementation.
func WithSyncLogger(l *log.Logger) SyncOption {
	return func(o *syncOptions) {
		o.Logger = l
	}
}

// WithMode selects interval or long-poll cadence.
func WithMode(m Mode) SyncOption {
	return func(o *syncOptions) {
		o.Mode = m
	}
}

// WithInterval sets the interval mode tick.
func WithInterval(d time.Duration) SyncOption {
	return func(o *syncOptions) {
		o.Interval = d
	}
}

// WithFetchTimeout bounds a single interval mode fetch.
func WithFetchTimeout(d time.Duration) SyncOption {
	return func(o *syncOptions) {
		o.FetchTimeout = d
	}
}

// WithPollTimeouts sets the long-poll server hold and the client-side
// hard abort. The abort must exceed the hold.
func WithPollTimeouts(hold, abort time.Duration) SyncOption {
	return func(o *syncOptions) {
		o.PollTimeout = hold
		o.HardAbort = abort
	}
}

// WithBackoff replaces the retry backoff parameters.
func WithBackoff(b Backoff) SyncOption {
	return func(o *syncOptions) {
		o.Backoff = b
	}
}

// Synchronizer keeps a ticket board in step with the server. It owns
// the store's fetch-side mutations; triage moves and edits go through
// the store directly (same-process writers, one mutex).
type Synchronizer struct {
	gw      *gateway.Client
	store   *Store
	opts    syncOptions
	metrics *boardMetrics

	mu         sync.Mutex
	state      SyncState
	lastErr    error
	retries    int
	inFlight   bool
	generation int
	cancel     context.CancelFunc
	resume     chan struct{}
}

// NewSynchronizer creates a synchronizer bound to the given store.
func NewSynchronizer(gw *gateway.Client, store *Store, opts ...SyncOption) *Synchronizer {
	o := defaultSyncOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Synchronizer{
		gw:      gw,
		store:   store,
		opts:    o,
		metrics: globalBoardMetrics(),
		state:   SyncIdle,
		resume:  make(chan struct{}, 1),
	}
}

// Start launches the fetch loop. Idempotent: a running loop is
// restarted, invalidating its in-flight requests.
func (s *Synchronizer) Start() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.generation++
	gen := s.generation
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.state = SyncLoading
	s.lastErr = nil
	s.retries = 0
	s.mu.Unlock()

	switch s.opts.Mode {
	case ModeLongPoll:
		go s.longPollLoop(ctx, gen)
	default:
		go s.intervalLoop(ctx, gen)
	}
}

// Stop cancels the loop and all in-flight requests. Required on
// dashboard teardown; a leaked fetch or retry timer is a defect.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state = SyncStopped
}

// Resume re-enables fetching after an auth failure, once the caller
// has re-established a session. No-op in other states.
func (s *Synchronizer) Resume() {
	s.mu.Lock()
	if s.state != SyncAuthError {
		s.mu.Unlock()
		return
	}
	s.state = SyncLoading
	s.lastErr = nil
	s.retries = 0
	s.mu.Unlock()

	select {
	case s.resume <- struct{}{}:
	default:
	}
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the board-level error, nil when healthy.
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Store returns the board this synchronizer feeds.
func (s *Synchronizer) Store() *Store {
	return s.store
}

// intervalLoop fetches immediately, then on every tick. A failure
// schedules one backoff retry without stopping the ticker; ticks that
// land while a fetch is in flight are skipped.
func (s *Synchronizer) intervalLoop(ctx context.Context, gen int) {
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()

	var retryC <-chan time.Time
	s.fetchOnce(ctx, gen, &retryC)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.paused() {
				continue
			}
			s.fetchOnce(ctx, gen, &retryC)
		case <-retryC:
			retryC = nil
			if s.paused() {
				continue
			}
			s.fetchOnce(ctx, gen, &retryC)
		case <-s.resume:
			s.fetchOnce(ctx, gen, &retryC)
		}
	}
}

// fetchOnce runs one guarded fetch and arms the retry timer on
// failure.
func (s *Synchronizer) fetchOnce(ctx context.Context, gen int, retryC *<-chan time.Time) {
	if !s.beginFetch(gen) {
		return
	}
	err := s.fetch(ctx, gen, nil)
	s.endFetch(gen, err)

	if err != nil && !gateway.IsCancelled(err) && !errors.Is(err, ErrAccessDenied) {
		s.mu.Lock()
		n := s.retries
		s.mu.Unlock()
		delay := s.opts.Backoff.Delay(n)
		s.metrics.recordRetry()
		s.opts.Logger.Printf("ticket sync: fetch failed (%d consecutive), retrying in %s: %v", n, delay, err)
		*retryC = time.After(delay)
	}
}

// longPollLoop holds a since-cursor request open and re-polls
// immediately when it resolves with data. Errors back off per the
// configured tiers; 403 parks the loop until Resume.
func (s *Synchronizer) longPollLoop(ctx context.Context, gen int) {
	for {
		if ctx.Err() != nil || !s.current(gen) {
			return
		}
		if s.paused() {
			select {
			case <-ctx.Done():
				return
			case <-s.resume:
			}
			continue
		}

		q := url.Values{}
		if since := s.store.LastTimestamp(); !since.IsZero() {
			q.Set("since", since.UTC().Format(time.RFC3339))
		}
		q.Set("timeout", strconv.Itoa(int(s.opts.PollTimeout.Seconds())))

		if !s.beginFetch(gen) {
			return
		}
		err := s.fetch(ctx, gen, q)
		s.endFetch(gen, err)

		switch {
		case err == nil:
			continue
		case gateway.IsCancelled(err):
			return
		case errors.Is(err, ErrAccessDenied):
			continue
		default:
			s.mu.Lock()
			n := s.retries
			s.mu.Unlock()
			delay := s.opts.Backoff.Delay(n)
			s.metrics.recordRetry()
			s.opts.Logger.Printf("ticket sync: poll failed (%d consecutive), retrying in %s: %v", n, delay, err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}
	}
}

// fetch issues one tickets request and merges the result. The caller
// holds the in-flight guard.
func (s *Synchronizer) fetch(ctx context.Context, gen int, q url.Values) error {
	timeout := s.opts.FetchTimeout
	if q != nil {
		timeout = s.opts.HardAbort
	}

	s.metrics.recordFetch()
	resp, err := s.gw.Get(ctx, "/api/tickets", q, timeout)
	if err != nil {
		if gateway.IsForbidden(err) {
			return ErrAccessDenied
		}
		return err
	}

	var wire []wireTicket
	if err := resp.Decode(&wire); err != nil {
		return err
	}

	if !s.current(gen) {
		return nil
	}
	batch := decodeTickets(wire)
	s.store.MergeFetched(batch)
	s.metrics.recordMerged(len(batch))
	s.metrics.recordBoard(s.store.Snapshot())
	return nil
}

// beginFetch takes the reentrancy guard. Only one fetch is outstanding
// per synchronizer; overlapping triggers are dropped.
func (s *Synchronizer) beginFetch(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen || s.inFlight {
		return false
	}
	s.inFlight = true
	return true
}

func (s *Synchronizer) endFetch(gen int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.generation != gen {
		return
	}

	switch {
	case err == nil:
		s.state = SyncActive
		s.lastErr = nil
		s.retries = 0
	case gateway.IsCancelled(err):
		// Teardown raced the request; not an error.
	case errors.Is(err, ErrAccessDenied):
		s.state = SyncAuthError
		s.lastErr = ErrAccessDenied
		s.metrics.recordFetchError("forbidden")
	default:
		s.state = SyncRetrying
		s.lastErr = err
		s.retries++
		s.metrics.recordFetchError(errorKind(err))
	}
}

func (s *Synchronizer) paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == SyncAuthError
}

func (s *Synchronizer) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func errorKind(err error) string {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		return gerr.Kind.String()
	}
	return "unknown"
}
