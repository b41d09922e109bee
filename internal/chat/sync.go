package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goatkit/goatdesk/internal/gateway"
)

// State is the lifecycle state of a Synchronizer.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePolling
	StateRetrying
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePolling:
		return "polling"
	case StateRetrying:
		return "retrying"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyMessage is returned by Send for whitespace-only text.
	ErrEmptyMessage = errors.New("chat: message is empty")
	// ErrNoActiveSession is returned when no session is initialized or
	// the session has ended.
	ErrNoActiveSession = errors.New("chat: no active session")
	// ErrSendInFlight is returned when a previous Send has not resolved
	// yet. The caller retries after it settles; two concurrent send
	// requests are never issued.
	ErrSendInFlight = errors.New("chat: send already in flight")
	// ErrInvalidRating is returned by Rate for values outside 1..5.
	ErrInvalidRating = errors.New("chat: rating must be between 1 and 5")
	// ErrSessionActive is returned by Rate while the session has not
	// been ended yet.
	ErrSessionActive = errors.New("chat: session is still active")
	// ErrAlreadyRated is returned by Rate after a successful rating.
	ErrAlreadyRated = errors.New("chat: session already rated")
)

type options struct {
	Logger       *log.Logger
	PollTimeout  time.Duration // server-side long-poll hold
	HardAbort    time.Duration // client-side force abort, slightly longer
	SendTimeout  time.Duration
	InitAttempts int
	InitBackoff  time.Duration // doubles per failed attempt
	RetryBase    time.Duration // scaled by consecutive error count
	RetryMax     time.Duration
}

// Option applies configuration to the synchronizer.
type Option func(*options)

func defaultOptions() options {
	return options{
		Logger:       log.Default(),
		PollTimeout:  30 * time.Second,
		HardAbort:    35 * time.Second,
		SendTimeout:  15 * time.Second,
		InitAttempts: 3,
		InitBackoff:  time.Second,
		RetryBase:    time.Second,
		RetryMax:     5 * time.Second,
	}
}

// WithLogger injects a custom logger implementation.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.Logger = l
	}
}

// WithPollTimeout sets the server-side long-poll hold duration.
func WithPollTimeout(d time.Duration) Option {
	return func(o *options) {
		o.PollTimeout = d
	}
}

// WithHardAbort sets the client-side abort for a single poll. It must
// exceed the poll timeout or every poll gets cut short.
func WithHardAbort(d time.Duration) Option {
	return func(o *options) {
		o.HardAbort = d
	}
}

// WithSendTimeout bounds a single send request.
func WithSendTimeout(d time.Duration) Option {
	return func(o *options) {
		o.SendTimeout = d
	}
}

// WithInitRetries sets the initial-load retry budget and starting backoff.
func WithInitRetries(attempts int, backoff time.Duration) Option {
	return func(o *options) {
		o.InitAttempts = attempts
		o.InitBackoff = backoff
	}
}

// WithRetryBackoff sets the poll-loop backoff base and cap.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(o *options) {
		o.RetryBase = base
		o.RetryMax = max
	}
}

// Synchronizer keeps one chat session's transcript in step with the
// server: initial load, perpetual long poll, optimistic send. All
// mutation of the message store happens through it.
type Synchronizer struct {
	gw      *gateway.Client
	sender  string
	opts    options
	metrics *syncMetrics

	mu           sync.Mutex
	state        State
	session      ChatSession
	hasSession   bool
	rated        bool
	store        *MessageStore
	lastErr      error
	generation   int
	cancel       context.CancelFunc
	sendInFlight bool
}

// NewSynchronizer creates a synchronizer that sends messages under the
// given display name.
func NewSynchronizer(gw *gateway.Client, sender string, opts ...Option) *Synchronizer {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Synchronizer{
		gw:      gw,
		sender:  sender,
		opts:    o,
		metrics: globalSyncMetrics(),
		state:   StateIdle,
		store:   NewMessageStore(),
	}
}

// Initialize loads session metadata and the full message history, then
// starts the long-poll loop. Failed loads are retried with exponential
// backoff up to the configured budget; when exhausted the synchronizer
// closes with the last error. Re-initializing invalidates any previous
// session: its in-flight requests can still resolve but their results
// are discarded.
func (s *Synchronizer) Initialize(ctx context.Context, token string) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	gen := s.generation
	s.state = StateLoading
	s.hasSession = false
	s.rated = false
	s.lastErr = nil
	s.store = NewMessageStore()
	store := s.store
	s.mu.Unlock()

	backoff := s.opts.InitBackoff
	var lastErr error
	for attempt := 1; attempt <= s.opts.InitAttempts; attempt++ {
		session, history, err := s.loadInitial(ctx, token)
		if err == nil {
			runCtx, cancel := context.WithCancel(context.Background())

			s.mu.Lock()
			if s.generation != gen {
				// A newer Initialize or Terminate won the race.
				s.mu.Unlock()
				cancel()
				return nil
			}
			s.session = session
			s.hasSession = true
			s.state = StatePolling
			s.cancel = cancel
			s.mu.Unlock()

			store.MergeIncoming(history)
			s.metrics.recordMerged(len(history))

			go s.pollLoop(runCtx, gen, token, store)
			return nil
		}

		if gateway.IsCancelled(err) {
			return err
		}
		lastErr = err
		s.opts.Logger.Printf("chat sync: initial load for %s failed (attempt %d/%d): %v", token, attempt, s.opts.InitAttempts, err)

		if attempt < s.opts.InitAttempts {
			select {
			case <-ctx.Done():
				return &gateway.Error{Kind: gateway.KindCancelled, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
		}
	}

	s.mu.Lock()
	if s.generation == gen {
		s.state = StateClosed
		s.lastErr = lastErr
	}
	s.mu.Unlock()
	return fmt.Errorf("failed to initialize chat session %s: %w", token, lastErr)
}

func (s *Synchronizer) loadInitial(ctx context.Context, token string) (ChatSession, []ChatMessage, error) {
	q := url.Values{"metadata": {"true"}}
	resp, err := s.gw.Get(ctx, "/api/chat/"+token, q, s.opts.SendTimeout)
	if err != nil {
		return ChatSession{}, nil, err
	}
	var ws wireSession
	if err := resp.Decode(&ws); err != nil {
		return ChatSession{}, nil, err
	}
	session := ws.toSession()
	if session.ChatToken == "" {
		session.ChatToken = token
	}

	resp, err = s.gw.Get(ctx, "/api/chat/messages/"+token, nil, s.opts.SendTimeout)
	if err != nil {
		return ChatSession{}, nil, err
	}
	var batch wireBatch
	if err := resp.Decode(&batch); err != nil {
		return ChatSession{}, nil, err
	}

	return session, decodeMessages(batch.Messages), nil
}

// wireBatch is the poll/history response envelope.
type wireBatch struct {
	Messages []wireMessage `json:"messages"`
}

// pollLoop is the perpetual long poll for one session generation. One
// request is in flight at a time; a successful response triggers an
// immediate re-poll, a failure backs off scaled by the consecutive
// error count. The loop exits when its context is cancelled or the
// generation is superseded.
func (s *Synchronizer) pollLoop(ctx context.Context, gen int, token string, store *MessageStore) {
	consecutive := 0
	for {
		if ctx.Err() != nil || !s.current(gen) {
			return
		}

		q := url.Values{}
		if since := store.LastTimestamp(); !since.IsZero() {
			q.Set("since", since.UTC().Format(time.RFC3339))
		}
		q.Set("timeout", strconv.Itoa(int(s.opts.PollTimeout.Seconds())))

		s.metrics.recordPoll()
		resp, err := s.gw.Get(ctx, "/api/chat/messages/"+token, q, s.opts.HardAbort)
		if err != nil {
			if gateway.IsCancelled(err) {
				return
			}
			var gerr *gateway.Error
			if errors.As(err, &gerr) && gerr.Kind == gateway.KindTimeout {
				// The hard abort fired past the server's hold time.
				// The request is dead either way; start the next one.
				s.metrics.recordPollError("timeout")
				continue
			}
			s.metrics.recordPollError(errorKind(err))
			consecutive++
			if !s.backoff(ctx, gen, consecutive, err) {
				return
			}
			continue
		}

		var batch wireBatch
		if err := resp.Decode(&batch); err != nil {
			s.opts.Logger.Printf("chat sync: malformed poll response for %s: %v", token, err)
			s.metrics.recordPollError("decode")
			consecutive++
			if !s.backoff(ctx, gen, consecutive, err) {
				return
			}
			continue
		}

		if !s.current(gen) {
			return
		}
		msgs := decodeMessages(batch.Messages)
		store.MergeIncoming(msgs)
		s.metrics.recordMerged(len(msgs))
		consecutive = 0
		s.setStateIfCurrent(gen, StatePolling, nil)
	}
}

// backoff parks the loop in Retrying for a delay scaled by the error
// count. Returns false when the session was cancelled while waiting.
func (s *Synchronizer) backoff(ctx context.Context, gen, consecutive int, cause error) bool {
	delay := time.Duration(consecutive) * s.opts.RetryBase
	if delay > s.opts.RetryMax {
		delay = s.opts.RetryMax
	}
	s.setStateIfCurrent(gen, StateRetrying, cause)
	s.metrics.recordRetry()
	s.opts.Logger.Printf("chat sync: poll failed (%d consecutive), retrying in %s: %v", consecutive, delay, cause)

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
	}
	return s.current(gen)
}

// Send validates, optimistically appends, posts and reconciles one
// message. On confirmed failure the optimistic entry is rolled back
// and the error is returned for the caller to surface with a manual
// retry; the message is never auto-resent.
func (s *Synchronizer) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if !s.hasSession || s.session.Status != SessionActive || s.state == StateClosed {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.sendInFlight {
		s.mu.Unlock()
		return ErrSendInFlight
	}
	s.sendInFlight = true
	gen := s.generation
	token := s.session.ChatToken
	store := s.store
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.sendInFlight = false
		s.mu.Unlock()
	}()

	pendingID := store.AppendOptimistic(ChatMessage{
		ChatToken: token,
		Sender:    s.sender,
		Message:   text,
		Timestamp: time.Now(),
	})

	body := map[string]string{
		"chatToken": token,
		"sender":    s.sender,
		"message":   text,
	}
	resp, err := s.gw.Post(ctx, "/api/chat/message", body, s.opts.SendTimeout)
	if err != nil {
		store.Remove(pendingID)
		s.metrics.recordSend(false)
		if gateway.IsCancelled(err) {
			return err
		}
		s.setLastError(err)
		return fmt.Errorf("failed to send message: %w", err)
	}

	var envelope struct {
		ChatMessage wireMessage `json:"chatMessage"`
	}
	if err := resp.Decode(&envelope); err != nil {
		store.Remove(pendingID)
		s.metrics.recordSend(false)
		s.setLastError(err)
		return fmt.Errorf("failed to decode send response: %w", err)
	}

	confirmed, err := envelope.ChatMessage.toMessage()
	if err != nil {
		store.Remove(pendingID)
		s.metrics.recordSend(false)
		s.setLastError(err)
		return fmt.Errorf("failed to decode send response: %w", err)
	}

	if s.current(gen) {
		store.Reconcile(pendingID, confirmed)
	}
	s.metrics.recordSend(true)
	return nil
}

// End ends the chat session on the server and stops polling. The
// session stays readable and becomes eligible for a single rating.
func (s *Synchronizer) End(ctx context.Context) error {
	s.mu.Lock()
	if !s.hasSession || s.session.Status != SessionActive {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	token := s.session.ChatToken
	s.mu.Unlock()

	if _, err := s.gw.Post(ctx, "/api/chat/end/"+token, nil, s.opts.SendTimeout); err != nil {
		s.setLastError(err)
		return fmt.Errorf("failed to end chat session: %w", err)
	}

	s.mu.Lock()
	s.session.Status = SessionEnded
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state = StateClosed
	s.mu.Unlock()
	return nil
}

// Rate submits a one-shot rating for an ended session.
func (s *Synchronizer) Rate(ctx context.Context, rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	s.mu.Lock()
	if !s.hasSession {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	if s.session.Status != SessionEnded {
		s.mu.Unlock()
		return ErrSessionActive
	}
	if s.rated {
		s.mu.Unlock()
		return ErrAlreadyRated
	}
	token := s.session.ChatToken
	s.mu.Unlock()

	body := map[string]any{"Rating": rating, "Feedback": feedback}
	if _, err := s.gw.Post(ctx, "/api/chat/rate/"+token, body, s.opts.SendTimeout); err != nil {
		s.setLastError(err)
		return fmt.Errorf("failed to rate chat session: %w", err)
	}

	s.mu.Lock()
	s.rated = true
	s.mu.Unlock()
	return nil
}

// Terminate cancels all in-flight work and closes the synchronizer.
// Required on teardown; a long poll left behind is a leak. Responses
// that resolve after Terminate never reach the store.
func (s *Synchronizer) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.generation++
	s.state = StateClosed
}

// State returns the current lifecycle state.
func (s *Synchronizer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Session returns the session metadata, if initialized.
func (s *Synchronizer) Session() (ChatSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session, s.hasSession
}

// Store returns the message store for the current session. The caller
// only reads snapshots from it.
func (s *Synchronizer) Store() *MessageStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// LastError returns the most recent store-level error, nil when healthy.
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) current(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation == gen
}

func (s *Synchronizer) setStateIfCurrent(gen int, state State, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return
	}
	s.state = state
	if err != nil {
		s.lastErr = err
	} else if state == StatePolling {
		s.lastErr = nil
	}
}

func (s *Synchronizer) setLastError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

func errorKind(err error) string {
	var gerr *gateway.Error
	if errors.As(err, &gerr) {
		return gerr.Kind.String()
	}
	return "unknown"
}
