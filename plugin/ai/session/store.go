package session

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	apperrors "github.com/hrygo/staybot/internal/errors"
	"github.com/hrygo/staybot/internal/observability"
	"github.com/hrygo/staybot/plugin/ai/cache"
	"github.com/hrygo/staybot/plugin/ai/metrics"
	"github.com/hrygo/staybot/plugin/ai/reply"
	"github.com/hrygo/staybot/plugin/ai/timeout"
	"github.com/hrygo/staybot/plugin/travelapi"
)

// Operation names reported to the metrics recorder.
const (
	OpSendMessage  = "send_message"
	OpAutocomplete = "autocomplete"
	OpLoadSessions = "load_sessions"
	OpLoadMessages = "load_messages"
)

// DefaultPageSize is the history page size used when none is configured.
const DefaultPageSize = 20

var (
	// ErrEmptyMessage is returned for input that is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("conversation store is closed")
)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now for message timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithMetrics sets the latency recorder. Defaults to metrics.Nop.
func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Store) { s.metrics = recorder }
}

// WithAutocompleteCache replaces the autocomplete cache. Nil disables caching.
func WithAutocompleteCache(c *cache.LRU[[]string]) Option {
	return func(s *Store) { s.suggestions = c }
}

// WithPageSize sets the history page size used by RestoreSession and LoadMore.
func WithPageSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.state.Pagination.PageSize = n
		}
	}
}

// WithDefaults sets options applied to every send. Per-call options win.
func WithDefaults(opts SendOptions) Option {
	return func(s *Store) { s.defaults = opts }
}

// Store is the conversation state container. It is safe for concurrent use.
type Store struct {
	backend     Backend
	logger      *slog.Logger
	metrics     metrics.Recorder
	suggestions *cache.LRU[[]string]
	now         func() time.Time
	defaults    SendOptions

	// sendSem serializes sends so replies are appended in submission order.
	sendSem *semaphore.Weighted
	group   singleflight.Group

	baseCtx context.Context
	cancel  context.CancelFunc

	mu sync.Mutex
	// token is the outgoing session id. It follows ActiveSessionID and is redirected by LoadMessages.
	token string
	state State
	// generation changes whenever the transcript is replaced; late results from an older
	// generation are dropped.
	generation uint64
	// historyInFlight counts running history loads.
	historyInFlight int
	closed          bool
}

// NewStore creates a store with a fresh session token.
func NewStore(backend Backend, opts ...Option) *Store {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Store{
		backend:     backend,
		logger:      slog.Default(),
		metrics:     metrics.Nop{},
		suggestions: cache.NewLRU[[]string](cache.DefaultCapacity, timeout.AutocompleteTTL),
		now:         time.Now,
		sendSem:     semaphore.NewWeighted(1),
		baseCtx:     ctx,
		cancel:      cancel,
		token:       uuid.NewString(),
		state: State{
			Pagination: Pagination{Page: 1, PageSize: DefaultPageSize},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s
}

// SessionToken returns the id that tags outgoing requests.
func (s *Store) SessionToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Messages returns a copy of the transcript.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.state.Messages)
}

// Phase returns the coarse conversation state.
func (s *Store) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Phase()
}

// SendMessage sends one user turn and appends it with the rendered reply.
//
// A clarification reply stores its options for ChooseSuggestion. On failure nothing is appended,
// LastError holds the normalized message, and the error is returned.
func (s *Store) SendMessage(ctx context.Context, text string, opts *SendOptions) error {
	text = norm.NFC.String(strings.TrimSpace(text))
	if text == "" {
		return ErrEmptyMessage
	}

	ctx, done := s.opContext(ctx)
	defer done()
	if err := s.sendSem.Acquire(ctx, 1); err != nil {
		if s.isClosed() {
			return ErrStoreClosed
		}
		return apperrors.ContextCanceled(err)
	}
	defer s.sendSem.Release(1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.state.PendingRequest = true
	s.state.ClarificationOptions = nil
	s.state.LastError = ""
	token := s.token
	gen := s.generation
	sentAt := s.now().UnixMilli()
	s.mu.Unlock()

	rc := observability.NewRequestContext(s.logger, OpSendMessage, token)
	rc.Debug("sending message", slog.Int(observability.LogFieldMessageLen, utf8.RuneCountInString(text)))

	payload, err := s.backend.Suggest(ctx, token, s.buildRequest(text, opts))
	s.metrics.RecordRequest(ctx, OpSendMessage, rc.Duration(), errorCode(err))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.state.PendingRequest = false
	if gen != s.generation {
		rc.Debug("dropping reply for a replaced transcript")
		return err
	}

	if err != nil {
		s.state.LastError = apperrors.Normalize(err)
		rc.Error("send failed", err)
		return err
	}

	s.state.LastRawResponse = payload
	content := reply.Render(payload)
	if options, ok := reply.ClarificationOptions(payload); ok {
		s.state.ClarificationOptions = options
		content = reply.RenderClarification(options)
	}

	repliedAt := max(s.now().UnixMilli(), sentAt+1)
	s.appendLocked(
		newMessage(RoleUser, text, sentAt),
		newMessage(RoleAssistant, content, repliedAt),
	)
	rc.Info("message sent",
		slog.Int64(observability.LogFieldDuration, rc.DurationMs()),
		slog.Int(observability.LogFieldCount, len(s.state.ClarificationOptions)),
	)
	return nil
}

// ChooseSuggestion sends a clarification pick as a new user turn.
func (s *Store) ChooseSuggestion(ctx context.Context, value string) error {
	return s.SendMessage(ctx, value, nil)
}

// Autocomplete returns place names for query. Queries shorter than two runes return an empty list
// without a lookup. Failures are logged and yield an empty list.
func (s *Store) Autocomplete(ctx context.Context, query string) []string {
	query = norm.NFC.String(strings.TrimSpace(query))
	if utf8.RuneCountInString(query) < timeout.MinAutocompleteRunes || s.isClosed() {
		return []string{}
	}

	key := strings.ToLower(query)
	if s.suggestions != nil {
		if names, ok := s.suggestions.Get(key); ok {
			return slices.Clone(names)
		}
	}

	ctx, done := s.opContext(ctx)
	defer done()

	rc := observability.NewRequestContext(s.logger, OpAutocomplete, "")
	names, err := s.backend.Autocomplete(ctx, query)
	s.metrics.RecordRequest(ctx, OpAutocomplete, rc.Duration(), errorCode(err))
	if err != nil {
		rc.Warn("autocomplete failed", slog.String("error", apperrors.Normalize(err)))
		return []string{}
	}
	if names == nil {
		names = []string{}
	}
	if s.suggestions != nil {
		s.suggestions.Set(key, slices.Clone(names), 0)
	}
	return names
}

// StartNewSession discards the transcript and history, and makes a fresh token active.
func (s *Store) StartNewSession() string {
	token := uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.token = token
	s.state = State{
		ActiveSessionID: token,
		Pagination:      Pagination{Page: 1, PageSize: s.state.Pagination.PageSize},
		HistoryLoading:  s.historyInFlight > 0,
	}
	if s.suggestions != nil {
		s.suggestions.Invalidate("*")
	}
	s.logger.Info("started new session", slog.String(observability.LogFieldSessionID, token))
	return token
}

// CleanupCache drops expired autocomplete entries and returns how many were removed.
func (s *Store) CleanupCache() int {
	if s.suggestions == nil {
		return 0
	}
	return s.suggestions.CleanupExpired()
}

// Close aborts in-flight calls and suppresses their results. Later calls fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.state.PendingRequest = false
	s.state.HistoryLoading = false
	s.mu.Unlock()

	s.cancel()
	return nil
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// opContext derives a context that is also canceled when the store closes.
func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.baseCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Store) buildRequest(text string, opts *SendOptions) *travelapi.SuggestRequest {
	req := &travelapi.SuggestRequest{
		Message: text,
		TopN:    s.defaults.TopN,
		UseLLM:  s.defaults.UseLLM,
	}

	filters := maps.Clone(s.defaults.Filters)
	if opts != nil {
		if opts.TopN > 0 {
			req.TopN = opts.TopN
		}
		if opts.UseLLM != nil {
			req.UseLLM = opts.UseLLM
		}
		if len(opts.Filters) > 0 {
			if filters == nil {
				filters = make(map[string]any, len(opts.Filters))
			}
			maps.Copy(filters, opts.Filters)
		}
	}
	if len(filters) > 0 {
		req.Filters = filters
	}
	return req
}

// appendLocked appends msgs and keeps the transcript ordered by timestamp.
func (s *Store) appendLocked(msgs ...Message) {
	s.state.Messages = append(s.state.Messages, msgs...)
	sortMessages(s.state.Messages)
}

func sortMessages(msgs []Message) {
	if slices.IsSortedFunc(msgs, compareMessages) {
		return
	}
	slices.SortStableFunc(msgs, compareMessages)
}

func compareMessages(a, b Message) int {
	switch {
	case a.Timestamp < b.Timestamp:
		return -1
	case a.Timestamp > b.Timestamp:
		return 1
	default:
		return 0
	}
}

func newMessage(role Role, content string, ts int64) Message {
	return Message{
		ID:        shortuuid.New(),
		Role:      role,
		Content:   content,
		Timestamp: ts,
	}
}

func errorCode(err error) string {
	if err == nil {
		return ""
	}
	return string(apperrors.GetCodeFromError(err, apperrors.ErrCodeUnknown))
}
