// File: internal/usecase/chat_uc.go
package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"chat-assistant/internal/domain"
	"chat-assistant/internal/domain/model"
	"chat-assistant/internal/domain/ports/adapter"
	"chat-assistant/internal/domain/ports/repository"
	"chat-assistant/internal/infra/logging"
	"chat-assistant/internal/infra/metrics"
	"chat-assistant/internal/infra/worker"
)

// Dispatcher runs completion tasks off the caller's goroutine.
// *worker.Pool satisfies it.
type Dispatcher interface {
	Submit(task worker.Task) error
}

type SessionOptions struct {
	Model              adapter.Model
	Temperature        float64
	ClearDraftOnSubmit bool
	KeyStrategy        KeyStrategy
	RequestTimeout     time.Duration // 0 = none
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		Model:              adapter.ModelV35,
		Temperature:        0.7,
		ClearDraftOnSubmit: true,
		KeyStrategy:        KeyFirstMessage,
	}
}

// ChatSession is the state machine behind one chat page.
//
// Phases: Idle -> AwaitingReply on an accepted submission, back to Idle when
// the reply (or its failure) arrives. At most one completion is in flight.
// All state lives behind mu. Observers are called in commit order, one at a
// time and never with mu held, so they may read the session or edit it; a
// change made from an observer is delivered after the current one.
type ChatSession struct {
	id       string
	store    repository.KeyValueStore
	ai       adapter.CompletionClient
	dispatch Dispatcher
	opts     SessionOptions
	log      *zerolog.Logger

	mu             sync.Mutex
	state          model.ChatSessionState
	phase          model.Phase
	lastErr        error
	version        uint64
	closed         bool
	conversationID string
	lastActive     time.Time
	observers      map[int]func(model.Snapshot)
	nextObserver   int
	pending        []publication
	delivering     bool
}

type publication struct {
	snap model.Snapshot
	obs  []func(model.Snapshot)
}

func NewChatSession(
	id string,
	store repository.KeyValueStore,
	ai adapter.CompletionClient,
	dispatch Dispatcher,
	opts SessionOptions,
	logger *zerolog.Logger,
) *ChatSession {
	if id == "" {
		id = ulid.Make().String()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("session_id", id).Logger()
	return &ChatSession{
		id:             id,
		store:          store,
		ai:             ai,
		dispatch:       dispatch,
		opts:           opts,
		log:            &l,
		state:          model.InitialState(),
		phase:          model.PhaseIdle,
		conversationID: ulid.Make().String(),
		lastActive:     time.Now(),
		observers:      map[int]func(model.Snapshot){},
	}
}

func (s *ChatSession) ID() string { return s.id }

// Mount restores the saved API key. A storage failure leaves the key empty
// and shows the error; the session stays usable either way.
func (s *ChatSession) Mount(ctx context.Context) error {
	key, err := LoadAPIKey(ctx, s.store)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.state.APIKey = key
	if err != nil {
		s.lastErr = err
		logging.With(ctx, s.log).Warn().Err(err).Msg("could not restore api key")
	}
	s.unlockAndPublish()
	return err
}

func (s *ChatSession) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every committed change and returns its cancel func.
func (s *ChatSession) Subscribe(fn func(model.Snapshot)) (cancel func()) {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	if !s.closed {
		s.observers[id] = fn
	}
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

func (s *ChatSession) EditQuestion(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.state.CurrentQuestion = text
	s.touchLocked()
	s.unlockAndPublish()
	return nil
}

func (s *ChatSession) EditAPIKey(text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	s.state.APIKey = text
	s.touchLocked()
	s.unlockAndPublish()
	return nil
}

// SaveAPIKey writes the current key field to storage.
func (s *ChatSession) SaveAPIKey(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	key := s.state.APIKey
	s.touchLocked()
	s.mu.Unlock()

	err := SaveAPIKey(ctx, s.store, key)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.lastErr = err
	s.unlockAndPublish()
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("could not save api key")
	}
	return err
}

// ResetChat empties the transcript. The draft and the key are kept.
func (s *ChatSession) ResetChat() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrSessionClosed
	}
	if s.phase == model.PhaseAwaitingReply {
		s.mu.Unlock()
		return domain.ErrRequestInFlight
	}
	s.state.Chat = []model.ChatSnippet{}
	s.conversationID = ulid.Make().String()
	s.lastErr = nil
	s.touchLocked()
	s.unlockAndPublish()
	return nil
}

// SubmitQuestion appends the draft as a user turn and dispatches the
// completion. The returned channel yields exactly one value once the
// submission settles: nil after the reply was appended and persisted, or the
// failure. ctx only scopes logging; the request outlives it.
func (s *ChatSession) SubmitQuestion(ctx context.Context) (<-chan error, error) {
	log := logging.With(ctx, s.log)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if s.phase == model.PhaseAwaitingReply {
		s.mu.Unlock()
		metrics.IncSubmission("rejected_in_flight")
		return nil, domain.ErrRequestInFlight
	}
	question := s.state.CurrentQuestion
	if strings.TrimSpace(question) == "" {
		s.mu.Unlock()
		metrics.IncSubmission("rejected_empty")
		return nil, fmt.Errorf("empty question: %w", domain.ErrInvalidArgument)
	}

	s.state.Chat = append(s.state.Chat, model.UserSnippet(question))
	if s.opts.ClearDraftOnSubmit {
		s.state.CurrentQuestion = ""
	}
	s.phase = model.PhaseAwaitingReply
	s.lastErr = nil
	s.touchLocked()

	req := adapter.CompletionRequest{
		Messages:    toMessages(s.state.Chat),
		APIKey:      s.state.APIKey,
		Model:       s.opts.Model,
		Temperature: s.opts.Temperature,
	}
	traceID := logging.TraceID(ctx)
	done := make(chan error, 1)
	task := func(poolCtx context.Context) (err error) {
		if traceID != "" {
			poolCtx = logging.WithTraceID(poolCtx, traceID)
		}
		defer func() {
			if r := recover(); r != nil {
				err = s.abandon(poolCtx, r)
			}
			done <- err
			close(done)
		}()
		return s.complete(poolCtx, req)
	}

	s.unlockAndPublish()
	metrics.IncTurn(model.RoleUser)

	if err := s.dispatch.Submit(task); err != nil {
		// never sent: keep the user turn, surface the failure
		busy := fmt.Errorf("dispatch completion: %w (%v)", domain.ErrBusy, err)
		metrics.IncSubmission("busy")
		log.Warn().Err(err).Msg("completion queue rejected submission")

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, busy
		}
		s.phase = model.PhaseIdle
		s.lastErr = busy
		s.unlockAndPublish()
		return nil, busy
	}

	metrics.IncSubmission("accepted")
	log.Debug().Int("turns", len(req.Messages)).Msg("question submitted")
	return done, nil
}

// complete runs on a worker. The completion call is the only suspension point.
func (s *ChatSession) complete(ctx context.Context, req adapter.CompletionRequest) error {
	log := logging.With(ctx, s.log)

	callCtx := ctx
	if s.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.RequestTimeout)
		defer cancel()
	}
	reply, err := s.ai.Complete(callCtx, req)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		metrics.IncSubmission("discarded")
		log.Debug().Msg("session closed before reply; discarding")
		return domain.ErrSessionClosed
	}
	if err != nil {
		s.phase = model.PhaseIdle
		s.lastErr = err
		s.unlockAndPublish()
		metrics.IncSubmission("failed")
		return err
	}

	s.state.Chat = append(s.state.Chat, model.AssistantSnippet(reply))
	key := ChatKey(s.opts.KeyStrategy, s.conversationID, s.state.Chat)
	transcript := model.CloneTranscript(s.state.Chat)
	s.unlockAndPublish()
	metrics.IncTurn(model.RoleAssistant)

	perr := SaveTranscript(ctx, s.store, key, transcript)
	if perr != nil {
		log.Warn().Err(perr).Str("key", key).Msg("could not persist transcript")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return perr
	}
	s.phase = model.PhaseIdle
	s.lastErr = perr
	s.unlockAndPublish()
	metrics.IncSubmission("replied")
	return perr
}

// abandon settles a submission whose completion panicked, so the session
// does not stay stuck awaiting a reply that will never come.
func (s *ChatSession) abandon(ctx context.Context, cause any) error {
	err := fmt.Errorf("completion panicked: %v", cause)
	logging.With(ctx, s.log).Error().Interface("panic", cause).Msg("completion panicked")
	metrics.IncSubmission("failed")

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return err
	}
	s.phase = model.PhaseIdle
	s.lastErr = err
	s.unlockAndPublish()
	return err
}

// Close marks the session dead. Pending replies are dropped on arrival.
// Observers get one last snapshot with Closed set and are then dropped.
func (s *ChatSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.unlockAndPublish()
}

// SavedTranscript reads back the stored record of the current conversation.
func (s *ChatSession) SavedTranscript(ctx context.Context) ([]model.ChatSnippet, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, domain.ErrSessionClosed
	}
	if len(s.state.Chat) == 0 {
		s.mu.Unlock()
		return nil, fmt.Errorf("empty conversation: %w", domain.ErrNotFound)
	}
	key := ChatKey(s.opts.KeyStrategy, s.conversationID, s.state.Chat)
	s.mu.Unlock()

	return LoadTranscript(ctx, s.store, key)
}

func (s *ChatSession) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Expired reports whether the session sat idle for at least ttl. A session
// waiting on a reply, or watched by a subscriber, never expires.
func (s *ChatSession) Expired(now time.Time, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhaseIdle || len(s.observers) > 0 {
		return false
	}
	return now.Sub(s.lastActive) >= ttl
}

func (s *ChatSession) touchLocked() { s.lastActive = time.Now() }

func (s *ChatSession) snapshotLocked() model.Snapshot {
	snap := model.Snapshot{
		SessionID: s.id,
		State:     s.state.Clone(),
		Phase:     s.phase,
		Version:   s.version,
		Closed:    s.closed,
	}
	if s.lastErr != nil {
		snap.Error = &model.SessionError{Code: domain.ErrorCode(s.lastErr), Message: s.lastErr.Error()}
	}
	return snap
}

// unlockAndPublish commits a change: bumps the version, queues the snapshot
// for the current observers and releases mu. Must be called with mu held.
//
// Whoever finds the queue idle drains it; everyone else just enqueues. The
// queue is filled under mu, so delivery follows commit order.
func (s *ChatSession) unlockAndPublish() {
	s.version++
	if len(s.observers) > 0 {
		obs := make([]func(model.Snapshot), 0, len(s.observers))
		for _, fn := range s.observers {
			obs = append(obs, fn)
		}
		s.pending = append(s.pending, publication{snap: s.snapshotLocked(), obs: obs})
	}
	if s.closed {
		s.observers = map[int]func(model.Snapshot){}
	}
	if s.delivering || len(s.pending) == 0 {
		s.mu.Unlock()
		return
	}
	s.delivering = true
	s.drainLocked()
}

// drainLocked delivers queued snapshots until the queue is empty. Entered with
// mu held; returns with it released.
func (s *ChatSession) drainLocked() {
	defer func() {
		if r := recover(); r != nil {
			s.mu.Lock()
			s.pending = nil
			s.delivering = false
			s.mu.Unlock()
			panic(r)
		}
	}()
	for len(s.pending) > 0 {
		p := s.pending[0]
		s.pending[0] = publication{}
		s.pending = s.pending[1:]
		s.mu.Unlock()
		for _, fn := range p.obs {
			fn(p.snap)
		}
		s.mu.Lock()
	}
	s.pending = nil
	s.delivering = false
	s.mu.Unlock()
}

func toMessages(chat []model.ChatSnippet) []adapter.Message {
	out := make([]adapter.Message, len(chat))
	for i, c := range chat {
		out[i] = adapter.Message{Role: c.Role, Content: c.Text}
	}
	return out
}
