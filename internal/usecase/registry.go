package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"chat-assistant/internal/domain/ports/adapter"
	"chat-assistant/internal/domain/ports/repository"
	"chat-assistant/internal/infra/metrics"
)

// StoreFactory returns the storage view of one client.
type StoreFactory func(clientID string) repository.KeyValueStore

// SessionRegistry keeps one mounted ChatSession per browser client.
type SessionRegistry struct {
	newStore StoreFactory
	ai       adapter.CompletionClient
	dispatch Dispatcher
	opts     SessionOptions
	log      *zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*ChatSession
}

func NewSessionRegistry(newStore StoreFactory, ai adapter.CompletionClient, dispatch Dispatcher, opts SessionOptions, logger *zerolog.Logger) *SessionRegistry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SessionRegistry{
		newStore: newStore,
		ai:       ai,
		dispatch: dispatch,
		opts:     opts,
		log:      logger,
		sessions: map[string]*ChatSession{},
	}
}

// Get returns the client's session, creating and mounting it on first use.
// Mount failures are visible on the session, not returned.
func (r *SessionRegistry) Get(ctx context.Context, clientID string) *ChatSession {
	if s, ok := r.Lookup(clientID); ok {
		metrics.IncSessionLookup(true)
		return s
	}
	metrics.IncSessionLookup(false)

	l := r.log.With().Str("client_id", clientID).Logger()
	s := NewChatSession(ulid.Make().String(), r.newStore(clientID), r.ai, r.dispatch, r.opts, &l)
	_ = s.Mount(ctx)

	r.mu.Lock()
	if existing, ok := r.sessions[clientID]; ok && !existing.Closed() {
		// lost a race with a concurrent first request
		r.mu.Unlock()
		s.Close()
		return existing
	}
	r.sessions[clientID] = s
	n := len(r.sessions)
	r.mu.Unlock()

	metrics.SetActiveSessions(n)
	l.Info().Str("session_id", s.ID()).Msg("chat session opened")
	return s
}

// Lookup returns a live session without creating one.
func (r *SessionRegistry) Lookup(clientID string) (*ChatSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[clientID]
	if !ok || s.Closed() {
		return nil, false
	}
	return s, true
}

// Reap closes and forgets sessions idle for at least ttl.
func (r *SessionRegistry) Reap(now time.Time, ttl time.Duration) int {
	r.mu.Lock()
	var reaped []*ChatSession
	for id, s := range r.sessions {
		if s.Closed() || s.Expired(now, ttl) {
			delete(r.sessions, id)
			reaped = append(reaped, s)
		}
	}
	n := len(r.sessions)
	r.mu.Unlock()

	for _, s := range reaped {
		s.Close()
	}
	metrics.SetActiveSessions(n)
	return len(reaped)
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll closes every session; replies still in flight are discarded.
func (r *SessionRegistry) CloseAll() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = map[string]*ChatSession{}
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	metrics.SetActiveSessions(0)
}
