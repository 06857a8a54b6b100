package session

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"slidecast/pkg/interfaces"
)

// Store is the in-memory registry of live game sessions. Sessions are
// hydrated from the durable store on first join and evicted once the last
// participant leaves; the next join rehydrates from scratch.
type Store struct {
	slides interfaces.SlideStore
	log    *zap.Logger

	mu       sync.Mutex
	sessions map[int64]*storeEntry
}

// storeEntry memoizes an in-flight hydration: it is inserted into the map
// before the storage read starts, so concurrent first joins for the same game
// share one read instead of issuing their own. ready is closed once sess is
// set.
type storeEntry struct {
	ready chan struct{}
	sess  *GameSession
}

// NewStore creates a session store backed by the given durable store.
func NewStore(slides interfaces.SlideStore, log *zap.Logger) *Store {
	return &Store{
		slides:   slides,
		log:      log,
		sessions: make(map[int64]*storeEntry),
	}
}

// GetOrCreate returns the live session for gameID, hydrating it on first use.
// Storage failures during hydration degrade to an empty slide-mode map; the
// join proceeds and the failure is only logged.
func (s *Store) GetOrCreate(ctx context.Context, gameID int64) *GameSession {
	s.mu.Lock()
	if entry, ok := s.sessions[gameID]; ok {
		s.mu.Unlock()
		<-entry.ready
		return entry.sess
	}

	entry := &storeEntry{ready: make(chan struct{})}
	s.sessions[gameID] = entry
	s.mu.Unlock()

	entry.sess = s.hydrate(ctx, gameID)
	close(entry.ready)
	return entry.sess
}

// hydrate builds a fresh session from durable state.
func (s *Store) hydrate(ctx context.Context, gameID int64) *GameSession {
	sess := newGameSession(gameID)

	states, err := s.slides.ListSlideStates(ctx, gameID)
	if err != nil {
		s.log.Warn("slide state hydration failed, starting with empty modes",
			zap.Int64("game_id", gameID), zap.Error(err))
	} else {
		for _, state := range states {
			sess.slideModes[state.SlideID] = state.Mode
		}
	}

	current, err := s.slides.CurrentSlide(ctx, gameID)
	if err != nil {
		s.log.Warn("current slide hydration failed, starting at zero",
			zap.Int64("game_id", gameID), zap.Error(err))
	} else {
		sess.currentSlideID = current
	}

	s.log.Debug("game session hydrated",
		zap.Int64("game_id", gameID), zap.Int("slides", len(sess.slideModes)))
	return sess
}

// Get returns the session for gameID without creating one. It does not wait
// for an in-flight hydration.
func (s *Store) Get(gameID int64) (*GameSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[gameID]
	if !ok {
		return nil, false
	}
	select {
	case <-entry.ready:
		return entry.sess, true
	default:
		return nil, false
	}
}

// Remove evicts the session for gameID unconditionally. Idempotent.
func (s *Store) Remove(gameID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, gameID)
}

// RemoveIfEmpty evicts gameID, but only while the live entry is still sess
// and sess holds no participants. Both checks run under the store mutex, so a
// join that lands in sess concurrently with the last leave keeps the session
// alive. Reports whether the session was evicted.
func (s *Store) RemoveIfEmpty(gameID int64, sess *GameSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[gameID]
	if !ok {
		return false
	}
	select {
	case <-entry.ready:
	default:
		// A different hydration is already in flight for this game.
		return false
	}
	if entry.sess != sess || !sess.Empty() {
		return false
	}
	delete(s.sessions, gameID)
	return true
}

// Owns reports whether gameID still maps to sess. A false result after a Join
// means a concurrent last-participant leave evicted the session underneath
// the joiner, who must start over on a fresh one.
func (s *Store) Owns(gameID int64, sess *GameSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[gameID]
	if !ok {
		return false
	}
	select {
	case <-entry.ready:
	default:
		return false
	}
	return entry.sess == sess
}

// Len returns the number of live sessions, for the stats surface.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
