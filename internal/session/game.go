package session

import (
	"fmt"
	"sync"

	"slidecast/pkg/protocol"
)

// Participant is one live binding inside a game, keyed by role+userId. A newer
// join for the same key silently supersedes the old one; the superseded
// connection is not force-closed.
type Participant struct {
	ConnectionID string
	Role         protocol.Role
	UserID       int64
	DisplayName  string
}

// ParticipantKey builds the uniqueness key for a participant within a game.
func ParticipantKey(role protocol.Role, userID int64) string {
	return fmt.Sprintf("%s-%d", role, userID)
}

// GameSession is the authoritative in-memory state of one running game. All
// map access goes through its mutex; methods never suspend while holding it.
type GameSession struct {
	gameID int64

	mu             sync.Mutex
	participants   map[string]Participant
	slideModes     map[int64]*protocol.SlideMode // nil value = mode never set
	currentSlideID int64
	seenStudents   map[int64]struct{}
}

func newGameSession(gameID int64) *GameSession {
	return &GameSession{
		gameID:       gameID,
		participants: make(map[string]Participant),
		slideModes:   make(map[int64]*protocol.SlideMode),
		seenStudents: make(map[int64]struct{}),
	}
}

// GameID returns the game this session coordinates.
func (g *GameSession) GameID() int64 {
	return g.gameID
}

// Join upserts the participant binding for p's role+userId.
func (g *GameSession) Join(p Participant) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.participants[ParticipantKey(p.Role, p.UserID)] = p
	if p.Role == protocol.RoleStudent {
		g.seenStudents[p.UserID] = struct{}{}
	}
}

// Leave removes the participant binding for role+userId, but only when it
// still belongs to connID. A disconnect from a connection that was superseded
// by a newer join must not evict the newer binding.
//
// removed reports whether a binding was deleted; empty reports whether the
// session has no participants left.
func (g *GameSession) Leave(role protocol.Role, userID int64, connID string) (removed, empty bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := ParticipantKey(role, userID)
	if p, ok := g.participants[key]; ok && p.ConnectionID == connID {
		delete(g.participants, key)
		removed = true
	}
	return removed, len(g.participants) == 0
}

// SetMode records one slide's interaction mode.
func (g *GameSession) SetMode(slideID int64, mode protocol.SlideMode) {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := mode
	g.slideModes[slideID] = &m
}

// SetCurrentSlide updates the cached current-slide pointer.
func (g *GameSession) SetCurrentSlide(slideID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.currentSlideID = slideID
}

// CurrentSlide returns the cached current-slide pointer.
func (g *GameSession) CurrentSlide() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentSlideID
}

// SnapshotModes returns a copy of the slide-mode map taken at this instant.
// Callers get their own map and mode values; later mutations do not leak into
// a snapshot already handed out.
func (g *GameSession) SnapshotModes() map[int64]*protocol.SlideMode {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapshot := make(map[int64]*protocol.SlideMode, len(g.slideModes))
	for id, mode := range g.slideModes {
		if mode == nil {
			snapshot[id] = nil
			continue
		}
		m := *mode
		snapshot[id] = &m
	}
	return snapshot
}

// Stats counts participants by role. TotalStudents is the number of distinct
// students the session has seen since hydration, connected or not.
func (g *GameSession) Stats() protocol.Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats := protocol.Stats{TotalStudents: len(g.seenStudents)}
	for _, p := range g.participants {
		switch p.Role {
		case protocol.RoleStudent:
			stats.ConnectedStudents++
		case protocol.RoleTeacher:
			stats.ConnectedTeachers++
		}
	}
	return stats
}

// Empty reports whether no participants remain.
func (g *GameSession) Empty() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.participants) == 0
}
