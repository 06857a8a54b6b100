package interfaces

import (
	"context"
	"time"

	"slidecast/pkg/protocol"
)

// SlideState is one durable slide row as read at hydration. A nil Mode means
// the slide has never been put into a mode.
type SlideState struct {
	SlideID int64
	Mode    *protocol.SlideMode
}

// Answer is one stored student answer. Data is the client's answerData kept
// verbatim; the coordinator never interprets it.
type Answer struct {
	ID        string
	GameID    int64
	SlideID   int64
	StudentID int64
	Data      []byte
	CreatedAt time.Time
}

// SlideStore is the durable-store contract consumed by the session store and
// the command router.
//
// Reads are synchronous. SetSlideMode and SetCurrentSlide are write-behind:
// they enqueue and return immediately, failures are logged by the
// implementation, and the in-memory state broadcast to clients is not gated on
// them. A crash can therefore lose the newest mode or slide-pointer change.
type SlideStore interface {
	// ListSlideStates returns all active slides of a game with their persisted
	// modes, used to hydrate a session.
	ListSlideStates(ctx context.Context, gameID int64) ([]SlideState, error)

	// CurrentSlide returns the game's persisted current-slide pointer, or 0 if
	// the game has none recorded.
	CurrentSlide(ctx context.Context, gameID int64) (int64, error)

	// SetSlideMode records a slide's mode. Fire-and-forget.
	SetSlideMode(gameID, slideID int64, mode protocol.SlideMode)

	// SetCurrentSlide records a game's current-slide pointer. Fire-and-forget.
	SetCurrentSlide(gameID, slideID int64)

	// SaveAnswer stores a student answer and waits for the write to land, so a
	// subsequent CountAnswers observes it.
	SaveAnswer(ctx context.Context, answer *Answer) error

	// CountAnswers returns how many answers are stored for a slide.
	CountAnswers(ctx context.Context, gameID, slideID int64) (int, error)
}
