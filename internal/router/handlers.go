package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"slidecast/internal/registry"
	"slidecast/internal/session"
	"slidecast/pkg/interfaces"
	"slidecast/pkg/protocol"
)

// handleJoin registers the caller as a participant, replies with a full
// snapshot, then broadcasts refreshed state to the whole room, the joiner
// included. A join for a role+userId that is already present supersedes the
// old binding; the superseded connection is left alone until it disconnects.
func (r *Router) handleJoin(ctx context.Context, conn interfaces.Conn, env protocol.Envelope) error {
	var p protocol.JoinGame
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}

	// A connection holds at most one binding. A join for a different game or
	// a different identity first runs the leave path for the old binding so
	// the old session can empty out and be evicted.
	if old, ok := r.registry.Binding(conn.ID()); ok {
		if old.GameID != p.GameID || old.Role != p.Role || old.UserID != p.UserID {
			r.leave(conn.ID(), old)
		}
	}

	participant := session.Participant{
		ConnectionID: conn.ID(),
		Role:         p.Role,
		UserID:       p.UserID,
		DisplayName:  p.UserName,
	}
	sess := r.store.GetOrCreate(ctx, p.GameID)
	sess.Join(participant)
	// A concurrent last-participant leave can evict the session between the
	// fetch and the join; when the store no longer maps the game to the
	// session that was joined, start over on a fresh one.
	for !r.store.Owns(p.GameID, sess) {
		sess = r.store.GetOrCreate(ctx, p.GameID)
		sess.Join(participant)
	}
	r.registry.Bind(conn, registry.Binding{
		GameID: p.GameID,
		Role:   p.Role,
		UserID: p.UserID,
	})

	r.log.Info("participant joined",
		zap.Int64("game_id", p.GameID),
		zap.String("role", string(p.Role)),
		zap.Int64("user_id", p.UserID))

	// The ack snapshot is taken now, after the join, so it reflects the
	// current mode map rather than anything cached at hydration.
	r.broadcaster.ToConn(conn, protocol.EventConnectionAck, protocol.ConnectionAck{
		Success:        true,
		GameID:         p.GameID,
		Role:           p.Role,
		SlideStates:    sess.SnapshotModes(),
		CurrentSlideID: sess.CurrentSlide(),
		Stats:          sess.Stats(),
	})
	r.broadcaster.ToRoom(p.GameID, protocol.EventStateSync, protocol.StateSync{
		GameID:      p.GameID,
		SlideStates: sess.SnapshotModes(),
		Stats:       sess.Stats(),
	})
	return nil
}

// handleLeave removes the caller's binding and participant entry, tells the
// rest of the room, and evicts the session if it is now empty.
func (r *Router) handleLeave(conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireBinding(conn)
	if err != nil {
		return err
	}

	var p protocol.LeaveGame
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	r.leave(conn.ID(), binding)
	return nil
}

// leave is the shared path for explicit leave and abrupt disconnect.
func (r *Router) leave(connID string, binding registry.Binding) {
	r.registry.Unbind(connID)

	sess, ok := r.store.Get(binding.GameID)
	if !ok {
		return
	}

	removed, empty := sess.Leave(binding.Role, binding.UserID, connID)
	if empty {
		// Eviction is identity-checked under the store lock: a join that
		// raced this leave keeps the session.
		if r.store.RemoveIfEmpty(binding.GameID, sess) {
			r.log.Info("game session evicted", zap.Int64("game_id", binding.GameID))
		}
		return
	}
	if !removed {
		// The participant entry was already superseded by a newer connection;
		// nothing changed for the room.
		return
	}

	r.log.Info("participant left",
		zap.Int64("game_id", binding.GameID),
		zap.String("role", string(binding.Role)),
		zap.Int64("user_id", binding.UserID))

	r.broadcaster.ToRoom(binding.GameID, protocol.EventStateSync, protocol.StateSync{
		GameID:      binding.GameID,
		SlideStates: sess.SnapshotModes(),
		Stats:       sess.Stats(),
	})
}

// handleChangeSlide moves the current-slide pointer. Slide modes are not
// touched; mode is per-slide and independent of which slide is showing.
func (r *Router) handleChangeSlide(ctx context.Context, conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireRole(conn, protocol.RoleTeacher)
	if err != nil {
		return err
	}
	var p protocol.ChangeSlide
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	sess := r.store.GetOrCreate(ctx, p.GameID)
	sess.SetCurrentSlide(p.SlideID)
	r.slides.SetCurrentSlide(p.GameID, p.SlideID)

	r.broadcaster.ToRoom(p.GameID, protocol.EventChangeSlide, p)
	return nil
}

// handleChangeMode sets one slide's interaction mode.
func (r *Router) handleChangeMode(ctx context.Context, conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireRole(conn, protocol.RoleTeacher)
	if err != nil {
		return err
	}
	var p protocol.ChangeMode
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	r.setMode(ctx, p.GameID, p.SlideID, p.Mode)
	return nil
}

// handleCloseAnswer is change-mode specialized to force mode=result.
func (r *Router) handleCloseAnswer(ctx context.Context, conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireRole(conn, protocol.RoleTeacher)
	if err != nil {
		return err
	}
	var p protocol.CloseAnswer
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	r.setMode(ctx, p.GameID, p.SlideID, protocol.ModeResult)
	return nil
}

// setMode is the shared mutation/persistence/broadcast path for mode changes.
// The broadcast is not gated on the durable write: the write is behind, and a
// crash in between loses the newest mode while clients already saw it.
func (r *Router) setMode(ctx context.Context, gameID, slideID int64, mode protocol.SlideMode) {
	sess := r.store.GetOrCreate(ctx, gameID)
	sess.SetMode(slideID, mode)
	r.slides.SetSlideMode(gameID, slideID, mode)

	r.broadcaster.ToRoom(gameID, protocol.EventChangeMode, protocol.ChangeMode{
		GameID:  gameID,
		SlideID: slideID,
		Mode:    mode,
	})
}

// handleSubmitAnswer acks the student immediately, then stores the answer and
// notifies the game's teachers in the background. Slide state is not touched;
// answer content belongs to the durable store.
func (r *Router) handleSubmitAnswer(conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireRole(conn, protocol.RoleStudent)
	if err != nil {
		return err
	}
	var p protocol.SubmitAnswer
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	r.broadcaster.ToConn(conn, protocol.EventAnswerSaved, protocol.AnswerSaved{
		Success: true,
		SlideID: p.SlideID,
	})

	go r.storeAnswerAndNotify(p)
	return nil
}

// storeAnswerAndNotify runs off the command path so the student's ack never
// waits on storage. Save, count, and teacher notification happen in order so
// the count teachers see matches the store at notification time.
func (r *Router) storeAnswerAndNotify(p protocol.SubmitAnswer) {
	ctx := context.Background()

	err := r.slides.SaveAnswer(ctx, &interfaces.Answer{
		ID:        uuid.New().String(),
		GameID:    p.GameID,
		SlideID:   p.SlideID,
		StudentID: p.StudentID,
		Data:      p.AnswerData,
		CreatedAt: time.Now(),
	})
	if err != nil {
		r.log.Error("answer persistence failed",
			zap.Int64("game_id", p.GameID),
			zap.Int64("slide_id", p.SlideID),
			zap.Error(err))
	}

	count, err := r.slides.CountAnswers(ctx, p.GameID, p.SlideID)
	if err != nil {
		r.log.Warn("answer count unavailable",
			zap.Int64("game_id", p.GameID),
			zap.Int64("slide_id", p.SlideID),
			zap.Error(err))
	}

	totalStudents := 0
	if sess, ok := r.store.Get(p.GameID); ok {
		totalStudents = sess.Stats().TotalStudents
	}

	r.broadcaster.ToTeachers(p.GameID, protocol.EventAnswerUpdated, protocol.AnswerUpdated{
		GameID:        p.GameID,
		SlideID:       p.SlideID,
		AnswerCount:   count,
		TotalStudents: totalStudents,
	})
}

// handleShareAnswer forwards the payload verbatim to the room.
func (r *Router) handleShareAnswer(conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireRole(conn, protocol.RoleTeacher)
	if err != nil {
		return err
	}
	var p protocol.ShareAnswer
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	r.broadcaster.ToRoom(p.GameID, protocol.EventShareAnswer, p)
	return nil
}

// handleRevealCorrect forwards the payload verbatim to the room.
func (r *Router) handleRevealCorrect(conn interfaces.Conn, env protocol.Envelope) error {
	binding, err := r.requireRole(conn, protocol.RoleTeacher)
	if err != nil {
		return err
	}
	var p protocol.RevealCorrect
	if err := protocol.DecodePayload(r.validate, env.Data, &p); err != nil {
		return errInvalidPayload(err)
	}
	if p.GameID != binding.GameID {
		return errWrongGame()
	}

	r.broadcaster.ToRoom(p.GameID, protocol.EventRevealCorrect, p)
	return nil
}
