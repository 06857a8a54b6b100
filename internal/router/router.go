package router

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"slidecast/internal/broadcast"
	"slidecast/internal/registry"
	"slidecast/internal/session"
	"slidecast/pkg/interfaces"
	"slidecast/pkg/protocol"
)

// Router dispatches inbound protocol commands to their handlers. Every handler
// follows the same shape: resolve the caller's binding, check the role, mutate
// the session store, kick off write-behind persistence, and fan the change out.
//
// Authorization and validation failures are terminal for that command only:
// nothing is mutated, nothing is broadcast, and the error event goes to the
// offending connection alone.
type Router struct {
	store       *session.Store
	registry    *registry.Registry
	broadcaster *broadcast.Broadcaster
	slides      interfaces.SlideStore
	validate    *validator.Validate
	log         *zap.Logger
}

// NewRouter wires a router over its collaborators.
func NewRouter(store *session.Store, reg *registry.Registry, bc *broadcast.Broadcaster, slides interfaces.SlideStore, log *zap.Logger) *Router {
	return &Router{
		store:       store,
		registry:    reg,
		broadcaster: bc,
		slides:      slides,
		validate:    protocol.NewValidator(),
		log:         log,
	}
}

// Dispatch routes one inbound envelope. Panics inside a handler are recovered
// here and surfaced to the originating connection only, as the command's
// generic error code; they never abort delivery to other connections.
func (r *Router) Dispatch(ctx context.Context, conn interfaces.Conn, env protocol.Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("command handler panicked",
				zap.String("event", env.Event),
				zap.String("conn_id", conn.ID()),
				zap.Any("panic", rec))
			r.sendError(conn, protocol.GenericErrorCode(env.Event), "internal error")
		}
	}()

	var err error
	switch env.Event {
	case protocol.EventJoinGame:
		err = r.handleJoin(ctx, conn, env)
	case protocol.EventLeaveGame:
		err = r.handleLeave(conn, env)
	case protocol.EventChangeSlide:
		err = r.handleChangeSlide(ctx, conn, env)
	case protocol.EventChangeMode:
		err = r.handleChangeMode(ctx, conn, env)
	case protocol.EventCloseAnswer:
		err = r.handleCloseAnswer(ctx, conn, env)
	case protocol.EventSubmitAnswer:
		err = r.handleSubmitAnswer(conn, env)
	case protocol.EventShareAnswer:
		err = r.handleShareAnswer(conn, env)
	case protocol.EventRevealCorrect:
		err = r.handleRevealCorrect(conn, env)
	default:
		err = &CommandError{
			Code:    protocol.CodeInvalidPayload,
			Message: "unknown event: " + env.Event,
		}
	}

	if err != nil {
		code := protocol.GenericErrorCode(env.Event)
		message := "command failed"
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) {
			code = cmdErr.Code
			message = cmdErr.Message
		}
		r.log.Debug("command rejected",
			zap.String("event", env.Event),
			zap.String("conn_id", conn.ID()),
			zap.String("code", code),
			zap.Error(err))
		r.sendError(conn, code, message)
	}
}

// Disconnect handles an abrupt connection loss. It behaves exactly like an
// explicit leave for the connection's current binding, if any; there is no
// grace period. A reconnecting client joins again and gets a fresh snapshot.
func (r *Router) Disconnect(conn interfaces.Conn) {
	binding, ok := r.registry.Binding(conn.ID())
	if !ok {
		return
	}
	r.leave(conn.ID(), binding)
}

// sendError delivers an error event to one connection.
func (r *Router) sendError(conn interfaces.Conn, code, message string) {
	r.broadcaster.ToConn(conn, protocol.EventError, protocol.ErrorEvent{
		Message: message,
		Code:    code,
	})
}

// requireBinding resolves the caller's binding or fails UNAUTHENTICATED.
func (r *Router) requireBinding(conn interfaces.Conn) (registry.Binding, error) {
	binding, ok := r.registry.Binding(conn.ID())
	if !ok {
		return registry.Binding{}, errUnauthenticated()
	}
	return binding, nil
}

// requireRole resolves the caller's binding and checks its role, before the
// payload is even decoded: an unbound or wrong-role caller is rejected for
// what it is, not for what it sent. Handlers check the game match themselves
// once they have the payload.
func (r *Router) requireRole(conn interfaces.Conn, role protocol.Role) (registry.Binding, error) {
	binding, err := r.requireBinding(conn)
	if err != nil {
		return binding, err
	}
	if binding.Role != role {
		return binding, errUnauthorized(role)
	}
	return binding, nil
}
