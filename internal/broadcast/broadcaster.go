package broadcast

import (
	"go.uber.org/zap"

	"slidecast/internal/registry"
	"slidecast/pkg/interfaces"
)

// Broadcaster fans protocol events out to rooms, to a game's teachers, or to a
// single connection. Delivery failures are per-connection: one slow or dead
// peer never aborts delivery to the rest of the room.
type Broadcaster struct {
	registry *registry.Registry
	log      *zap.Logger
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(reg *registry.Registry, log *zap.Logger) *Broadcaster {
	return &Broadcaster{registry: reg, log: log}
}

// ToRoom delivers event/data to every connection bound to gameID, including
// the originator. Every command in the current protocol broadcasts to the full
// room; the actor must see its own confirmed state.
func (b *Broadcaster) ToRoom(gameID int64, event string, data any) {
	b.deliver(b.registry.Room(gameID), gameID, event, data)
}

// ToTeachers delivers event/data only to connections bound to gameID with the
// teacher role.
func (b *Broadcaster) ToTeachers(gameID int64, event string, data any) {
	b.deliver(b.registry.Teachers(gameID), gameID, event, data)
}

// ToConn delivers event/data to exactly one connection.
func (b *Broadcaster) ToConn(conn interfaces.Conn, event string, data any) {
	if err := conn.WriteEvent(event, data); err != nil {
		b.log.Warn("event delivery failed",
			zap.String("event", event),
			zap.String("conn_id", conn.ID()),
			zap.Error(err))
	}
}

func (b *Broadcaster) deliver(conns []interfaces.Conn, gameID int64, event string, data any) {
	for _, conn := range conns {
		if err := conn.WriteEvent(event, data); err != nil {
			b.log.Warn("event delivery failed",
				zap.String("event", event),
				zap.Int64("game_id", gameID),
				zap.String("conn_id", conn.ID()),
				zap.Error(err))
		}
	}
}
