package broadcast

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"slidecast/internal/registry"
	"slidecast/pkg/protocol"
)

type fakeConn struct {
	id   string
	fail bool

	mu     sync.Mutex
	events []string
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) WriteEvent(event string, data any) error {
	if c.fail {
		return errors.New("peer gone")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *fakeConn) Close() error { return nil }

func (c *fakeConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func setup() (*Broadcaster, *registry.Registry) {
	reg := registry.NewRegistry()
	return NewBroadcaster(reg, zap.NewNop()), reg
}

func TestToRoomIncludesOriginator(t *testing.T) {
	bc, reg := setup()
	teacher := &fakeConn{id: "t"}
	student := &fakeConn{id: "s"}
	outsider := &fakeConn{id: "o"}

	reg.Bind(teacher, registry.Binding{GameID: 1, Role: protocol.RoleTeacher, UserID: 1})
	reg.Bind(student, registry.Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 2})
	reg.Bind(outsider, registry.Binding{GameID: 2, Role: protocol.RoleStudent, UserID: 3})

	bc.ToRoom(1, protocol.EventStateSync, protocol.StateSync{GameID: 1})

	assert.Equal(t, []string{protocol.EventStateSync}, teacher.received())
	assert.Equal(t, []string{protocol.EventStateSync}, student.received())
	assert.Empty(t, outsider.received())
}

func TestToTeachersSkipsStudents(t *testing.T) {
	bc, reg := setup()
	teacher := &fakeConn{id: "t"}
	student := &fakeConn{id: "s"}

	reg.Bind(teacher, registry.Binding{GameID: 1, Role: protocol.RoleTeacher, UserID: 1})
	reg.Bind(student, registry.Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 2})

	bc.ToTeachers(1, protocol.EventAnswerUpdated, protocol.AnswerUpdated{GameID: 1})

	assert.Equal(t, []string{protocol.EventAnswerUpdated}, teacher.received())
	assert.Empty(t, student.received())
}

// One failing peer must not abort delivery to the rest of the room.
func TestDeliveryFailureDoesNotAbortFanout(t *testing.T) {
	bc, reg := setup()
	dead := &fakeConn{id: "dead", fail: true}
	alive := &fakeConn{id: "alive"}

	reg.Bind(dead, registry.Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 1})
	reg.Bind(alive, registry.Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 2})

	bc.ToRoom(1, protocol.EventStateSync, protocol.StateSync{GameID: 1})

	assert.Equal(t, []string{protocol.EventStateSync}, alive.received())
}

func TestToConn(t *testing.T) {
	bc, _ := setup()
	conn := &fakeConn{id: "c"}

	bc.ToConn(conn, protocol.EventError, protocol.ErrorEvent{Code: protocol.CodeUnauthorized})
	assert.Equal(t, []string{protocol.EventError}, conn.received())
}
