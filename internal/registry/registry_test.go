package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slidecast/pkg/protocol"
)

type fakeConn struct{ id string }

func (c *fakeConn) ID() string                          { return c.id }
func (c *fakeConn) WriteEvent(event string, data any) error { return nil }
func (c *fakeConn) Close() error                        { return nil }

func TestBindAndLookup(t *testing.T) {
	reg := NewRegistry()
	conn := &fakeConn{id: "c1"}

	reg.Bind(conn, Binding{GameID: 1, Role: protocol.RoleTeacher, UserID: 9})

	b, ok := reg.Binding("c1")
	require.True(t, ok)
	assert.Equal(t, int64(1), b.GameID)
	assert.Equal(t, protocol.RoleTeacher, b.Role)
	assert.Equal(t, int64(9), b.UserID)

	assert.Len(t, reg.Room(1), 1)
	assert.Len(t, reg.Teachers(1), 1)
}

func TestRoomAndTeacherIndexes(t *testing.T) {
	reg := NewRegistry()
	teacher := &fakeConn{id: "t"}
	studentA := &fakeConn{id: "sa"}
	studentB := &fakeConn{id: "sb"}
	other := &fakeConn{id: "o"}

	reg.Bind(teacher, Binding{GameID: 1, Role: protocol.RoleTeacher, UserID: 1})
	reg.Bind(studentA, Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 2})
	reg.Bind(studentB, Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 3})
	reg.Bind(other, Binding{GameID: 2, Role: protocol.RoleStudent, UserID: 4})

	assert.Len(t, reg.Room(1), 3)
	assert.Len(t, reg.Teachers(1), 1)
	assert.Len(t, reg.Room(2), 1)
	assert.Empty(t, reg.Teachers(2))
	assert.Empty(t, reg.Room(3))
}

func TestUnbindIsIdempotent(t *testing.T) {
	reg := NewRegistry()
	conn := &fakeConn{id: "c1"}
	reg.Bind(conn, Binding{GameID: 1, Role: protocol.RoleStudent, UserID: 5})

	b, ok := reg.Unbind("c1")
	require.True(t, ok)
	assert.Equal(t, int64(5), b.UserID)

	_, ok = reg.Unbind("c1")
	assert.False(t, ok)

	assert.Empty(t, reg.Room(1))
	_, ok = reg.Binding("c1")
	assert.False(t, ok)
}

// Rebinding a connection to a different game must remove it from the old
// game's indexes; a connection has at most one binding.
func TestRebindReplacesOldBinding(t *testing.T) {
	reg := NewRegistry()
	conn := &fakeConn{id: "c1"}

	reg.Bind(conn, Binding{GameID: 1, Role: protocol.RoleTeacher, UserID: 9})
	reg.Bind(conn, Binding{GameID: 2, Role: protocol.RoleStudent, UserID: 9})

	assert.Empty(t, reg.Room(1))
	assert.Empty(t, reg.Teachers(1))
	assert.Len(t, reg.Room(2), 1)
	assert.Empty(t, reg.Teachers(2))

	b, ok := reg.Binding("c1")
	require.True(t, ok)
	assert.Equal(t, int64(2), b.GameID)
	assert.Equal(t, protocol.RoleStudent, b.Role)
}

func TestStats(t *testing.T) {
	reg := NewRegistry()
	reg.Bind(&fakeConn{id: "a"}, Binding{GameID: 1, Role: protocol.RoleTeacher, UserID: 1})
	reg.Bind(&fakeConn{id: "b"}, Binding{GameID: 2, Role: protocol.RoleStudent, UserID: 2})

	stats := reg.Stats()
	assert.Equal(t, 2, stats["total_connections"])
	assert.Equal(t, 2, stats["active_rooms"])
}
