package dialogue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClientRegistry_AddGetRemove(t *testing.T) {
	req := require.New(t)

	reg := NewClientRegistry()
	rooms := newTestRegistry()
	client := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)

	reg.Add(client)
	req.Equal(1, reg.Count())

	got, ok := reg.Get("conn-1")
	req.True(ok)
	req.Equal(client, got)

	reg.Remove("conn-1")
	req.Equal(0, reg.Count())
	_, ok = reg.Get("conn-1")
	req.False(ok)
}

func TestClientRegistry_MultipleConnectionsPerUser(t *testing.T) {
	req := require.New(t)

	reg := NewClientRegistry()
	rooms := newTestRegistry()

	a := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)
	b := NewConnectedClient("conn-2", "user-1", newFakeTransport("conn-2"), nil, rooms, nil, nil)
	reg.Add(a)
	reg.Add(b)

	req.Len(reg.ClientsByUserID("user-1"), 2)

	reg.Remove("conn-1")
	req.Len(reg.ClientsByUserID("user-1"), 1)

	reg.Remove("conn-2")
	req.Empty(reg.ClientsByUserID("user-1"))
}

func TestClientRegistry_ClientRoomsAndIsInRoom(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	_, err := rooms.Register("room-1", "Room One")
	req.NoError(err)

	reg := NewClientRegistry()
	client := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)
	reg.Add(client)
	client.Join("room-1")

	req.True(reg.IsInRoom("user-1", "room-1"))
	req.Contains(reg.ClientRooms("user-1"), "room-1")
}

func TestClientRegistry_LeaveAllInvokesCallbackBeforeLeaving(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	room, err := rooms.Register("room-1", "Room One")
	req.NoError(err)

	reg := NewClientRegistry()
	client := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)
	reg.Add(client)
	client.Join("room-1")

	var seen []string
	reg.LeaveAll("user-1", func(roomID string) {
		seen = append(seen, roomID)
	})

	req.Equal([]string{"room-1"}, seen)
	req.Equal(0, room.Size())
}
