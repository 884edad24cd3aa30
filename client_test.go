package dialogue

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRegistry() *RoomRegistry {
	return NewRoomRegistry(NewHistoryStore())
}

func TestConnectedClient_JoinAddsParticipantAndAppliesDefaultSubscriptions(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	room, err := rooms.Register("room-1", "Room One", WithDefaultSubscriptions("chat.message"))
	req.NoError(err)

	transport := newFakeTransport("conn-1")
	client := NewConnectedClient("conn-1", "user-1", transport, nil, rooms, nil, nil)

	client.Join("room-1")

	req.True(client.HasJoined("room-1"))
	req.True(client.Subscribed("room-1", "chat.message"))
	req.False(client.Subscribed("room-1", "cursor.move"))
	req.Equal(1, room.Size())
	req.Contains(transport.eventNames(), "dialogue:joined")
}

func TestConnectedClient_JoinIsIdempotent(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	_, err := rooms.Register("room-1", "Room One")
	req.NoError(err)

	transport := newFakeTransport("conn-1")
	client := NewConnectedClient("conn-1", "user-1", transport, nil, rooms, nil, nil)

	client.Join("room-1")
	client.Join("room-1")

	joinAcks := 0
	for _, name := range transport.eventNames() {
		if name == "dialogue:joined" {
			joinAcks++
		}
	}
	req.Equal(2, joinAcks)
}

func TestConnectedClient_JoinEmitsRoomFullWhenAtCapacity(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	_, err := rooms.Register("room-1", "Room One", WithMaxSize(1))
	req.NoError(err)

	first := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)
	first.Join("room-1")

	secondTransport := newFakeTransport("conn-2")
	second := NewConnectedClient("conn-2", "user-2", secondTransport, nil, rooms, nil, nil)
	second.Join("room-1")

	req.False(second.HasJoined("room-1"))
	frame, ok := secondTransport.lastFrame()
	req.True(ok)
	req.Equal("dialogue:error", frame.Event)
}

func TestConnectedClient_LeaveClearsStateAndAcks(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	room, err := rooms.Register("room-1", "Room One")
	req.NoError(err)

	transport := newFakeTransport("conn-1")
	client := NewConnectedClient("conn-1", "user-1", transport, nil, rooms, nil, nil)
	client.Join("room-1")
	client.Leave("room-1")

	req.False(client.HasJoined("room-1"))
	req.Equal(0, room.Size())
	req.Contains(transport.eventNames(), "dialogue:left")
}

func TestConnectedClient_SubscribeRequiresJoinedRoom(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	_, err := rooms.Register("room-1", "Room One")
	req.NoError(err)

	client := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)
	client.Subscribe("room-1", "chat.message")

	req.False(client.Subscribed("room-1", "chat.message"))
}

func TestConnectedClient_SubscribeAllMatchesEveryEvent(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	_, err := rooms.Register("room-1", "Room One")
	req.NoError(err)

	client := NewConnectedClient("conn-1", "user-1", newFakeTransport("conn-1"), nil, rooms, nil, nil)
	client.Join("room-1")
	client.SubscribeAll("room-1")

	req.True(client.Subscribed("room-1", "literally.anything"))
}

func TestConnectedClient_DisconnectLeavesEveryJoinedRoom(t *testing.T) {
	req := require.New(t)

	rooms := newTestRegistry()
	roomA, err := rooms.Register("room-a", "Room A")
	req.NoError(err)
	roomB, err := rooms.Register("room-b", "Room B")
	req.NoError(err)

	transport := newFakeTransport("conn-1")
	client := NewConnectedClient("conn-1", "user-1", transport, nil, rooms, nil, nil)
	client.Join("room-a")
	client.Join("room-b")

	client.Disconnect()

	req.Empty(client.JoinedRooms())
	req.Equal(0, roomA.Size())
	req.Equal(0, roomB.Size())
}
