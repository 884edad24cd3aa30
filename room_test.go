package dialogue

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// joinedClient builds a ConnectedClient already joined to roomID and
// subscribed to the given event names, bypassing the registry-backed
// Join/Subscribe flow (exercised separately in client_test.go and
// registry_test.go) so these pipeline tests can focus on Room.Trigger.
func joinedClient(id string, roomID string, events ...string) (*ConnectedClient, *fakeTransport) {
	transport := newFakeTransport(id)
	c := NewConnectedClient(id, "user-"+id, transport, nil, nil, nil, zap.NewNop().Sugar())
	c.joinedRooms[roomID] = struct{}{}
	subs := make(map[string]struct{})
	for _, e := range events {
		subs[e] = struct{}{}
	}
	c.subscriptions[roomID] = subs
	return c, transport
}

func TestRoom_Trigger_RejectsDisallowedEvent(t *testing.T) {
	req := require.New(t)

	room := NewRoom("room-1", "Room One", NewHistoryStore(), WithRoomEvents(MustDefineEvent("chat.message")))

	_, err := room.Trigger("chat.typing", nil, "user-1", nil)
	req.Error(err)

	var derr *Error
	req.ErrorAs(err, &derr)
	req.Equal(ErrCodeValidationFailed, derr.Code())
}

func TestRoom_Trigger_FansOutOnlyToSubscribedParticipants(t *testing.T) {
	req := require.New(t)

	room := NewRoom("room-1", "Room One", NewHistoryStore())

	subscribed, subTransport := joinedClient("conn-1", "room-1", "chat.message")
	other, otherTransport := joinedClient("conn-2", "room-1", "cursor.move")

	room.addParticipant(subscribed)
	room.addParticipant(other)

	msg, err := room.Trigger("chat.message", "hello", "conn-1", nil)
	req.NoError(err)
	req.Equal("hello", msg.Data)
	req.Equal("conn-1", msg.From)

	req.Contains(subTransport.eventNames(), "dialogue:event")
	req.Empty(otherTransport.eventNames())
}

func TestRoom_Trigger_WildcardSubscriptionReceivesEverything(t *testing.T) {
	req := require.New(t)

	room := NewRoom("room-1", "Room One", NewHistoryStore())
	everything, transport := joinedClient("conn-1", "room-1", wildcardEvent)
	room.addParticipant(everything)

	_, err := room.Trigger("anything.goes", nil, "conn-1", nil)
	req.NoError(err)
	req.Contains(transport.eventNames(), "dialogue:event")
}

func TestRoom_Trigger_BeforeEachCanTransformOrDeny(t *testing.T) {
	req := require.New(t)

	hooks := &EventHooks{
		BeforeEach: func(ctx *Context, roomID string, msg *EventMessage, from string) error {
			if msg.Data == "deny-me" {
				return newError(KindPermissionDenied, "denied by policy")
			}
			msg.Data = "transformed"
			return nil
		},
	}

	room := NewRoom("room-1", "Room One", NewHistoryStore(), WithEventHooks(hooks))

	msg, err := room.Trigger("chat.message", "hello", "user-1", nil)
	req.NoError(err)
	req.Equal("transformed", msg.Data)

	_, err = room.Trigger("chat.message", "deny-me", "user-1", nil)
	req.Error(err)
}

func TestRoom_Trigger_PushesToHistoryWhenEventHasHistoryPolicy(t *testing.T) {
	req := require.New(t)

	history := NewHistoryStore()
	withHistory := MustDefineEvent("chat.message", WithHistory(10))
	room := NewRoom("room-1", "Room One", history, WithRoomEvents(withHistory))

	_, err := room.Trigger("chat.message", "hello", "user-1", nil)
	req.NoError(err)

	req.Equal(1, history.Count("room-1", "chat.message"))
}

func TestRoom_Trigger_AfterEachReceivesRecipientCountAndNeverPanics(t *testing.T) {
	req := require.New(t)

	var gotRecipients int
	hooks := &EventHooks{
		AfterEach: func(ctx *Context, roomID string, msg EventMessage, recipientCount int) {
			gotRecipients = recipientCount
			panic("afterEach should be recovered, not propagated")
		},
	}

	room := NewRoom("room-1", "Room One", NewHistoryStore(), WithEventHooks(hooks))
	subscriber, _ := joinedClient("conn-1", "room-1", wildcardEvent)
	room.addParticipant(subscriber)

	req.NotPanics(func() {
		_, err := room.Trigger("chat.message", "hi", "conn-1", nil)
		req.NoError(err)
	})
	req.Equal(1, gotRecipients)
}

func TestRoom_AddParticipant_RespectsMaxSizeButAllowsIdempotentReAdd(t *testing.T) {
	req := require.New(t)

	room := NewRoom("room-1", "Room One", NewHistoryStore(), WithMaxSize(1))
	a, _ := joinedClient("conn-1", "room-1")
	b, _ := joinedClient("conn-2", "room-1")

	req.True(room.addParticipant(a))
	req.False(room.addParticipant(b))
	req.True(room.addParticipant(a))

	req.Equal(1, room.Size())
	req.True(room.IsFull())
}

func TestRoom_On_RegistersAndUnregistersHandler(t *testing.T) {
	req := require.New(t)

	room := NewRoom("room-1", "Room One", NewHistoryStore())

	done := make(chan EventMessage, 1)
	unsubscribe := room.On("chat.message", func(msg EventMessage) {
		done <- msg
	})

	_, err := room.Trigger("chat.message", "hi", "user-1", nil)
	req.NoError(err)

	msg := <-done
	req.Equal("hi", msg.Data)

	unsubscribe()
	room.handlersMu.Lock()
	_, stillThere := room.handlers["chat.message"]
	room.handlersMu.Unlock()
	req.False(stillThere)
}
