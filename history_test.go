package dialogue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHistoryStore_PushAndGetNewestFirst(t *testing.T) {
	req := require.New(t)

	h := NewHistoryStore()
	h.Push("room-1", "chat.message", EventMessage{Event: "chat.message", Data: "one", Timestamp: 1}, 0)
	h.Push("room-1", "chat.message", EventMessage{Event: "chat.message", Data: "two", Timestamp: 2}, 0)
	h.Push("room-1", "chat.message", EventMessage{Event: "chat.message", Data: "three", Timestamp: 3}, 0)

	got := h.Get("room-1", "chat.message", 0, 2)
	req.Len(got, 2)
	req.Equal("three", got[0].Data)
	req.Equal("two", got[1].Data)
}

func TestHistoryStore_EvictsOldestOnceOverLimit(t *testing.T) {
	req := require.New(t)

	evicted := make(chan []EventMessage, 1)
	h := NewHistoryStore(WithCleanupHook(func(roomID, eventName string, batch []EventMessage) {
		evicted <- batch
	}))

	for i := 0; i < 4; i++ {
		h.Push("room-1", "chat.message", EventMessage{Data: i, Timestamp: int64(i)}, 3)
	}

	req.Equal(3, h.Count("room-1", "chat.message"))

	batch := <-evicted
	req.Len(batch, 1)
	req.Equal(0, batch[0].Data)

	got := h.Get("room-1", "chat.message", 0, 3)
	req.Len(got, 3)
	req.Equal(3, got[0].Data)
	req.Equal(1, got[2].Data)
}

func TestHistoryStore_GetOutOfRangeReturnsEmpty(t *testing.T) {
	req := require.New(t)

	h := NewHistoryStore()
	got := h.Get("unknown-room", "chat.message", 0, 10)
	req.NotNil(got)
	req.Empty(got)
}

func TestHistoryStore_GetAllSortsAcrossEventsByTimestamp(t *testing.T) {
	req := require.New(t)

	h := NewHistoryStore()
	h.Push("room-1", "chat.message", EventMessage{Data: "a", Timestamp: 10}, 0)
	h.Push("room-1", "cursor.move", EventMessage{Data: "b", Timestamp: 20}, 0)
	h.Push("room-1", "chat.message", EventMessage{Data: "c", Timestamp: 5}, 0)

	got := h.GetAll("room-1", 0)
	req.Len(got, 3)
	req.Equal("b", got[0].Data)
	req.Equal("a", got[1].Data)
	req.Equal("c", got[2].Data)
}

func TestHistoryStore_LoadExternalExtendsBeyondInMemory(t *testing.T) {
	req := require.New(t)

	h := NewHistoryStore(WithLoadHook(func(ctx context.Context, roomID, eventName string, start, end int) ([]EventMessage, error) {
		req.Equal(0, start)
		req.Equal(2, end)
		return []EventMessage{{Data: "external-1"}, {Data: "external-2"}}, nil
	}))

	h.Push("room-1", "chat.message", EventMessage{Data: "in-memory", Timestamp: 1}, 0)

	req.True(h.HasLoadHook())

	external := h.LoadExternal(context.Background(), "room-1", "chat.message", 0, 3, 1)
	req.Len(external, 2)
}

func TestHistoryStore_ClearRoomFiresCleanupAndEmptiesBuffers(t *testing.T) {
	req := require.New(t)

	evicted := make(chan []EventMessage, 1)
	h := NewHistoryStore(WithCleanupHook(func(roomID, eventName string, batch []EventMessage) {
		evicted <- batch
	}))

	h.Push("room-1", "chat.message", EventMessage{Data: "a"}, 0)
	h.ClearRoom("room-1")

	batch := <-evicted
	req.Len(batch, 1)
	req.Equal(0, h.Count("room-1", "chat.message"))
}
