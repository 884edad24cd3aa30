package dialogue

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// OnCleanupHook is invoked, fire-and-forget, after a push has evicted one or
// more messages from a (room, event) buffer. Failures must not propagate;
// HistoryStore logs them and moves on.
type OnCleanupHook func(roomID, eventName string, evicted []EventMessage)

// OnLoadHook is invoked by Room.History when the in-memory buffer alone
// cannot satisfy a requested range, to fetch older entries from external
// storage. It may suspend; HistoryStore never calls it while holding its
// lock.
type OnLoadHook func(ctx context.Context, roomID, eventName string, start, end int) ([]EventMessage, error)

// HistoryStore is a per-(room, event name) bounded FIFO of EventMessage,
// stored oldest-first internally and returned newest-first. There is no
// example repo in the corpus with an equivalent ring-buffer/retention
// component; this is built fresh in the teacher's locking idiom (one mutex,
// snapshot-then-release before calling out to hooks), the same discipline
// MemoryAdapter.Broadcast uses.
type HistoryStore struct {
	mu    sync.RWMutex
	rooms map[string]map[string][]EventMessage

	onCleanup OnCleanupHook
	onLoad    OnLoadHook

	log *zap.SugaredLogger
}

// HistoryStoreOption configures a new HistoryStore.
type HistoryStoreOption func(*HistoryStore)

// WithCleanupHook registers the onCleanup hook.
func WithCleanupHook(hook OnCleanupHook) HistoryStoreOption {
	return func(h *HistoryStore) { h.onCleanup = hook }
}

// WithLoadHook registers the onLoad external-storage fallback hook.
func WithLoadHook(hook OnLoadHook) HistoryStoreOption {
	return func(h *HistoryStore) { h.onLoad = hook }
}

// WithHistoryLogger attaches a logger used to report onCleanup/onLoad
// failures. A nil logger, or omitting this option, installs a no-op logger.
func WithHistoryLogger(log *zap.SugaredLogger) HistoryStoreOption {
	return func(h *HistoryStore) { h.log = log }
}

// NewHistoryStore creates an empty HistoryStore.
func NewHistoryStore(opts ...HistoryStoreOption) *HistoryStore {
	h := &HistoryStore{
		rooms: make(map[string]map[string][]EventMessage),
		log:   zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(h)
	}

	if h.log == nil {
		h.log = zap.NewNop().Sugar()
	}

	return h
}

// Push appends msg to the (roomID, eventName) buffer. While the buffer
// exceeds limit it evicts from the front (oldest first) and, once the
// mutation has committed, invokes onCleanup fire-and-forget with the
// evicted batch in push order.
func (h *HistoryStore) Push(roomID, eventName string, msg EventMessage, limit int) {
	var evicted []EventMessage

	h.mu.Lock()
	byEvent, ok := h.rooms[roomID]
	if !ok {
		byEvent = make(map[string][]EventMessage)
		h.rooms[roomID] = byEvent
	}

	buf := append(byEvent[eventName], msg)
	if limit > 0 {
		for len(buf) > limit {
			evicted = append(evicted, buf[0])
			buf = buf[1:]
		}
	}
	byEvent[eventName] = buf
	h.mu.Unlock()

	if len(evicted) > 0 && h.onCleanup != nil {
		go h.callCleanup(roomID, eventName, evicted)
	}
}

func (h *HistoryStore) callCleanup(roomID, eventName string, evicted []EventMessage) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warnw("history onCleanup panicked", "atFunction", "onCleanup", "roomId", roomID, "eventName", eventName, "message", r)
		}
	}()
	h.onCleanup(roomID, eventName, evicted)
}

// Get returns entries newest-first for the half-open newest-first range
// [start, end). Out-of-range or empty inputs yield an empty, non-nil slice.
// Never blocks and never calls onLoad.
func (h *HistoryStore) Get(roomID, eventName string, start, end int) []EventMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.getLocked(roomID, eventName, start, end)
}

func (h *HistoryStore) getLocked(roomID, eventName string, start, end int) []EventMessage {
	buf := h.rooms[roomID][eventName]
	n := len(buf)

	if start < 0 {
		start = 0
	}
	if end > n {
		end = n
	}
	if start >= end {
		return []EventMessage{}
	}

	// buf is oldest-first; newest-first position p maps to buf[n-1-p].
	// The newest-first range [start, end) is buf[n-end : n-start].
	lo, hi := n-end, n-start
	slice := buf[lo:hi]

	result := make([]EventMessage, len(slice))
	for i, msg := range slice {
		result[len(slice)-1-i] = msg
	}
	return result
}

// GetAll concatenates every event-type buffer in a room, sorts the result
// by timestamp descending, and truncates to limit (0 or negative means no
// truncation). Used only for syncHistoryOnJoin.
func (h *HistoryStore) GetAll(roomID string, limit int) []EventMessage {
	h.mu.RLock()
	byEvent := h.rooms[roomID]

	var all []EventMessage
	for _, buf := range byEvent {
		all = append(all, buf...)
	}
	h.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		return all[i].Timestamp > all[j].Timestamp
	})

	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}

	return all
}

// Count returns the in-memory length of a (room, event) buffer.
func (h *HistoryStore) Count(roomID, eventName string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID][eventName])
}

// ClearRoom emits a final onCleanup per non-empty event-type buffer, then
// deletes the room's history entirely.
func (h *HistoryStore) ClearRoom(roomID string) {
	h.mu.Lock()
	byEvent := h.rooms[roomID]
	delete(h.rooms, roomID)
	h.mu.Unlock()

	if h.onCleanup == nil {
		return
	}

	for eventName, buf := range byEvent {
		if len(buf) == 0 {
			continue
		}
		go h.callCleanup(roomID, eventName, buf)
	}
}

// LoadExternal requests the external-storage fallback for a range the
// in-memory buffer alone did not cover. k is the in-memory total for
// (roomID, eventName); start/end are the original newest-first request
// bounds. If no onLoad hook is configured it returns nil; if the hook fails,
// the failure is logged here and nil is returned, so the caller treats
// either case as an empty external extension.
func (h *HistoryStore) LoadExternal(ctx context.Context, roomID, eventName string, start, end, inMemoryCount int) []EventMessage {
	if h.onLoad == nil {
		return nil
	}

	extStart := start - inMemoryCount
	if extStart < 0 {
		extStart = 0
	}
	extEnd := end - inMemoryCount
	if extEnd <= extStart {
		return nil
	}

	external, err := h.onLoad(ctx, roomID, eventName, extStart, extEnd)
	if err != nil {
		h.log.Warnw("history onLoad failed", "atFunction", "onLoad", "roomId", roomID, "eventName", eventName, "message", err.Error())
		return nil
	}

	return external
}

// HasLoadHook reports whether an onLoad fallback is configured.
func (h *HistoryStore) HasLoadHook() bool {
	return h.onLoad != nil
}
