package dialogue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler is a server-local callback registered through Room.On. Handlers
// run fire-and-forget after fan-out; a panicking handler is recovered and
// logged, never propagated.
type Handler func(msg EventMessage)

type syncHistoryMode int

const (
	syncHistoryNone syncHistoryMode = iota
	syncHistoryAll
	syncHistoryLimit
)

// SyncHistoryOnJoin controls whether, and how much, history a joiner is
// sent automatically via dialogue:history.
type SyncHistoryOnJoin struct {
	mode  syncHistoryMode
	limit int
}

// SyncHistoryNone disables automatic history sync on join (the default).
func SyncHistoryNone() SyncHistoryOnJoin { return SyncHistoryOnJoin{mode: syncHistoryNone} }

// SyncHistoryAll sends the room's entire retained history on join.
func SyncHistoryAll() SyncHistoryOnJoin { return SyncHistoryOnJoin{mode: syncHistoryAll} }

// SyncHistoryLimit sends at most n of the room's most recent events on join.
func SyncHistoryLimit(n int) SyncHistoryOnJoin {
	return SyncHistoryOnJoin{mode: syncHistoryLimit, limit: n}
}

// Enabled reports whether any history should be synced on join.
func (s SyncHistoryOnJoin) Enabled() bool { return s.mode != syncHistoryNone }

// Limit returns the truncation limit to request, 0 meaning "no truncation".
func (s SyncHistoryOnJoin) Limit() int {
	if s.mode == syncHistoryLimit {
		return s.limit
	}
	return 0
}

// RoomMetrics is the optional counters capability a Room reports trigger
// outcomes to. The core never depends on prometheus directly; see package
// metrics for the shipped implementation, grounded on the Visper teacher's
// infrastructure/metrics package.
type RoomMetrics interface {
	ObserveTriggered(roomID, eventName string)
	ObserveRejected(roomID, reason string)
}

type registryRefs struct {
	rooms   *RoomRegistry
	clients *ClientRegistry
}

// Room is one room's configuration, participant set, and server-side
// handler registry. It validates, applies beforeEach, fans out to
// subscribed participants, pushes to history, and calls afterEach — the
// trigger pipeline of §4.4. Grounded on the teacher's BroadcastOperator
// (namespace.go) for the fan-out shape and MemoryAdapter.Broadcast
// (memory_adapter.go) for the snapshot-then-release locking discipline,
// generalized with the validate/hook/history pipeline the teacher has no
// equivalent of.
type Room struct {
	id                   string
	name                 string
	description          string
	maxSize              int // 0 means unbounded
	createdByID          string
	events               []EventDefinition
	defaultSubscriptions []string
	syncHistoryOnJoin    SyncHistoryOnJoin

	mu           sync.RWMutex
	participants map[string]*ConnectedClient

	handlersMu sync.Mutex
	handlers   map[string]map[string]Handler // eventName -> handlerID -> Handler

	history    *HistoryStore
	hooks      *EventHooks
	metrics    RoomMetrics
	log        *zap.SugaredLogger
	registries *registryRefs
}

// RoomOption configures a new Room.
type RoomOption func(*Room)

// WithDescription sets the room's human-readable description.
func WithDescription(description string) RoomOption {
	return func(r *Room) { r.description = description }
}

// WithMaxSize caps the room's participant count; n <= 0 leaves it unbounded.
func WithMaxSize(n int) RoomOption {
	return func(r *Room) { r.maxSize = n }
}

// WithRoomEvents sets the room's event allow-list. An empty or omitted list
// means every event name is accepted.
func WithRoomEvents(defs ...EventDefinition) RoomOption {
	return func(r *Room) { r.events = defs }
}

// WithDefaultSubscriptions sets the event names a joiner is auto-subscribed
// to; include wildcardEvent ("*") to subscribe to everything in the room.
func WithDefaultSubscriptions(names ...string) RoomOption {
	return func(r *Room) { r.defaultSubscriptions = names }
}

// WithCreatedByID records the user id of the room's creator; only this user
// may delete the room via dialogue:deleteRoom.
func WithCreatedByID(userID string) RoomOption {
	return func(r *Room) { r.createdByID = userID }
}

// WithSyncHistoryOnJoin configures automatic history delivery on join.
func WithSyncHistoryOnJoin(policy SyncHistoryOnJoin) RoomOption {
	return func(r *Room) { r.syncHistoryOnJoin = policy }
}

// WithEventHooks attaches the beforeEach/afterEach/onTriggered hook group.
func WithEventHooks(hooks *EventHooks) RoomOption {
	return func(r *Room) { r.hooks = hooks }
}

// WithRoomMetrics attaches a counters capability.
func WithRoomMetrics(metrics RoomMetrics) RoomOption {
	return func(r *Room) { r.metrics = metrics }
}

// WithRoomLogger attaches a logger used for hook-failure and handler-panic
// reporting. Omitting this installs a no-op logger.
func WithRoomLogger(log *zap.SugaredLogger) RoomOption {
	return func(r *Room) { r.log = log }
}

// NewRoom constructs a Room backed by the given shared history store. The
// history store is shared across every room in a registry, keyed
// internally by room id, the same way HistoryStore is built.
func NewRoom(id, name string, history *HistoryStore, opts ...RoomOption) *Room {
	r := &Room{
		id:           id,
		name:         name,
		participants: make(map[string]*ConnectedClient),
		handlers:     make(map[string]map[string]Handler),
		history:      history,
		log:          zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.log == nil {
		r.log = zap.NewNop().Sugar()
	}

	return r
}

// ID returns the room's unique id.
func (r *Room) ID() string { return r.id }

// Name returns the room's display name.
func (r *Room) Name() string { return r.name }

// Description returns the room's description, possibly empty.
func (r *Room) Description() string { return r.description }

// MaxSize returns the configured capacity, 0 meaning unbounded.
func (r *Room) MaxSize() int { return r.maxSize }

// CreatedByID returns the creator's user id, possibly empty.
func (r *Room) CreatedByID() string { return r.createdByID }

// DefaultSubscriptions returns a copy of the default subscription list.
func (r *Room) DefaultSubscriptions() []string {
	out := make([]string, len(r.defaultSubscriptions))
	copy(out, r.defaultSubscriptions)
	return out
}

// SyncHistoryOnJoin returns the room's join-time history sync policy.
func (r *Room) SyncHistoryOnJoin() SyncHistoryOnJoin { return r.syncHistoryOnJoin }

// Events returns the room's event allow-list.
func (r *Room) Events() []EventDefinition { return r.events }

// Size returns the current participant count.
func (r *Room) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}

// IsFull reports whether the room has reached its configured capacity.
func (r *Room) IsFull() bool {
	if r.maxSize <= 0 {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants) >= r.maxSize
}

// Participants returns a snapshot of the room's current participants.
func (r *Room) Participants() []*ConnectedClient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*ConnectedClient, 0, len(r.participants))
	for _, c := range r.participants {
		out = append(out, c)
	}
	return out
}

// attachRegistries wires the room to the registries its hooks' Context
// exposes. Called once by RoomRegistry.Register.
func (r *Room) attachRegistries(rooms *RoomRegistry, clients *ClientRegistry) {
	r.registries = &registryRefs{rooms: rooms, clients: clients}
}

func (r *Room) hookContext() *Context {
	if r.registries == nil {
		return &Context{}
	}
	return &Context{rooms: r.registries.rooms, clients: r.registries.clients}
}

// addParticipant inserts c if the room is not full. Returns false on
// capacity failure. Idempotent: re-adding an already-present connection id
// just overwrites its entry.
func (r *Room) addParticipant(c *ConnectedClient) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.maxSize > 0 && len(r.participants) >= r.maxSize {
		if _, already := r.participants[c.ConnectionID()]; !already {
			return false
		}
	}

	r.participants[c.ConnectionID()] = c
	return true
}

// removeParticipant drops connectionID, a no-op if absent.
func (r *Room) removeParticipant(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.participants, connectionID)
}

// On registers a server-local handler for eventName. The returned thunk
// removes it and, if that was the last handler for the name, cleans up the
// per-event set.
func (r *Room) On(eventName string, handler Handler) func() {
	id := uuid.NewString()

	r.handlersMu.Lock()
	byID, ok := r.handlers[eventName]
	if !ok {
		byID = make(map[string]Handler)
		r.handlers[eventName] = byID
	}
	byID[id] = handler
	r.handlersMu.Unlock()

	return func() {
		r.handlersMu.Lock()
		defer r.handlersMu.Unlock()
		if byID, ok := r.handlers[eventName]; ok {
			delete(byID, id)
			if len(byID) == 0 {
				delete(r.handlers, eventName)
			}
		}
	}
}

// Trigger runs the full pipeline of §4.4: allow-list check, validation,
// construction, synchronous beforeEach, subscription-filtered fan-out,
// history push, fire-and-forget handlers/onTriggered, then synchronous
// afterEach. On success it returns the final (possibly beforeEach-
// transformed) message. On failure it returns the *Error describing which
// stage rejected the trigger; the caller (Dispatcher, or a direct
// server-side caller) decides how to surface it.
func (r *Room) Trigger(eventName string, data interface{}, from string, meta map[string]interface{}) (EventMessage, error) {
	if !isEventAllowed(eventName, r.events) {
		r.observeRejected(eventName, "event_not_allowed")
		return EventMessage{}, newError(KindValidationFailure, "Event '%s' is not allowed in room '%s'", eventName, r.id)
	}

	def, ok := findEventDefinition(eventName, r.events)
	if !ok {
		def = EventDefinition{name: eventName}
	}

	coerced, err := validateEventData(def, data)
	if err != nil {
		r.observeRejected(eventName, "validation_failed")
		return EventMessage{}, err
	}

	if from == "" {
		from = "system"
	}

	msg := EventMessage{
		Event:     eventName,
		RoomID:    r.id,
		Data:      coerced,
		From:      from,
		Timestamp: time.Now().UnixMilli(),
		Meta:      meta,
	}

	if r.hooks != nil && r.hooks.BeforeEach != nil {
		if err := r.hooks.BeforeEach(r.hookContext(), r.id, &msg, from); err != nil {
			r.observeRejected(eventName, "before_each_denied")
			return EventMessage{}, newError(KindValidationFailure, "%s", err.Error())
		}
	}

	recipients := r.fanOut(msg)

	if enabled, limit := def.HasHistory(); enabled {
		r.history.Push(r.id, eventName, msg, limit)
	}

	r.invokeHandlers(eventName, msg)

	if r.hooks != nil && r.hooks.OnTriggered != nil {
		go r.hooks.OnTriggered(r.id, msg)
	}

	r.observeTriggered(eventName)
	r.callAfterEach(msg, recipients)

	return msg, nil
}

// fanOut emits msg to every participant currently subscribed to its event
// name (or the wildcard), snapshotting the target list under a read lock
// and releasing it before any transport write — the same discipline as
// MemoryAdapter.Broadcast. It returns the recipient count.
func (r *Room) fanOut(msg EventMessage) int {
	r.mu.RLock()
	targets := make([]*ConnectedClient, 0, len(r.participants))
	for _, c := range r.participants {
		if c.Subscribed(r.id, msg.Event) {
			targets = append(targets, c)
		}
	}
	r.mu.RUnlock()

	frame, err := EncodeFrame("dialogue:event", msg)
	if err != nil {
		r.log.Warnw("failed to encode dialogue:event frame", "roomId", r.id, "event", msg.Event, "message", err.Error())
		return 0
	}

	for _, c := range targets {
		_ = c.Transport().Send(frame)
	}

	return len(targets)
}

func (r *Room) invokeHandlers(eventName string, msg EventMessage) {
	r.handlersMu.Lock()
	byID := r.handlers[eventName]
	handlers := make([]Handler, 0, len(byID))
	for _, h := range byID {
		handlers = append(handlers, h)
	}
	r.handlersMu.Unlock()

	for _, h := range handlers {
		go r.callHandler(h, msg)
	}
}

func (r *Room) callHandler(h Handler, msg EventMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warnw("room handler panicked", "atFunction", "on", "roomId", r.id, "event", msg.Event, "message", rec)
		}
	}()
	h(msg)
}

func (r *Room) callAfterEach(msg EventMessage, recipients int) {
	if r.hooks == nil || r.hooks.AfterEach == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Warnw("afterEach hook panicked", "atFunction", "afterEach", "roomId", r.id, "event", msg.Event, "message", rec)
		}
	}()
	r.hooks.AfterEach(r.hookContext(), r.id, msg, recipients)
}

func (r *Room) observeRejected(eventName, reason string) {
	if r.metrics != nil {
		r.metrics.ObserveRejected(r.id, reason)
	}
}

func (r *Room) observeTriggered(eventName string) {
	if r.metrics != nil {
		r.metrics.ObserveTriggered(r.id, eventName)
	}
}

// History returns a paginated, newest-first read for (roomID, eventName)
// over the half-open range [start, end), transparently extending into
// external storage through the history store's onLoad hook when the
// in-memory buffer alone does not cover the requested span.
func (r *Room) History(ctx context.Context, eventName string, start, end int) []EventMessage {
	inMemory := r.history.Get(r.id, eventName, start, end)

	if len(inMemory) == end-start || !r.history.HasLoadHook() {
		return inMemory
	}

	k := r.history.Count(r.id, eventName)
	external := r.history.LoadExternal(ctx, r.id, eventName, start, end, k)
	if len(external) == 0 {
		return inMemory
	}

	return append(inMemory, external...)
}

// HistorySnapshot returns every retained event in the room, newest-first,
// truncated to limit (0 meaning no truncation). Used for syncHistoryOnJoin.
func (r *Room) HistorySnapshot(limit int) []EventMessage {
	return r.history.GetAll(r.id, limit)
}

// ClearHistory evicts every retained event for this room, firing onCleanup
// once per non-empty (room, event) buffer.
func (r *Room) ClearHistory() {
	r.history.ClearRoom(r.id)
}
