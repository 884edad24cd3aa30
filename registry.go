package dialogue

import (
	"sync"

	"go.uber.org/zap"
)

// RegistryMetrics is the optional gauge capability a RoomRegistry reports
// room-count changes to.
type RegistryMetrics interface {
	SetRoomsActive(n int)
}

// RoomRegistryHooks are fire-and-forget lifecycle hooks for room creation
// and deletion (the "rooms.onCreated" / "rooms.onDeleted" hook contract
// named in §6's hook table).
type RoomRegistryHooks struct {
	OnCreated func(room *Room)
	OnDeleted func(roomID string)
}

// RoomRegistry owns every Room in the process: creation, deletion, lookup,
// and each room's participant map. Grounded on the teacher's Server
// (server.go), whose namespaces map + nsMu + double-checked-locking
// Of(name) is the same shape generalized here from namespace-by-name to
// room-by-id, plus the deletion/eviction machinery the teacher has no
// equivalent of (Socket.IO namespaces are never deleted at runtime).
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	history *HistoryStore
	clients *ClientRegistry
	hooks   *RoomRegistryHooks
	metrics RegistryMetrics
	log     *zap.SugaredLogger
}

// RoomRegistryOption configures a new RoomRegistry.
type RoomRegistryOption func(*RoomRegistry)

// WithRegistryHooks attaches the rooms.onCreated/onDeleted hook group.
func WithRegistryHooks(hooks *RoomRegistryHooks) RoomRegistryOption {
	return func(reg *RoomRegistry) { reg.hooks = hooks }
}

// WithRegistryMetrics attaches a gauge capability.
func WithRegistryMetrics(metrics RegistryMetrics) RoomRegistryOption {
	return func(reg *RoomRegistry) { reg.metrics = metrics }
}

// WithRegistryLogger attaches a logger. Omitting this installs a no-op one.
func WithRegistryLogger(log *zap.SugaredLogger) RoomRegistryOption {
	return func(reg *RoomRegistry) { reg.log = log }
}

// NewRoomRegistry constructs an empty registry backed by the given shared
// history store.
func NewRoomRegistry(history *HistoryStore, opts ...RoomRegistryOption) *RoomRegistry {
	reg := &RoomRegistry{
		rooms:   make(map[string]*Room),
		history: history,
		log:     zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(reg)
	}

	if reg.log == nil {
		reg.log = zap.NewNop().Sugar()
	}

	return reg
}

// SetClients wires the client registry a room's hook Context exposes. It
// must be called once, before any client joins a room, typically right
// after both registries are constructed by the server.
func (reg *RoomRegistry) SetClients(clients *ClientRegistry) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.clients = clients
}

// Register creates a new Room with id and options, indexes it, and fires
// rooms.onCreated fire-and-forget. It returns a ConfigError-kind error if
// id is already registered.
func (reg *RoomRegistry) Register(id, name string, opts ...RoomOption) (*Room, error) {
	reg.mu.Lock()
	if _, exists := reg.rooms[id]; exists {
		reg.mu.Unlock()
		return nil, newError(KindConfig, "room %q already exists", id)
	}

	room := NewRoom(id, name, reg.history, opts...)
	room.attachRegistries(reg, reg.clients)
	reg.rooms[id] = room
	active := len(reg.rooms)
	reg.mu.Unlock()

	if reg.metrics != nil {
		reg.metrics.SetRoomsActive(active)
	}

	if reg.hooks != nil && reg.hooks.OnCreated != nil {
		go reg.hooks.OnCreated(room)
	}

	return room, nil
}

// Get looks up a room by id.
func (reg *RoomRegistry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// All returns a snapshot of every currently registered room.
func (reg *RoomRegistry) All() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Room, 0, len(reg.rooms))
	for _, room := range reg.rooms {
		out = append(out, room)
	}
	return out
}

// AddParticipant joins client to roomID. It returns false when the room
// does not exist or is at capacity.
func (reg *RoomRegistry) AddParticipant(roomID string, client *ConnectedClient) bool {
	room, ok := reg.Get(roomID)
	if !ok {
		return false
	}
	return room.addParticipant(client)
}

// RemoveParticipant removes connectionID from roomID, a no-op if either is
// absent.
func (reg *RoomRegistry) RemoveParticipant(roomID, connectionID string) {
	room, ok := reg.Get(roomID)
	if !ok {
		return
	}
	room.removeParticipant(connectionID)
}

// RemoveFromAllRooms removes connectionID from every room it currently
// participates in. Used on disconnect.
func (reg *RoomRegistry) RemoveFromAllRooms(connectionID string) {
	for _, room := range reg.All() {
		room.removeParticipant(connectionID)
	}
}

// Unregister evicts every participant (notifying each with
// dialogue:roomDeleted), clears the room's history, deletes the room, and
// fires rooms.onDeleted. It returns false if the room did not exist.
func (reg *RoomRegistry) Unregister(id string) bool {
	reg.mu.Lock()
	room, ok := reg.rooms[id]
	if !ok {
		reg.mu.Unlock()
		return false
	}
	delete(reg.rooms, id)
	active := len(reg.rooms)
	reg.mu.Unlock()

	participants := room.Participants()
	frame, err := EncodeFrame("dialogue:roomDeleted", struct {
		RoomID string `json:"roomId"`
	}{RoomID: id})
	if err != nil {
		reg.log.Warnw("failed to encode dialogue:roomDeleted frame", "roomId", id, "message", err.Error())
	} else {
		for _, c := range participants {
			_ = c.Transport().Send(frame)
		}
	}

	for _, c := range participants {
		room.removeParticipant(c.ConnectionID())
		c.forceLeaveRoom(id)
	}

	room.ClearHistory()

	if reg.metrics != nil {
		reg.metrics.SetRoomsActive(active)
	}

	if reg.hooks != nil && reg.hooks.OnDeleted != nil {
		go reg.hooks.OnDeleted(id)
	}

	return true
}
