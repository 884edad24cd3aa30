package dialogue

import (
	"sync"

	"go.uber.org/zap"
)

// Transport is the core's only dependency on the underlying connection. It
// is deliberately minimal: the dispatcher and ConnectedClient never talk to
// a concrete websocket type, only to this interface, mirroring the
// teacher's Socket depending only on *engineio.Session. The shipped
// implementation lives in package transport.
type Transport interface {
	// Send writes one already-encoded wire frame. It must not block the
	// caller indefinitely; a transport whose outbound queue is full should
	// drop the frame and return an error rather than stall the room.
	Send(frame []byte) error
	// Close terminates the connection, giving reason for diagnostics.
	Close(reason string) error
	// RemoteID is a transport-level identifier, used as a fallback userId
	// when no authenticate hook is configured.
	RemoteID() string
}

// ConnectedClient is one connection's identity, auth, joined-room set, and
// per-room subscription set. It holds only room ids, never a strong
// reference to a Room, breaking the Room<->Client reference cycle; the Room
// holds the strong reference to the client instead (§9 "Ownership / cyclic
// references"). Grounded on the teacher's Socket (socket.go): the
// rooms map[string]bool + sync.RWMutex shape is carried over directly and
// a second subscriptions layer is added on top.
type ConnectedClient struct {
	connectionID string
	userID       string
	transport    Transport
	auth         *AuthData

	metaMu sync.RWMutex
	meta   map[string]interface{}

	mu            sync.RWMutex
	joinedRooms   map[string]struct{}
	subscriptions map[string]map[string]struct{} // roomID -> event name set

	registry *RoomRegistry
	hooks    *ClientHooks
	log      *zap.SugaredLogger
}

// NewConnectedClient constructs a client bound to one transport connection.
func NewConnectedClient(connectionID, userID string, transport Transport, auth *AuthData, registry *RoomRegistry, hooks *ClientHooks, log *zap.SugaredLogger) *ConnectedClient {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &ConnectedClient{
		connectionID:  connectionID,
		userID:        userID,
		transport:     transport,
		auth:          auth,
		meta:          make(map[string]interface{}),
		joinedRooms:   make(map[string]struct{}),
		subscriptions: make(map[string]map[string]struct{}),
		registry:      registry,
		hooks:         hooks,
		log:           log,
	}
}

// ConnectionID returns the process-unique connection identifier.
func (c *ConnectedClient) ConnectionID() string { return c.connectionID }

// UserID returns the resolved user identity (from auth, or the legacy
// fallback chain when no authenticate hook ran).
func (c *ConnectedClient) UserID() string { return c.userID }

// Auth returns the AuthData attached at handshake, if any.
func (c *ConnectedClient) Auth() *AuthData { return c.auth }

// Transport returns the underlying connection.
func (c *ConnectedClient) Transport() Transport { return c.transport }

// Set stores an opaque key/value on the client, for application use.
func (c *ConnectedClient) Set(key string, value interface{}) {
	c.metaMu.Lock()
	c.meta[key] = value
	c.metaMu.Unlock()
}

// Get retrieves a value previously stored with Set.
func (c *ConnectedClient) Get(key string) (interface{}, bool) {
	c.metaMu.RLock()
	defer c.metaMu.RUnlock()
	v, ok := c.meta[key]
	return v, ok
}

// JoinedRooms returns a snapshot of the room ids this client has joined.
func (c *ConnectedClient) JoinedRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.joinedRooms))
	for id := range c.joinedRooms {
		rooms = append(rooms, id)
	}
	return rooms
}

// HasJoined reports whether the client has joined roomID.
func (c *ConnectedClient) HasJoined(roomID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.joinedRooms[roomID]
	return ok
}

// Subscribed implements the fan-out predicate: subscribed(c, r, e) :=
// "*" in c.subs[r] or e in c.subs[r].
func (c *ConnectedClient) Subscribed(roomID, eventName string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	subs, ok := c.subscriptions[roomID]
	if !ok {
		return false
	}
	if _, all := subs[wildcardEvent]; all {
		return true
	}
	_, ok = subs[eventName]
	return ok
}

// Join joins roomID. If the room does not exist, it logs a warning and
// returns (no wire error is sent here — the dispatcher is expected to have
// already resolved the room and reported ROOM_NOT_FOUND before ever calling
// Join). If already joined, it is idempotent and simply re-acks, which lets
// reconnecting UIs call join freely. On capacity failure it emits ROOM_FULL
// to this client only. On success it records local state, applies the
// room's default subscriptions, and emits the join ack.
func (c *ConnectedClient) Join(roomID string) {
	room, ok := c.registry.Get(roomID)
	if !ok {
		c.log.Warnw("join requested for unknown room", "connectionId", c.connectionID, "roomId", roomID)
		return
	}

	if c.HasJoined(roomID) {
		c.emitJoined(room)
		return
	}

	if !c.registry.AddParticipant(roomID, c) {
		c.emitError(ErrCodeRoomFull, "room '"+roomID+"' is full")
		return
	}

	c.mu.Lock()
	c.joinedRooms[roomID] = struct{}{}
	c.subscriptions[roomID] = make(map[string]struct{})
	for _, name := range room.DefaultSubscriptions() {
		c.subscribeLocked(roomID, name)
	}
	c.mu.Unlock()

	c.emitJoined(room)

	if c.hooks != nil && c.hooks.OnJoined != nil {
		go c.hooks.OnJoined(c.hookContext(), c, roomID)
	}
}

func (c *ConnectedClient) emitJoined(room *Room) {
	c.emit("dialogue:joined", struct {
		RoomID   string `json:"roomId"`
		RoomName string `json:"roomName"`
	}{RoomID: room.ID(), RoomName: room.Name()})
}

// Leave leaves roomID: removes the client from the registry's participant
// map, clears local joined/subscription state, and acks.
func (c *ConnectedClient) Leave(roomID string) {
	if !c.HasJoined(roomID) {
		return
	}

	c.registry.RemoveParticipant(roomID, c.connectionID)

	c.mu.Lock()
	delete(c.joinedRooms, roomID)
	delete(c.subscriptions, roomID)
	c.mu.Unlock()

	c.emit("dialogue:left", struct {
		RoomID string `json:"roomId"`
	}{RoomID: roomID})

	if c.hooks != nil && c.hooks.OnLeft != nil {
		go c.hooks.OnLeft(c.hookContext(), c, roomID)
	}
}

// forceLeaveRoom clears roomID from the client's local joined/subscription
// state without touching the registry's participant map. Used by
// RoomRegistry.Unregister, which has already evicted the participant from
// the room side and must not re-enter RemoveParticipant.
func (c *ConnectedClient) forceLeaveRoom(roomID string) {
	c.mu.Lock()
	delete(c.joinedRooms, roomID)
	delete(c.subscriptions, roomID)
	c.mu.Unlock()
}

// Subscribe adds eventName (or the wildcard "*") to the client's per-room
// subscription set. It is a silent no-op, logged at warning level, when the
// client has not joined roomID.
func (c *ConnectedClient) Subscribe(roomID, eventName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribeLocked(roomID, eventName)
}

func (c *ConnectedClient) subscribeLocked(roomID, eventName string) {
	if _, joined := c.joinedRooms[roomID]; !joined {
		c.log.Warnw("subscribe requested for unjoined room", "connectionId", c.connectionID, "roomId", roomID, "event", eventName)
		return
	}

	subs, ok := c.subscriptions[roomID]
	if !ok {
		subs = make(map[string]struct{})
		c.subscriptions[roomID] = subs
	}
	subs[eventName] = struct{}{}
}

// SubscribeAll subscribes the client to every event in roomID.
func (c *ConnectedClient) SubscribeAll(roomID string) {
	c.Subscribe(roomID, wildcardEvent)
}

// Unsubscribe removes eventName from the client's per-room subscription
// set, a no-op if absent.
func (c *ConnectedClient) Unsubscribe(roomID, eventName string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subs, ok := c.subscriptions[roomID]
	if !ok {
		return
	}
	delete(subs, eventName)
}

// Disconnect removes the client from every room it had joined and closes
// the transport. Registry-level purging (connection/user indices) is the
// caller's (Dispatcher's) responsibility, run after this returns.
func (c *ConnectedClient) Disconnect() {
	c.mu.Lock()
	rooms := make([]string, 0, len(c.joinedRooms))
	for id := range c.joinedRooms {
		rooms = append(rooms, id)
	}
	c.joinedRooms = make(map[string]struct{})
	c.subscriptions = make(map[string]map[string]struct{})
	c.mu.Unlock()

	for _, roomID := range rooms {
		c.registry.RemoveParticipant(roomID, c.connectionID)
	}

	c.transport.Close("client disconnect")
}

func (c *ConnectedClient) emit(event string, payload interface{}) {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		c.log.Warnw("failed to encode frame", "event", event, "message", err.Error())
		return
	}
	// Transport failures (dead socket) are silently ignored per §7
	// TransportFailure policy.
	_ = c.transport.Send(frame)
}

func (c *ConnectedClient) emitError(code ErrorCode, message string) {
	c.emit("dialogue:error", struct {
		Code    ErrorCode `json:"code"`
		Message string    `json:"message"`
	}{Code: code, Message: message})
}

func (c *ConnectedClient) hookContext() *Context {
	return &Context{rooms: c.registry, transport: c.transport}
}
