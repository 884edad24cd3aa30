package dialogue

// AuthData is the result of a successful authenticate hook. Its jwt map
// carries at minimum "sub" (which becomes the client's userId) and may
// carry arbitrary custom claims ("exp", "iat", ...).
type AuthData struct {
	JWT map[string]interface{}
}

// Sub returns the "sub" claim, the value used as the client's userId.
func (a AuthData) Sub() string {
	if a.JWT == nil {
		return ""
	}
	sub, _ := a.JWT["sub"].(string)
	return sub
}

// Context is the read-only snapshot view passed to every hook: a reference
// to the live room and client registries (so a hook can inspect other rooms
// or clients) plus, where one is meaningful, the transport of the
// connection the hook fired for.
type Context struct {
	rooms     *RoomRegistry
	clients   *ClientRegistry
	transport Transport
}

// Rooms returns the room registry backing this context.
func (c *Context) Rooms() *RoomRegistry { return c.rooms }

// Clients returns the client registry backing this context.
func (c *Context) Clients() *ClientRegistry { return c.clients }

// Transport returns the transport of the connection a per-connection hook
// fired for, or nil for hooks with no single associated connection.
func (c *Context) Transport() Transport { return c.transport }

// AuthHooks controls the handshake authentication step (§4.8).
type AuthHooks struct {
	// Authenticate validates the handshake's auth payload. Returning an
	// error aborts the connection before a ConnectedClient is ever created.
	Authenticate func(ctx *Context, transport Transport, auth interface{}) (AuthData, error)
}

// SocketHooks are fire-and-forget lifecycle hooks tied to the raw
// transport, independent of client/room state.
type SocketHooks struct {
	OnConnect    func(ctx *Context, transport Transport)
	OnDisconnect func(ctx *Context, transport Transport)
}

// ClientHooks control and observe client-level lifecycle.
type ClientHooks struct {
	// BeforeJoin runs synchronously after the target room is resolved and
	// before the client actually joins. Returning an error aborts the join
	// with a JOIN_DENIED wire error.
	BeforeJoin func(ctx *Context, client *ConnectedClient, roomID string, room *Room) error

	OnConnected    func(ctx *Context, client *ConnectedClient)
	OnDisconnected func(ctx *Context, client *ConnectedClient)
	OnJoined       func(ctx *Context, client *ConnectedClient, roomID string)
	OnLeft         func(ctx *Context, client *ConnectedClient, roomID string)
}

// EventHooks control and observe the trigger pipeline (§4.4). OnCleanup and
// OnLoad are the history-store fallback hooks (HistoryStore.Push /
// Room.History); they are declared here as type aliases purely to keep the
// "events.*" hook-contract naming from §6 visible at this layer, and are
// actually wired via HistoryStoreOption when the store is constructed.
type EventHooks struct {
	// BeforeEach runs synchronously, after construction and before fan-out.
	// It may mutate msg.Data and msg.Meta only. Returning an error aborts
	// the trigger and is surfaced back to the caller as VALIDATION_FAILED.
	BeforeEach func(ctx *Context, roomID string, msg *EventMessage, from string) error

	// AfterEach runs synchronously, fire-and-forget, after fan-out and the
	// history push, and receives the final recipient count.
	AfterEach func(ctx *Context, roomID string, msg EventMessage, recipientCount int)

	// OnTriggered fires after a successful trigger, fire-and-forget.
	OnTriggered func(roomID string, msg EventMessage)
}

// OnCleanup is the events.onCleanup hook type named in §6's hook contract
// table; it is the same type as OnCleanupHook in history.go.
type OnCleanup = OnCleanupHook

// OnLoad is the events.onLoad hook type named in §6's hook contract table;
// it is the same type as OnLoadHook in history.go.
type OnLoad = OnLoadHook
