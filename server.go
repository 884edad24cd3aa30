package dialogue

import (
	"context"

	"go.uber.org/zap"
)

// Server is the top-level façade wiring the room registry, client
// registry, shared history store, and protocol dispatcher into one unit a
// transport layer can drive. Grounded on the teacher's Server (server.go):
// the same "one long-lived object owning every namespace/room, exposing
// Of/To/Emit-style convenience plus a ServeHTTP-adjacent connection
// entrypoint" shape, generalized from Socket.IO namespaces to this
// package's rooms.
type Server struct {
	rooms      *RoomRegistry
	clients    *ClientRegistry
	dispatcher *Dispatcher
	history    *HistoryStore

	rateLimiter *RateLimiter
	log         *zap.SugaredLogger
}

// ServerOption configures a new Server.
type ServerOption func(*serverConfig)

type serverConfig struct {
	log *zap.SugaredLogger

	historyCleanup OnCleanupHook
	historyLoad    OnLoadHook

	auth        *AuthHooks
	socketHooks *SocketHooks
	clientHooks *ClientHooks

	registryHooks   *RoomRegistryHooks
	registryMetrics RegistryMetrics
	clientsMetrics  ClientRegistryMetrics
	dispatchMetrics DispatcherMetrics

	rateLimiter         *RateLimiter
	forbidWildcardRooms bool
}

// WithServerLogger attaches the sugared logger threaded through every
// component. Omitting this installs a no-op logger.
func WithServerLogger(log *zap.SugaredLogger) ServerOption {
	return func(c *serverConfig) { c.log = log }
}

// WithHistoryHooks attaches the shared history store's onCleanup/onLoad
// hooks.
func WithHistoryHooks(onCleanup OnCleanupHook, onLoad OnLoadHook) ServerOption {
	return func(c *serverConfig) {
		c.historyCleanup = onCleanup
		c.historyLoad = onLoad
	}
}

// WithServerAuthHooks attaches the handshake authenticate hook.
func WithServerAuthHooks(hooks *AuthHooks) ServerOption {
	return func(c *serverConfig) { c.auth = hooks }
}

// WithServerSocketHooks attaches the raw-transport lifecycle hooks.
func WithServerSocketHooks(hooks *SocketHooks) ServerOption {
	return func(c *serverConfig) { c.socketHooks = hooks }
}

// WithServerClientHooks attaches the client-level lifecycle and beforeJoin
// hooks.
func WithServerClientHooks(hooks *ClientHooks) ServerOption {
	return func(c *serverConfig) { c.clientHooks = hooks }
}

// WithServerRegistryHooks attaches the rooms.onCreated/onDeleted hooks.
func WithServerRegistryHooks(hooks *RoomRegistryHooks) ServerOption {
	return func(c *serverConfig) { c.registryHooks = hooks }
}

// WithServerMetrics attaches the registry, client-registry, and dispatcher
// counters/gauges capabilities. Any argument may be nil.
func WithServerMetrics(rooms RegistryMetrics, clients ClientRegistryMetrics, dispatch DispatcherMetrics) ServerOption {
	return func(c *serverConfig) {
		c.registryMetrics = rooms
		c.clientsMetrics = clients
		c.dispatchMetrics = dispatch
	}
}

// WithServerRateLimiter attaches the history-request rate limiter.
func WithServerRateLimiter(limiter *RateLimiter) ServerOption {
	return func(c *serverConfig) { c.rateLimiter = limiter }
}

// WithServerForbidWildcardRooms implements the resolved open question (§9).
func WithServerForbidWildcardRooms(forbid bool) ServerOption {
	return func(c *serverConfig) { c.forbidWildcardRooms = forbid }
}

// NewServer constructs a fully wired Server: a shared history store, the
// room and client registries, and the dispatcher that binds them together.
func NewServer(opts ...ServerOption) *Server {
	cfg := &serverConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	log := cfg.log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	historyOpts := []HistoryStoreOption{WithHistoryLogger(log)}
	if cfg.historyCleanup != nil {
		historyOpts = append(historyOpts, WithCleanupHook(cfg.historyCleanup))
	}
	if cfg.historyLoad != nil {
		historyOpts = append(historyOpts, WithLoadHook(cfg.historyLoad))
	}
	history := NewHistoryStore(historyOpts...)

	registryOpts := []RoomRegistryOption{WithRegistryLogger(log)}
	if cfg.registryHooks != nil {
		registryOpts = append(registryOpts, WithRegistryHooks(cfg.registryHooks))
	}
	if cfg.registryMetrics != nil {
		registryOpts = append(registryOpts, WithRegistryMetrics(cfg.registryMetrics))
	}
	rooms := NewRoomRegistry(history, registryOpts...)

	var clientOpts []ClientRegistryOption
	if cfg.clientsMetrics != nil {
		clientOpts = append(clientOpts, WithClientRegistryMetrics(cfg.clientsMetrics))
	}
	clients := NewClientRegistry(clientOpts...)
	rooms.SetClients(clients)

	dispatcherOpts := []DispatcherOption{
		WithDispatcherLogger(log),
		WithForbidWildcardRooms(cfg.forbidWildcardRooms),
	}
	if cfg.auth != nil {
		dispatcherOpts = append(dispatcherOpts, WithAuthHooks(cfg.auth))
	}
	if cfg.socketHooks != nil {
		dispatcherOpts = append(dispatcherOpts, WithSocketHooks(cfg.socketHooks))
	}
	if cfg.clientHooks != nil {
		dispatcherOpts = append(dispatcherOpts, WithClientHooks(cfg.clientHooks))
	}
	if cfg.rateLimiter != nil {
		dispatcherOpts = append(dispatcherOpts, WithDispatcherRateLimiter(cfg.rateLimiter))
	}
	if cfg.dispatchMetrics != nil {
		dispatcherOpts = append(dispatcherOpts, WithDispatcherMetrics(cfg.dispatchMetrics))
	}
	dispatcher := NewDispatcher(rooms, clients, dispatcherOpts...)

	return &Server{
		rooms:       rooms,
		clients:     clients,
		dispatcher:  dispatcher,
		history:     history,
		rateLimiter: cfg.rateLimiter,
		log:         log,
	}
}

// HandleConnect runs the handshake for a newly accepted transport
// connection and returns the resulting ConnectedClient, or nil if
// authentication rejected it.
func (s *Server) HandleConnect(transport Transport, authPayload interface{}) *ConnectedClient {
	return s.dispatcher.HandleConnect(transport, authPayload)
}

// HandleMessage decodes and routes one inbound wire frame for client.
func (s *Server) HandleMessage(ctx context.Context, client *ConnectedClient, raw []byte) {
	s.dispatcher.HandleFrame(ctx, client, raw)
}

// HandleDisconnect runs the disconnect flow for client.
func (s *Server) HandleDisconnect(client *ConnectedClient) {
	s.dispatcher.HandleDisconnect(client)
}

// CreateRoom registers a new room, the same operation dialogue:createRoom
// drives from the wire, available here for startup/API-originated room
// creation.
func (s *Server) CreateRoom(id, name string, opts ...RoomOption) (*Room, error) {
	return s.rooms.Register(id, name, opts...)
}

// DeleteRoom unregisters a room, evacuating its participants. It returns
// false if the room did not exist.
func (s *Server) DeleteRoom(id string) bool {
	return s.rooms.Unregister(id)
}

// Room looks up a room by id.
func (s *Server) Room(id string) (*Room, bool) {
	return s.rooms.Get(id)
}

// Rooms returns a snapshot of every registered room.
func (s *Server) Rooms() []*Room {
	return s.rooms.All()
}

// Clients returns the client registry.
func (s *Server) Clients() *ClientRegistry {
	return s.clients
}

// RoomRegistry returns the room registry.
func (s *Server) RoomRegistry() *RoomRegistry {
	return s.rooms
}

// Trigger runs a server-originated event (from a REST handler, background
// job, etc.) through the same pipeline a client trigger uses, with
// from defaulting to "system".
func (s *Server) Trigger(roomID, eventName string, data interface{}, meta map[string]interface{}) (EventMessage, error) {
	room, ok := s.rooms.Get(roomID)
	if !ok {
		return EventMessage{}, newError(KindNotFound, "room %q not found", roomID)
	}
	return room.Trigger(eventName, data, "", meta)
}

// Close stops any background work owned by the server (currently just the
// rate limiter's sweep goroutine, if one was configured).
func (s *Server) Close() error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	return nil
}
