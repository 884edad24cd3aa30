package dialogue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoomInfo is the client-facing summary of a room's public state, the
// dialogue:rooms / dialogue:roomCreated payload shape.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Size        int    `json:"size"`
	MaxSize     *int   `json:"maxSize,omitempty"`
	CreatedByID string `json:"createdById,omitempty"`
}

func roomInfoFor(room *Room) RoomInfo {
	info := RoomInfo{
		ID:          room.ID(),
		Name:        room.Name(),
		Description: room.Description(),
		Size:        room.Size(),
		CreatedByID: room.CreatedByID(),
	}
	if max := room.MaxSize(); max > 0 {
		info.MaxSize = &max
	}
	return info
}

// DispatcherMetrics is the optional counters capability for top-level
// rejections that are not attributable to any one room (ROOM_NOT_FOUND,
// INVALID_REQUEST, RATE_LIMITED).
type DispatcherMetrics interface {
	ObserveRejected(reason string)
}

// Dispatcher is the single state machine per connection described in §4.8:
// it decodes wire frames, runs the handshake and lifecycle hooks, and
// invokes the right registry/room operation. Grounded on the teacher's
// Socket.handleMessage/handleEvent (socket.go) for the decode-then-dispatch
// shape, generalized from Socket.IO's ack-oriented event model to this
// wire protocol's fixed dialogue:* verb table.
type Dispatcher struct {
	rooms       *RoomRegistry
	clients     *ClientRegistry
	auth        *AuthHooks
	socketHooks *SocketHooks
	clientHooks *ClientHooks

	rateLimiter         *RateLimiter
	forbidWildcardRooms bool

	metrics DispatcherMetrics
	log     *zap.SugaredLogger
}

// DispatcherOption configures a new Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithAuthHooks attaches the handshake authenticate hook.
func WithAuthHooks(hooks *AuthHooks) DispatcherOption {
	return func(d *Dispatcher) { d.auth = hooks }
}

// WithSocketHooks attaches the raw-transport lifecycle hooks.
func WithSocketHooks(hooks *SocketHooks) DispatcherOption {
	return func(d *Dispatcher) { d.socketHooks = hooks }
}

// WithClientHooks attaches the client-level lifecycle and beforeJoin hooks.
func WithClientHooks(hooks *ClientHooks) DispatcherOption {
	return func(d *Dispatcher) { d.clientHooks = hooks }
}

// WithDispatcherRateLimiter attaches the history-request rate limiter. A nil
// limiter (the default) allows every request.
func WithDispatcherRateLimiter(limiter *RateLimiter) DispatcherOption {
	return func(d *Dispatcher) { d.rateLimiter = limiter }
}

// WithForbidWildcardRooms implements the resolved open question (§9): when
// true, dialogue:createRoom requires a non-empty events list and rejects
// with INVALID_REQUEST otherwise.
func WithForbidWildcardRooms(forbid bool) DispatcherOption {
	return func(d *Dispatcher) { d.forbidWildcardRooms = forbid }
}

// WithDispatcherMetrics attaches a counters capability.
func WithDispatcherMetrics(metrics DispatcherMetrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = metrics }
}

// WithDispatcherLogger attaches a logger. Omitting this installs a no-op one.
func WithDispatcherLogger(log *zap.SugaredLogger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher constructs a Dispatcher bound to the given registries.
func NewDispatcher(rooms *RoomRegistry, clients *ClientRegistry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		rooms:   rooms,
		clients: clients,
		log:     zap.NewNop().Sugar(),
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.log == nil {
		d.log = zap.NewNop().Sugar()
	}

	return d
}

func (d *Dispatcher) hookContext(transport Transport) *Context {
	return &Context{rooms: d.rooms, clients: d.clients, transport: transport}
}

func (d *Dispatcher) observeRejected(reason string) {
	if d.metrics != nil {
		d.metrics.ObserveRejected(reason)
	}
}

// HandleConnect runs the handshake: authenticate (if configured, else the
// legacy fallback extraction), construct and index the ConnectedClient,
// fire socket.onConnect/clients.onConnected, and ack with
// dialogue:connected. It returns nil if authentication failed, in which
// case the transport has already been closed.
func (d *Dispatcher) HandleConnect(transport Transport, authPayload interface{}) *ConnectedClient {
	ctx := d.hookContext(transport)

	var auth *AuthData
	var userID string

	if d.auth != nil && d.auth.Authenticate != nil {
		data, err := d.auth.Authenticate(ctx, transport, authPayload)
		if err != nil {
			d.log.Warnw("handshake authentication failed", "remoteId", transport.RemoteID(), "message", err.Error())
			_ = transport.Close("authentication failed")
			return nil
		}
		auth = &data
		userID = data.Sub()
	} else {
		userID = fallbackUserID(authPayload, transport)
	}

	connectionID := uuid.NewString()
	client := NewConnectedClient(connectionID, userID, transport, auth, d.rooms, d.clientHooks, d.log)
	d.clients.Add(client)

	if d.socketHooks != nil && d.socketHooks.OnConnect != nil {
		go d.socketHooks.OnConnect(ctx, transport)
	}
	if d.clientHooks != nil && d.clientHooks.OnConnected != nil {
		go d.clientHooks.OnConnected(ctx, client)
	}

	client.emit("dialogue:connected", struct {
		ClientID string `json:"clientId"`
		UserID   string `json:"userId"`
	}{ClientID: connectionID, UserID: userID})

	return client
}

// fallbackUserID implements §9's legacy extraction chain when no
// authenticate hook is configured: auth.userId, else auth.token, else the
// transport's own connection identifier.
func fallbackUserID(authPayload interface{}, transport Transport) string {
	if m, ok := authPayload.(map[string]interface{}); ok {
		if v, ok := m["userId"].(string); ok && v != "" {
			return v
		}
		if v, ok := m["token"].(string); ok && v != "" {
			return v
		}
	}
	return transport.RemoteID()
}

// HandleDisconnect runs the disconnect flow of §4.8: clients.onDisconnected,
// then socket.onDisconnect, then room/client state teardown, then registry
// purge.
func (d *Dispatcher) HandleDisconnect(client *ConnectedClient) {
	ctx := d.hookContext(client.Transport())

	if d.clientHooks != nil && d.clientHooks.OnDisconnected != nil {
		go d.clientHooks.OnDisconnected(ctx, client)
	}
	if d.socketHooks != nil && d.socketHooks.OnDisconnect != nil {
		go d.socketHooks.OnDisconnect(ctx, client.Transport())
	}

	client.Disconnect()
	d.rooms.RemoveFromAllRooms(client.ConnectionID())
	d.clients.Remove(client.ConnectionID())
}

// HandleFrame decodes one inbound wire frame and routes it to the matching
// verb handler. Malformed frames, and malformed verb payloads, are dropped
// silently (logged at debug) except for dialogue:getHistory and
// dialogue:createRoom, which return typed INVALID_REQUEST errors per §4.8.
func (d *Dispatcher) HandleFrame(ctx context.Context, client *ConnectedClient, raw []byte) {
	frame, err := DecodeFrame(raw)
	if err != nil {
		d.log.Debugw("dropping malformed frame", "connectionId", client.ConnectionID(), "message", err.Error())
		return
	}

	switch frame.Event {
	case "dialogue:join":
		var payload struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
			return
		}
		d.handleJoin(ctx, client, payload.RoomID)

	case "dialogue:leave":
		var payload struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
			return
		}
		client.Leave(payload.RoomID)

	case "dialogue:subscribe":
		var payload struct {
			RoomID    string `json:"roomId"`
			EventName string `json:"eventName"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" || payload.EventName == "" {
			return
		}
		client.Subscribe(payload.RoomID, payload.EventName)

	case "dialogue:subscribeAll":
		var payload struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
			return
		}
		client.SubscribeAll(payload.RoomID)

	case "dialogue:unsubscribe":
		var payload struct {
			RoomID    string `json:"roomId"`
			EventName string `json:"eventName"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" || payload.EventName == "" {
			return
		}
		client.Unsubscribe(payload.RoomID, payload.EventName)

	case "dialogue:trigger":
		var payload struct {
			RoomID string          `json:"roomId"`
			Event  string          `json:"event"`
			Data   json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" || payload.Event == "" {
			return
		}
		var data interface{}
		if len(payload.Data) > 0 {
			if err := json.Unmarshal(payload.Data, &data); err != nil {
				return
			}
		}
		d.handleTrigger(client, payload.RoomID, payload.Event, data)

	case "dialogue:getHistory":
		var payload struct {
			RoomID    string `json:"roomId"`
			EventName string `json:"eventName"`
			Start     *int   `json:"start"`
			End       *int   `json:"end"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
			d.observeRejected("invalid_request")
			client.emitError(ErrCodeInvalidRequest, "getHistory requires a roomId")
			return
		}
		d.handleGetHistory(ctx, client, payload.RoomID, payload.EventName, payload.Start, payload.End)

	case "dialogue:listRooms":
		d.handleListRooms(client)

	case "dialogue:createRoom":
		var payload struct {
			ID          string   `json:"id"`
			Name        string   `json:"name"`
			Description string   `json:"description"`
			MaxSize     *int     `json:"maxSize"`
			Events      []string `json:"events"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil {
			d.observeRejected("invalid_request")
			client.emitError(ErrCodeInvalidRequest, "createRoom payload is malformed")
			return
		}
		d.handleCreateRoom(client, payload.ID, payload.Name, payload.Description, payload.MaxSize, payload.Events)

	case "dialogue:deleteRoom":
		var payload struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(frame.Data, &payload); err != nil || payload.RoomID == "" {
			return
		}
		d.handleDeleteRoom(client, payload.RoomID)

	default:
		d.log.Debugw("dropping unknown verb", "connectionId", client.ConnectionID(), "event", frame.Event)
	}
}

func (d *Dispatcher) handleJoin(ctx context.Context, client *ConnectedClient, roomID string) {
	room, ok := d.rooms.Get(roomID)
	if !ok {
		d.observeRejected("room_not_found")
		client.emitError(ErrCodeRoomNotFound, fmt.Sprintf("room '%s' not found", roomID))
		return
	}

	if d.clientHooks != nil && d.clientHooks.BeforeJoin != nil {
		if err := d.clientHooks.BeforeJoin(d.hookContext(client.Transport()), client, roomID, room); err != nil {
			client.emitError(ErrCodeJoinDenied, err.Error())
			return
		}
	}

	client.Join(roomID)

	if !client.HasJoined(roomID) {
		return
	}

	policy := room.SyncHistoryOnJoin()
	if policy.Enabled() {
		events := room.HistorySnapshot(policy.Limit())
		client.emit("dialogue:history", struct {
			RoomID string         `json:"roomId"`
			Events []EventMessage `json:"events"`
		}{RoomID: roomID, Events: events})
	}
}

func (d *Dispatcher) handleTrigger(client *ConnectedClient, roomID, eventName string, data interface{}) {
	room, ok := d.rooms.Get(roomID)
	if !ok {
		d.observeRejected("room_not_found")
		client.emitError(ErrCodeRoomNotFound, fmt.Sprintf("room '%s' not found", roomID))
		return
	}

	if !isEventAllowed(eventName, room.Events()) {
		client.emitError(ErrCodeEventNotAllowed, fmt.Sprintf("Event '%s' is not allowed in room '%s'", eventName, roomID))
		return
	}

	if _, err := room.Trigger(eventName, data, client.UserID(), nil); err != nil {
		client.emitError(ErrCodeValidationFailed, err.Error())
	}
}

func (d *Dispatcher) handleGetHistory(ctx context.Context, client *ConnectedClient, roomID, eventName string, startPtr, endPtr *int) {
	if d.rateLimiter != nil && !d.rateLimiter.IsAllowed(client.ConnectionID()) {
		d.observeRejected("rate_limited")
		client.emitError(ErrCodeRateLimited, "history request rate limit exceeded")
		return
	}

	room, ok := d.rooms.Get(roomID)
	if !ok {
		d.observeRejected("room_not_found")
		client.emitError(ErrCodeRoomNotFound, fmt.Sprintf("room '%s' not found", roomID))
		return
	}

	start, end := 0, 50
	if startPtr != nil {
		start = *startPtr
	}
	if endPtr != nil {
		end = *endPtr
	}

	var events []EventMessage
	var eventNamePayload interface{}

	if eventName != "" {
		events = room.History(ctx, eventName, start, end)
		eventNamePayload = eventName
	} else {
		all := room.HistorySnapshot(0)
		if start < 0 {
			start = 0
		}
		if end > len(all) {
			end = len(all)
		}
		if start < end {
			events = all[start:end]
		} else {
			events = []EventMessage{}
		}
	}

	client.emit("dialogue:historyResponse", struct {
		RoomID    string         `json:"roomId"`
		EventName interface{}    `json:"eventName"`
		Events    []EventMessage `json:"events"`
		Start     int            `json:"start"`
		End       int            `json:"end"`
	}{RoomID: roomID, EventName: eventNamePayload, Events: events, Start: start, End: end})
}

func (d *Dispatcher) handleListRooms(client *ConnectedClient) {
	rooms := d.rooms.All()
	infos := make([]RoomInfo, 0, len(rooms))
	for _, room := range rooms {
		infos = append(infos, roomInfoFor(room))
	}
	client.emit("dialogue:rooms", infos)
}

func (d *Dispatcher) handleCreateRoom(client *ConnectedClient, id, name, description string, maxSize *int, events []string) {
	if id == "" || name == "" {
		d.observeRejected("invalid_request")
		client.emitError(ErrCodeInvalidRequest, "createRoom requires id and name")
		return
	}

	if _, exists := d.rooms.Get(id); exists {
		client.emitError(ErrCodeRoomExists, fmt.Sprintf("room '%s' already exists", id))
		return
	}

	if d.forbidWildcardRooms && len(events) == 0 {
		d.observeRejected("invalid_request")
		client.emitError(ErrCodeInvalidRequest, "wildcard rooms are forbidden; specify events explicitly")
		return
	}

	opts := []RoomOption{WithCreatedByID(client.UserID())}
	if description != "" {
		opts = append(opts, WithDescription(description))
	}
	if maxSize != nil && *maxSize > 0 {
		opts = append(opts, WithMaxSize(*maxSize))
	}

	if len(events) > 0 {
		defs := make([]EventDefinition, 0, len(events))
		for _, name := range events {
			def, err := DefineEvent(name)
			if err != nil {
				client.emitError(ErrCodeInvalidRequest, err.Error())
				return
			}
			defs = append(defs, def)
		}
		opts = append(opts, WithRoomEvents(defs...))
	}

	room, err := d.rooms.Register(id, name, opts...)
	if err != nil {
		client.emitError(ErrCodeRoomExists, err.Error())
		return
	}

	info := roomInfoFor(room)
	client.emit("dialogue:roomCreated", info)

	frame, err := EncodeFrame("dialogue:roomCreated", info)
	if err != nil {
		d.log.Warnw("failed to encode dialogue:roomCreated broadcast frame", "roomId", id, "message", err.Error())
		return
	}
	for _, other := range d.clients.All() {
		if other.ConnectionID() == client.ConnectionID() {
			continue
		}
		_ = other.Transport().Send(frame)
	}
}

func (d *Dispatcher) handleDeleteRoom(client *ConnectedClient, roomID string) {
	room, ok := d.rooms.Get(roomID)
	if !ok {
		client.emitError(ErrCodeRoomNotFound, fmt.Sprintf("room '%s' not found", roomID))
		return
	}

	if room.CreatedByID() == "" || room.CreatedByID() != client.UserID() {
		client.emitError(ErrCodePermissionDenied, "only the room's creator may delete it")
		return
	}

	d.rooms.Unregister(roomID)
}
