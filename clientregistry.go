package dialogue

import "sync"

// ClientRegistryMetrics is the optional gauge capability a ClientRegistry
// reports connection-count changes to.
type ClientRegistryMetrics interface {
	SetClientsConnected(n int)
}

// ClientRegistry maps connectionId -> client and userId -> set<connectionId>,
// kept strictly in sync on connect and disconnect, supporting
// multi-connection-per-user aggregation. Grounded on the teacher's
// Namespace.sockets map (namespace.go): a single forward map protected by
// one mutex, here joined with a second reverse index the teacher has no
// equivalent of (Socket.IO namespaces never aggregate by application user,
// only by socket id).
type ClientRegistry struct {
	mu       sync.RWMutex
	byConn   map[string]*ConnectedClient
	byUserID map[string]map[string]struct{} // userId -> set<connectionId>

	metrics ClientRegistryMetrics
}

// ClientRegistryOption configures a new ClientRegistry.
type ClientRegistryOption func(*ClientRegistry)

// WithClientRegistryMetrics attaches a gauge capability.
func WithClientRegistryMetrics(metrics ClientRegistryMetrics) ClientRegistryOption {
	return func(reg *ClientRegistry) { reg.metrics = metrics }
}

// NewClientRegistry constructs an empty ClientRegistry.
func NewClientRegistry(opts ...ClientRegistryOption) *ClientRegistry {
	reg := &ClientRegistry{
		byConn:   make(map[string]*ConnectedClient),
		byUserID: make(map[string]map[string]struct{}),
	}
	for _, opt := range opts {
		opt(reg)
	}
	return reg
}

// Add indexes a newly connected client under both the forward and reverse
// maps.
func (reg *ClientRegistry) Add(client *ConnectedClient) {
	reg.mu.Lock()
	reg.byConn[client.ConnectionID()] = client

	conns, ok := reg.byUserID[client.UserID()]
	if !ok {
		conns = make(map[string]struct{})
		reg.byUserID[client.UserID()] = conns
	}
	conns[client.ConnectionID()] = struct{}{}

	active := len(reg.byConn)
	reg.mu.Unlock()

	if reg.metrics != nil {
		reg.metrics.SetClientsConnected(active)
	}
}

// Remove purges connectionID from both maps, a no-op if absent.
func (reg *ClientRegistry) Remove(connectionID string) {
	reg.mu.Lock()
	client, ok := reg.byConn[connectionID]
	if !ok {
		reg.mu.Unlock()
		return
	}
	delete(reg.byConn, connectionID)

	if conns, ok := reg.byUserID[client.UserID()]; ok {
		delete(conns, connectionID)
		if len(conns) == 0 {
			delete(reg.byUserID, client.UserID())
		}
	}

	active := len(reg.byConn)
	reg.mu.Unlock()

	if reg.metrics != nil {
		reg.metrics.SetClientsConnected(active)
	}
}

// Get resolves a client by connection id.
func (reg *ClientRegistry) Get(connectionID string) (*ConnectedClient, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	client, ok := reg.byConn[connectionID]
	return client, ok
}

// ClientsByUserID resolves every connection currently registered to uid,
// skipping any reverse-index entry that has gone stale.
func (reg *ClientRegistry) ClientsByUserID(uid string) []*ConnectedClient {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	conns := reg.byUserID[uid]
	out := make([]*ConnectedClient, 0, len(conns))
	for connID := range conns {
		if client, ok := reg.byConn[connID]; ok {
			out = append(out, client)
		}
	}
	return out
}

// ClientRooms returns the union of joined-room ids across every connection
// of uid.
func (reg *ClientRegistry) ClientRooms(uid string) []string {
	seen := make(map[string]struct{})
	for _, client := range reg.ClientsByUserID(uid) {
		for _, roomID := range client.JoinedRooms() {
			seen[roomID] = struct{}{}
		}
	}

	out := make([]string, 0, len(seen))
	for roomID := range seen {
		out = append(out, roomID)
	}
	return out
}

// IsInRoom reports whether any connection of uid has joined roomID.
func (reg *ClientRegistry) IsInRoom(uid, roomID string) bool {
	for _, client := range reg.ClientsByUserID(uid) {
		if client.HasJoined(roomID) {
			return true
		}
	}
	return false
}

// LeaveAll removes every connection of uid from every room it had joined.
// If callback is non-nil it is invoked with each room id before that room's
// leave is applied.
func (reg *ClientRegistry) LeaveAll(uid string, callback func(roomID string)) {
	for _, client := range reg.ClientsByUserID(uid) {
		for _, roomID := range client.JoinedRooms() {
			if callback != nil {
				callback(roomID)
			}
			client.Leave(roomID)
		}
	}
}

// All returns a snapshot of every currently registered client.
func (reg *ClientRegistry) All() []*ConnectedClient {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*ConnectedClient, 0, len(reg.byConn))
	for _, client := range reg.byConn {
		out = append(out, client)
	}
	return out
}

// Count returns the number of currently registered connections.
func (reg *ClientRegistry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.byConn)
}
