package hub

import (
	"context"
	"sync"

	"github.com/weiawesome/wes-io-chat/pkg/log"
)

type target int

const (
	targetRoom target = iota
	targetUser
	targetAll
)

// Envelope is one queued outbound frame.
type Envelope struct {
	target  target
	key     string // conversation id or user id
	exclude string // user id whose connections are skipped
	data    []byte
}

// Hub tracks live connections on this instance: by id, by user and by
// conversation room. Membership changes are applied synchronously under mu;
// outbound frames go through a single queue drained by Run, so frames enqueued
// in order reach every connection's send buffer in that order.
type Hub struct {
	clients   map[string]*Client            // clientID -> client
	users     map[string]map[string]*Client // userID -> clientID -> client
	rooms     map[string]map[string]*Client // conversationID -> clientID -> client
	broadcast chan *Envelope
	done      chan struct{}
	stopOnce  sync.Once
	mu        sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		users:     make(map[string]map[string]*Client),
		rooms:     make(map[string]map[string]*Client),
		broadcast: make(chan *Envelope, 1024),
		done:      make(chan struct{}),
	}
}

// Run drains the broadcast queue until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case env := <-h.broadcast:
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env *Envelope) {
	var slow []*Client

	h.mu.RLock()
	var set map[string]*Client
	switch env.target {
	case targetRoom:
		set = h.rooms[env.key]
	case targetUser:
		set = h.users[env.key]
	case targetAll:
		set = h.clients
	}
	for _, client := range set {
		if env.exclude != "" && client.UserID() == env.exclude {
			continue
		}
		if !client.enqueue(env.data) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// A full send queue means the peer stopped reading. Closing the socket
	// ends its read loop, which runs the normal disconnect path.
	for _, client := range slow {
		l := log.L()
		l.Warn().Str(log.FieldClientID, client.ID).Str(log.FieldUserID, client.UserID()).Msg("send queue full, dropping client")
		client.Close()
	}
}

func (h *Hub) enqueue(env *Envelope) {
	select {
	case h.broadcast <- env:
	case <-h.done:
	}
}

// Register adds the client to the hub and to its user's connection set.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	userID := client.UserID()
	if _, ok := h.users[userID]; !ok {
		h.users[userID] = make(map[string]*Client)
	}
	h.users[userID][client.ID] = client

	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldUserID, userID).Msg("client registered")
}

// Unregister removes the client from every room and closes its send queue.
// It reports false when the client was not registered.
func (h *Hub) Unregister(client *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return false
	}

	for convID, members := range h.rooms {
		delete(members, client.ID)
		if len(members) == 0 {
			delete(h.rooms, convID)
		}
	}
	userID := client.UserID()
	if conns, ok := h.users[userID]; ok {
		delete(conns, client.ID)
		if len(conns) == 0 {
			delete(h.users, userID)
		}
	}
	delete(h.clients, client.ID)
	client.closeSend()

	l := log.L()
	l.Debug().Str(log.FieldClientID, client.ID).Str(log.FieldUserID, userID).Msg("client unregistered")
	return true
}

// JoinRoom adds registered clients to a conversation room.
func (h *Hub) JoinRoom(conversationID string, clients ...*Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range clients {
		if _, ok := h.clients[client.ID]; !ok {
			continue
		}
		h.joinLocked(conversationID, client)
	}
}

// JoinUser adds every live connection of userID to a conversation room and
// returns how many were joined.
func (h *Hub) JoinUser(conversationID, userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.users[userID]
	for _, client := range conns {
		h.joinLocked(conversationID, client)
	}
	return len(conns)
}

func (h *Hub) joinLocked(conversationID string, client *Client) {
	if _, ok := h.rooms[conversationID]; !ok {
		h.rooms[conversationID] = make(map[string]*Client)
	}
	h.rooms[conversationID][client.ID] = client
}

// BroadcastToRoom queues data for every connection in the room except those
// belonging to excludeUserID.
func (h *Hub) BroadcastToRoom(conversationID string, data []byte, excludeUserID string) {
	h.enqueue(&Envelope{target: targetRoom, key: conversationID, exclude: excludeUserID, data: data})
}

// BroadcastToUser queues data for every connection of userID.
func (h *Hub) BroadcastToUser(userID string, data []byte) {
	h.enqueue(&Envelope{target: targetUser, key: userID, data: data})
}

// BroadcastToAll queues data for every connection.
func (h *Hub) BroadcastToAll(data []byte) {
	h.enqueue(&Envelope{target: targetAll, data: data})
}

// SendToClient writes directly to one connection, bypassing the queue. It is
// used for replies to that connection only (errors, pong).
func (h *Hub) SendToClient(client *Client, data []byte) bool {
	h.mu.RLock()
	_, ok := h.clients[client.ID]
	delivered := ok && client.enqueue(data)
	h.mu.RUnlock()

	if ok && !delivered {
		client.Close()
	}
	return delivered
}

// RoomSize returns the number of connections in a room.
func (h *Hub) RoomSize(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// InRoom reports whether the client is a member of the room.
func (h *Hub) InRoom(conversationID, clientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.rooms[conversationID][clientID]
	return ok
}

// UserConnections returns the number of live connections of userID on this
// instance.
func (h *Hub) UserConnections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID])
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll closes every connection, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Close()
	}
}
