package server

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eos/lss/internal/game"
	"github.com/eos/lss/internal/metrics"
)

type binding struct {
	sessionID string
	userID    string
}

// Hub manages all WebSocket client connections and routes frames to the
// rooms of game sessions. Every field below mutex is guarded by it,
// including the binding fields of each Client.
type Hub struct {
	register   chan *Client
	unregister chan *Client

	mutex   sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]struct{}
	users   map[binding]*Client

	onDisconnect func(sessionID, userID string)

	log     *zap.Logger
	metrics *metrics.Metrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

var _ game.Notifier = (*Hub)(nil)

// NewHub creates a Hub; call Run before accepting connections.
func NewHub(log *zap.Logger, m *metrics.Metrics) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]struct{}),
		users:      make(map[binding]*Client),
		log:        log,
		metrics:    m,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// OnDisconnect sets the callback run when a connection that still owns a
// player binding goes away. Set it before Run.
func (h *Hub) OnDisconnect(fn func(sessionID, userID string)) {
	h.onDisconnect = fn
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.metrics.ClientConnected()
			h.log.Info("Client registered",
				zap.String("remote", client.addr),
				zap.String("connection", client.id),
				zap.Int("clients", clientCount))

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.mutex.Lock()
			ch, ok := h.dropLocked(client)
			clientCount := len(h.clients)
			h.mutex.Unlock()
			if ok {
				close(ch)
				h.log.Info("Client unregistered",
					zap.String("remote", client.addr),
					zap.Int("clients", clientCount))
			}
		}
	}
}

// registerClient hands c to the event loop. It reports false once the
// hub is shutting down.
func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// dropLocked forgets c and returns its send channel for closing outside
// the lock. Bindings stay until the read pump releases them.
func (h *Hub) dropLocked(c *Client) (chan []byte, bool) {
	if _, ok := h.clients[c]; !ok {
		return nil, false
	}
	delete(h.clients, c)
	c.closed = true
	h.metrics.ClientDisconnected()
	return c.send, true
}

// Bind attaches c to the room of sessionID as userID. A previous
// connection of the same player loses the binding, so only the newest
// connection counts for disconnect handling.
func (h *Hub) Bind(c *Client, sessionID, userID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	key := binding{sessionID: sessionID, userID: userID}
	if c.sessionID == sessionID && c.userID == userID && h.users[key] == c {
		return
	}
	h.unbindLocked(c)
	if old, ok := h.users[key]; ok && old != c {
		h.unbindLocked(old)
		h.log.Info("Player moved to a new connection",
			zap.String("session", sessionID),
			zap.String("user", userID),
			zap.String("remote", c.addr))
	}

	room, ok := h.rooms[sessionID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[sessionID] = room
	}
	room[c] = struct{}{}
	h.users[key] = c
	c.sessionID = sessionID
	c.userID = userID
}

func (h *Hub) unbindLocked(c *Client) {
	if c.sessionID == "" {
		return
	}
	key := binding{sessionID: c.sessionID, userID: c.userID}
	if h.users[key] == c {
		delete(h.users, key)
	}
	if room, ok := h.rooms[c.sessionID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.sessionID)
		}
	}
	c.sessionID = ""
	c.userID = ""
}

// release unbinds c and reports what it was bound to.
func (h *Hub) release(c *Client) (sessionID, userID string, ok bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sessionID, userID = c.sessionID, c.userID
	if sessionID == "" {
		return "", "", false
	}
	h.unbindLocked(c)
	return sessionID, userID, true
}

// Detach removes userID's connection from the room; the socket stays open.
func (h *Hub) Detach(sessionID, userID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if c, ok := h.users[binding{sessionID: sessionID, userID: userID}]; ok {
		h.unbindLocked(c)
	}
}

// CloseRoom unbinds every connection of sessionID.
func (h *Hub) CloseRoom(sessionID string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for c := range h.rooms[sessionID] {
		h.unbindLocked(c)
	}
	delete(h.rooms, sessionID)
}

// Broadcast sends payload to every connection in the room of sessionID.
func (h *Hub) Broadcast(sessionID string, payload []byte) {
	clients := h.roomSnapshot(sessionID)
	if len(clients) == 0 {
		return
	}
	h.log.Debug("Broadcasting to room",
		zap.String("session", sessionID),
		zap.Int("clients", len(clients)))

	var failed []*Client
	for _, c := range clients {
		if !h.safeSend(c, payload) {
			failed = append(failed, c)
		}
	}
	h.removeFailedClients(failed)
}

// SendToUser sends payload to the connection bound to userID in sessionID.
func (h *Hub) SendToUser(sessionID, userID string, payload []byte) {
	h.mutex.RLock()
	c, ok := h.users[binding{sessionID: sessionID, userID: userID}]
	h.mutex.RUnlock()
	if !ok {
		return
	}
	if !h.safeSend(c, payload) {
		h.removeFailedClients([]*Client{c})
	}
}

// reply sends payload to c whether or not it is bound.
func (h *Hub) reply(c *Client, payload []byte) {
	if !h.safeSend(c, payload) {
		h.removeFailedClients([]*Client{c})
	}
}

// ClientCount reports open connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RoomSize reports how many connections are bound to sessionID.
func (h *Hub) RoomSize(sessionID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.rooms[sessionID])
}

func (h *Hub) roomSnapshot(sessionID string) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	room := h.rooms[sessionID]
	clients := make([]*Client, 0, len(room))
	for c := range room {
		clients = append(clients, c)
	}
	return clients
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Recovered from panic in safeSend", zap.Any("panic", r))
		}
	}()

	// The read lock keeps the channel open for the duration of the send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailedClients drops clients whose send buffer is full and closes
// their channels, which makes the write pump hang up.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if ch, ok := h.dropLocked(client); ok {
			channelsToClose = append(channelsToClose, ch)
			h.log.Warn("Client removed due to full send buffer", zap.String("remote", client.addr))
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

// shutdownClients closes every connection and send channel.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections")

	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	var channelsToClose []chan []byte
	for client := range h.clients {
		clients = append(clients, client)
		if ch, ok := h.dropLocked(client); ok {
			channelsToClose = append(channelsToClose, ch)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("Error closing client connection", zap.String("remote", client.addr), zap.Error(err))
		}
	}

	h.log.Info("Closed client connections", zap.Int("count", len(clients)))
}

// Shutdown stops the event loop and waits for every pump to finish or
// for timeout.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// closing reports whether Shutdown has started.
func (h *Hub) closing() bool {
	return h.ctx.Err() != nil
}
