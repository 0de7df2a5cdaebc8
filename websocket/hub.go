package websocket

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// Hub tracks the open in-app connections of each user. A user may have several tabs open.
type Hub struct {
	mu      sync.RWMutex
	clients map[uuid.UUID]map[Conn]struct{}
	log     logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{clients: make(map[uuid.UUID]map[Conn]struct{}), log: log}
}

func (h *Hub) Register(userID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns, ok := h.clients[userID]
	if !ok {
		conns = make(map[Conn]struct{})
		h.clients[userID] = conns
	}
	conns[conn] = struct{}{}
	h.log.WithField("user_id", userID).Debug("websocket client registered")
}

func (h *Hub) Unregister(userID uuid.UUID, conn Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(userID, conn)
}

func (h *Hub) remove(userID uuid.UUID, conn Conn) {
	conns, ok := h.clients[userID]
	if !ok {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(h.clients, userID)
	}
}

// Connected returns the number of open connections of the user.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Push writes v to every connection of the user and drops connections that fail.
func (h *Hub) Push(userID uuid.UUID, v interface{}) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for conn := range h.clients[userID] {
		if err := conn.WriteJSON(v); err != nil {
			h.log.WithError(err).WithField("user_id", userID).Warn("dropping websocket client after write error")
			_ = conn.Close()
			h.remove(userID, conn)
			continue
		}
		delivered++
	}
	return delivered
}
