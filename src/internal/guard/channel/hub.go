package channel

import (
	"context"
	"sync"

	"handyhub-admin-console/src/internal/models"
)

// Hub is an in-process origin: every context joined to it shares one key
// space, the way tabs of one browser share local storage. A guard process
// runs a single context, so the console binary never selects it; it serves
// embedders that host several contexts in one process, and the tests.
type Hub struct {
	mu          sync.Mutex
	values      map[Key]string
	members     map[string]*hubContext
	unavailable bool
}

func NewHub() *Hub {
	return &Hub{
		values:  make(map[Key]string),
		members: make(map[string]*hubContext),
	}
}

// Join attaches a context to the hub. Joining twice with the same id
// replaces the earlier membership.
func (h *Hub) Join(contextID string) Channel {
	c := &hubContext{hub: h, id: contextID, dispatcher: newDispatcher()}

	h.mu.Lock()
	previous := h.members[contextID]
	h.members[contextID] = c
	h.mu.Unlock()

	if previous != nil {
		previous.dispatcher.close()
	}
	return c
}

// SetUnavailable simulates storage that rejects every operation, as with
// exhausted quota or a locked-down private window.
func (h *Hub) SetUnavailable(unavailable bool) {
	h.mu.Lock()
	h.unavailable = unavailable
	h.mu.Unlock()
}

func (h *Hub) write(origin string, u Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unavailable {
		return models.ErrStorageUnavailable
	}

	current, present := h.values[u.Key]
	if present == u.Present && current == u.Value {
		return nil
	}

	if u.Present {
		h.values[u.Key] = u.Value
	} else {
		delete(h.values, u.Key)
	}

	// Enqueue under the hub lock so every member sees writes in one order.
	for id, member := range h.members {
		if id == origin {
			continue
		}
		member.dispatcher.enqueue(u)
	}
	return nil
}

func (h *Hub) read(key Key) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unavailable {
		return "", false, models.ErrStorageUnavailable
	}
	value, ok := h.values[key]
	return value, ok, nil
}

func (h *Hub) leave(c *hubContext) {
	h.mu.Lock()
	if h.members[c.id] == c {
		delete(h.members, c.id)
	}
	h.mu.Unlock()
}

type hubContext struct {
	hub        *Hub
	id         string
	dispatcher *dispatcher
	closeOnce  sync.Once
}

func (c *hubContext) Publish(_ context.Context, key Key, value string) error {
	return c.hub.write(c.id, Update{Key: key, Value: value, Present: true})
}

func (c *hubContext) Clear(_ context.Context, key Key) error {
	return c.hub.write(c.id, Update{Key: key})
}

func (c *hubContext) Get(_ context.Context, key Key) (string, bool, error) {
	return c.hub.read(key)
}

func (c *hubContext) Subscribe(key Key, handler Handler) func() {
	return c.dispatcher.subscribe(key, handler)
}

func (c *hubContext) Close() error {
	c.closeOnce.Do(func() {
		c.hub.leave(c)
		c.dispatcher.close()
	})
	return nil
}
