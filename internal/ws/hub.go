package ws

import (
	"context"
	"sync"
	"time"

	"townsquare/internal/services/history"
)

// Hub owns the room registry: rooms are created on first join and removed
// on last leave, so no empty room ever lingers in memory. The hub mutex
// only guards the map; each room serializes its own traffic.
type Hub struct {
	hist      history.IHistoryService
	typingTTL time.Duration

	mu    sync.Mutex
	rooms map[string]*room
}

func NewHub(hist history.IHistoryService, typingTTL time.Duration) *Hub {
	return &Hub{
		hist:      hist,
		typingTTL: typingTTL,
		rooms:     make(map[string]*room),
	}
}

// Join adds the member to the room for key, creating the room if needed.
// The backfill frames are delivered to the joining member before any live
// traffic it can observe.
func (h *Hub) Join(key string, m *member, backfill [][]byte) {
	for {
		h.mu.Lock()
		r, ok := h.rooms[key]
		if !ok || r.isClosed() {
			r = newRoom(key, h)
			h.rooms[key] = r
		}
		h.mu.Unlock()

		// The room may close between the map read and the join if its
		// last member left concurrently; retry against a fresh one.
		if r.join(m, backfill) {
			return
		}
	}
}

// Leave removes the member from the room and tears the room down when it
// was the last one. Safe to call twice for the same connection.
func (h *Hub) Leave(key, connID string) {
	h.mu.Lock()
	r, ok := h.rooms[key]
	h.mu.Unlock()
	if !ok {
		return
	}

	if r.leave(connID) {
		h.mu.Lock()
		// Only delete the instance we drained; a fresh room may already
		// sit under the same key.
		if h.rooms[key] == r {
			delete(h.rooms, key)
		}
		h.mu.Unlock()
	}
}

// Send routes a chat message to the member's room. A vanished room means
// the sender is mid-disconnect; the message is dropped silently.
func (h *Hub) Send(ctx context.Context, key, connID, text string) error {
	if r := h.room(key); r != nil {
		return r.send(ctx, connID, text)
	}
	return nil
}

func (h *Hub) SetTyping(key, connID string, typing bool) {
	if r := h.room(key); r != nil {
		r.setTyping(connID, typing)
	}
}

func (h *Hub) SetNick(key, connID, nick string) {
	if r := h.room(key); r != nil {
		r.setNick(connID, nick)
	}
}

// RoomSize reports the live member count, zero if the room does not exist.
func (h *Hub) RoomSize(key string) int {
	if r := h.room(key); r != nil {
		return r.size()
	}
	return 0
}

// RunTypingSweep expires stale typing state across all rooms once a second
// until ctx is done. The sweep never holds the hub lock during fan-out.
func (h *Hub) RunTypingSweep(ctx context.Context, interval time.Duration) {
	tk := time.NewTicker(interval)
	defer tk.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-tk.C:
			for _, r := range h.snapshot() {
				r.expireTyping(now)
			}
		}
	}
}

func (h *Hub) room(key string) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rooms[key]
}

func (h *Hub) snapshot() []*room {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*room, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, r)
	}
	return out
}
