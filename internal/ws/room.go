package ws

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"townsquare/internal/services/history"
)

var ErrEmptyMessage = errors.New("empty_message")

// room is the broadcast unit for one room key. Its mutex is the only
// serialization point: enqueueing to member queues happens under it, so
// every member observes the same event order for this room. The queue
// sends never block, which keeps the critical section short.
type room struct {
	key string
	hub *Hub

	mu       sync.Mutex
	presence *tracker
	closed   bool // set on last leave; a closed room never accepts joins
}

func newRoom(key string, hub *Hub) *room {
	return &room{
		key:      key,
		hub:      hub,
		presence: newTracker(),
	}
}

// join delivers the backfill to the new member, registers it, and announces
// it to everyone else. The joining member does not receive its own join
// event. Returns false if the room already closed; the hub then retries
// against a fresh room.
func (r *room) join(m *member, backfill [][]byte) bool {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return false
	}
	for _, frame := range backfill {
		if !m.conn.trySend(frame) {
			break // queue smaller than backfill; live traffic wins
		}
	}
	r.presence.add(m)
	overflow := r.broadcastLocked(presenceFrame(frameJoin, m.id, m.nick, time.Now()), m.id)
	r.mu.Unlock()

	r.dropSlow(overflow)
	return true
}

// leave removes the member and announces it. Idempotent: a second call for
// the same connection ID is a no-op, which absorbs double disconnects.
// Returns true when the room became empty and must be torn down.
func (r *room) leave(connID string) (becameEmpty bool) {
	r.mu.Lock()
	m := r.presence.remove(connID)
	if m == nil {
		r.mu.Unlock()
		return false
	}
	m.conn.close()
	var overflow []*member
	if r.presence.size() == 0 {
		r.closed = true
		becameEmpty = true
	} else {
		overflow = r.broadcastLocked(presenceFrame(frameLeave, m.id, m.nick, time.Now()), m.id)
	}
	r.mu.Unlock()

	r.dropSlow(overflow)
	return becameEmpty
}

// send persists the message and fans it out to every member including the
// sender, so the sender sees the server-assigned timestamp and ordering.
func (r *room) send(ctx context.Context, connID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	r.mu.Lock()
	m := r.presence.get(connID)
	if m == nil {
		r.mu.Unlock()
		return nil // sender mid-disconnect; drop silently
	}
	ev := history.Event{
		RoomKey: r.key,
		ConnID:  connID,
		Nick:    m.nick, // snapshot at send time
		Text:    text,
		Ts:      time.Now().UTC(),
	}
	r.mu.Unlock()

	// Persistence stays outside the room lock so a slow backend never
	// stalls fan-out. A degraded store only costs backfill completeness.
	if err := r.hub.hist.Append(ctx, ev); err != nil {
		zap.L().Warn("ws.history_append", zap.String("room", r.key), zap.Error(err))
	}

	r.mu.Lock()
	overflow := r.broadcastLocked(messageFrame(ev), "")
	r.mu.Unlock()

	r.dropSlow(overflow)
	return nil
}

// setTyping updates presence and tells the other members. Typing frames are
// transient: never persisted, and dropped for anyone mid-disconnect.
func (r *room) setTyping(connID string, typing bool) {
	now := time.Now()
	r.mu.Lock()
	m := r.presence.get(connID)
	if m == nil {
		r.mu.Unlock()
		return
	}
	r.presence.setTyping(connID, typing, now, r.hub.typingTTL)
	overflow := r.broadcastLocked(typingFrame(m.id, m.nick, typing, now), m.id)
	r.mu.Unlock()

	r.dropSlow(overflow)
}

// setNick renames the member for all subsequent events. Previously emitted
// events keep the nick they were sent with.
func (r *room) setNick(connID, nick string) {
	r.mu.Lock()
	if m := r.presence.get(connID); m != nil {
		m.nick = nick
	}
	r.mu.Unlock()
}

// expireTyping is driven by the hub's periodic sweep and emits a synthetic
// typing=false for every member whose refresh lapsed.
func (r *room) expireTyping(now time.Time) {
	r.mu.Lock()
	var overflow []*member
	for _, m := range r.presence.expireTyping(now) {
		overflow = append(overflow,
			r.broadcastLocked(typingFrame(m.id, m.nick, false, now), m.id)...)
	}
	r.mu.Unlock()

	r.dropSlow(overflow)
}

func (r *room) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.presence.size()
}

func (r *room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// broadcastLocked enqueues a frame to every member except the given one.
// Callers hold r.mu. Members whose queue is full are returned for
// disconnection once the lock is released.
func (r *room) broadcastLocked(frame []byte, except string) []*member {
	var overflow []*member
	for _, m := range r.presence.list() {
		if m.id == except {
			continue
		}
		if !m.conn.trySend(frame) {
			overflow = append(overflow, m)
		}
	}
	return overflow
}

// dropSlow disconnects members that could not keep up. Bounded queue plus
// drop beats backpressure on the whole room.
func (r *room) dropSlow(overflow []*member) {
	for _, m := range overflow {
		zap.L().Warn("ws.slow_consumer",
			zap.String("room", r.key), zap.String("conn", m.id))
		r.hub.Leave(r.key, m.id)
	}
}
