package ws

import "time"

// member is the ephemeral identity of one connection. It lives exactly as
// long as the connection and is never reused across reconnects.
type member struct {
	id   string
	nick string
	conn sender

	// zero when not typing; refreshed by every typing=true signal
	typingUntil time.Time
}

// tracker holds a room's live member set and typing state. It is a plain
// data structure: the owning room's mutex serializes every call.
type tracker struct {
	members map[string]*member
}

func newTracker() *tracker {
	return &tracker{members: make(map[string]*member)}
}

// add registers a member. A duplicate connection ID replaces the previous
// entry instead of duplicating it.
func (t *tracker) add(m *member) {
	t.members[m.id] = m
}

// remove unregisters and returns the member, or nil if already gone.
func (t *tracker) remove(connID string) *member {
	m, ok := t.members[connID]
	if !ok {
		return nil
	}
	delete(t.members, connID)
	return m
}

func (t *tracker) get(connID string) *member {
	return t.members[connID]
}

func (t *tracker) size() int { return len(t.members) }

// list returns a snapshot of the current members.
func (t *tracker) list() []*member {
	out := make([]*member, 0, len(t.members))
	for _, m := range t.members {
		out = append(out, m)
	}
	return out
}

func (t *tracker) setTyping(connID string, typing bool, now time.Time, ttl time.Duration) {
	m, ok := t.members[connID]
	if !ok {
		return
	}
	if typing {
		m.typingUntil = now.Add(ttl)
	} else {
		m.typingUntil = time.Time{}
	}
}

// isTyping applies passive expiry: a stale refresh counts as not typing
// even before the sweep has run.
func (t *tracker) isTyping(connID string, now time.Time) bool {
	m, ok := t.members[connID]
	return ok && now.Before(m.typingUntil)
}

// expireTyping clears lapsed typing state and returns the affected members,
// so the room can tell everyone they stopped. Clients that crash mid-typing
// never send an explicit stop signal.
func (t *tracker) expireTyping(now time.Time) []*member {
	var expired []*member
	for _, m := range t.members {
		if !m.typingUntil.IsZero() && !now.Before(m.typingUntil) {
			m.typingUntil = time.Time{}
			expired = append(expired, m)
		}
	}
	return expired
}
