package auth

import (
	"strings"
	"sync"
	"time"
)

// UserEvent is an Event tagged with the account it belongs to.
type UserEvent struct {
	UserID string
	Event
}

// Hub keeps a SessionContext per user on the server side and fans every
// transition out to hub-wide observers such as the audit log. Tokens are
// stripped before sessions are stored.
type Hub struct {
	mu          sync.RWMutex
	sessions    map[string]*SessionContext
	subscribers map[chan UserEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{
		sessions:    make(map[string]*SessionContext),
		subscribers: make(map[chan UserEvent]struct{}),
	}
}

// Session returns the context for userID, creating it on first use.
func (h *Hub) Session(userID string) *SessionContext {
	userID = strings.TrimSpace(userID)
	h.mu.RLock()
	sc, ok := h.sessions[userID]
	h.mu.RUnlock()
	if ok {
		return sc
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if sc, ok := h.sessions[userID]; ok {
		return sc
	}
	sc = NewSessionContext()
	h.sessions[userID] = sc
	return sc
}

// Lookup returns the context for userID without creating one.
func (h *Hub) Lookup(userID string) (*SessionContext, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	sc, ok := h.sessions[strings.TrimSpace(userID)]
	return sc, ok
}

// Publish applies ev to the user's context and notifies hub subscribers.
// Only signed-in creates a context. Recovery requests carry an email rather
// than a user id, so they reach subscribers only. A signed-out user's
// context is dropped after observers have seen it.
func (h *Hub) Publish(userID string, ev Event) {
	userID = strings.TrimSpace(userID)
	if ev.Session != nil {
		ev.Session = ev.Session.WithoutTokens()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	switch ev.Type {
	case EventSignedIn:
		h.Session(userID).Apply(ev)
	case EventRecoveryRequested:
	default:
		if sc, ok := h.Lookup(userID); ok {
			sc.Apply(ev)
		}
	}

	h.mu.RLock()
	for ch := range h.subscribers {
		select {
		case ch <- UserEvent{UserID: userID, Event: ev}:
		default:
		}
	}
	h.mu.RUnlock()

	if ev.Type == EventSignedOut {
		h.mu.Lock()
		delete(h.sessions, userID)
		h.mu.Unlock()
	}
}

// Active returns the number of users with a live session.
func (h *Hub) Active() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, sc := range h.sessions {
		if sc.SignedIn() {
			n++
		}
	}
	return n
}

// Subscribe registers a hub-wide observer.
func (h *Hub) Subscribe() (<-chan UserEvent, func()) {
	ch := make(chan UserEvent, subscriberBuffer)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}
