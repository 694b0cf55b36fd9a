package auth

import (
	"sync"
	"time"
)

// EventType names a session transition.
type EventType string

const (
	EventSignedIn          EventType = "signed-in"
	EventSignedOut         EventType = "signed-out"
	EventRecoveryRequested EventType = "recovery-requested"
	EventUserUpdated       EventType = "user-updated"
)

// Event is a single session transition. Session is set for signed-in, User
// for user-updated, Email for recovery-requested.
type Event struct {
	Type    EventType
	Session *Session
	User    *User
	Email   string
	At      time.Time
}

const subscriberBuffer = 16

// SessionContext holds one caller's session explicitly and tells observers
// about every transition. The zero value is not usable; call NewSessionContext.
type SessionContext struct {
	mu          sync.RWMutex
	session     *Session
	subscribers map[chan Event]struct{}
	now         func() time.Time
}

func NewSessionContext() *SessionContext {
	return &SessionContext{
		subscribers: make(map[chan Event]struct{}),
		now:         time.Now,
	}
}

// Current returns a copy of the active session, or nil when signed out.
func (s *SessionContext) Current() *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	cp := *s.session
	if cp.User != nil {
		u := *cp.User
		cp.User = &u
	}
	return &cp
}

// SignedIn reports whether a session is active.
func (s *SessionContext) SignedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Apply performs the transition described by ev and notifies subscribers.
// Subscribers that are not keeping up lose events rather than blocking Apply.
func (s *SessionContext) Apply(ev Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch ev.Type {
	case EventSignedIn:
		if ev.Session != nil {
			cp := *ev.Session
			s.session = &cp
		}
	case EventSignedOut:
		s.session = nil
	case EventUserUpdated:
		if s.session != nil && ev.User != nil {
			u := *ev.User
			s.session.User = &u
		}
	}
	for ch := range s.subscribers {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers an observer. The returned function unsubscribes and
// closes the channel; it is safe to call more than once.
func (s *SessionContext) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}
