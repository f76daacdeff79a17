// Package session tracks the signed-in user and notifies subscribers when
// that changes.
package session

import (
	"sync"
)

// Event describes a session change. UserID is empty after sign-out.
type Event struct {
	UserID        string
	PreviousID    string
	Authenticated bool
}

// SignedOut reports whether the event ends a session.
func (e Event) SignedOut() bool { return !e.Authenticated }

// UserChanged reports whether a different user is now signed in.
func (e Event) UserChanged() bool { return e.UserID != e.PreviousID }

type subscriber struct {
	id int
	fn func(Event)
}

// Session holds the current user id and access token. An empty token marks
// an offline session: the user is known locally but the server was not asked.
type Session struct {
	mu     sync.RWMutex
	userID string
	token  string

	subMu  sync.Mutex
	nextID int
	subs   []subscriber
}

func New() *Session {
	return &Session{}
}

// SignIn sets the current user and notifies subscribers.
func (s *Session) SignIn(userID, token string) {
	s.mu.Lock()
	prev := s.userID
	s.userID, s.token = userID, token
	s.mu.Unlock()

	s.publish(Event{UserID: userID, PreviousID: prev, Authenticated: true})
}

// SignOut clears the session. Signing out with no user is a no-op.
func (s *Session) SignOut() {
	s.mu.Lock()
	prev := s.userID
	s.userID, s.token = "", ""
	s.mu.Unlock()

	if prev == "" {
		return
	}
	s.publish(Event{PreviousID: prev})
}

// Current returns the signed-in user id and whether there is one.
func (s *Session) Current() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID, s.userID != ""
}

// Token returns the bearer token, empty when signed out or offline.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// Subscribe registers fn for session events. Handlers run synchronously in
// subscription order on the goroutine that changed the session. The returned
// function removes the subscription and is safe to call more than once.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscriber{id: id, fn: fn})
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Session) publish(e Event) {
	s.subMu.Lock()
	subs := append([]subscriber(nil), s.subs...)
	s.subMu.Unlock()

	for _, sub := range subs {
		sub.fn(e)
	}
}
