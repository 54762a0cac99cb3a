package domain

import (
	"sync"
	"time"
)

// SessionState is the protocol state of one connection.
type SessionState int

const (
	StateConnected SessionState = iota
	StateInRoom
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInRoom:
		return "in_room"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session tracks the identity and room of an authenticated connection.
// Closed is terminal.
type Session struct {
	ID          string
	UserID      string
	Username    string
	ConnectedAt time.Time

	mu     sync.RWMutex
	state  SessionState
	roomID string
}

// NewSession returns a session in the Connected state.
func NewSession(id, userID, username string) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		Username:    username,
		ConnectedAt: time.Now(),
		state:       StateConnected,
	}
}

// JoinRoom moves the session into roomID and returns the room it left, if any.
func (s *Session) JoinRoom(roomID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", ErrSessionClosed
	}
	prev := s.roomID
	s.roomID = roomID
	s.state = StateInRoom
	return prev, nil
}

// LeaveRoom returns the session to Connected and reports the room it left.
func (s *Session) LeaveRoom() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return "", ErrSessionClosed
	case StateConnected:
		return "", ErrNotInRoom
	}
	prev := s.roomID
	s.roomID = ""
	s.state = StateConnected
	return prev, nil
}

// Close makes the session terminal. It returns the room the session was in
// and false when it was already closed.
func (s *Session) Close() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return "", false
	}
	prev := s.roomID
	s.roomID = ""
	s.state = StateClosed
	return prev, true
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// CurrentRoom returns the joined room or "".
func (s *Session) CurrentRoom() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.roomID
}

func (s *Session) IsInRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == StateInRoom && s.roomID == roomID
}
