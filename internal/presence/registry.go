package presence

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Entry is one connection's membership.
type Entry struct {
	ConnID string
	UserID string
	RoomID string
}

// Registry maps connections to the single room they have joined. Members
// of a room are derived from the entries, so a user with two connections
// in one room remains a member until both leave.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
	// rooms indexes connection ids by room for MembersOf.
	rooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Entry),
		rooms:   make(map[string]map[string]struct{}),
	}
}

// Join records that connID (owned by userID) is in roomID, replacing any
// earlier room. It returns the previous room, or "" when there was none or
// the join repeats the current room.
func (r *Registry) Join(connID, userID, roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, ok := r.entries[connID]
	if ok && prev.RoomID == roomID && prev.UserID == userID {
		return ""
	}
	if ok {
		r.detach(prev)
	}

	r.entries[connID] = Entry{ConnID: connID, UserID: userID, RoomID: roomID}
	conns, exists := r.rooms[roomID]
	if !exists {
		conns = make(map[string]struct{})
		r.rooms[roomID] = conns
	}
	conns[connID] = struct{}{}

	if ok && prev.RoomID != roomID {
		return prev.RoomID
	}
	return ""
}

// Leave removes connID. It returns the removed entry and false when the
// connection had not joined anything.
func (r *Registry) Leave(connID string) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[connID]
	if !ok {
		return Entry{}, false
	}
	r.detach(e)
	delete(r.entries, connID)
	return e, true
}

func (r *Registry) detach(e Entry) {
	conns := r.rooms[e.RoomID]
	delete(conns, e.ConnID)
	if len(conns) == 0 {
		delete(r.rooms, e.RoomID)
	}
}

// Lookup returns the entry of connID.
func (r *Registry) Lookup(connID string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[connID]
	return e, ok
}

// MembersOf returns the distinct user ids in roomID, sorted.
func (r *Registry) MembersOf(roomID string) []string {
	r.mu.RLock()
	users := make([]string, 0, len(r.rooms[roomID]))
	for connID := range r.rooms[roomID] {
		users = append(users, r.entries[connID].UserID)
	}
	r.mu.RUnlock()

	users = lo.Uniq(users)
	sort.Strings(users)
	return users
}

// IsMember reports whether userID has any connection in roomID.
func (r *Registry) IsMember(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID := range r.rooms[roomID] {
		if r.entries[connID].UserID == userID {
			return true
		}
	}
	return false
}

// HasUser reports whether userID has any joined connection.
func (r *Registry) HasUser(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if e.UserID == userID {
			return true
		}
	}
	return false
}

// TotalActive counts connections that have joined a room.
func (r *Registry) TotalActive() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Rooms returns the ids of rooms with at least one member.
func (r *Registry) Rooms() []string {
	r.mu.RLock()
	rooms := lo.Keys(r.rooms)
	r.mu.RUnlock()
	sort.Strings(rooms)
	return rooms
}
