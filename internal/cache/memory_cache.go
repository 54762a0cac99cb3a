package cache

import (
	"context"
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

// MemoryRoomCache is a process-local RoomCache and PresenceCache for
// single-node deployments and tests. Room entries live in an expiring LRU
// bounded by Options.MaxRooms.
type MemoryRoomCache struct {
	mu      sync.Mutex
	opts    Options
	entries *expirable.LRU[string, []domain.ChatMessage]
	members map[string]map[string]struct{}
	users   map[string]struct{}
}

func NewMemoryRoomCache(opts Options) *MemoryRoomCache {
	opts = opts.withDefaults()
	return &MemoryRoomCache{
		opts:    opts,
		entries: expirable.NewLRU[string, []domain.ChatMessage](opts.MaxRooms, nil, opts.TTL),
		members: make(map[string]map[string]struct{}),
		users:   make(map[string]struct{}),
	}
}

func (c *MemoryRoomCache) GetRecent(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	msgs, ok := c.entries.Get(roomID)
	if !ok {
		return nil, ErrCacheMiss
	}
	return newest(msgs, c.opts.Limit), nil
}

func (c *MemoryRoomCache) SetRecent(ctx context.Context, roomID string, messages []domain.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries.Add(roomID, newest(messages, c.opts.Limit))
	return nil
}

// Append replaces the entry with the extended list; Add restarts its ttl.
func (c *MemoryRoomCache) Append(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.entries.Get(roomID)
	if !ok {
		return ErrCacheMiss
	}
	c.entries.Add(roomID, newest(append(msgs[:len(msgs):len(msgs)], msg), c.opts.Limit))
	return nil
}

func (c *MemoryRoomCache) Invalidate(ctx context.Context, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(roomID)
	return nil
}

func (c *MemoryRoomCache) AddMember(ctx context.Context, roomID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	set, ok := c.members[roomID]
	if !ok {
		set = make(map[string]struct{})
		c.members[roomID] = set
	}
	set[userID] = struct{}{}
	c.users[userID] = struct{}{}
	return nil
}

func (c *MemoryRoomCache) RemoveMember(ctx context.Context, roomID, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set, ok := c.members[roomID]; ok {
		delete(set, userID)
		if len(set) == 0 {
			delete(c.members, roomID)
		}
	}
	return nil
}

func (c *MemoryRoomCache) RemoveUser(ctx context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.users, userID)
	return nil
}

// Members returns the mirrored member count of roomID and of the whole process.
func (c *MemoryRoomCache) Members(roomID string) (room, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members[roomID]), len(c.users)
}

func (c *MemoryRoomCache) Close() error {
	return nil
}
