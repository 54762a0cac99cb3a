package cache

import (
	"context"
	"errors"
	"time"

	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

var (
	ErrCacheMiss      = errors.New("cache miss")
	ErrAppendConflict = errors.New("cache append kept conflicting")
)

const (
	DefaultLimit       = 50
	DefaultTTL         = 300 * time.Second
	DefaultPresenceTTL = time.Hour
	DefaultMaxRooms    = 10000
)

// RoomCache holds the most recent messages of each room, oldest first.
type RoomCache interface {
	// GetRecent returns ErrCacheMiss when the room has no live entry.
	GetRecent(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	// SetRecent replaces the entry, keeping the newest Limit messages.
	SetRecent(ctx context.Context, roomID string, messages []domain.ChatMessage) error
	// Append adds msg to an existing entry and refreshes its expiry. It
	// returns ErrCacheMiss without creating anything when there is no entry.
	Append(ctx context.Context, roomID string, msg domain.ChatMessage) error
	Invalidate(ctx context.Context, roomID string) error
	Close() error
}

// PresenceCache mirrors room membership for observers outside the process.
// The in-process registry stays authoritative.
type PresenceCache interface {
	// AddMember adds userID to roomID and to the global user set.
	AddMember(ctx context.Context, roomID, userID string) error
	RemoveMember(ctx context.Context, roomID, userID string) error
	// RemoveUser drops userID from the global user set.
	RemoveUser(ctx context.Context, userID string) error
}

// Options shared by the implementations.
type Options struct {
	Prefix      string
	TTL         time.Duration
	PresenceTTL time.Duration
	Limit       int
	MaxRooms    int // memory driver only
}

func (o Options) withDefaults() Options {
	if o.Prefix == "" {
		o.Prefix = "chat"
	}
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.PresenceTTL <= 0 {
		o.PresenceTTL = DefaultPresenceTTL
	}
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.MaxRooms <= 0 {
		o.MaxRooms = DefaultMaxRooms
	}
	return o
}

// newest keeps the last limit messages of msgs.
func newest(msgs []domain.ChatMessage, limit int) []domain.ChatMessage {
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}
