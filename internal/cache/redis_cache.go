package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

const maxAppendRetries = 5

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// RedisRoomCache stores each room's history as one JSON array value so a
// read is a single GET. Appends are optimistic WATCH transactions.
type RedisRoomCache struct {
	client *redis.Client
	opts   Options
}

// NewRedisRoomCache uses client without taking ownership of it.
func NewRedisRoomCache(client *redis.Client, opts Options) *RedisRoomCache {
	return &RedisRoomCache{client: client, opts: opts.withDefaults()}
}

func (c *RedisRoomCache) messagesKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:msgs", c.opts.Prefix, roomID)
}

func (c *RedisRoomCache) roomUsersKey(roomID string) string {
	return fmt.Sprintf("%s:room:%s:users", c.opts.Prefix, roomID)
}

func (c *RedisRoomCache) usersKey() string {
	return c.opts.Prefix + ":users"
}

func (c *RedisRoomCache) GetRecent(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	data, err := c.client.Get(ctx, c.messagesKey(roomID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var msgs []domain.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}
	return msgs, nil
}

func (c *RedisRoomCache) SetRecent(ctx context.Context, roomID string, messages []domain.ChatMessage) error {
	data, err := json.Marshal(newest(messages, c.opts.Limit))
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}
	if err := c.client.Set(ctx, c.messagesKey(roomID), data, c.opts.TTL).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisRoomCache) Append(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	key := c.messagesKey(roomID)

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrCacheMiss
			}
			return fmt.Errorf("failed to get from redis: %w", err)
		}

		var msgs []domain.ChatMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			return fmt.Errorf("failed to unmarshal cache data: %w", err)
		}

		out, err := json.Marshal(newest(append(msgs, msg), c.opts.Limit))
		if err != nil {
			return fmt.Errorf("failed to marshal cache data: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, c.opts.TTL)
			return nil
		})
		return err
	}

	for i := 0; i < maxAppendRetries; i++ {
		err := c.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrAppendConflict
}

func (c *RedisRoomCache) Invalidate(ctx context.Context, roomID string) error {
	if err := c.client.Del(ctx, c.messagesKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}
	return nil
}

// AddMember adds userID to the room set and the global set.
func (c *RedisRoomCache) AddMember(ctx context.Context, roomID, userID string) error {
	roomKey := c.roomUsersKey(roomID)
	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, roomKey, userID)
	pipe.Expire(ctx, roomKey, c.opts.PresenceTTL)
	pipe.SAdd(ctx, c.usersKey(), userID)
	pipe.Expire(ctx, c.usersKey(), c.opts.PresenceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}
	return nil
}

// RemoveMember removes userID from the room set.
func (c *RedisRoomCache) RemoveMember(ctx context.Context, roomID, userID string) error {
	if err := c.client.SRem(ctx, c.roomUsersKey(roomID), userID).Err(); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return nil
}

// RemoveUser removes userID from the global set.
func (c *RedisRoomCache) RemoveUser(ctx context.Context, userID string) error {
	if err := c.client.SRem(ctx, c.usersKey(), userID).Err(); err != nil {
		return fmt.Errorf("failed to remove user: %w", err)
	}
	return nil
}

// Close is a no-op; the client belongs to the caller.
func (c *RedisRoomCache) Close() error {
	return nil
}
