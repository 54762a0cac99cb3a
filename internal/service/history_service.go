package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/weiawesome/wes-io-live/roomchat/internal/cache"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/internal/repository"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
)

// ErrPersist wraps store failures on the write path.
var ErrPersist = errors.New("message not persisted")

type historyService struct {
	store repository.MessageStore
	cache cache.RoomCache
	limit int
	locks *roomLocks
	sf    singleflight.Group
	now   func() time.Time
}

func NewHistoryService(store repository.MessageStore, roomCache cache.RoomCache, limit int) HistoryService {
	if limit <= 0 {
		limit = cache.DefaultLimit
	}
	return &historyService{
		store: store,
		cache: roomCache,
		limit: limit,
		locks: newRoomLocks(),
		now:   time.Now,
	}
}

func (s *historyService) Recent(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	msgs, err := s.cache.GetRecent(ctx, roomID)
	if err == nil {
		return msgs, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("cache get error")
	}

	result, err, _ := s.sf.Do(roomID, func() (any, error) {
		return s.populate(ctx, roomID)
	})
	if err != nil {
		return nil, err
	}

	msgs, ok := result.([]domain.ChatMessage)
	if !ok {
		return nil, fmt.Errorf("unexpected result type from singleflight")
	}
	return msgs, nil
}

// populate loads the room from the store and fills the cache. It holds the
// room lock so a concurrent Record cannot be overwritten by an older read.
func (s *historyService) populate(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	unlock := s.locks.Lock(roomID)
	defer unlock()

	l := log.Ctx(ctx)

	if msgs, err := s.cache.GetRecent(ctx, roomID); err == nil {
		return msgs, nil
	}

	msgs, err := s.store.Recent(ctx, roomID, s.limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages from store: %w", err)
	}
	if msgs == nil {
		msgs = []domain.ChatMessage{}
	}

	if err := s.cache.SetRecent(ctx, roomID, msgs); err != nil {
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("cache set error")
	}
	return msgs, nil
}

func (s *historyService) Record(ctx context.Context, msg *domain.ChatMessage, deliver func(*domain.ChatMessage) error) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	unlock := s.locks.Lock(msg.RoomID)
	defer unlock()

	// Stamped under the lock so createdAt follows the room's order.
	msg.CreatedAt = s.now().UTC()
	if err := s.store.Append(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.appendToCache(ctx, msg)

	if deliver == nil {
		return nil
	}
	return deliver(msg)
}

// appendToCache keeps the cache equal to the store's newest messages. A
// missing entry is rebuilt from the store, a failed append drops the entry.
func (s *historyService) appendToCache(ctx context.Context, msg *domain.ChatMessage) {
	l := log.Ctx(ctx)

	err := s.cache.Append(ctx, msg.RoomID, *msg)
	switch {
	case err == nil:
		return

	case errors.Is(err, cache.ErrCacheMiss):
		msgs, err := s.store.Recent(ctx, msg.RoomID, s.limit)
		if err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to rebuild room cache")
			return
		}
		if err := s.cache.SetRecent(ctx, msg.RoomID, msgs); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("cache set error")
		}

	default:
		l.Warn().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("cache append error")
		if err := s.cache.Invalidate(ctx, msg.RoomID); err != nil {
			l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to invalidate room cache")
		}
	}
}
