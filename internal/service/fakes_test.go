package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-live/roomchat/internal/cache"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

type fakeStore struct {
	mu          sync.Mutex
	rooms       map[string][]domain.ChatMessage
	seq         int
	appendErr   error
	appendCalls int
	recentCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{rooms: make(map[string][]domain.ChatMessage)}
}

func (s *fakeStore) Append(ctx context.Context, msg *domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendCalls++
	if s.appendErr != nil {
		return s.appendErr
	}
	s.seq++
	msg.ID = fmt.Sprintf("msg-%04d", s.seq)
	s.rooms[msg.RoomID] = append(s.rooms[msg.RoomID], *msg)
	return nil
}

func (s *fakeStore) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recentCalls++
	msgs := s.rooms[roomID]
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	out := make([]domain.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) calls() (appends, recents int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendCalls, s.recentCalls
}

func (s *fakeStore) setAppendErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendErr = err
}

// flakyCache fails the operations it is told to.
type flakyCache struct {
	*cache.MemoryRoomCache
	getErr    error
	appendErr error
}

func (c *flakyCache) GetRecent(ctx context.Context, roomID string) ([]domain.ChatMessage, error) {
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.MemoryRoomCache.GetRecent(ctx, roomID)
}

func (c *flakyCache) Append(ctx context.Context, roomID string, msg domain.ChatMessage) error {
	if c.appendErr != nil {
		return c.appendErr
	}
	return c.MemoryRoomCache.Append(ctx, roomID, msg)
}

func messageIDs(msgs []domain.ChatMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
