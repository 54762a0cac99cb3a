package service

import (
	"context"

	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/internal/hub"
)

// ChatService handles the protocol events of websocket connections. Errors
// wrapping domain.ErrInvalidPayload or domain.ErrNotInRoom mean the event
// was dropped.
type ChatService interface {
	HandleJoinRoom(ctx context.Context, c *hub.Client, msg *domain.JoinRoomMessage) error
	HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageMessage) error
	HandleTyping(ctx context.Context, c *hub.Client, msg *domain.TypingMessage) error
	HandleLeaveRoom(ctx context.Context, c *hub.Client) error
	HandleDisconnect(ctx context.Context, c *hub.Client) error
}

// HistoryService owns the read-through and write paths of room history.
type HistoryService interface {
	// Recent returns the latest messages of roomID, oldest first.
	Recent(ctx context.Context, roomID string) ([]domain.ChatMessage, error)
	// Record stamps msg.CreatedAt, persists msg, updates the cache and then
	// calls deliver, all while holding the room's write lock. Nothing is
	// cached or delivered when persisting fails.
	Record(ctx context.Context, msg *domain.ChatMessage, deliver func(*domain.ChatMessage) error) error
}
