package repository

import (
	"context"

	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

// MessageStore is the append-only durable history of every room.
type MessageStore interface {
	// Append persists msg and fills in its ID (and CreatedAt when zero).
	Append(ctx context.Context, msg *domain.ChatMessage) error
	// Recent returns up to limit of the newest messages of roomID, oldest first.
	Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error)
	Close() error
}
