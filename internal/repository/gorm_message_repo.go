package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/database"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/idgen"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
)

// GormMessageRepository stores messages in a relational database.
type GormMessageRepository struct {
	db  *gorm.DB
	ids idgen.Generator
}

// NewGormMessageRepository migrates the message table and returns the store.
func NewGormMessageRepository(db *gorm.DB, ids idgen.Generator) (*GormMessageRepository, error) {
	if err := database.AutoMigrate(db, &domain.MessageModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate chat messages: %w", err)
	}
	if ids == nil {
		ids = idgen.NewULIDGenerator()
	}
	return &GormMessageRepository{db: db, ids: ids}, nil
}

func (r *GormMessageRepository) Append(ctx context.Context, msg *domain.ChatMessage) error {
	l := log.Ctx(ctx)

	id, err := r.ids.Generate()
	if err != nil {
		return fmt.Errorf("failed to generate message id: %w", err)
	}
	msg.ID = id
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		l.Error().Err(err).Str(log.FieldRoomID, msg.RoomID).Msg("failed to insert chat message")
		return fmt.Errorf("failed to insert chat message: %w", err)
	}

	l.Debug().Str(log.FieldRoomID, msg.RoomID).Str(log.FieldMessageID, msg.ID).Msg("chat message stored")
	return nil
}

func (r *GormMessageRepository) Recent(ctx context.Context, roomID string, limit int) ([]domain.ChatMessage, error) {
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("seq DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query chat messages: %w", err)
	}

	msgs := make([]domain.ChatMessage, len(models))
	for i := range models {
		msgs[len(models)-1-i] = models[i].ToDomain()
	}
	return msgs, nil
}

func (r *GormMessageRepository) Close() error {
	return database.Close(r.db)
}
