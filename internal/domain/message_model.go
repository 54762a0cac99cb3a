package domain

import "time"

// MessageModel is the GORM row of a ChatMessage. Seq gives the insertion
// order within a room.
type MessageModel struct {
	Seq                uint64    `gorm:"primaryKey;autoIncrement;index:idx_chat_messages_room_seq,priority:2"`
	ID                 string    `gorm:"type:varchar(36);uniqueIndex;not null"`
	RoomID             string    `gorm:"type:varchar(128);not null;index:idx_chat_messages_room_seq,priority:1"`
	SenderID           string    `gorm:"type:varchar(128);not null"`
	Body               string    `gorm:"type:text"`
	AttachmentURL      string    `gorm:"type:text"`
	AttachmentPublicID string    `gorm:"type:varchar(512)"`
	AttachmentType     string    `gorm:"type:varchar(16)"`
	CreatedAt          time.Time `gorm:"not null"`
}

func (MessageModel) TableName() string {
	return "chat_messages"
}

func (m *MessageModel) ToDomain() ChatMessage {
	msg := ChatMessage{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Sender:    m.SenderID,
		Message:   m.Body,
		CreatedAt: m.CreatedAt.UTC(),
	}
	if m.AttachmentURL != "" {
		msg.Attachment = &Attachment{
			URL:      m.AttachmentURL,
			PublicID: m.AttachmentPublicID,
			Type:     AttachmentKind(m.AttachmentType),
		}
	}
	return msg
}

func MessageToModel(msg *ChatMessage) *MessageModel {
	m := &MessageModel{
		ID:        msg.ID,
		RoomID:    msg.RoomID,
		SenderID:  msg.Sender,
		Body:      msg.Message,
		CreatedAt: msg.CreatedAt,
	}
	if msg.Attachment != nil {
		m.AttachmentURL = msg.Attachment.URL
		m.AttachmentPublicID = msg.Attachment.PublicID
		m.AttachmentType = string(msg.Attachment.Type)
	}
	return m
}
