package domain

import (
	"strings"
	"time"
)

// AttachmentKind classifies an attachment by its content type.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindVideo AttachmentKind = "video"
	KindPDF   AttachmentKind = "pdf"
	KindFile  AttachmentKind = "file"
)

// KindFromMIME maps a MIME type to its attachment kind. Parameters such as
// "; charset=utf-8" are ignored.
func KindFromMIME(mime string) AttachmentKind {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case mime == "application/pdf":
		return KindPDF
	default:
		return KindFile
	}
}

func (k AttachmentKind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindPDF, KindFile:
		return true
	}
	return false
}

// Attachment references a blob stored outside the message.
type Attachment struct {
	URL      string         `json:"url" validate:"required,max=2048"`
	PublicID string         `json:"publicId,omitempty" validate:"max=512"`
	Type     AttachmentKind `json:"type,omitempty" validate:"max=32"`
}

// ChatMessage is immutable once persisted.
type ChatMessage struct {
	ID         string      `json:"id"`
	RoomID     string      `json:"roomId"`
	Sender     string      `json:"sender"`
	Message    string      `json:"message,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
}

// NewChatMessage builds an unpersisted message with a normalized body and
// attachment. The ID is assigned by the store.
func NewChatMessage(roomID, sender, body string, attachment *Attachment, now time.Time) *ChatMessage {
	msg := &ChatMessage{
		RoomID:    strings.TrimSpace(roomID),
		Sender:    strings.TrimSpace(sender),
		Message:   strings.TrimSpace(body),
		CreatedAt: now.UTC(),
	}
	if attachment != nil && strings.TrimSpace(attachment.URL) != "" {
		a := *attachment
		a.URL = strings.TrimSpace(a.URL)
		if !a.Type.Valid() {
			a.Type = KindFile
		}
		msg.Attachment = &a
	}
	return msg
}

// HasAttachment reports whether an attachment with a URL is present.
func (m *ChatMessage) HasAttachment() bool {
	return m.Attachment != nil && m.Attachment.URL != ""
}

// Validate checks the structural invariants of a message.
func (m *ChatMessage) Validate() error {
	switch {
	case m.RoomID == "":
		return ErrMissingRoom
	case m.Sender == "":
		return ErrMissingSender
	case m.Message == "" && !m.HasAttachment():
		return ErrEmptyMessage
	}
	return nil
}
