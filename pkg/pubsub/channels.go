package pubsub

import "fmt"

// Channel layout: chat:room:{roomID}:{kind}.
const (
	ChannelRoomMessages = "chat:room:%s:messages"
	ChannelRoomPresence = "chat:room:%s:presence"
)

const (
	EventMessageCreated = "message_created"
	EventMemberJoined   = "member_joined"
	EventMemberLeft     = "member_left"
)

func RoomMessagesChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomMessages, roomID)
}

func RoomPresenceChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomPresence, roomID)
}

// PresencePayload accompanies member_joined and member_left.
type PresencePayload struct {
	RoomID  string `json:"room_id"`
	UserID  string `json:"user_id"`
	Members int    `json:"members"`
}
