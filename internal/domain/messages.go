package domain

// WebSocket message types from client.
const (
	MsgTypeJoinRoom    = "joinRoom"
	MsgTypeSendMessage = "sendMessage"
	MsgTypeTyping      = "typing"
	MsgTypeStopTyping  = "stopTyping"
	MsgTypeLeaveRoom   = "leaveRoom"
	MsgTypePing        = "ping"
)

// WebSocket message types to client. typing and stopTyping are relayed
// under their inbound names.
const (
	MsgTypeNewMessage = "newMessage"
	MsgTypeSystem     = "system"
	MsgTypeRoomUsers  = "roomUsers"
	MsgTypeTotalUsers = "totalUsers"
	MsgTypeError      = "error"
	MsgTypePong       = "pong"
)

// ErrCodeInternalError is the code of the error event sent when a message
// could not be stored.
const ErrCodeInternalError = "INTERNAL_ERROR"

// BaseMessage is decoded first to pick the concrete message type.
type BaseMessage struct {
	Type string `json:"type"`
}

// Client -> Server messages

type JoinRoomMessage struct {
	Type   string `json:"type"`
	UserID string `json:"userId" validate:"required,max=128"`
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type SendMessageMessage struct {
	Type       string      `json:"type"`
	RoomID     string      `json:"roomId" validate:"required,max=128"`
	Sender     string      `json:"sender" validate:"required,max=128"`
	Message    string      `json:"message" validate:"max=4000"`
	Attachment *Attachment `json:"attachment,omitempty" validate:"omitempty"`
}

// TypingMessage is used for both typing and stopTyping.
type TypingMessage struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId" validate:"required,max=128"`
	User   string `json:"user" validate:"max=128"`
}

// Server -> Client messages

type NewMessageOut struct {
	Type    string       `json:"type"`
	Message *ChatMessage `json:"message"`
}

type SystemMessageOut struct {
	Type      string `json:"type"`
	RoomID    string `json:"roomId"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type TypingOut struct {
	Type   string `json:"type"`
	RoomID string `json:"roomId"`
	User   string `json:"user"`
}

type RoomUsersOut struct {
	Type   string   `json:"type"`
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
	Count  int      `json:"count"`
}

type TotalUsersOut struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{
		Type:    MsgTypeError,
		Code:    code,
		Message: message,
	}
}

func NewRoomUsers(roomID string, users []string) *RoomUsersOut {
	if users == nil {
		users = []string{}
	}
	return &RoomUsersOut{
		Type:   MsgTypeRoomUsers,
		RoomID: roomID,
		Users:  users,
		Count:  len(users),
	}
}
