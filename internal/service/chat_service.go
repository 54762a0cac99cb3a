package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/weiawesome/wes-io-live/roomchat/internal/audit"
	"github.com/weiawesome/wes-io-live/roomchat/internal/cache"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/internal/hub"
	"github.com/weiawesome/wes-io-live/roomchat/internal/presence"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/pubsub"
)

type chatService struct {
	hub      *hub.Hub
	registry *presence.Registry
	presence cache.PresenceCache
	history  HistoryService
	events   pubsub.Publisher
	now      func() time.Time

	// locks orders membership changes of a room with their roomUsers
	// snapshot. mirrorMu pairs a registry check with the mirror write it
	// decides, and totalMu does the same for totalUsers.
	locks    *roomLocks
	mirrorMu sync.Mutex
	totalMu  sync.Mutex
}

func NewChatService(
	h *hub.Hub,
	reg *presence.Registry,
	presenceCache cache.PresenceCache,
	history HistoryService,
	events pubsub.Publisher,
) ChatService {
	if events == nil {
		events = pubsub.NopPublisher{}
	}
	return &chatService{
		hub:      h,
		registry: reg,
		presence: presenceCache,
		history:  history,
		events:   events,
		now:      time.Now,
		locks:    newRoomLocks(),
	}
}

func (s *chatService) HandleJoinRoom(ctx context.Context, c *hub.Client, msg *domain.JoinRoomMessage) error {
	userID := c.Session.UserID
	switch {
	case msg.RoomID == "":
		return domain.ErrMissingRoom
	case msg.UserID == "":
		return domain.ErrMissingSender
	case msg.UserID != userID:
		return domain.ErrIdentityMismatch
	}

	if c.Session.IsInRoom(msg.RoomID) {
		unlock := s.locks.Lock(msg.RoomID)
		defer unlock()
		return s.hub.Send(c, domain.NewRoomUsers(msg.RoomID, s.registry.MembersOf(msg.RoomID)))
	}

	prev, err := c.Session.JoinRoom(msg.RoomID)
	if err != nil {
		return err
	}
	if prev != "" {
		s.leaveRoom(ctx, c, prev)
	}

	members := s.enterRoom(ctx, c, msg.RoomID)
	s.broadcastTotal(ctx)

	s.publish(ctx, pubsub.RoomPresenceChannel(msg.RoomID), pubsub.EventMemberJoined, msg.RoomID, &pubsub.PresencePayload{
		RoomID:  msg.RoomID,
		UserID:  userID,
		Members: len(members),
	})
	audit.LogRoom(ctx, audit.ActionJoinRoom, userID, msg.RoomID, "joined room")
	return nil
}

// enterRoom adds c to roomID and announces it. Everything from the registry
// update to the roomUsers broadcast happens under the room lock.
func (s *chatService) enterRoom(ctx context.Context, c *hub.Client, roomID string) []string {
	userID := c.Session.UserID

	unlock := s.locks.Lock(roomID)
	defer unlock()

	s.registry.Join(c.ID, userID, roomID)
	s.hub.Subscribe(c, roomID)

	s.mirrorMu.Lock()
	if err := s.presence.AddMember(ctx, roomID, userID); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to mirror room member")
	}
	s.mirrorMu.Unlock()

	members := s.registry.MembersOf(roomID)
	s.broadcast(ctx, roomID, s.systemMessage(roomID, fmt.Sprintf("%s joined the room", userID)))
	s.broadcast(ctx, roomID, domain.NewRoomUsers(roomID, members))
	return members
}

func (s *chatService) HandleSendMessage(ctx context.Context, c *hub.Client, msg *domain.SendMessageMessage) error {
	roomID := c.Session.CurrentRoom()
	switch {
	case c.Session.State() != domain.StateInRoom:
		return domain.ErrNotInRoom
	case msg.RoomID == "":
		return domain.ErrMissingRoom
	case msg.Sender == "":
		return domain.ErrMissingSender
	case msg.RoomID != roomID:
		return domain.ErrRoomMismatch
	case msg.Sender != c.Session.UserID:
		return domain.ErrIdentityMismatch
	}

	chat := domain.NewChatMessage(msg.RoomID, msg.Sender, msg.Message, msg.Attachment, s.now())
	if err := chat.Validate(); err != nil {
		return err
	}

	err := s.history.Record(ctx, chat, func(m *domain.ChatMessage) error {
		return s.hub.Broadcast(m.RoomID, &domain.NewMessageOut{
			Type:    domain.MsgTypeNewMessage,
			Message: m,
		})
	})
	if err != nil {
		if errors.Is(err, ErrPersist) {
			if sendErr := s.hub.Send(c, domain.NewErrorMessage(domain.ErrCodeInternalError, "Failed to send message")); sendErr != nil {
				l := log.Ctx(ctx)
				l.Debug().Err(sendErr).Msg("failed to report send failure")
			}
		}
		return err
	}

	s.publish(ctx, pubsub.RoomMessagesChannel(chat.RoomID), pubsub.EventMessageCreated, chat.RoomID, chat)
	audit.LogWithDetail(ctx, audit.ActionSendMessage, chat.Sender, chat.ID, "message sent")
	return nil
}

func (s *chatService) HandleTyping(ctx context.Context, c *hub.Client, msg *domain.TypingMessage) error {
	switch {
	case c.Session.State() != domain.StateInRoom:
		return domain.ErrNotInRoom
	case msg.RoomID == "":
		return domain.ErrMissingRoom
	case msg.RoomID != c.Session.CurrentRoom():
		return domain.ErrRoomMismatch
	case msg.Type != domain.MsgTypeTyping && msg.Type != domain.MsgTypeStopTyping:
		return domain.ErrUnknownType
	}

	return s.hub.BroadcastExcept(msg.RoomID, &domain.TypingOut{
		Type:   msg.Type,
		RoomID: msg.RoomID,
		User:   c.Session.UserID,
	}, c.ID)
}

func (s *chatService) HandleLeaveRoom(ctx context.Context, c *hub.Client) error {
	prev, err := c.Session.LeaveRoom()
	if err != nil {
		return err
	}

	s.leaveRoom(ctx, c, prev)
	s.broadcastTotal(ctx)
	return nil
}

func (s *chatService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	prev, ok := c.Session.Close()
	if !ok {
		return nil
	}

	if prev != "" {
		s.leaveRoom(ctx, c, prev)
		s.broadcastTotal(ctx)
	}

	audit.Log(ctx, audit.ActionDisconnect, c.Session.UserID, "connection closed")
	return nil
}

// leaveRoom removes c from roomID everywhere and announces the departure
// to the remaining members, under the room lock.
func (s *chatService) leaveRoom(ctx context.Context, c *hub.Client, roomID string) {
	userID := c.Session.UserID

	unlock := s.locks.Lock(roomID)
	s.hub.Unsubscribe(c, roomID)
	s.registry.Leave(c.ID)
	s.unmirror(ctx, roomID, userID)

	members := s.registry.MembersOf(roomID)
	s.broadcast(ctx, roomID, s.systemMessage(roomID, fmt.Sprintf("%s left the room", userID)))
	s.broadcast(ctx, roomID, domain.NewRoomUsers(roomID, members))
	unlock()

	s.publish(ctx, pubsub.RoomPresenceChannel(roomID), pubsub.EventMemberLeft, roomID, &pubsub.PresencePayload{
		RoomID:  roomID,
		UserID:  userID,
		Members: len(members),
	})
	audit.LogRoom(ctx, audit.ActionLeaveRoom, userID, roomID, "left room")
}

// unmirror drops userID from the presence mirror unless another of their
// connections still holds the room or the service.
func (s *chatService) unmirror(ctx context.Context, roomID, userID string) {
	l := log.Ctx(ctx)

	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()

	if !s.registry.IsMember(roomID, userID) {
		if err := s.presence.RemoveMember(ctx, roomID, userID); err != nil {
			l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("failed to remove mirrored room member")
		}
	}
	if !s.registry.HasUser(userID) {
		if err := s.presence.RemoveUser(ctx, userID); err != nil {
			l.Warn().Err(err).Msg("failed to remove mirrored user")
		}
	}
}

func (s *chatService) systemMessage(roomID, text string) *domain.SystemMessageOut {
	return &domain.SystemMessageOut{
		Type:      domain.MsgTypeSystem,
		RoomID:    roomID,
		Message:   text,
		Timestamp: s.now().UnixMilli(),
	}
}

func (s *chatService) broadcast(ctx context.Context, roomID string, msg any) {
	if err := s.hub.Broadcast(roomID, msg); err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Str(log.FieldRoomID, roomID).Msg("broadcast failed")
	}
}

func (s *chatService) broadcastTotal(ctx context.Context) {
	s.totalMu.Lock()
	defer s.totalMu.Unlock()

	err := s.hub.BroadcastAll(&domain.TotalUsersOut{
		Type:  domain.MsgTypeTotalUsers,
		Count: s.registry.TotalActive(),
	})
	if err != nil {
		l := log.Ctx(ctx)
		l.Warn().Err(err).Msg("total users broadcast failed")
	}
}

// publish is best effort; the bus is for observers outside this process.
func (s *chatService) publish(ctx context.Context, channel, eventType, roomID string, payload any) {
	l := log.Ctx(ctx)

	evt, err := pubsub.NewEvent(eventType, roomID, payload)
	if err != nil {
		l.Error().Err(err).Str(log.FieldEventType, eventType).Msg("failed to build event")
		return
	}
	if err := s.events.Publish(ctx, channel, evt); err != nil {
		l.Warn().Err(err).Str(log.FieldEventType, eventType).Str(log.FieldRoomID, roomID).Msg("failed to publish event")
	}
}
