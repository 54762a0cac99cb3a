package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/roomchat/internal/cache"
	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
	"github.com/weiawesome/wes-io-live/roomchat/internal/hub"
	"github.com/weiawesome/wes-io-live/roomchat/internal/presence"
)

// event is the union of the outbound fields the tests look at.
type event struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"roomId"`
	User    string          `json:"user"`
	Users   []string        `json:"users"`
	Count   int             `json:"count"`
	Code    string          `json:"code"`
	Message json.RawMessage `json:"message"`
}

func (e event) text() string {
	var s string
	_ = json.Unmarshal(e.Message, &s)
	return s
}

func (e event) chat() domain.ChatMessage {
	var m domain.ChatMessage
	_ = json.Unmarshal(e.Message, &m)
	return m
}

type chatFixture struct {
	hub      *hub.Hub
	registry *presence.Registry
	store    *fakeStore
	cache    *cache.MemoryRoomCache
	svc      ChatService
}

func newChatFixture(t *testing.T) *chatFixture {
	t.Helper()
	h := hub.NewHub(config.WebSocketConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)

	reg := presence.NewRegistry()
	store := newFakeStore()
	memCache := cache.NewMemoryRoomCache(cache.Options{})
	history := NewHistoryService(store, memCache, 50)

	return &chatFixture{
		hub:      h,
		registry: reg,
		store:    store,
		cache:    memCache,
		svc:      NewChatService(h, reg, memCache, history, nil),
	}
}

func (f *chatFixture) connect(connID, userID string) *hub.Client {
	c := hub.NewClient(connID, f.hub, nil, domain.NewSession(connID, userID, userID), config.WebSocketConfig{SendBuffer: 128})
	f.hub.Register(c)
	return c
}

func (f *chatFixture) join(t *testing.T, c *hub.Client, roomID string) {
	t.Helper()
	require.NoError(t, f.svc.HandleJoinRoom(context.Background(), c, &domain.JoinRoomMessage{
		Type:   domain.MsgTypeJoinRoom,
		UserID: c.Session.UserID,
		RoomID: roomID,
	}))
}

func (f *chatFixture) send(c *hub.Client, roomID, body string) error {
	return f.svc.HandleSendMessage(context.Background(), c, &domain.SendMessageMessage{
		Type:    domain.MsgTypeSendMessage,
		RoomID:  roomID,
		Sender:  c.Session.UserID,
		Message: body,
	})
}

// drain collects what c receives until it has been quiet for a moment.
func drain(t *testing.T, c *hub.Client) []event {
	t.Helper()
	var events []event
	for {
		select {
		case data, ok := <-c.Send:
			if !ok {
				return events
			}
			var e event
			require.NoError(t, json.Unmarshal(data, &e))
			events = append(events, e)
		case <-time.After(100 * time.Millisecond):
			return events
		}
	}
}

func ofType(events []event, typ string) []event {
	var out []event
	for _, e := range events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestChatService_TwoUsersChat(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)

	a := f.connect("conn-a", "A")
	b := f.connect("conn-b", "B")
	f.join(t, a, "general")
	f.join(t, b, "general")

	joinEvents := drain(t, a)
	roomUsers := ofType(joinEvents, domain.MsgTypeRoomUsers)
	r.NotEmpty(roomUsers)
	last := roomUsers[len(roomUsers)-1]
	r.Equal(2, last.Count)
	r.Equal([]string{"A", "B"}, last.Users)

	bJoin := ofType(drain(t, b), domain.MsgTypeRoomUsers)
	r.Len(bJoin, 1)
	r.Equal(2, bJoin[0].Count)

	r.NoError(f.send(a, "general", "hi"))

	got := ofType(drain(t, b), domain.MsgTypeNewMessage)
	r.Len(got, 1)
	msg := got[0].chat()
	r.Equal("A", msg.Sender)
	r.Equal("hi", msg.Message)
	r.Equal("general", msg.RoomID)
	r.NotEmpty(msg.ID)

	// the sender gets its own copy
	r.Len(ofType(drain(t, a), domain.MsgTypeNewMessage), 1)
}

func TestChatService_LateJoinerSeesOnlyItsOwnJoin(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)

	a := f.connect("conn-a", "A")
	f.join(t, a, "general")
	r.NoError(f.send(a, "general", "before-B-joined"))

	b := f.connect("conn-b", "B")
	f.join(t, b, "general")

	events := drain(t, b)
	r.Empty(ofType(events, domain.MsgTypeNewMessage))
	system := ofType(events, domain.MsgTypeSystem)
	r.Len(system, 1)
	r.Equal("B joined the room", system[0].text())
	roomUsers := ofType(events, domain.MsgTypeRoomUsers)
	r.Len(roomUsers, 1)
	r.Equal([]string{"A", "B"}, roomUsers[0].Users)
}

func TestChatService_ConcurrentJoinAndLeaveEndOnCurrentMembers(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	watcher := f.connect("conn-w", "W")
	f.join(t, watcher, "general")

	prev := f.connect("conn-0", "U0")
	f.join(t, prev, "general")

	for i := 1; i <= 15; i++ {
		next := f.connect(fmt.Sprintf("conn-%d", i), fmt.Sprintf("U%d", i))
		leaving := prev
		errs := make(chan error, 2)
		go func() {
			errs <- f.svc.HandleJoinRoom(ctx, next, &domain.JoinRoomMessage{
				Type:   domain.MsgTypeJoinRoom,
				UserID: next.Session.UserID,
				RoomID: "general",
			})
		}()
		go func() {
			errs <- f.svc.HandleLeaveRoom(ctx, leaving)
		}()
		r.NoError(<-errs)
		r.NoError(<-errs)
		prev = next
	}

	roomUsers := ofType(drain(t, watcher), domain.MsgTypeRoomUsers)
	r.NotEmpty(roomUsers)
	r.Equal(f.registry.MembersOf("general"), roomUsers[len(roomUsers)-1].Users)
	r.Equal([]string{"U15", "W"}, roomUsers[len(roomUsers)-1].Users)
}

func TestChatService_MirrorKeepsUserWithAnotherConnection(t *testing.T) {
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		r := require.New(t)
		f := newChatFixture(t)

		first := f.connect("conn-1", "A")
		second := f.connect("conn-2", "A")
		f.join(t, first, "general")

		errs := make(chan error, 2)
		go func() {
			errs <- f.svc.HandleLeaveRoom(ctx, first)
		}()
		go func() {
			errs <- f.svc.HandleJoinRoom(ctx, second, &domain.JoinRoomMessage{
				Type:   domain.MsgTypeJoinRoom,
				UserID: "A",
				RoomID: "general",
			})
		}()
		r.NoError(<-errs)
		r.NoError(<-errs)

		room, users := f.cache.Members("general")
		r.Equal(1, room, "round %d", round)
		r.Equal(1, users, "round %d", round)
	}
}

func TestChatService_JoinAnnouncesPresence(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)

	a := f.connect("conn-a", "A")
	f.join(t, a, "general")

	events := drain(t, a)
	system := ofType(events, domain.MsgTypeSystem)
	r.Len(system, 1)
	r.Equal("A joined the room", system[0].text())
	total := ofType(events, domain.MsgTypeTotalUsers)
	r.Len(total, 1)
	r.Equal(1, total[0].Count)

	room, users := f.cache.Members("general")
	r.Equal(1, room)
	r.Equal(1, users)
}

func TestChatService_RepeatedJoinIsQuiet(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)

	a := f.connect("conn-a", "A")
	f.join(t, a, "general")
	drain(t, a)

	f.join(t, a, "general")

	events := drain(t, a)
	r.Len(events, 1)
	r.Equal(domain.MsgTypeRoomUsers, events[0].Type)
	r.Equal(1, f.registry.TotalActive())
}

func TestChatService_RejoinLeavesPreviousRoom(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)

	a := f.connect("conn-a", "A")
	b := f.connect("conn-b", "B")
	f.join(t, a, "general")
	f.join(t, b, "general")
	drain(t, a)
	drain(t, b)

	f.join(t, a, "random")

	bEvents := drain(t, b)
	system := ofType(bEvents, domain.MsgTypeSystem)
	r.Len(system, 1)
	r.Equal("A left the room", system[0].text())
	r.Equal([]string{"B"}, ofType(bEvents, domain.MsgTypeRoomUsers)[0].Users)

	r.Equal([]string{"B"}, f.registry.MembersOf("general"))
	r.Equal([]string{"A"}, f.registry.MembersOf("random"))
	r.Equal(1, f.hub.Subscribers("general"))
	r.Equal("random", a.Session.CurrentRoom())

	// Messages to the old room no longer reach A
	r.NoError(f.send(b, "general", "still here?"))
	r.Empty(ofType(drain(t, a), domain.MsgTypeNewMessage))
}

func TestChatService_DisconnectAnnouncesDepartureOnce(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	a := f.connect("conn-a", "A")
	b := f.connect("conn-b", "B")
	f.join(t, a, "general")
	f.join(t, b, "general")
	drain(t, b)

	r.NoError(f.svc.HandleDisconnect(ctx, a))
	r.NoError(f.svc.HandleDisconnect(ctx, a))

	r.NotContains(f.registry.MembersOf("general"), "A")
	events := drain(t, b)
	departures := ofType(events, domain.MsgTypeSystem)
	r.Len(departures, 1)
	r.Equal("A left the room", departures[0].text())
	total := ofType(events, domain.MsgTypeTotalUsers)
	r.Len(total, 1)
	r.Equal(1, total[0].Count)
	r.Equal(domain.StateClosed, a.Session.State())

	room, _ := f.cache.Members("general")
	r.Equal(1, room)
}

func TestChatService_DisconnectWithoutJoin(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	idle := f.connect("conn-idle", "idle")
	other := f.connect("conn-other", "other")
	f.join(t, other, "general")
	drain(t, other)

	r.NoError(f.svc.HandleDisconnect(context.Background(), idle))

	r.Empty(drain(t, other))
	r.Equal(domain.StateClosed, idle.Session.State())
}

func TestChatService_Typing(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	ctx := context.Background()

	a := f.connect("conn-a", "A")
	b := f.connect("conn-b", "B")
	c := f.connect("conn-c", "C")
	for _, cl := range []*hub.Client{a, b, c} {
		f.join(t, cl, "general")
	}
	for _, cl := range []*hub.Client{a, b, c} {
		drain(t, cl)
	}

	for _, typ := range []string{domain.MsgTypeTyping, domain.MsgTypeStopTyping} {
		r.NoError(f.svc.HandleTyping(ctx, a, &domain.TypingMessage{Type: typ, RoomID: "general", User: "A"}))

		r.Empty(drain(t, a))
		for _, cl := range []*hub.Client{b, c} {
			events := drain(t, cl)
			r.Len(events, 1)
			r.Equal(typ, events[0].Type)
			r.Equal("A", events[0].User)
		}
	}

	appends, recents := f.store.calls()
	r.Zero(appends)
	r.Zero(recents)
}

func TestChatService_ProtocolErrorsAreDropped(t *testing.T) {
	ctx := context.Background()

	t.Run("send before join", func(t *testing.T) {
		r := require.New(t)
		f := newChatFixture(t)
		a := f.connect("conn-a", "A")

		err := f.send(a, "general", "hi")

		r.ErrorIs(err, domain.ErrNotInRoom)
		r.True(domain.IsProtocolError(err))
		r.Empty(drain(t, a))
	})

	t.Run("missing fields and mismatches", func(t *testing.T) {
		f := newChatFixture(t)
		a := f.connect("conn-a", "A")
		b := f.connect("conn-b", "B")
		f.join(t, a, "general")
		f.join(t, b, "general")
		drain(t, a)
		drain(t, b)

		cases := []struct {
			name string
			msg  domain.SendMessageMessage
			want error
		}{
			{"missing room", domain.SendMessageMessage{Sender: "A", Message: "hi"}, domain.ErrMissingRoom},
			{"missing sender", domain.SendMessageMessage{RoomID: "general", Message: "hi"}, domain.ErrMissingSender},
			{"other room", domain.SendMessageMessage{RoomID: "random", Sender: "A", Message: "hi"}, domain.ErrRoomMismatch},
			{"spoofed sender", domain.SendMessageMessage{RoomID: "general", Sender: "B", Message: "hi"}, domain.ErrIdentityMismatch},
			{"empty body", domain.SendMessageMessage{RoomID: "general", Sender: "A", Message: "  "}, domain.ErrEmptyMessage},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				r := require.New(t)
				msg := tc.msg

				err := f.svc.HandleSendMessage(ctx, a, &msg)

				r.ErrorIs(err, tc.want)
				r.True(domain.IsProtocolError(err))
			})
		}

		r := require.New(t)
		r.Empty(drain(t, b))
		appends, _ := f.store.calls()
		r.Zero(appends)
	})

	t.Run("join for another identity", func(t *testing.T) {
		r := require.New(t)
		f := newChatFixture(t)
		a := f.connect("conn-a", "A")

		err := f.svc.HandleJoinRoom(ctx, a, &domain.JoinRoomMessage{UserID: "B", RoomID: "general"})

		r.ErrorIs(err, domain.ErrIdentityMismatch)
		r.Empty(f.registry.MembersOf("general"))
	})

	t.Run("leave when not in a room", func(t *testing.T) {
		r := require.New(t)
		f := newChatFixture(t)
		a := f.connect("conn-a", "A")

		r.ErrorIs(f.svc.HandleLeaveRoom(ctx, a), domain.ErrNotInRoom)
	})
}

func TestChatService_AttachmentOnlyMessage(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	a := f.connect("conn-a", "A")
	f.join(t, a, "general")
	drain(t, a)

	err := f.svc.HandleSendMessage(context.Background(), a, &domain.SendMessageMessage{
		RoomID:     "general",
		Sender:     "A",
		Attachment: &domain.Attachment{URL: "/attachments/chats/x.pdf", PublicID: "chats/x.pdf", Type: "weird"},
	})
	r.NoError(err)

	got := ofType(drain(t, a), domain.MsgTypeNewMessage)
	r.Len(got, 1)
	msg := got[0].chat()
	r.Empty(msg.Message)
	r.Equal(domain.KindFile, msg.Attachment.Type)
}

func TestChatService_StoreFailure(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	a := f.connect("conn-a", "A")
	b := f.connect("conn-b", "B")
	f.join(t, a, "general")
	f.join(t, b, "general")
	drain(t, a)
	drain(t, b)
	f.store.setAppendErr(errors.New("connection refused"))

	err := f.send(a, "general", "lost")

	r.ErrorIs(err, ErrPersist)
	r.False(domain.IsProtocolError(err))
	r.Empty(drain(t, b))
	aEvents := drain(t, a)
	r.Len(aEvents, 1)
	r.Equal(domain.MsgTypeError, aEvents[0].Type)
	r.Equal(domain.ErrCodeInternalError, aEvents[0].Code)

	// The connection keeps working once the store recovers
	f.store.setAppendErr(nil)
	r.NoError(f.send(a, "general", "back"))
	r.Len(ofType(drain(t, b), domain.MsgTypeNewMessage), 1)
}

func TestChatService_ExplicitLeave(t *testing.T) {
	r := require.New(t)
	f := newChatFixture(t)
	a := f.connect("conn-a", "A")
	b := f.connect("conn-b", "B")
	f.join(t, a, "general")
	f.join(t, b, "general")
	drain(t, b)

	r.NoError(f.svc.HandleLeaveRoom(context.Background(), a))

	r.Equal(domain.StateConnected, a.Session.State())
	r.Equal([]string{"B"}, f.registry.MembersOf("general"))
	r.Len(ofType(drain(t, b), domain.MsgTypeSystem), 1)
	r.ErrorIs(f.send(a, "general", "hi"), domain.ErrNotInRoom)
}
