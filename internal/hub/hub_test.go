package hub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/internal/domain"
)

type testEvent struct {
	Type string `json:"type"`
	Seq  int    `json:"seq"`
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	h := NewHub(config.WebSocketConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func newTestClient(h *Hub, id string, buffer int) *Client {
	cfg := config.WebSocketConfig{SendBuffer: buffer}
	return NewClient(id, h, nil, domain.NewSession(id, "user-"+id, ""), cfg)
}

func receive(t *testing.T, c *Client) testEvent {
	t.Helper()
	select {
	case data, ok := <-c.Send:
		require.True(t, ok, "send queue of %s closed", c.ID)
		var evt testEvent
		require.NoError(t, json.Unmarshal(data, &evt))
		return evt
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for a message on %s", c.ID)
		return testEvent{}
	}
}

func requireNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("unexpected message on %s: %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHub_BroadcastPreservesOrder(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	// Given two subscribers of one room
	a := newTestClient(h, "a", 64)
	b := newTestClient(h, "b", 64)
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, "general")
	h.Subscribe(b, "general")

	// When several events are broadcast
	for i := 1; i <= 10; i++ {
		r.NoError(h.Broadcast("general", testEvent{Type: "newMessage", Seq: i}))
	}

	// Then each subscriber sees them in submission order
	for _, c := range []*Client{a, b} {
		for i := 1; i <= 10; i++ {
			r.Equal(i, receive(t, c).Seq)
		}
	}
}

func TestHub_BroadcastIsScopedToRoom(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	a := newTestClient(h, "a", 8)
	other := newTestClient(h, "other", 8)
	h.Register(a)
	h.Register(other)
	h.Subscribe(a, "general")
	h.Subscribe(other, "random")

	r.NoError(h.Broadcast("general", testEvent{Type: "system", Seq: 1}))

	r.Equal(1, receive(t, a).Seq)
	requireNothing(t, other)
}

func TestHub_BroadcastExcept(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	typer := newTestClient(h, "typer", 8)
	peer := newTestClient(h, "peer", 8)
	h.Register(typer)
	h.Register(peer)
	h.Subscribe(typer, "general")
	h.Subscribe(peer, "general")

	r.NoError(h.BroadcastExcept("general", testEvent{Type: "typing"}, typer.ID))

	r.Equal("typing", receive(t, peer).Type)
	requireNothing(t, typer)
}

func TestHub_BroadcastAll(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	a := newTestClient(h, "a", 8)
	b := newTestClient(h, "b", 8)
	h.Register(a)
	h.Register(b)
	h.Subscribe(a, "general")

	r.NoError(h.BroadcastAll(testEvent{Type: "totalUsers", Seq: 1}))

	r.Equal("totalUsers", receive(t, a).Type)
	r.Equal("totalUsers", receive(t, b).Type)
}

func TestHub_SlowClientIsEvicted(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	// Given a subscriber whose queue holds a single message
	slow := newTestClient(h, "slow", 1)
	fast := newTestClient(h, "fast", 16)
	h.Register(slow)
	h.Register(fast)
	h.Subscribe(slow, "general")
	h.Subscribe(fast, "general")

	// When more events arrive than the slow queue can hold
	for i := 1; i <= 3; i++ {
		r.NoError(h.Broadcast("general", testEvent{Seq: i}))
	}

	// Then the fast client still gets everything
	for i := 1; i <= 3; i++ {
		r.Equal(i, receive(t, fast).Seq)
	}

	// And the slow client is removed with its queue closed
	r.Eventually(func() bool { return h.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	r.Equal(1, h.Subscribers("general"))
	r.Equal(1, receive(t, slow).Seq)
	_, open := <-slow.Send
	r.False(open)
	r.ErrorIs(slow.enqueue([]byte("{}")), ErrClientClosed)
}

func TestHub_UnregisterIsIdempotent(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	c := newTestClient(h, "c", 4)
	h.Register(c)
	h.Subscribe(c, "general")

	h.Unregister(c)
	h.Unregister(c)

	r.Eventually(func() bool { return h.ClientCount() == 0 }, time.Second, 10*time.Millisecond)
	r.Zero(h.Subscribers("general"))
}

func TestHub_StoppedHubRejectsBroadcast(t *testing.T) {
	r := require.New(t)
	h := NewHub(config.WebSocketConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		h.Run(ctx)
		close(stopped)
	}()

	c := newTestClient(h, "c", 4)
	h.Register(c)

	cancel()
	<-stopped

	r.ErrorIs(h.Broadcast("general", testEvent{}), ErrHubStopped)
	h.Register(newTestClient(h, "late", 1))
	h.Unregister(c)
	_, open := <-c.Send
	r.False(open)
}

func TestHub_LateSubscriberMissesEarlierEvents(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	early := newTestClient(h, "early", 8)
	late := newTestClient(h, "late", 8)
	h.Register(early)
	h.Register(late)
	h.Subscribe(early, "general")

	r.NoError(h.Broadcast("general", testEvent{Seq: 1}))
	h.Subscribe(late, "general")
	r.NoError(h.Broadcast("general", testEvent{Seq: 2}))

	r.Equal(1, receive(t, early).Seq)
	r.Equal(2, receive(t, early).Seq)
	r.Equal(2, receive(t, late).Seq)
	requireNothing(t, late)
}

func TestHub_UnsubscribeKeepsQueuedEvents(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	stays := newTestClient(h, "stays", 8)
	leaves := newTestClient(h, "leaves", 8)
	h.Register(stays)
	h.Register(leaves)
	h.Subscribe(stays, "general")
	h.Subscribe(leaves, "general")

	r.NoError(h.Broadcast("general", testEvent{Seq: 1}))
	h.Unsubscribe(leaves, "general")
	r.NoError(h.Broadcast("general", testEvent{Seq: 2}))

	r.Equal(1, receive(t, leaves).Seq)
	requireNothing(t, leaves)
	r.Equal(1, receive(t, stays).Seq)
	r.Equal(2, receive(t, stays).Seq)
	r.Zero(h.Subscribers("other"))
	r.Equal(1, h.Subscribers("general"))
}

func TestHub_SendIsOrderedWithBroadcasts(t *testing.T) {
	r := require.New(t)
	h := startHub(t)

	c := newTestClient(h, "c", 8)
	gone := newTestClient(h, "gone", 8)
	h.Register(c)
	h.Subscribe(c, "general")

	r.NoError(h.Broadcast("general", testEvent{Seq: 1}))
	r.NoError(h.Send(c, testEvent{Type: "pong", Seq: 2}))
	r.NoError(h.Send(gone, testEvent{Type: "pong"}))

	r.Equal(1, receive(t, c).Seq)
	r.Equal("pong", receive(t, c).Type)
	requireNothing(t, gone)
}
