package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/weiawesome/wes-io-live/roomchat/internal/config"
	"github.com/weiawesome/wes-io-live/roomchat/pkg/log"
)

// ErrHubStopped is returned once Run has returned.
var ErrHubStopped = errors.New("hub stopped")

const queueSize = 256

// Hub fans events out to the websocket clients subscribed to a room.
// Registrations, subscriptions and deliveries share one queue drained by
// Run, so a delivery reaches exactly the clients subscribed when it was
// submitted, in submission order.
type Hub struct {
	clients map[string]*Client            // clientID -> client
	rooms   map[string]map[string]*Client // roomID -> clientID -> client
	queue   chan *command
	done    chan struct{}
	mu      sync.RWMutex
	config  config.WebSocketConfig
}

type commandKind int

const (
	cmdRegister commandKind = iota
	cmdUnregister
	cmdSubscribe
	cmdUnsubscribe
	cmdBroadcast
)

// command is one queued hub operation. A broadcast with a client targets
// that client only; one with an empty roomID targets every client.
type command struct {
	kind    commandKind
	client  *Client
	roomID  string
	message []byte
	exclude string
	applied chan struct{}
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		rooms:   make(map[string]map[string]*Client),
		queue:   make(chan *command, queueSize),
		done:    make(chan struct{}),
		config:  cfg,
	}
}

// Run processes queued operations until ctx is done, then closes every
// client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	l := log.L()
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			closed := len(h.clients)
			for id, c := range h.clients {
				c.closeSend()
				delete(h.clients, id)
			}
			h.rooms = make(map[string]map[string]*Client)
			h.mu.Unlock()
			l.Info().Int(log.FieldCount, closed).Msg("hub stopped")
			return

		case cmd := <-h.queue:
			h.apply(cmd)
			if cmd.applied != nil {
				close(cmd.applied)
			}
		}
	}
}

func (h *Hub) apply(cmd *command) {
	l := log.L()
	switch cmd.kind {
	case cmdRegister:
		h.mu.Lock()
		h.clients[cmd.client.ID] = cmd.client
		h.mu.Unlock()
		l.Debug().Str(log.FieldConnID, cmd.client.ID).Msg("client registered")

	case cmdUnregister:
		h.remove(cmd.client)

	case cmdSubscribe:
		h.subscribe(cmd.client, cmd.roomID)

	case cmdUnsubscribe:
		h.unsubscribe(cmd.client, cmd.roomID)

	case cmdBroadcast:
		h.deliver(cmd)
	}
}

func (h *Hub) deliver(cmd *command) {
	h.mu.RLock()
	var recipients []*Client
	if cmd.client != nil {
		if c, ok := h.clients[cmd.client.ID]; ok {
			recipients = append(recipients, c)
		}
	} else {
		targets := h.clients
		if cmd.roomID != "" {
			targets = h.rooms[cmd.roomID]
		}
		recipients = make([]*Client, 0, len(targets))
		for id, c := range targets {
			if id != cmd.exclude {
				recipients = append(recipients, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		if err := c.enqueue(cmd.message); err != nil {
			l := log.L()
			l.Warn().Err(err).
				Str(log.FieldConnID, c.ID).
				Str(log.FieldRoomID, cmd.roomID).
				Msg("dropping slow client")
			h.remove(c)
		}
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	for roomID, members := range h.rooms {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	delete(h.clients, c.ID)
	c.closeSend()

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Msg("client unregistered")
}

func (h *Hub) subscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// An evicted client stays out.
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	members, ok := h.rooms[roomID]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[roomID] = members
	}
	members[c.ID] = c

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldRoomID, roomID).Msg("client subscribed")
}

func (h *Hub) unsubscribe(c *Client, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if members, ok := h.rooms[roomID]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}

	l := log.L()
	l.Debug().Str(log.FieldConnID, c.ID).Str(log.FieldRoomID, roomID).Msg("client unsubscribed")
}

// Register adds c to the hub. It is a no-op after the hub stopped.
func (h *Hub) Register(c *Client) {
	h.await(&command{kind: cmdRegister, client: c})
}

// Unregister removes c from every room and closes its send queue once the
// deliveries queued before it are done. Unregistering twice is harmless.
func (h *Hub) Unregister(c *Client) {
	h.await(&command{kind: cmdUnregister, client: c})
}

// Subscribe adds c to the recipients of roomID. Deliveries queued before the
// call do not reach c.
func (h *Hub) Subscribe(c *Client, roomID string) {
	h.await(&command{kind: cmdSubscribe, client: c, roomID: roomID})
}

// Unsubscribe removes c from roomID. Deliveries queued before the call still
// reach c.
func (h *Hub) Unsubscribe(c *Client, roomID string) {
	h.await(&command{kind: cmdUnsubscribe, client: c, roomID: roomID})
}

// Broadcast queues message for every subscriber of roomID.
func (h *Hub) Broadcast(roomID string, message any) error {
	return h.BroadcastExcept(roomID, message, "")
}

// BroadcastExcept queues message for every subscriber of roomID but exclude.
func (h *Hub) BroadcastExcept(roomID string, message any, exclude string) error {
	if roomID == "" {
		return errors.New("room id is required")
	}
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return h.enqueue(&command{kind: cmdBroadcast, roomID: roomID, message: data, exclude: exclude})
}

// BroadcastAll queues message for every registered client.
func (h *Hub) BroadcastAll(message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return h.enqueue(&command{kind: cmdBroadcast, message: data})
}

// Send queues message for c alone, behind everything already queued.
func (h *Hub) Send(c *Client, message any) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return h.enqueue(&command{kind: cmdBroadcast, client: c, message: data})
}

// await queues a membership change and waits until Run has applied it.
func (h *Hub) await(cmd *command) {
	cmd.applied = make(chan struct{})
	if err := h.enqueue(cmd); err != nil {
		return
	}
	select {
	case <-cmd.applied:
	case <-h.done:
	}
}

func (h *Hub) enqueue(cmd *command) error {
	select {
	case <-h.done:
		return ErrHubStopped
	default:
	}
	select {
	case h.queue <- cmd:
		return nil
	case <-h.done:
		return ErrHubStopped
	}
}

// Subscribers returns the number of clients subscribed to roomID.
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
