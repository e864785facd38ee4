package chatws

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/metrics"
	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	"github.com/MuhammadKashif10/onlyif-backend/internal/services"
	websocket "github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type offlineMirror interface {
	MirrorChatMessage(ctx context.Context, message *models.ChatMessage) error
}

// Hub owns the user rooms of this instance. Room membership is only touched
// by the Run goroutine.
type Hub struct {
	clients    map[uuid.UUID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan *Envelope
	done       chan struct{}

	broker          Broker
	presence        Presence
	mirror          offlineMirror
	refreshInterval time.Duration
	log             *logrus.Entry
}

type HubOption func(*Hub)

func WithBroker(broker Broker) HubOption {
	return func(h *Hub) { h.broker = broker }
}

// WithPresence sets the presence store and how often the hub refreshes the
// entries of the users it holds.
func WithPresence(presence Presence, refreshInterval time.Duration) HubOption {
	return func(h *Hub) {
		h.presence = presence
		h.refreshInterval = refreshInterval
	}
}

// WithOfflineMirror sets where messages for users without a live socket
// are recorded.
func WithOfflineMirror(mirror offlineMirror) HubOption {
	return func(h *Hub) { h.mirror = mirror }
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		clients:         make(map[uuid.UUID]map[*Client]struct{}),
		register:        make(chan *Client),
		unregister:      make(chan *Client),
		broadcast:       make(chan *Envelope, 64),
		done:            make(chan struct{}),
		broker:          NewLocalBroker(),
		presence:        NewLocalPresence(),
		refreshInterval: 30 * time.Second,
		log:             logrus.WithField("component", "chat_hub"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run subscribes to the broker and serves room membership and deliveries
// until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	err := h.broker.Subscribe(ctx, func(envelope *Envelope) {
		select {
		case h.broadcast <- envelope:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}

	ticker := time.NewTicker(h.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case client := <-h.register:
			set, ok := h.clients[client.userID]
			if !ok {
				set = make(map[*Client]struct{})
				h.clients[client.userID] = set
			}
			set[client] = struct{}{}
			metrics.LiveConnections.Inc()
		case client := <-h.unregister:
			h.remove(client)
		case envelope := <-h.broadcast:
			h.deliver(envelope)
		case <-ticker.C:
			go h.refreshPresence(ctx, h.onlineUsers())
		}
	}
}

// Register joins client to its user room. It reports false once the hub
// has stopped.
func (h *Hub) Register(ctx context.Context, client *Client) bool {
	select {
	case h.register <- client:
	case <-h.done:
		return false
	}
	if err := h.presence.Join(ctx, client.userID); err != nil {
		h.log.WithError(err).WithField("user_id", client.userID).Warn("presence join failed")
	}
	return true
}

func (h *Hub) Unregister(ctx context.Context, client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
	if err := h.presence.Leave(ctx, client.userID); err != nil {
		h.log.WithError(err).WithField("user_id", client.userID).Warn("presence leave failed")
	}
}

// Dispatch publishes a persisted message to the sender's and receiver's
// rooms. A receiver with no joined socket anywhere gets the message
// mirrored as a notification instead.
func (h *Hub) Dispatch(ctx context.Context, transport string, delivery *services.ChatDelivery, clientRef string) error {
	metrics.ChatMessagesSent.WithLabelValues(transport).Inc()

	message := delivery.Message
	envelope := &Envelope{
		Recipients: []uuid.UUID{message.SenderID, message.ReceiverID},
		Frame:      messageFrame(delivery, clientRef),
	}
	if err := h.broker.Publish(ctx, envelope); err != nil {
		return err
	}

	if h.mirror == nil {
		return nil
	}
	online, err := h.presence.Online(ctx, message.ReceiverID)
	if err != nil {
		h.log.WithError(err).Warn("presence lookup failed, mirroring message")
	}
	if online && err == nil {
		return nil
	}
	if err := h.mirror.MirrorChatMessage(ctx, message); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"message_id":  message.ID,
			"receiver_id": message.ReceiverID,
		}).Error("failed to mirror chat message")
	}
	return nil
}

func (h *Hub) deliver(envelope *Envelope) {
	payload, err := encodeFrame(envelope.Frame)
	if err != nil {
		h.log.WithError(err).Error("encode frame")
		return
	}

	seen := make(map[uuid.UUID]struct{}, len(envelope.Recipients))
	for _, userID := range envelope.Recipients {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}
		h.sendToUser(userID, payload)
	}
}

func (h *Hub) sendToUser(userID uuid.UUID, payload []byte) {
	set, ok := h.clients[userID]
	if !ok {
		return
	}

	for client := range set {
		if !client.enqueue(payload) {
			metrics.LiveFramesDropped.Inc()
			h.log.WithField("user_id", userID).Warn("dropping slow live client")
			delete(set, client)
			metrics.LiveConnections.Dec()
			client.closeSend()
		}
	}
	if len(set) == 0 {
		delete(h.clients, userID)
	}
}

func (h *Hub) remove(client *Client) {
	set, ok := h.clients[client.userID]
	if !ok {
		return
	}
	if _, exists := set[client]; exists {
		delete(set, client)
		metrics.LiveConnections.Dec()
		client.closeSend()
	}
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
}

func (h *Hub) closeAll() {
	for userID, set := range h.clients {
		for client := range set {
			metrics.LiveConnections.Dec()
			client.closeSend()
		}
		delete(h.clients, userID)
	}
}

func (h *Hub) onlineUsers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(h.clients))
	for userID := range h.clients {
		ids = append(ids, userID)
	}
	return ids
}

func (h *Hub) refreshPresence(ctx context.Context, userIDs []uuid.UUID) {
	if err := h.presence.Refresh(ctx, userIDs); err != nil {
		h.log.WithError(err).Warn("presence refresh failed")
	}
}

type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type messageSender interface {
	SendMessage(ctx context.Context, actor services.Actor, receiverID uuid.UUID, propertyID string, text string) (*services.ChatDelivery, error)
}

// Client is one live socket. It joins its user room only after an add-user
// frame that matches the authenticated user.
type Client struct {
	hub    *Hub
	conn   wsConn
	actor  services.Actor
	userID uuid.UUID
	joined bool

	mu     sync.Mutex
	closed bool
	send   chan []byte
}

func NewClient(hub *Hub, conn wsConn, actor services.Actor) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		actor:  actor,
		userID: actor.ID,
		send:   make(chan []byte, 32),
	}
}

func (c *Client) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Serve runs the socket until the peer disconnects or ctx is cancelled.
func (c *Client) Serve(ctx context.Context, sender messageSender) {
	go c.WritePump()
	c.ReadPump(ctx, sender)
}

func (c *Client) ReadPump(ctx context.Context, sender messageSender) {
	defer func() {
		if c.joined {
			c.hub.Unregister(ctx, c)
		} else {
			c.closeSend()
		}
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming inboundFrame
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeFrame(errorFrame("invalid_frame", "invalid frame payload", ""))
			continue
		}

		switch incoming.Event {
		case EventPing:
			c.writeFrame(newFrame(EventPong))
		case EventAddUser:
			c.handleAddUser(ctx, incoming)
		case EventSendMessage:
			c.handleSendMessage(ctx, sender, incoming)
		default:
			c.writeFrame(errorFrame("unsupported_event", "unsupported event", incoming.ClientRef))
		}
	}
}

func (c *Client) handleAddUser(ctx context.Context, incoming inboundFrame) {
	userID, err := uuid.Parse(incoming.UserID)
	if err != nil || userID != c.userID {
		c.writeFrame(errorFrame("forbidden", "add-user must name the authenticated user", incoming.ClientRef))
		return
	}
	if !c.joined {
		if !c.hub.Register(ctx, c) {
			c.writeFrame(errorFrame("unavailable", "live channel is shutting down", incoming.ClientRef))
			return
		}
		c.joined = true
	}
	frame := newFrame(EventJoined)
	frame.UserID = c.userID.String()
	c.writeFrame(frame)
}

func (c *Client) handleSendMessage(ctx context.Context, sender messageSender, incoming inboundFrame) {
	if !c.joined {
		c.writeFrame(errorFrame("not_joined", "send add-user before sending messages", incoming.ClientRef))
		return
	}
	receiverID, err := uuid.Parse(incoming.ReceiverID)
	if err != nil {
		c.writeFrame(errorFrame("invalid_input", "receiverId must be a uuid", incoming.ClientRef))
		return
	}

	delivery, err := sender.SendMessage(ctx, c.actor, receiverID, incoming.PropertyID, incoming.Text)
	if err != nil {
		code, message := errorCode(err)
		if code == "internal_error" {
			c.hub.log.WithError(err).WithField("user_id", c.userID).Error("live send failed")
		}
		c.writeFrame(errorFrame(code, message, incoming.ClientRef))
		return
	}

	if err := c.hub.Dispatch(ctx, "ws", delivery, incoming.ClientRef); err != nil {
		c.hub.log.WithError(err).WithField("message_id", delivery.Message.ID).Error("live dispatch failed")
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) writeFrame(frame Frame) {
	payload, err := encodeFrame(frame)
	if err != nil {
		return
	}
	if !c.enqueue(payload) {
		metrics.LiveFramesDropped.Inc()
	}
}
