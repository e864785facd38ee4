// Package chatclient is a Go client for the live chat channel. It keeps a
// socket joined across disconnects and backfills anything missed over REST.
package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	chatws "github.com/MuhammadKashif10/onlyif-backend/internal/websocket"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultSeenCapacity = 1024
	writeWait           = 10 * time.Second
	resyncPageSize      = 200
)

// ErrRejected is returned by Run when the server refuses the session for a
// reason a retry cannot fix, such as a bad token.
var ErrRejected = errors.New("chat session rejected")

type Config struct {
	// BaseURL is the http(s) origin of the API, e.g. https://api.example.com.
	BaseURL string
	Token   string
	UserID  uuid.UUID

	OnMessage func(models.ChatMessage)
	OnError   func(code, message string)

	HTTPClient   *http.Client
	Dialer       *websocket.Dialer
	PingInterval time.Duration
	SeenCapacity int
	// HealthyAfter is how long a joined session must last before the
	// reconnect delay starts over from the base interval.
	HealthyAfter time.Duration
}

type Client struct {
	cfg       Config
	rest      *restClient
	dialer    *websocket.Dialer
	backoff   *backoff.ExponentialBackOff
	seen      *lru.Cache[int64, struct{}]
	log       *logrus.Entry
	connected atomic.Bool
	attempt   int

	mu      sync.Mutex
	cursors map[uuid.UUID]int64
	// baseline holds, per conversation, the last activity seen at the first
	// join. Untracked conversations are backfilled only past that point.
	baseline  map[uuid.UUID]time.Time
	baselined bool
}

type outboundFrame struct {
	Event  string `json:"event"`
	UserID string `json:"userId,omitempty"`
}

func New(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return nil, fmt.Errorf("chatclient: BaseURL must be an http(s) URL, got %q", cfg.BaseURL)
	}
	if cfg.Token == "" {
		return nil, errors.New("chatclient: Token is required")
	}
	if cfg.UserID == uuid.Nil {
		return nil, errors.New("chatclient: UserID is required")
	}
	if cfg.OnMessage == nil {
		cfg.OnMessage = func(models.ChatMessage) {}
	}
	if cfg.OnError == nil {
		cfg.OnError = func(string, string) {}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultPingInterval
	}
	if cfg.SeenCapacity <= 0 {
		cfg.SeenCapacity = defaultSeenCapacity
	}
	if cfg.HealthyAfter <= 0 {
		cfg.HealthyAfter = defaultHealthyAfter
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	seen, err := lru.New[int64, struct{}](cfg.SeenCapacity)
	if err != nil {
		return nil, fmt.Errorf("chatclient: %w", err)
	}

	return &Client{
		cfg: cfg,
		rest: &restClient{
			baseURL:    base.String(),
			token:      cfg.Token,
			httpClient: cfg.HTTPClient,
		},
		dialer:   dialer,
		backoff:  newReconnectBackoff(),
		seen:     seen,
		log:      logrus.WithFields(logrus.Fields{"component": "chatclient", "user_id": cfg.UserID}),
		cursors:  make(map[uuid.UUID]int64),
		baseline: make(map[uuid.UUID]time.Time),
	}, nil
}

// Connected reports whether the socket is currently joined.
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Track adds a conversation to the resync set, for conversations the caller
// learned about out of band (e.g. from the conversation list).
func (c *Client) Track(conversationID uuid.UUID, afterID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.cursors[conversationID]; !ok || afterID > current {
		c.cursors[conversationID] = afterID
	}
}

// Send posts a message over REST. The returned message is marked as seen,
// so its live echo is not passed to OnMessage.
func (c *Client) Send(ctx context.Context, receiverID uuid.UUID, propertyID, text string) (*models.ChatMessage, error) {
	resp, err := c.rest.send(ctx, receiverID, propertyID, text)
	if err != nil {
		return nil, err
	}
	c.seen.Add(resp.Message.ID, struct{}{})
	c.Track(resp.Message.ConversationID, resp.Message.ID)
	return &resp.Message, nil
}

// Run keeps a session open until ctx is cancelled or the server rejects the
// client with ErrRejected.
func (c *Client) Run(ctx context.Context) error {
	for {
		joinedAt, err := c.session(ctx)
		c.connected.Store(false)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrRejected) {
			return err
		}

		delay := c.nextDelay(joinedAt)
		c.log.WithError(err).WithFields(logrus.Fields{
			"attempt": c.attempt,
			"delay":   delay.String(),
		}).Warn("chat session ended, reconnecting")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// nextDelay returns the wait before reconnecting after a session that
// joined at joinedAt, zero if it never joined. Only a session that stayed
// up for HealthyAfter restarts the delay sequence.
func (c *Client) nextDelay(joinedAt time.Time) time.Duration {
	if !joinedAt.IsZero() && time.Since(joinedAt) >= c.cfg.HealthyAfter {
		c.backoff.Reset()
		c.attempt = 0
	}
	c.attempt++
	return c.backoff.NextBackOff()
}

func (c *Client) socketURL() string {
	u, _ := url.Parse(c.rest.baseURL)
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/ws"
	u.RawQuery = url.Values{"token": {c.cfg.Token}}.Encode()
	return u.String()
}

// session dials, joins and reads until the socket fails. joinedAt is when
// the join and resync completed, zero if they never did.
func (c *Client) session(ctx context.Context) (joinedAt time.Time, err error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.socketURL(), nil)
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return joinedAt, fmt.Errorf("%w: handshake status %d", ErrRejected, resp.StatusCode)
		}
		return joinedAt, fmt.Errorf("dial: %w", err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-sessionCtx.Done()
		_ = conn.Close()
	}()

	var writeMu sync.Mutex
	write := func(frame outboundFrame) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		return conn.WriteJSON(frame)
	}

	if err := write(outboundFrame{Event: chatws.EventAddUser, UserID: c.cfg.UserID.String()}); err != nil {
		return joinedAt, fmt.Errorf("announce: %w", err)
	}

	go func() {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := write(outboundFrame{Event: chatws.EventPing}); err != nil {
					cancel()
					return
				}
			case <-sessionCtx.Done():
				return
			}
		}
	}()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return joinedAt, ctx.Err()
			}
			return joinedAt, fmt.Errorf("read: %w", err)
		}

		var frame chatws.Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			c.log.WithError(err).Debug("ignoring malformed frame")
			continue
		}

		switch frame.Event {
		case chatws.EventJoined:
			if err := c.resync(sessionCtx); err != nil {
				return joinedAt, fmt.Errorf("resync: %w", err)
			}
			joinedAt = time.Now()
			c.connected.Store(true)
		case chatws.EventMessage:
			if frame.Message != nil {
				c.deliver(*frame.Message)
			}
		case chatws.EventError:
			c.cfg.OnError(frame.Code, frame.Error)
			if frame.Code == "forbidden" {
				return joinedAt, fmt.Errorf("%w: %s", ErrRejected, frame.Error)
			}
		}
	}
}

// resync lists the caller's conversations and fetches everything missed in
// each one: past the last seen id for tracked conversations, past the first
// join's baseline for conversations seen for the first time.
func (c *Client) resync(ctx context.Context) error {
	summaries, err := c.rest.conversations(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	firstJoin := !c.baselined
	type pending struct {
		afterID int64
		since   time.Time
		tracked bool
	}
	work := make(map[uuid.UUID]pending, len(c.cursors)+len(summaries))
	for id, after := range c.cursors {
		work[id] = pending{afterID: after, tracked: true}
	}
	for _, summary := range summaries {
		if _, tracked := c.cursors[summary.ID]; tracked {
			continue
		}
		var lastActivity time.Time
		if summary.LastMessage != nil {
			lastActivity = summary.LastMessage.SentAt
		}
		if firstJoin {
			c.baseline[summary.ID] = lastActivity
			continue
		}
		since, known := c.baseline[summary.ID]
		if known && !lastActivity.After(since) {
			continue
		}
		work[summary.ID] = pending{since: since}
	}
	c.mu.Unlock()

	for conversationID, job := range work {
		after := job.afterID
		for {
			messages, err := c.rest.messagesAfter(ctx, conversationID, after)
			if err != nil {
				return err
			}
			for _, message := range messages {
				if message.ID > after {
					after = message.ID
				}
				if !job.tracked && !message.CreatedAt.After(job.since) {
					continue
				}
				c.deliver(message)
			}
			if len(messages) < resyncPageSize {
				break
			}
		}
		c.Track(conversationID, after)
	}

	c.mu.Lock()
	c.baselined = true
	c.mu.Unlock()
	return nil
}

func (c *Client) deliver(message models.ChatMessage) {
	c.Track(message.ConversationID, message.ID)
	if seen, _ := c.seen.ContainsOrAdd(message.ID, struct{}{}); seen {
		return
	}
	c.cfg.OnMessage(message)
}
