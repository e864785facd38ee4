package chatclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MuhammadKashif10/onlyif-backend/internal/models"
	chatws "github.com/MuhammadKashif10/onlyif-backend/internal/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "test-token"

// fakeServer speaks just enough of the live channel and REST surface to
// drive the client: it joins on add-user, pushes queued frames per session,
// and serves history from a fixed message list.
type fakeServer struct {
	userID   uuid.UUID
	upgrader websocket.Upgrader

	mu            sync.Mutex
	sessions      int
	listCalls     int
	announces     int
	afterIDs      []int64
	history       []models.ChatMessage
	summaries     []models.ConversationSummary
	perSession    [][]models.ChatMessage
	dropAfterPush bool
	// whileOffline runs under mu after the first session is dropped.
	whileOffline func(fs *fakeServer)
	lastSend      map[string]string
	lastAuth      string
}

func newFakeServer(t *testing.T, userID uuid.UUID) (*fakeServer, *httptest.Server) {
	fs := &fakeServer{userID: userID}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/ws", fs.handleSocket)
	mux.HandleFunc("GET /api/v1/conversations", fs.handleConversations)
	mux.HandleFunc("GET /api/v1/conversations/{id}/messages", fs.handleHistory)
	mux.HandleFunc("POST /api/chatting", fs.handleSend)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (fs *fakeServer) handleSocket(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("token") != testToken {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	conn, err := fs.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	fs.mu.Lock()
	session := fs.sessions
	fs.sessions++
	var queued []models.ChatMessage
	if session < len(fs.perSession) {
		queued = fs.perSession[session]
	}
	drop := fs.dropAfterPush && session == 0
	fs.mu.Unlock()

	for {
		var frame struct {
			Event  string `json:"event"`
			UserID string `json:"userId"`
		}
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		switch frame.Event {
		case chatws.EventAddUser:
			if frame.UserID != fs.userID.String() {
				_ = conn.WriteJSON(chatws.Frame{Event: chatws.EventError, Code: "forbidden", Error: "mismatch"})
				continue
			}
			fs.mu.Lock()
			fs.announces++
			fs.mu.Unlock()
			_ = conn.WriteJSON(chatws.Frame{Event: chatws.EventJoined, UserID: frame.UserID})
			for i := range queued {
				_ = conn.WriteJSON(chatws.Frame{Event: chatws.EventMessage, Message: &queued[i]})
			}
			if drop {
				// Let the client finish its first resync before going away.
				fs.waitForListCall()
				fs.mu.Lock()
				if fs.whileOffline != nil {
					fs.whileOffline(fs)
				}
				fs.mu.Unlock()
				return
			}
		case chatws.EventPing:
			_ = conn.WriteJSON(chatws.Frame{Event: chatws.EventPong})
		}
	}
}

func (fs *fakeServer) waitForListCall() {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fs.mu.Lock()
		listed := fs.listCalls > 0
		fs.mu.Unlock()
		if listed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (fs *fakeServer) handleConversations(w http.ResponseWriter, _ *http.Request) {
	fs.mu.Lock()
	summaries := append([]models.ConversationSummary{}, fs.summaries...)
	fs.listCalls++
	fs.mu.Unlock()

	writeEnvelope(w, http.StatusOK, map[string]any{"conversations": summaries})
}

func (fs *fakeServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	afterID, _ := strconv.ParseInt(r.URL.Query().Get("afterId"), 10, 64)
	conversationID := uuid.MustParse(r.PathValue("id"))

	fs.mu.Lock()
	fs.afterIDs = append(fs.afterIDs, afterID)
	messages := []models.ChatMessage{}
	for _, m := range fs.history {
		if m.ConversationID == conversationID && m.ID > afterID {
			messages = append(messages, m)
		}
	}
	fs.mu.Unlock()

	writeEnvelope(w, http.StatusOK, map[string]any{"messages": messages})
}

func (fs *fakeServer) handleSend(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)

	fs.mu.Lock()
	fs.lastSend = body
	fs.lastAuth = r.Header.Get("Authorization")
	fs.mu.Unlock()

	if body["text"] == "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": "text is required", "code": "invalid_input"})
		return
	}

	conversationID := uuid.New()
	writeEnvelope(w, http.StatusCreated, map[string]any{
		"message": models.ChatMessage{
			ID:             77,
			ConversationID: conversationID,
			SenderID:       fs.userID,
			ReceiverID:     uuid.MustParse(body["receiverId"]),
			Text:           body["text"],
		},
		"conversationId": conversationID,
		"live":           true,
	})
}

func writeEnvelope(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
}

type collector struct {
	mu       sync.Mutex
	messages []models.ChatMessage
}

func (c *collector) add(m models.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, m)
	c.mu.Unlock()
}

func (c *collector) ids() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.ID)
	}
	return out
}

func newTestClient(t *testing.T, baseURL string, userID uuid.UUID, sink *collector) *Client {
	t.Helper()
	client, err := New(Config{
		BaseURL:   baseURL,
		Token:     testToken,
		UserID:    userID,
		OnMessage: sink.add,
	})
	require.NoError(t, err)
	client.backoff.InitialInterval = 5 * time.Millisecond
	client.backoff.MaxInterval = 20 * time.Millisecond
	client.backoff.Reset()
	return client
}

func runClient(t *testing.T, client *Client) (context.CancelFunc, <-chan error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel, done
}

func TestReconnectBackoffGrowsCapsAndResets(t *testing.T) {
	b := newReconnectBackoff()
	b.RandomizationFactor = 0
	b.Reset()

	expected := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		30 * time.Second,
		30 * time.Second,
	}
	for i, want := range expected {
		assert.Equal(t, want, b.NextBackOff(), "attempt %d", i)
	}

	b.Reset()
	assert.Equal(t, 500*time.Millisecond, b.NextBackOff())
}

func TestReconnectBackoffJitterStaysWithinTwentyPercent(t *testing.T) {
	b := newReconnectBackoff()
	for i := 0; i < 50; i++ {
		b.Reset()
		got := b.NextBackOff()
		assert.GreaterOrEqual(t, got, 400*time.Millisecond)
		assert.LessOrEqual(t, got, 600*time.Millisecond)
	}
}

func TestBackoffResetsOnlyAfterHealthySession(t *testing.T) {
	client, err := New(Config{BaseURL: "http://localhost", Token: "t", UserID: uuid.New(), HealthyAfter: time.Minute})
	require.NoError(t, err)
	client.backoff.RandomizationFactor = 0
	client.backoff.Reset()

	// Sessions that join and drop at once keep growing the delay.
	assert.Equal(t, 500*time.Millisecond, client.nextDelay(time.Now()))
	assert.Equal(t, time.Second, client.nextDelay(time.Now()))
	assert.Equal(t, 2*time.Second, client.nextDelay(time.Time{}))
	assert.Equal(t, 3, client.attempt)

	assert.Equal(t, 500*time.Millisecond, client.nextDelay(time.Now().Add(-2*time.Minute)))
	assert.Equal(t, 1, client.attempt)
}

func TestDeliverForgetsOldestIDsBeyondCapacity(t *testing.T) {
	sink := &collector{}
	client, err := New(Config{BaseURL: "http://localhost", Token: "t", UserID: uuid.New(), SeenCapacity: 2, OnMessage: sink.add})
	require.NoError(t, err)

	conversationID := uuid.New()
	for _, id := range []int64{1, 1, 2, 3, 3, 1} {
		client.deliver(models.ChatMessage{ID: id, ConversationID: conversationID})
	}
	assert.Equal(t, []int64{1, 2, 3, 1}, sink.ids())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{BaseURL: "ftp://example.com", Token: "t", UserID: uuid.New()})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://example.com", UserID: uuid.New()})
	assert.Error(t, err)

	_, err = New(Config{BaseURL: "https://example.com", Token: "t"})
	assert.Error(t, err)
}

func TestSocketURLUsesWebsocketScheme(t *testing.T) {
	client, err := New(Config{BaseURL: "https://api.example.com/", Token: "a b", UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/api/v1/ws?token=a+b", client.socketURL())

	client, err = New(Config{BaseURL: "http://localhost:8080", Token: "t", UserID: uuid.New()})
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/v1/ws?token=t", client.socketURL())
}

func TestClientDeliversLiveMessagesOnce(t *testing.T) {
	userID := uuid.New()
	conversationID := uuid.New()
	fs, srv := newFakeServer(t, userID)

	m1 := models.ChatMessage{ID: 1, ConversationID: conversationID, Text: "hi"}
	m2 := models.ChatMessage{ID: 2, ConversationID: conversationID, Text: "there"}
	fs.perSession = [][]models.ChatMessage{{m1, m1, m2}}

	sink := &collector{}
	client := newTestClient(t, srv.URL, userID, sink)
	runClient(t, client)

	require.Eventually(t, func() bool { return len(sink.ids()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{1, 2}, sink.ids())
	assert.True(t, client.Connected())
}

func TestClientReconnectsAnnouncesAndResyncs(t *testing.T) {
	userID := uuid.New()
	conversationID := uuid.New()
	fs, srv := newFakeServer(t, userID)

	m1 := models.ChatMessage{ID: 10, ConversationID: conversationID, Text: "first"}
	missed := models.ChatMessage{ID: 11, ConversationID: conversationID, Text: "sent while offline"}
	fs.perSession = [][]models.ChatMessage{{m1}}
	fs.dropAfterPush = true
	fs.history = []models.ChatMessage{m1, missed}

	sink := &collector{}
	client := newTestClient(t, srv.URL, userID, sink)
	runClient(t, client)

	require.Eventually(t, func() bool { return len(sink.ids()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []int64{10, 11}, sink.ids())

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.GreaterOrEqual(t, fs.announces, 2, "add-user must be sent on every connect")
	assert.Contains(t, fs.afterIDs, int64(10), "resync must start after the last seen id")
}

func TestClientStopsWhenHandshakeIsRejected(t *testing.T) {
	userID := uuid.New()
	_, srv := newFakeServer(t, userID)

	client, err := New(Config{BaseURL: srv.URL, Token: "wrong", UserID: userID})
	require.NoError(t, err)

	err = client.Run(context.Background())
	assert.True(t, errors.Is(err, ErrRejected), "got %v", err)
}

func TestClientStopsOnForbiddenJoin(t *testing.T) {
	_, srv := newFakeServer(t, uuid.New())

	var codes []string
	client, err := New(Config{
		BaseURL: srv.URL,
		Token:   testToken,
		UserID:  uuid.New(),
		OnError: func(code, _ string) { codes = append(codes, code) },
	})
	require.NoError(t, err)

	err = client.Run(context.Background())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, []string{"forbidden"}, codes)
}

func TestClientSendPostsAndSuppressesEcho(t *testing.T) {
	userID := uuid.New()
	receiverID := uuid.New()
	fs, srv := newFakeServer(t, userID)

	sink := &collector{}
	client := newTestClient(t, srv.URL, userID, sink)

	message, err := client.Send(context.Background(), receiverID, "prop-3", "Can we view on Sunday?")
	require.NoError(t, err)
	assert.Equal(t, int64(77), message.ID)

	fs.mu.Lock()
	assert.Equal(t, "Bearer "+testToken, fs.lastAuth)
	assert.Equal(t, receiverID.String(), fs.lastSend["receiverId"])
	assert.Equal(t, "prop-3", fs.lastSend["propertyId"])
	fs.mu.Unlock()

	client.deliver(*message)
	assert.Empty(t, sink.ids())
}

func TestClientSendSurfacesAPIError(t *testing.T) {
	userID := uuid.New()
	_, srv := newFakeServer(t, userID)
	client := newTestClient(t, srv.URL, userID, &collector{})

	_, err := client.Send(context.Background(), uuid.New(), "", "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "invalid_input", apiErr.Code)
}

func TestClientResyncDiscoversConversationsStartedWhileOffline(t *testing.T) {
	userID := uuid.New()
	existingID := uuid.New()
	startedID := uuid.New()
	fs, srv := newFakeServer(t, userID)

	t0 := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	old := models.ChatMessage{ID: 1, ConversationID: existingID, Text: "before the client started", CreatedAt: t0}
	fs.history = []models.ChatMessage{old}
	fs.summaries = []models.ConversationSummary{{
		Conversation: models.Conversation{ID: existingID, LastMessage: &models.LastMessage{Text: old.Text, SentAt: t0}},
	}}
	fs.dropAfterPush = true
	fs.whileOffline = func(fs *fakeServer) {
		later := models.ChatMessage{ID: 2, ConversationID: existingID, Text: "reply while offline", CreatedAt: t0.Add(time.Minute)}
		opener := models.ChatMessage{ID: 20, ConversationID: startedID, Text: "new buyer enquiry", CreatedAt: t0.Add(2 * time.Minute)}
		fs.history = append(fs.history, later, opener)
		fs.summaries = []models.ConversationSummary{
			{Conversation: models.Conversation{ID: startedID, LastMessage: &models.LastMessage{Text: opener.Text, SentAt: opener.CreatedAt}}},
			{Conversation: models.Conversation{ID: existingID, LastMessage: &models.LastMessage{Text: later.Text, SentAt: later.CreatedAt}}},
		}
	}

	sink := &collector{}
	client := newTestClient(t, srv.URL, userID, sink)
	runClient(t, client)

	require.Eventually(t, func() bool { return len(sink.ids()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.ElementsMatch(t, []int64{2, 20}, sink.ids(), "history from before the first join must not be replayed")

	fs.mu.Lock()
	defer fs.mu.Unlock()
	assert.GreaterOrEqual(t, fs.sessions, 2)
}
