package server

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// EventMessage is one pushed event.
type EventMessage struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"ts"`
	Seq       int64  `json:"seq"`
}

// wsClient is one connected websocket subscriber.
type wsClient struct {
	id    string
	owner string
	conn  *websocket.Conn
	send  chan []byte
}

// Broadcaster pushes owner-scoped events to connected websocket clients.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*wsClient
	logger  zerolog.Logger
	seq     int64
}

// NewBroadcaster creates a new broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[string]*wsClient),
		logger:  logger,
	}
}

// Register adds a connection and starts its writer. It returns the client id.
func (b *Broadcaster) Register(owner string, conn *websocket.Conn) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}

	client := &wsClient{
		id:    id,
		owner: owner,
		conn:  conn,
		send:  make(chan []byte, 16),
	}

	b.mu.Lock()
	b.clients[id] = client
	b.mu.Unlock()

	go b.writeLoop(client)

	b.logger.Debug().Str("client", id).Str("owner", owner).Msg("Websocket client registered")
	return id, nil
}

// Unregister drops a connection. The send channel is closed while holding
// the lock so no Publish can race the close.
func (b *Broadcaster) Unregister(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if client, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(client.send)
	}
}

// Publish sends an event to every client of the given owner.
func (b *Broadcaster) Publish(owner, event string, data any) {
	msg := EventMessage{
		Type:      "event",
		Event:     event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		Seq:       atomic.AddInt64(&b.seq, 1),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("Failed to marshal event")
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, client := range b.clients {
		if client.owner != owner {
			continue
		}
		select {
		case client.send <- payload:
		default:
			b.logger.Warn().Str("client", client.id).Msg("Dropping event for slow websocket client")
		}
	}
}

// CloseAll disconnects every client.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	clients := b.clients
	b.clients = make(map[string]*wsClient)
	b.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}

func (b *Broadcaster) writeLoop(client *wsClient) {
	defer client.conn.Close()

	for payload := range client.send {
		client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			b.logger.Debug().Err(err).Str("client", client.id).Msg("Websocket write failed")
			b.Unregister(client.id)
			return
		}
	}
}
