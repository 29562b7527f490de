package signal

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"streamgate/internal/core/domain"
	"streamgate/internal/infrastructure/monitoring"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// FeedMessage is one event pushed to operator panel subscribers.
type FeedMessage struct {
	Type      string          `json:"type"`
	Timestamp int64           `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type IssuancePayload struct {
	Channel   domain.ChannelID `json:"channel"`
	UID       domain.SubjectID `json:"uid"`
	Role      domain.Role      `json:"role"`
	ExpiresAt int64            `json:"expires_at"`
}

type PresencePayload struct {
	Channel domain.ChannelID `json:"channel"`
	UID     domain.SubjectID `json:"uid"`
}

// EventFeed is a WebSocket hub broadcasting issuance and presence events to
// the broadcaster panel. Slow subscribers are dropped rather than allowed to
// block the hub.
type EventFeed struct {
	// Each connection gets its own write lock: pings and broadcasts come
	// from different goroutines and gorilla connections allow one writer.
	connections map[*websocket.Conn]*sync.Mutex
	mu          sync.RWMutex

	pingInterval time.Duration
	pongTimeout  time.Duration
	writeTimeout time.Duration

	collector *monitoring.PrometheusCollector
	logger    *zap.SugaredLogger
}

func NewEventFeed(pingInterval, pongTimeout time.Duration, collector *monitoring.PrometheusCollector, logger *zap.SugaredLogger) *EventFeed {
	return &EventFeed{
		connections:  make(map[*websocket.Conn]*sync.Mutex),
		pingInterval: pingInterval,
		pongTimeout:  pongTimeout,
		writeTimeout: 10 * time.Second,
		collector:    collector,
		logger:       logger,
	}
}

func (f *EventFeed) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	f.mu.Lock()
	f.connections[conn] = &sync.Mutex{}
	f.mu.Unlock()

	if f.collector != nil {
		f.collector.FeedClientConnected()
	}
	f.logger.Infow("event feed subscriber connected", "remote", conn.RemoteAddr())

	go f.keepAlive(conn)
}

func (f *EventFeed) keepAlive(conn *websocket.Conn) {
	defer f.drop(conn)

	conn.SetReadDeadline(time.Now().Add(f.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(f.pongTimeout))
		return nil
	})

	ticker := time.NewTicker(f.pingInterval)
	defer ticker.Stop()

	// The feed is push-only; reads exist to process pongs and detect close.
	// The reader goroutine exits once drop closes the connection, so neither
	// side outlives the subscriber.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-readErr:
			return
		case <-ticker.C:
			f.mu.RLock()
			wl, ok := f.connections[conn]
			f.mu.RUnlock()
			if !ok {
				return
			}
			wl.Lock()
			conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			wl.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (f *EventFeed) drop(conn *websocket.Conn) {
	f.mu.Lock()
	_, present := f.connections[conn]
	delete(f.connections, conn)
	f.mu.Unlock()

	if present {
		conn.Close()
		if f.collector != nil {
			f.collector.FeedClientDisconnected()
		}
	}
}

// TokenIssued implements the issuance observer consumed by the token handler.
func (f *EventFeed) TokenIssued(cred *domain.Credential) {
	f.broadcast("token_issued", IssuancePayload{
		Channel:   cred.Channel,
		UID:       cred.Subject,
		Role:      cred.Role,
		ExpiresAt: cred.ExpiresAt,
	})
}

// ViewerJoined publishes a presence join event.
func (f *EventFeed) ViewerJoined(channel domain.ChannelID, subject domain.SubjectID) {
	f.broadcast("viewer_joined", PresencePayload{Channel: channel, UID: subject})
}

// ViewerLeft publishes a presence leave event.
func (f *EventFeed) ViewerLeft(channel domain.ChannelID, subject domain.SubjectID) {
	f.broadcast("viewer_left", PresencePayload{Channel: channel, UID: subject})
}

func (f *EventFeed) broadcast(msgType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Errorw("failed to marshal feed payload", "type", msgType, "error", err)
		return
	}

	msg := FeedMessage{
		Type:      msgType,
		Timestamp: time.Now().Unix(),
		Payload:   data,
	}

	f.mu.RLock()
	conns := make(map[*websocket.Conn]*sync.Mutex, len(f.connections))
	for conn, wl := range f.connections {
		conns[conn] = wl
	}
	f.mu.RUnlock()

	for conn, wl := range conns {
		wl.Lock()
		conn.SetWriteDeadline(time.Now().Add(f.writeTimeout))
		err := conn.WriteJSON(msg)
		wl.Unlock()
		if err != nil {
			f.logger.Warnw("dropping slow event feed subscriber", "error", err)
			f.drop(conn)
		}
	}
}

// Close disconnects all subscribers.
func (f *EventFeed) Close() {
	f.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(f.connections))
	for conn := range f.connections {
		conns = append(conns, conn)
	}
	f.connections = make(map[*websocket.Conn]*sync.Mutex)
	f.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
		if f.collector != nil {
			f.collector.FeedClientDisconnected()
		}
	}
}
