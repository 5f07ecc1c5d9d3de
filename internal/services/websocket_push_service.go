package services

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"stablemint-backend/internal/dto"
	"stablemint-backend/internal/metrics"
	"stablemint-backend/internal/orchestrator"
	"stablemint-backend/internal/pricing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin filtering happens in the CORS middleware; the event stream
		// itself carries no credentials.
		return true
	},
}

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 50 * time.Second
	wsSendBuffer = 64
)

// PushMessage is the envelope for every frame pushed to a client.
type PushMessage struct {
	Type      string      `json:"type"`
	Timestamp string      `json:"timestamp"`
	MessageID string      `json:"message_id"`
	Data      interface{} `json:"data"`
}

type wsConnection struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// WebSocketPushService fans the orchestrator's operation events and the
// protocol-state poller's snapshots out to connected clients. It implements
// both listener interfaces; the producers never know it exists.
type WebSocketPushService struct {
	mu          sync.RWMutex
	connections map[string]*wsConnection
	logger      *logrus.Logger
}

// NewWebSocketPushService creates an empty push service.
func NewWebSocketPushService(logger *logrus.Logger) *WebSocketPushService {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &WebSocketPushService{
		connections: make(map[string]*wsConnection),
		logger:      logger,
	}
}

// HandleUpgrade upgrades an HTTP request to a WebSocket connection and starts
// its read/write pumps.
func (s *WebSocketPushService) HandleUpgrade(w http.ResponseWriter, r *http.Request) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &wsConnection{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}

	s.mu.Lock()
	s.connections[c.id] = c
	count := len(s.connections)
	s.mu.Unlock()
	metrics.WebSocketConnections.Set(float64(count))

	s.logger.WithFields(logrus.Fields{
		"connection_id": c.id,
		"remote_addr":   r.RemoteAddr,
		"connections":   count,
	}).Info("websocket client connected")

	go s.writePump(c)
	go s.readPump(c)
	return nil
}

func (s *WebSocketPushService) unregister(c *wsConnection) {
	s.mu.Lock()
	if _, ok := s.connections[c.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.connections, c.id)
	count := len(s.connections)
	s.mu.Unlock()

	close(c.send)
	c.conn.Close()
	metrics.WebSocketConnections.Set(float64(count))
	s.logger.WithField("connection_id", c.id).Info("websocket client disconnected")
}

func (s *WebSocketPushService) writePump(c *wsConnection) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				s.unregister(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.unregister(c)
				return
			}
		}
	}
}

// readPump drains client frames. The stream is push-only, so reads exist to
// observe pongs and closes.
func (s *WebSocketPushService) readPump(c *wsConnection) {
	defer s.unregister(c)
	c.conn.SetReadLimit(1024)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast sends one message to every connected client. Slow clients are
// dropped rather than allowed to stall the stream.
func (s *WebSocketPushService) Broadcast(messageType string, data interface{}) {
	message := PushMessage{
		Type:      messageType,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		MessageID: uuid.New().String(),
		Data:      data,
	}
	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.WithField("error", err.Error()).Warn("failed to marshal push message")
		return
	}

	var stale []*wsConnection
	s.mu.RLock()
	for _, c := range s.connections {
		select {
		case c.send <- payload:
		default:
			stale = append(stale, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range stale {
		s.logger.WithField("connection_id", c.id).Warn("dropping slow websocket client")
		s.unregister(c)
	}
}

// OnOperationEvent implements orchestrator.Listener.
func (s *WebSocketPushService) OnOperationEvent(event orchestrator.Event) {
	s.Broadcast("operation_event", event)
}

// OnSessionConnected implements wallet.SessionListener.
func (s *WebSocketPushService) OnSessionConnected(account common.Address) {
	s.Broadcast("session", sessionMessage{Account: account.Hex(), Connected: true})
}

// OnSessionDisconnected implements wallet.SessionListener.
func (s *WebSocketPushService) OnSessionDisconnected(account common.Address) {
	s.Broadcast("session", sessionMessage{Account: account.Hex(), Connected: false})
}

type sessionMessage struct {
	Account   string `json:"account"`
	Connected bool   `json:"connected"`
}

// OnProtocolState implements StateListener.
func (s *WebSocketPushService) OnProtocolState(state *pricing.ProtocolState, fetchedAt time.Time) {
	s.Broadcast("protocol_state", struct {
		State     dto.ProtocolState `json:"state"`
		FetchedAt string            `json:"fetchedAt"`
	}{
		State:     dto.NewProtocolState(state),
		FetchedAt: fetchedAt.Format(time.RFC3339),
	})
}

// Close disconnects every client.
func (s *WebSocketPushService) Close() {
	s.mu.Lock()
	connections := make([]*wsConnection, 0, len(s.connections))
	for _, c := range s.connections {
		connections = append(connections, c)
	}
	s.mu.Unlock()

	for _, c := range connections {
		s.unregister(c)
	}
}
