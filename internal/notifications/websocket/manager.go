package websocket

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"docreview/review-portal/review-portal-backend/internal/notifications"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	sendBuffer = 64
)

// Manager handles WebSocket connections subscribed to document review events
type Manager struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	hub         *Hub
	upgrader    websocket.Upgrader
	logger      *zap.Logger
	closeOnce   sync.Once
}

// Connection represents a client following one document
type Connection struct {
	ID          string
	UserID      string
	DocumentID  string
	Conn        *websocket.Conn
	Send        chan notifications.WebSocketMessage
	ConnectedAt time.Time
}

// Hub serializes registration and fan-out
type Hub struct {
	connections map[*Connection]bool
	broadcast   chan notifications.Event
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	logger      *zap.Logger
}

// NewManager creates a manager and starts its hub.
func NewManager(logger *zap.Logger) *Manager {
	hub := &Hub{
		connections: make(map[*Connection]bool),
		broadcast:   make(chan notifications.Event, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		logger:      logger,
	}

	go hub.run()

	return &Manager{
		connections: make(map[string]*Connection),
		hub:         hub,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades the request and subscribes it to documentID.
func (m *Manager) HandleConnection(w http.ResponseWriter, r *http.Request, documentID, userID string) (*Connection, error) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		UserID:      userID,
		DocumentID:  documentID,
		Conn:        conn,
		Send:        make(chan notifications.WebSocketMessage, sendBuffer),
		ConnectedAt: time.Now(),
	}

	select {
	case m.hub.register <- connection:
	case <-m.hub.stop:
		conn.Close()
		return nil, fmt.Errorf("websocket manager is closed")
	}

	m.mu.Lock()
	m.connections[connection.ID] = connection
	m.mu.Unlock()

	go m.readPump(connection)
	go m.writePump(connection)

	return connection, nil
}

// readPump drains client frames so control messages are processed.
func (m *Manager) readPump(conn *Connection) {
	defer func() {
		select {
		case m.hub.unregister <- conn:
		case <-m.hub.stop:
		}
		m.mu.Lock()
		delete(m.connections, conn.ID)
		m.mu.Unlock()
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg notifications.WebSocketMessage
		if err := conn.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Warn("websocket read failed", zap.String("connection_id", conn.ID), zap.Error(err))
			}
			return
		}
		if msg.Type == notifications.WSMessageTypePing {
			m.reply(conn, notifications.WebSocketMessage{
				Type:      notifications.WSMessageTypeStatus,
				Data:      map[string]string{"status": "connected", "document_id": conn.DocumentID},
				Timestamp: time.Now(),
			})
		}
	}
}

func (m *Manager) reply(conn *Connection, msg notifications.WebSocketMessage) {
	select {
	case conn.Send <- msg:
	default:
		m.logger.Warn("websocket send buffer full", zap.String("connection_id", conn.ID))
	}
}

// writePump writes queued messages and keeps the connection alive.
func (m *Manager) writePump(conn *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-m.hub.stop:
			return
		}
	}
}

// run owns the subscription set. A Send channel is closed only after its read pump has exited.
func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.connections[conn] = true
			h.logger.Debug("websocket subscribed",
				zap.String("connection_id", conn.ID),
				zap.String("document_id", conn.DocumentID))

		case conn := <-h.unregister:
			if _, ok := h.connections[conn]; ok {
				delete(h.connections, conn)
				close(conn.Send)
			}

		case ev := <-h.broadcast:
			msg := notifications.WebSocketMessage{Type: notifications.WSMessageTypeEvent, Event: &ev, Timestamp: ev.Timestamp}
			for conn := range h.connections {
				if conn.DocumentID != ev.DocumentID {
					continue
				}
				select {
				case conn.Send <- msg:
				default:
					h.logger.Warn("subscriber too slow, dropping event",
						zap.String("connection_id", conn.ID),
						zap.String("type", ev.Type))
				}
			}

		case <-h.stop:
			clear(h.connections)
			return
		}
	}
}

// Publish queues ev for every subscriber of its document. Events are dropped when the hub is saturated.
func (m *Manager) Publish(ev notifications.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case m.hub.broadcast <- ev:
	default:
		m.logger.Warn("event channel full, dropping event",
			zap.String("document_id", ev.DocumentID),
			zap.String("type", ev.Type))
	}
}

// ConnectionCount returns the number of subscribers of a document.
func (m *Manager) ConnectionCount(documentID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conn := range m.connections {
		if conn.DocumentID == documentID {
			count++
		}
	}
	return count
}

// Close stops the hub and closes every connection. Later calls are no-ops.
func (m *Manager) Close() {
	m.closeOnce.Do(m.close)
}

func (m *Manager) close() {
	close(m.hub.stop)

	m.mu.Lock()
	for _, conn := range m.connections {
		conn.Conn.Close()
	}
	m.connections = make(map[string]*Connection)
	m.mu.Unlock()
}

var _ notifications.Publisher = (*Manager)(nil)
