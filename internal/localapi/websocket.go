package localapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nantokaworks/gacha-vault/internal/shared/logger"
	"go.uber.org/zap"
)

// wsMessage はWebSocketメッセージの構造を定義
type wsMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// wsClient はWebSocket接続クライアントを表す
type wsClient struct {
	conn        *websocket.Conn
	send        chan []byte
	clientID    string
	connectedAt time.Time
}

// wsHub はすべてのWebSocket接続を管理
type wsHub struct {
	clients    map[*wsClient]bool
	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan wsMessage
	mu         sync.RWMutex
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// ローカルUIのみが接続する前提で全オリジンを許可
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

func newWSHub() *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan wsMessage, 256),
	}
}

func (h *wsHub) start() {
	go h.run()
}

func (h *wsHub) run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

			logger.Debug("WebSocket client connected",
				zap.String("clientId", client.clientID),
				zap.Int("total_clients", len(h.clients)))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message)
			if err != nil {
				logger.Error("Failed to marshal WebSocket message", zap.Error(err))
				continue
			}

			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// バッファがフルのクライアントは切断
					go func(c *wsClient) {
						h.unregister <- c
						c.conn.Close()
					}(client)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.mu.RLock()
			for client := range h.clients {
				if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					go func(c *wsClient) {
						h.unregister <- c
						c.conn.Close()
					}(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// broadcastJSON すべてのクライアントにイベントを送信
func (h *wsHub) broadcastJSON(msgType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		logger.Error("Failed to marshal WebSocket payload", zap.Error(err))
		return
	}

	select {
	case h.broadcast <- wsMessage{Type: msgType, Data: data}:
	default:
		logger.Warn("WebSocket broadcast channel full, message dropped")
	}
}

// handleWS WebSocket接続を処理
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientID := r.URL.Query().Get("clientId")
	if clientID == "" {
		clientID, _ = gonanoid.New(8)
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("Failed to upgrade to WebSocket", zap.Error(err))
		return
	}

	client := &wsClient{
		conn:        conn,
		send:        make(chan []byte, 256),
		clientID:    clientID,
		connectedAt: time.Now(),
	}

	s.hub.register <- client

	go client.writePump()
	go client.readPump(s.hub)
}

func (c *wsClient) readPump(hub *wsHub) {
	defer func() {
		hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("WebSocket read error", zap.Error(err))
			}
			break
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			c.conn.WriteMessage(websocket.TextMessage, message)

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
