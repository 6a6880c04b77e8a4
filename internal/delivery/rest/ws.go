package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/offmarket/offmarket/internal/domain"
	"github.com/offmarket/offmarket/internal/infra/metrics"
	"github.com/offmarket/offmarket/internal/usecase"
	"go.uber.org/zap"
)

const (
	wsWriteTimeout  = 10 * time.Second
	wsReadTimeout   = 60 * time.Second
	wsPingInterval  = 50 * time.Second
	wsSendBuffer    = 16
	wsMaxReadLength = 512
)

type wsClient struct {
	userID uint
	conn   *websocket.Conn
	send   chan []byte
}

// Hub pushes AlertTriggered events to the owner's open websocket
// connections. A client whose buffer is full misses the event.
type Hub struct {
	upgrader websocket.Upgrader
	users    domain.UserRepository
	logger   *zap.Logger

	mu      sync.Mutex
	clients map[uint]map[*wsClient]struct{}
	closed  bool
}

func NewHub(users domain.UserRepository, logger *zap.Logger) *Hub {
	return &Hub{
		users: users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		clients: make(map[uint]map[*wsClient]struct{}),
	}
}

func (h *Hub) lookup(ctx context.Context, uid uint) error {
	if _, err := h.users.GetByID(ctx, uid); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return usecase.ErrUserNotRegistered
		}
		return err
	}
	return nil
}

// Serve upgrades the request and blocks until the client goes away.
func (h *Hub) Serve(c *gin.Context) {
	uid, err := userID(c)
	if err == nil {
		err = h.lookup(c.Request.Context(), uid)
	}
	if err != nil {
		status, kind := statusFor(err)
		message := err.Error()
		if status == http.StatusInternalServerError {
			h.logger.Warn("ws user lookup failed", zap.Uint("user_id", uid), zap.Error(err))
			message = "internal error"
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: message, Kind: kind})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Uint("user_id", uid), zap.Error(err))
		return
	}

	client := &wsClient{userID: uid, conn: conn, send: make(chan []byte, wsSendBuffer)}
	if !h.register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(wsWriteTimeout))
		_ = conn.Close()
		return
	}
	h.logger.Info("ws client connected", zap.Uint("user_id", uid))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writePump(client)
	}()
	h.readPump(client)

	h.unregister(client)
	<-done
	_ = conn.Close()
	h.logger.Info("ws client disconnected", zap.Uint("user_id", uid))
}

func (h *Hub) Publish(ctx context.Context, event domain.AlertTriggered) error {
	payload, err := json.Marshal(event)
	if err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("websocket", "failed").Inc()
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients[event.UserID] {
		select {
		case client.send <- payload:
			metrics.EventsPublishedTotal.WithLabelValues("websocket", "success").Inc()
		default:
			metrics.EventsPublishedTotal.WithLabelValues("websocket", "dropped").Inc()
			h.logger.Warn("ws client buffer full", zap.Uint("user_id", event.UserID), zap.Uint("alert_id", event.AlertID))
		}
	}
	return nil
}

func (h *Hub) ClientCount(userID uint) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[userID])
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for _, set := range h.clients {
		for client := range set {
			_ = client.conn.Close()
		}
	}
}

func (h *Hub) register(client *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set, ok := h.clients[client.userID]
	if !ok {
		set = make(map[*wsClient]struct{})
		h.clients[client.userID] = set
	}
	set[client] = struct{}{}
	metrics.WebsocketClients.Inc()
	return true
}

func (h *Hub) unregister(client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.clients[client.userID]
	if _, ok := set[client]; !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.userID)
	}
	close(client.send)
	metrics.WebsocketClients.Dec()
}

// readPump only drains control frames; clients never send data we act on.
func (h *Hub) readPump(client *wsClient) {
	client.conn.SetReadLimit(wsMaxReadLength)
	_ = client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("ws read failed", zap.Uint("user_id", client.userID), zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(client *wsClient) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case payload, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.logger.Debug("ws write failed", zap.Uint("user_id", client.userID), zap.Error(err))
				_ = client.conn.Close()
				h.drain(client)
				return
			}
		case <-ticker.C:
			_ = client.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = client.conn.Close()
				h.drain(client)
				return
			}
		}
	}
}

// drain consumes the send channel until unregister closes it, so Serve can
// finish once the read side notices the closed connection.
func (h *Hub) drain(client *wsClient) {
	for range client.send {
	}
}
