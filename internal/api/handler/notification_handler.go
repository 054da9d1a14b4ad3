package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/zapcampanha/console/internal/notify"
	"github.com/zapcampanha/console/internal/pkg/response"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// O console só atende a própria UI local.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// NotificationHandler expõe a fila de notificações visíveis e um stream
// websocket que recebe cada notificação no momento da publicação. O próprio
// handler é o Sink registrado no Center.
type NotificationHandler struct {
	center *notify.Center
	log    *zap.Logger

	mu      sync.Mutex
	clients map[*websocket.Conn]chan notify.Notification
}

func NewNotificationHandler(center *notify.Center, log *zap.Logger) *NotificationHandler {
	h := &NotificationHandler{
		center:  center,
		log:     log,
		clients: make(map[*websocket.Conn]chan notify.Notification),
	}
	center.AddSink(h)
	return h
}

func (h *NotificationHandler) Register(r *gin.RouterGroup) {
	r.GET("/notifications", h.list)
	r.GET("/notifications/stream", h.stream)
	r.DELETE("/notifications/:id", h.dismiss)
}

func (h *NotificationHandler) list(c *gin.Context) {
	response.Success(c, http.StatusOK, h.center.Visible())
}

func (h *NotificationHandler) dismiss(c *gin.Context) {
	h.center.Dismiss(c.Param("id"))
	response.Success(c, http.StatusOK, gin.H{"dismissed": true})
}

// Notify implementa notify.Sink: replica a notificação para cada stream
// aberto, descartando para clientes que não drenam.
func (h *NotificationHandler) Notify(n notify.Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.clients {
		select {
		case ch <- n:
		default:
		}
	}
}

func (h *NotificationHandler) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("falha ao abrir stream de notificações", zap.Error(err))
		return
	}

	ch := make(chan notify.Notification, 16)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
		conn.Close()
	}()

	// Descarta tudo que o cliente mandar; o stream é só de saída.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case n := <-ch:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(n); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
