package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type client struct {
	conn     *websocket.Conn
	channels map[string]bool
	send     chan []byte
}

// Hub routes lines to the websocket clients listening on their channel.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	logger   *bolt.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *bolt.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Send formats the message and delivers it to local clients.
func (h *Hub) Send(_ context.Context, channel, topic string, payload any) error {
	line, err := Format(channel, topic, payload)
	if err != nil {
		return err
	}
	h.Deliver(line)
	return nil
}

// Deliver queues line for every client listening on its channel. Clients
// whose buffer is full miss the message.
func (h *Hub) Deliver(line []byte) {
	channel, _, _, err := ParseLine(line)
	if err != nil {
		h.logger.Warn().Err(err).Msg("dropping malformed line")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.channels[channel] {
			continue
		}
		select {
		case c.send <- line:
		default:
			h.logger.Warn().Str("channel", channel).Msg("client buffer full, message dropped")
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Serve upgrades the request and streams the given channels to the client
// until it disconnects.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, channels []string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{
		conn:     conn,
		channels: make(map[string]bool, len(channels)),
		send:     make(chan []byte, sendBuffer),
	}
	for _, ch := range channels {
		c.channels[ch] = true
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// readPump discards client input; it only watches for disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Debug().Err(err).Msg("websocket closed")
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case line, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, line); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
