package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Event is the frame pushed to websocket subscribers.
type Event struct {
	Type string    `json:"type"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

const writeWait = 5 * time.Second

// Hub fans notifications out to connected websocket clients.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]*hubClient
	log     logrus.FieldLogger
	now     func() time.Time
}

// hubClient serialises writes to one connection; gorilla allows a single concurrent writer.
type hubClient struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

func (c *hubClient) write(frame []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{clients: map[*websocket.Conn]*hubClient{}, log: logging.OrDiscard(log), now: time.Now}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Configured() bool { return true }

// Send broadcasts text to every client in parallel; clients that fail a write are dropped.
// Writes happen outside h.mu.
func (h *Hub) Send(_ context.Context, text string) error {
	frame, err := json.Marshal(Event{Type: "notification", Text: text, At: h.now().UTC()})
	if err != nil {
		return err
	}
	h.mu.Lock()
	targets := make([]*hubClient, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *hubClient) {
			defer wg.Done()
			if err := c.write(frame); err != nil {
				h.drop(c.conn)
			}
		}(c)
	}
	wg.Wait()
	return nil
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	_ = conn.Close()
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and keeps the connection until the client goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).Warn("notify: websocket upgrade failed")
		return
	}
	h.mu.Lock()
	h.clients[conn] = &hubClient{conn: conn}
	h.mu.Unlock()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.drop(conn)
				return
			}
		}
	}()
}

func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.clients {
		_ = conn.Close()
		delete(h.clients, conn)
	}
}
