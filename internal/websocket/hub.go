package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Stream names — each venue has one room per stream.
const (
	StreamDisplay     = "display"
	StreamLeaderboard = "leaderboard"
)

const (
	writeWait = 10 * time.Second
	// pongWait must exceed pingPeriod; the periodic ping keeps quiet
	// connections alive through intermediary network hops.
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TV displays and customer phones connect from anywhere
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Event is the broadcast payload envelope
type Event struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Message targets one venue's room on one stream
type Message struct {
	VenueID string
	Stream  string
	Payload []byte
}

// Client represents a single connected WebSocket subscriber
type Client struct {
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	VenueID string
	Stream  string
}

// Hub maintains per-venue subscriber rooms and fans broadcast messages out
// to them. Mutating services publish fire-and-forget: a full broadcast
// buffer drops the message rather than blocking the state change, since
// every subscriber can pull a fresh snapshot at any time.
type Hub struct {
	rooms      map[string]map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	mu         sync.Mutex // lock just in case if doing manual iter
}

// NewHub initializes a new WS Hub instance
func NewHub() *Hub {
	return &Hub{
		broadcast:  make(chan Message, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func roomKey(venueID, stream string) string {
	return venueID + "/" + stream
}

// Run starts the core dispatch loop for WebSocket events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			key := roomKey(client.VenueID, client.Stream)
			if h.rooms[key] == nil {
				h.rooms[key] = make(map[*Client]bool)
			}
			h.rooms[key][client] = true
			h.mu.Unlock()
			log.Printf("WebSocket client joined %s", key)
		case client := <-h.unregister:
			h.mu.Lock()
			key := roomKey(client.VenueID, client.Stream)
			if room, ok := h.rooms[key]; ok {
				if _, ok := room[client]; ok {
					delete(room, client)
					close(client.Send)
					if len(room) == 0 {
						delete(h.rooms, key)
					}
					log.Printf("WebSocket client left %s", key)
				}
			}
			h.mu.Unlock()
		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[roomKey(message.VenueID, message.Stream)] {
				select {
				case client.Send <- message.Payload:
				default:
					// Slow or dead subscriber — prune it without
					// affecting its siblings.
					close(client.Send)
					delete(h.rooms[roomKey(message.VenueID, message.Stream)], client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish sends an event to every subscriber of a venue's stream. Best
// effort: if the hub's buffer is full the message is dropped.
func (h *Hub) Publish(venueID, stream string, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("WebSocket publish marshal error: %v", err)
		return
	}
	select {
	case h.broadcast <- Message{VenueID: venueID, Stream: stream, Payload: payload}:
	default:
		log.Printf("WebSocket broadcast buffer full, dropping %s event for %s", stream, venueID)
	}
}

// writePump handles writing messages from the Hub to the WebSocket
// connection, interleaving the idle heartbeat ping.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Fast track writing queued messages
			n := len(c.Send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		_ = c.Conn.Close()
	}()
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		// Subscribers are read-only; we only read to detect disconnects
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
	}
}

// ServeWs upgrades the connection and subscribes it to a venue stream. The
// snapshot is queued first so a (re)connecting client is consistent before
// any live event arrives.
func ServeWs(hub *Hub, c *gin.Context, venueID, stream string, snapshot []byte) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Println("WebSocket upgrade failed:", err)
		return
	}

	client := &Client{
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		VenueID: venueID,
		Stream:  stream,
	}
	if snapshot != nil {
		client.Send <- snapshot
	}
	client.Hub.register <- client

	// Allow collection of memory referenced by the caller by doing all work in new goroutines
	go client.writePump()
	go client.readPump()
}
