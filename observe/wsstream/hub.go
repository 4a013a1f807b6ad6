// Package wsstream broadcasts observe events to websocket clients, giving
// external dashboards a live view of a running simulation.
package wsstream

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/chronosim/chronosim/observe"
)

type Hub struct {
	register   chan *client
	unregister chan *client
	clients    map[*client]bool
	broadcast  chan []byte
	done       chan struct{}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	h := &Hub{
		register:   make(chan *client),
		unregister: make(chan *client),
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case <-h.done:
			for c := range h.clients {
				delete(h.clients, c)
				close(c.send)
			}
			return
		case c := <-h.register:
			h.clients[c] = true
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; drop it rather than stall the hub.
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

func (h *Hub) Close() { close(h.done) }

// Sink returns an observe.Sink that JSON-encodes every event to all
// connected clients.
func (h *Hub) Sink() observe.Sink {
	return observe.SinkFunc(func(_ context.Context, event observe.Event) error {
		b, err := json.Marshal(event)
		if err != nil {
			return err
		}
		select {
		case h.broadcast <- b:
		default:
			// Hub backlog full; shed the event.
		}
		return nil
	})
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// ServeWS upgrades an HTTP request and subscribes the connection to the
// event stream.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsstream: upgrade: %v", err)
		return
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, 256)}
	h.register <- c
	go c.writePump()
}

func (c *client) writePump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
