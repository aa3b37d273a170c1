// Package relay pushes meeting events to WebSocket subscribers, one room per meeting.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"votesecret/entity"
	"votesecret/lib/sl"
)

const broadcastBuffer = 1024

var pong = []byte(`{"type":"pong"}`)

type envelope struct {
	meetingID string
	payload   []byte
	last      bool
}

// Hub owns the rooms. Membership changes and fan-out happen on the Run goroutine;
// the lock only guards readers outside of it.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*Client]bool
	broadcast  chan envelope
	register   chan *Client
	unregister chan *Client
	pings      chan *Client
	done       chan struct{}
	log        *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan envelope, broadcastBuffer),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		pings:      make(chan *Client, 64),
		done:       make(chan struct{}),
		log:        log.With(sl.Module("relay")),
	}
}

// Run serves the hub until ctx is done, then disconnects everyone.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case c := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[c.meetingID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[c.meetingID] = room
			}
			room[c] = true
			h.mu.Unlock()
		case c := <-h.unregister:
			h.remove(c)
		case c := <-h.pings:
			h.reply(c, pong)
		case e := <-h.broadcast:
			h.fanOut(e)
		}
	}
}

// Publish queues an event for the meeting's room. It never blocks: when the
// queue is full the event is dropped and clients catch up on their next fetch.
func (h *Hub) Publish(event *entity.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.log.Error("encode event", slog.String("type", event.Type), sl.Err(err))
		return
	}
	e := envelope{
		meetingID: event.MeetingID,
		payload:   payload,
		last:      event.Type == entity.EventMeetingClosed,
	}
	select {
	case h.broadcast <- e:
	default:
		h.log.With(sl.Meeting(event.MeetingID), slog.String("type", event.Type)).Warn("event queue full, event dropped")
	}
}

// Subscribe upgrades the request and joins the connection to the meeting room.
func (h *Hub) Subscribe(w http.ResponseWriter, r *http.Request, meetingID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade: %w", err)
	}
	c := &Client{
		hub:       h,
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		meetingID: meetingID,
		log:       h.log.With(sl.Meeting(meetingID)),
	}
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return fmt.Errorf("relay stopped")
	}
	go c.writePump()
	go c.readPump()
	return nil
}

// Clients returns the number of subscribers of a meeting.
func (h *Hub) Clients(meetingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[meetingID])
}

func (h *Hub) fanOut(e envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[e.meetingID]
	for c := range room {
		select {
		case c.send <- e.payload:
		default:
			// a client that cannot keep up is disconnected
			delete(room, c)
			close(c.send)
			c.log.Warn("slow subscriber dropped")
		}
	}
	if e.last {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, e.meetingID)
		h.log.With(sl.Meeting(e.meetingID), slog.Int("clients", len(room))).Debug("room closed")
		return
	}
	if len(room) == 0 {
		delete(h.rooms, e.meetingID)
	}
}

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) ping(c *Client) {
	select {
	case h.pings <- c:
	case <-h.done:
	}
}

// reply writes to a single client if it is still subscribed; send is only
// ever closed on the Run goroutine, so the check is race-free there.
func (h *Hub) reply(c *Client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.rooms[c.meetingID][c] {
		return
	}
	select {
	case c.send <- payload:
	default:
	}
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[c.meetingID]
	if !ok || !room[c] {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, c.meetingID)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		for c := range room {
			close(c.send)
		}
		delete(h.rooms, id)
	}
}
