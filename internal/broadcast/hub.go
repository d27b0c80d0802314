// Package broadcast fans coordinator events out to subscribers grouped by
// room. It is transport-agnostic: the websocket layer is one subscriber
// implementation, tests are another.
package broadcast

import (
	"sync"

	"github.com/google/uuid"
)

// AuctionRoom names the room that carries one auction's event stream.
func AuctionRoom(auctionID uuid.UUID) string {
	return "auction:" + auctionID.String()
}

// Subscriber receives messages published to rooms it has joined. Deliver must
// not block; slow consumers drop messages rather than stall the publisher.
type Subscriber interface {
	Deliver(msg *Message)
}

// Closer is implemented by subscribers that hold a connection to release when
// the hub shuts down.
type Closer interface {
	Close()
}

type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[Subscriber]struct{})}
}

func (h *Hub) Join(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[room]
	if !ok {
		subs = make(map[Subscriber]struct{})
		h.rooms[room] = subs
	}
	subs[sub] = struct{}{}
}

func (h *Hub) Leave(room string, sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[room]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
}

// LeaveAll removes the subscriber from every room, used on disconnect.
func (h *Hub) LeaveAll(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for room, subs := range h.rooms {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish delivers msg to every subscriber of the room. Delivery order per
// publisher matches call order; the coordinator publishes under its
// per-auction lock, which yields the auction's total event order.
func (h *Hub) Publish(room string, msg *Message) {
	h.mu.RLock()
	subs := make([]Subscriber, 0, len(h.rooms[room]))
	for sub := range h.rooms[room] {
		subs = append(subs, sub)
	}
	h.mu.RUnlock()

	for _, sub := range subs {
		sub.Deliver(msg)
	}
}

// Stop drains every room and closes subscribers that own a connection. The
// server's HTTP shutdown does not cover hijacked websocket connections, so
// this is what actually ends the realtime sessions.
func (h *Hub) Stop() {
	h.mu.Lock()
	unique := make(map[Subscriber]struct{})
	for _, subs := range h.rooms {
		for sub := range subs {
			unique[sub] = struct{}{}
		}
	}
	h.rooms = make(map[string]map[Subscriber]struct{})
	h.mu.Unlock()

	for sub := range unique {
		if closer, ok := sub.(Closer); ok {
			closer.Close()
		}
	}
}

// RoomSize reports the subscriber count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}
