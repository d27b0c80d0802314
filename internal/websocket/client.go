// Package websocket carries the realtime channel: one Client per connection,
// subscribed to auction rooms on the broadcast hub. Bidder identity is bound
// to the connection's authenticated session at upgrade time.
package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/coordinator"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

type Client struct {
	conn   *websocket.Conn
	send   chan []byte
	hub    *broadcast.Hub
	coord  *coordinator.Coordinator
	userID uuid.UUID
}

func NewClient(conn *websocket.Conn, hub *broadcast.Hub, coord *coordinator.Coordinator, userID uuid.UUID) *Client {
	return &Client{
		conn:   conn,
		send:   make(chan []byte, 256),
		hub:    hub,
		coord:  coord,
		userID: userID,
	}
}

// Deliver implements broadcast.Subscriber. It never blocks: a subscriber
// whose buffer is full misses the message and catches up on the next
// auction_state.
func (c *Client) Deliver(msg *broadcast.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

// Close implements broadcast.Closer. Closing the connection unblocks
// ReadPump, which tears the client down through its usual exit path.
func (c *Client) Close() {
	c.conn.Close()
}

func (c *Client) trySend(data []byte) {
	defer func() {
		recover() // send channel closed while disconnecting
	}()
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.LeaveAll(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithError(err).Debug("websocket read error")
			}
			break
		}

		var msg broadcast.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError("INVALID_MESSAGE", "Invalid message format")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) handleMessage(msg *broadcast.Message) {
	switch msg.Type {
	case broadcast.MessageTypeJoinAuction:
		var payload JoinAuctionPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("INVALID_PAYLOAD", "Invalid join auction payload")
			return
		}
		c.handleJoin(payload.AuctionID)

	case broadcast.MessageTypeLeaveAuction:
		var payload LeaveAuctionPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("INVALID_PAYLOAD", "Invalid leave auction payload")
			return
		}
		if auctionID, err := uuid.Parse(payload.AuctionID); err == nil {
			c.hub.Leave(broadcast.AuctionRoom(auctionID), c)
		}

	case broadcast.MessageTypePlaceBid:
		var payload PlaceBidPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			c.sendError("INVALID_PAYLOAD", "Invalid place bid payload")
			return
		}
		c.handlePlaceBid(payload)

	default:
		c.sendError("UNKNOWN_MESSAGE", "Unknown message type")
	}
}

func (c *Client) handleJoin(rawID string) {
	auctionID, err := uuid.Parse(rawID)
	if err != nil {
		c.sendError("INVALID_AUCTION_ID", "Invalid auction id")
		return
	}

	view, err := c.coord.GetAuction(context.Background(), auctionID)
	if err != nil {
		c.sendError("AUCTION_NOT_FOUND", "Auction does not exist")
		return
	}

	c.hub.Join(broadcast.AuctionRoom(auctionID), c)

	// Sync the joiner immediately so it does not wait for the next
	// mutation to learn the current state.
	if msg, err := broadcast.NewMessage(broadcast.MessageTypeAuctionState, view); err == nil {
		c.Deliver(msg)
	}
}

func (c *Client) handlePlaceBid(payload PlaceBidPayload) {
	auctionID, err := uuid.Parse(payload.AuctionID)
	if err != nil {
		c.sendError("INVALID_AUCTION_ID", "Invalid auction id")
		return
	}

	outcome, err := c.coord.PlaceBid(context.Background(), auctionID, c.userID, payload.Amount, payload.IdempotencyKey)
	if err != nil {
		c.sendError("BID_FAILED", err.Error())
		return
	}

	if msg, err := broadcast.NewMessage(broadcast.MessageTypeBidResult, outcome); err == nil {
		c.Deliver(msg)
	}
}

func (c *Client) sendError(code, message string) {
	msg, err := broadcast.NewMessage(broadcast.MessageTypeError, broadcast.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if err != nil {
		return
	}
	c.Deliver(msg)
}
