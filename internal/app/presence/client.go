/*
Package presence contains the core logic of the relay: the registry of live
connections, the broker that routes events between them, and the WebSocket
client lifecycle.

This file defines the Client struct, representing an active WebSocket
connection. It manages the connection's lifecycle, the message communication
loops (ReadPump and WritePump), and hands decoded inbound events to the Broker.
*/
package presence

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"webcorg/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed for the server to wait for a Pong message from the client.
	pongWait = 60 * time.Second

	// frequency at which the server sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a message sent by the client.
	maxMessageSize = 8192

	// sendQueueSize is the per-connection buffer for outbound events.
	sendQueueSize = 256
)

// Client represents an active WebSocket connection. It implements Conn: the
// Broker addresses it by ID and enqueues serialized events; the pumps own all
// actual network I/O.
type Client struct {
	// id is the opaque connection ID issued at accept time.
	id string

	// underlying WebSocket connection object.
	conn *websocket.Conn

	// broker receives this connection's decoded inbound events.
	broker *Broker

	// a buffered channel used to queue events waiting to be sent to the client.
	send chan []byte

	// done is closed exactly once to stop the WritePump.
	done chan struct{}

	// closed flips when the connection is torn down; Enqueue and IsOpen read it.
	closed atomic.Bool

	closeOnce sync.Once

	// structured logger with connection context.
	logger zerolog.Logger
}

// NewClient wraps an upgraded WebSocket connection, issuing it a fresh
// connection ID.
func NewClient(broker *Broker, wsConn *websocket.Conn) *Client {
	id := uuid.New().String()

	return &Client{
		id:     id,
		conn:   wsConn,
		broker: broker,
		send:   make(chan []byte, sendQueueSize),
		done:   make(chan struct{}),
		logger: logx.Logger().With().Str("conn_id", id).Logger(),
	}
}

// ID returns the connection ID issued at accept time.
func (c *Client) ID() string {
	return c.id
}

// IsOpen reports whether the connection has not yet been torn down.
func (c *Client) IsOpen() bool {
	return !c.closed.Load()
}

// Enqueue queues a serialized event for delivery without blocking. Events for
// a closed connection or a full queue are dropped; delivery is best effort.
func (c *Client) Enqueue(message []byte) bool {
	if c.closed.Load() {
		return false
	}

	select {
	case c.send <- message:
		return true
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Client send queue full, dropping event.")
		return false
	}
}

// Close tears the connection down. Idempotent; the WritePump notices and
// sends the close frame, and the ReadPump unblocks with a read error.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

// ReadPump reads frames from the WebSocket connection until it closes.
// It handles heartbeats (Pong), decodes inbound events, and notifies the
// Broker exactly once when the connection goes away.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, messageBytes, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Error reading message (client close/going away)")
			}
			break
		}

		c.processInboundEvent(messageBytes)
	}
}

// cleanupOnDisconnect runs when the ReadPump terminates for any reason. The
// Broker unregisters the connection before the transport is released, so the
// registry never holds an entry for a closed connection.
func (c *Client) cleanupOnDisconnect() {
	c.logger.Info().Msg("Client connection cleanup starting.")

	c.broker.Disconnect(c)
	c.Close()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Client connection close error")
	}
}

// processInboundEvent decodes one raw frame and dispatches it. Malformed
// JSON is dropped with a diagnostic and unknown event types are ignored;
// neither disturbs the connection or the registry.
func (c *Client) processInboundEvent(messageBytes []byte) {
	var envelope Envelope
	if err := json.Unmarshal(messageBytes, &envelope); err != nil {
		c.logger.Warn().Err(err).
			Bytes("message_bytes", messageBytes).
			Msg("Client sent invalid JSON")
		return
	}

	switch envelope.Type {
	case TypeJoin:
		var ev JoinEvent
		if err := json.Unmarshal(messageBytes, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid join event")
			return
		}
		c.broker.HandleJoin(c, ev)

	case TypeChatMessage:
		var ev ChatEvent
		if err := json.Unmarshal(messageBytes, &ev); err != nil {
			c.logger.Warn().Err(err).Msg("Client sent invalid chat_message event")
			return
		}
		c.broker.HandleChat(c, ev)

	case TypeRequestUsers:
		c.broker.HandleUsers(c)

	default:
		c.logger.Debug().Str("event_type", string(envelope.Type)).Msg("Client sent unsupported event type, ignoring")
	}
}

// WritePump writes queued events from the send channel to the WebSocket
// connection and keeps the heartbeat alive.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Client connection close error in WritePump")
		}
	}()

	for {
		select {
		case message := <-c.send:
			if !c.writeQueuedMessage(message) {
				return
			}

		case <-ticker.C:
			if !c.writePingMessage() {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing close message")
			}
			return
		}
	}
}

// writeQueuedMessage writes one queued event to the WebSocket.
// Returns true if the WritePump loop should continue, false if it should terminate.
func (c *Client) writeQueuedMessage(message []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Error().Err(err).Msg("Error writing message")
		return false
	}

	return true
}

// writePingMessage sends a periodic WebSocket Ping message to maintain the connection heartbeat.
// Returns false if the WritePump loop should terminate due to write failure.
func (c *Client) writePingMessage() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline on ping")
		return false
	}

	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Error().Err(err).Msg("Error writing ping")
		return false
	}

	return true
}
