/*
Package presence contains the core logic of the relay: the registry of live
connections, the broker that routes events between them, and the WebSocket
client lifecycle.

This file defines the Broker, which interprets inbound events against the
Registry and decides which connections receive which outbound events.
*/
package presence

import (
	"sync"

	"github.com/rs/zerolog"

	"webcorg/internal/pkg/logx"
)

// Conn is the transport-side handle the Broker routes to. The WebSocket
// Client implements it; tests substitute in-memory fakes.
type Conn interface {
	// ID returns the opaque connection ID issued at accept time.
	ID() string

	// Enqueue hands a serialized event to the transport for delivery.
	// It must never block; it reports false if the message was dropped
	// because the connection is closed or its send queue is full.
	Enqueue(message []byte) bool

	// IsOpen reports whether the transport channel is still open.
	IsOpen() bool

	// Close tears down the transport channel.
	Close()
}

// Broker owns the Registry and routes every event to completion.
//
// Concurrency discipline: a single mutex serializes all event handling.
// Each handler runs start to finish under the lock, including the sends it
// triggers, so no operation ever observes the registry mid-update and a
// join's roster snapshot is always delivered before its announcement goes
// out. Sends are non-blocking enqueues onto per-connection buffered queues,
// so holding the lock through them never stalls on network I/O.
type Broker struct {
	// registry is the authoritative connection-to-profile mapping.
	registry *Registry

	// conns maps connection IDs to transport handles for every accepted
	// connection, joined or not.
	conns map[string]Conn

	// mu serializes all registry access and event dispatch.
	mu sync.Mutex

	// structured logger with Broker context.
	logger zerolog.Logger
}

// NewBroker constructs and returns a new Broker instance.
func NewBroker() *Broker {
	return &Broker{
		registry: NewRegistry(),
		conns:    make(map[string]Conn),
		logger:   logx.Logger().With().Str("component", "Broker").Logger(),
	}
}

// Connect makes an accepted connection addressable. The connection stays
// invisible to rosters and broadcasts until it sends a join event.
func (b *Broker) Connect(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.conns[c.ID()] = c

	b.logger.Info().Str("conn_id", c.ID()).Int("total_conns", len(b.conns)).Msg("Connection accepted.")
}

// HandleJoin registers the announced profile (replacing any earlier profile
// for this connection), sends the joiner a roster of everyone else, and then
// announces the join to every other registered connection. The roster is
// snapshotted and delivered before the announcement so the joiner never sees
// itself in its own initial roster.
func (b *Broker) HandleJoin(c Conn, ev JoinEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	profile := ev.Profile()
	b.registry.Register(c.ID(), profile)

	b.logger.Info().
		Str("conn_id", c.ID()).
		Str("identity_key", profile.IdentityKey).
		Str("name", profile.Name).
		Int("online", b.registry.Len()).
		Msg("User joined.")

	b.sendRoster(c)

	announcement, err := newUserJoinEvent(profile)
	if err != nil {
		b.logger.Error().Err(err).Str("conn_id", c.ID()).Msg("Failed to build user_join event.")
		return
	}

	b.broadcast(announcement, c.ID())
}

// HandleChat relays a directed message to the first registered connection
// whose identity key matches the "to" field. An unknown or offline key means
// the message is silently dropped: no error event, no queueing, no retry.
func (b *Broker) HandleChat(c Conn, ev ChatEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	targetID, ok := b.registry.FindConnection(ev.To)
	if !ok {
		b.logger.Debug().
			Str("conn_id", c.ID()).
			Str("to", ev.To).
			Msg("Chat target not online, message dropped.")
		return
	}

	target, ok := b.conns[targetID]
	if !ok || !target.IsOpen() {
		b.logger.Debug().Str("target_conn_id", targetID).Msg("Chat target channel closed, message dropped.")
		return
	}

	message, err := newChatEvent(ev.From, ev.To, ev.Message)
	if err != nil {
		b.logger.Error().Err(err).Str("conn_id", c.ID()).Msg("Failed to build chat_message event.")
		return
	}

	if !target.Enqueue(message) {
		b.logger.Warn().Str("target_conn_id", targetID).Msg("Chat target queue full, message dropped.")
		return
	}

	b.logger.Debug().Str("from", ev.From).Str("to", ev.To).Msg("Chat message relayed.")
}

// HandleUsers sends the requesting connection a fresh roster of every other
// registered user.
func (b *Broker) HandleUsers(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sendRoster(c)
}

// Disconnect removes the connection. If it had joined, its registry entry is
// removed and a user_left announcement goes to every remaining registered
// connection; a connection that disconnects before joining produces no
// broadcast. Safe to call more than once for the same connection.
func (b *Broker) Disconnect(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.conns, c.ID())

	profile, ok := b.registry.Unregister(c.ID())
	if !ok {
		b.logger.Info().Str("conn_id", c.ID()).Msg("Unjoined connection closed.")
		return
	}

	b.logger.Info().
		Str("conn_id", c.ID()).
		Str("identity_key", profile.IdentityKey).
		Str("name", profile.Name).
		Int("online", b.registry.Len()).
		Msg("User disconnected.")

	announcement, err := newUserLeftEvent(profile)
	if err != nil {
		b.logger.Error().Err(err).Str("conn_id", c.ID()).Msg("Failed to build user_left event.")
		return
	}

	b.broadcast(announcement, c.ID())
}

// OnlineCount returns the number of currently joined connections.
func (b *Broker) OnlineCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.registry.Len()
}

// Shutdown closes every live connection and clears all broker state.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.logger.Info().Int("total_conns", len(b.conns)).Msg("Shutting down Broker, closing all connections.")

	for _, c := range b.conns {
		c.Close()
	}

	b.conns = make(map[string]Conn)
	b.registry = NewRegistry()
}

// sendRoster snapshots the roster excluding c and enqueues it to c alone.
// Callers must hold b.mu.
func (b *Broker) sendRoster(c Conn) {
	roster, err := newUsersListEvent(b.registry.ListOthers(c.ID()))
	if err != nil {
		b.logger.Error().Err(err).Str("conn_id", c.ID()).Msg("Failed to build users_list event.")
		return
	}

	if !c.Enqueue(roster) {
		b.logger.Warn().Str("conn_id", c.ID()).Msg("Failed to queue users_list, connection closed or queue full.")
	}
}

// broadcast enqueues message to every registered connection except excludeID.
// Connections whose channel is closed at send time are skipped, not removed;
// removal happens only on their own disconnect notification. Callers must
// hold b.mu.
func (b *Broker) broadcast(message []byte, excludeID string) {
	for _, id := range b.registry.AllConnections(excludeID) {
		c, ok := b.conns[id]
		if !ok || !c.IsOpen() {
			b.logger.Debug().Str("conn_id", id).Msg("Skipping closed connection during broadcast.")
			continue
		}

		if !c.Enqueue(message) {
			b.logger.Warn().Str("conn_id", id).Msg("Broadcast dropped for connection, queue full or closed.")
		}
	}
}
