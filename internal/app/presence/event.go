/*
Package presence contains the core logic of the relay: the registry of live
connections, the broker that routes events between them, and the WebSocket
client lifecycle.

This file defines the typed events exchanged with clients. Every event is a
flat JSON object carrying a "type" discriminator next to its type-specific
fields; there is no nested payload envelope.
*/
package presence

import (
	"encoding/json"

	"webcorg/internal/app/user"
)

// EventType discriminates the events flowing over a connection.
type EventType string

// Inbound event types (client to broker).
const (
	// TypeJoin announces the connection's identity and enters it into the roster.
	TypeJoin EventType = "join"

	// TypeChatMessage asks the broker to relay a message to one identity key.
	TypeChatMessage EventType = "chat_message"

	// TypeRequestUsers asks for a fresh roster snapshot.
	TypeRequestUsers EventType = "request_users"
)

// Outbound event types (broker to client).
const (
	// TypeUsersList carries the roster of all other online users.
	TypeUsersList EventType = "users_list"

	// TypeUserJoin announces another user joining.
	TypeUserJoin EventType = "user_join"

	// TypeUserLeft announces another user disconnecting.
	TypeUserLeft EventType = "user_left"
)

// Envelope is the minimal decode target used to pick the handler for an
// inbound frame before the full event is decoded.
type Envelope struct {
	Type EventType `json:"type"`
}

// JoinEvent is the inbound join announcement. Its fields become the
// connection's Profile verbatim.
type JoinEvent struct {
	Name        string `json:"name"`
	IdentityKey string `json:"identityKey"`
	AvatarRef   string `json:"avatarRef"`
}

// Profile converts the announcement into the stored user profile.
func (e JoinEvent) Profile() user.Profile {
	return user.Profile{
		Name:        e.Name,
		IdentityKey: e.IdentityKey,
		AvatarRef:   e.AvatarRef,
	}
}

// ChatEvent is a directed message. Inbound and outbound share the same shape;
// the broker relays the three fields untouched. To is an identity key.
type ChatEvent struct {
	Type    EventType `json:"type"`
	From    string    `json:"from"`
	To      string    `json:"to"`
	Message string    `json:"message"`
}

// UsersListEvent is the roster snapshot sent to a single client, at join time
// and on demand. It never contains the receiving client's own profile.
type UsersListEvent struct {
	Type  EventType      `json:"type"`
	Users []user.Profile `json:"users"`
}

// UserJoinEvent announces a newly joined user to every other client.
type UserJoinEvent struct {
	Type        EventType `json:"type"`
	Name        string    `json:"name"`
	IdentityKey string    `json:"identityKey"`
	AvatarRef   string    `json:"avatarRef"`
}

// UserLeftEvent announces a departed user to every remaining client.
type UserLeftEvent struct {
	Type        EventType `json:"type"`
	IdentityKey string    `json:"identityKey"`
	Name        string    `json:"name"`
}

func newUsersListEvent(users []user.Profile) ([]byte, error) {
	return json.Marshal(UsersListEvent{Type: TypeUsersList, Users: users})
}

func newUserJoinEvent(p user.Profile) ([]byte, error) {
	return json.Marshal(UserJoinEvent{
		Type:        TypeUserJoin,
		Name:        p.Name,
		IdentityKey: p.IdentityKey,
		AvatarRef:   p.AvatarRef,
	})
}

func newUserLeftEvent(p user.Profile) ([]byte, error) {
	return json.Marshal(UserLeftEvent{
		Type:        TypeUserLeft,
		IdentityKey: p.IdentityKey,
		Name:        p.Name,
	})
}

func newChatEvent(from, to, message string) ([]byte, error) {
	return json.Marshal(ChatEvent{
		Type:    TypeChatMessage,
		From:    from,
		To:      to,
		Message: message,
	})
}
