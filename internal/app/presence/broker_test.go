package presence_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcorg/internal/app/presence"
)

// fakeConn is an in-memory stand-in for the WebSocket client: a buffered
// queue plus an open flag, mirroring the transport contract the Broker
// depends on.
type fakeConn struct {
	id     string
	open   bool
	events chan []byte
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, open: true, events: make(chan []byte, 32)}
}

func (f *fakeConn) ID() string   { return f.id }
func (f *fakeConn) IsOpen() bool { return f.open }
func (f *fakeConn) Close()       { f.open = false }

func (f *fakeConn) Enqueue(message []byte) bool {
	if !f.open {
		return false
	}
	select {
	case f.events <- message:
		return true
	default:
		return false
	}
}

// received drains and decodes everything queued so far.
func (f *fakeConn) received(t *testing.T) []map[string]any {
	t.Helper()

	var out []map[string]any
	for {
		select {
		case raw := <-f.events:
			var ev map[string]any
			require.NoError(t, json.Unmarshal(raw, &ev))
			out = append(out, ev)
		default:
			return out
		}
	}
}

func join(b *presence.Broker, c presence.Conn, name, key, avatar string) {
	b.HandleJoin(c, presence.JoinEvent{Name: name, IdentityKey: key, AvatarRef: avatar})
}

func connect(b *presence.Broker, id string) *fakeConn {
	c := newFakeConn(id)
	b.Connect(c)
	return c
}

func TestBroker_JoinRosterBeforeAnnouncement(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	bob := connect(b, "bob-conn")

	join(b, ann, "Ann", "ann@x", "a.png")

	annEvents := ann.received(t)
	require.Len(t, annEvents, 1)
	assert.Equal(t, "users_list", annEvents[0]["type"])
	assert.Empty(t, annEvents[0]["users"])

	join(b, bob, "Bob", "bob@x", "b.png")

	// Bob's initial roster contains Ann and never Bob himself.
	bobEvents := bob.received(t)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, "users_list", bobEvents[0]["type"])
	users := bobEvents[0]["users"].([]any)
	require.Len(t, users, 1)
	annEntry := users[0].(map[string]any)
	assert.Equal(t, "Ann", annEntry["name"])
	assert.Equal(t, "ann@x", annEntry["identityKey"])
	assert.Equal(t, "a.png", annEntry["avatarRef"])

	// Ann is told about Bob, once, and does not receive a new roster.
	annEvents = ann.received(t)
	require.Len(t, annEvents, 1)
	assert.Equal(t, "user_join", annEvents[0]["type"])
	assert.Equal(t, "Bob", annEvents[0]["name"])
	assert.Equal(t, "bob@x", annEvents[0]["identityKey"])
	assert.Equal(t, "b.png", annEvents[0]["avatarRef"])

	assert.Equal(t, 2, b.OnlineCount())
}

func TestBroker_ChatDeliveredExactlyOnce(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	bob := connect(b, "bob-conn")
	cat := connect(b, "cat-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	join(b, bob, "Bob", "bob@x", "b.png")
	join(b, cat, "Cat", "cat@x", "c.png")

	ann.received(t)
	bob.received(t)
	cat.received(t)

	b.HandleChat(ann, presence.ChatEvent{From: "ann@x", To: "bob@x", Message: "hi"})

	bobEvents := bob.received(t)
	require.Len(t, bobEvents, 1)
	assert.Equal(t, "chat_message", bobEvents[0]["type"])
	assert.Equal(t, "ann@x", bobEvents[0]["from"])
	assert.Equal(t, "bob@x", bobEvents[0]["to"])
	assert.Equal(t, "hi", bobEvents[0]["message"])

	// Not echoed to the sender, not fanned out to bystanders.
	assert.Empty(t, ann.received(t))
	assert.Empty(t, cat.received(t))
}

func TestBroker_ChatUnknownTargetSilentlyDropped(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	join(b, ann, "Ann", "ann@x", "a.png")
	ann.received(t)

	b.HandleChat(ann, presence.ChatEvent{From: "ann@x", To: "ghost@x", Message: "anyone there?"})

	// No delivery and no error event back to the sender.
	assert.Empty(t, ann.received(t))
}

func TestBroker_ChatDuplicateIdentityGoesToFirstJoiner(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	first := connect(b, "first-conn")
	second := connect(b, "second-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	join(b, first, "Bob", "shared@x", "b1.png")
	join(b, second, "Bobby", "shared@x", "b2.png")

	ann.received(t)
	first.received(t)
	second.received(t)

	b.HandleChat(ann, presence.ChatEvent{From: "ann@x", To: "shared@x", Message: "hi"})

	require.Len(t, first.received(t), 1)
	assert.Empty(t, second.received(t))
}

func TestBroker_DisconnectBroadcastsUserLeft(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	bob := connect(b, "bob-conn")
	cat := connect(b, "cat-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	join(b, bob, "Bob", "bob@x", "b.png")
	join(b, cat, "Cat", "cat@x", "c.png")

	ann.received(t)
	bob.received(t)
	cat.received(t)

	b.Disconnect(bob)

	for _, remaining := range []*fakeConn{ann, cat} {
		events := remaining.received(t)
		require.Len(t, events, 1)
		assert.Equal(t, "user_left", events[0]["type"])
		assert.Equal(t, "Bob", events[0]["name"])
		assert.Equal(t, "bob@x", events[0]["identityKey"])
	}

	assert.Equal(t, 2, b.OnlineCount())

	// Bob is gone from every subsequent roster.
	b.HandleUsers(ann)
	events := ann.received(t)
	require.Len(t, events, 1)
	users := events[0]["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "Cat", users[0].(map[string]any)["name"])

	// A second disconnect for the same connection is a no-op.
	b.Disconnect(bob)
	assert.Empty(t, ann.received(t))
	assert.Empty(t, cat.received(t))
}

func TestBroker_DisconnectBeforeJoinIsSilent(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	lurker := connect(b, "lurker-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	ann.received(t)

	b.Disconnect(lurker)

	assert.Empty(t, ann.received(t))
	assert.Equal(t, 1, b.OnlineCount())
}

func TestBroker_RejoinReplacesProfile(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	bob := connect(b, "bob-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	join(b, bob, "Bob", "bob@x", "b.png")
	ann.received(t)
	bob.received(t)

	// Re-joining on the same connection swaps the identity wholesale.
	join(b, bob, "Robert", "robert@x", "r.png")
	bob.received(t)
	ann.received(t)

	b.HandleUsers(ann)
	events := ann.received(t)
	require.Len(t, events, 1)
	users := events[0]["users"].([]any)
	require.Len(t, users, 1)
	entry := users[0].(map[string]any)
	assert.Equal(t, "Robert", entry["name"])
	assert.Equal(t, "robert@x", entry["identityKey"])

	// The old identity key no longer routes anywhere.
	b.HandleChat(ann, presence.ChatEvent{From: "ann@x", To: "bob@x", Message: "hi"})
	assert.Empty(t, bob.received(t))

	b.HandleChat(ann, presence.ChatEvent{From: "ann@x", To: "robert@x", Message: "hi"})
	assert.Len(t, bob.received(t), 1)
}

// A connection that never joined is not rejected: its chats route normally
// and its roster request returns everyone (it has no entry to exclude).
func TestBroker_UnjoinedSender(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	lurker := connect(b, "lurker-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	ann.received(t)

	b.HandleChat(lurker, presence.ChatEvent{From: "mystery@x", To: "ann@x", Message: "boo"})
	events := ann.received(t)
	require.Len(t, events, 1)
	assert.Equal(t, "chat_message", events[0]["type"])
	assert.Equal(t, "mystery@x", events[0]["from"])

	b.HandleUsers(lurker)
	events = lurker.received(t)
	require.Len(t, events, 1)
	assert.Equal(t, "users_list", events[0]["type"])
	assert.Len(t, events[0]["users"].([]any), 1)
}

// A connection that reports closed mid-broadcast is skipped but stays
// registered; only its own disconnect notification removes it.
func TestBroker_BroadcastSkipsClosedWithoutRemoval(t *testing.T) {
	b := presence.NewBroker()
	ann := connect(b, "ann-conn")
	bob := connect(b, "bob-conn")
	cat := connect(b, "cat-conn")

	join(b, ann, "Ann", "ann@x", "a.png")
	join(b, bob, "Bob", "bob@x", "b.png")
	ann.received(t)
	bob.received(t)

	bob.Close()

	join(b, cat, "Cat", "cat@x", "c.png")
	cat.received(t)

	assert.Len(t, ann.received(t), 1)
	assert.Empty(t, bob.received(t))

	// Bob was skipped, not unregistered: rosters still list him.
	assert.Equal(t, 3, b.OnlineCount())
	b.HandleUsers(ann)
	events := ann.received(t)
	require.Len(t, events, 1)
	assert.Len(t, events[0]["users"].([]any), 2)

	b.Disconnect(bob)
	assert.Equal(t, 2, b.OnlineCount())
}

func TestBroker_OnlineCountTracksJoins(t *testing.T) {
	b := presence.NewBroker()

	conns := make([]*fakeConn, 0, 5)
	for _, id := range []string{"c1", "c2", "c3", "c4", "c5"} {
		c := connect(b, id)
		conns = append(conns, c)
		join(b, c, id, id+"@x", "")
	}
	assert.Equal(t, 5, b.OnlineCount())

	b.Disconnect(conns[1])
	b.Disconnect(conns[3])
	assert.Equal(t, 3, b.OnlineCount())

	b.Shutdown()
	assert.Equal(t, 0, b.OnlineCount())
	for _, c := range conns {
		assert.False(t, c.IsOpen())
	}
}

// The full relay walkthrough: join, roster, directed chat, leave.
func TestBroker_Scenario(t *testing.T) {
	b := presence.NewBroker()
	x := connect(b, "x-conn")
	y := connect(b, "y-conn")

	join(b, x, "Ann", "ann@x", "a.png")
	events := x.received(t)
	require.Len(t, events, 1)
	assert.Equal(t, "users_list", events[0]["type"])
	assert.Empty(t, events[0]["users"])

	join(b, y, "Bob", "bob@x", "b.png")
	events = y.received(t)
	require.Len(t, events, 1)
	users := events[0]["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "Ann", users[0].(map[string]any)["name"])

	events = x.received(t)
	require.Len(t, events, 1)
	assert.Equal(t, "user_join", events[0]["type"])
	assert.Equal(t, "Bob", events[0]["name"])

	b.HandleChat(x, presence.ChatEvent{From: "ann@x", To: "bob@x", Message: "hi"})
	events = y.received(t)
	require.Len(t, events, 1)
	assert.Equal(t, "chat_message", events[0]["type"])
	assert.Equal(t, "hi", events[0]["message"])
	assert.Empty(t, x.received(t))

	b.Disconnect(y)
	events = x.received(t)
	require.Len(t, events, 1)
	assert.Equal(t, "user_left", events[0]["type"])
	assert.Equal(t, "bob@x", events[0]["identityKey"])
	assert.Equal(t, "Bob", events[0]["name"])
}
