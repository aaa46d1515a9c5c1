package presence_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"webcorg/internal/app/presence"
	"webcorg/internal/app/user"
)

func profile(name, key string) user.Profile {
	return user.Profile{Name: name, IdentityKey: key, AvatarRef: name + ".png"}
}

func TestRegistry_RegisterAndLen(t *testing.T) {
	r := presence.NewRegistry()
	assert.Equal(t, 0, r.Len())

	r.Register("c1", profile("Ann", "ann@x"))
	r.Register("c2", profile("Bob", "bob@x"))
	assert.Equal(t, 2, r.Len())

	// Registering the same connection again replaces, not duplicates.
	r.Register("c1", profile("Anna", "anna@x"))
	assert.Equal(t, 2, r.Len())

	others := r.ListOthers("c2")
	require.Len(t, others, 1)
	assert.Equal(t, "Anna", others[0].Name)
}

func TestRegistry_Unregister_Idempotent(t *testing.T) {
	r := presence.NewRegistry()
	r.Register("c1", profile("Ann", "ann@x"))

	removed, ok := r.Unregister("c1")
	require.True(t, ok)
	assert.Equal(t, "Ann", removed.Name)
	assert.Equal(t, 0, r.Len())

	// Second removal is a no-op reporting "not found".
	_, ok = r.Unregister("c1")
	assert.False(t, ok)

	// Unregistering a connection that never joined is also a no-op.
	_, ok = r.Unregister("ghost")
	assert.False(t, ok)
}

func TestRegistry_ListOthers_JoinOrder(t *testing.T) {
	r := presence.NewRegistry()
	r.Register("c1", profile("Ann", "ann@x"))
	r.Register("c2", profile("Bob", "bob@x"))
	r.Register("c3", profile("Cat", "cat@x"))

	others := r.ListOthers("c2")
	require.Len(t, others, 2)
	assert.Equal(t, "Ann", others[0].Name)
	assert.Equal(t, "Cat", others[1].Name)

	// The excluded connection does not need to be registered.
	all := r.ListOthers("unknown")
	require.Len(t, all, 3)
	assert.Equal(t, []string{"Ann", "Bob", "Cat"}, []string{all[0].Name, all[1].Name, all[2].Name})
}

// Duplicate identity keys are allowed by design; lookups must resolve to the
// earliest joiner still registered so delivery stays deterministic.
func TestRegistry_FindConnection_DuplicateKeys(t *testing.T) {
	r := presence.NewRegistry()
	r.Register("c1", profile("Ann", "shared@x"))
	r.Register("c2", profile("Imposter", "shared@x"))

	id, ok := r.FindConnection("shared@x")
	require.True(t, ok)
	assert.Equal(t, "c1", id)

	// When the first joiner leaves, the next one becomes the match.
	r.Unregister("c1")
	id, ok = r.FindConnection("shared@x")
	require.True(t, ok)
	assert.Equal(t, "c2", id)

	_, ok = r.FindConnection("nobody@x")
	assert.False(t, ok)
}

func TestRegistry_AllConnections(t *testing.T) {
	r := presence.NewRegistry()
	r.Register("c1", profile("Ann", "ann@x"))
	r.Register("c2", profile("Bob", "bob@x"))
	r.Register("c3", profile("Cat", "cat@x"))

	assert.Equal(t, []string{"c1", "c3"}, r.AllConnections("c2"))
	assert.Equal(t, []string{"c1", "c2", "c3"}, r.AllConnections("unknown"))
}
