/*
Package presence contains the core logic of the relay: the registry of live
connections, the broker that routes events between them, and the WebSocket
client lifecycle.

This file defines the Registry, the authoritative record of who is online.
It maps connection IDs to user profiles and preserves join order so that
roster listings and identity-key lookups stay deterministic.
*/
package presence

import "webcorg/internal/app/user"

// Registry maps live connection IDs to the profiles announced on them.
// A connection appears here from the moment its join event is processed until
// its disconnect is processed; connections that never joined are absent.
//
// The Registry itself is not safe for concurrent use. The Broker owns the
// single instance and serializes every access under its mutex.
type Registry struct {
	// profiles holds the profile announced by each joined connection.
	profiles map[string]user.Profile

	// order holds connection IDs in join order. It backs ListOthers and the
	// first-match rule of FindConnection, neither of which may depend on map
	// iteration order.
	order []string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		profiles: make(map[string]user.Profile),
	}
}

// Register inserts or overwrites the profile for connID. Re-joining replaces
// the profile wholesale and keeps the connection's original position.
func (r *Registry) Register(connID string, p user.Profile) {
	if _, ok := r.profiles[connID]; !ok {
		r.order = append(r.order, connID)
	}
	r.profiles[connID] = p
}

// Unregister removes connID and returns the profile it held. The second
// return value reports whether an entry existed; removing an unknown or
// already-removed connection is a no-op.
func (r *Registry) Unregister(connID string) (user.Profile, bool) {
	p, ok := r.profiles[connID]
	if !ok {
		return user.Profile{}, false
	}

	delete(r.profiles, connID)

	for i, id := range r.order {
		if id == connID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}

	return p, true
}

// ListOthers returns the profiles of every registered connection except
// excludeID, in join order. excludeID does not need to be registered.
func (r *Registry) ListOthers(excludeID string) []user.Profile {
	others := make([]user.Profile, 0, len(r.profiles))

	for _, id := range r.order {
		if id == excludeID {
			continue
		}
		others = append(others, r.profiles[id])
	}

	return others
}

// FindConnection returns the connection ID of the first registered user whose
// identity key equals key. "First" means earliest joiner still registered,
// which keeps delivery deterministic when several connections announced the
// same key.
func (r *Registry) FindConnection(key string) (string, bool) {
	for _, id := range r.order {
		if r.profiles[id].IdentityKey == key {
			return id, true
		}
	}
	return "", false
}

// AllConnections returns the IDs of every registered connection except
// excludeID, in join order.
func (r *Registry) AllConnections(excludeID string) []string {
	ids := make([]string, 0, len(r.order))

	for _, id := range r.order {
		if id == excludeID {
			continue
		}
		ids = append(ids, id)
	}

	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.profiles)
}
