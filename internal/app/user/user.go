/*
Package user contains core data structures related to user identity.

It defines the basic representation of a chat participant (the Profile struct),
used for passing user information both internally and to clients.
*/
package user

// Profile represents the identity a client announces when joining.
// Every field is self-reported; the server performs no validation or
// uniqueness enforcement on any of them. A connection's profile is replaced
// wholesale if the client joins again, and discarded on disconnect.
// Fields use JSON tags matching the wire format of roster and announcement events.
type Profile struct {

	// Name is the display name of the user.
	Name string `json:"name"`

	// IdentityKey is the client-supplied unique identifier for the user,
	// typically an email-like string. Duplicates across connections are allowed.
	IdentityKey string `json:"identityKey"`

	// AvatarRef is an opaque reference to the user's avatar, usually a URL.
	AvatarRef string `json:"avatarRef"`
}
