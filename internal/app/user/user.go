/*
Package user contains the core data structures for user identity and profile.
*/
package user

// User represents an account visible to other chat participants.
// Fields use JSON tags for serialization in API and WebSocket payloads.
type User struct {
	// ID is the unique identifier for the user.
	ID string `json:"id"`

	// Username is the stable login name, unique across the system.
	Username string `json:"username"`

	// FullName is the display name shown in conversation lists.
	FullName string `json:"fullName"`

	// Bio is an optional short self-description.
	Bio string `json:"bio,omitempty"`

	// AvatarURL is the URL of the user's profile picture, if any.
	AvatarURL string `json:"avatarUrl,omitempty"`
}
