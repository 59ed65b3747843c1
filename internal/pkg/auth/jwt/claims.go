package jwt

import "github.com/golang-jwt/jwt"

// Payload defines the JWT claims for quickchat. It combines the standard
// claims with the user identity fields the server needs on every request
// and on the realtime handshake.
type Payload struct {
	// StandardClaims embeds Exp, Iat and Iss, required for validity checks.
	jwt.StandardClaims `json:"standard_claims"`

	// ID is the unique identifier of the authenticated user.
	ID string `json:"id"`

	// Username is the stable login name of the user.
	Username string `json:"username"`

	// FullName is the display name carried for convenience in UI contexts.
	FullName string `json:"full_name,omitempty"`
}
