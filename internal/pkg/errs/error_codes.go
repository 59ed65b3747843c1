/*
Package errs provides custom error types and application-level error code constants.

These codes identify specific business or system errors both internally and in
responses to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON is malformed.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates trailing content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRequestEntityTooLarge indicates that the request body exceeded the server limit.
	ErrRequestEntityTooLarge = 1005

	// ErrRateLimitExceeded indicates that the request rate exceeded the configured limit.
	ErrRateLimitExceeded = 1006
)

// 2xxx: Message and Delivery Errors
const (
	// ErrMalformedMessage indicates a message with neither text nor image,
	// or with both. Rejected before persistence.
	ErrMalformedMessage = 2001

	// ErrMessageTooLong indicates that the message text exceeded the maximum length.
	ErrMessageTooLong = 2002

	// ErrMessageNotFound indicates that the referenced message does not exist.
	ErrMessageNotFound = 2003

	// ErrPersistenceFailed indicates that the durable write of a message failed.
	// Surfaced synchronously to the sender; no live push is attempted.
	ErrPersistenceFailed = 2004

	// ErrReceiverInvalid indicates an unknown receiver or a self-addressed message.
	ErrReceiverInvalid = 2005
)

// 3xxx: User, Session, and Security Errors
const (
	// ErrUnauthorized indicates a request without a valid authenticated identity.
	ErrUnauthorized = 3001

	// ErrAuthRequired indicates a realtime connection attempt with no identity.
	// The connection is rejected before the upgrade.
	ErrAuthRequired = 3002

	// ErrInvalidCredentials indicates an incorrect username or password.
	ErrInvalidCredentials = 3003

	// ErrInvalidUsername indicates a username failing format validation.
	ErrInvalidUsername = 3004

	// ErrInvalidPassword indicates a password failing length validation.
	ErrInvalidPassword = 3005

	// ErrUserAlreadyExists indicates a signup with a taken username.
	ErrUserAlreadyExists = 3006

	// ErrUserNotFound indicates that the referenced account does not exist.
	ErrUserNotFound = 3007

	// ErrSessionKicked indicates that the connection was replaced by a newer
	// session for the same identity.
	ErrSessionKicked = 3008
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified server internal error.
	ErrUnknown = 5000

	// ErrFileStorageFailed indicates a failure talking to the object store.
	ErrFileStorageFailed = 5001
)
