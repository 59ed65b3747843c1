/*
Package message defines the direct-message domain type and its validation rules.

A message travels three paths that must agree on its shape: the durable store,
the HTTP send/list API, and the live WebSocket push. The struct here is the
single source of truth for all three.
*/
package message

import (
	"time"

	"quickchat/internal/pkg/errs"
)

// MaxTextBytes is the maximum allowed size of the text content.
const MaxTextBytes = 5000

// Message is a single direct message between two users.
//
// Exactly one of Text and ImageURL is set. Seen starts false and flips to
// true at most once; it never reverts.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks the content rules for an outbound message before it is
// persisted: exactly one of text/image present, text within limits, and a
// receiver that is a real other user.
func (m Message) Validate() *errs.CustomError {
	hasText := m.Text != ""
	hasImage := m.ImageURL != ""

	if hasText == hasImage {
		return errs.NewError(errs.ErrMalformedMessage)
	}

	if len(m.Text) > MaxTextBytes {
		return errs.NewError(errs.ErrMessageTooLong)
	}

	if m.ReceiverID == "" || m.ReceiverID == m.SenderID {
		return errs.NewError(errs.ErrReceiverInvalid)
	}

	return nil
}
