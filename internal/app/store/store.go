/*
Package store implements durable persistence for users and messages on
PostgreSQL via pgx.

The realtime subsystem treats this package as an opaque collaborator: a
message is persisted first, and only then offered to the delivery router for
a best-effort live push.
*/
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"quickchat/internal/app/message"
	"quickchat/internal/app/user"
	"quickchat/internal/pkg/randx"
)

// Store wraps the connection pool with the query methods the handlers and
// the delivery path need.
type Store struct {
	pool *pgxpool.Pool
}

// New constructs a Store over an initialized pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// UserRecord is the persisted user row, including the credential hash that
// never leaves this package's callers in API responses.
type UserRecord struct {
	user.User
	PasswordHash string
	CreatedAt    time.Time
}

// CreateUser inserts a new account. Unique violations on username surface
// unchanged so callers can map them (IsUniqueViolation).
func (s *Store) CreateUser(ctx context.Context, username, passwordHash, fullName string) (UserRecord, error) {
	rec := UserRecord{
		User: user.User{
			ID:       randx.UserID(),
			Username: username,
			FullName: fullName,
		},
		PasswordHash: passwordHash,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (id, username, password_hash, full_name)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		rec.ID, rec.Username, rec.PasswordHash, rec.FullName,
	).Scan(&rec.CreatedAt)

	if err != nil {
		return UserRecord{}, err
	}
	return rec, nil
}

// GetUserByUsername fetches an account by login name.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (UserRecord, error) {
	var rec UserRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, full_name, bio, avatar_url, created_at
		 FROM users WHERE username = $1`,
		username,
	).Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rec.FullName, &rec.Bio, &rec.AvatarURL, &rec.CreatedAt)

	if err != nil {
		return UserRecord{}, mapRowError(err)
	}
	return rec, nil
}

// GetUserByID fetches an account by primary key.
func (s *Store) GetUserByID(ctx context.Context, id string) (UserRecord, error) {
	var rec UserRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, username, password_hash, full_name, bio, avatar_url, created_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rec.FullName, &rec.Bio, &rec.AvatarURL, &rec.CreatedAt)

	if err != nil {
		return UserRecord{}, mapRowError(err)
	}
	return rec, nil
}

// UpdateUserProfile updates the mutable profile fields and returns the fresh row.
func (s *Store) UpdateUserProfile(ctx context.Context, id, fullName, bio, avatarURL string) (UserRecord, error) {
	var rec UserRecord
	err := s.pool.QueryRow(ctx,
		`UPDATE users SET full_name = $2, bio = $3, avatar_url = $4
		 WHERE id = $1
		 RETURNING id, username, password_hash, full_name, bio, avatar_url, created_at`,
		id, fullName, bio, avatarURL,
	).Scan(&rec.ID, &rec.Username, &rec.PasswordHash, &rec.FullName, &rec.Bio, &rec.AvatarURL, &rec.CreatedAt)

	if err != nil {
		return UserRecord{}, mapRowError(err)
	}
	return rec, nil
}

// ListOtherUsers returns every account except selfID, for the sidebar.
func (s *Store) ListOtherUsers(ctx context.Context, selfID string) ([]user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, username, full_name, bio, avatar_url
		 FROM users WHERE id <> $1
		 ORDER BY full_name, username`,
		selfID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := []user.User{}
	for rows.Next() {
		var u user.User
		if err := rows.Scan(&u.ID, &u.Username, &u.FullName, &u.Bio, &u.AvatarURL); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CreateMessage persists a new message with seen=false and returns the full row.
func (s *Store) CreateMessage(ctx context.Context, senderID, receiverID, text, imageURL string) (message.Message, error) {
	msg := message.Message{
		ID:         randx.MessageID(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		ImageURL:   imageURL,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, sender_id, receiver_id, text, image_url)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING seen, created_at`,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Text, msg.ImageURL,
	).Scan(&msg.Seen, &msg.CreatedAt)

	if err != nil {
		return message.Message{}, err
	}
	return msg, nil
}

// ListConversation returns every message between a and b, oldest first.
func (s *Store) ListConversation(ctx context.Context, a, b string) ([]message.Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, sender_id, receiver_id, text, image_url, seen, created_at
		 FROM messages
		 WHERE (sender_id = $1 AND receiver_id = $2)
		    OR (sender_id = $2 AND receiver_id = $1)
		 ORDER BY created_at`,
		a, b,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	msgs := []message.Message{}
	for rows.Next() {
		var m message.Message
		if err := rows.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Text, &m.ImageURL, &m.Seen, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkSeen flips a single message to seen. Seen never reverts, so marking an
// already-seen message is a no-op, but an unknown ID is ErrNotFound.
func (s *Store) MarkSeen(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET seen = TRUE WHERE id = $1`,
		id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllSeenFrom marks every message from peerID to selfID as seen. Used on
// conversation open.
func (s *Store) MarkAllSeenFrom(ctx context.Context, peerID, selfID string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE messages SET seen = TRUE
		 WHERE sender_id = $1 AND receiver_id = $2 AND seen = FALSE`,
		peerID, selfID,
	)
	return err
}

// CountUnseenPerSender returns, for each peer with at least one unseen message
// addressed to selfID, the count of those messages.
func (s *Store) CountUnseenPerSender(ctx context.Context, selfID string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT sender_id, COUNT(*)
		 FROM messages
		 WHERE receiver_id = $1 AND seen = FALSE
		 GROUP BY sender_id`,
		selfID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var senderID string
		var n int
		if err := rows.Scan(&senderID, &n); err != nil {
			return nil, err
		}
		counts[senderID] = n
	}
	return counts, rows.Err()
}
