// Package chat persists conversations and generates assistant replies
// seeded with the user's core-context memories.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Conversation is one chat thread owned by a user.
type Conversation struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one turn inside a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           string    `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists conversations and messages in SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates the store and initializes its schema.
func NewStore(db *sql.DB, logger zerolog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize chat schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_owner ON conversations(owner);

		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// CreateConversation starts a new thread for the owner.
func (s *Store) CreateConversation(ctx context.Context, owner, title string) (*Conversation, error) {
	if owner == "" {
		return nil, errors.New("owner is required")
	}

	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate conversation id: %w", err)
	}

	now := time.Now().UTC()
	conv := &Conversation{
		ID:        id,
		Owner:     owner,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, owner, title, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, conv.ID, conv.Owner, conv.Title, now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}

	return conv, nil
}

// GetConversation loads one conversation scoped to its owner. A missing or
// foreign-owned id returns (nil, nil).
func (s *Store) GetConversation(ctx context.Context, owner, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, title, created_at, updated_at
		FROM conversations WHERE id = ? AND owner = ?
	`, id, owner)

	var (
		conv      Conversation
		createdAt string
		updatedAt string
	)
	err := row.Scan(&conv.ID, &conv.Owner, &conv.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	if conv.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at timestamp: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at timestamp: %w", err)
	}

	return &conv, nil
}

// ListConversations returns the owner's threads, most recently updated first.
func (s *Store) ListConversations(ctx context.Context, owner string) ([]*Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, title, created_at, updated_at
		FROM conversations WHERE owner = ?
		ORDER BY updated_at DESC, id ASC
	`, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var conversations []*Conversation
	for rows.Next() {
		var (
			conv      Conversation
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&conv.ID, &conv.Owner, &conv.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}
		if conv.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("invalid created_at timestamp: %w", err)
		}
		if conv.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
			return nil, fmt.Errorf("invalid updated_at timestamp: %w", err)
		}
		conversations = append(conversations, &conv)
	}

	return conversations, rows.Err()
}

// DeleteConversation removes a thread and, via the cascade, its messages.
// It reports whether a row was removed.
func (s *Store) DeleteConversation(ctx context.Context, owner, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM conversations WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// AppendMessage stores one turn and touches the conversation's updated_at.
func (s *Store) AppendMessage(ctx context.Context, conversationID, role, content string) (*Message, error) {
	id, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate message id: %w", err)
	}

	now := time.Now().UTC()
	msg := &Message{
		ID:             id,
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      now,
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, msg.ID, msg.ConversationID, msg.Role, msg.Content, now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE conversations SET updated_at = ? WHERE id = ?`,
		now.Format(timeLayout), conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}

	return msg, nil
}

// ListMessages returns a conversation's turns in order, scoped to the owner.
func (s *Store) ListMessages(ctx context.Context, owner, conversationID string) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.conversation_id, m.role, m.content, m.created_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE m.conversation_id = ? AND c.owner = ?
		ORDER BY m.created_at ASC, m.id ASC
	`, conversationID, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

// RecentMessages returns the last n turns of a conversation in
// chronological order.
func (s *Store) RecentMessages(ctx context.Context, conversationID string, n int) ([]*Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, role, content, created_at FROM (
			SELECT id, conversation_id, role, content, created_at
			FROM messages
			WHERE conversation_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
	`, conversationID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}
	defer rows.Close()

	return collectMessages(rows)
}

func collectMessages(rows *sql.Rows) ([]*Message, error) {
	var messages []*Message
	for rows.Next() {
		var (
			msg       Message
			createdAt string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		t, err := time.Parse(timeLayout, createdAt)
		if err != nil {
			return nil, fmt.Errorf("invalid created_at timestamp: %w", err)
		}
		msg.CreatedAt = t
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}
