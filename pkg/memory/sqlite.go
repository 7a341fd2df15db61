package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// timeLayout keeps a fixed-width fractional second so that stored
// timestamps order lexicographically in SQL.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// OpenDatabase opens (creating if necessary) the SQLite database backing
// both memory records and conversations, with WAL enabled for concurrent
// readers.
func OpenDatabase(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	return db, nil
}

// SQLiteStore implements Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewSQLiteStore creates the store and initializes its schema.
func NewSQLiteStore(db *sql.DB, logger zerolog.Logger) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS memories (
			id TEXT PRIMARY KEY,
			owner TEXT NOT NULL,
			conversation_id TEXT,
			original_text TEXT NOT NULL,
			structured_text TEXT NOT NULL,
			tier TEXT NOT NULL CHECK (tier IN ('core_context', 'archive')),
			category TEXT NOT NULL DEFAULT '',
			importance REAL NOT NULL DEFAULT 0.5,
			access_count INTEGER NOT NULL DEFAULT 0,
			last_accessed_at TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_memories_owner ON memories(owner);
		CREATE INDEX IF NOT EXISTS idx_memories_owner_tier ON memories(owner, tier);
	`

	_, err := s.db.Exec(schema)
	return err
}

const memoryColumns = `id, owner, conversation_id, original_text, structured_text,
	tier, category, importance, access_count, last_accessed_at, created_at, updated_at`

// Insert persists a new record. Structured text must be non-empty after
// trimming; importance is clamped to [0, 1] regardless of what the
// classifier produced.
func (s *SQLiteStore) Insert(ctx context.Context, params InsertParams) (*Record, error) {
	structured := strings.TrimSpace(params.StructuredText)
	if structured == "" {
		return nil, errors.New("structured text is empty")
	}
	if params.Owner == "" {
		return nil, errors.New("owner is required")
	}

	now := time.Now().UTC()
	record := &Record{
		ID:             uuid.NewString(),
		Owner:          params.Owner,
		ConversationID: params.ConversationID,
		OriginalText:   params.OriginalText,
		StructuredText: structured,
		Tier:           params.Tier,
		Category:       params.Category,
		Importance:     clamp01(params.Importance),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (`+memoryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.ID,
		record.Owner,
		nullable(record.ConversationID),
		record.OriginalText,
		record.StructuredText,
		string(record.Tier),
		record.Category,
		record.Importance,
		record.AccessCount,
		nil,
		record.CreatedAt.Format(timeLayout),
		record.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert memory: %w", err)
	}

	return record, nil
}

// Get loads one record scoped to its owner. A missing or foreign-owned id
// returns (nil, nil).
func (s *SQLiteStore) Get(ctx context.Context, owner, id string) (*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records[0], nil
}

// Scan returns all of an owner's records, optionally filtered by tier.
func (s *SQLiteStore) Scan(ctx context.Context, owner string, tier *Tier) ([]*Record, error) {
	query := `SELECT ` + memoryColumns + ` FROM memories WHERE owner = ?`
	args := []any{owner}
	if tier != nil {
		query += ` AND tier = ?`
		args = append(args, string(*tier))
	}
	query += ` ORDER BY created_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to scan memories: %w", err)
	}
	defer rows.Close()

	return collectRecords(rows)
}

// List returns a paged window ordered by importance, recency, then id, plus
// the total row count for the filter.
func (s *SQLiteStore) List(ctx context.Context, owner string, tier *Tier, limit, offset int) ([]*Record, int, error) {
	where := `WHERE owner = ?`
	args := []any{owner}
	if tier != nil {
		where += ` AND tier = ?`
		args = append(args, string(*tier))
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count memories: %w", err)
	}

	query := `SELECT ` + memoryColumns + ` FROM memories ` + where +
		` ORDER BY importance DESC, created_at DESC, id ASC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	records, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// Delete removes one record scoped to its owner and reports whether a row
// was removed.
func (s *SQLiteStore) Delete(ctx context.Context, owner, id string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM memories WHERE id = ? AND owner = ?`, id, owner)
	if err != nil {
		return false, fmt.Errorf("failed to delete memory: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// RecordAccess increments access_count and stamps last_accessed_at.
func (s *SQLiteStore) RecordAccess(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE memories
		SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, time.Now().UTC().Format(timeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to record access: %w", err)
	}
	return nil
}

func collectRecords(rows *sql.Rows) ([]*Record, error) {
	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		record         Record
		tier           string
		conversationID sql.NullString
		lastAccessedAt sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := rows.Scan(
		&record.ID,
		&record.Owner,
		&conversationID,
		&record.OriginalText,
		&record.StructuredText,
		&tier,
		&record.Category,
		&record.Importance,
		&record.AccessCount,
		&lastAccessedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan memory row: %w", err)
	}

	record.Tier = Tier(tier)
	record.ConversationID = conversationID.String

	if record.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at timestamp: %w", err)
	}
	if record.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("invalid updated_at timestamp: %w", err)
	}
	if lastAccessedAt.Valid {
		t, err := time.Parse(timeLayout, lastAccessedAt.String)
		if err != nil {
			return nil, fmt.Errorf("invalid last_accessed_at timestamp: %w", err)
		}
		record.LastAccessedAt = &t
	}

	return &record, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
