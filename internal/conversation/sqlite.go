package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/grandcafe/concierge/pkg/models"
)

// SQLiteStore persists conversations and messages across restarts.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const conversationSchema = `
CREATE TABLE IF NOT EXISTS conversations (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	title           TEXT NOT NULL DEFAULT '',
	pinned          INTEGER NOT NULL DEFAULT 0,
	message_count   INTEGER NOT NULL DEFAULT 0,
	total_tokens    INTEGER NOT NULL DEFAULT 0,
	estimated_cost  REAL NOT NULL DEFAULT 0,
	last_message_at INTEGER,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conversations_user
	ON conversations (user_id, pinned, last_message_at);

CREATE TABLE IF NOT EXISTS messages (
	id                TEXT PRIMARY KEY,
	conversation_id   TEXT NOT NULL,
	role              TEXT NOT NULL,
	content           TEXT NOT NULL,
	tools_used        TEXT,
	model_used        TEXT NOT NULL DEFAULT '',
	pending_action_id TEXT NOT NULL DEFAULT '',
	token_usage       TEXT,
	created_at        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_messages_conversation
	ON messages (conversation_id, created_at);
`

// OpenSQLite opens (and migrates) a sqlite-backed store at path. Use
// ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("conversation: open sqlite: %w", err)
	}
	// sqlite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(conversationSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("conversation: migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ensure(ctx context.Context, id, userID string) (models.Conversation, error) {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		id, userID, now, now,
	)
	if err != nil {
		return models.Conversation{}, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.Conversation, error) {
	return s.scanConversation(ctx, `SELECT * FROM conversations WHERE id = ?`, id)
}

func (s *SQLiteStore) List(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, title, pinned, message_count, total_tokens,
		        estimated_cost, last_message_at, created_at, updated_at
		 FROM conversations WHERE user_id = ?
		 ORDER BY pinned DESC, last_message_at DESC, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Conversation
	for rows.Next() {
		conv, err := scanConversationRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) SetPinned(ctx context.Context, id string, pinned bool) error {
	return s.updateField(ctx, id, `pinned = ?`, pinned)
}

func (s *SQLiteStore) SetTitle(ctx context.Context, id, title string) error {
	return s.updateField(ctx, id, `title = ?`, title)
}

func (s *SQLiteStore) updateField(ctx context.Context, id, assignment string, value any) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE conversations SET `+assignment+`, updated_at = ? WHERE id = ?`,
		value, s.now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) History(ctx context.Context, conversationID string, limit int) ([]models.ChatMessage, error) {
	const columns = `id, conversation_id, role, content, tools_used,
	                 model_used, pending_action_id, token_usage, created_at`
	query := `SELECT ` + columns + ` FROM messages
	          WHERE conversation_id = ? ORDER BY created_at, id`
	args := []any{conversationID}
	if limit > 0 {
		// Newest limit rows, re-ordered chronologically.
		query = `SELECT ` + columns + ` FROM (
		           SELECT ` + columns + ` FROM messages
		           WHERE conversation_id = ?
		           ORDER BY created_at DESC, id DESC LIMIT ?
		         ) ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ChatMessage
	for rows.Next() {
		var (
			msg        models.ChatMessage
			toolsUsed  sql.NullString
			tokenUsage sql.NullString
			createdAt  int64
		)
		err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content,
			&toolsUsed, &msg.ModelUsed, &msg.PendingAction, &tokenUsage, &createdAt)
		if err != nil {
			return nil, err
		}
		if toolsUsed.Valid && toolsUsed.String != "" {
			if err := json.Unmarshal([]byte(toolsUsed.String), &msg.ToolsUsed); err != nil {
				return nil, fmt.Errorf("conversation: decode tools_used: %w", err)
			}
		}
		if tokenUsage.Valid && tokenUsage.String != "" {
			msg.Usage = &models.Usage{}
			if err := json.Unmarshal([]byte(tokenUsage.String), msg.Usage); err != nil {
				return nil, fmt.Errorf("conversation: decode token_usage: %w", err)
			}
		}
		msg.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Append(ctx context.Context, msg models.ChatMessage) error {
	var toolsUsed, tokenUsage []byte
	var err error
	if len(msg.ToolsUsed) > 0 {
		if toolsUsed, err = json.Marshal(msg.ToolsUsed); err != nil {
			return fmt.Errorf("conversation: encode tools_used: %w", err)
		}
	}
	if msg.Usage != nil {
		if tokenUsage, err = json.Marshal(msg.Usage); err != nil {
			return fmt.Errorf("conversation: encode token_usage: %w", err)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := s.now().UnixMilli()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, created_at, updated_at)
		 VALUES (?, '', ?, ?)
		 ON CONFLICT (id) DO NOTHING`,
		msg.ConversationID, now, now,
	)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO messages
		 (id, conversation_id, role, content, tools_used, model_used, pending_action_id, token_usage, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, msg.Role, msg.Content,
		nullable(toolsUsed), msg.ModelUsed, msg.PendingAction,
		nullable(tokenUsage), msg.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return err
	}

	var tokens int64
	if msg.Usage != nil {
		tokens = msg.Usage.Total()
	}
	title := ""
	if msg.Role == "user" {
		title = deriveTitle(msg.Content)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE conversations SET
		   message_count   = message_count + 1,
		   total_tokens    = total_tokens + ?,
		   estimated_cost  = estimated_cost + ?,
		   last_message_at = ?,
		   updated_at      = ?,
		   title           = CASE WHEN title = '' AND ? != '' THEN ? ELSE title END
		 WHERE id = ?`,
		tokens, messageCost(msg), msg.CreatedAt.UnixMilli(), now,
		title, title, msg.ConversationID,
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func nullable(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func (s *SQLiteStore) scanConversation(ctx context.Context, query string, args ...any) (models.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, title, pinned, message_count, total_tokens,
		        estimated_cost, last_message_at, created_at, updated_at
		 FROM (`+query+`)`, args...)
	return scanConversationRow(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversationRow(row rowScanner) (models.Conversation, error) {
	var (
		conv          models.Conversation
		pinned        int
		lastMessageAt sql.NullInt64
		createdAt     int64
		updatedAt     int64
	)
	err := row.Scan(&conv.ID, &conv.UserID, &conv.Title, &pinned,
		&conv.MessageCount, &conv.TotalTokens, &conv.EstimatedCost,
		&lastMessageAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Conversation{}, ErrNotFound
	}
	if err != nil {
		return models.Conversation{}, err
	}

	conv.Pinned = pinned != 0
	if lastMessageAt.Valid {
		conv.LastMessageAt = time.UnixMilli(lastMessageAt.Int64).UTC()
	}
	conv.CreatedAt = time.UnixMilli(createdAt).UTC()
	conv.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return conv, nil
}
