package pending

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

// SQLiteStore persists pending actions so they survive process restarts.
// Resolution is a conditional UPDATE, which gives exactly-once semantics
// without application-level locking.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

const pendingSchema = `
CREATE TABLE IF NOT EXISTS pending_actions (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	conversation_id TEXT NOT NULL,
	tool            TEXT NOT NULL,
	description     TEXT NOT NULL,
	parameters      TEXT NOT NULL,
	status          TEXT NOT NULL,
	created_at      INTEGER NOT NULL,
	expires_at      INTEGER NOT NULL,
	resolved_at     INTEGER
);
CREATE INDEX IF NOT EXISTS idx_pending_conversation
	ON pending_actions (conversation_id, status);
`

// OpenSQLite opens (and migrates) a sqlite-backed store at path. Use
// ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("pending: open sqlite: %w", err)
	}
	// sqlite allows one writer; serialize access through a single conn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(pendingSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("pending: migrate: %w", err)
	}
	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, action models.PendingAction) error {
	params, err := json.Marshal(action.Parameters)
	if err != nil {
		return fmt.Errorf("pending: encode parameters: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var open int
	err = tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions
		 WHERE conversation_id = ? AND status = ? AND expires_at > ?`,
		action.ConversationID, models.ActionPending, s.now().UnixMilli(),
	).Scan(&open)
	if err != nil {
		return err
	}
	if open > 0 {
		return ErrActionOpen
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO pending_actions
		 (id, user_id, conversation_id, tool, description, parameters, status, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		action.ID, action.UserID, action.ConversationID, action.Tool,
		action.Description, string(params), action.Status,
		action.CreatedAt.UnixMilli(), action.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (models.PendingAction, error) {
	if err := s.expire(ctx, id); err != nil {
		return models.PendingAction{}, err
	}
	return s.scanOne(ctx, `SELECT * FROM pending_actions WHERE id = ?`, id)
}

func (s *SQLiteStore) Resolve(ctx context.Context, id string, outcome models.ActionStatus) (models.PendingAction, error) {
	if outcome != models.ActionConfirmed && outcome != models.ActionRejected {
		return models.PendingAction{}, errors.New("pending: resolve outcome must be confirmed or rejected")
	}

	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, resolved_at = ?
		 WHERE id = ? AND status = ? AND expires_at > ?`,
		outcome, now.UnixMilli(), id, models.ActionPending, now.UnixMilli(),
	)
	if err != nil {
		return models.PendingAction{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return models.PendingAction{}, err
	}
	if n == 1 {
		return s.scanOne(ctx, `SELECT * FROM pending_actions WHERE id = ?`, id)
	}

	// Lost the race or the action lapsed; classify from current state.
	action, err := s.Get(ctx, id)
	if err != nil {
		return models.PendingAction{}, err
	}
	if action.Status == models.ActionExpired {
		return action, ErrExpired
	}
	return action, ErrAlreadyResolved
}

func (s *SQLiteStore) Open(ctx context.Context, conversationID string) (models.PendingAction, bool, error) {
	action, err := s.scanOne(ctx,
		`SELECT * FROM pending_actions
		 WHERE conversation_id = ? AND status = ? AND expires_at > ?
		 ORDER BY created_at LIMIT 1`,
		conversationID, models.ActionPending, s.now().UnixMilli(),
	)
	if errors.Is(err, ErrNotFound) {
		return models.PendingAction{}, false, nil
	}
	if err != nil {
		return models.PendingAction{}, false, err
	}
	return action, true, nil
}

func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, resolved_at = ?
		 WHERE status = ? AND expires_at <= ?`,
		models.ActionExpired, now.UnixMilli(), models.ActionPending, now.UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// expire lazily transitions a single lapsed action, mirroring the memory
// store's access-time expiry.
func (s *SQLiteStore) expire(ctx context.Context, id string) error {
	now := s.now()
	_, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, resolved_at = ?
		 WHERE id = ? AND status = ? AND expires_at <= ?`,
		models.ActionExpired, now.UnixMilli(), id, models.ActionPending, now.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) scanOne(ctx context.Context, query string, args ...any) (models.PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, conversation_id, tool, description, parameters,
		        status, created_at, expires_at, resolved_at
		 FROM (`+query+`)`, args...)

	var (
		action     models.PendingAction
		params     string
		createdAt  int64
		expiresAt  int64
		resolvedAt sql.NullInt64
	)
	err := row.Scan(&action.ID, &action.UserID, &action.ConversationID,
		&action.Tool, &action.Description, &params, &action.Status,
		&createdAt, &expiresAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PendingAction{}, ErrNotFound
	}
	if err != nil {
		return models.PendingAction{}, err
	}

	if err := json.Unmarshal([]byte(params), &action.Parameters); err != nil {
		return models.PendingAction{}, fmt.Errorf("pending: decode parameters: %w", err)
	}
	action.CreatedAt = time.UnixMilli(createdAt).UTC()
	action.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if resolvedAt.Valid {
		action.ResolvedAt = time.UnixMilli(resolvedAt.Int64).UTC()
	}
	return action, nil
}
