package archive

import (
	"context"
	"database/sql"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"

	apperrors "ChainAgent/internal/errors"
)

const createTurnsTable = `
CREATE TABLE IF NOT EXISTS agent_turns (
    id               VARCHAR(36)  NOT NULL PRIMARY KEY,
    session_id       VARCHAR(36)  NOT NULL,
    wallet_address   VARCHAR(64)  NOT NULL DEFAULT '',
    user_message     TEXT         NOT NULL,
    assistant_message TEXT        NOT NULL,
    tool_calls       MEDIUMTEXT   NOT NULL,
    iterations       INT          NOT NULL,
    status           VARCHAR(16)  NOT NULL,
    created_at       DATETIME(3)  NOT NULL,
    KEY idx_session_created (session_id, created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQLStore persists turns in MySQL.
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore opens the database and ensures the schema exists.
func NewMySQLStore(ctx context.Context, dsn string) (*MySQLStore, error) {
	// created_at scans into time.Time, which the driver only does with
	// parseTime enabled.
	if !strings.Contains(dsn, "parseTime") {
		if strings.Contains(dsn, "?") {
			dsn += "&parseTime=true"
		} else {
			dsn += "?parseTime=true"
		}
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "open archive database")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "ping archive database")
	}
	if _, err := db.ExecContext(ctx, createTurnsTable); err != nil {
		_ = db.Close()
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "create turns table")
	}
	return &MySQLStore{db: db}, nil
}

func (s *MySQLStore) SaveTurn(ctx context.Context, turn *Turn) error {
	const query = `INSERT INTO agent_turns
		(id, session_id, wallet_address, user_message, assistant_message, tool_calls, iterations, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query,
		turn.ID, turn.SessionID, turn.WalletAddress,
		turn.UserMessage, turn.AssistantMessage, turn.ToolCalls,
		turn.Iterations, turn.Status, turn.CreatedAt)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeStorageFailure, err, "insert turn",
			apperrors.WithMetadata("session_id", turn.SessionID))
	}
	return nil
}

const selectTurnColumns = `SELECT id, session_id, wallet_address, user_message, assistant_message, tool_calls, iterations, status, created_at
	FROM agent_turns`

func (s *MySQLStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectTurnColumns+` WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "query turns")
	}
	return collectTurns(rows)
}

func (s *MySQLStore) ListRecent(ctx context.Context, limit int) ([]*Turn, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		selectTurnColumns+` ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "query turns")
	}
	return collectTurns(rows)
}

func collectTurns(rows *sql.Rows) ([]*Turn, error) {
	defer rows.Close()
	var out []*Turn
	for rows.Next() {
		turn := &Turn{}
		if err := rows.Scan(&turn.ID, &turn.SessionID, &turn.WalletAddress,
			&turn.UserMessage, &turn.AssistantMessage, &turn.ToolCalls,
			&turn.Iterations, &turn.Status, &turn.CreatedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "scan turn")
		}
		out = append(out, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeStorageFailure, err, "iterate turns")
	}
	return out, nil
}

func (s *MySQLStore) Close() error { return s.db.Close() }
