package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/birddigital/hotline-ivr/pkg/ivr"
	"github.com/birddigital/hotline-ivr/pkg/messaging"
)

// ============================================
// POSTGRES STORE
// Call sessions, transcription claims and the communication log
// ============================================

// Postgres persists hotline state in PostgreSQL
type Postgres struct {
	db *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and verifies the connection
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	db, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an existing pool
func NewPostgres(db *pgxpool.Pool) *Postgres {
	return &Postgres{db: db}
}

// Close releases the connection pool
func (p *Postgres) Close() {
	p.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS call_sessions (
	call_sid      TEXT PRIMARY KEY,
	caller_number TEXT NOT NULL DEFAULT '',
	language      TEXT NOT NULL,
	menu_state    TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS transcription_claims (
	claim_key  TEXT PRIMARY KEY,
	claimed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS communication_log (
	id            UUID PRIMARY KEY,
	provider      TEXT NOT NULL,
	type          TEXT NOT NULL,
	direction     TEXT NOT NULL,
	from_num      TEXT NOT NULL DEFAULT '',
	to_num        TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	recording_url TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS communication_log_created_at_idx ON communication_log (created_at DESC);
`

// Migrate creates the tables when missing
func (p *Postgres) Migrate(ctx context.Context) error {
	if _, err := p.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// ============================================
// CALL SESSIONS
// ============================================

// LoadSession retrieves a call session by call SID
func (p *Postgres) LoadSession(ctx context.Context, callID string) (*ivr.Session, error) {
	query := `
		SELECT call_sid, caller_number, language, menu_state, created_at, updated_at
		FROM call_sessions
		WHERE call_sid = $1
	`

	var s ivr.Session
	err := p.db.QueryRow(ctx, query, callID).Scan(
		&s.CallID, &s.Caller, &s.Language, &s.State, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ivr.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query session: %w", err)
	}
	if !s.State.Valid() {
		return nil, fmt.Errorf("session %s has unknown state %q", callID, s.State)
	}
	return &s, nil
}

// SaveSession inserts or updates a call session
func (p *Postgres) SaveSession(ctx context.Context, s *ivr.Session) error {
	query := `
		INSERT INTO call_sessions (
			call_sid, caller_number, language, menu_state, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (call_sid) DO UPDATE SET
			caller_number = EXCLUDED.caller_number,
			language = EXCLUDED.language,
			menu_state = EXCLUDED.menu_state,
			updated_at = EXCLUDED.updated_at
	`

	_, err := p.db.Exec(ctx, query,
		s.CallID, s.Caller, string(s.Language), string(s.State), s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// ClaimTranscription records key, reporting whether it was new
func (p *Postgres) ClaimTranscription(ctx context.Context, key string) (bool, error) {
	tag, err := p.db.Exec(ctx,
		`INSERT INTO transcription_claims (claim_key) VALUES ($1) ON CONFLICT DO NOTHING`, key)
	if err != nil {
		return false, fmt.Errorf("claim transcription: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// PurgeSessions deletes sessions untouched since before
func (p *Postgres) PurgeSessions(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM call_sessions WHERE updated_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeClaims deletes transcription claims made before before
func (p *Postgres) PurgeClaims(ctx context.Context, before time.Time) (int, error) {
	tag, err := p.db.Exec(ctx, `DELETE FROM transcription_claims WHERE claimed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("purge transcription claims: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ============================================
// COMMUNICATION LOG
// ============================================

// Append inserts a communication log record
func (p *Postgres) Append(ctx context.Context, rec messaging.LogRecord) error {
	query := `
		INSERT INTO communication_log (
			id, provider, type, direction, from_num, to_num,
			content, recording_url, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := p.db.Exec(ctx, query,
		rec.ID, rec.Provider, string(rec.Type), rec.Direction, rec.From, rec.To,
		rec.Content, rec.RecordingURL, rec.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("append communication log: %w", err)
	}
	return nil
}

// Recent returns up to limit log records, newest first
func (p *Postgres) Recent(ctx context.Context, limit int) ([]messaging.LogRecord, error) {
	query := `
		SELECT id, provider, type, direction, from_num, to_num,
		       content, recording_url, created_at
		FROM communication_log
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := p.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query communication log: %w", err)
	}
	defer rows.Close()

	var records []messaging.LogRecord
	for rows.Next() {
		var rec messaging.LogRecord
		if err := rows.Scan(
			&rec.ID, &rec.Provider, &rec.Type, &rec.Direction, &rec.From, &rec.To,
			&rec.Content, &rec.RecordingURL, &rec.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("scan communication log: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate communication log: %w", err)
	}
	return records, nil
}
