package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pavel-fokin/filexfer/internal/files"
)

// Repository implements files.TransferJournal using SQLite
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new SQLite repository
func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Workers record concurrently; a single connection serialises writers
	// instead of failing with SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	repo := &Repository{db: db}

	// Initialize database schema
	if err := repo.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}

// initSchema creates the necessary database tables
func (r *Repository) initSchema() error {
	createTableQuery := `
	CREATE TABLE IF NOT EXISTS transfers (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		file_name TEXT NOT NULL,
		size INTEGER NOT NULL,
		sha256 TEXT,
		ok INTEGER NOT NULL,
		error TEXT,
		remote_addr TEXT,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL
	);`
	if _, err := r.db.Exec(createTableQuery); err != nil {
		return fmt.Errorf("failed to create transfers table: %w", err)
	}

	createIndexesQuery := `
	CREATE INDEX IF NOT EXISTS idx_transfers_started_at ON transfers(started_at);
	CREATE INDEX IF NOT EXISTS idx_transfers_file_name ON transfers(file_name);
	`
	if _, err := r.db.Exec(createIndexesQuery); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}

// Record stores one transfer outcome
func (r *Repository) Record(ctx context.Context, t *files.Transfer) error {
	query := `
	INSERT INTO transfers (id, op, file_name, size, sha256, ok, error, remote_addr, started_at, duration_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		t.ID,
		string(t.Op),
		t.FileName,
		t.Size,
		nullString(t.SHA256),
		t.OK,
		nullString(t.Error),
		nullString(t.RemoteAddr),
		t.StartedAt.UTC(),
		t.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to create transfer record: %w", err)
	}

	return nil
}

// Recent retrieves the latest transfers, newest first
func (r *Repository) Recent(ctx context.Context, limit int) ([]*files.Transfer, error) {
	query := `
	SELECT id, op, file_name, size, sha256, ok, error, remote_addr, started_at, duration_ms
	FROM transfers
	ORDER BY started_at DESC, rowid DESC
	LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query transfers: %w", err)
	}
	defer rows.Close()

	transfers := []*files.Transfer{}
	for rows.Next() {
		var t files.Transfer
		var op string
		var sha, errMsg, addr sql.NullString
		var durationMs int64
		err := rows.Scan(
			&t.ID,
			&op,
			&t.FileName,
			&t.Size,
			&sha,
			&t.OK,
			&errMsg,
			&addr,
			&t.StartedAt,
			&durationMs,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transfer row: %w", err)
		}
		t.Op = files.Op(op)
		t.SHA256 = sha.String
		t.Error = errMsg.String
		t.RemoteAddr = addr.String
		t.Duration = time.Duration(durationMs) * time.Millisecond
		transfers = append(transfers, &t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transfer rows: %w", err)
	}

	return transfers, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
