package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS swaps (
	id TEXT PRIMARY KEY,
	tx_hash TEXT,
	source_chain TEXT,
	dest_chain TEXT,
	tokens TEXT,
	output_token TEXT,
	recipient TEXT,
	estimated_output TEXT,
	status TEXT,
	error TEXT,
	created_at INTEGER,
	updated_at INTEGER
);
CREATE INDEX IF NOT EXISTS swaps_tx_hash ON swaps (tx_hash);
`

const selectColumns = `id, tx_hash, source_chain, dest_chain, tokens, output_token, recipient,
	estimated_output, status, error, created_at, updated_at`

// SQLiteStore keeps records in a SQLite database
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates the database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create history schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Create inserts a new record
func (s *SQLiteStore) Create(record *Record) error {
	tokens, err := json.Marshal(record.Tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO swaps (`+selectColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.ID, record.TxHash, record.SourceChain, record.DestChain, string(tokens),
		record.OutputToken, record.Recipient, record.EstimatedOutput, string(record.Status),
		record.Error, record.CreatedAt.UnixMilli(), record.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert record '%s': %w", record.ID, err)
	}
	return nil
}

// Get finds a record by id or transaction hash
func (s *SQLiteStore) Get(idOrTxHash string) (*Record, error) {
	row := s.db.QueryRow(`SELECT `+selectColumns+` FROM swaps WHERE id = ? OR tx_hash = ? LIMIT 1`,
		idOrTxHash, idOrTxHash)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, idOrTxHash)
	}
	return record, err
}

// Update replaces an existing record
func (s *SQLiteStore) Update(record *Record) error {
	tokens, err := json.Marshal(record.Tokens)
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}

	record.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE swaps SET tx_hash = ?, source_chain = ?, dest_chain = ?, tokens = ?, output_token = ?,
			recipient = ?, estimated_output = ?, status = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, record.TxHash, record.SourceChain, record.DestChain, string(tokens), record.OutputToken,
		record.Recipient, record.EstimatedOutput, string(record.Status), record.Error,
		record.UpdatedAt.UnixMilli(), record.ID)
	if err != nil {
		return fmt.Errorf("failed to update record '%s': %w", record.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, record.ID)
	}
	return nil
}

// List returns records newest first
func (s *SQLiteStore) List(limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM swaps ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		r                    Record
		tokens, status, errS sql.NullString
		estimated            sql.NullString
		createdAt, updatedAt int64
	)

	err := row.Scan(&r.ID, &r.TxHash, &r.SourceChain, &r.DestChain, &tokens, &r.OutputToken,
		&r.Recipient, &estimated, &status, &errS, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if tokens.Valid && tokens.String != "" {
		if err := json.Unmarshal([]byte(tokens.String), &r.Tokens); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tokens of '%s': %w", r.ID, err)
		}
	}
	r.EstimatedOutput = estimated.String
	r.Status = Status(status.String)
	r.Error = errS.String
	r.CreatedAt = time.UnixMilli(createdAt).UTC()
	r.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return &r, nil
}
