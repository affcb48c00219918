// Package docstore mirrors the document table of an index into PostgreSQL.
package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/hashseg-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/hashseg-search/pkg/postgres"
)

const schema = `CREATE TABLE IF NOT EXISTS doc_meta (
    doc_id INT PRIMARY KEY,
    name   TEXT NOT NULL,
    length INT NOT NULL
)`

// Store persists document metadata in the doc_meta table:
//
//	CREATE TABLE doc_meta (
//	    doc_id INT PRIMARY KEY,
//	    name   TEXT NOT NULL,
//	    length INT NOT NULL
//	);
type Store struct {
	db     *postgres.Client
	logger *slog.Logger
}

func NewStore(db *postgres.Client) *Store {
	return &Store{
		db:     db,
		logger: slog.Default().With("component", "docstore"),
	}
}

// EnsureSchema creates the doc_meta table when it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating doc_meta table: %w", err)
	}
	return nil
}

// PutDoc upserts one document row.
func (s *Store) PutDoc(ctx context.Context, docID int, name string, length int) error {
	_, err := s.db.DB.ExecContext(ctx,
		`INSERT INTO doc_meta (doc_id, name, length) VALUES ($1, $2, $3)
		 ON CONFLICT (doc_id) DO UPDATE SET name = EXCLUDED.name, length = EXCLUDED.length`,
		docID, name, length,
	)
	if err != nil {
		return fmt.Errorf("saving doc %d: %w", docID, err)
	}
	return nil
}

// SaveAll replaces the mirrored table with the contents of d in one
// transaction.
func (s *Store) SaveAll(ctx context.Context, d *index.DocMeta) error {
	ids := d.IDs()
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM doc_meta`); err != nil {
			return fmt.Errorf("clearing doc_meta: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO doc_meta (doc_id, name, length) VALUES ($1, $2, $3)`)
		if err != nil {
			return fmt.Errorf("preparing insert: %w", err)
		}
		defer stmt.Close()
		for _, id := range ids {
			info, _ := d.Get(id)
			if _, err := stmt.ExecContext(ctx, id, info.Name, info.Length); err != nil {
				return fmt.Errorf("saving doc %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("document table mirrored", "docs", len(ids))
	return nil
}

// Get loads one row. Returns ok=false when the document is unknown.
func (s *Store) Get(ctx context.Context, docID int) (index.DocInfo, bool, error) {
	var info index.DocInfo
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT name, length FROM doc_meta WHERE doc_id = $1`, docID,
	).Scan(&info.Name, &info.Length)
	if errors.Is(err, sql.ErrNoRows) {
		return info, false, nil
	}
	if err != nil {
		return info, false, fmt.Errorf("querying doc %d: %w", docID, err)
	}
	return info, true, nil
}

// Load reads the whole table into a DocMeta.
func (s *Store) Load(ctx context.Context) (*index.DocMeta, error) {
	rows, err := s.db.DB.QueryContext(ctx, `SELECT doc_id, name, length FROM doc_meta`)
	if err != nil {
		return nil, fmt.Errorf("querying doc_meta: %w", err)
	}
	defer rows.Close()

	d := index.NewDocMeta()
	for rows.Next() {
		var (
			id     int
			name   string
			length int
		)
		if err := rows.Scan(&id, &name, &length); err != nil {
			return nil, fmt.Errorf("scanning doc_meta row: %w", err)
		}
		d.Set(id, name, length)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating doc_meta: %w", err)
	}
	return d, nil
}
