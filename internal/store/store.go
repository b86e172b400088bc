// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists harvest runs and their papers in a SQLite
// database so the download stage can pick up where harvesting stopped.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paperharvest/pkg/types"
)

// ErrNoHarvests reports an empty store.
var ErrNoHarvests = errors.New("no harvests recorded")

// Store manages the harvest SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path, creating the
// schema and any missing parent directories.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS harvests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			since TEXT,
			until TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS papers (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			harvest_id INTEGER NOT NULL REFERENCES harvests(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			abstract TEXT,
			authors TEXT,
			publication TEXT,
			publication_date TEXT NOT NULL,
			urls TEXT,
			doi TEXT,
			keywords TEXT,
			pages TEXT,
			number_of_pages INTEGER,
			databases TEXT,
			pdf_url TEXT,
			file_path TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_harvest_id ON papers(harvest_id)`,
		`CREATE INDEX IF NOT EXISTS idx_papers_doi ON papers(doi)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Record is a stored paper together with its database row id.
type Record struct {
	ID    int64
	Paper *types.Paper
}

// SaveHarvest records one harvest run and its papers in a single
// transaction and returns the harvest id.
func (s *Store) SaveHarvest(ctx context.Context, query string, since, until time.Time, papers []*types.Paper) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO harvests (query, since, until, created_at) VALUES (?, ?, ?, ?)`,
		query, nullableDate(since), nullableDate(until),
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting harvest: %w", err)
	}
	harvestID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading harvest id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO papers (
		harvest_id, title, abstract, authors, publication, publication_date,
		urls, doi, keywords, pages, number_of_pages, databases, pdf_url, file_path
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("preparing paper insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range papers {
		var publication any
		if p.Publication != nil {
			data, err := json.Marshal(p.Publication)
			if err != nil {
				return 0, fmt.Errorf("encoding publication for %q: %w", p.Title, err)
			}
			publication = string(data)
		}
		_, err = stmt.ExecContext(ctx,
			harvestID, p.Title, p.Abstract,
			mustMarshal(p.Authors), publication,
			p.PublicationDate.Format("2006-01-02"),
			mustMarshal(p.URLs), p.DOI, mustMarshal(p.Keywords), p.Pages,
			nullableInt(p.NumberOfPages), mustMarshal(p.Databases),
			p.PDFURL, p.FilePath)
		if err != nil {
			return 0, fmt.Errorf("inserting paper %q: %w", p.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing harvest: %w", err)
	}
	return harvestID, nil
}

// LatestHarvestID returns the id of the most recent harvest, or
// ErrNoHarvests when the store is empty.
func (s *Store) LatestHarvestID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM harvests ORDER BY id DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNoHarvests
	}
	if err != nil {
		return 0, fmt.Errorf("querying latest harvest: %w", err)
	}
	return id, nil
}

// Papers returns every paper of a harvest in insertion order.
func (s *Store) Papers(ctx context.Context, harvestID int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		id, title, abstract, authors, publication, publication_date,
		urls, doi, keywords, pages, number_of_pages, databases, pdf_url, file_path
		FROM papers WHERE harvest_id = ? ORDER BY id`, harvestID)
	if err != nil {
		return nil, fmt.Errorf("querying papers: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var p types.Paper
		var authors, urls, keywords, databases, publicationDate string
		var publication sql.NullString
		var numberOfPages sql.NullInt64
		if err := rows.Scan(&rec.ID, &p.Title, &p.Abstract, &authors, &publication,
			&publicationDate, &urls, &p.DOI, &keywords, &p.Pages,
			&numberOfPages, &databases, &p.PDFURL, &p.FilePath); err != nil {
			return nil, fmt.Errorf("scanning paper row: %w", err)
		}

		if err := unmarshalInto(authors, &p.Authors); err != nil {
			return nil, err
		}
		if err := unmarshalInto(urls, &p.URLs); err != nil {
			return nil, err
		}
		if err := unmarshalInto(keywords, &p.Keywords); err != nil {
			return nil, err
		}
		if err := unmarshalInto(databases, &p.Databases); err != nil {
			return nil, err
		}
		if publication.Valid && publication.String != "" {
			if err := json.Unmarshal([]byte(publication.String), &p.Publication); err != nil {
				return nil, fmt.Errorf("decoding publication: %w", err)
			}
		}
		if t, err := time.Parse("2006-01-02", publicationDate); err == nil {
			p.PublicationDate = t
		}
		if numberOfPages.Valid {
			p.NumberOfPages = int(numberOfPages.Int64)
		}

		rec.Paper = &p
		records = append(records, rec)
	}
	return records, rows.Err()
}

// SetPDF records the resolved PDF URL and downloaded file path of a
// stored paper.
func (s *Store) SetPDF(ctx context.Context, paperID int64, pdfURL, filePath string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE papers SET pdf_url = ?, file_path = ? WHERE id = ?`,
		pdfURL, filePath, paperID)
	if err != nil {
		return fmt.Errorf("updating paper %d: %w", paperID, err)
	}
	return nil
}

func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Format("2006-01-02")
}

func nullableInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}

// mustMarshal encodes a string slice. Marshaling []string cannot fail.
func mustMarshal(v []string) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func unmarshalInto(data string, v *[]string) error {
	if data == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(data), v); err != nil {
		return fmt.Errorf("decoding stored list: %w", err)
	}
	return nil
}
