package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ericfisherdev/cruciverba/internal/domain/model"
	"github.com/ericfisherdev/cruciverba/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ContributionStore = (*ContributionRepo)(nil)

// ContributionRepo is the SQLite implementation of the ContributionStore port interface.
// Every statement is parameterized; no user input is ever concatenated into query text.
type ContributionRepo struct {
	db *DB
}

// NewContributionRepo creates a new ContributionRepo backed by the given DB.
func NewContributionRepo(db *DB) *ContributionRepo {
	return &ContributionRepo{db: db}
}

// Insert stores a new contribution and returns its assigned ID. The caller is
// expected to pass an already lowercased word. An empty name is stored as NULL.
// Returns ErrDuplicateContribution if the (word, clue) pair is already stored.
func (r *ContributionRepo) Insert(ctx context.Context, word, clue, name string) (int64, error) {
	const query = `INSERT INTO submissions (parola, frase_indizio, nome) VALUES (?, ?, ?)`

	var nome any
	if name != "" {
		nome = name
	}

	result, err := r.db.Writer.ExecContext(ctx, query, word, clue, nome)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, fmt.Errorf("insert contribution %q: %w", word, driven.ErrDuplicateContribution)
		}
		return 0, fmt.Errorf("insert contribution %q: %w", word, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("read inserted contribution id: %w", err)
	}

	return id, nil
}

// ListAll returns every contribution, newest first. Rows sharing the same
// second-resolution timestamp are ordered by descending ID.
func (r *ContributionRepo) ListAll(ctx context.Context) ([]model.Contribution, error) {
	const query = `SELECT id, parola, frase_indizio, nome, timestamp FROM submissions ORDER BY timestamp DESC, id DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list contributions: %w", err)
	}
	defer rows.Close()

	var contributions []model.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contribution: %w", err)
		}
		contributions = append(contributions, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contributions: %w", err)
	}

	return contributions, nil
}

// Delete removes the contribution with the given ID. Existence is confirmed
// inside the same write transaction; a missing ID returns ErrContributionNotFound.
func (r *ContributionRepo) Delete(ctx context.Context, id int64) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const existsQuery = `SELECT id FROM submissions WHERE id = ?`
	var found int64
	err = tx.QueryRowContext(ctx, existsQuery, id).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete contribution %d: %w", id, driven.ErrContributionNotFound)
	}
	if err != nil {
		return fmt.Errorf("check contribution %d: %w", id, err)
	}

	const deleteQuery = `DELETE FROM submissions WHERE id = ?`
	if _, err := tx.ExecContext(ctx, deleteQuery, id); err != nil {
		return fmt.Errorf("delete contribution %d: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete of contribution %d: %w", id, err)
	}

	return nil
}

// FindByWordAndClue looks up a contribution by exact (word, clue) match.
// Returns nil, nil if no contribution matches.
func (r *ContributionRepo) FindByWordAndClue(ctx context.Context, word, clue string) (*model.Contribution, error) {
	const query = `SELECT id, parola, frase_indizio, nome, timestamp FROM submissions WHERE parola = ? AND frase_indizio = ?`

	c, err := scanContribution(r.db.Reader.QueryRowContext(ctx, query, word, clue))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find contribution %q: %w", word, err)
	}

	return c, nil
}

// Count returns the number of stored contributions.
func (r *ContributionRepo) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM submissions`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("count contributions: %w", err)
	}
	return count, nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanContribution(s scanner) (*model.Contribution, error) {
	var c model.Contribution
	var nome sql.NullString
	var createdAt sql.NullString

	if err := s.Scan(&c.ID, &c.Word, &c.Clue, &nome, &createdAt); err != nil {
		return nil, err
	}
	c.Name = nome.String

	if createdAt.Valid {
		t, err := parseTime(createdAt.String)
		if err != nil {
			return nil, fmt.Errorf("parse timestamp: %w", err)
		}
		c.CreatedAt = t
	}

	return &c, nil
}

// parseTime tries multiple SQLite datetime formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
		time.RFC3339,
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
