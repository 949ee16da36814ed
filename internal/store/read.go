package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/weft/internal/loader"
)

const revisionColumns = `id, name, seq, source, hash, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func scanRevision(row rowScanner) (Revision, error) {
	var rev Revision
	var created string
	if err := row.Scan(&rev.ID, &rev.Name, &rev.Seq, &rev.Source, &rev.Hash, &created); err != nil {
		return Revision{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, created)
	if err != nil {
		return Revision{}, fmt.Errorf("parse created_at of %s: %w", rev.ID, err)
	}
	rev.CreatedAt = t
	return rev, nil
}

func latestRevision(ctx context.Context, q queryer, name string) (Revision, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE name = ?
		ORDER BY seq DESC, id DESC
		LIMIT 1
	`, name)
	return scanRevision(row)
}

func (s *Store) notFound(name string) error {
	return &loader.TemplateNotFoundError{Name: name, Searched: []string{"sqlite:" + s.path}}
}

// Latest returns the current revision of name.
// Returns a loader.TemplateNotFoundError if the template was never stored.
func (s *Store) Latest(ctx context.Context, name string) (Revision, error) {
	clean, err := loader.CleanName(name)
	if err != nil {
		return Revision{}, err
	}
	rev, err := latestRevision(ctx, s.db, clean)
	if errors.Is(err, sql.ErrNoRows) {
		return Revision{}, s.notFound(clean)
	}
	if err != nil {
		return Revision{}, fmt.Errorf("read latest %s: %w", clean, err)
	}
	return rev, nil
}

// History returns every revision of name, oldest first.
func (s *Store) History(ctx context.Context, name string) ([]Revision, error) {
	clean, err := loader.CleanName(name)
	if err != nil {
		return nil, err
	}
	revs, err := s.queryRevisions(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions
		WHERE name = ?
		ORDER BY seq ASC, id ASC COLLATE BINARY
	`, clean)
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", clean, err)
	}
	if len(revs) == 0 {
		return nil, s.notFound(clean)
	}
	return revs, nil
}

// List returns the current revision of every template, by name.
func (s *Store) List(ctx context.Context) ([]Revision, error) {
	revs, err := s.queryRevisions(ctx, `
		SELECT `+revisionColumns+`
		FROM revisions r
		WHERE seq = (SELECT MAX(seq) FROM revisions WHERE name = r.name)
		ORDER BY name ASC COLLATE BINARY
	`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return revs, nil
}

func (s *Store) queryRevisions(ctx context.Context, query string, args ...any) ([]Revision, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var revs []Revision
	for rows.Next() {
		rev, err := scanRevision(rows)
		if err != nil {
			return nil, err
		}
		revs = append(revs, rev)
	}
	return revs, rows.Err()
}

// Resolve implements loader.Resolver with the current revision of name.
// The revision time serves as the modification time.
func (s *Store) Resolve(ctx context.Context, name string) (*loader.Source, error) {
	rev, err := s.Latest(ctx, name)
	if err != nil {
		return nil, err
	}
	return &loader.Source{
		Name:    rev.Name,
		Body:    rev.Source,
		ModTime: rev.CreatedAt,
		Origin:  "sqlite:" + s.path + "#" + rev.ID,
	}, nil
}
