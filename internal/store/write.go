package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/weft/internal/loader"
)

// Revision is one stored version of a template.
type Revision struct {
	ID        string
	Name      string
	Seq       int64
	Source    []byte
	Hash      string
	CreatedAt time.Time
}

// hashSource returns the hex SHA-256 of a template body, with a domain
// prefix so the value cannot collide with other hashed content.
func hashSource(source []byte) string {
	h := sha256.New()
	h.Write([]byte("weft/template\x00"))
	h.Write(source)
	return hex.EncodeToString(h.Sum(nil))
}

// Put stores source as the newest revision of name.
// Storing the same source as the current revision is a no-op that returns
// the current revision.
func (s *Store) Put(ctx context.Context, name string, source []byte) (Revision, error) {
	clean, err := loader.CleanName(name)
	if err != nil {
		return Revision{}, fmt.Errorf("put template: %w", err)
	}
	hash := hashSource(source)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Revision{}, fmt.Errorf("put template: %w", err)
	}
	defer tx.Rollback()

	latest, err := latestRevision(ctx, tx, clean)
	switch {
	case err == nil && latest.Hash == hash:
		return latest, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return Revision{}, fmt.Errorf("put template: %w", err)
	}

	now := s.now().UTC()
	rev := Revision{
		ID:        s.ids.Generate(),
		Name:      clean,
		Seq:       latest.Seq + 1,
		Source:    source,
		Hash:      hash,
		CreatedAt: now,
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO templates (name, created_at)
		VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, clean, formatTime(now)); err != nil {
		return Revision{}, fmt.Errorf("put template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO revisions (id, name, seq, source, hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		rev.ID,
		rev.Name,
		rev.Seq,
		rev.Source,
		rev.Hash,
		formatTime(rev.CreatedAt),
	); err != nil {
		return Revision{}, fmt.Errorf("put template: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Revision{}, fmt.Errorf("put template: %w", err)
	}
	return rev, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
