package playlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the server-of-record playlist storage used by the sync handlers.
type Store interface {
	ListByOwner(ctx context.Context, ownerID string) ([]Playlist, error)
	Upsert(ctx context.Context, ownerID string, pl Playlist) (conflict bool, err error)
	ReplaceAll(ctx context.Context, ownerID string, pls []Playlist) error
	Delete(ctx context.Context, ownerID, id string) error
}

// DBOps defines the subset of pgxpool.Pool methods we use.
// This allows us to inject a mock for testing.
type DBOps interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

type PostgresStore struct {
	db DBOps
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Playlist, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, versions, created_at, updated_at
		FROM playlists
		WHERE owner_id = $1
		ORDER BY created_at ASC
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := []Playlist{}
	for rows.Next() {
		var pl Playlist
		var versions []byte
		if err := rows.Scan(&pl.ID, &pl.Name, &versions, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(versions, &pl.Versions); err != nil {
			return nil, fmt.Errorf("decode versions for playlist %s: %w", pl.ID, err)
		}
		playlists = append(playlists, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return playlists, nil
}

// Upsert writes the incoming record unless the stored row is strictly newer.
// Last-write-wins with the cloud as incumbent: the whole statement is atomic,
// so two devices racing on the same id cannot interleave between read and
// write. Returns conflict=true when the stored row was kept.
func (s *PostgresStore) Upsert(ctx context.Context, ownerID string, pl Playlist) (bool, error) {
	versions, err := json.Marshal(pl.Versions)
	if err != nil {
		return false, err
	}
	tag, err := s.db.Exec(ctx, `
		INSERT INTO playlists (id, owner_id, name, versions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id, owner_id) DO UPDATE
			SET name = EXCLUDED.name,
			    versions = EXCLUDED.versions,
			    created_at = EXCLUDED.created_at,
			    updated_at = EXCLUDED.updated_at
			WHERE playlists.updated_at <= EXCLUDED.updated_at
	`, pl.ID, ownerID, pl.Name, versions, pl.CreatedAt, pl.UpdatedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 0, nil
}

// ReplaceAll deletes every playlist owned by ownerID and inserts the incoming
// set as one transaction. A partial failure rolls back, never leaving the
// owner with an empty set.
func (s *PostgresStore) ReplaceAll(ctx context.Context, ownerID string, pls []Playlist) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM playlists WHERE owner_id = $1`, ownerID); err != nil {
		return err
	}
	for _, pl := range pls {
		versions, err := json.Marshal(pl.Versions)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO playlists (id, owner_id, name, versions, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, pl.ID, ownerID, pl.Name, versions, pl.CreatedAt, pl.UpdatedAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Delete(ctx context.Context, ownerID, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM playlists WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)

// IsNotFound reports whether err is the missing-playlist sentinel.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
