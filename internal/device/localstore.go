package device

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

// ErrStorageFull is surfaced when the device is out of space. It is
// terminal: the write is not retried until the user frees space.
var ErrStorageFull = errors.New("device storage full")

var ErrPlaylistNotFound = fmt.Errorf("playlist not found in local store: %w", playlist.ErrNotFound)

// LocalStore is the durable on-device playlist store. It works with no
// network and no account, and also persists the offline write queue.
type LocalStore struct {
	db *sql.DB
}

// OpenLocalStore opens (or creates) the store at path. ":memory:" works for
// tests.
func OpenLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open local store: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open local store: %w", err)
	}
	// Single logical writer per device; one connection keeps sqlite happy.
	db.SetMaxOpenConns(1)

	s := &LocalStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) Close() error { return s.db.Close() }

func (s *LocalStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS playlists (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			versions   TEXT NOT NULL DEFAULT '[]',
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS sync_queue (
			seq         INTEGER PRIMARY KEY AUTOINCREMENT,
			op          TEXT NOT NULL,
			playlist_id TEXT NOT NULL,
			payload     TEXT NOT NULL DEFAULT '',
			created_at  INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("migrate local store: %w", err)
	}
	return nil
}

// storageErr maps sqlite full-disk/quota failures to ErrStorageFull so the
// caller can show the explicit, named message.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrFull {
		return fmt.Errorf("%w: %v", ErrStorageFull, err)
	}
	return err
}

func (s *LocalStore) Playlists() ([]playlist.Playlist, error) {
	rows, err := s.db.Query(`
		SELECT id, name, versions, created_at, updated_at
		FROM playlists
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	playlists := []playlist.Playlist{}
	for rows.Next() {
		var pl playlist.Playlist
		var versions string
		if err := rows.Scan(&pl.ID, &pl.Name, &versions, &pl.CreatedAt, &pl.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(versions), &pl.Versions); err != nil {
			return nil, fmt.Errorf("decode versions for playlist %s: %w", pl.ID, err)
		}
		playlists = append(playlists, pl)
	}
	return playlists, rows.Err()
}

func (s *LocalStore) Get(id string) (playlist.Playlist, error) {
	var pl playlist.Playlist
	var versions string
	err := s.db.QueryRow(`
		SELECT id, name, versions, created_at, updated_at
		FROM playlists WHERE id = ?
	`, id).Scan(&pl.ID, &pl.Name, &versions, &pl.CreatedAt, &pl.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return playlist.Playlist{}, ErrPlaylistNotFound
	}
	if err != nil {
		return playlist.Playlist{}, err
	}
	if err := json.Unmarshal([]byte(versions), &pl.Versions); err != nil {
		return playlist.Playlist{}, err
	}
	return pl, nil
}

func (s *LocalStore) Count() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM playlists`).Scan(&n)
	return n, err
}

// Put inserts or replaces one playlist.
func (s *LocalStore) Put(pl playlist.Playlist) error {
	versions, err := json.Marshal(pl.Versions)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO playlists (id, name, versions, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, pl.ID, pl.Name, string(versions), pl.CreatedAt, pl.UpdatedAt)
	return storageErr(err)
}

func (s *LocalStore) Delete(id string) error {
	res, err := s.db.Exec(`DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrPlaylistNotFound
	}
	return nil
}

// ReplaceAll swaps the entire local set in one transaction.
func (s *LocalStore) ReplaceAll(pls []playlist.Playlist) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM playlists`); err != nil {
		return storageErr(err)
	}
	for _, pl := range pls {
		versions, err := json.Marshal(pl.Versions)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`
			INSERT INTO playlists (id, name, versions, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
		`, pl.ID, pl.Name, string(versions), pl.CreatedAt, pl.UpdatedAt); err != nil {
			return storageErr(err)
		}
	}
	return storageErr(tx.Commit())
}

// PendingSyncEntry is one queued mutation captured while the cloud was
// unreachable, replayed in seq order.
type PendingSyncEntry struct {
	Seq        int64
	Op         string
	PlaylistID string
	Payload    json.RawMessage
	CreatedAt  int64
}

// Queue operation names. Every op except OpDelete carries the full playlist
// snapshot taken after the mutation, so replay is a plain upsert.
const (
	OpCreatePlaylist = "createPlaylist"
	OpRename         = "rename"
	OpAddVersion     = "addVersion"
	OpRemoveVersion  = "removeVersion"
	OpReorder        = "reorder"
	OpDelete         = "delete"
)

func (s *LocalStore) Enqueue(op, playlistID string, payload json.RawMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO sync_queue (op, playlist_id, payload, created_at)
		VALUES (?, ?, ?, ?)
	`, op, playlistID, string(payload), time.Now().UnixMilli())
	return storageErr(err)
}

func (s *LocalStore) PendingEntries() ([]PendingSyncEntry, error) {
	rows, err := s.db.Query(`
		SELECT seq, op, playlist_id, payload, created_at
		FROM sync_queue
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []PendingSyncEntry{}
	for rows.Next() {
		var e PendingSyncEntry
		var payload string
		if err := rows.Scan(&e.Seq, &e.Op, &e.PlaylistID, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *LocalStore) Dequeue(seq int64) error {
	_, err := s.db.Exec(`DELETE FROM sync_queue WHERE seq = ?`, seq)
	return err
}

func (s *LocalStore) PendingCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sync_queue`).Scan(&n)
	return n, err
}
