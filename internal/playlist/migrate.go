package playlist

import (
	"context"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

func AutoMigrate(ctx context.Context, pool *pgxpool.Pool) error {
	// id is client-generated, so the key is (id, owner_id) rather than a
	// server-side uuid. Timestamps are epoch milliseconds from the client.
	_, err := pool.Exec(ctx, `
      CREATE TABLE IF NOT EXISTS playlists (
          id         TEXT NOT NULL,
          owner_id   TEXT NOT NULL,
          name       TEXT NOT NULL,
          versions   JSONB NOT NULL DEFAULT '[]',
          created_at BIGINT NOT NULL,
          updated_at BIGINT NOT NULL,
          PRIMARY KEY (id, owner_id)
      )
    `)
	if err != nil {
		log.Printf("migrate playlists: %v", err)
		return err
	}

	if _, err := pool.Exec(ctx, `
      CREATE INDEX IF NOT EXISTS idx_playlists_owner
      ON playlists(owner_id)
    `); err != nil {
		return err
	}

	return nil
}
