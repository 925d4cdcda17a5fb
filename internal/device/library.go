package device

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/hydai/MizukiPrism-sub000/internal/playlist"
)

// Library is the device-side facade over LocalStore + Client. Every
// mutation lands in the local store first; the cloud write is attempted
// right after and queued on failure, so the device never blocks on the
// network and never loses an edit.
type Library struct {
	local  *LocalStore
	client *Client
}

func NewLibrary(local *LocalStore, client *Client) *Library {
	return &Library{local: local, client: client}
}

func nowMillis() int64 { return time.Now().UnixMilli() }

// bump returns the next updatedAt for a playlist. Strictly monotonic per
// playlist even when the wall clock stalls or runs behind a prior edit
// from another device.
func bump(prev int64) int64 {
	now := nowMillis()
	if now <= prev {
		return prev + 1
	}
	return now
}

func (l *Library) CreatePlaylist(ctx context.Context, name string) (playlist.Playlist, error) {
	now := nowMillis()
	pl := playlist.Playlist{
		ID:        uuid.NewString(),
		Name:      name,
		Versions:  []playlist.Version{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := pl.Validate(); err != nil {
		return playlist.Playlist{}, err
	}
	if err := l.local.Put(pl); err != nil {
		return playlist.Playlist{}, err
	}
	if err := l.pushOrQueue(ctx, OpCreatePlaylist, pl); err != nil {
		return playlist.Playlist{}, err
	}
	return pl, nil
}

func (l *Library) Rename(ctx context.Context, id, name string) (playlist.Playlist, error) {
	return l.mutate(ctx, OpRename, id, func(pl *playlist.Playlist) error {
		pl.Name = name
		return nil
	})
}

func (l *Library) AddVersion(ctx context.Context, id string, v playlist.Version) (playlist.Playlist, error) {
	return l.mutate(ctx, OpAddVersion, id, func(pl *playlist.Playlist) error {
		for _, existing := range pl.Versions {
			if existing.PerformanceID == v.PerformanceID {
				return fmt.Errorf("performance %s already in playlist: %w",
					v.PerformanceID, playlist.ErrInvalidPlaylist)
			}
		}
		pl.Versions = append(pl.Versions, v)
		return nil
	})
}

func (l *Library) RemoveVersion(ctx context.Context, id, performanceID string) (playlist.Playlist, error) {
	return l.mutate(ctx, OpRemoveVersion, id, func(pl *playlist.Playlist) error {
		kept := pl.Versions[:0]
		found := false
		for _, v := range pl.Versions {
			if v.PerformanceID == performanceID {
				found = true
				continue
			}
			kept = append(kept, v)
		}
		if !found {
			return fmt.Errorf("performance %s not in playlist: %w",
				performanceID, playlist.ErrInvalidPlaylist)
		}
		pl.Versions = kept
		return nil
	})
}

// Reorder rearranges versions to match order, a permutation of the
// playlist's performance ids.
func (l *Library) Reorder(ctx context.Context, id string, order []string) (playlist.Playlist, error) {
	return l.mutate(ctx, OpReorder, id, func(pl *playlist.Playlist) error {
		if len(order) != len(pl.Versions) {
			return playlist.ErrInvalidPlaylist
		}
		byID := make(map[string]playlist.Version, len(pl.Versions))
		for _, v := range pl.Versions {
			byID[v.PerformanceID] = v
		}
		reordered := make([]playlist.Version, 0, len(order))
		for _, pid := range order {
			v, ok := byID[pid]
			if !ok {
				return playlist.ErrInvalidPlaylist
			}
			delete(byID, pid)
			reordered = append(reordered, v)
		}
		pl.Versions = reordered
		return nil
	})
}

func (l *Library) DeletePlaylist(ctx context.Context, id string) error {
	if err := l.local.Delete(id); err != nil {
		return err
	}
	if l.client == nil || l.client.Token() == "" {
		return l.queue(OpDelete, id, nil)
	}
	if err := l.client.Delete(ctx, id); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			// Already gone on the server; nothing to replay.
			return nil
		}
		return l.queue(OpDelete, id, nil)
	}
	return nil
}

func (l *Library) mutate(ctx context.Context, op, id string, apply func(*playlist.Playlist) error) (playlist.Playlist, error) {
	pl, err := l.local.Get(id)
	if err != nil {
		return playlist.Playlist{}, err
	}
	if err := apply(&pl); err != nil {
		return playlist.Playlist{}, err
	}
	pl.UpdatedAt = bump(pl.UpdatedAt)
	if err := pl.Validate(); err != nil {
		return playlist.Playlist{}, err
	}
	if err := l.local.Put(pl); err != nil {
		return playlist.Playlist{}, err
	}
	if err := l.pushOrQueue(ctx, op, pl); err != nil {
		return playlist.Playlist{}, err
	}
	return pl, nil
}

// pushOrQueue attempts the cloud upsert and queues the snapshot when the
// device is offline, unauthenticated, or the call fails. A conflict
// response is not queued: the cloud kept a newer row and the client should
// re-fetch instead of replaying a stale write. Failing to persist the
// queue entry (e.g. ErrStorageFull) is returned to the caller: a write
// that can neither reach the cloud nor wait for it must not look like a
// success.
func (l *Library) pushOrQueue(ctx context.Context, op string, pl playlist.Playlist) error {
	payload, err := json.Marshal(pl)
	if err != nil {
		return fmt.Errorf("marshal %s snapshot: %w", pl.ID, err)
	}
	if l.client == nil || l.client.Token() == "" {
		return l.queue(op, pl.ID, payload)
	}
	res, err := l.client.Upsert(ctx, pl)
	if err != nil {
		return l.queue(op, pl.ID, payload)
	}
	if res.Conflict {
		log.Printf("device: cloud kept newer copy of playlist %s", pl.ID)
	}
	return nil
}

func (l *Library) queue(op, id string, payload json.RawMessage) error {
	if err := l.local.Enqueue(op, id, payload); err != nil {
		return fmt.Errorf("queue %s for %s: %w", op, id, err)
	}
	return nil
}

// ReplayQueue pushes pending entries to the cloud in FIFO order. It stops
// at the first failure, leaving that entry and everything after it queued
// for the next attempt. Returns how many entries were replayed.
func (l *Library) ReplayQueue(ctx context.Context) (int, error) {
	entries, err := l.local.PendingEntries()
	if err != nil {
		return 0, err
	}

	replayed := 0
	for _, e := range entries {
		if err := l.replayEntry(ctx, e); err != nil {
			return replayed, err
		}
		if err := l.local.Dequeue(e.Seq); err != nil {
			return replayed, err
		}
		replayed++
	}
	return replayed, nil
}

func (l *Library) replayEntry(ctx context.Context, e PendingSyncEntry) error {
	if e.Op == OpDelete {
		err := l.client.Delete(ctx, e.PlaylistID)
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == 404 {
			return nil
		}
		return err
	}

	var pl playlist.Playlist
	if err := json.Unmarshal(e.Payload, &pl); err != nil {
		// A corrupt snapshot can never replay; dropping it beats wedging
		// the queue forever.
		log.Printf("device: drop unreadable queue entry %d: %v", e.Seq, err)
		return nil
	}
	res, err := l.client.Upsert(ctx, pl)
	if err != nil {
		return err
	}
	if res.Conflict {
		log.Printf("device: replay of playlist %s lost to newer cloud copy", pl.ID)
	}
	return nil
}
